package types

import (
	"fmt"
	"time"
)

// BatteryConfig defines the physical parameters of the battery.
// Units:
// - CapacityKWH: kWh nominal
// - MaxChargeKW / MaxDischargeKW: kW
// - Efficiencies: 0..1 (one-way, charge and discharge separately)
// - MinSOC / MaxSOC: fraction of nominal capacity, 0..1
//
// Immutable for the duration of an optimization run.
type BatteryConfig struct {
	CapacityKWH         float64 `json:"capacityKWH"`
	MaxChargeKW         float64 `json:"maxChargeKW"`
	MaxDischargeKW      float64 `json:"maxDischargeKW"`
	ChargeEfficiency    float64 `json:"chargeEfficiency"`
	DischargeEfficiency float64 `json:"dischargeEfficiency"`
	MinSOC              float64 `json:"minSOC"`
	MaxSOC              float64 `json:"maxSOC"`
}

// MinEnergyKWH returns the lowest allowed battery energy level.
func (b BatteryConfig) MinEnergyKWH() float64 { return b.MinSOC * b.CapacityKWH }

// MaxEnergyKWH returns the highest allowed battery energy level.
func (b BatteryConfig) MaxEnergyKWH() float64 { return b.MaxSOC * b.CapacityKWH }

func (b BatteryConfig) Validate() error {
	if b.CapacityKWH <= 0 {
		return fmt.Errorf("%w: battery capacity must be > 0, got %v", ErrInvalidConfig, b.CapacityKWH)
	}
	if b.MaxChargeKW <= 0 || b.MaxDischargeKW <= 0 {
		return fmt.Errorf("%w: charge/discharge power must be > 0", ErrInvalidConfig)
	}
	if b.ChargeEfficiency <= 0 || b.ChargeEfficiency > 1 {
		return fmt.Errorf("%w: charge efficiency must be in (0, 1], got %v", ErrInvalidConfig, b.ChargeEfficiency)
	}
	if b.DischargeEfficiency <= 0 || b.DischargeEfficiency > 1 {
		return fmt.Errorf("%w: discharge efficiency must be in (0, 1], got %v", ErrInvalidConfig, b.DischargeEfficiency)
	}
	if b.MinSOC < 0 || b.MaxSOC > 1 || b.MinSOC >= b.MaxSOC {
		return fmt.Errorf("%w: SOC bounds must satisfy 0 <= min < max <= 1, got [%v, %v]",
			ErrInvalidConfig, b.MinSOC, b.MaxSOC)
	}
	return nil
}

// GridConfig bounds the site's grid connection, in kW.
type GridConfig struct {
	ImportLimitKW float64 `json:"importLimitKW"`
	ExportLimitKW float64 `json:"exportLimitKW"`
}

func (g GridConfig) Validate() error {
	if g.ImportLimitKW <= 0 || g.ExportLimitKW < 0 {
		return fmt.Errorf("%w: grid limits must be positive (import) and non-negative (export)", ErrInvalidConfig)
	}
	return nil
}

const hoursPerYear = 8760.0

// DegradationConfig parameterizes the dual-mode battery wear model.
// EOLPercent is the cumulative degradation (in percent, e.g. 20) at which the
// battery is considered end-of-life.
type DegradationConfig struct {
	CycleLife         float64 `json:"cycleLife"`         // full cycles at 100% DOD until EOL
	CalendarLifeYears float64 `json:"calendarLifeYears"` // shelf life until EOL
	EOLPercent        float64 `json:"eolPercent"`
	BatteryCostKWH    float64 `json:"batteryCostKWH"` // capital cost, currency/kWh
}

// CyclicPerDOD is the cyclic degradation (percent) caused by one unit of
// absolute depth-of-discharge.
func (d DegradationConfig) CyclicPerDOD() float64 {
	return d.EOLPercent / d.CycleLife
}

// CalendarPerStep is the calendar degradation (percent) accrued over one
// timestep regardless of activity.
func (d DegradationConfig) CalendarPerStep(stepHours float64) float64 {
	return d.EOLPercent / (d.CalendarLifeYears * hoursPerYear) * stepHours
}

// CostPerPercent converts one percent of degradation into currency for a
// battery of the given capacity.
func (d DegradationConfig) CostPerPercent(capacityKWH float64) float64 {
	return d.BatteryCostKWH * capacityKWH / d.EOLPercent
}

func (d DegradationConfig) Validate() error {
	if d.CycleLife <= 0 {
		return fmt.Errorf("%w: cycle life must be > 0, got %v", ErrInvalidConfig, d.CycleLife)
	}
	if d.CalendarLifeYears <= 0 {
		return fmt.Errorf("%w: calendar life must be > 0, got %v", ErrInvalidConfig, d.CalendarLifeYears)
	}
	if d.EOLPercent <= 0 || d.EOLPercent > 100 {
		return fmt.Errorf("%w: EOL threshold must be in (0, 100], got %v", ErrInvalidConfig, d.EOLPercent)
	}
	if d.BatteryCostKWH < 0 {
		return fmt.Errorf("%w: battery cost must be >= 0, got %v", ErrInvalidConfig, d.BatteryCostKWH)
	}
	return nil
}

// CostRates holds the per-kWh price components layered on top of spot.
// The grid energy tariff is time-of-use: the day rate applies Monday-Friday
// within [DayStartHour, DayEndHour), the night rate otherwise.
type CostRates struct {
	EnergyTariffDayKWH   float64 `json:"energyTariffDayKWH"`
	EnergyTariffNightKWH float64 `json:"energyTariffNightKWH"`
	DayStartHour         int     `json:"dayStartHour"`
	DayEndHour           int     `json:"dayEndHour"`
	ConsumptionTaxKWH    float64 `json:"consumptionTaxKWH"`
	ExportPremiumKWH     float64 `json:"exportPremiumKWH"`
}

// EnergyTariffAt returns the grid energy tariff for the given wall-clock time.
func (r CostRates) EnergyTariffAt(ts time.Time) float64 {
	wd := ts.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return r.EnergyTariffNightKWH
	}
	h := ts.Hour()
	if h >= r.DayStartHour && h < r.DayEndHour {
		return r.EnergyTariffDayKWH
	}
	return r.EnergyTariffNightKWH
}

// ImportCostKWH is the full cost of one imported kWh at the given time.
func (r CostRates) ImportCostKWH(ts time.Time, spotKWH float64) float64 {
	return spotKWH + r.EnergyTariffAt(ts) + r.ConsumptionTaxKWH
}

// ExportCreditKWH is the credit for one exported kWh.
func (r CostRates) ExportCreditKWH(spotKWH float64) float64 {
	return spotKWH + r.ExportPremiumKWH
}

func (r CostRates) Validate() error {
	if r.DayStartHour < 0 || r.DayEndHour > 24 || r.DayStartHour >= r.DayEndHour {
		return fmt.Errorf("%w: day tariff hours must satisfy 0 <= start < end <= 24, got [%d, %d)",
			ErrInvalidConfig, r.DayStartHour, r.DayEndHour)
	}
	if r.EnergyTariffDayKWH < 0 || r.EnergyTariffNightKWH < 0 || r.ConsumptionTaxKWH < 0 {
		return fmt.Errorf("%w: tariff and tax rates must be >= 0", ErrInvalidConfig)
	}
	return nil
}
