package types

import (
	"fmt"
	"time"
)

// BatteryState is the cross-window state carried by the orchestrator.
// It is replaced (never mutated in place) after each window solve, so a failed
// solve leaves the previous state untouched.
type BatteryState struct {
	// EnergyKWH is the current battery energy level.
	EnergyKWH float64 `json:"energyKWH"`
	// PeakKW is the highest grid import realized so far this billing month.
	PeakKW float64 `json:"peakKW"`
	// MonthStart anchors the billing month. Zero until the first window.
	MonthStart time.Time `json:"monthStart"`
}

// ValidateFor checks that the state is consistent with the battery bounds.
func (s BatteryState) ValidateFor(b BatteryConfig) error {
	if s.EnergyKWH < b.MinEnergyKWH()-1e-9 || s.EnergyKWH > b.MaxEnergyKWH()+1e-9 {
		return fmt.Errorf("%w: battery energy %.3f outside [%.3f, %.3f]",
			ErrInvalidConfig, s.EnergyKWH, b.MinEnergyKWH(), b.MaxEnergyKWH())
	}
	if s.PeakKW < 0 {
		return fmt.Errorf("%w: monthly peak must be >= 0, got %v", ErrInvalidConfig, s.PeakKW)
	}
	return nil
}

// OptimizationResult is the outcome of one window solve.
// All slices have the window's length. Power is in kW, energy in kWh,
// degradation in percent, costs in currency.
type OptimizationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`

	// Objective is the window's marginal cost: energy cost minus export
	// revenue, plus wear cost, plus the tariff increase over the peak carried
	// into the window.
	Objective float64 `json:"objective"`

	ChargeKW    []float64 `json:"chargeKW"`
	DischargeKW []float64 `json:"dischargeKW"`
	ImportKW    []float64 `json:"importKW"`
	ExportKW    []float64 `json:"exportKW"`
	EnergyKWH   []float64 `json:"energyKWH"`
	CurtailKW   []float64 `json:"curtailKW"`

	CyclicDegPercent []float64 `json:"cyclicDegPercent"`
	TotalDegPercent  []float64 `json:"totalDegPercent"`

	// PeakKW is the window's relaxed monthly peak (P_peak_new).
	PeakKW float64 `json:"peakKW"`
	// TerminalEnergyKWH is the energy level after the window's final action.
	TerminalEnergyKWH float64 `json:"terminalEnergyKWH"`
}

// StepRecord is one applied first-step decision in the rolling trajectory.
type StepRecord struct {
	Timestamp time.Time `json:"timestamp"`

	// SetpointKW is the control action: charge minus discharge power.
	SetpointKW  float64 `json:"setpointKW"`
	ChargeKW    float64 `json:"chargeKW"`
	DischargeKW float64 `json:"dischargeKW"`
	ImportKW    float64 `json:"importKW"`
	ExportKW    float64 `json:"exportKW"`
	CurtailKW   float64 `json:"curtailKW"`

	// EnergyKWH is the battery energy after applying this step.
	EnergyKWH float64 `json:"energyKWH"`
	// PeakKW is the realized monthly peak after this step.
	PeakKW float64 `json:"peakKW"`

	PVKW     float64 `json:"pvKW"`
	LoadKW   float64 `json:"loadKW"`
	PriceKWH float64 `json:"priceKWH"`

	// EnergyCost is the realized import cost minus export credit for the step.
	EnergyCost float64 `json:"energyCost"`
	// TariffCost is the exact (non-relaxed) marginal tariff cost caused by any
	// peak increase in this step.
	TariffCost float64 `json:"tariffCost"`
	// Objective is the solved window's objective value, for diagnostics.
	Objective float64 `json:"objective"`

	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Cost is the realized economic cost of the step.
func (s StepRecord) Cost() float64 {
	return s.EnergyCost + s.TariffCost
}
