// Package config loads the on-disk run configuration (YAML) and converts it
// into the optimizer's typed configs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/klausv/battopt/pkg/controller"
	"github.com/klausv/battopt/pkg/tariff"
	"github.com/klausv/battopt/pkg/types"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	RunID string     `yaml:"run_id"`
	Data  DataConfig `yaml:"data"`

	Battery     BatteryConfig     `yaml:"battery"`
	Grid        GridConfig        `yaml:"grid"`
	Degradation DegradationConfig `yaml:"degradation"`
	Rates       RatesConfig       `yaml:"rates"`

	// Tariff is the progressive capacity tariff, cheapest bracket first.
	Tariff []tariff.Bracket `yaml:"tariff"`

	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// DataConfig points at the forecast inputs. A CSV path is required; a
// postgres DSN additionally enables the forecast cache.
type DataConfig struct {
	CSV         string `yaml:"csv"`
	PostgresDSN string `yaml:"postgres_dsn"`

	// From/To/StepHours select the cached range when no CSV is given.
	// Timestamps are RFC3339.
	From      string  `yaml:"from"`
	To        string  `yaml:"to"`
	StepHours float64 `yaml:"step_hours"`
}

// Range parses the cached-range selection.
func (d DataConfig) Range() (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, d.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: data.from: %v", types.ErrInvalidConfig, err)
	}
	to, err := time.Parse(time.RFC3339, d.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: data.to: %v", types.ErrInvalidConfig, err)
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: data.to must be after data.from", types.ErrInvalidConfig)
	}
	return from, to, nil
}

type BatteryConfig struct {
	CapacityKWH         float64 `yaml:"capacity_kwh"`
	MaxChargeKW         float64 `yaml:"max_charge_kw"`
	MaxDischargeKW      float64 `yaml:"max_discharge_kw"`
	ChargeEfficiency    float64 `yaml:"charge_efficiency"`
	DischargeEfficiency float64 `yaml:"discharge_efficiency"`
	MinSOC              float64 `yaml:"min_soc"`
	MaxSOC              float64 `yaml:"max_soc"`
	// InitialSOC defaults to min_soc when omitted.
	InitialSOC float64 `yaml:"initial_soc"`
}

type GridConfig struct {
	ImportLimitKW float64 `yaml:"import_limit_kw"`
	ExportLimitKW float64 `yaml:"export_limit_kw"`
}

type DegradationConfig struct {
	CycleLife         float64 `yaml:"cycle_life"`
	CalendarLifeYears float64 `yaml:"calendar_life_years"`
	EOLPercent        float64 `yaml:"eol_percent"`
	BatteryCostKWH    float64 `yaml:"battery_cost_kwh"`
}

type RatesConfig struct {
	EnergyTariffDayKWH   float64 `yaml:"energy_tariff_day_kwh"`
	EnergyTariffNightKWH float64 `yaml:"energy_tariff_night_kwh"`
	DayStartHour         int     `yaml:"day_start_hour"`
	DayEndHour           int     `yaml:"day_end_hour"`
	ConsumptionTaxKWH    float64 `yaml:"consumption_tax_kwh"`
	ExportPremiumKWH     float64 `yaml:"export_premium_kwh"`
}

type OptimizerConfig struct {
	Horizon              int     `yaml:"horizon"`
	MaxSolveAttempts     int     `yaml:"max_solve_attempts"`
	CurtailPenaltyKW     float64 `yaml:"curtail_penalty_kw"`
	AllowIncompleteFinal bool    `yaml:"allow_incomplete_final"`
}

// Load reads, defaults and validates a run configuration.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if c.Battery.InitialSOC == 0 {
		c.Battery.InitialSOC = c.Battery.MinSOC
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks the config by building the controller config it maps to.
func (c *Config) Validate() error {
	if c.RunID == "" {
		return fmt.Errorf("%w: run_id is required", types.ErrInvalidConfig)
	}
	if c.Data.CSV == "" && c.Data.PostgresDSN == "" {
		return fmt.Errorf("%w: data requires a csv path or a postgres dsn", types.ErrInvalidConfig)
	}
	if c.Data.CSV == "" {
		if _, _, err := c.Data.Range(); err != nil {
			return err
		}
		if c.Data.StepHours <= 0 {
			return fmt.Errorf("%w: data.step_hours must be > 0 when loading from the cache", types.ErrInvalidConfig)
		}
	}
	if c.Battery.InitialSOC < c.Battery.MinSOC || c.Battery.InitialSOC > c.Battery.MaxSOC {
		return fmt.Errorf("%w: initial_soc %v outside [%v, %v]",
			types.ErrInvalidConfig, c.Battery.InitialSOC, c.Battery.MinSOC, c.Battery.MaxSOC)
	}
	if _, err := controller.New(c.Controller()); err != nil {
		return err
	}
	return nil
}

// Controller maps the YAML shape onto the orchestrator config.
func (c *Config) Controller() controller.Config {
	return controller.Config{
		Battery: types.BatteryConfig{
			CapacityKWH:         c.Battery.CapacityKWH,
			MaxChargeKW:         c.Battery.MaxChargeKW,
			MaxDischargeKW:      c.Battery.MaxDischargeKW,
			ChargeEfficiency:    c.Battery.ChargeEfficiency,
			DischargeEfficiency: c.Battery.DischargeEfficiency,
			MinSOC:              c.Battery.MinSOC,
			MaxSOC:              c.Battery.MaxSOC,
		},
		Grid: types.GridConfig{
			ImportLimitKW: c.Grid.ImportLimitKW,
			ExportLimitKW: c.Grid.ExportLimitKW,
		},
		Degradation: types.DegradationConfig{
			CycleLife:         c.Degradation.CycleLife,
			CalendarLifeYears: c.Degradation.CalendarLifeYears,
			EOLPercent:        c.Degradation.EOLPercent,
			BatteryCostKWH:    c.Degradation.BatteryCostKWH,
		},
		Rates: types.CostRates{
			EnergyTariffDayKWH:   c.Rates.EnergyTariffDayKWH,
			EnergyTariffNightKWH: c.Rates.EnergyTariffNightKWH,
			DayStartHour:         c.Rates.DayStartHour,
			DayEndHour:           c.Rates.DayEndHour,
			ConsumptionTaxKWH:    c.Rates.ConsumptionTaxKWH,
			ExportPremiumKWH:     c.Rates.ExportPremiumKWH,
		},
		Schedule:             tariff.Schedule{Brackets: c.Tariff},
		Horizon:              c.Optimizer.Horizon,
		MaxSolveAttempts:     c.Optimizer.MaxSolveAttempts,
		CurtailPenaltyKW:     c.Optimizer.CurtailPenaltyKW,
		AllowIncompleteFinal: c.Optimizer.AllowIncompleteFinal,
	}
}

// InitialState is the battery state a fresh run starts from.
func (c *Config) InitialState() types.BatteryState {
	return types.BatteryState{
		EnergyKWH: c.Battery.InitialSOC * c.Battery.CapacityKWH,
	}
}
