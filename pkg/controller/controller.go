// Package controller runs the rolling-horizon optimization loop. Each step it
// solves one forecast window, applies only the first timestep's decision and
// carries the battery state into the next window.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/klausv/battopt/pkg/dispatch"
	"github.com/klausv/battopt/pkg/log"
	"github.com/klausv/battopt/pkg/tariff"
	"github.com/klausv/battopt/pkg/types"
)

const (
	defaultMaxSolveAttempts = 3
	defaultCurtailPenaltyKW = 0.01
)

// Config configures the rolling optimizer.
type Config struct {
	Battery     types.BatteryConfig     `json:"battery"`
	Grid        types.GridConfig        `json:"grid"`
	Degradation types.DegradationConfig `json:"degradation"`
	Rates       types.CostRates         `json:"rates"`
	Schedule    tariff.Schedule         `json:"schedule"`

	// Horizon is the number of timesteps per window.
	Horizon int `json:"horizon"`

	// MaxSolveAttempts bounds solver retries per window before falling back to
	// a zero-power action. Zero means the default of 3.
	MaxSolveAttempts int `json:"maxSolveAttempts"`

	// CurtailPenaltyKW is the small objective penalty per curtailed kW that
	// breaks ties in favor of exporting. Zero means the default of 0.01.
	CurtailPenaltyKW float64 `json:"curtailPenaltyKW"`

	// AllowIncompleteFinal lets Run optimize the shortened windows at the end
	// of a series instead of stopping early.
	AllowIncompleteFinal bool `json:"allowIncompleteFinal"`
}

func (c Config) validate() error {
	if err := c.Battery.Validate(); err != nil {
		return err
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if err := c.Degradation.Validate(); err != nil {
		return err
	}
	if err := c.Rates.Validate(); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if !c.Schedule.Covers(c.Grid.ImportLimitKW) {
		return fmt.Errorf("%w: tariff schedule tops out below the grid import limit of %v kW",
			types.ErrInvalidConfig, c.Grid.ImportLimitKW)
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("%w: horizon must be > 0, got %d", types.ErrInvalidConfig, c.Horizon)
	}
	if c.MaxSolveAttempts < 0 || c.CurtailPenaltyKW < 0 {
		return fmt.Errorf("%w: solve attempts and curtail penalty must be >= 0", types.ErrInvalidConfig)
	}
	return nil
}

// Controller is the rolling-horizon orchestrator.
type Controller struct {
	cfg Config

	// solve is swappable for tests.
	solve func(dispatch.Inputs) (types.OptimizationResult, error)
}

// New validates the config once up front so the rolling loop never has to.
func New(cfg Config) (*Controller, error) {
	if cfg.MaxSolveAttempts == 0 {
		cfg.MaxSolveAttempts = defaultMaxSolveAttempts
	}
	if cfg.CurtailPenaltyKW == 0 {
		cfg.CurtailPenaltyKW = defaultCurtailPenaltyKW
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg, solve: dispatch.Solve}, nil
}

// Step solves one window and applies its first timestep. It returns the new
// battery state and the applied step record. The input state is never
// mutated; on a solver failure the returned record carries the zero-power
// fallback action and Success=false.
func (c *Controller) Step(ctx context.Context, state types.BatteryState, w types.TimeWindow) (types.BatteryState, types.StepRecord, error) {
	// Enforce the configured horizon here, not just in the window source.
	// Short windows pass only when incomplete finals are permitted; longer
	// ones never do.
	horizon := c.cfg.Horizon
	if c.cfg.AllowIncompleteFinal && w.Steps() > 0 && w.Steps() < c.cfg.Horizon {
		horizon = w.Steps()
	}
	if err := w.Validate(horizon); err != nil {
		return state, types.StepRecord{}, err
	}

	ctx = log.WithAttrs(ctx, slog.Time("windowStart", w.Start), slog.Int("steps", w.Steps()))

	// A new billing month resets the peak baseline.
	if state.MonthStart.IsZero() || !tariff.SameMonth(w.Start, state.MonthStart) {
		log.Ctx(ctx).InfoContext(ctx, "billing month rollover",
			slog.Time("monthStart", tariff.MonthStart(w.Start)),
			slog.Float64("closedPeakKW", state.PeakKW),
		)
		state.PeakKW = 0
		state.MonthStart = tariff.MonthStart(w.Start)
	}

	in := dispatch.Inputs{
		Window:           w,
		Battery:          c.cfg.Battery,
		Grid:             c.cfg.Grid,
		State:            state,
		Degradation:      c.cfg.Degradation,
		Rates:            c.cfg.Rates,
		Schedule:         c.cfg.Schedule,
		Horizon:          horizon,
		CurtailPenaltyKW: c.cfg.CurtailPenaltyKW,
	}

	log.Ctx(ctx).DebugContext(ctx, "solving window",
		slog.Float64("energyKWH", state.EnergyKWH),
		slog.Float64("peakKW", state.PeakKW),
	)

	var res types.OptimizationResult
	var err error
	for attempt := 1; attempt <= c.cfg.MaxSolveAttempts; attempt++ {
		res, err = c.solve(in)
		if err == nil {
			break
		}
		// Input errors will not get better on retry.
		if errors.Is(err, types.ErrInvalidConfig) || errors.Is(err, types.ErrInvalidWindow) {
			return state, types.StepRecord{}, err
		}
		log.Ctx(ctx).WarnContext(ctx, "window solve failed",
			slog.Int("attempt", attempt),
			slog.Int("maxAttempts", c.cfg.MaxSolveAttempts),
			slog.Any("error", err),
		)
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "window unsolvable, applying zero-power fallback", slog.Any("error", err))
		return c.fallbackStep(state, w, err)
	}

	next, rec := c.applyFirst(state, w, res)
	log.Ctx(ctx).DebugContext(ctx, "applied first step",
		slog.Float64("setpointKW", rec.SetpointKW),
		slog.Float64("importKW", rec.ImportKW),
		slog.Float64("energyKWH", next.EnergyKWH),
		slog.Float64("peakKW", next.PeakKW),
		slog.Float64("objective", res.Objective),
	)
	return next, rec, nil
}

// applyFirst advances the state by the solved window's first timestep.
func (c *Controller) applyFirst(state types.BatteryState, w types.TimeWindow, res types.OptimizationResult) (types.BatteryState, types.StepRecord) {
	nextEnergy := res.TerminalEnergyKWH
	if len(res.EnergyKWH) > 1 {
		nextEnergy = res.EnergyKWH[1]
	}
	nextPeak := math.Max(state.PeakKW, res.ImportKW[0])

	next := types.BatteryState{
		EnergyKWH:  nextEnergy,
		PeakKW:     nextPeak,
		MonthStart: state.MonthStart,
	}

	rec := types.StepRecord{
		Timestamp:   w.Start,
		SetpointKW:  res.ChargeKW[0] - res.DischargeKW[0],
		ChargeKW:    res.ChargeKW[0],
		DischargeKW: res.DischargeKW[0],
		ImportKW:    res.ImportKW[0],
		ExportKW:    res.ExportKW[0],
		CurtailKW:   res.CurtailKW[0],
		EnergyKWH:   nextEnergy,
		PeakKW:      nextPeak,
		PVKW:        w.PVKW[0],
		LoadKW:      w.LoadKW[0],
		PriceKWH:    w.PriceKWH[0],
		EnergyCost: res.ImportKW[0]*w.StepHours*c.cfg.Rates.ImportCostKWH(w.Start, w.PriceKWH[0]) -
			res.ExportKW[0]*w.StepHours*c.cfg.Rates.ExportCreditKWH(w.PriceKWH[0]),
		TariffCost: c.cfg.Schedule.MarginalCost(state.PeakKW, nextPeak),
		Objective:  res.Objective,
		Success:    true,
	}
	return next, rec
}

// fallbackStep applies a zero-power battery action when no solve succeeded.
// The grid still has to carry the site's net load, so import, export and the
// realized peak reflect the uncontrolled flows.
func (c *Controller) fallbackStep(state types.BatteryState, w types.TimeWindow, solveErr error) (types.BatteryState, types.StepRecord, error) {
	var imp, exp, curtail float64
	net := w.LoadKW[0] - w.PVKW[0]
	if net > 0 {
		imp = net
	} else {
		exp = math.Min(-net, c.cfg.Grid.ExportLimitKW)
		curtail = -net - exp
	}
	nextPeak := math.Max(state.PeakKW, imp)

	next := types.BatteryState{
		EnergyKWH:  state.EnergyKWH,
		PeakKW:     nextPeak,
		MonthStart: state.MonthStart,
	}
	rec := types.StepRecord{
		Timestamp:  w.Start,
		ImportKW:   imp,
		ExportKW:   exp,
		CurtailKW:  curtail,
		EnergyKWH:  state.EnergyKWH,
		PeakKW:     nextPeak,
		PVKW:       w.PVKW[0],
		LoadKW:     w.LoadKW[0],
		PriceKWH:   w.PriceKWH[0],
		EnergyCost: imp*w.StepHours*c.cfg.Rates.ImportCostKWH(w.Start, w.PriceKWH[0]) - exp*w.StepHours*c.cfg.Rates.ExportCreditKWH(w.PriceKWH[0]),
		TariffCost: c.cfg.Schedule.MarginalCost(state.PeakKW, nextPeak),
		Success:    false,
		Message:    solveErr.Error(),
	}
	return next, rec, nil
}
