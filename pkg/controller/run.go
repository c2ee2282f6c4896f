package controller

import (
	"context"
	"errors"
	"log/slog"

	"github.com/klausv/battopt/pkg/log"
	"github.com/klausv/battopt/pkg/timeseries"
	"github.com/klausv/battopt/pkg/types"
)

// Trajectory is the realized outcome of a full rolling run.
type Trajectory struct {
	Steps      []types.StepRecord `json:"steps"`
	FinalState types.BatteryState `json:"finalState"`
}

// TotalCost sums the realized energy and tariff cost over the run.
func (t Trajectory) TotalCost() float64 {
	var total float64
	for _, s := range t.Steps {
		total += s.Cost()
	}
	return total
}

// Failures counts the steps that fell back to the zero-power action.
func (t Trajectory) Failures() int {
	var n int
	for _, s := range t.Steps {
		if !s.Success {
			n++
		}
	}
	return n
}

// Run drains the source, stepping once per window, and returns the realized
// trajectory. Shortened windows at the end of the series are skipped unless
// the config allows them. A partial trajectory comes back alongside any error.
func (c *Controller) Run(ctx context.Context, state types.BatteryState, src timeseries.Source) (Trajectory, error) {
	if err := state.ValidateFor(c.cfg.Battery); err != nil {
		return Trajectory{FinalState: state}, err
	}

	traj := Trajectory{FinalState: state}
	for {
		w, err := src.Next(ctx)
		switch {
		case errors.Is(err, timeseries.ErrExhausted):
			log.Ctx(ctx).InfoContext(ctx, "rolling run finished",
				slog.Int("steps", len(traj.Steps)),
				slog.Int("failures", traj.Failures()),
				slog.Float64("totalCost", traj.TotalCost()),
			)
			return traj, nil
		case errors.Is(err, timeseries.ErrIncompleteWindow):
			if !c.cfg.AllowIncompleteFinal {
				log.Ctx(ctx).InfoContext(ctx, "stopping before incomplete final window",
					slog.Int("steps", len(traj.Steps)),
				)
				return traj, nil
			}
		case err != nil:
			return traj, err
		}

		next, rec, err := c.Step(ctx, traj.FinalState, w)
		if err != nil {
			return traj, err
		}
		traj.Steps = append(traj.Steps, rec)
		traj.FinalState = next
	}
}
