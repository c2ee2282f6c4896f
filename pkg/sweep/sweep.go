// Package sweep compares battery sizings by running the full rolling
// optimization once per candidate and ranking the realized costs.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/klausv/battopt/pkg/controller"
	"github.com/klausv/battopt/pkg/log"
	"github.com/klausv/battopt/pkg/timeseries"
	"github.com/klausv/battopt/pkg/types"
)

// Candidate is one configuration to evaluate.
type Candidate struct {
	Name   string
	Config controller.Config
}

// Outcome is the result of one candidate's run.
type Outcome struct {
	Name        string                `json:"name"`
	CapacityKWH float64               `json:"capacityKWH"`
	TotalCost   float64               `json:"totalCost"`
	Failures    int                   `json:"failures"`
	Trajectory  controller.Trajectory `json:"-"`
	Err         error                 `json:"-"`
}

// Capacities builds candidates from a base config by swapping in each battery
// capacity. Charge and discharge power scale with capacity so a bigger pack is
// also a faster one, matching how vendors size inverters.
func Capacities(base controller.Config, capacitiesKWH []float64) []Candidate {
	chargeRatio := base.Battery.MaxChargeKW / base.Battery.CapacityKWH
	dischargeRatio := base.Battery.MaxDischargeKW / base.Battery.CapacityKWH

	candidates := make([]Candidate, 0, len(capacitiesKWH))
	for _, cap := range capacitiesKWH {
		cfg := base
		cfg.Battery.CapacityKWH = cap
		cfg.Battery.MaxChargeKW = chargeRatio * cap
		cfg.Battery.MaxDischargeKW = dischargeRatio * cap
		candidates = append(candidates, Candidate{
			Name:   fmt.Sprintf("%.1fkwh", cap),
			Config: cfg,
		})
	}
	return candidates
}

// Run evaluates every candidate over the same forecast series, one goroutine
// per candidate. Each run starts with the battery at its minimum level.
func Run(ctx context.Context, candidates []Candidate, series timeseries.Series) []Outcome {
	outcomes := make([]Outcome, len(candidates))

	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand Candidate) {
			defer wg.Done()
			outcomes[i] = runOne(ctx, cand, series)
		}(i, cand)
	}
	wg.Wait()

	return outcomes
}

func runOne(ctx context.Context, cand Candidate, series timeseries.Series) Outcome {
	out := Outcome{Name: cand.Name, CapacityKWH: cand.Config.Battery.CapacityKWH}
	ctx = log.WithAttrs(ctx, slog.String("candidate", cand.Name))

	c, err := controller.New(cand.Config)
	if err != nil {
		out.Err = err
		return out
	}
	src, err := timeseries.NewSliding(series, cand.Config.Horizon)
	if err != nil {
		out.Err = err
		return out
	}

	state := types.BatteryState{EnergyKWH: cand.Config.Battery.MinEnergyKWH()}
	traj, err := c.Run(ctx, state, src)
	if err != nil {
		out.Err = err
		return out
	}

	out.Trajectory = traj
	out.TotalCost = traj.TotalCost()
	out.Failures = traj.Failures()
	log.Ctx(ctx).InfoContext(ctx, "candidate evaluated",
		slog.Float64("capacityKWH", out.CapacityKWH),
		slog.Float64("totalCost", out.TotalCost),
		slog.Int("failures", out.Failures),
	)
	return out
}

// Rank sorts outcomes by total cost, cheapest first. Failed runs sort last.
func Rank(outcomes []Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		if (outcomes[i].Err == nil) != (outcomes[j].Err == nil) {
			return outcomes[i].Err == nil
		}
		return outcomes[i].TotalCost < outcomes[j].TotalCost
	})
}
