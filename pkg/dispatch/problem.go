// Package dispatch assembles and solves one planning window's linear program:
// charge/discharge/grid flows per timestep, battery dynamics, dual-mode wear
// and the progressive power-tariff relaxation, minimized over the window's
// marginal operating cost.
package dispatch

import (
	"fmt"
	"math"

	"github.com/klausv/battopt/pkg/lp"
	"github.com/klausv/battopt/pkg/tariff"
	"github.com/klausv/battopt/pkg/types"
)

// Inputs bundles everything one window solve needs. The window and state are
// read, never modified.
type Inputs struct {
	Window      types.TimeWindow
	Battery     types.BatteryConfig
	Grid        types.GridConfig
	State       types.BatteryState
	Degradation types.DegradationConfig
	Rates       types.CostRates
	Schedule    tariff.Schedule

	// Horizon is the expected window length; 0 accepts any non-empty window
	// (short final windows, when the orchestrator permits them).
	Horizon int

	// CurtailPenaltyKW is the tie-breaking cost of spilling PV, currency/kW.
	// Small enough to never matter economically.
	CurtailPenaltyKW float64
}

func (in Inputs) validate() error {
	if err := in.Battery.Validate(); err != nil {
		return err
	}
	if err := in.Grid.Validate(); err != nil {
		return err
	}
	if err := in.Degradation.Validate(); err != nil {
		return err
	}
	if err := in.Rates.Validate(); err != nil {
		return err
	}
	if err := in.Schedule.Validate(); err != nil {
		return err
	}
	if err := in.State.ValidateFor(in.Battery); err != nil {
		return err
	}
	if !in.Schedule.Covers(in.Grid.ImportLimitKW) {
		return fmt.Errorf("%w: tariff schedule tops out at %.1f kW, below the grid import limit %.1f kW",
			types.ErrInvalidConfig, in.Schedule.TotalWidthKW(), in.Grid.ImportLimitKW)
	}
	if in.CurtailPenaltyKW < 0 {
		return fmt.Errorf("%w: curtailment penalty must be >= 0", types.ErrInvalidConfig)
	}
	return in.Window.Validate(in.Horizon)
}

func inf() float64 { return math.Inf(1) }

// Build assembles the window's LP. The solution, applied only for the first
// timestep, is consistent with a receding-horizon control policy.
func Build(in Inputs) (*lp.Problem, Layout, error) {
	if err := in.validate(); err != nil {
		return nil, Layout{}, err
	}

	w := in.Window
	lay := Layout{T: w.Steps(), B: len(in.Schedule.Brackets)}
	p := lp.NewProblem(lay.NumVariables())

	dt := w.StepHours
	etaC := in.Battery.ChargeEfficiency
	etaD := in.Battery.DischargeEfficiency
	eMin, eMax := in.Battery.MinEnergyKWH(), in.Battery.MaxEnergyKWH()
	deg := newDegradationTerms(in.Degradation, in.Battery, dt)

	// Bounds. Degradation-support variables keep the default [0, inf).
	for t := 0; t < lay.T; t++ {
		p.SetBounds(lay.Charge(t), 0, in.Battery.MaxChargeKW)
		p.SetBounds(lay.Discharge(t), 0, in.Battery.MaxDischargeKW)
		p.SetBounds(lay.Import(t), 0, in.Grid.ImportLimitKW)
		p.SetBounds(lay.Export(t), 0, in.Grid.ExportLimitKW)
		p.SetBounds(lay.Curtail(t), 0, w.PVKW[t])
		if t == 0 {
			// Initial condition: the energy level entering the window.
			p.SetBounds(lay.Energy(0), in.State.EnergyKWH, in.State.EnergyKWH)
		} else {
			p.SetBounds(lay.Energy(t), eMin, eMax)
		}
	}
	p.SetBounds(lay.TerminalEnergy(), eMin, eMax)
	// The new monthly peak can only grow from the carried-over baseline.
	p.SetBounds(lay.Peak(), in.State.PeakKW, inf())
	for i, b := range in.Schedule.Brackets {
		if b.Open {
			p.SetBounds(lay.BracketFill(i), 0, inf())
		} else {
			p.SetBounds(lay.BracketFill(i), 0, 1)
		}
	}

	// Objective: energy cost minus export revenue, wear cost, curtailment
	// tie-breaker and the relaxed tariff cost of the new peak. The baseline
	// tariff already incurred this month is a constant and is subtracted
	// after the solve.
	for t := 0; t < lay.T; t++ {
		ts := w.TimeAt(t)
		p.C[lay.Import(t)] = in.Rates.ImportCostKWH(ts, w.PriceKWH[t]) * dt
		p.C[lay.Export(t)] = -in.Rates.ExportCreditKWH(w.PriceKWH[t]) * dt
		p.C[lay.TotalDeg(t)] = deg.costPerPercent
		p.C[lay.Curtail(t)] = in.CurtailPenaltyKW
	}
	for i, b := range in.Schedule.Brackets {
		p.C[lay.BracketFill(i)] = b.CostPerMonth
	}

	for t := 0; t < lay.T; t++ {
		// Energy balance: import - export - charge + discharge - curtail
		// equals the site's net load.
		p.AddEq(w.LoadKW[t]-w.PVKW[t],
			lp.Term{Col: lay.Import(t), Coef: 1},
			lp.Term{Col: lay.Export(t), Coef: -1},
			lp.Term{Col: lay.Charge(t), Coef: -1},
			lp.Term{Col: lay.Discharge(t), Coef: 1},
			lp.Term{Col: lay.Curtail(t), Coef: -1},
		)

		// Battery dynamics: E(t) = E(t-1) + (eta_c*charge - discharge/eta_d)*dt.
		if t > 0 {
			p.AddEq(0,
				lp.Term{Col: lay.Energy(t), Coef: 1},
				lp.Term{Col: lay.Energy(t - 1), Coef: -1},
				lp.Term{Col: lay.Charge(t - 1), Coef: -etaC * dt},
				lp.Term{Col: lay.Discharge(t - 1), Coef: dt / etaD},
			)
		}

		// Signed energy change of step t's own action, split into
		// non-negative gain/loss magnitudes.
		p.AddEq(0,
			lp.Term{Col: lay.DeltaPlus(t), Coef: 1},
			lp.Term{Col: lay.DeltaMinus(t), Coef: -1},
			lp.Term{Col: lay.Charge(t), Coef: -etaC * dt},
			lp.Term{Col: lay.Discharge(t), Coef: dt / etaD},
		)

		// Absolute depth of discharge as a fraction of nominal capacity.
		p.AddEq(0,
			lp.Term{Col: lay.DOD(t), Coef: 1},
			lp.Term{Col: lay.DeltaPlus(t), Coef: -1 / in.Battery.CapacityKWH},
			lp.Term{Col: lay.DeltaMinus(t), Coef: -1 / in.Battery.CapacityKWH},
		)

		// Cyclic wear is linear in DOD.
		p.AddEq(0,
			lp.Term{Col: lay.CyclicDeg(t), Coef: 1},
			lp.Term{Col: lay.DOD(t), Coef: -deg.cyclicPerDOD},
		)

		// Dual-mode wear: total >= cyclic and total >= calendar floor.
		// Minimization pins total to the larger of the two.
		p.AddLE(0,
			lp.Term{Col: lay.CyclicDeg(t), Coef: 1},
			lp.Term{Col: lay.TotalDeg(t), Coef: -1},
		)
		p.AddLE(-deg.calendarPerStep,
			lp.Term{Col: lay.TotalDeg(t), Coef: -1},
		)

		// Peak tracking: every import stays under the window's peak.
		p.AddLE(0,
			lp.Term{Col: lay.Import(t), Coef: 1},
			lp.Term{Col: lay.Peak(), Coef: -1},
		)
	}

	// Terminal energy closes the dynamics so the final action cannot move
	// energy the battery does not have.
	lastT := lay.T - 1
	p.AddEq(0,
		lp.Term{Col: lay.TerminalEnergy(), Coef: 1},
		lp.Term{Col: lay.Energy(lastT), Coef: -1},
		lp.Term{Col: lay.Charge(lastT), Coef: -etaC * dt},
		lp.Term{Col: lay.Discharge(lastT), Coef: dt / etaD},
	)

	// The peak is priced through the ordered bracket fills.
	peakTerms := make([]lp.Term, 0, lay.B+1)
	peakTerms = append(peakTerms, lp.Term{Col: lay.Peak(), Coef: 1})
	for i, b := range in.Schedule.Brackets {
		peakTerms = append(peakTerms, lp.Term{Col: lay.BracketFill(i), Coef: -b.WidthKW})
	}
	p.AddEq(0, peakTerms...)

	// Brackets fill strictly in order. An open final bracket is exempt (its
	// fill may exceed 1); its higher per-kW rate keeps it last anyway.
	for i := 1; i < lay.B; i++ {
		if in.Schedule.Brackets[i].Open {
			continue
		}
		p.AddLE(0,
			lp.Term{Col: lay.BracketFill(i), Coef: 1},
			lp.Term{Col: lay.BracketFill(i - 1), Coef: -1},
		)
	}

	return p, lay, nil
}
