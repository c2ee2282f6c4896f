package dispatch

import (
	"github.com/klausv/battopt/pkg/lp"
	"github.com/klausv/battopt/pkg/types"
)

// Extract maps a solved LP back into the window's result arrays. The reported
// objective is the window's marginal cost: the solver's objective minus the
// tariff cost already incurred by the carried-over monthly peak.
func Extract(in Inputs, lay Layout, res lp.Result) types.OptimizationResult {
	out := types.OptimizationResult{
		Success:           true,
		Objective:         res.Objective - in.Schedule.CostAtPeak(in.State.PeakKW),
		ChargeKW:          make([]float64, lay.T),
		DischargeKW:       make([]float64, lay.T),
		ImportKW:          make([]float64, lay.T),
		ExportKW:          make([]float64, lay.T),
		EnergyKWH:         make([]float64, lay.T),
		CurtailKW:         make([]float64, lay.T),
		CyclicDegPercent:  make([]float64, lay.T),
		TotalDegPercent:   make([]float64, lay.T),
		PeakKW:            res.X[lay.Peak()],
		TerminalEnergyKWH: res.X[lay.TerminalEnergy()],
	}
	for t := 0; t < lay.T; t++ {
		out.ChargeKW[t] = clampTiny(res.X[lay.Charge(t)])
		out.DischargeKW[t] = clampTiny(res.X[lay.Discharge(t)])
		out.ImportKW[t] = clampTiny(res.X[lay.Import(t)])
		out.ExportKW[t] = clampTiny(res.X[lay.Export(t)])
		out.EnergyKWH[t] = res.X[lay.Energy(t)]
		out.CurtailKW[t] = clampTiny(res.X[lay.Curtail(t)])
		out.CyclicDegPercent[t] = clampTiny(res.X[lay.CyclicDeg(t)])
		out.TotalDegPercent[t] = clampTiny(res.X[lay.TotalDeg(t)])
	}
	return out
}

// clampTiny snaps solver round-off below zero back to zero.
func clampTiny(v float64) float64 {
	if v < 0 && v > -1e-9 {
		return 0
	}
	return v
}

// Solve builds and solves one window. Input validation errors come back
// wrapped in types.ErrInvalidWindow or types.ErrInvalidConfig; solver
// failures in lp.ErrInfeasible, lp.ErrUnbounded or lp.ErrSolver.
func Solve(in Inputs) (types.OptimizationResult, error) {
	p, lay, err := Build(in)
	if err != nil {
		return types.OptimizationResult{}, err
	}
	res, err := lp.Solve(p)
	if err != nil {
		return types.OptimizationResult{}, err
	}
	return Extract(in, lay, res), nil
}
