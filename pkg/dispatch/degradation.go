package dispatch

import "github.com/klausv/battopt/pkg/types"

// The wear model is dual-mode. Cyclic degradation is proportional to the
// absolute depth-of-discharge of each step:
//
//	DP_cyc(t) = (EOL% / cycleLife) * |ΔE(t)| / E_nom
//
// Calendar degradation accrues at a constant rate per step regardless of
// activity:
//
//	dp_cal = EOL% / (calendarLifeYears * 8760h) * Δt
//
// The per-step total is the larger of the two, encoded linearly as
// DP_total >= DP_cyc and DP_total >= dp_cal with a positive cost coefficient
// on DP_total, so minimization pins it to the max. A runtime max() would
// break the convex formulation and force a MILP, so the two inequalities are
// load-bearing.
type degradationTerms struct {
	cyclicPerDOD    float64 // percent per unit of absolute DOD
	calendarPerStep float64 // percent per timestep
	costPerPercent  float64 // currency per percent of wear
}

func newDegradationTerms(d types.DegradationConfig, b types.BatteryConfig, stepHours float64) degradationTerms {
	return degradationTerms{
		cyclicPerDOD:    d.CyclicPerDOD(),
		calendarPerStep: d.CalendarPerStep(stepHours),
		costPerPercent:  d.CostPerPercent(b.CapacityKWH),
	}
}
