package dispatch

import (
	"math"
	"testing"
	"time"

	"github.com/klausv/battopt/pkg/lp"
	"github.com/klausv/battopt/pkg/tariff"
	"github.com/klausv/battopt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-04 00:00 is a Wednesday; hours 0..5 take the night tariff rate.
var wednesday = time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

func testBattery() types.BatteryConfig {
	return types.BatteryConfig{
		CapacityKWH:         10,
		MaxChargeKW:         5,
		MaxDischargeKW:      5,
		ChargeEfficiency:    0.95,
		DischargeEfficiency: 0.95,
		MinSOC:              0.10,
		MaxSOC:              0.90,
	}
}

func testDegradation() types.DegradationConfig {
	return types.DegradationConfig{
		CycleLife:         5000,
		CalendarLifeYears: 10,
		EOLPercent:        20,
		BatteryCostKWH:    2000,
	}
}

func testRates() types.CostRates {
	return types.CostRates{
		EnergyTariffDayKWH:   0.30,
		EnergyTariffNightKWH: 0.20,
		DayStartHour:         6,
		DayEndHour:           22,
		ConsumptionTaxKWH:    0.16,
		ExportPremiumKWH:     0.05,
	}
}

func testSchedule() tariff.Schedule {
	return tariff.Schedule{Brackets: []tariff.Bracket{
		{WidthKW: 2, CostPerMonth: 136},
		{WidthKW: 3, CostPerMonth: 96},
		{WidthKW: 5, CostPerMonth: 140},
		{WidthKW: 5, CostPerMonth: 200},
		{WidthKW: 5, CostPerMonth: 200, Open: true},
	}}
}

func flatSlice(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func testWindow(pv, load, price []float64) types.TimeWindow {
	return types.TimeWindow{
		Start:     wednesday,
		StepHours: 1,
		PVKW:      pv,
		LoadKW:    load,
		PriceKWH:  price,
	}
}

func testInputs(w types.TimeWindow, state types.BatteryState) Inputs {
	return Inputs{
		Window:           w,
		Battery:          testBattery(),
		Grid:             types.GridConfig{ImportLimitKW: 20, ExportLimitKW: 20},
		State:            state,
		Degradation:      testDegradation(),
		Rates:            testRates(),
		Schedule:         testSchedule(),
		CurtailPenaltyKW: 0.01,
	}
}

func calendarFloor() float64 {
	return testDegradation().CalendarPerStep(1)
}

func TestFlatPriceNoAction(t *testing.T) {
	// Flat price, zero PV, constant load, battery at minimum SOC: there is no
	// arbitrage and no shaveable peak, so the battery must not move.
	T := 6
	w := testWindow(flatSlice(T, 0), flatSlice(T, 10), flatSlice(T, 1.0))
	// Peak already established above the load this month.
	in := testInputs(w, types.BatteryState{EnergyKWH: 1, PeakKW: 15, MonthStart: tariff.MonthStart(wednesday)})

	res, err := Solve(in)
	require.NoError(t, err)
	require.True(t, res.Success)

	for tt := 0; tt < T; tt++ {
		assert.InDelta(t, 0, res.ChargeKW[tt], 1e-6, "step %d should not charge", tt)
		assert.InDelta(t, 0, res.DischargeKW[tt], 1e-6, "step %d should not discharge", tt)
		assert.InDelta(t, 10, res.ImportKW[tt], 1e-6, "step %d import should equal load", tt)
		assert.InDelta(t, 0, res.ExportKW[tt], 1e-6)
		// Calendar wear dominates an idle battery.
		assert.InDelta(t, calendarFloor(), res.TotalDegPercent[tt], 1e-9)
		assert.InDelta(t, 0, res.CyclicDegPercent[tt], 1e-9)
	}

	t.Run("peak stays at baseline", func(t *testing.T) {
		assert.InDelta(t, 15, res.PeakKW, 1e-6)
	})

	t.Run("objective is energy plus calendar wear only", func(t *testing.T) {
		var want float64
		for tt := 0; tt < T; tt++ {
			want += 10 * in.Rates.ImportCostKWH(w.TimeAt(tt), 1.0)
		}
		want += float64(T) * calendarFloor() * in.Degradation.CostPerPercent(in.Battery.CapacityKWH)
		assert.InDelta(t, want, res.Objective, 1e-5)
	})
}

func TestArbitrageChargesCheapHalf(t *testing.T) {
	// Cheap first half, expensive second half. The established monthly peak
	// leaves import headroom, so the optimizer should shift energy.
	T := 8
	price := append(flatSlice(4, 0.1), flatSlice(4, 2.0)...)
	w := testWindow(flatSlice(T, 0), flatSlice(T, 3), price)
	in := testInputs(w, types.BatteryState{EnergyKWH: 1, PeakKW: 15, MonthStart: tariff.MonthStart(wednesday)})

	res, err := Solve(in)
	require.NoError(t, err)

	var chargeCheap, chargeExpensive, dischargeCheap, dischargeExpensive float64
	for tt := 0; tt < 4; tt++ {
		chargeCheap += res.ChargeKW[tt]
		dischargeCheap += res.DischargeKW[tt]
	}
	for tt := 4; tt < 8; tt++ {
		chargeExpensive += res.ChargeKW[tt]
		dischargeExpensive += res.DischargeKW[tt]
	}

	assert.Greater(t, chargeCheap, 1.0, "should charge during the cheap half")
	assert.Greater(t, dischargeExpensive, 1.0, "should discharge during the expensive half")
	assert.InDelta(t, 0, chargeExpensive, 1e-6)
	assert.InDelta(t, 0, dischargeCheap, 1e-6)

	t.Run("beats the zero-action baseline", func(t *testing.T) {
		var baseline float64
		for tt := 0; tt < T; tt++ {
			baseline += 3 * in.Rates.ImportCostKWH(w.TimeAt(tt), price[tt])
		}
		baseline += float64(T) * calendarFloor() * in.Degradation.CostPerPercent(in.Battery.CapacityKWH)
		assert.Less(t, res.Objective, baseline)
	})

	t.Run("energy balance holds at every step", func(t *testing.T) {
		for tt := 0; tt < T; tt++ {
			lhs := res.ImportKW[tt] - res.ExportKW[tt] - res.ChargeKW[tt] + res.DischargeKW[tt] - res.CurtailKW[tt]
			assert.InDelta(t, w.LoadKW[tt]-w.PVKW[tt], lhs, 1e-6, "step %d", tt)
		}
	})

	t.Run("SOC stays within bounds", func(t *testing.T) {
		eMin, eMax := in.Battery.MinEnergyKWH(), in.Battery.MaxEnergyKWH()
		for tt := 0; tt < T; tt++ {
			assert.GreaterOrEqual(t, res.EnergyKWH[tt], eMin-1e-6)
			assert.LessOrEqual(t, res.EnergyKWH[tt], eMax+1e-6)
		}
		assert.GreaterOrEqual(t, res.TerminalEnergyKWH, eMin-1e-6)
		assert.LessOrEqual(t, res.TerminalEnergyKWH, eMax+1e-6)
	})

	t.Run("total degradation is the dual-mode max", func(t *testing.T) {
		floor := calendarFloor()
		for tt := 0; tt < T; tt++ {
			cyc := res.CyclicDegPercent[tt]
			tot := res.TotalDegPercent[tt]
			assert.GreaterOrEqual(t, tot, cyc-1e-9, "step %d", tt)
			assert.GreaterOrEqual(t, tot, floor-1e-9, "step %d", tt)
			assert.InDelta(t, math.Max(cyc, floor), tot, 1e-6, "step %d", tt)
		}
	})

	t.Run("idempotent re-solve", func(t *testing.T) {
		again, err := Solve(in)
		require.NoError(t, err)
		assert.InDelta(t, res.Objective, again.Objective, 1e-8)
	})
}

func TestLoadSpikeSetsPeak(t *testing.T) {
	// A spike at the first step with an empty battery cannot be shaved; the
	// new peak must cover it and its tariff cost must match the bracket table.
	load := []float64{12, 2, 2, 2}
	w := testWindow(flatSlice(4, 0), load, flatSlice(4, 1.0))
	in := testInputs(w, types.BatteryState{EnergyKWH: 1, PeakKW: 0, MonthStart: tariff.MonthStart(wednesday)})

	res, err := Solve(in)
	require.NoError(t, err)

	assert.InDelta(t, 12, res.PeakKW, 1e-6)

	// 12 kW fills 2+3+5 kW fully plus 2 kW of the fourth bracket.
	wantTariff := 136.0 + 96 + 140 + 200*2.0/5.0
	assert.InDelta(t, wantTariff, in.Schedule.MarginalCost(0, 12), 1e-9)

	t.Run("objective matches manual accounting", func(t *testing.T) {
		var energy float64
		for tt, l := range load {
			energy += l * in.Rates.ImportCostKWH(w.TimeAt(tt), 1.0)
		}
		wear := 4 * calendarFloor() * in.Degradation.CostPerPercent(in.Battery.CapacityKWH)
		assert.InDelta(t, energy+wantTariff+wear, res.Objective, 1e-5)
	})

	t.Run("carried baseline pays only the increase", func(t *testing.T) {
		withBase := in
		withBase.State = types.BatteryState{EnergyKWH: 1, PeakKW: 5, MonthStart: tariff.MonthStart(wednesday)}
		res2, err := Solve(withBase)
		require.NoError(t, err)

		var energy float64
		for tt, l := range load {
			energy += l * in.Rates.ImportCostKWH(w.TimeAt(tt), 1.0)
		}
		wear := 4 * calendarFloor() * in.Degradation.CostPerPercent(in.Battery.CapacityKWH)
		wantMarginal := in.Schedule.MarginalCost(5, 12)
		assert.InDelta(t, energy+wantMarginal+wear, res2.Objective, 1e-5)
	})
}

func TestBracketFillsAreOrdered(t *testing.T) {
	load := []float64{9, 3, 1, 4}
	w := testWindow(flatSlice(4, 0), load, flatSlice(4, 1.0))
	in := testInputs(w, types.BatteryState{EnergyKWH: 1, PeakKW: 0, MonthStart: tariff.MonthStart(wednesday)})
	// Strictly increasing per-kW rates, so the continuous relaxation fills
	// brackets in order and reproduces the prorated cost exactly.
	in.Schedule = tariff.Schedule{Brackets: []tariff.Bracket{
		{WidthKW: 2, CostPerMonth: 40},
		{WidthKW: 3, CostPerMonth: 90},
		{WidthKW: 5, CostPerMonth: 200},
		{WidthKW: 5, CostPerMonth: 300},
		{WidthKW: 5, CostPerMonth: 300, Open: true},
	}}

	p, lay, err := Build(in)
	require.NoError(t, err)
	res, err := lp.Solve(p)
	require.NoError(t, err)

	prev := 1.0
	for i := 0; i < lay.B; i++ {
		fill := res.X[lay.BracketFill(i)]
		if !in.Schedule.Brackets[i].Open {
			assert.GreaterOrEqual(t, fill, -1e-9)
			assert.LessOrEqual(t, fill, 1+1e-9)
			assert.LessOrEqual(t, fill, prev+1e-9, "bracket %d fill exceeds bracket %d", i, i-1)
			prev = fill
		}
	}

	// The relaxed bracket cost must reproduce the schedule's cost table.
	var filled float64
	for i, b := range in.Schedule.Brackets {
		filled += b.CostPerMonth * res.X[lay.BracketFill(i)]
	}
	assert.InDelta(t, in.Schedule.CostAtPeak(res.X[lay.Peak()]), filled, 1e-6)
}

func TestCurtailmentOnlyWhenForced(t *testing.T) {
	// Full battery, PV far above load and export capacity: the surplus has
	// nowhere to go and must be curtailed, but exports fill up first.
	T := 3
	w := testWindow(flatSlice(T, 30), flatSlice(T, 2), flatSlice(T, 1.0))
	in := testInputs(w, types.BatteryState{EnergyKWH: 9, PeakKW: 0, MonthStart: tariff.MonthStart(wednesday)})
	in.Grid.ExportLimitKW = 5

	res, err := Solve(in)
	require.NoError(t, err)

	for tt := 0; tt < T; tt++ {
		assert.InDelta(t, 5, res.ExportKW[tt], 1e-6, "export should hit the grid limit before curtailing")
		assert.Greater(t, res.CurtailKW[tt], 20.0)
		assert.InDelta(t, 0, res.ImportKW[tt], 1e-6)
	}
}

func TestBuildRejectsBadInputs(t *testing.T) {
	T := 4
	w := testWindow(flatSlice(T, 0), flatSlice(T, 2), flatSlice(T, 1.0))
	state := types.BatteryState{EnergyKWH: 1, PeakKW: 0, MonthStart: tariff.MonthStart(wednesday)}

	t.Run("incomplete window", func(t *testing.T) {
		in := testInputs(w, state)
		in.Horizon = 8
		_, _, err := Build(in)
		assert.ErrorIs(t, err, types.ErrInvalidWindow)
	})

	t.Run("misaligned series", func(t *testing.T) {
		bad := w
		bad.PVKW = bad.PVKW[:2]
		_, _, err := Build(testInputs(bad, state))
		assert.ErrorIs(t, err, types.ErrInvalidWindow)
	})

	t.Run("negative capacity", func(t *testing.T) {
		in := testInputs(w, state)
		in.Battery.CapacityKWH = -5
		_, _, err := Build(in)
		assert.ErrorIs(t, err, types.ErrInvalidConfig)
	})

	t.Run("schedule below grid limit", func(t *testing.T) {
		in := testInputs(w, state)
		in.Schedule = tariff.Schedule{Brackets: []tariff.Bracket{{WidthKW: 2, CostPerMonth: 100}}}
		_, _, err := Build(in)
		assert.ErrorIs(t, err, types.ErrInvalidConfig)
	})

	t.Run("state outside battery bounds", func(t *testing.T) {
		in := testInputs(w, types.BatteryState{EnergyKWH: 25})
		_, _, err := Build(in)
		assert.ErrorIs(t, err, types.ErrInvalidConfig)
	})
}
