package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBattery() BatteryConfig {
	return BatteryConfig{
		CapacityKWH:         13.5,
		MaxChargeKW:         5,
		MaxDischargeKW:      5,
		ChargeEfficiency:    0.95,
		DischargeEfficiency: 0.95,
		MinSOC:              0.10,
		MaxSOC:              0.90,
	}
}

func TestBatteryConfigValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validBattery().Validate())
	})

	t.Run("negative capacity", func(t *testing.T) {
		b := validBattery()
		b.CapacityKWH = -1
		err := b.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("efficiency over one", func(t *testing.T) {
		b := validBattery()
		b.ChargeEfficiency = 1.2
		assert.ErrorIs(t, b.Validate(), ErrInvalidConfig)
	})

	t.Run("soc bounds inverted", func(t *testing.T) {
		b := validBattery()
		b.MinSOC = 0.9
		b.MaxSOC = 0.1
		assert.ErrorIs(t, b.Validate(), ErrInvalidConfig)
	})

	t.Run("energy bounds", func(t *testing.T) {
		b := validBattery()
		assert.InDelta(t, 1.35, b.MinEnergyKWH(), 1e-9)
		assert.InDelta(t, 12.15, b.MaxEnergyKWH(), 1e-9)
	})
}

func TestBatteryStateValidateFor(t *testing.T) {
	b := validBattery()

	t.Run("within bounds", func(t *testing.T) {
		s := BatteryState{EnergyKWH: 5}
		assert.NoError(t, s.ValidateFor(b))
	})

	t.Run("below minimum", func(t *testing.T) {
		s := BatteryState{EnergyKWH: 1.0}
		assert.ErrorIs(t, s.ValidateFor(b), ErrInvalidConfig)
	})

	t.Run("negative peak", func(t *testing.T) {
		s := BatteryState{EnergyKWH: 5, PeakKW: -1}
		assert.ErrorIs(t, s.ValidateFor(b), ErrInvalidConfig)
	})
}

func TestDegradationConfig(t *testing.T) {
	d := DegradationConfig{
		CycleLife:         5000,
		CalendarLifeYears: 10,
		EOLPercent:        20,
		BatteryCostKWH:    3000,
	}
	require.NoError(t, d.Validate())

	t.Run("cyclic per DOD", func(t *testing.T) {
		assert.InDelta(t, 0.004, d.CyclicPerDOD(), 1e-12)
	})

	t.Run("calendar per step", func(t *testing.T) {
		// 20% over 10 years, hourly steps
		assert.InDelta(t, 20.0/(10*8760), d.CalendarPerStep(1.0), 1e-12)
		// quarter-hour steps accrue a quarter of that
		assert.InDelta(t, 20.0/(10*8760)/4, d.CalendarPerStep(0.25), 1e-12)
	})

	t.Run("cost per percent", func(t *testing.T) {
		// 13.5 kWh * 3000/kWh spread over 20 percentage points
		assert.InDelta(t, 13.5*3000/20, d.CostPerPercent(13.5), 1e-9)
	})

	t.Run("invalid", func(t *testing.T) {
		bad := d
		bad.CycleLife = 0
		assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
		bad = d
		bad.EOLPercent = 0
		assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
	})
}

func TestCostRatesEnergyTariffAt(t *testing.T) {
	r := CostRates{
		EnergyTariffDayKWH:   0.30,
		EnergyTariffNightKWH: 0.20,
		DayStartHour:         6,
		DayEndHour:           22,
		ConsumptionTaxKWH:    0.16,
		ExportPremiumKWH:     0.05,
	}
	require.NoError(t, r.Validate())

	// 2026-03-04 is a Wednesday
	wednesdayNoon := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	wednesdayNight := time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC)
	saturdayNoon := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	t.Run("weekday day rate", func(t *testing.T) {
		assert.Equal(t, 0.30, r.EnergyTariffAt(wednesdayNoon))
	})

	t.Run("weekday night rate", func(t *testing.T) {
		assert.Equal(t, 0.20, r.EnergyTariffAt(wednesdayNight))
	})

	t.Run("weekend uses night rate", func(t *testing.T) {
		assert.Equal(t, 0.20, r.EnergyTariffAt(saturdayNoon))
	})

	t.Run("boundary hours", func(t *testing.T) {
		dayStart := time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC)
		dayEnd := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)
		assert.Equal(t, 0.30, r.EnergyTariffAt(dayStart))
		assert.Equal(t, 0.20, r.EnergyTariffAt(dayEnd))
	})

	t.Run("import cost stacks components", func(t *testing.T) {
		assert.InDelta(t, 1.0+0.30+0.16, r.ImportCostKWH(wednesdayNoon, 1.0), 1e-12)
	})

	t.Run("export credit adds premium", func(t *testing.T) {
		assert.InDelta(t, 1.05, r.ExportCreditKWH(1.0), 1e-12)
	})

	t.Run("invalid hours", func(t *testing.T) {
		bad := r
		bad.DayStartHour = 23
		bad.DayEndHour = 6
		assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
	})
}

func TestTimeWindowValidate(t *testing.T) {
	start := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	w := TimeWindow{
		Start:     start,
		StepHours: 1,
		PVKW:      []float64{0, 0, 0, 0},
		LoadKW:    []float64{1, 1, 1, 1},
		PriceKWH:  []float64{1, 1, 1, 1},
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, w.Validate(4))
		assert.NoError(t, w.Validate(0))
	})

	t.Run("horizon mismatch", func(t *testing.T) {
		assert.ErrorIs(t, w.Validate(8), ErrInvalidWindow)
	})

	t.Run("misaligned series", func(t *testing.T) {
		bad := w
		bad.LoadKW = bad.LoadKW[:3]
		assert.ErrorIs(t, bad.Validate(4), ErrInvalidWindow)
	})

	t.Run("empty", func(t *testing.T) {
		bad := w
		bad.PVKW = nil
		bad.LoadKW = nil
		bad.PriceKWH = nil
		assert.ErrorIs(t, bad.Validate(0), ErrInvalidWindow)
	})

	t.Run("time at step", func(t *testing.T) {
		assert.Equal(t, start.Add(2*time.Hour), w.TimeAt(2))
	})
}
