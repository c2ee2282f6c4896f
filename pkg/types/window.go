package types

import (
	"fmt"
	"time"
)

// TimeWindow is one planning window of aligned per-step series.
// Units:
// - StepHours: hours per step (e.g. 0.25 for 15-minute resolution)
// - PVKW / LoadKW: kW average over the step
// - PriceKWH: spot price in currency/kWh
//
// A window is immutable once handed to the problem builder.
type TimeWindow struct {
	Start     time.Time `json:"start"`
	StepHours float64   `json:"stepHours"`
	PVKW      []float64 `json:"pvKW"`
	LoadKW    []float64 `json:"loadKW"`
	PriceKWH  []float64 `json:"priceKWH"`
}

// Steps returns the number of timesteps in the window.
func (w TimeWindow) Steps() int {
	return len(w.PriceKWH)
}

// TimeAt returns the wall-clock start of step t.
func (w TimeWindow) TimeAt(t int) time.Time {
	return w.Start.Add(time.Duration(float64(t) * w.StepHours * float64(time.Hour)))
}

// Validate checks the window against the requested horizon. A horizon of 0
// accepts any non-empty window (used when short final windows are permitted).
func (w TimeWindow) Validate(horizon int) error {
	if w.StepHours <= 0 {
		return fmt.Errorf("%w: step duration must be > 0, got %v", ErrInvalidWindow, w.StepHours)
	}
	if w.Start.IsZero() {
		return fmt.Errorf("%w: window start is zero", ErrInvalidWindow)
	}
	n := len(w.PriceKWH)
	if n == 0 {
		return fmt.Errorf("%w: window is empty", ErrInvalidWindow)
	}
	if len(w.PVKW) != n || len(w.LoadKW) != n {
		return fmt.Errorf("%w: misaligned series (pv=%d load=%d price=%d)",
			ErrInvalidWindow, len(w.PVKW), len(w.LoadKW), n)
	}
	if horizon > 0 && n != horizon {
		return fmt.Errorf("%w: got %d steps, horizon requires %d", ErrInvalidWindow, n, horizon)
	}
	return nil
}
