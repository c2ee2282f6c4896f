// Package timeseries supplies forecast windows to the rolling optimizer. A
// Series holds aligned PV, load and spot-price arrays; a Source feeds the
// orchestrator one TimeWindow per step. Series can be loaded from CSV files or
// a postgres cache.
package timeseries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klausv/battopt/pkg/types"
)

var (
	// ErrExhausted means the source has no more windows.
	ErrExhausted = errors.New("source exhausted")
	// ErrIncompleteWindow means the returned window is shorter than the
	// requested horizon. The window is still valid; the caller decides
	// whether to use it.
	ErrIncompleteWindow = errors.New("incomplete final window")
)

// Source produces consecutive forecast windows, one per rolling step.
type Source interface {
	Next(ctx context.Context) (types.TimeWindow, error)
}

// Series is an aligned, fixed-step forecast covering a contiguous span.
type Series struct {
	Start     time.Time `json:"start"`
	StepHours float64   `json:"stepHours"`

	PVKW     []float64 `json:"pvKW"`
	LoadKW   []float64 `json:"loadKW"`
	PriceKWH []float64 `json:"priceKWH"`
}

// Len returns the number of timesteps.
func (s Series) Len() int { return len(s.PVKW) }

// TimeAt returns the wall-clock start of step i.
func (s Series) TimeAt(i int) time.Time {
	return s.Start.Add(time.Duration(float64(i) * s.StepHours * float64(time.Hour)))
}

func (s Series) Validate() error {
	if s.Len() == 0 {
		return fmt.Errorf("%w: series is empty", types.ErrInvalidWindow)
	}
	if len(s.LoadKW) != s.Len() || len(s.PriceKWH) != s.Len() {
		return fmt.Errorf("%w: series arrays misaligned (pv=%d load=%d price=%d)",
			types.ErrInvalidWindow, s.Len(), len(s.LoadKW), len(s.PriceKWH))
	}
	if s.StepHours <= 0 {
		return fmt.Errorf("%w: step must be > 0 hours, got %v", types.ErrInvalidWindow, s.StepHours)
	}
	if s.Start.IsZero() {
		return fmt.Errorf("%w: series start is unset", types.ErrInvalidWindow)
	}
	return nil
}

// Window slices out a TimeWindow of up to steps timesteps starting at offset.
func (s Series) Window(offset, steps int) (types.TimeWindow, error) {
	if offset < 0 || offset >= s.Len() {
		return types.TimeWindow{}, fmt.Errorf("%w: offset %d outside series of %d steps",
			types.ErrInvalidWindow, offset, s.Len())
	}
	end := offset + steps
	if end > s.Len() {
		end = s.Len()
	}
	return types.TimeWindow{
		Start:     s.TimeAt(offset),
		StepHours: s.StepHours,
		PVKW:      s.PVKW[offset:end],
		LoadKW:    s.LoadKW[offset:end],
		PriceKWH:  s.PriceKWH[offset:end],
	}, nil
}

// Sliding walks a Series one step at a time, handing out horizon-length
// windows until the series runs out.
type Sliding struct {
	series  Series
	horizon int
	pos     int
}

// NewSliding returns a Source over the series with the given horizon.
func NewSliding(s Series, horizon int) (*Sliding, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("%w: horizon must be > 0, got %d", types.ErrInvalidConfig, horizon)
	}
	return &Sliding{series: s, horizon: horizon}, nil
}

// Next returns the window starting at the current position and advances by one
// step. Once fewer than horizon steps remain the shortened window comes back
// with ErrIncompleteWindow; after the series ends Next returns ErrExhausted.
func (s *Sliding) Next(ctx context.Context) (types.TimeWindow, error) {
	if err := ctx.Err(); err != nil {
		return types.TimeWindow{}, err
	}
	if s.pos >= s.series.Len() {
		return types.TimeWindow{}, ErrExhausted
	}
	w, err := s.series.Window(s.pos, s.horizon)
	if err != nil {
		return types.TimeWindow{}, err
	}
	short := s.pos+s.horizon > s.series.Len()
	s.pos++
	if short {
		return w, fmt.Errorf("%w: %d of %d steps", ErrIncompleteWindow, w.Steps(), s.horizon)
	}
	return w, nil
}
