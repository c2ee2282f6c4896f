package types

import "errors"

var (
	// ErrInvalidWindow indicates an incomplete or misaligned input time window.
	// The caller must fix the input; the orchestrator never retries these.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrInvalidConfig indicates invalid battery/grid/tariff/degradation
	// parameters. Raised before any solve is attempted.
	ErrInvalidConfig = errors.New("invalid configuration")
)
