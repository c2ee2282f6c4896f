package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klausv/battopt/pkg/types"
	"github.com/levenlabs/go-lflag"
)

var (
	// ErrRunNotFound means no state has been saved under the run ID.
	ErrRunNotFound = errors.New("run not found")
)

// Database persists optimization runs: the latest battery state per run (the
// checkpoint a restarted process resumes from) and the applied step records.
type Database interface {
	// State checkpoint
	SaveState(ctx context.Context, runID string, state types.BatteryState) error
	GetState(ctx context.Context, runID string) (types.BatteryState, error)

	// Trajectory
	InsertStep(ctx context.Context, runID string, rec types.StepRecord) error
	GetSteps(ctx context.Context, runID string, start, end time.Time) ([]types.StepRecord, error)
	GetLatestStepTime(ctx context.Context, runID string) (time.Time, error)

	// Runs
	ListRuns(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags. With the "none"
// provider IsConfigured reports false and every other method panics.
func Configured() *ConfiguredDatabase {
	provider := lflag.String("storage-provider", "none", "Storage provider to use (available: firestore, none)")

	p := &ConfiguredDatabase{}

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "none":
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return p
}

// ConfiguredDatabase is the flag-selected provider, possibly none.
type ConfiguredDatabase struct{ Database }

// IsConfigured reports whether a real provider was selected.
func (c *ConfiguredDatabase) IsConfigured() bool { return c.Database != nil }

// Close is safe to call even when no provider was selected.
func (c *ConfiguredDatabase) Close() error {
	if c.Database == nil {
		return nil
	}
	return c.Database.Close()
}
