package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/klausv/battopt/pkg/config"
	"github.com/klausv/battopt/pkg/controller"
	"github.com/klausv/battopt/pkg/log"
	"github.com/klausv/battopt/pkg/report"
	"github.com/klausv/battopt/pkg/server"
	"github.com/klausv/battopt/pkg/storage"
	"github.com/klausv/battopt/pkg/sweep"
	"github.com/klausv/battopt/pkg/timeseries"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	s := storage.Configured()

	// init server
	srv := server.Configured(s)

	mode := lflag.String("mode", "run", "What to do (run, sweep, serve)")
	cfgPath := lflag.String("config", "battopt.yaml", "Path to the run configuration YAML")
	outDir := lflag.String("out", "out", "Directory for the trajectory CSV and plots")
	var sweepCapacities []float64
	lflag.JSON(&sweepCapacities, "sweep-capacities", sweepCapacities, "JSON array of battery capacities (kWh) to sweep")

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	var err error
	switch *mode {
	case "serve":
		if !s.IsConfigured() {
			err = fmt.Errorf("serve mode requires -storage-provider")
			break
		}
		// Run will block until context is canceled or error happens
		err = srv.Run(ctx)
	case "run":
		err = runOnce(ctx, *cfgPath, *outDir, s)
	case "sweep":
		err = runSweep(ctx, *cfgPath, *outDir, sweepCapacities)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "battopt failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "battopt exited cleanly")
}

// runOnce executes a single rolling-horizon run, optionally persisting the
// trajectory to storage, and writes the CSV and plots.
func runOnce(ctx context.Context, cfgPath, outDir string, db *storage.ConfiguredDatabase) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	ctx = log.WithAttrs(ctx, slog.String("runID", cfg.RunID))

	series, err := loadSeries(ctx, cfg)
	if err != nil {
		return err
	}

	ctrl, err := controller.New(cfg.Controller())
	if err != nil {
		return err
	}
	src, err := timeseries.NewSliding(series, cfg.Optimizer.Horizon)
	if err != nil {
		return err
	}

	state := cfg.InitialState()
	var lastStored time.Time
	if db.IsConfigured() {
		// Resume from the stored checkpoint when one exists.
		stored, err := db.GetState(ctx, cfg.RunID)
		switch {
		case err == nil:
			state = stored
			lastStored, err = db.GetLatestStepTime(ctx, cfg.RunID)
			if err != nil {
				return fmt.Errorf("loading latest step time: %w", err)
			}
			log.Ctx(ctx).InfoContext(ctx, "resuming from stored state",
				slog.Float64("energyKWH", state.EnergyKWH),
				slog.Float64("peakKW", state.PeakKW),
				slog.Time("lastStep", lastStored))
		case errors.Is(err, storage.ErrRunNotFound):
		default:
			return fmt.Errorf("loading stored state: %w", err)
		}
	}

	traj, err := ctrl.Run(ctx, state, src)
	if err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "run finished",
		slog.Int("steps", len(traj.Steps)),
		slog.Int("failures", traj.Failures()),
		slog.Float64("totalCost", traj.TotalCost()))

	if db.IsConfigured() {
		if err := persistTrajectory(ctx, db, cfg.RunID, lastStored, traj); err != nil {
			return err
		}
	}

	return writeReports(ctx, outDir, cfg.RunID, traj)
}

// persistTrajectory stores the new step records and the final state. Steps at
// or before the stored checkpoint were persisted by an earlier run of the same
// series and are skipped, so re-running a series is idempotent.
func persistTrajectory(ctx context.Context, db storage.Database, runID string, lastStored time.Time, traj controller.Trajectory) error {
	for _, rec := range traj.Steps {
		if !lastStored.IsZero() && !rec.Timestamp.After(lastStored) {
			continue
		}
		if err := db.InsertStep(ctx, runID, rec); err != nil {
			return fmt.Errorf("storing step %s: %w", rec.Timestamp.Format(time.RFC3339), err)
		}
	}
	if err := db.SaveState(ctx, runID, traj.FinalState); err != nil {
		return fmt.Errorf("storing final state: %w", err)
	}
	return nil
}

// runSweep evaluates the run configuration at several battery capacities and
// logs the ranked outcomes.
func runSweep(ctx context.Context, cfgPath, outDir string, capacitiesKWH []float64) error {
	if len(capacitiesKWH) == 0 {
		return fmt.Errorf("sweep mode requires -sweep-capacities")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	ctx = log.WithAttrs(ctx, slog.String("runID", cfg.RunID))

	series, err := loadSeries(ctx, cfg)
	if err != nil {
		return err
	}

	outcomes := sweep.Run(ctx, sweep.Capacities(cfg.Controller(), capacitiesKWH), series)
	sweep.Rank(outcomes)

	for i, o := range outcomes {
		if o.Err != nil {
			log.Ctx(ctx).WarnContext(ctx, "candidate failed",
				slog.String("candidate", o.Name), "error", o.Err)
			continue
		}
		log.Ctx(ctx).InfoContext(ctx, "candidate ranked",
			slog.Int("rank", i+1),
			slog.String("candidate", o.Name),
			slog.Float64("capacityKWH", o.CapacityKWH),
			slog.Float64("totalCost", o.TotalCost),
			slog.Int("failures", o.Failures))
		if err := writeReports(ctx, outDir, cfg.RunID+"-"+o.Name, o.Trajectory); err != nil {
			return err
		}
	}
	return nil
}

// loadSeries reads the forecast from CSV and/or the postgres cache. With both
// configured the CSV is written through to the cache.
func loadSeries(ctx context.Context, cfg *config.Config) (timeseries.Series, error) {
	if cfg.Data.CSV == "" {
		cache, err := timeseries.OpenPG(ctx, cfg.Data.PostgresDSN)
		if err != nil {
			return timeseries.Series{}, err
		}
		defer cache.Close()
		from, to, err := cfg.Data.Range()
		if err != nil {
			return timeseries.Series{}, err
		}
		return cache.Load(ctx, from, to, cfg.Data.StepHours)
	}

	series, err := timeseries.LoadCSV(cfg.Data.CSV)
	if err != nil {
		return timeseries.Series{}, err
	}
	if cfg.Data.PostgresDSN != "" {
		cache, err := timeseries.OpenPG(ctx, cfg.Data.PostgresDSN)
		if err != nil {
			return timeseries.Series{}, err
		}
		defer cache.Close()
		if err := cache.Init(ctx); err != nil {
			return timeseries.Series{}, err
		}
		if err := cache.Upsert(ctx, series); err != nil {
			return timeseries.Series{}, err
		}
		log.Ctx(ctx).DebugContext(ctx, "forecast cached",
			slog.Int("points", series.Len()))
	}
	return series, nil
}

func writeReports(ctx context.Context, outDir, name string, traj controller.Trajectory) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	csvPath := filepath.Join(outDir, name+".csv")
	if err := report.WriteTrajectoryCSV(csvPath, traj); err != nil {
		return err
	}
	powerPath := filepath.Join(outDir, name+"-power.png")
	if err := report.SavePowerPlot(powerPath, traj); err != nil {
		return err
	}
	energyPath := filepath.Join(outDir, name+"-energy.png")
	if err := report.SaveEnergyPlot(energyPath, traj); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "reports written",
		slog.String("csv", csvPath),
		slog.String("power", powerPath),
		slog.String("energy", energyPath))
	return nil
}
