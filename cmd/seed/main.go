package main

import (
	"context"
	"encoding/csv"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/klausv/battopt/pkg/log"
	"github.com/klausv/battopt/pkg/timeseries"
)

// Generates a synthetic hourly forecast (PV, load, spot price) and seeds it
// into a CSV file and, when a DSN is given, the postgres forecast cache.
func main() {
	days := lflag.Int("days", 7, "Number of days of forecast to generate")
	startStr := lflag.String("start", "", "First timestamp (RFC3339), defaults to today's midnight UTC")
	csvPath := lflag.String("csv", "forecast.csv", "CSV file to write, empty to skip")
	dsn := lflag.String("postgres-dsn", "", "Postgres DSN for the forecast cache, empty to skip")
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding forecast data")

	start := time.Now().UTC().Truncate(24 * time.Hour)
	if *startStr != "" {
		var err error
		start, err = time.Parse(time.RFC3339, *startStr)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "invalid start timestamp", "error", err)
			os.Exit(1)
		}
	}

	series := generate(start, *days*24)

	if *csvPath != "" {
		if err := writeCSV(*csvPath, series); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to write csv", "error", err)
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "wrote forecast csv", "path", *csvPath, "points", series.Len())
	}

	if *dsn != "" {
		cache, err := timeseries.OpenPG(ctx, *dsn)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to open forecast cache", "error", err)
			os.Exit(1)
		}
		defer cache.Close()
		if err := cache.Init(ctx); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to init forecast cache", "error", err)
			os.Exit(1)
		}
		if err := cache.Upsert(ctx, series); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed forecast cache", "error", err)
			os.Exit(1)
		}
		log.Ctx(ctx).InfoContext(ctx, "seeded forecast cache", "points", series.Len())
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded forecast data successfully")
}

func generate(start time.Time, steps int) timeseries.Series {
	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	const (
		SolarPeakKW = 8.0
		HomeAvgKW   = 1.5
	)

	s := timeseries.Series{
		Start:     start,
		StepHours: 1,
		PVKW:      make([]float64, steps),
		LoadKW:    make([]float64, steps),
		PriceKWH:  make([]float64, steps),
	}

	for i := 0; i < steps; i++ {
		hour := start.Add(time.Duration(i) * time.Hour).Hour()

		// Price scenario
		price := 0.08
		if hour >= 6 && hour < 9 {
			price = 0.22 // Morning peak
		} else if hour >= 10 && hour < 15 {
			price = 0.05 // Mid-day lull
		} else if hour >= 17 && hour < 21 {
			price = 0.35 // Evening peak
		} else if hour >= 21 {
			price = 0.10 // Night
		}
		// Jitter
		price += (rng.Float64() * 0.02) - 0.01

		// Solar (bell curve)
		solarKW := 0.0
		if hour > 6 && hour < 19 {
			dist := math.Abs(float64(hour) - 13.0)
			solarKW = SolarPeakKW * math.Exp(-(dist*dist)/12.0)
		}

		// Home usage
		homeKW := HomeAvgKW + (rng.Float64() * 1.0)
		if hour >= 7 && hour < 9 {
			homeKW += 2.0 // Breakfast
		} else if hour >= 18 && hour < 22 {
			homeKW += 4.0 // Evening activities
		}

		s.PVKW[i] = solarKW
		s.LoadKW[i] = homeKW
		s.PriceKWH[i] = price
	}
	return s
}

func writeCSV(path string, s timeseries.Series) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "pv_kw", "load_kw", "price_kwh"}); err != nil {
		return err
	}
	for i := 0; i < s.Len(); i++ {
		row := []string{
			s.TimeAt(i).Format(time.RFC3339),
			strconv.FormatFloat(s.PVKW[i], 'f', 6, 64),
			strconv.FormatFloat(s.LoadKW[i], 'f', 6, 64),
			strconv.FormatFloat(s.PriceKWH[i], 'f', 6, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
