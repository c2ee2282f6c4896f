package timeseries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// postgres driver
	_ "github.com/lib/pq"

	"github.com/klausv/battopt/pkg/types"
)

// PGCache stores forecast points in a postgres table so repeated runs over the
// same span do not have to re-parse source files.
type PGCache struct {
	db *sql.DB
}

// OpenPG connects to postgres and verifies the connection.
func OpenPG(ctx context.Context, dsn string) (*PGCache, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres dsn", types.ErrInvalidConfig)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGCache{db: db}, nil
}

// Init creates the forecast table if it does not exist.
func (c *PGCache) Init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS forecast_points (
			timestamp  TIMESTAMPTZ PRIMARY KEY,
			pv_kw      DOUBLE PRECISION NOT NULL,
			load_kw    DOUBLE PRECISION NOT NULL,
			price_kwh  DOUBLE PRECISION NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create forecast table: %w", err)
	}
	return nil
}

// Upsert writes the series into the cache, replacing overlapping timestamps.
func (c *PGCache) Upsert(ctx context.Context, s Series) error {
	if err := s.Validate(); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO forecast_points (timestamp, pv_kw, load_kw, price_kwh)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (timestamp) DO UPDATE SET
			pv_kw = EXCLUDED.pv_kw,
			load_kw = EXCLUDED.load_kw,
			price_kwh = EXCLUDED.price_kwh
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := 0; i < s.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, s.TimeAt(i), s.PVKW[i], s.LoadKW[i], s.PriceKWH[i]); err != nil {
			return fmt.Errorf("upsert point %s: %w", s.TimeAt(i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Load reads the cached points in [from, to) as a series with the given step.
// Gaps in the cached span come back as an error.
func (c *PGCache) Load(ctx context.Context, from, to time.Time, stepHours float64) (Series, error) {
	if stepHours <= 0 || !to.After(from) {
		return Series{}, fmt.Errorf("%w: bad load span [%s, %s) at %vh", types.ErrInvalidWindow, from, to, stepHours)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT timestamp, pv_kw, load_kw, price_kwh
		FROM forecast_points
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC
	`, from, to)
	if err != nil {
		return Series{}, fmt.Errorf("query forecast points: %w", err)
	}
	defer rows.Close()

	s := Series{Start: from, StepHours: stepHours}
	step := time.Duration(stepHours * float64(time.Hour))
	want := from
	for rows.Next() {
		var ts time.Time
		var pv, load, price float64
		if err := rows.Scan(&ts, &pv, &load, &price); err != nil {
			return Series{}, fmt.Errorf("scan forecast point: %w", err)
		}
		if !ts.Equal(want) {
			return Series{}, fmt.Errorf("%w: gap in cached span, expected %s got %s",
				types.ErrInvalidWindow, want, ts)
		}
		want = want.Add(step)
		s.PVKW = append(s.PVKW, pv)
		s.LoadKW = append(s.LoadKW, load)
		s.PriceKWH = append(s.PriceKWH, price)
	}
	if err := rows.Err(); err != nil {
		return Series{}, fmt.Errorf("iterate forecast points: %w", err)
	}
	if s.Len() == 0 {
		return Series{}, fmt.Errorf("%w: no cached points in [%s, %s)", types.ErrInvalidWindow, from, to)
	}
	return s, s.Validate()
}

// Close releases the database connection.
func (c *PGCache) Close() error { return c.db.Close() }
