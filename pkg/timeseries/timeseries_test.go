package timeseries

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klausv/battopt/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeries(n int) Series {
	s := Series{
		Start:     time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		StepHours: 1,
	}
	for i := 0; i < n; i++ {
		s.PVKW = append(s.PVKW, float64(i))
		s.LoadKW = append(s.LoadKW, 10+float64(i))
		s.PriceKWH = append(s.PriceKWH, 1)
	}
	return s
}

func TestSeriesValidate(t *testing.T) {
	assert.NoError(t, testSeries(4).Validate())

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, Series{StepHours: 1}.Validate(), types.ErrInvalidWindow)
	})
	t.Run("misaligned", func(t *testing.T) {
		s := testSeries(4)
		s.LoadKW = s.LoadKW[:3]
		assert.ErrorIs(t, s.Validate(), types.ErrInvalidWindow)
	})
	t.Run("zero step", func(t *testing.T) {
		s := testSeries(4)
		s.StepHours = 0
		assert.ErrorIs(t, s.Validate(), types.ErrInvalidWindow)
	})
}

func TestSlidingWindows(t *testing.T) {
	src, err := NewSliding(testSeries(5), 3)
	require.NoError(t, err)
	ctx := context.Background()

	// Positions 0..2 have the full horizon.
	for i := 0; i < 3; i++ {
		w, err := src.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, w.Steps())
		assert.Equal(t, float64(i), w.PVKW[0])
		assert.Equal(t, testSeries(5).TimeAt(i), w.Start)
	}

	// Positions 3 and 4 are short.
	w, err := src.Next(ctx)
	assert.ErrorIs(t, err, ErrIncompleteWindow)
	assert.Equal(t, 2, w.Steps())

	w, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrIncompleteWindow)
	assert.Equal(t, 1, w.Steps())

	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrExhausted)
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestSlidingHonorsContext(t *testing.T) {
	src, err := NewSliding(testSeries(5), 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadCSV(t *testing.T) {
	const data = `timestamp,pv_kw,load_kw,price_kwh,comment
2026-03-04T00:00:00Z,0,10,0.5,first
2026-03-04T01:00:00Z,1.5,12,0.6,
2026-03-04T02:00:00Z,3,11,0.7,
`
	s, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 1.0, s.StepHours)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), s.Start)
	assert.Equal(t, []float64{0, 1.5, 3}, s.PVKW)
	assert.Equal(t, []float64{10, 12, 11}, s.LoadKW)
	assert.Equal(t, []float64{0.5, 0.6, 0.7}, s.PriceKWH)

	t.Run("missing column", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("timestamp,pv_kw\n2026-03-04T00:00:00Z,0\n"))
		assert.ErrorIs(t, err, types.ErrInvalidWindow)
	})
	t.Run("uneven step", func(t *testing.T) {
		const bad = `timestamp,pv_kw,load_kw,price_kwh
2026-03-04T00:00:00Z,0,10,0.5
2026-03-04T01:00:00Z,0,10,0.5
2026-03-04T02:30:00Z,0,10,0.5
`
		_, err := ReadCSV(strings.NewReader(bad))
		assert.ErrorIs(t, err, types.ErrInvalidWindow)
	})
	t.Run("bad float", func(t *testing.T) {
		const bad = `timestamp,pv_kw,load_kw,price_kwh
2026-03-04T00:00:00Z,x,10,0.5
2026-03-04T01:00:00Z,0,10,0.5
`
		_, err := ReadCSV(strings.NewReader(bad))
		assert.Error(t, err)
	})
	t.Run("single row", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader("timestamp,pv_kw,load_kw,price_kwh\n2026-03-04T00:00:00Z,0,10,0.5\n"))
		assert.ErrorIs(t, err, types.ErrInvalidWindow)
	})
}

func TestLoadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"timestamp,pv_kw,load_kw,price_kwh\n"+
			"2026-03-04 00:00:00,0,10,0.5\n"+
			"2026-03-04 00:15:00,1,10,0.5\n"), 0o644))

	s, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 0.25, s.StepHours)
	assert.Equal(t, 2, s.Len())
}

func TestOpenPGRejectsEmptyDSN(t *testing.T) {
	_, err := OpenPG(context.Background(), "")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

// TestPGCacheRoundtrip needs a live postgres, pointed to by TEST_POSTGRES_DSN.
func TestPGCacheRoundtrip(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	cache, err := OpenPG(ctx, dsn)
	require.NoError(t, err)
	defer cache.Close()
	require.NoError(t, cache.Init(ctx))

	s := testSeries(4)
	require.NoError(t, cache.Upsert(ctx, s))

	got, err := cache.Load(ctx, s.Start, s.TimeAt(s.Len()), s.StepHours)
	require.NoError(t, err)
	assert.Equal(t, s.PVKW, got.PVKW)
	assert.Equal(t, s.LoadKW, got.LoadKW)
	assert.Equal(t, s.PriceKWH, got.PriceKWH)
}
