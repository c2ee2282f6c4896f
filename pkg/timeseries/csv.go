package timeseries

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klausv/battopt/pkg/types"
)

// Required CSV columns. Extra columns are ignored.
var csvColumns = []string{"timestamp", "pv_kw", "load_kw", "price_kwh"}

// LoadCSV reads a forecast series from a CSV file. The header must contain
// timestamp, pv_kw, load_kw and price_kwh; timestamps must be RFC 3339 (or
// "2006-01-02 15:04:05") and evenly spaced.
func LoadCSV(path string) (Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return Series{}, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a forecast series from CSV content.
func ReadCSV(r io.Reader) (Series, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Series{}, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range csvColumns {
		if _, ok := cols[c]; !ok {
			return Series{}, fmt.Errorf("%w: missing csv column %q", types.ErrInvalidWindow, c)
		}
	}

	var s Series
	var prev time.Time
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Series{}, fmt.Errorf("read csv line %d: %w", line+1, err)
		}
		line++

		ts, err := parseTimestamp(record[cols["timestamp"]])
		if err != nil {
			return Series{}, fmt.Errorf("csv line %d: %w", line, err)
		}
		pv, err := parseFloat(record[cols["pv_kw"]], "pv_kw")
		if err != nil {
			return Series{}, fmt.Errorf("csv line %d: %w", line, err)
		}
		load, err := parseFloat(record[cols["load_kw"]], "load_kw")
		if err != nil {
			return Series{}, fmt.Errorf("csv line %d: %w", line, err)
		}
		price, err := parseFloat(record[cols["price_kwh"]], "price_kwh")
		if err != nil {
			return Series{}, fmt.Errorf("csv line %d: %w", line, err)
		}

		switch s.Len() {
		case 0:
			s.Start = ts
		case 1:
			s.StepHours = ts.Sub(prev).Hours()
		default:
			if got := ts.Sub(prev).Hours(); got != s.StepHours {
				return Series{}, fmt.Errorf("%w: uneven step at line %d (%vh after %vh)",
					types.ErrInvalidWindow, line, got, s.StepHours)
			}
		}
		prev = ts

		s.PVKW = append(s.PVKW, pv)
		s.LoadKW = append(s.LoadKW, load)
		s.PriceKWH = append(s.PriceKWH, price)
	}

	if s.Len() < 2 {
		return Series{}, fmt.Errorf("%w: csv needs at least 2 rows to determine the step", types.ErrInvalidWindow)
	}
	return s, s.Validate()
}

func parseTimestamp(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02 15:04:05", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
	}
	return ts, nil
}

func parseFloat(v, col string) (float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q", col, v)
	}
	return x, nil
}
