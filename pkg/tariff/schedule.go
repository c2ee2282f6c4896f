// Package tariff models the progressive monthly power tariff: an ordered
// table of peak-power brackets, each with a width and an incremental monthly
// cost. The cumulative cost for a given monthly peak is the sum of the fully
// filled brackets plus a prorated amount for the partially filled one.
package tariff

import (
	"fmt"
	"time"

	"github.com/klausv/battopt/pkg/types"
)

// Bracket is one tier of the progressive power tariff.
// A peak inside this bracket pays a prorated share of CostPerMonth on top of
// all lower brackets. Open marks the final, unbounded tier: its fill may
// exceed the width and keeps accruing at the same per-kW rate.
type Bracket struct {
	WidthKW      float64 `json:"widthKW" yaml:"width_kw"`
	CostPerMonth float64 `json:"costPerMonth" yaml:"cost_per_month"`
	Open         bool    `json:"open,omitempty" yaml:"open,omitempty"`
}

// RatePerKW is the bracket's incremental cost per kW of peak.
func (b Bracket) RatePerKW() float64 {
	return b.CostPerMonth / b.WidthKW
}

// Schedule is the ordered bracket table. Brackets fill strictly in order:
// bracket i only starts filling once bracket i-1 is full.
type Schedule struct {
	Brackets []Bracket `json:"brackets" yaml:"brackets"`
}

func (s Schedule) Validate() error {
	if len(s.Brackets) == 0 {
		return fmt.Errorf("%w: tariff schedule has no brackets", types.ErrInvalidConfig)
	}
	for i, b := range s.Brackets {
		if b.WidthKW <= 0 {
			return fmt.Errorf("%w: bracket %d width must be > 0, got %v", types.ErrInvalidConfig, i, b.WidthKW)
		}
		if b.CostPerMonth < 0 {
			return fmt.Errorf("%w: bracket %d cost must be >= 0, got %v", types.ErrInvalidConfig, i, b.CostPerMonth)
		}
		if b.Open && i != len(s.Brackets)-1 {
			return fmt.Errorf("%w: only the last bracket may be open-ended", types.ErrInvalidConfig)
		}
	}
	return nil
}

// Covers reports whether the schedule can price a peak of the given size.
func (s Schedule) Covers(peakKW float64) bool {
	if len(s.Brackets) > 0 && s.Brackets[len(s.Brackets)-1].Open {
		return true
	}
	return peakKW <= s.TotalWidthKW()+1e-9
}

// TotalWidthKW is the combined width of the closed brackets.
func (s Schedule) TotalWidthKW() float64 {
	var total float64
	for _, b := range s.Brackets {
		if !b.Open {
			total += b.WidthKW
		}
	}
	return total
}

// CostAtPeak returns the cumulative monthly tariff cost for the given peak.
// Peaks beyond the last closed bracket cap at the full schedule cost unless
// the last bracket is open-ended.
func (s Schedule) CostAtPeak(peakKW float64) float64 {
	remaining := peakKW
	var cost float64
	for _, b := range s.Brackets {
		if remaining <= 0 {
			break
		}
		fill := remaining
		if !b.Open && fill > b.WidthKW {
			fill = b.WidthKW
		}
		cost += b.RatePerKW() * fill
		remaining -= fill
	}
	return cost
}

// MarginalCost is the tariff increase caused by raising the monthly peak from
// fromKW to toKW. Zero when the peak does not grow.
func (s Schedule) MarginalCost(fromKW, toKW float64) float64 {
	if toKW <= fromKW {
		return 0
	}
	return s.CostAtPeak(toKW) - s.CostAtPeak(fromKW)
}

// MonthStart truncates ts to the start of its calendar month.
func MonthStart(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, ts.Location())
}

// SameMonth reports whether a and b fall in the same calendar month.
func SameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
