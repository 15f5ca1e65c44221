package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dnldd/screener/shared"
)

// Condition represents an RSI screening condition.
type Condition int

const (
	NoCondition Condition = iota
	Above
	Below
	CrossAbove
	CrossBelow
)

// String stringifies the provided condition.
func (c Condition) String() string {
	switch c {
	case Above:
		return "above"
	case Below:
		return "below"
	case CrossAbove:
		return "cross_above"
	case CrossBelow:
		return "cross_below"
	default:
		return "none"
	}
}

// ParseCondition parses a screening condition.
func ParseCondition(s string) (Condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoCondition, nil
	case "above":
		return Above, nil
	case "below":
		return Below, nil
	case "cross_above", "crossesabove", "crosses_above":
		return CrossAbove, nil
	case "cross_below", "crossesbelow", "crosses_below":
		return CrossBelow, nil
	default:
		return NoCondition, fmt.Errorf("unknown condition provided: %q", s)
	}
}

// Filter represents the screening criteria applied to a snapshot.
type Filter struct {
	// Types restricts instruments to the provided types, all types when empty.
	Types []shared.InstrumentType
	// Timeframe is the timeframe whose RSI the condition is evaluated on.
	Timeframe shared.Timeframe
	// Condition is the RSI condition.
	Condition Condition
	// Threshold is the RSI level the condition compares against.
	Threshold float64
}

// Match asserts the provided instrument satisfies the filter.
func (f *Filter) Match(inst *shared.Instrument) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, inst.Type) {
		return false
	}

	if f.Condition == NoCondition {
		return true
	}

	rsi, ok := inst.RSI[f.Timeframe]
	if !ok {
		return false
	}

	switch f.Condition {
	case Above:
		return rsi.Value > f.Threshold
	case Below:
		return rsi.Value < f.Threshold
	case CrossAbove:
		return rsi.PrevValue <= f.Threshold && rsi.Value > f.Threshold
	case CrossBelow:
		return rsi.PrevValue >= f.Threshold && rsi.Value < f.Threshold
	default:
		return false
	}
}

// Screen returns the instruments of the provided snapshot matching the filter, in
// snapshot order.
func Screen(snap *shared.Snapshot, f Filter) []shared.Instrument {
	matched := make([]shared.Instrument, 0, len(snap.Instruments))
	for idx := range snap.Instruments {
		if f.Match(&snap.Instruments[idx]) {
			matched = append(matched, snap.Instruments[idx].Clone())
		}
	}

	return matched
}

// SortKey represents the field instruments are sorted by.
type SortKey int

const (
	BySymbol SortKey = iota
	ByPrice
	ByChange
	ByRSI
)

// ParseSortKey parses a sort key.
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "symbol":
		return BySymbol, nil
	case "price":
		return ByPrice, nil
	case "change", "price_change":
		return ByChange, nil
	case "rsi":
		return ByRSI, nil
	default:
		return BySymbol, fmt.Errorf("unknown sort key provided: %q", s)
	}
}

// compareFloat orders floats ascending with NaN last.
func compareFloat(a float64, b float64) int {
	switch {
	case a != a && b != b:
		return 0
	case a != a:
		return 1
	case b != b:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Sort orders the provided instruments in place by the provided key. The RSI key
// compares readings on the provided timeframe.
func Sort(instruments []shared.Instrument, key SortKey, timeframe shared.Timeframe, desc bool) {
	slices.SortStableFunc(instruments, func(a, b shared.Instrument) int {
		var res int
		switch key {
		case ByPrice:
			res = compareFloat(a.Price, b.Price)
		case ByChange:
			res = compareFloat(a.PriceChange, b.PriceChange)
		case ByRSI:
			res = compareFloat(a.RSI[timeframe].Value, b.RSI[timeframe].Value)
		default:
			res = strings.Compare(a.Symbol, b.Symbol)
		}

		if desc {
			return -res
		}
		return res
	})
}
