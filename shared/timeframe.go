package shared

import (
	"fmt"
	"strings"
)

// Timeframe represents the market data time period.
type Timeframe int

const (
	OneMinute Timeframe = iota
	TwoMinute
	FiveMinute
	FifteenMinute
	ThirtyMinute
	OneHour
	FourHour
	OneDay
)

// AllTimeframes lists every supported timeframe, finest first.
var AllTimeframes = []Timeframe{
	OneMinute, TwoMinute, FiveMinute, FifteenMinute, ThirtyMinute, OneHour, FourHour, OneDay,
}

// String stringifies the provided timeframe.
func (t Timeframe) String() string {
	switch t {
	case OneMinute:
		return "1m"
	case TwoMinute:
		return "2m"
	case FiveMinute:
		return "5m"
	case FifteenMinute:
		return "15m"
	case ThirtyMinute:
		return "30m"
	case OneHour:
		return "1h"
	case FourHour:
		return "4h"
	case OneDay:
		return "1d"
	default:
		return "unknown"
	}
}

// Minutes returns the number of minutes covered by the timeframe.
func (t Timeframe) Minutes() int {
	switch t {
	case OneMinute:
		return 1
	case TwoMinute:
		return 2
	case FiveMinute:
		return 5
	case FifteenMinute:
		return 15
	case ThirtyMinute:
		return 30
	case OneHour:
		return 60
	case FourHour:
		return 240
	case OneDay:
		return 1440
	default:
		return 0
	}
}

// ParseTimeframe parses a timeframe from either its label ("1h") or its
// screener id ("H1").
func ParseTimeframe(s string) (Timeframe, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1m", "m1":
		return OneMinute, nil
	case "2m", "m2":
		return TwoMinute, nil
	case "5m", "m5":
		return FiveMinute, nil
	case "15m", "m15":
		return FifteenMinute, nil
	case "30m", "m30":
		return ThirtyMinute, nil
	case "1h", "h1":
		return OneHour, nil
	case "4h", "h4":
		return FourHour, nil
	case "1d", "d1":
		return OneDay, nil
	default:
		return 0, fmt.Errorf("unknown timeframe provided: %q", s)
	}
}

// MarshalText encodes the timeframe as its label, which also keys json maps.
func (t Timeframe) MarshalText() ([]byte, error) {
	if t.Minutes() == 0 {
		return nil, fmt.Errorf("unknown timeframe: %d", int(t))
	}

	return []byte(t.String()), nil
}

// UnmarshalText decodes a timeframe label.
func (t *Timeframe) UnmarshalText(b []byte) error {
	tf, err := ParseTimeframe(string(b))
	if err != nil {
		return err
	}

	*t = tf
	return nil
}
