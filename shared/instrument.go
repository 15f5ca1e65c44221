package shared

import (
	"fmt"
	"strings"
)

const (
	// MaxPriceHistory is the maximum number of price history entries kept per instrument.
	MaxPriceHistory = 50
	// NeutralRSI is the stand-in value used for timeframes without a computed RSI.
	NeutralRSI = 50.0
)

// InstrumentType represents the instrument category.
type InstrumentType int

const (
	FXMajor InstrumentType = iota
	FXMinor
	Commodity
	Index
)

// String stringifies the provided instrument type.
func (t InstrumentType) String() string {
	switch t {
	case FXMajor:
		return "fx_major"
	case FXMinor:
		return "fx_minor"
	case Commodity:
		return "commodity"
	case Index:
		return "index"
	default:
		return "unknown"
	}
}

// ParseInstrumentType parses an instrument type from its string form.
func ParseInstrumentType(s string) (InstrumentType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fx_major", "fx-major":
		return FXMajor, nil
	case "fx_minor", "fx-minor":
		return FXMinor, nil
	case "commodity":
		return Commodity, nil
	case "index":
		return Index, nil
	default:
		return 0, fmt.Errorf("unknown instrument type provided: %q", s)
	}
}

// MarshalText encodes the instrument type as its string form.
func (t InstrumentType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes an instrument type.
func (t *InstrumentType) UnmarshalText(b []byte) error {
	it, err := ParseInstrumentType(string(b))
	if err != nil {
		return err
	}

	*t = it
	return nil
}

// Direction represents the direction of the last price update.
type Direction int

const (
	None Direction = iota
	Up
	Down
)

// String stringifies the provided direction.
func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "none"
	}
}

// MarshalText encodes the direction as its string form.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a direction.
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "up":
		*d = Up
	case "down":
		*d = Down
	case "none", "":
		*d = None
	default:
		return fmt.Errorf("unknown direction provided: %q", string(b))
	}

	return nil
}

// CompareDirection returns the direction of the move from prev to current.
func CompareDirection(prev float64, current float64) Direction {
	switch {
	case current > prev:
		return Up
	case current < prev:
		return Down
	default:
		return None
	}
}

// RSIData represents the RSI reading of an instrument on a timeframe.
type RSIData struct {
	Value     float64 `json:"value"`
	PrevValue float64 `json:"prevValue"`
	Delta     float64 `json:"delta"`
}

// NewRSIData initializes an RSI reading, deriving its delta.
func NewRSIData(value float64, prev float64) RSIData {
	return RSIData{
		Value:     value,
		PrevValue: prev,
		Delta:     value - prev,
	}
}

// PricePoint represents a labelled price history entry.
type PricePoint struct {
	Label string  `json:"time"`
	Value float64 `json:"value"`
}

// HistoryLabel returns the label of the history entry at idx of a history of size n,
// where the most recent entry is T-0.
func HistoryLabel(idx int, n int) string {
	return fmt.Sprintf("T-%d", n-1-idx)
}

// NewPriceHistory labels the most recent MaxPriceHistory closes, oldest first.
func NewPriceHistory(closes []float64) []PricePoint {
	if len(closes) > MaxPriceHistory {
		closes = closes[len(closes)-MaxPriceHistory:]
	}

	history := make([]PricePoint, len(closes))
	for idx := range closes {
		history[idx] = PricePoint{
			Label: HistoryLabel(idx, len(closes)),
			Value: closes[idx],
		}
	}

	return history
}

// Instrument represents a tracked screener instrument.
type Instrument struct {
	ID                  string                `json:"id"`
	Symbol              string                `json:"symbol"`
	Description         string                `json:"description"`
	Type                InstrumentType        `json:"type"`
	Open                float64               `json:"open"`
	High                float64               `json:"high"`
	Low                 float64               `json:"low"`
	Close               float64               `json:"close"`
	Price               float64               `json:"price"`
	ATR                 float64               `json:"atr"`
	PriceChange         float64               `json:"price_change"`
	Spread              float64               `json:"spread"`
	Candle              string                `json:"candle"`
	LastUpdateDirection Direction             `json:"lastUpdateDirection"`
	PriceHistory        []PricePoint          `json:"priceHistory"`
	RSI                 map[Timeframe]RSIData `json:"rsi"`
}

// EnsureTimeframes fills every missing timeframe with a neutral RSI reading.
func (i *Instrument) EnsureTimeframes() {
	if i.RSI == nil {
		i.RSI = make(map[Timeframe]RSIData, len(AllTimeframes))
	}

	for _, tf := range AllTimeframes {
		if _, ok := i.RSI[tf]; !ok {
			i.RSI[tf] = NewRSIData(NeutralRSI, NeutralRSI)
		}
	}
}

// Clone returns a deep copy of the instrument.
func (i *Instrument) Clone() Instrument {
	clone := *i

	clone.PriceHistory = make([]PricePoint, len(i.PriceHistory))
	copy(clone.PriceHistory, i.PriceHistory)

	clone.RSI = make(map[Timeframe]RSIData, len(i.RSI))
	for tf, data := range i.RSI {
		clone.RSI[tf] = data
	}

	return clone
}
