package registry

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/dnldd/screener/indicator"
	"github.com/dnldd/screener/shared"
	"gopkg.in/yaml.v3"
)

const (
	// seedRangePercent is the seed candle range as a fraction of the seed price.
	seedRangePercent = 0.005
	// seedOpenPercent places the seed open within the seed candle range.
	seedOpenPercent = 0.4
	// seedRSIFloor and seedRSISpan bound seeded rsi readings to [30, 70].
	seedRSIFloor = 30
	seedRSISpan  = 40
	// seedRSIMinStep and seedRSIMaxStep bound the distance between a seeded
	// reading and its previous value.
	seedRSIMinStep = 0.01
	seedRSIMaxStep = 1
)

// Entry represents a registry entry for a tracked instrument.
type Entry struct {
	ID          string  `yaml:"id"`
	Symbol      string  `yaml:"symbol"`
	Description string  `yaml:"description"`
	Type        string  `yaml:"type"`
	Price       float64 `yaml:"price"`
	PriceChange float64 `yaml:"priceChange"`
	Spread      float64 `yaml:"spread"`
}

// File represents the registry file layout.
type File struct {
	Instruments []Entry `yaml:"instruments"`
}

// defaultEntries are the instruments tracked when no registry file is provided.
var defaultEntries = []Entry{
	{ID: "EURUSD", Symbol: "EUR/USD", Description: "Euro / US Dollar", Type: "fx_major", Price: 1.0855, PriceChange: 0.0012, Spread: 0.6},
	{ID: "GBPUSD", Symbol: "GBP/USD", Description: "Great British Pound / US Dollar", Type: "fx_major", Price: 1.2710, PriceChange: -0.0005, Spread: 0.9},
	{ID: "USDJPY", Symbol: "USD/JPY", Description: "US Dollar / Japanese Yen", Type: "fx_major", Price: 157.25, PriceChange: 0.15, Spread: 0.7},
	{ID: "AUDUSD", Symbol: "AUD/USD", Description: "Australian Dollar / US Dollar", Type: "fx_major", Price: 0.6650, PriceChange: 0.0008, Spread: 0.8},
	{ID: "USDCAD", Symbol: "USD/CAD", Description: "US Dollar / Canadian Dollar", Type: "fx_major", Price: 1.3680, PriceChange: -0.0010, Spread: 1.1},
	{ID: "USDCHF", Symbol: "USD/CHF", Description: "US Dollar / Swiss Franc", Type: "fx_major", Price: 0.9015, PriceChange: 0.0025, Spread: 1.2},
	{ID: "EURGBP", Symbol: "EUR/GBP", Description: "Euro / Great British Pound", Type: "fx_minor", Price: 0.8540, PriceChange: 0.0003, Spread: 1.0},
	{ID: "EURJPY", Symbol: "EUR/JPY", Description: "Euro / Japanese Yen", Type: "fx_minor", Price: 170.70, PriceChange: 0.20, Spread: 1.3},
	{ID: "GBPJPY", Symbol: "GBP/JPY", Description: "Great British Pound / Japanese Yen", Type: "fx_minor", Price: 199.85, PriceChange: 0.10, Spread: 1.8},
	{ID: "AUDJPY", Symbol: "AUD/JPY", Description: "Australian Dollar / Japanese Yen", Type: "fx_minor", Price: 104.55, PriceChange: 0.12, Spread: 1.5},
	{ID: "XAUUSD", Symbol: "XAU/USD", Description: "Gold / US Dollar", Type: "commodity", Price: 2330.50, PriceChange: -5.20, Spread: 2.5},
	{ID: "XAGUSD", Symbol: "XAG/USD", Description: "Silver / US Dollar", Type: "commodity", Price: 29.55, PriceChange: 0.15, Spread: 3.0},
	{ID: "USOIL", Symbol: "WTI Crude", Description: "West Texas Intermediate Crude Oil", Type: "commodity", Price: 78.50, PriceChange: 1.20, Spread: 3.5},
	{ID: "SPX500", Symbol: "S&P 500", Description: "Standard & Poor's 500 Index", Type: "index", Price: 5350.00, PriceChange: 25.50, Spread: 5.0},
	{ID: "NAS100", Symbol: "NASDAQ 100", Description: "NASDAQ 100 Index", Type: "index", Price: 19020.00, PriceChange: 150.75, Spread: 8.0},
	{ID: "GER30", Symbol: "DAX 30", Description: "German Stock Index", Type: "index", Price: 18550.00, PriceChange: -50.25, Spread: 10.0},
}

// Validate asserts the entry sane inputs.
func (e *Entry) Validate() error {
	var errs error

	if e.ID == "" {
		errs = errors.Join(errs, fmt.Errorf("instrument id cannot be an empty string"))
	}
	if e.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("instrument %q symbol cannot be an empty string", e.ID))
	}
	if _, err := shared.ParseInstrumentType(e.Type); err != nil {
		errs = errors.Join(errs, fmt.Errorf("instrument %q: %w", e.ID, err))
	}
	if e.Price <= 0 {
		errs = errors.Join(errs, fmt.Errorf("instrument %q price must be positive", e.ID))
	}

	return errs
}

// NewInstrument seeds an instrument from the provided entry. Seed values are
// deterministic so an unrefreshed snapshot always equals the registry.
func NewInstrument(e Entry) (shared.Instrument, error) {
	err := e.Validate()
	if err != nil {
		return shared.Instrument{}, err
	}

	instrumentType, _ := shared.ParseInstrumentType(e.Type)

	high := e.Price * (1 + seedRangePercent/2)
	low := e.Price * (1 - seedRangePercent/2)
	candle := shared.Candlestick{
		Open:  low + (high-low)*seedOpenPercent,
		High:  high,
		Low:   low,
		Close: e.Price,
	}

	history := make([]float64, shared.MaxPriceHistory)
	for idx := range history {
		history[idx] = e.Price
	}

	inst := shared.Instrument{
		ID:                  e.ID,
		Symbol:              e.Symbol,
		Description:         e.Description,
		Type:                instrumentType,
		Open:                candle.Open,
		High:                candle.High,
		Low:                 candle.Low,
		Close:               candle.Close,
		Price:               e.Price,
		ATR:                 candle.ATR(),
		PriceChange:         e.PriceChange,
		Spread:              e.Spread,
		Candle:              candle.FetchKind().String(),
		LastUpdateDirection: shared.None,
		PriceHistory:        shared.NewPriceHistory(history),
	}
	inst.RSI = seedRSI(e.ID)

	return inst, nil
}

// seedRSI derives a stand-in rsi reading for every timeframe from the instrument id.
// Readings differ across instruments and timeframes but are stable across restarts.
func seedRSI(id string) map[shared.Timeframe]shared.RSIData {
	readings := make(map[shared.Timeframe]shared.RSIData, len(shared.AllTimeframes))
	for _, tf := range shared.AllTimeframes {
		h := xxhash.Sum64String(strings.ToUpper(id) + ":" + tf.String())
		valueFrac := float64(h>>32) / float64(1<<32)
		stepFrac := float64(h&0x7fffffff) / float64(1<<31)

		value := indicator.RoundRSI(seedRSIFloor + valueFrac*seedRSISpan)
		step := seedRSIMinStep + stepFrac*(seedRSIMaxStep-seedRSIMinStep)
		if h&(1<<31) != 0 {
			step = -step
		}
		prev := indicator.RoundRSI(value - step)

		readings[tf] = shared.NewRSIData(value, prev)
	}

	return readings
}

// build seeds instruments for every provided entry, rejecting duplicate ids.
func build(entries []Entry) ([]shared.Instrument, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no instruments provided for registry")
	}

	seen := make(map[string]struct{}, len(entries))
	instruments := make([]shared.Instrument, 0, len(entries))
	var errs error
	for idx := range entries {
		entry := entries[idx]
		key := strings.ToUpper(entry.ID)
		if _, ok := seen[key]; ok {
			errs = errors.Join(errs, fmt.Errorf("duplicate instrument id %q", entry.ID))
			continue
		}
		seen[key] = struct{}{}

		inst, err := NewInstrument(entry)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		instruments = append(instruments, inst)
	}

	if errs != nil {
		return nil, errs
	}

	return instruments, nil
}

// Default returns the default instrument registry.
func Default() []shared.Instrument {
	instruments, err := build(defaultEntries)
	if err != nil {
		// The default entries are static and always valid.
		panic(fmt.Sprintf("building default registry: %v", err))
	}

	return instruments
}

// Load reads the instrument registry from the yaml file at the provided path.
func Load(path string) ([]shared.Instrument, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file with path '%s': %w", path, err)
	}

	var file File
	err = yaml.Unmarshal(b, &file)
	if err != nil {
		return nil, fmt.Errorf("decoding registry file: %w", err)
	}

	instruments, err := build(file.Instruments)
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	return instruments, nil
}
