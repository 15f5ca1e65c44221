package refresh

import (
	"math"

	"github.com/dnldd/screener/indicator"
	"github.com/dnldd/screener/shared"
)

const (
	// defaultSpread is the spread applied to instruments without one.
	defaultSpread = 0.0001
)

// mergeRSI merges a freshly computed RSI reading into the provided timeframe. An
// undefined reading keeps the previous value.
func mergeRSI(inst *shared.Instrument, timeframe shared.Timeframe, computed float64) {
	prev := inst.RSI[timeframe].Value

	value := indicator.RoundRSI(computed)
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = prev
	}

	inst.RSI[timeframe] = shared.NewRSIData(value, prev)
}

// mergeSeries updates the provided instrument with the provided basis closes, oldest
// first. Timeframes without a live computation are carried forward unchanged.
func mergeSeries(inst *shared.Instrument, closes []float64, period int) {
	if len(closes) == 0 {
		return
	}

	inst.EnsureTimeframes()

	mergeRSI(inst, shared.OneHour, indicator.ComputeRSI(closes, period))
	mergeRSI(inst, shared.FourHour, indicator.ComputeRSI(indicator.Aggregate(closes, indicator.H4BlockSize), period))

	latest := closes[len(closes)-1]
	prevClose := inst.Close
	if prevClose == 0 {
		prevClose = latest
	}

	inst.PriceChange = 0
	if prevClose != 0 {
		inst.PriceChange = (latest - prevClose) / prevClose * 100
	}
	inst.LastUpdateDirection = shared.CompareDirection(prevClose, latest)
	inst.Close = latest
	inst.Price = latest
	if inst.Spread == 0 {
		inst.Spread = defaultSpread
	}

	inst.PriceHistory = shared.NewPriceHistory(closes)
}
