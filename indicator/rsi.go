package indicator

import (
	"math"
)

const (
	// DefaultRSIPeriod is the default RSI lookback period.
	DefaultRSIPeriod = 14
	// H4BlockSize is the number of H1 closes rolled up into a single H4 close.
	H4BlockSize = 4
	// lossEpsilon stands in for a zero average loss to avoid dividing by zero.
	lossEpsilon = 1e-8
)

// ComputeRSI computes the Wilder smoothed Relative Strength Index of the provided closes.
// NaN is returned when fewer than period+1 closes are provided.
func ComputeRSI(closes []float64, period int) float64 {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	if len(closes) < period+1 {
		return math.NaN()
	}

	// Seed the averages with the simple mean of the first period deltas.
	var avgGain, avgLoss float64
	for idx := 1; idx <= period; idx++ {
		delta := closes[idx] - closes[idx-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}

	p := float64(period)
	avgGain /= p
	avgLoss /= p

	for idx := period + 1; idx < len(closes); idx++ {
		delta := closes[idx] - closes[idx-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)

		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		avgLoss = lossEpsilon
	}

	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// Aggregate rolls the provided closes up into a coarser series by taking the last close of
// every complete block of blockSize closes. Blocks are aligned to the most recent close,
// leading closes that do not complete a block are dropped.
//
// This is a close-only approximation of a timeframe roll-up, blocks are not aligned to
// calendar boundaries.
func Aggregate(closes []float64, blockSize int) []float64 {
	if blockSize <= 1 {
		out := make([]float64, len(closes))
		copy(out, closes)
		return out
	}

	out := make([]float64, 0, len(closes)/blockSize)
	for idx := len(closes)%blockSize + blockSize - 1; idx < len(closes); idx += blockSize {
		out = append(out, closes[idx])
	}

	return out
}

// RoundRSI rounds the provided RSI value to two decimal places.
func RoundRSI(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}

	return math.Round(value*100) / 100
}
