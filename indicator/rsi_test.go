package indicator

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

// wilderCloses is the classic Wilder RSI worked example series.
var wilderCloses = []float64{
	44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84, 46.08,
	45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41, 46.22, 45.64,
}

func TestComputeRSIInsufficientSamples(t *testing.T) {
	// Ensure every series shorter than period+1 yields NaN.
	for n := 0; n <= DefaultRSIPeriod; n++ {
		closes := make([]float64, n)
		for idx := range closes {
			closes[idx] = float64(idx + 1)
		}

		rsi := ComputeRSI(closes, DefaultRSIPeriod)
		if !math.IsNaN(rsi) {
			t.Errorf("%d closes: expected NaN, got %f", n, rsi)
		}
	}

	// Ensure a custom period is honoured.
	assert.True(t, math.IsNaN(ComputeRSI([]float64{1, 2, 3}, 3)))
	assert.False(t, math.IsNaN(ComputeRSI([]float64{1, 2, 3, 4}, 3)))
}

func TestComputeRSIGolden(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{
			name:   "seed averages only",
			closes: wilderCloses[:15],
			want:   70.46413502109705,
		},
		{
			name:   "wilder smoothed",
			closes: wilderCloses,
			want:   57.91502067008556,
		},
	}

	for _, test := range tests {
		rsi := ComputeRSI(test.closes, DefaultRSIPeriod)
		if math.Abs(rsi-test.want) > 1e-9 {
			t.Errorf("%s: expected %f, got %f", test.name, test.want, rsi)
		}
	}
}

func TestComputeRSIMonotonic(t *testing.T) {
	rising := make([]float64, 20)
	falling := make([]float64, 20)
	flat := make([]float64, 20)
	for idx := range rising {
		rising[idx] = 1 + float64(idx)*0.01
		falling[idx] = 2 - float64(idx)*0.01
		flat[idx] = 1.5
	}

	// Ensure a steadily rising series approaches 100.
	rsi := ComputeRSI(rising, DefaultRSIPeriod)
	assert.GreaterThan(t, rsi, 99.99)
	assert.LessThanOrEqual(t, rsi, float64(100))

	// Ensure a steadily falling series yields 0.
	assert.Equal(t, ComputeRSI(falling, DefaultRSIPeriod), float64(0))

	// Ensure a flat series has no gains to report.
	assert.Equal(t, ComputeRSI(flat, DefaultRSIPeriod), float64(0))
}

func TestComputeRSIDeterministic(t *testing.T) {
	first := ComputeRSI(wilderCloses, DefaultRSIPeriod)
	for range 10 {
		assert.Equal(t, ComputeRSI(wilderCloses, DefaultRSIPeriod), first)
	}

	// Ensure a non-positive period falls back to the default period.
	assert.Equal(t, ComputeRSI(wilderCloses, 0), first)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name      string
		closes    []float64
		blockSize int
		want      []float64
	}{
		{
			name:      "complete blocks",
			closes:    []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
			blockSize: 4,
			want:      []float64{3, 7, 11},
		},
		{
			name:      "leading remainder dropped",
			closes:    []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
			blockSize: 4,
			want:      []float64{5, 9, 13},
		},
		{
			name:      "fewer closes than a block",
			closes:    []float64{0, 1, 2},
			blockSize: 4,
			want:      []float64{},
		},
		{
			name:      "unit block returns a copy",
			closes:    []float64{1, 2, 3},
			blockSize: 1,
			want:      []float64{1, 2, 3},
		},
	}

	for _, test := range tests {
		got := Aggregate(test.closes, test.blockSize)
		if !cmp.Equal(got, test.want) {
			t.Errorf("%s: mismatching aggregate: %v", test.name, cmp.Diff(test.want, got))
		}
	}

	// Ensure aggregating 12 closes by 4 yields exactly the closes at indices 3, 7 and 11.
	closes := []float64{1.1, 1.2, 1.3, 1.4, 1.5, 1.6, 1.7, 1.8, 1.9, 2.0, 2.1, 2.2}
	got := Aggregate(closes, H4BlockSize)
	assert.Equal(t, len(got), 3)
	assert.Equal(t, got[0], closes[3])
	assert.Equal(t, got[1], closes[7])
	assert.Equal(t, got[2], closes[11])
}

func TestRoundRSI(t *testing.T) {
	assert.Equal(t, RoundRSI(57.91502067008556), 57.92)
	assert.Equal(t, RoundRSI(70.46413502109705), 70.46)
	assert.True(t, math.IsNaN(RoundRSI(math.NaN())))
}
