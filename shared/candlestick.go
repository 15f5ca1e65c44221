package shared

import (
	"math"
)

// Kind represents type of candlestick.
type Kind int

const (
	Marubozu Kind = iota
	Pinbar
	Doji
	SpinningTop
	Unknown
)

// String stringifies the provided candlestick kind.
func (k Kind) String() string {
	switch k {
	case Marubozu:
		return "Marubozu"
	case Pinbar:
		return "Pinbar"
	case Doji:
		return "Doji"
	case SpinningTop:
		return "Spinning Top"
	default:
		return "Unknown"
	}
}

// Sentiment represents the candlestick sentiment.
type Sentiment int

const (
	Neutral Sentiment = iota
	Bullish
	Bearish
)

// String stringifies the provided sentiment.
func (s Sentiment) String() string {
	switch s {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "neutral"
	}
}

// Candlestick represents a unit OHLC candlestick.
type Candlestick struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// FetchSentiment returns the provided candlestick's sentiment.
func (c *Candlestick) FetchSentiment() Sentiment {
	sentiment := c.Close - c.Open
	switch {
	case sentiment < 0:
		return Bearish
	case sentiment > 0:
		return Bullish
	default:
		return Neutral
	}
}

// FetchKind returns the candlestick type.
func (c *Candlestick) FetchKind() Kind {
	candleRange := c.High - c.Low
	if candleRange <= 0 {
		return Unknown
	}

	candleBody := math.Abs(c.Close - c.Open)
	upperWickRange := c.High - math.Max(c.Open, c.Close)
	lowerWickRange := math.Min(c.Open, c.Close) - c.Low

	bodyPercent := candleBody / candleRange
	upperWickPercent := upperWickRange / candleRange
	lowerWickPercent := lowerWickRange / candleRange

	switch {
	case bodyPercent <= 0.3 && (upperWickPercent >= 0.6 || lowerWickPercent >= 0.6):
		// A small body with one dominant wick is a pin bar.
		return Pinbar
	case bodyPercent <= 0.3 && upperWickPercent >= 0.3 && lowerWickPercent >= 0.3:
		// A small body with near identical wicks on both sides is a doji.
		return Doji
	case bodyPercent <= 0.3:
		return SpinningTop
	case bodyPercent >= 0.7:
		return Marubozu
	default:
		return Unknown
	}
}

// ATR approximates the average true range of a single candle as 1.5x its range.
func (c *Candlestick) ATR() float64 {
	return (c.High - c.Low) * 1.5
}
