package shared

import (
	"context"
)

// MarketFetcher defines the requirements for fetching intraday market data.
type MarketFetcher interface {
	// FetchIntradaySeries fetches the intraday series of the provided pair, oldest first.
	FetchIntradaySeries(ctx context.Context, pair Pair, intervalMinutes int) ([]Sample, error)
}
