package fetcher

import (
	"context"

	"cryptalert/internal/market"
)

// RatesFetcher retrieves one snapshot of the watched currencies from the data source.
type RatesFetcher interface {
	FetchRates(ctx context.Context) (*market.Snapshot, error)
}
