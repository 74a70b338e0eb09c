package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Pool is one lending pool record as reported by the upstream yields API.
type Pool struct {
	ID      string
	Chain   string
	Project string
	Symbol  string
	APY     decimal.Decimal
	TVLUSD  decimal.Decimal
}

// HistoryPoint is one historical observation for a single pool.
type HistoryPoint struct {
	Timestamp time.Time
	APY       decimal.Decimal
	TVLUSD    decimal.Decimal
}

// PoolFetcher retrieves lending pool data from the yields aggregator.
type PoolFetcher interface {
	FetchPools(ctx context.Context) ([]Pool, error)
	FetchPoolHistory(ctx context.Context, poolID string) ([]HistoryPoint, error)
}

// SupplyRateFetcher retrieves the on-chain supply rate for a reserve asset.
type SupplyRateFetcher interface {
	FetchSupplyRate(ctx context.Context, asset string) (decimal.Decimal, uint64, error)
}
