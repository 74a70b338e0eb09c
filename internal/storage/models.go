package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolSample represents one persisted per-pool observation for a run.
type PoolSample struct {
	RunTS          time.Time
	PoolID         string
	Chain          string
	Project        string
	Symbol         string
	APY            decimal.Decimal
	TVLUSD         decimal.Decimal
	ThresholdAPY   decimal.Decimal
	AlertTriggered bool
	CreatedAt      time.Time
}

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID           int64
	RunTS        time.Time
	PoolID       string
	Symbol       string
	APY          decimal.Decimal
	ThresholdAPY decimal.Decimal
	Channels     []string
	CreatedAt    time.Time
}
