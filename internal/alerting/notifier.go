package alerting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Notification 封装告警上下文。
type Notification struct {
	RunTS        time.Time
	PoolID       string
	Chain        string
	Project      string
	Symbol       string
	APY          decimal.Decimal
	TVLUSD       decimal.Decimal
	ThresholdAPY decimal.Decimal
	Channels     []string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}
