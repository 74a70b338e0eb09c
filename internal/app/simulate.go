package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"apy-alerts/internal/fetcher"
	"apy-alerts/internal/screener"
	"apy-alerts/internal/service"
	"apy-alerts/internal/storage"
)

// SimulateAlert 使用给定的池与 APY 模拟一次完整告警流程。
func (a *App) SimulateAlert(ctx context.Context, poolID, symbol string, apy decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifiers := a.newNotifiers()
	if len(notifiers) == 0 {
		return errors.New("未配置任何告警通道")
	}

	static := &staticPoolFetcher{pool: fetcher.Pool{
		ID:      poolID,
		Symbol:  symbol,
		Project: "simulated",
		Chain:   "simulated",
		APY:     apy,
	}}

	scr := screener.New(screener.Options{PoolIDs: []string{poolID}})
	var filelog *storage.FileLog

	svc := service.New(a.Config, nil, static, scr, filelog, nil, nil, notifiers, a.Logger)

	runTS := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.ProcessRun(ctx, runTS)
}

type staticPoolFetcher struct {
	pool fetcher.Pool
}

func (s *staticPoolFetcher) FetchPools(ctx context.Context) ([]fetcher.Pool, error) {
	return []fetcher.Pool{s.pool}, nil
}

func (s *staticPoolFetcher) FetchPoolHistory(ctx context.Context, poolID string) ([]fetcher.HistoryPoint, error) {
	return nil, errors.New("history not available for simulated pools")
}

var _ fetcher.PoolFetcher = (*staticPoolFetcher)(nil)
