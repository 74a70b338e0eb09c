package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"apy-alerts/internal/alerting"
	"apy-alerts/internal/config"
	"apy-alerts/internal/fetcher"
	"apy-alerts/internal/scheduler"
	"apy-alerts/internal/screener"
	"apy-alerts/internal/storage"
)

// Service orchestrates fetching, filtering, persistence, and alerting.
type Service struct {
	scheduler  *scheduler.Scheduler
	fetcher    fetcher.PoolFetcher
	screener   *screener.Screener
	filelog    *storage.FileLog
	store      storage.PoolSampleStore
	alertStore storage.AlertStore
	notifiers  []alerting.Notifier
	logger     zerolog.Logger

	threshold decimal.Decimal
	channels  []string
	alertsOn  bool
	locker    storage.AdvisoryLocker
	lockKey   int64
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, poolFetcher fetcher.PoolFetcher, scr *screener.Screener, filelog *storage.FileLog, store storage.PoolSampleStore, alertStore storage.AlertStore, notifiers []alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		fetcher:    poolFetcher,
		screener:   scr,
		filelog:    filelog,
		store:      store,
		alertStore: alertStore,
		notifiers:  notifiers,
		logger:     logger.With().Str("component", "service").Logger(),
		threshold:  decimal.NewFromFloat(cfg.Alerting.ThresholdAPY),
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned polling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessRun)
}

// ProcessRun 执行单次采集流程。
func (s *Service) ProcessRun(ctx context.Context, runTS time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("run_ts", runTS).Msg("skip run because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeRun(ctx, runTS)
}

func (s *Service) executeRun(ctx context.Context, runTS time.Time) error {
	pools, err := s.fetcher.FetchPools(ctx)
	if err != nil {
		return fmt.Errorf("fetch pools: %w", err)
	}

	matched, missing := s.screener.Filter(pools)
	for _, id := range missing {
		s.logger.Warn().Str("pool_id", id).Msg("configured pool id not found upstream")
	}
	if len(matched) == 0 {
		s.logger.Warn().Int("upstream", len(pools)).Msg("no target pools matched; nothing to record")
		return nil
	}

	results := screener.Evaluate(matched, s.threshold)

	if s.filelog != nil {
		if err := s.filelog.AppendRun(runTS, results); err != nil {
			return fmt.Errorf("append run log: %w", err)
		}
		if err := s.filelog.WriteSnapshot(runTS, results); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}

	for _, res := range results {
		s.recordSample(ctx, runTS, res)

		s.logger.Info().Time("run_ts", runTS).
			Str("pool_id", res.Pool.ID).
			Str("symbol", res.Pool.Symbol).
			Str("apy", res.Pool.APY.String()).
			Bool("alert_triggered", res.AlertTriggered).
			Msg("pool evaluated")

		if res.AlertTriggered && s.alertsOn {
			s.dispatchAlert(ctx, runTS, res)
		}
	}

	return nil
}

// recordSample upserts the observation into Postgres when configured. The
// flat-file log is the system of record, so database failures are non-fatal.
func (s *Service) recordSample(ctx context.Context, runTS time.Time, res screener.Result) {
	if s.store == nil {
		return
	}

	sample := storage.PoolSample{
		RunTS:          runTS,
		PoolID:         res.Pool.ID,
		Chain:          res.Pool.Chain,
		Project:        res.Pool.Project,
		Symbol:         res.Pool.Symbol,
		APY:            res.Pool.APY,
		TVLUSD:         res.Pool.TVLUSD,
		ThresholdAPY:   res.Threshold,
		AlertTriggered: res.AlertTriggered,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.UpsertPoolSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("run_ts", runTS).Str("pool_id", res.Pool.ID).Msg("failed to upsert sample")
	}
}

func (s *Service) dispatchAlert(ctx context.Context, runTS time.Time, res screener.Result) {
	note := alerting.Notification{
		RunTS:        runTS,
		PoolID:       res.Pool.ID,
		Chain:        res.Pool.Chain,
		Project:      res.Pool.Project,
		Symbol:       res.Pool.Symbol,
		APY:          res.Pool.APY,
		TVLUSD:       res.Pool.TVLUSD,
		ThresholdAPY: res.Threshold,
		Channels:     s.channels,
	}

	if s.alertStore != nil {
		record := storage.AlertRecord{
			RunTS:        runTS,
			PoolID:       res.Pool.ID,
			Symbol:       res.Pool.Symbol,
			APY:          res.Pool.APY,
			ThresholdAPY: res.Threshold,
			Channels:     s.channels,
		}
		if _, err := s.alertStore.InsertAlert(ctx, record); err != nil {
			s.logger.Error().Err(err).Time("run_ts", runTS).Str("pool_id", res.Pool.ID).Msg("failed to persist alert record")
		}
	}

	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Time("run_ts", runTS).Str("pool_id", res.Pool.ID).Msg("failed to dispatch alert")
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
