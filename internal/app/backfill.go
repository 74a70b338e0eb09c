package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"apy-alerts/internal/storage"
)

// Backfill 从 /chart 历史接口回填目标池的样本。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return errors.New("回填范围为空，请检查 --from/--to")
	}
	if len(a.Config.Watch.PoolIDs) == 0 {
		return errors.New("watch.pool_ids 未配置，无法回填")
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("回填 dry-run：不会写入数据库")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回填")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	poolFetcher := a.newFetcher()
	threshold := decimal.NewFromFloat(a.Config.Alerting.ThresholdAPY)

	processed := 0
	failed := 0
	for _, poolID := range a.Config.Watch.PoolIDs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		points, fetchErr := poolFetcher.FetchPoolHistory(ctx, poolID)
		if fetchErr != nil {
			failed++
			a.Logger.Error().Err(fetchErr).Str("pool_id", poolID).Msg("回填失败")
			continue
		}

		rows := 0
		for _, point := range points {
			if point.Timestamp.Before(from) || !point.Timestamp.Before(to) {
				continue
			}
			if store != nil {
				sample := storage.PoolSample{
					RunTS:          point.Timestamp,
					PoolID:         poolID,
					APY:            point.APY,
					TVLUSD:         point.TVLUSD,
					ThresholdAPY:   threshold,
					AlertTriggered: point.APY.GreaterThanOrEqual(threshold),
					CreatedAt:      time.Now().UTC(),
				}
				if upsertErr := store.UpsertPoolSample(ctx, sample); upsertErr != nil {
					failed++
					a.Logger.Error().Err(upsertErr).Str("pool_id", poolID).Time("run_ts", point.Timestamp).Msg("回填写入失败")
					continue
				}
			}
			rows++
		}

		processed++
		a.Logger.Info().Str("pool_id", poolID).Int("rows", rows).Msg("pool history backfilled")
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("回填完成")
	if failed > 0 {
		return errors.New("部分池回填失败，请检查日志")
	}
	return nil
}
