package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"apy-alerts/internal/fetcher"
)

// Verify cross-checks the aggregator's reported APY against the live Aave
// supply rate read directly from the Pool contract.
func (a *App) Verify(ctx context.Context, opts VerifyOptions) error {
	if opts.PoolID == "" || opts.Asset == "" {
		return errors.New("--pool-id and --asset must be provided")
	}

	onchain := fetcher.NewOnchain(fetcher.OnchainOptions{
		RPCURL:      a.Config.Ethereum.RPCURL,
		PoolAddress: a.Config.Ethereum.PoolAddress,
		Timeout:     a.Config.Ethereum.RequestTimeout,
	}, a.Logger)

	aprPct, blockNumber, err := onchain.FetchSupplyRate(ctx, opts.Asset)
	if err != nil {
		return fmt.Errorf("fetch on-chain supply rate: %w", err)
	}

	pools, err := a.newFetcher().FetchPools(ctx)
	if err != nil {
		return fmt.Errorf("fetch pools: %w", err)
	}

	for _, pool := range pools {
		if pool.ID != opts.PoolID {
			continue
		}

		diff := pool.APY.Sub(aprPct)
		fmt.Fprintf(os.Stdout, "Pool:            %s (%s/%s)\n", pool.ID, pool.Project, pool.Chain)
		fmt.Fprintf(os.Stdout, "Aggregator APY:  %s%%\n", formatDecimal(pool.APY, 4))
		fmt.Fprintf(os.Stdout, "On-chain APR:    %s%% (block %d)\n", formatDecimal(aprPct, 4), blockNumber)
		fmt.Fprintf(os.Stdout, "Difference:      %s%%\n", formatDecimal(diff, 4))

		a.Logger.Info().
			Str("pool_id", pool.ID).
			Str("aggregator_apy", pool.APY.String()).
			Str("onchain_apr", aprPct.String()).
			Uint64("block", blockNumber).
			Msg("on-chain cross-check complete")
		return nil
	}

	return fmt.Errorf("pool %s not found upstream", opts.PoolID)
}
