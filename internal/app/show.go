package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent samples.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show samples")
	}
	if closeStore != nil {
		defer closeStore()
	}

	samples, err := store.ListRecentSamples(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPool\tSymbol\tAPY%\tTVL USD\tThreshold%\tAlert")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			sample.RunTS.UTC().Format(time.RFC3339),
			sample.PoolID,
			sample.Symbol,
			formatDecimal(sample.APY, 2),
			formatDecimal(sample.TVLUSD, 0),
			formatDecimal(sample.ThresholdAPY, 2),
			sample.AlertTriggered,
		)
	}

	writer.Flush()
	return nil
}
