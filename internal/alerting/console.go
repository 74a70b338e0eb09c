package alerting

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ConsoleNotifier writes alert lines to standard output.
type ConsoleNotifier struct {
	out io.Writer
}

// NewConsoleNotifier constructs a console notifier. A nil writer defaults to stdout.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleNotifier{out: out}
}

// Notify prints a single alert line for a triggered pool.
func (c *ConsoleNotifier) Notify(ctx context.Context, note Notification) error {
	_, err := fmt.Fprintf(
		c.out,
		"ALERT: High Yield Detected! Pool: %s | APY: %s%% >= Threshold: %s%%\n",
		note.PoolID,
		note.APY.StringFixed(2),
		note.ThresholdAPY.StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("write console alert: %w", err)
	}
	return nil
}

var _ Notifier = (*ConsoleNotifier)(nil)
