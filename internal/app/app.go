package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"apy-alerts/internal/alerting"
	"apy-alerts/internal/config"
	"apy-alerts/internal/fetcher"
	"apy-alerts/internal/scheduler"
	"apy-alerts/internal/screener"
	"apy-alerts/internal/service"
	"apy-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.PoolFetcher {
	return fetcher.NewLlama(fetcher.LlamaOptions{
		BaseURL:   a.Config.Llama.BaseURL,
		Timeout:   a.Config.Llama.RequestTimeout,
		UserAgent: a.Config.Llama.UserAgent,
	}, a.Logger)
}

func (a *App) newScreener() *screener.Screener {
	return screener.New(screener.Options{
		PoolIDs:     a.Config.Watch.PoolIDs,
		Projects:    a.Config.Watch.Projects,
		Chains:      a.Config.Watch.Chains,
		Symbols:     a.Config.Watch.Symbols,
		SymbolMatch: screener.MatchMode(a.Config.Watch.SymbolMatch),
	})
}

func (a *App) newFileLog() *storage.FileLog {
	return storage.NewFileLog(storage.FileLogOptions{
		LogsDir:    a.Config.Files.LogsDir,
		ExportsDir: a.Config.Files.ExportsDir,
		Slug:       a.Config.Files.Slug,
	}, a.Logger)
}

func (a *App) newNotifiers() []alerting.Notifier {
	notifiers := make([]alerting.Notifier, 0, 2)
	for _, channel := range a.Config.Alerting.Channels {
		if channel == "console" {
			notifiers = append(notifiers, alerting.NewConsoleNotifier(os.Stdout))
		}
	}
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.RequestTimeout, a.Logger))
	}
	return notifiers
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newService(store *storage.Store, sched *scheduler.Scheduler) *service.Service {
	var sampleStore storage.PoolSampleStore
	var alertStore storage.AlertStore
	if store != nil {
		sampleStore = store
		alertStore = store
	}

	return service.New(a.Config, sched, a.newFetcher(), a.newScreener(), a.newFileLog(), sampleStore, alertStore, a.newNotifiers(), a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; history persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, sched)

	a.Logger.Info().Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// Once performs a single monitoring run, for externally scheduled
// invocations. A non-nil error maps to a non-zero exit code.
func (a *App) Once(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc := a.newService(store, nil)

	runTS := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	return svc.ProcessRun(ctx, runTS)
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PoolID    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// BackfillOptions configure the history backfill job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// VerifyOptions configure the on-chain cross-check.
type VerifyOptions struct {
	PoolID string
	Asset  string
}
