package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"apy-alerts/internal/alerting"
	"apy-alerts/internal/config"
	"apy-alerts/internal/fetcher"
	"apy-alerts/internal/screener"
	"apy-alerts/internal/storage"
)

type fakeFetcher struct {
	pools []fetcher.Pool
	err   error
}

func (f *fakeFetcher) FetchPools(ctx context.Context) ([]fetcher.Pool, error) {
	return f.pools, f.err
}

func (f *fakeFetcher) FetchPoolHistory(ctx context.Context, poolID string) ([]fetcher.HistoryPoint, error) {
	return nil, errors.New("not implemented")
}

var _ fetcher.PoolFetcher = (*fakeFetcher)(nil)

func testConfig(threshold float64) *config.Config {
	return &config.Config{
		Alerting: config.AlertingConfig{
			Enabled:      true,
			ThresholdAPY: threshold,
			Channels:     []string{"console"},
		},
		Scheduler: config.SchedulerConfig{Interval: time.Hour},
	}
}

func testService(t *testing.T, cfg *config.Config, f fetcher.PoolFetcher, scr *screener.Screener, out *bytes.Buffer) (*Service, *storage.FileLog) {
	t.Helper()
	dir := t.TempDir()
	flog := storage.NewFileLog(storage.FileLogOptions{
		LogsDir:    filepath.Join(dir, "logs"),
		ExportsDir: filepath.Join(dir, "exports"),
		Slug:       "test",
	}, zerolog.Nop())

	notifiers := []alerting.Notifier{alerting.NewConsoleNotifier(out)}
	svc := New(cfg, nil, f, scr, flog, nil, nil, notifiers, zerolog.Nop())
	return svc, flog
}

func TestProcessRunAlertsAboveThreshold(t *testing.T) {
	f := &fakeFetcher{pools: []fetcher.Pool{
		{ID: "aave-v3-ethereum-usdc", Symbol: "USDC", APY: decimal.NewFromFloat(5.2)},
		{ID: "aave-v2-ethereum-dai", Symbol: "DAI", APY: decimal.NewFromFloat(3.1)},
	}}
	scr := screener.New(screener.Options{PoolIDs: []string{"aave-v3-ethereum-usdc", "aave-v2-ethereum-dai"}})
	out := &bytes.Buffer{}

	svc, flog := testService(t, testConfig(4.0), f, scr, out)

	runTS := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := svc.ProcessRun(context.Background(), runTS); err != nil {
		t.Fatalf("运行不应失败: %v", err)
	}

	alerts := out.String()
	if !strings.Contains(alerts, "aave-v3-ethereum-usdc") {
		t.Fatalf("USDC 池应触发告警: %q", alerts)
	}
	if strings.Contains(alerts, "aave-v2-ethereum-dai") {
		t.Fatalf("DAI 池不应触发告警: %q", alerts)
	}

	// both pools logged, header included
	payload, err := os.ReadFile(flog.LogPath())
	if err != nil {
		t.Fatalf("CSV 日志应已写入: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	if len(lines) != 3 {
		t.Fatalf("期望 1 表头 + 2 行, 实际 %d", len(lines))
	}
	if !strings.Contains(lines[1], "true") || !strings.Contains(lines[2], "false") {
		t.Fatalf("alert_triggered 列不正确: %v", lines)
	}

	if _, err := os.Stat(flog.SnapshotPath()); err != nil {
		t.Fatalf("快照应已写入: %v", err)
	}
}

func TestProcessRunFetchFailure(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("%w: boom", fetcher.ErrNetwork)}
	scr := screener.New(screener.Options{PoolIDs: []string{"p1"}})
	out := &bytes.Buffer{}

	svc, flog := testService(t, testConfig(4.0), f, scr, out)

	err := svc.ProcessRun(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("抓取失败应终止本次运行")
	}
	if !errors.Is(err, fetcher.ErrNetwork) {
		t.Fatalf("应保留网络错误类型: %v", err)
	}

	// no CSV row may be written on a failed run
	if _, statErr := os.Stat(flog.LogPath()); !os.IsNotExist(statErr) {
		t.Fatal("失败的运行不应写入 CSV")
	}
	if out.Len() != 0 {
		t.Fatalf("失败的运行不应发告警: %q", out.String())
	}
}

func TestProcessRunDecodeFailure(t *testing.T) {
	f := &fakeFetcher{err: fmt.Errorf("%w: bad json", fetcher.ErrDecode)}
	scr := screener.New(screener.Options{PoolIDs: []string{"p1"}})

	svc, flog := testService(t, testConfig(4.0), f, scr, &bytes.Buffer{})

	err := svc.ProcessRun(context.Background(), time.Now().UTC())
	if !errors.Is(err, fetcher.ErrDecode) {
		t.Fatalf("应保留解析错误类型: %v", err)
	}
	if _, statErr := os.Stat(flog.LogPath()); !os.IsNotExist(statErr) {
		t.Fatal("畸形响应不应写入 CSV")
	}
}

func TestProcessRunNoMatches(t *testing.T) {
	f := &fakeFetcher{pools: []fetcher.Pool{{ID: "other", Symbol: "WETH", APY: decimal.NewFromFloat(9.9)}}}
	scr := screener.New(screener.Options{PoolIDs: []string{"p1"}})
	out := &bytes.Buffer{}

	svc, flog := testService(t, testConfig(4.0), f, scr, out)

	if err := svc.ProcessRun(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("无匹配池不算失败: %v", err)
	}
	if _, statErr := os.Stat(flog.LogPath()); !os.IsNotExist(statErr) {
		t.Fatal("无匹配池时不应写入 CSV")
	}
	if out.Len() != 0 {
		t.Fatal("无匹配池时不应发告警")
	}
}

func TestProcessRunAlertingDisabled(t *testing.T) {
	cfg := testConfig(4.0)
	cfg.Alerting.Enabled = false

	f := &fakeFetcher{pools: []fetcher.Pool{{ID: "p1", Symbol: "USDC", APY: decimal.NewFromFloat(9.0)}}}
	scr := screener.New(screener.Options{PoolIDs: []string{"p1"}})
	out := &bytes.Buffer{}

	svc, flog := testService(t, cfg, f, scr, out)

	if err := svc.ProcessRun(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("运行不应失败: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("告警关闭时不应输出: %q", out.String())
	}

	// annotation still persisted with the real flag
	payload, err := os.ReadFile(flog.LogPath())
	if err != nil {
		t.Fatalf("CSV 日志应已写入: %v", err)
	}
	if !strings.Contains(string(payload), "true") {
		t.Fatal("alert_triggered 注记不受告警开关影响")
	}
}
