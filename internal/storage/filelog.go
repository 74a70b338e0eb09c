package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"apy-alerts/internal/screener"
)

var csvHeader = []string{"timestamp", "pool_id", "symbol", "apy", "threshold", "alert_triggered"}

// FileLogOptions locate the append-only CSV log and the JSON snapshot.
type FileLogOptions struct {
	LogsDir    string
	ExportsDir string
	Slug       string
}

// FileLog is the flat-file system of record: an append-only CSV history plus
// a JSON snapshot overwritten on every run.
type FileLog struct {
	opts   FileLogOptions
	logger zerolog.Logger
}

// NewFileLog constructs the flat-file persister.
func NewFileLog(opts FileLogOptions, logger zerolog.Logger) *FileLog {
	if opts.Slug == "" {
		opts.Slug = "aave-all"
	}
	return &FileLog{opts: opts, logger: logger.With().Str("component", "filelog").Logger()}
}

// LogPath returns the CSV history file path.
func (f *FileLog) LogPath() string {
	return filepath.Join(f.opts.LogsDir, fmt.Sprintf("apy_log_%s.csv", f.opts.Slug))
}

// SnapshotPath returns the JSON snapshot file path.
func (f *FileLog) SnapshotPath() string {
	return filepath.Join(f.opts.ExportsDir, fmt.Sprintf("apy_snapshot_%s.json", f.opts.Slug))
}

// AppendRun appends one CSV row per result. The header is written only when
// the file is created; existing rows are never rewritten.
func (f *FileLog) AppendRun(runTS time.Time, results []screener.Result) error {
	if len(results) == 0 {
		return nil
	}

	path := f.LogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	// a zero-byte file left by an interrupted run still needs the header
	info, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr) || (statErr == nil && info.Size() == 0)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open csv log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}

	ts := runTS.UTC().Format(time.RFC3339)
	for _, res := range results {
		record := []string{
			ts,
			res.Pool.ID,
			res.Pool.Symbol,
			res.Pool.APY.String(),
			res.Threshold.String(),
			strconv.FormatBool(res.AlertTriggered),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv log: %w", err)
	}

	f.logger.Info().Int("rows", len(results)).Str("path", path).Msg("appended run to csv log")
	return nil
}

// snapshotEntry is the JSON shape of one annotated pool in the snapshot file.
type snapshotEntry struct {
	Timestamp      time.Time       `json:"timestamp"`
	PoolID         string          `json:"pool_id"`
	Chain          string          `json:"chain"`
	Project        string          `json:"project"`
	Symbol         string          `json:"symbol"`
	APY            decimal.Decimal `json:"apy"`
	TVLUSD         decimal.Decimal `json:"tvl_usd"`
	Threshold      decimal.Decimal `json:"threshold"`
	AlertTriggered bool            `json:"alert_triggered"`
}

// WriteSnapshot overwrites the snapshot file with the latest annotated list.
func (f *FileLog) WriteSnapshot(runTS time.Time, results []screener.Result) error {
	path := f.SnapshotPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create exports dir: %w", err)
	}

	entries := make([]snapshotEntry, 0, len(results))
	for _, res := range results {
		entries = append(entries, snapshotEntry{
			Timestamp:      runTS.UTC(),
			PoolID:         res.Pool.ID,
			Chain:          res.Pool.Chain,
			Project:        res.Pool.Project,
			Symbol:         res.Pool.Symbol,
			APY:            res.Pool.APY,
			TVLUSD:         res.Pool.TVLUSD,
			Threshold:      res.Threshold,
			AlertTriggered: res.AlertTriggered,
		})
	}

	payload, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	f.logger.Info().Int("pools", len(results)).Str("path", path).Msg("snapshot exported")
	return nil
}
