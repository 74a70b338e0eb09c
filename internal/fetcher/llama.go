package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	poolsPath = "/pools"
	chartPath = "/chart"
)

var (
	// ErrNetwork indicates the upstream request failed or returned a non-2xx status.
	ErrNetwork = errors.New("llama: request failed")
	// ErrDecode indicates the upstream body could not be decoded.
	ErrDecode = errors.New("llama: malformed response")
)

// LlamaOptions parameterise the DefiLlama yields fetcher.
type LlamaOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Llama fetches pool data from the DefiLlama yields API.
type Llama struct {
	opts    LlamaOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewLlama constructs a yields API fetcher.
func NewLlama(opts LlamaOptions, logger zerolog.Logger) *Llama {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://yields.llama.fi"
	}

	return &Llama{
		opts:    opts,
		logger:  logger.With().Str("component", "llama_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPools retrieves the full pool list from /pools.
func (l *Llama) FetchPools(ctx context.Context) ([]Pool, error) {
	payload, err := l.get(ctx, l.baseURL+poolsPath)
	if err != nil {
		return nil, err
	}

	var res poolsResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if res.Data == nil {
		return nil, fmt.Errorf("%w: missing data field", ErrDecode)
	}

	pools := make([]Pool, 0, len(res.Data))
	for _, p := range res.Data {
		pools = append(pools, Pool{
			ID:      p.Pool,
			Chain:   p.Chain,
			Project: p.Project,
			Symbol:  p.Symbol,
			APY:     decimalOrZero(p.APY),
			TVLUSD:  decimalOrZero(p.TVLUSD),
		})
	}

	l.logger.Debug().Int("pools", len(pools)).Msg("fetched pool list")
	return pools, nil
}

// FetchPoolHistory retrieves historical observations from /chart/{pool}.
func (l *Llama) FetchPoolHistory(ctx context.Context, poolID string) ([]HistoryPoint, error) {
	if poolID == "" {
		return nil, errors.New("pool id required")
	}

	payload, err := l.get(ctx, l.baseURL+chartPath+"/"+poolID)
	if err != nil {
		return nil, err
	}

	var res chartResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	points := make([]HistoryPoint, 0, len(res.Data))
	for _, p := range res.Data {
		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: parse timestamp %q: %v", ErrDecode, p.Timestamp, err)
		}
		points = append(points, HistoryPoint{
			Timestamp: ts.UTC(),
			APY:       decimalOrZero(p.APY),
			TVLUSD:    decimalOrZero(p.TVLUSD),
		})
	}

	return points, nil
}

func (l *Llama) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(l.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "apywatcher/1.0")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError(resp.StatusCode, payload)
	}

	return payload, nil
}

type poolsResponse struct {
	Status string        `json:"status"`
	Data   []poolPayload `json:"data"`
}

type poolPayload struct {
	Pool    string   `json:"pool"`
	Chain   string   `json:"chain"`
	Project string   `json:"project"`
	Symbol  string   `json:"symbol"`
	APY     *float64 `json:"apy"`
	TVLUSD  *float64 `json:"tvlUsd"`
}

type chartResponse struct {
	Status string         `json:"status"`
	Data   []chartPayload `json:"data"`
}

type chartPayload struct {
	Timestamp string   `json:"timestamp"`
	APY       *float64 `json:"apy"`
	TVLUSD    *float64 `json:"tvlUsd"`
}

func httpError(status int, payload []byte) error {
	var apiErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("%w: status %d: %s", ErrNetwork, status, apiErr.Message)
	}
	if trimmed := strings.TrimSpace(string(payload)); trimmed != "" && len(trimmed) <= 256 {
		return fmt.Errorf("%w: status %d: %s", ErrNetwork, status, trimmed)
	}
	return fmt.Errorf("%w: status %d", ErrNetwork, status)
}

// decimalOrZero follows the upstream convention of treating a missing apy as 0.
func decimalOrZero(v *float64) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

var _ PoolFetcher = (*Llama)(nil)
