package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestFetchPoolsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pools" {
			t.Fatalf("路径应为 /pools, 实际 %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"pool": "aave-v3-ethereum-usdc", "chain": "Ethereum", "project": "aave-v3", "symbol": "USDC", "apy": 5.2, "tvlUsd": 1000000.0},
				{"pool": "aave-v2-ethereum-dai", "chain": "Ethereum", "project": "aave-v2", "symbol": "DAI", "apy": nil, "tvlUsd": nil},
			},
		})
	}))
	defer srv.Close()

	l := NewLlama(LlamaOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())

	pools, err := l.FetchPools(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(pools) != 2 {
		t.Fatalf("期望 2 个池, 实际 %d", len(pools))
	}
	if pools[0].ID != "aave-v3-ethereum-usdc" || pools[0].Symbol != "USDC" {
		t.Fatalf("第一个池解析不正确: %+v", pools[0])
	}
	if !pools[0].APY.Equal(decimal.NewFromFloat(5.2)) {
		t.Fatalf("期望 APY 5.2, 实际 %s", pools[0].APY.String())
	}
	if !pools[1].APY.IsZero() {
		t.Fatalf("缺失 apy 应默认为 0, 实际 %s", pools[1].APY.String())
	}
}

func TestFetchPoolsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "upstream down"})
	}))
	defer srv.Close()

	l := NewLlama(LlamaOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	_, err := l.FetchPools(context.Background())
	if err == nil {
		t.Fatal("HTTP 500 应返回错误")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("应为网络错误, 实际 %v", err)
	}
}

func TestFetchPoolsMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "success", "data": [`))
	}))
	defer srv.Close()

	l := NewLlama(LlamaOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	_, err := l.FetchPools(context.Background())
	if err == nil {
		t.Fatal("畸形 JSON 应返回错误")
	}
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("应为解析错误, 实际 %v", err)
	}
}

func TestFetchPoolsMissingData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "success"}`))
	}))
	defer srv.Close()

	l := NewLlama(LlamaOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	if _, err := l.FetchPools(context.Background()); !errors.Is(err, ErrDecode) {
		t.Fatalf("缺少 data 字段应为解析错误, 实际 %v", err)
	}
}

func TestFetchPoolHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chart/aave-v3-ethereum-usdc" {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": []map[string]any{
				{"timestamp": "2026-08-29T00:00:00Z", "apy": 4.8, "tvlUsd": 900000.0},
				{"timestamp": "2026-08-30T00:00:00Z", "apy": 5.1, "tvlUsd": 950000.0},
			},
		})
	}))
	defer srv.Close()

	l := NewLlama(LlamaOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	points, err := l.FetchPoolHistory(context.Background(), "aave-v3-ethereum-usdc")
	if err != nil {
		t.Fatalf("历史接口不应报错: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("期望 2 个历史点, 实际 %d", len(points))
	}
	if !points[1].APY.Equal(decimal.NewFromFloat(5.1)) {
		t.Fatalf("期望 APY 5.1, 实际 %s", points[1].APY.String())
	}

	if _, err := l.FetchPoolHistory(context.Background(), ""); err == nil {
		t.Fatal("空 pool id 应报错")
	}
}
