package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testNote() Notification {
	return Notification{
		RunTS:        time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		PoolID:       "aave-v3-ethereum-usdc",
		Chain:        "Ethereum",
		Project:      "aave-v3",
		Symbol:       "USDC",
		APY:          decimal.NewFromFloat(5.2),
		ThresholdAPY: decimal.NewFromFloat(4.0),
		Channels:     []string{"console"},
	}
}

func TestConsoleNotifier(t *testing.T) {
	buf := &bytes.Buffer{}
	notifier := NewConsoleNotifier(buf)

	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("控制台告警不应报错: %v", err)
	}

	line := buf.String()
	if !strings.Contains(line, "aave-v3-ethereum-usdc") {
		t.Fatalf("告警行应包含池标识: %s", line)
	}
	if !strings.Contains(line, "5.20%") || !strings.Contains(line, "4.00%") {
		t.Fatalf("告警行应包含 APY 与阈值: %s", line)
	}
	if !strings.HasPrefix(line, "ALERT:") {
		t.Fatalf("告警行应以 ALERT: 开头: %s", line)
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "aave-v3-ethereum-usdc") {
		t.Fatalf("消息应包含池标识: %s", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
