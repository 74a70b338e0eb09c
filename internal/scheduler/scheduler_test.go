package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)
	next := s.nextTick(now)
	if !next.Equal(time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("应对齐到下个整点, 实际 %v", next)
	}

	// exactly on a boundary the next run is one interval later
	next = s.nextTick(time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC))
	if !next.Equal(time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)) {
		t.Fatalf("整点时刻应推到下个周期, 实际 %v", next)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: false}, zerolog.Nop())

	now := time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)
	if next := s.nextTick(now); !next.Equal(now.Add(time.Hour)) {
		t.Fatalf("非对齐模式应为 now+interval, 实际 %v", next)
	}
}

func TestSkippedRuns(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		from     time.Time
		to       time.Time
		interval time.Duration
		want     int
	}{
		{"no overrun", base, base, time.Hour, 0},
		{"realigned within one interval", base, base.Add(time.Hour), time.Hour, 1},
		{"three runs lost", base, base.Add(3 * time.Hour), time.Hour, 3},
		{"to before from", base.Add(time.Hour), base, time.Hour, 0},
		{"bad interval", base, base.Add(time.Hour), 0, 0},
	}

	for _, tc := range cases {
		if got := skippedRuns(tc.from, tc.to, tc.interval); got != tc.want {
			t.Fatalf("%s: 期望 %d, 实际 %d", tc.name, tc.want, got)
		}
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, func(ctx context.Context, runTS time.Time) error {
		t.Fatal("已取消的上下文不应触发运行")
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("应返回 context.Canceled, 实际 %v", err)
	}
}
