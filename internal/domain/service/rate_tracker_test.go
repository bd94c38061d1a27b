package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDelayForPercentRemaining_IsMonotoneNonIncreasingInPercent(t *testing.T) {
	cases := []int{100, 60, 51, 50, 30, 20, 15, 10, 5, 0}
	var prev time.Duration
	for i, pct := range cases {
		d := delayForPercentRemaining(pct)
		if i > 0 && d < prev {
			t.Fatalf("delay should never decrease as percent_remaining drops: pct=%d delay=%v < previous=%v", pct, d, prev)
		}
		prev = d
	}
}

func TestDelayForPercentRemaining_StepBoundaries(t *testing.T) {
	cases := []struct {
		pct  int
		want time.Duration
	}{
		{100, 1000 * time.Millisecond},
		{51, 1000 * time.Millisecond},
		{50, 1500 * time.Millisecond},
		{20, 1500 * time.Millisecond},
		{19, 2000 * time.Millisecond},
		{10, 2000 * time.Millisecond},
		{9, 2500 * time.Millisecond},
		{0, 2500 * time.Millisecond},
	}
	for _, c := range cases {
		if got := delayForPercentRemaining(c.pct); got != c.want {
			t.Errorf("delayForPercentRemaining(%d) = %v, want %v", c.pct, got, c.want)
		}
	}
}

func TestRateTracker_ObserveTightensLimiterAsQuotaDrops(t *testing.T) {
	rt := NewRateTracker(zap.NewNop())
	rt.Observe(5) // < 10% remaining -> slowest pacing

	start := time.Now()
	ctx := context.Background()
	if err := rt.WaitForSlot(ctx); err != nil {
		t.Fatalf("first wait should not error: %v", err)
	}
	if err := rt.WaitForSlot(ctx); err != nil {
		t.Fatalf("second wait should not error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Fatalf("expected the second slot to be paced at ~2.5s once quota is low, got %v", elapsed)
	}
}

func TestRateTracker_SetRetryAfterBlocksUntilDeadline(t *testing.T) {
	rt := NewRateTracker(zap.NewNop())
	rt.SetRetryAfter(1)

	start := time.Now()
	if err := rt.WaitForSlot(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Fatalf("expected WaitForSlot to honor the retry-after deadline, only waited %v", elapsed)
	}
}

func TestRateTracker_WaitForSlotRespectsContextCancellation(t *testing.T) {
	rt := NewRateTracker(zap.NewNop())
	rt.SetRetryAfter(30) // long deadline

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := rt.WaitForSlot(ctx)
	if err == nil {
		t.Fatal("expected context deadline error, got nil")
	}
}
