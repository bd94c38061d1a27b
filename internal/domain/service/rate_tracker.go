package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateTracker enforces the adaptive inter-request delay described in
// §4.8, plus the Retry-After-driven rate_limit_until deadline. The
// pacing primitive is a rate.Limiter reconfigured as percent_remaining
// changes — every outgoing request still goes through Wait, but the
// limiter's rate is the step function below rather than a fixed value.
type RateTracker struct {
	mu           sync.Mutex
	limiter      *rate.Limiter
	rateLimitUntil time.Time
	logger       *zap.Logger
}

// NewRateTracker creates a tracker starting at the most permissive
// delay (percent_remaining > 50%).
func NewRateTracker(logger *zap.Logger) *RateTracker {
	return &RateTracker{
		limiter: rate.NewLimiter(rate.Every(delayForPercentRemaining(100)), 1),
		logger:  logger,
	}
}

// delayForPercentRemaining implements the step function in §4.8.
func delayForPercentRemaining(pct int) time.Duration {
	switch {
	case pct > 50:
		return 1000 * time.Millisecond
	case pct >= 20:
		return 1500 * time.Millisecond
	case pct >= 10:
		return 2000 * time.Millisecond
	default:
		return 2500 * time.Millisecond
	}
}

// Observe updates the minimum inter-request delay from the current
// percent_remaining (derived from X-RateLimit-* headers or the Copilot
// quota header). The delay is monotone-non-increasing in percent
// remaining (§8 invariant 7).
func (t *RateTracker) Observe(percentRemaining int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delay := delayForPercentRemaining(percentRemaining)
	t.limiter.SetLimit(rate.Every(delay))
}

// SetRetryAfter records a hard rate_limit_until deadline from a
// Retry-After header or classified 429 body.
func (t *RateTracker) SetRetryAfter(seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rateLimitUntil = time.Now().Add(time.Duration(seconds) * time.Second)
}

// WaitForSlot blocks until both the adaptive pacing limiter and any
// outstanding rate_limit_until deadline have cleared, interruptible by
// ctx cancellation (which the Interrupt Detector drives) (§4.8, §5).
func (t *RateTracker) WaitForSlot(ctx context.Context) error {
	t.mu.Lock()
	until := t.rateLimitUntil
	t.mu.Unlock()

	if remaining := time.Until(until); remaining > 0 {
		t.logger.Info("rate limited, sleeping", zap.Duration("remaining", remaining))
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return t.limiter.Wait(ctx)
}
