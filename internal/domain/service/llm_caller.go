package service

import (
	"fmt"
	"time"

	"context"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
	"go.uber.org/zap"
)

// callLLMWithRetry calls the LLM with automatic retry and exponential backoff.
// Retry budget is asymmetric by classified error kind (§4.7, §7): transport
// and server_error get up to 20 attempts, everything else gets 3. Before the
// first failure the budget defaults to a.config.MaxRetries.
// Emits retry events so the user knows what's happening.
func (a *AgentLoop) callLLMWithRetry(ctx context.Context, req *LLMRequest, step int, eventCh chan<- entity.AgentEvent) (*LLMResponse, error) {
	var lastErr error
	lastKind := ErrorKind("")
	budget := a.config.MaxRetries

	for attempt := 0; attempt <= budget; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 2s, 4s, 8s...
			wait := a.config.RetryBaseWait * (1 << (attempt - 1))

			a.logger.Info("Retrying LLM call",
				zap.Int("attempt", attempt),
				zap.Int("retry_budget", budget),
				zap.String("error_kind", string(lastKind)),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)

			a.emitEvent(eventCh, entity.AgentEvent{
				Type:    entity.EventThinking,
				Content: fmt.Sprintf("⚡ LLM call failed, retrying (%d/%d) in %s...", attempt, budget, wait),
			})

			// Wait with cancellation support
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		// Try streaming first — forward text deltas in real time
		deltaCh := make(chan StreamChunk, 128)

		// Forward deltas to event channel in a goroutine
		done := make(chan struct{})
		go func() {
			defer close(done)
			for chunk := range deltaCh {
				if chunk.DeltaText != "" {
					a.emitEvent(eventCh, entity.AgentEvent{
						Type:    entity.EventTextDelta,
						Content: chunk.DeltaText,
					})
				}
				// Tool call deltas are accumulated by GenerateStream
				// and returned in the final LLMResponse — no need to emit here
			}
		}()

		// Per-call timeout: prevent individual LLM calls from hanging forever.
		// SSE streams can stall after headers arrive (ResponseHeaderTimeout won't help).
		// 3 minutes is generous for any single LLM inference — retries handle transients.
		callCtx, callCancel := context.WithTimeout(ctx, 3*time.Minute)

		a.logger.Info("[DIAG] LLM GenerateStream starting",
			zap.Int("step", step),
			zap.Int("attempt", attempt),
			zap.String("model", req.Model),
		)

		resp, err := a.llm.GenerateStream(callCtx, req, deltaCh)

		a.logger.Info("[DIAG] LLM GenerateStream returned",
			zap.Int("step", step),
			zap.Bool("has_error", err != nil),
			zap.Error(err),
		)

		callCancel()
		close(deltaCh)
		<-done // Wait for delta forwarding to finish

		a.logger.Info("[DIAG] Delta forwarding complete",
			zap.Int("step", step),
		)

		if err == nil {
			if attempt > 0 {
				a.logger.Info("LLM retry succeeded",
					zap.Int("attempt", attempt),
					zap.Int("step", step),
				)
			}
			a.captureBillingContinuity(resp, req.Model, attempt+1)
			a.updateRateAndQuota(resp)
			if resp != nil {
				a.estimator.Observe(promptCharCount(req.Messages), resp.PromptTokens)
			}
			return resp, nil
		}

		lastErr = err
		classified := ClassifyErr(err)
		lastKind = classified.ErrorKind
		a.logger.Warn("LLM streaming call failed",
			zap.Int("attempt", attempt),
			zap.Int("step", step),
			zap.String("error_kind", string(lastKind)),
			zap.Error(err),
		)

		if lastKind == ErrorRateLimit && classified.RetryAfterSeconds > 0 {
			a.rateTracker.SetRetryAfter(classified.RetryAfterSeconds)
		}

		if !classified.Retryable {
			return nil, fmt.Errorf("non-retryable LLM error (%s): %w", lastKind, err)
		}

		// Re-derive the attempt budget now that the error kind is known
		// (§7 asymmetric retry budget): widen it for transport/server
		// errors, narrow it for everything else, never below what we've
		// already spent.
		if kindBudget := RetryBudget(lastKind); kindBudget > attempt {
			budget = kindBudget
		} else {
			budget = attempt
		}
	}

	return nil, fmt.Errorf("LLM call failed after %d retries (kind=%s): %w", budget, lastKind, lastErr)
}

// captureBillingContinuity implements the §4.8 billing-continuity capture:
// a stateful marker is only ever stored for the first attempt of a given
// model call (tool_call_iteration<=1, enforced inside PrependStatefulMarker
// via StoreStatefulMarker); the response id is kept as the legacy fallback
// regardless of iteration (open question (a) — both paths preserved).
func (a *AgentLoop) captureBillingContinuity(resp *LLMResponse, model string, toolCallIteration int) {
	if a.session == nil || resp == nil {
		return
	}
	if resp.StatefulMarker != "" {
		a.session.PrependStatefulMarker(StatefulMarker{
			Model:     model,
			Marker:    resp.StatefulMarker,
			Timestamp: time.Now(),
		}, toolCallIteration)
	}
	if resp.ResponseID != "" {
		a.session.SetLastGitHubCopilotResponseID(resp.ResponseID)
	}
}
