package service

import (
	"strconv"

	"go.uber.org/zap"
)

// updateRateAndQuota implements the §4.8 "from any successful response"
// side of the Rate/Quota Tracker: derive percent_remaining from standard
// rate-limit headers (or the Copilot quota header as a fallback) and feed
// it to the RateTracker, then parse and store any quota snapshot present.
func (a *AgentLoop) updateRateAndQuota(resp *LLMResponse) {
	if resp == nil || len(resp.Headers) == 0 {
		return
	}

	if pct, ok := percentRemainingFromHeaders(resp.Headers); ok {
		a.rateTracker.Observe(pct)
	}

	if a.session == nil {
		return
	}
	raw, _, ok := SelectQuotaHeader(resp.Headers)
	if !ok {
		return
	}
	snapshot := ParseQuotaSnapshot(raw)
	delta := QuotaDelta(snapshot, a.session.LastPremiumUsed())
	a.session.SetQuota(snapshot)
	a.session.SetLastPremiumUsed(snapshot.Used)
	a.logger.Info("quota snapshot updated",
		zap.Int("used", snapshot.Used),
		zap.Int("available", snapshot.Available),
		zap.Int("delta", delta))
}

// percentRemainingFromHeaders reads the standard X-RateLimit-Remaining/
// -Limit header pair (request or token variant, whichever is present),
// falling back to the Copilot quota header's own percent_remaining field
// when neither is present (§4.8).
func percentRemainingFromHeaders(headers map[string]string) (int, bool) {
	remaining, remOK := firstHeader(headers,
		"x-ratelimit-remaining-requests", "x-ratelimit-remaining-tokens", "x-ratelimit-remaining")
	limit, limOK := firstHeader(headers,
		"x-ratelimit-limit-requests", "x-ratelimit-limit-tokens", "x-ratelimit-limit")
	if remOK && limOK {
		r, errR := strconv.ParseFloat(remaining, 64)
		l, errL := strconv.ParseFloat(limit, 64)
		if errR == nil && errL == nil && l > 0 {
			return int(r / l * 100), true
		}
	}

	if raw, _, ok := SelectQuotaHeader(headers); ok {
		return ParseQuotaSnapshot(raw).PercentRemaining, true
	}
	return 0, false
}

func firstHeader(headers map[string]string, names ...string) (string, bool) {
	for _, n := range names {
		if v, ok := headers[n]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}
