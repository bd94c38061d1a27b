package service

import (
	"math"
	"net/url"
	"strconv"
)

// quotaHeaderPriority is the header lookup order from §3 Data Model.
var quotaHeaderPriority = []string{
	"x-quota-snapshot-premium_models",
	"x-quota-snapshot-premium_interactions",
	"x-quota-snapshot-chat",
}

// SelectQuotaHeader returns the first present header value from the
// priority list, and which header name matched.
func SelectQuotaHeader(headers map[string]string) (value string, headerName string, ok bool) {
	for _, name := range quotaHeaderPriority {
		if v, present := headers[name]; present && v != "" {
			return v, name, true
		}
	}
	return "", "", false
}

// ParseQuotaSnapshot decodes the URL-encoded quota payload
// ent=…&ov=…&ovPerm=…&rem=…&rst=… and derives used/available (§3, §8
// invariant 6). ent=-1 means unlimited, in which case used/available
// are left at 0 (no deduction is meaningful).
func ParseQuotaSnapshot(raw string) QuotaSnapshot {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return QuotaSnapshot{}
	}

	q := QuotaSnapshot{
		Entitlement:      atoiOr(values.Get("ent"), 0),
		Overage:          atoiOr(values.Get("ov"), 0),
		OveragePermitted: atoiOr(values.Get("ovPerm"), 0),
		PercentRemaining: atoiOr(values.Get("rem"), 0),
		ResetDate:        values.Get("rst"),
	}

	if q.Entitlement >= 0 {
		q.Used = int(math.Max(0, math.Floor(float64(q.Entitlement)*(1-float64(q.PercentRemaining)/100))))
		q.Available = q.Entitlement - q.Used
	}
	return q
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// QuotaDelta is the change in premium usage since the last observation,
// used to build a user-visible charge message (§4.8).
func QuotaDelta(current QuotaSnapshot, lastPremiumUsed int) int {
	return current.Used - lastPremiumUsed
}
