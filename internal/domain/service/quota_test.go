package service

import "testing"

func TestSelectQuotaHeader_PriorityOrder(t *testing.T) {
	headers := map[string]string{
		"x-quota-snapshot-chat":       "ent=100&rem=50",
		"x-quota-snapshot-premium_models": "ent=200&rem=80",
	}

	raw, name, ok := SelectQuotaHeader(headers)
	if !ok {
		t.Fatal("expected a quota header match")
	}
	if name != "x-quota-snapshot-premium_models" {
		t.Fatalf("expected premium_models to win priority, got %q", name)
	}
	if raw != "ent=200&rem=80" {
		t.Fatalf("unexpected raw value: %q", raw)
	}
}

func TestSelectQuotaHeader_NoneMatch(t *testing.T) {
	_, _, ok := SelectQuotaHeader(map[string]string{"x-other-header": "ignored"})
	if ok {
		t.Fatal("expected no match when no quota header is present")
	}
}

func TestParseQuotaSnapshot_ComputesUsedAndAvailable(t *testing.T) {
	snap := ParseQuotaSnapshot("ent=100&ov=0&ovPerm=0&rem=75&rst=2026-08-01")

	if snap.Entitlement != 100 {
		t.Fatalf("entitlement: got %d", snap.Entitlement)
	}
	if snap.PercentRemaining != 75 {
		t.Fatalf("percent remaining: got %d", snap.PercentRemaining)
	}
	if snap.Used != 25 {
		t.Fatalf("used: got %d, want 25", snap.Used)
	}
	if snap.Available != 75 {
		t.Fatalf("available: got %d, want 75", snap.Available)
	}
	if snap.ResetDate != "2026-08-01" {
		t.Fatalf("reset date: got %q", snap.ResetDate)
	}
}

func TestParseQuotaSnapshot_UnlimitedEntitlementSkipsDeduction(t *testing.T) {
	snap := ParseQuotaSnapshot("ent=-1&rem=100")
	if snap.Used != 0 || snap.Available != 0 {
		t.Fatalf("unlimited entitlement should leave used/available at 0, got used=%d available=%d", snap.Used, snap.Available)
	}
}

func TestParseQuotaSnapshot_MalformedReturnsZeroValue(t *testing.T) {
	snap := ParseQuotaSnapshot("%zz-not-url-encoded")
	if (snap != QuotaSnapshot{}) {
		t.Fatalf("expected zero-value snapshot for malformed input, got %+v", snap)
	}
}

func TestQuotaDelta(t *testing.T) {
	current := QuotaSnapshot{Used: 40}
	if delta := QuotaDelta(current, 25); delta != 15 {
		t.Fatalf("expected delta 15, got %d", delta)
	}
	if delta := QuotaDelta(current, 40); delta != 0 {
		t.Fatalf("expected delta 0 for unchanged usage, got %d", delta)
	}
}
