package service

import (
	"testing"
	"time"
)

type fakePayloadSession struct {
	sessionID        string
	markers          []StatefulMarker
	lastResponseID   string
	quota            QuotaSnapshot
	lastPremiumUsed  int
}

func (f *fakePayloadSession) SessionID() string      { return f.sessionID }
func (f *fakePayloadSession) SelectedModel() string  { return "" }
func (f *fakePayloadSession) AddMessage(role, content string, meta MessageMeta) error { return nil }
func (f *fakePayloadSession) Save() error                          { return nil }
func (f *fakePayloadSession) GetConversationHistory() []LLMMessage { return nil }

func (f *fakePayloadSession) LastGitHubCopilotResponseID() string  { return f.lastResponseID }
func (f *fakePayloadSession) SetLastGitHubCopilotResponseID(id string) { f.lastResponseID = id }

func (f *fakePayloadSession) StatefulMarkers() []StatefulMarker { return f.markers }
func (f *fakePayloadSession) PrependStatefulMarker(m StatefulMarker, toolCallIteration int) {
	f.markers = StoreStatefulMarker(f.markers, m, toolCallIteration)
}

func (f *fakePayloadSession) Quota() QuotaSnapshot     { return f.quota }
func (f *fakePayloadSession) SetQuota(q QuotaSnapshot) { f.quota = q }
func (f *fakePayloadSession) LastPremiumUsed() int     { return f.lastPremiumUsed }
func (f *fakePayloadSession) SetLastPremiumUsed(n int) { f.lastPremiumUsed = n }

func (f *fakePayloadSession) ContextFiles() []ContextFile { return nil }

func (f *fakePayloadSession) UserInterrupted() bool      { return false }
func (f *fakePayloadSession) SetUserInterrupted(bool)    {}

func (f *fakePayloadSession) OpenTurnSnapshot() TurnSnapshot { return TurnSnapshot{} }
func (f *fakePayloadSession) RecordAPIUsage(usage LLMResponse, model, provider string) {}

var _ Session = (*fakePayloadSession)(nil)

func TestBuildPayload_DefaultsTemperatureAndTopP(t *testing.T) {
	messages := []LLMMessage{{Role: "user", Content: "hi"}}
	payload := BuildPayload("gpt-4", messages, nil, 0, false, ProfileFor(ProviderOpenAI), nil)

	if payload.Temperature != defaultTemperature {
		t.Fatalf("expected default temperature %v, got %v", defaultTemperature, payload.Temperature)
	}
	if payload.TopP != defaultTopP {
		t.Fatalf("expected default top_p %v, got %v", defaultTopP, payload.TopP)
	}
}

func TestBuildPayload_ClampsTemperatureToProviderRange(t *testing.T) {
	messages := []LLMMessage{{Role: "user", Content: "hi"}}
	payload := BuildPayload("claude-3", messages, nil, 1.8, false, ProfileFor(ProviderClaude), nil)

	lo, hi := ProfileFor(ProviderClaude).TemperatureRange[0], ProfileFor(ProviderClaude).TemperatureRange[1]
	if payload.Temperature < lo || payload.Temperature > hi {
		t.Fatalf("expected temperature clamped into [%v,%v], got %v", lo, hi, payload.Temperature)
	}
}

func TestBuildPayload_InjectsCopilotThreadIDAndSAMConfigWhenRequired(t *testing.T) {
	sess := &fakePayloadSession{sessionID: "sess-123"}
	messages := []LLMMessage{{Role: "user", Content: "hi"}}

	payload := BuildPayload("copilot-gpt4", messages, nil, 0.5, false, ProfileFor(ProviderCopilot), sess)

	if payload.CopilotThreadID != "sess-123" {
		t.Fatalf("expected copilot_thread_id to be the session id, got %q", payload.CopilotThreadID)
	}
	if payload.SAMConfig == nil {
		t.Fatal("expected sam_config to be injected for a profile that requires it")
	}
}

func TestBuildPayload_PrefersStatefulMarkerOverLegacyResponseID(t *testing.T) {
	sess := &fakePayloadSession{
		sessionID:      "sess-1",
		lastResponseID: "legacy-resp-id",
	}
	sess.PrependStatefulMarker(StatefulMarker{Model: "copilot-gpt4", Marker: "marker-1", Timestamp: time.Now()}, 1)

	messages := []LLMMessage{{Role: "user", Content: "hi"}}
	payload := BuildPayload("copilot-gpt4", messages, nil, 0.5, false, ProfileFor(ProviderCopilot), sess)

	if payload.PreviousResponseID != "marker-1" {
		t.Fatalf("expected stateful marker to win over legacy response id, got %q", payload.PreviousResponseID)
	}
}

func TestBuildPayload_FallsBackToLegacyResponseIDWithoutMarker(t *testing.T) {
	sess := &fakePayloadSession{sessionID: "sess-1", lastResponseID: "legacy-resp-id"}
	messages := []LLMMessage{{Role: "user", Content: "hi"}}

	payload := BuildPayload("copilot-gpt4", messages, nil, 0.5, false, ProfileFor(ProviderCopilot), sess)

	if payload.PreviousResponseID != "legacy-resp-id" {
		t.Fatalf("expected fallback to the legacy response id, got %q", payload.PreviousResponseID)
	}
}

func TestBuildPayload_NilSessionSkipsContinuityFields(t *testing.T) {
	messages := []LLMMessage{{Role: "user", Content: "hi"}}
	payload := BuildPayload("gpt-4", messages, nil, 0.5, false, ProfileFor(ProviderOpenAI), nil)

	if payload.CopilotThreadID != "" || payload.PreviousResponseID != "" {
		t.Fatalf("nil session must never populate continuity fields, got %+v", payload)
	}
}

func TestSanitizeText_StripsEmojiAndBullets(t *testing.T) {
	in := "Plan: • step one \U0001F600 step two"
	out := SanitizeText(in)

	if containsStr(out, "•") {
		t.Fatalf("expected bullet to be stripped, got %q", out)
	}
	if containsStr(out, "\U0001F600") {
		t.Fatalf("expected emoji to be stripped, got %q", out)
	}
	if !containsStr(out, "step one") || !containsStr(out, "step two") {
		t.Fatalf("expected surrounding text to survive, got %q", out)
	}
}

func TestSanitizeText_KeepsWhitespaceControlChars(t *testing.T) {
	in := "line one\nline two\ttabbed"
	out := SanitizeText(in)
	if out != in {
		t.Fatalf("expected \\n and \\t to survive sanitization, got %q", out)
	}
}
