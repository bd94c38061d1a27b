package service

import (
	"context"
	"testing"

	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
	"go.uber.org/zap"
)

// fakeLLMClient returns a single canned response regardless of model/request,
// exercising the no-tool-calls "final response" path of runLoop.
type fakeLLMClient struct {
	resp *LLMResponse
	err  error
}

func (f *fakeLLMClient) Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	return f.resp, f.err
}

func (f *fakeLLMClient) GenerateStream(ctx context.Context, req *LLMRequest, deltaCh chan<- StreamChunk) (*LLMResponse, error) {
	return f.resp, f.err
}

type fakeToolExecutor struct{}

func (fakeToolExecutor) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	return &domaintool.Result{Output: "ok", Success: true}, nil
}
func (fakeToolExecutor) GetDefinitions() []domaintool.Definition { return nil }
func (fakeToolExecutor) GetToolKind(name string) domaintool.Kind { return domaintool.KindRead }

func TestDefaultAgentLoopConfig_Defaults(t *testing.T) {
	cfg := DefaultAgentLoopConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries: got %d, want 3", cfg.MaxRetries)
	}
	if cfg.ContextMaxTokens != 128000 {
		t.Errorf("ContextMaxTokens: got %d, want 128000", cfg.ContextMaxTokens)
	}
	if cfg.MaxIterations != 500 {
		t.Errorf("MaxIterations: got %d, want 500", cfg.MaxIterations)
	}
	if cfg.PrematureStopRetryLimit != 2 {
		t.Errorf("PrematureStopRetryLimit: got %d, want 2", cfg.PrematureStopRetryLimit)
	}
}

func TestNewAgentLoop_NormalizesZeroValueConfig(t *testing.T) {
	loop := NewAgentLoop(&fakeLLMClient{}, fakeToolExecutor{}, AgentLoopConfig{}, zap.NewNop())
	if loop.config.MaxRetries != 3 {
		t.Errorf("expected zero-value MaxRetries normalized to 3, got %d", loop.config.MaxRetries)
	}
	if loop.config.ContextMaxTokens != 128000 {
		t.Errorf("expected zero-value ContextMaxTokens normalized to 128000, got %d", loop.config.ContextMaxTokens)
	}
	if loop.rateTracker == nil || loop.capabilityCache == nil || loop.schemaValidator == nil || loop.estimator == nil {
		t.Fatal("expected all collaborators to be constructed by NewAgentLoop")
	}
}

func TestExitCodeHint_KnownCodes(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{0, ""},
		{1, ""},
		{127, ""},
		{130, ""},
	}
	for _, c := range cases {
		got := exitCodeHint(c.code)
		if c.code != 0 && got == "" {
			t.Errorf("exitCodeHint(%d) returned empty hint", c.code)
		}
	}
}

func TestLLMMessage_TextContentFallsBackToContent(t *testing.T) {
	m := LLMMessage{Content: "plain text"}
	if m.TextContent() != "plain text" {
		t.Fatalf("expected fallback to Content, got %q", m.TextContent())
	}
}

func TestLLMMessage_TextContentPrefersParts(t *testing.T) {
	m := LLMMessage{
		Content: "ignored",
		Parts: []ContentPart{
			{Type: "text", Text: "from parts"},
		},
	}
	if m.TextContent() != "from parts" {
		t.Fatalf("expected text from Parts to take precedence, got %q", m.TextContent())
	}
}

func TestLLMMessage_HasMedia(t *testing.T) {
	withMedia := LLMMessage{Parts: []ContentPart{{Type: "image", MediaURL: "http://x/img.png"}}}
	withoutMedia := LLMMessage{Content: "just text"}

	if !withMedia.HasMedia() {
		t.Fatal("expected HasMedia to report true for an image part")
	}
	if withoutMedia.HasMedia() {
		t.Fatal("expected HasMedia to report false for plain text")
	}
}

// TestAgentLoop_Run_NoToolCalls_WiresBillingAndQuota drives a full Run()
// with a stub LLM client that reports a stateful marker, a response id,
// prompt-token usage, and a premium-quota header, and checks that the
// billing-continuity capture, the token estimator feedback loop, and the
// rate/quota tracker all observe that single response.
func TestAgentLoop_Run_NoToolCalls_WiresBillingAndQuota(t *testing.T) {
	resp := &LLMResponse{
		Content:        "All done.",
		ModelUsed:      "local-model",
		TokensUsed:     120,
		PromptTokens:   100,
		ResponseID:     "resp-1",
		StatefulMarker: "marker-xyz",
		Headers: map[string]string{
			"x-quota-snapshot-premium_models": "ent=100&rem=80",
		},
	}
	llm := &fakeLLMClient{resp: resp}
	loop := NewAgentLoop(llm, fakeToolExecutor{}, DefaultAgentLoopConfig(), zap.NewNop())

	sess := &fakePayloadSession{sessionID: "sess-1"}
	loop.SetSession(sess)

	startRatio := loop.estimator.Ratio()

	result, eventCh := loop.Run(context.Background(), "you are helpful", "hello", nil, "local")
	for range eventCh {
		// drain to completion
	}

	if result.FinalContent != "All done." {
		t.Fatalf("expected final content %q, got %q", "All done.", result.FinalContent)
	}

	if len(sess.markers) != 1 || sess.markers[0].Marker != "marker-xyz" {
		t.Fatalf("expected the stateful marker to be captured, got %+v", sess.markers)
	}
	if sess.lastResponseID != "resp-1" {
		t.Fatalf("expected the response id to be captured as fallback, got %q", sess.lastResponseID)
	}
	if sess.quota.Used != 20 {
		t.Fatalf("expected quota snapshot used=20 (100 ent, 80%% remaining), got %d", sess.quota.Used)
	}
	if sess.lastPremiumUsed != 20 {
		t.Fatalf("expected last_premium_used persisted as 20, got %d", sess.lastPremiumUsed)
	}

	if loop.estimator.Ratio() == startRatio {
		t.Fatal("expected the token estimator ratio to update after a successful call reported prompt tokens")
	}
}
