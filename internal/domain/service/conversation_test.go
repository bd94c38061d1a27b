package service

import (
	"testing"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

func TestLoadHistory_DropsSystemAndOrphanToolMessages(t *testing.T) {
	stored := []LLMMessage{
		{Role: "system", Content: "old prompt"},
		{Role: "user", Content: "hi"},
		{Role: "tool", Content: "orphan, no id"},
		{Role: "tool", ToolCallID: "tc1", Content: "dangling, no issuing call"},
	}

	got := LoadHistory(stored)

	for _, m := range got {
		if m.Role == "system" {
			t.Fatalf("system message should have been dropped: %+v", got)
		}
		if m.Role == "tool" && m.ToolCallID == "" {
			t.Fatalf("tool message with empty tool_call_id should have been dropped: %+v", got)
		}
	}
	if len(got) != 1 || got[0].Content != "hi" {
		t.Fatalf("expected only the user message to survive, got %+v", got)
	}
}

func TestValidatePairs_StripsUnansweredToolCalls(t *testing.T) {
	messages := []LLMMessage{
		{Role: "user", Content: "do it"},
		{Role: "assistant", Content: "working", ToolCalls: []entity.ToolCallInfo{{ID: "a1", Name: "read_file"}}},
		// no tool result for a1
	}

	got := ValidatePairs(messages)
	if got[1].ToolCalls != nil {
		t.Fatalf("expected unanswered tool_calls to be stripped, got %+v", got[1].ToolCalls)
	}
	if got[1].Content != "working" {
		t.Fatalf("text content should survive stripping, got %q", got[1].Content)
	}
}

func TestValidatePairs_KeepsAnsweredPairAndDropsOrphanResult(t *testing.T) {
	messages := []LLMMessage{
		{Role: "assistant", ToolCalls: []entity.ToolCallInfo{{ID: "a1", Name: "read_file"}}},
		{Role: "tool", ToolCallID: "a1", Content: "file contents"},
		{Role: "tool", ToolCallID: "unknown", Content: "orphan result"},
	}

	got := ValidatePairs(messages)
	if len(got[0].ToolCalls) != 1 {
		t.Fatalf("answered tool_calls should be kept: %+v", got[0])
	}
	for _, m := range got {
		if m.Role == "tool" && m.ToolCallID == "unknown" {
			t.Fatalf("orphan tool result should have been dropped: %+v", got)
		}
	}
}

func TestPinFirstUserMessage(t *testing.T) {
	messages := []LLMMessage{
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
	}

	got := PinFirstUserMessage(messages)
	if got[1].Importance != PinnedImportance {
		t.Fatalf("first user message should be pinned, got importance %d", got[1].Importance)
	}
	if got[2].Importance == PinnedImportance {
		t.Fatal("second user message should not be pinned")
	}
}

func TestPreflightTrim_NoTrimBelowSafeWindow(t *testing.T) {
	est := NewTokenEstimator()
	history := []LLMMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	got := PreflightTrim(est, "system prompt", history, 100000)
	if len(got) != len(history) {
		t.Fatalf("small history should not be trimmed, got %d messages", len(got))
	}
}

func TestPreflightTrim_KeepsLastTenAndPinnedMessage(t *testing.T) {
	est := NewTokenEstimator()
	contextWindow := 800 // small window forces trimming

	var history []LLMMessage
	big := make([]byte, 1000)
	for i := range big {
		big[i] = 'x'
	}
	history = append(history, LLMMessage{Role: "user", Content: string(big), Importance: PinnedImportance})
	for i := 0; i < 20; i++ {
		history = append(history, LLMMessage{Role: "user", Content: "filler message " + string(rune('a'+i))})
	}

	got := PreflightTrim(est, "you are an assistant", history, contextWindow)

	if len(got) >= len(history) {
		t.Fatalf("expected trimming to reduce message count, got %d of %d", len(got), len(history))
	}

	foundPinned := false
	for _, m := range got {
		if m.Importance == PinnedImportance {
			foundPinned = true
		}
	}
	if !foundPinned {
		t.Fatal("pinned message must survive trimming")
	}

	lastTen := history[len(history)-10:]
	for _, want := range lastTen {
		found := false
		for _, m := range got {
			if m.Content == want.Content {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("most recent message %q should always survive trimming", want.Content)
		}
	}
}

func TestEnforceAlternation_MergesConsecutiveSameRole(t *testing.T) {
	messages := []LLMMessage{
		{Role: "user", Content: "part one"},
		{Role: "user", Content: "part two"},
		{Role: "assistant", Content: "reply"},
	}

	got := EnforceAlternation(messages, true)
	if len(got) != 2 {
		t.Fatalf("expected merged user turn + assistant turn, got %d messages: %+v", len(got), got)
	}
	if got[0].Content != "part one\n\npart two" {
		t.Fatalf("merged content mismatch: %q", got[0].Content)
	}
}

func TestEnforceAlternation_ConvertsToolWhenUnsupported(t *testing.T) {
	messages := []LLMMessage{
		{Role: "assistant", ToolCalls: []entity.ToolCallInfo{{ID: "a1", Name: "read_file"}}},
		{Role: "tool", ToolCallID: "a1", Content: "result"},
	}

	got := EnforceAlternation(messages, false)
	for _, m := range got {
		if m.Role == "tool" {
			t.Fatal("tool role should have been converted to user when supports_role_tool=false")
		}
	}
}

func TestEnforceAlternation_NeverMergesConsecutiveToolMessages(t *testing.T) {
	messages := []LLMMessage{
		{Role: "tool", ToolCallID: "a1", Content: "result one"},
		{Role: "tool", ToolCallID: "a2", Content: "result two"},
	}

	got := EnforceAlternation(messages, true)
	if len(got) != 2 {
		t.Fatalf("consecutive tool messages must never merge, got %d: %+v", len(got), got)
	}
}

func TestEnforceAlternation_IsFixedPoint(t *testing.T) {
	messages := []LLMMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "tool", ToolCallID: "a1", Content: "result"},
	}

	once := EnforceAlternation(messages, true)
	twice := EnforceAlternation(once, true)

	if len(once) != len(twice) {
		t.Fatalf("expected fixed point, got %d then %d messages", len(once), len(twice))
	}
	for i := range once {
		if once[i].Content != twice[i].Content || once[i].Role != twice[i].Role {
			t.Fatalf("re-applying EnforceAlternation changed message %d: %+v vs %+v", i, once[i], twice[i])
		}
	}
}

func TestInjectContextFiles_EmptyReturnsFalse(t *testing.T) {
	est := NewTokenEstimator()
	_, ok := InjectContextFiles(est, nil)
	if ok {
		t.Fatal("expected ok=false for empty context files")
	}
}

func TestInjectContextFiles_WrapsEachFile(t *testing.T) {
	est := NewTokenEstimator()
	files := []ContextFile{
		{Path: "a.go", Content: "package a"},
		{Path: "b.go", Content: "package b"},
	}

	msg, ok := InjectContextFiles(est, files)
	if !ok {
		t.Fatal("expected ok=true for non-empty context files")
	}
	if msg.Role != "user" {
		t.Fatalf("expected user role, got %q", msg.Role)
	}
	for _, f := range files {
		if !containsStr(msg.Content, f.Path) {
			t.Fatalf("expected context message to reference %q, got %q", f.Path, msg.Content)
		}
	}
}

func containsStr(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
