package anthropic

import (
	"context"
	"strings"
	"testing"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/service"
	"go.uber.org/zap"
)

func drainDeltas(ch <-chan service.StreamChunk) []service.StreamChunk {
	var result []service.StreamChunk
	for c := range ch {
		result = append(result, c)
	}
	return result
}

func TestParseSSEStream_TextOnly(t *testing.T) {
	sseData := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_1","model":"claude-3-opus","role":"assistant","content":[],"usage":{"input_tokens":10,"output_tokens":0}}}` + "\n\n" +
		"event: content_block_start\n" +
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}` + "\n\n" +
		"event: content_block_stop\n" +
		`data: {"type":"content_block_stop","index":0}` + "\n\n" +
		"event: message_delta\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":5}}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	deltaCh := make(chan service.StreamChunk, 64)
	resp, err := ParseSSEStream(context.Background(), strings.NewReader(sseData), deltaCh, zap.NewNop())
	close(deltaCh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "Hello world" {
		t.Fatalf("expected accumulated content %q, got %q", "Hello world", resp.Content)
	}
	if resp.ModelUsed != "claude-3-opus" {
		t.Fatalf("expected model claude-3-opus, got %q", resp.ModelUsed)
	}
	if resp.ResponseID != "msg_1" {
		t.Fatalf("expected response id msg_1, got %q", resp.ResponseID)
	}
	if resp.TokensUsed != 15 {
		t.Fatalf("expected final usage.Total() (10+5), got %d", resp.TokensUsed)
	}
	if len(resp.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(resp.ToolCalls))
	}

	chunks := drainDeltas(deltaCh)
	textDeltas := 0
	for _, c := range chunks {
		if c.DeltaText != "" {
			textDeltas++
		}
	}
	if textDeltas != 2 {
		t.Fatalf("expected 2 text delta chunks, got %d", textDeltas)
	}
}

func TestParseSSEStream_ToolUse(t *testing.T) {
	sseData := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_2","model":"claude-3-opus","role":"assistant","content":[],"usage":{"input_tokens":20,"output_tokens":0}}}` + "\n\n" +
		"event: content_block_start\n" +
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tc_1","name":"read_file"}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"\"a.go\"}"}}` + "\n\n" +
		"event: content_block_stop\n" +
		`data: {"type":"content_block_stop","index":0}` + "\n\n" +
		"event: message_delta\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":8}}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	deltaCh := make(chan service.StreamChunk, 64)
	resp, err := ParseSSEStream(context.Background(), strings.NewReader(sseData), deltaCh, zap.NewNop())
	close(deltaCh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	tc := resp.ToolCalls[0]
	if tc.ID != "tc_1" || tc.Name != "read_file" {
		t.Fatalf("unexpected tool call: %+v", tc)
	}
	if tc.Arguments["path"] != "a.go" {
		t.Fatalf("expected path argument a.go, got %v", tc.Arguments)
	}
}

func TestParseSSEStream_MalformedToolArgsRepaired(t *testing.T) {
	sseData := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"msg_3","model":"claude-3-opus","usage":{"input_tokens":5}}}` + "\n\n" +
		"event: content_block_start\n" +
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tc_9","name":"write_file"}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"path\":\"a.go\""}}` + "\n\n" +
		"event: content_block_stop\n" +
		`data: {"type":"content_block_stop","index":0}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	deltaCh := make(chan service.StreamChunk, 64)
	resp, err := ParseSSEStream(context.Background(), strings.NewReader(sseData), deltaCh, zap.NewNop())
	close(deltaCh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The accumulated JSON is missing a closing brace; repair (or graceful
	// drop) must not panic or block, and a well-formed result, if any,
	// must carry the fields that did parse.
	if len(resp.ToolCalls) == 1 && resp.ToolCalls[0].Arguments["path"] != "a.go" {
		t.Fatalf("expected repaired path argument a.go, got %v", resp.ToolCalls[0].Arguments)
	}
}
