package service

import (
	"sort"

	"github.com/ngoclaw/ngoclaw/gateway/internal/domain/entity"
)

// PinnedImportance marks a message (the first user message of a history)
// as never eligible for pre-flight trimming.
const PinnedImportance = 1 << 30

// LoadHistory prepares a session's stored messages for a fresh turn: it
// drops role=system (the orchestrator builds a fresh system prompt each
// turn), drops role=tool messages lacking a tool_call_id, then applies
// bidirectional pair validation (§4.4).
func LoadHistory(stored []LLMMessage) []LLMMessage {
	filtered := make([]LLMMessage, 0, len(stored))
	for _, m := range stored {
		if m.Role == "system" {
			continue
		}
		if m.Role == "tool" && m.ToolCallID == "" {
			continue
		}
		filtered = append(filtered, m)
	}
	return ValidatePairs(filtered)
}

// ValidatePairs enforces the tool_calls <-> tool_result pairing
// invariant (§3, §8 invariant 1): any assistant tool_calls whose ids are
// not all matched by a tool message somewhere in the transcript have
// their tool_calls stripped (the assistant text is kept); any tool
// message whose tool_call_id does not appear in any assistant tool_calls
// is dropped. Matching is by id only: whether a result comes after its
// call is not checked.
func ValidatePairs(messages []LLMMessage) []LLMMessage {
	// First pass: collect, for every tool_call id emitted by an
	// assistant message, whether a tool result answers it anywhere in
	// the transcript.
	answered := make(map[string]bool)
	for _, m := range messages {
		if m.Role == "tool" && m.ToolCallID != "" {
			answered[m.ToolCallID] = true
		}
	}

	// Track which call ids were ever issued by an assistant message, so
	// orphan tool results (answering nothing) can be dropped.
	issued := make(map[string]bool)
	for _, m := range messages {
		if m.Role == "assistant" {
			for _, tc := range m.ToolCalls {
				issued[tc.ID] = true
			}
		}
	}

	result := make([]LLMMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			if len(m.ToolCalls) > 0 {
				allAnswered := true
				for _, tc := range m.ToolCalls {
					if !answered[tc.ID] {
						allAnswered = false
						break
					}
				}
				if !allAnswered {
					m.ToolCalls = nil
				}
			}
			result = append(result, m)
		case "tool":
			if m.ToolCallID == "" || !issued[m.ToolCallID] {
				continue // orphan tool result
			}
			result = append(result, m)
		default:
			result = append(result, m)
		}
	}
	return result
}

// PreflightTrim reduces history before the first model call of a
// process_input (§4.4, distinct from token-limit recovery trimming,
// §4.12). system and history are estimated with est; contextWindow is
// the model's max_context_window_tokens.
func PreflightTrim(est *TokenEstimator, system string, history []LLMMessage, contextWindow int) []LLMMessage {
	systemTokens := est.Estimate(system)
	historyTokens := 0
	for _, m := range history {
		historyTokens += est.Estimate(m.TextContent())
	}

	safe := 0.58 * float64(contextWindow)
	if float64(systemTokens+historyTokens+500) <= safe {
		return history
	}

	if len(history) <= 10 {
		return history
	}

	keepLast := history[len(history)-10:]
	older := history[:len(history)-10]

	// Index so we can restore chronological order after importance sort.
	type ranked struct {
		msg LLMMessage
		idx int
	}
	candidates := make([]ranked, len(older))
	for i, m := range older {
		candidates[i] = ranked{msg: m, idx: i}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].msg.Importance > candidates[j].msg.Importance
	})

	budget := 0.9 * (safe - float64(systemTokens))
	admitted := make(map[int]bool)
	used := 0.0
	for _, c := range candidates {
		cost := float64(est.Estimate(c.msg.TextContent()))
		if used+cost > budget {
			continue
		}
		used += cost
		admitted[c.idx] = true
	}

	kept := make([]LLMMessage, 0, len(older)+len(keepLast))
	for i, m := range older {
		if admitted[i] {
			kept = append(kept, m)
		}
	}
	kept = append(kept, keepLast...)
	return kept
}

// firstUserIndex returns the index of the first role=user message, or -1.
func firstUserIndex(messages []LLMMessage) int {
	for i, m := range messages {
		if m.Role == "user" {
			return i
		}
	}
	return -1
}

// PinFirstUserMessage marks the first user message with PinnedImportance
// so pre-flight and recovery trimming never drop it (§3).
func PinFirstUserMessage(messages []LLMMessage) []LLMMessage {
	if i := firstUserIndex(messages); i >= 0 {
		messages[i].Importance = PinnedImportance
	}
	return messages
}

// synthesizeToolError builds the synthetic role=tool error result used
// when tool-call JSON repair fails (§4.4), preserving the pairing
// invariant for the given call.
func synthesizeToolError(call entity.ToolCallInfo, reason string) LLMMessage {
	return LLMMessage{
		Role:       "tool",
		Content:    "[TOOL_FAILED] could not parse arguments: " + reason,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}
