package service

import (
	"fmt"
	"strings"
)

// RecoveryResult is the outcome of one token-limit recovery attempt
// (§4.12).
type RecoveryResult struct {
	Messages  []LLMMessage
	GaveUp    bool
	GaveUpMsg string
}

// recoveryKeepFraction is the retry-N keep ladder: retry 1 keeps the
// newest 50% (min 10), retry 2 keeps 25% (min 5), retry 3 keeps only
// the last 3 (§4.12 step 3).
func recoveryKeepFraction(retry int) (fraction float64, minimum int) {
	switch retry {
	case 1:
		return 0.5, 10
	case 2:
		return 0.25, 5
	default:
		return 0, 3
	}
}

// RecoverFromTokenLimit implements §4.12: drop the last assistant
// message, split off the pinned first user message, keep a
// retry-dependent tail of the rest, always re-include the pinned
// message and any tool-call whose result survived, and summarize the
// dropped messages into one recovery-context system message.
func RecoverFromTokenLimit(messages []LLMMessage, retry int) RecoveryResult {
	if len(messages) > 0 && messages[len(messages)-1].Role == "assistant" {
		messages = messages[:len(messages)-1]
	}

	var system []LLMMessage
	var firstUser *LLMMessage
	var rest []LLMMessage

	firstUserSeen := false
	for i := range messages {
		m := messages[i]
		switch {
		case m.Role == "system":
			system = append(system, m)
		case m.Role == "user" && !firstUserSeen:
			firstUserSeen = true
			cp := m
			cp.Importance = PinnedImportance
			firstUser = &cp
		default:
			rest = append(rest, m)
		}
	}

	fraction, minimum := recoveryKeepFraction(retry)
	keepCount := int(float64(len(rest)) * fraction)
	if keepCount < minimum {
		keepCount = minimum
	}
	if keepCount > len(rest) {
		keepCount = len(rest)
	}

	dropped := rest
	kept := rest
	if keepCount < len(rest) {
		dropped = rest[:len(rest)-keepCount]
		kept = rest[len(rest)-keepCount:]
	} else {
		dropped = nil
	}

	kept = repairOrphanedToolCalls(kept, rest)

	result := make([]LLMMessage, 0, len(system)+2+len(kept))
	result = append(result, system...)
	if firstUser != nil {
		result = append(result, *firstUser)
	}
	if summary := summarizeDropped(dropped); summary.Content != "" {
		result = append(result, summary)
	}
	result = append(result, kept...)

	if retry >= 3 && len(kept) <= 3 {
		return RecoveryResult{
			Messages:  result,
			GaveUp:    true,
			GaveUpMsg: "context still exceeds the model's token limit after maximum trimming; retry with a model that has a larger context window",
		}
	}

	return RecoveryResult{Messages: result}
}

// repairOrphanedToolCalls re-includes, from the full "rest" set, any
// assistant tool_calls message whose result survived in kept but whose
// issuing assistant turn was trimmed away (§4.12 step 5).
func repairOrphanedToolCalls(kept []LLMMessage, full []LLMMessage) []LLMMessage {
	neededIDs := make(map[string]bool)
	for _, m := range kept {
		if m.Role == "tool" {
			neededIDs[m.ToolCallID] = true
		}
	}

	keptIssued := make(map[string]bool)
	for _, m := range kept {
		for _, tc := range m.ToolCalls {
			keptIssued[tc.ID] = true
		}
	}

	var missing []LLMMessage
	for _, m := range full {
		if m.Role != "assistant" {
			continue
		}
		for _, tc := range m.ToolCalls {
			if neededIDs[tc.ID] && !keptIssued[tc.ID] {
				missing = append(missing, m)
				break
			}
		}
	}

	if len(missing) == 0 {
		return kept
	}
	return append(missing, kept...)
}

// summarizeDropped builds the "recovery context" system message: a
// compressed summary plus up to three most-recent user requests
// truncated to 300 chars (§4.12 step 6).
func summarizeDropped(dropped []LLMMessage) LLMMessage {
	if len(dropped) == 0 {
		return LLMMessage{}
	}

	var recentUser []string
	for i := len(dropped) - 1; i >= 0 && len(recentUser) < 3; i-- {
		if dropped[i].Role == "user" {
			text := dropped[i].TextContent()
			if len(text) > 300 {
				text = text[:300]
			}
			recentUser = append(recentUser, text)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[recovery context] %d earlier messages were dropped to fit the token budget.", len(dropped))
	if len(recentUser) > 0 {
		b.WriteString(" Recent user requests: ")
		b.WriteString(strings.Join(recentUser, " | "))
	}

	return LLMMessage{Role: "system", Content: b.String()}
}
