package service

import "fmt"

// EnforceAlternation produces a sequence with no two consecutive
// same-role messages, except that consecutive role=tool messages are
// never merged (each carries a unique tool_call_id). For providers
// where supports_role_tool=false, each tool message is converted into a
// user message. Adjacent same-role messages are merged by concatenating
// content with a blank line (and, for assistant messages, concatenating
// tool_calls) (§4.4, §8 invariant 2, fixed-point property).
func EnforceAlternation(messages []LLMMessage, supportsRoleTool bool) []LLMMessage {
	converted := make([]LLMMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role == "tool" && !supportsRoleTool {
			converted = append(converted, LLMMessage{
				Role:    "user",
				Content: fmt.Sprintf("Tool Result (ID: %s):\n%s", m.ToolCallID, m.Content),
			})
			continue
		}
		converted = append(converted, m)
	}

	if len(converted) == 0 {
		return converted
	}

	result := make([]LLMMessage, 0, len(converted))
	result = append(result, converted[0])

	for _, m := range converted[1:] {
		last := &result[len(result)-1]
		if m.Role == last.Role && m.Role != "tool" {
			last.Content = mergeContent(last.Content, m.Content)
			last.ToolCalls = append(last.ToolCalls, m.ToolCalls...)
			continue
		}
		result = append(result, m)
	}
	return result
}

func mergeContent(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n\n" + b
}
