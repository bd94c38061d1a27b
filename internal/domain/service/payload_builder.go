package service

import (
	"encoding/json"
	"unicode"

	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

// WirePayload is the JSON request body shape described in §6 External
// Interfaces.
type WirePayload struct {
	Model               string                  `json:"model"`
	Messages            []LLMMessage            `json:"messages"`
	Temperature         float64                 `json:"temperature"`
	TopP                float64                 `json:"top_p"`
	Stream              bool                    `json:"stream,omitempty"`
	Tools               []domaintool.Definition `json:"tools,omitempty"`
	CopilotThreadID     string                  `json:"copilot_thread_id,omitempty"`
	PreviousResponseID  string                  `json:"previous_response_id,omitempty"`
	SAMConfig           map[string]interface{}  `json:"sam_config,omitempty"`
}

const (
	defaultTemperature = 0.2
	defaultTopP        = 0.95
)

// BuildPayload composes the wire-level request body for one call (§4.5).
// session may be nil for providers/tests that don't need continuity
// markers (e.g. a pure capability probe).
func BuildPayload(model string, messages []LLMMessage, tools []domaintool.Definition, temperature float64, stream bool, profile ProviderProfile, session Session) *WirePayload {
	if temperature == 0 {
		temperature = defaultTemperature
	}

	p := &WirePayload{
		Model:       model,
		Messages:    stripInternalToolCallFields(messages),
		Temperature: temperature,
		TopP:        defaultTopP,
		Stream:      stream,
	}
	if len(tools) > 0 {
		p.Tools = tools
	}

	if session != nil {
		if profile.RequiresCopilotHeaders {
			p.CopilotThreadID = session.SessionID()
		}
		if marker, ok := GetStatefulMarker(session.StatefulMarkers(), model); ok {
			p.PreviousResponseID = marker.Marker
		} else {
			p.PreviousResponseID = session.LastGitHubCopilotResponseID()
		}
	}

	asMap := payloadToMap(p)
	AdaptPayload(asMap, profile)
	mapToPayload(asMap, p)

	sanitizePayload(p)
	return p
}

// stripInternalToolCallFields removes bookkeeping fields (such as a
// _name_complete flag used only during streaming assembly) from
// tool_calls before serialization (§4.5). LLMMessage's ToolCalls are
// entity.ToolCallInfo values which never carry such fields, so this is
// a defensive no-op placeholder for any future accumulator leakage.
func stripInternalToolCallFields(messages []LLMMessage) []LLMMessage {
	out := make([]LLMMessage, len(messages))
	copy(out, messages)
	return out
}

func payloadToMap(p *WirePayload) map[string]interface{} {
	raw, _ := json.Marshal(p)
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return m
}

func mapToPayload(m map[string]interface{}, p *WirePayload) {
	if t, ok := m["temperature"].(float64); ok {
		p.Temperature = t
	}
	if _, ok := m["tools"]; !ok {
		p.Tools = nil
	}
	if sam, ok := m["sam_config"].(map[string]interface{}); ok {
		p.SAMConfig = sam
	}
}

// sanitizePayload drops or normalizes characters known to cause 400s on
// certain providers: emojis, bullets, and control code points outside
// \t\n\r (§4.5). Idempotent (§8). Only each message's Content is
// sanitized; message parts, tool-call arguments and tool definitions are
// sent unchanged.
func sanitizePayload(p *WirePayload) {
	for i := range p.Messages {
		p.Messages[i].Content = SanitizeText(p.Messages[i].Content)
	}
}

// SanitizeText strips emoji/bullet/disallowed-control characters from a
// single string, keeping \t \n \r and printable ASCII/UTF-8.
func SanitizeText(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			out = append(out, r)
		case r == '•' || r == '◦' || r == '▪':
			continue
		case unicode.Is(unicode.So, r), unicode.Is(unicode.Cs, r): // symbols-other (emoji), surrogates
			continue
		case unicode.IsControl(r):
			continue
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
