package service

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	missingValueRe = regexp.MustCompile(`"([^"]+)"\s*:\s*,`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	xmlToolCallRe   = regexp.MustCompile(`(?s)<function_calls>\s*<invoke name="([^"]+)">(.*?)</invoke>\s*</function_calls>`)
	xmlParamRe      = regexp.MustCompile(`(?s)<parameter name="([^"]+)">(.*?)</parameter>`)
)

// RepairToolCallArguments tries a tolerant JSON repair of raw tool-call
// arguments: fills missing values ("k":, -> "k":0), strips trailing
// commas, and balances unterminated quotes (§4.4). It is idempotent on
// already-valid JSON (§8).
func RepairToolCallArguments(raw string) (map[string]interface{}, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, true
	}

	var direct map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &direct); err == nil {
		return direct, true
	}

	repaired := missingValueRe.ReplaceAllString(raw, `"$1":0,`)
	repaired = trailingCommaRe.ReplaceAllString(repaired, "$1")
	repaired = balanceQuotes(repaired)

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(repaired), &out); err == nil {
		return out, true
	}
	return nil, false
}

// balanceQuotes appends a closing quote and brace when the string ends
// mid-value, a common truncated-stream failure mode.
func balanceQuotes(s string) string {
	quoteCount := strings.Count(s, `"`) - strings.Count(s, `\"`)
	if quoteCount%2 != 0 {
		s += `"`
	}
	open := strings.Count(s, "{")
	closed := strings.Count(s, "}")
	for i := 0; i < open-closed; i++ {
		s += "}"
	}
	return s
}

// ConvertAnthropicToolXML detects the Anthropic-style XML
// tool-invocation form and converts it to the
// {name, arguments} shape the rest of the pipeline expects. Returns
// ok=false when the text does not contain that form.
func ConvertAnthropicToolXML(text string) (name string, arguments map[string]interface{}, ok bool) {
	m := xmlToolCallRe.FindStringSubmatch(text)
	if m == nil {
		return "", nil, false
	}
	name = m[1]
	args := make(map[string]interface{})
	for _, p := range xmlParamRe.FindAllStringSubmatch(m[2], -1) {
		args[p[1]] = strings.TrimSpace(p[2])
	}
	return name, args, true
}
