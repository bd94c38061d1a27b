package service

import (
	"fmt"
	"strings"
)

// ContextFile is one entry of a session's ordered context_files list.
type ContextFile struct {
	Path    string
	Content string
}

// InjectContextFiles wraps each configured context file in a
// <context_file> block and returns one user message to insert
// immediately after the system prompt (§4.4).
func InjectContextFiles(est *TokenEstimator, files []ContextFile) (LLMMessage, bool) {
	if len(files) == 0 {
		return LLMMessage{}, false
	}

	var body strings.Builder
	total := 0
	blocks := make([]string, 0, len(files))
	for _, f := range files {
		tokens := est.Estimate(f.Content)
		total += tokens
		blocks = append(blocks, fmt.Sprintf(
			"<context_file path=%q tokens=\"~%d\">\n%s\n</context_file>",
			f.Path, tokens, f.Content,
		))
	}
	fmt.Fprintf(&body, "Context files (~%d tokens total):\n\n", total)
	body.WriteString(strings.Join(blocks, "\n\n"))

	return LLMMessage{Role: "user", Content: body.String()}, true
}
