package service

import (
	"strings"

	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

// BuildSystemPrompt assembles the system prompt handed to the model: a
// fixed preamble plus the registered tool names and descriptions. This
// replaces the teacher's separate hot-pluggable prompt engine with a
// single deterministic builder, since SPEC_FULL.md names no prompt
// template layering — only that a system prompt accompanies every
// call (§4.5).
func BuildSystemPrompt(tools []domaintool.Definition, workspace string) string {
	var b strings.Builder
	b.WriteString("You are a coding assistant operating through a tool-calling gateway.\n")
	if workspace != "" {
		b.WriteString("Workspace: " + workspace + "\n")
	}
	if len(tools) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, t := range tools {
			if t.Description != "" {
				b.WriteString("- " + t.Name + ": " + t.Description + "\n")
			} else {
				b.WriteString("- " + t.Name + "\n")
			}
		}
	}
	return b.String()
}
