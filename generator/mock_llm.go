package generator

import (
	"context"
	"strings"
)

// MockLLM is an offline stand-in for local runs; it never calls a model.
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	var sb strings.Builder
	sb.WriteString("# Sample post ✨\n\n")
	sb.WriteString("This is a generated placeholder summary of the prompt. 🚀\n\n")
	sb.WriteString("## Details\n\n")
	sb.WriteString("```\n")
	sb.WriteString(prompt.User)
	sb.WriteString("\n```\n")
	return sb.String(), nil
}
