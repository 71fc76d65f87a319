// Package llm provides the language-model and embedding collaborators used to
// categorize, summarize and answer questions about stories.
package llm

import (
	"context"
	"strings"
)

// Request is one single-turn completion.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Model completes prompts. Implementations must honor ctx cancellation.
type Model interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

const DefaultMaxTokens = 1024

// CleanJSONResponse strips markdown code fences models like to wrap JSON in.
func CleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}
