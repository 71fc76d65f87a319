package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicModel completes prompts with the Anthropic messages API.
type AnthropicModel struct {
	client *anthropic.Client
	model  anthropic.Model
}

func NewAnthropicModel(apiKey, model string, opts ...option.RequestOption) *AnthropicModel {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	selected := anthropic.ModelClaudeHaiku4_5
	if trimmed := strings.TrimSpace(model); trimmed != "" {
		selected = anthropic.Model(trimmed)
	}
	return &AnthropicModel{client: &client, model: selected}
}

func (m *AnthropicModel) Name() string {
	return "anthropic"
}

func (m *AnthropicModel) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       m.model,
		MaxTokens:   int64(maxTokens(req)),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		b.WriteString(block.Text)
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", fmt.Errorf("no response from anthropic")
	}
	return content, nil
}
