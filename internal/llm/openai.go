package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIModel completes prompts with the OpenAI chat completions API.
type OpenAIModel struct {
	client *openai.Client
	model  openai.ChatModel
}

func NewOpenAIModel(apiKey, model string, opts ...option.RequestOption) *OpenAIModel {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	chatModel := openai.ChatModelGPT4oMini
	if trimmed := strings.TrimSpace(model); trimmed != "" {
		chatModel = openai.ChatModel(trimmed)
	}
	return &OpenAIModel{client: &client, model: chatModel}
}

func (m *OpenAIModel) Name() string {
	return "openai"
}

func (m *OpenAIModel) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       m.model,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(int64(maxTokens(req))),
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty response from openai")
	}
	return content, nil
}
