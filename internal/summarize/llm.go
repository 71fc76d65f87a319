package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"horse.fit/newsdesk/internal/llm"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/reader"
)

const (
	maxPromptEvidence   = 5
	maxEvidencePrompt   = 1200
	summarySystemPrompt = `You are a wire-service editor. You write neutral, factual news copy.`
)

const summaryPromptTemplate = `The following reports describe the same news event.

%s
Write one headline and a summary of 3-4 sentences that combine what the reports say.
The headline must describe the event itself; do not copy any single report's headline when the reports disagree.
Keep the summary concise but include all important details. Do not invent facts.

Respond with JSON only: {"headline": "...", "summary": "..."}`

// LLMGenerator asks a language model for a JSON headline and summary.
type LLMGenerator struct {
	model llm.Model
}

func NewLLMGenerator(model llm.Model) *LLMGenerator {
	return &LLMGenerator{model: model}
}

func (g *LLMGenerator) Generate(ctx context.Context, evidence []news.Evidence) (Draft, error) {
	if g == nil || g.model == nil {
		return Draft{}, fmt.Errorf("summary model is not configured")
	}
	if len(evidence) == 0 {
		return Draft{}, fmt.Errorf("no evidence to summarize")
	}

	content, err := g.model.Complete(ctx, llm.Request{
		System:      summarySystemPrompt,
		Prompt:      fmt.Sprintf(summaryPromptTemplate, formatEvidence(evidence)),
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		return Draft{}, err
	}
	return ParseDraft(content)
}

// ParseDraft decodes model output into a draft. Output that is not JSON is
// treated as a bare headline line followed by the summary.
func ParseDraft(content string) (Draft, error) {
	cleaned := llm.CleanJSONResponse(content)
	if cleaned == "" {
		return Draft{}, fmt.Errorf("empty model response")
	}

	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			var draft Draft
			if err := json.Unmarshal([]byte(cleaned[start:end+1]), &draft); err == nil {
				if strings.TrimSpace(draft.Headline) == "" {
					return Draft{}, fmt.Errorf("model response has no headline")
				}
				return draft, nil
			}
		}
	}

	headline, summary, _ := strings.Cut(cleaned, "\n")
	headline = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(headline), "Headline:"))
	summary = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(summary), "Summary:"))
	if headline == "" {
		return Draft{}, fmt.Errorf("model response has no headline")
	}
	return Draft{Headline: headline, Summary: summary}, nil
}

func formatEvidence(evidence []news.Evidence) string {
	var b strings.Builder
	for i, item := range evidence {
		if i == maxPromptEvidence {
			break
		}
		text, _ := reader.TruncateText(item.Text, maxEvidencePrompt)
		fmt.Fprintf(&b, "Report %d", i+1)
		if item.SourceDomain != "" {
			fmt.Fprintf(&b, " (%s)", item.SourceDomain)
		}
		fmt.Fprintf(&b, "\nTitle: %s\nContent: %s\n\n", item.Title, text)
	}
	return b.String()
}
