// Package categorize assigns stories to the fixed category enum.
package categorize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/llm"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/reader"
)

const maxClassifyRunes = 2000

// Classifier returns free-text category labels for a text.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]string, error)
}

type Options struct {
	Policy collab.Policy
	// KeywordFallback consults keyword matching before defaulting to Other when
	// the classifier is unreachable.
	KeywordFallback bool
}

// Result is the category assignment for one story.
type Result struct {
	Categories []news.Category
	// Fallback is set when the classifier output was unusable or unavailable.
	Fallback bool
}

type Categorizer struct {
	classifier Classifier
	logger     zerolog.Logger
	opts       Options
}

func New(classifier Classifier, logger zerolog.Logger, opts Options) *Categorizer {
	return &Categorizer{classifier: classifier, logger: logger, opts: opts}
}

// Categorize never fails: the result always holds at least one category.
func (c *Categorizer) Categorize(ctx context.Context, story news.Story) Result {
	text, _ := reader.TruncateText(story.CombinedText(), maxClassifyRunes)

	labels, err := collab.Do(ctx, c.opts.Policy, "classify", func(ctx context.Context) ([]string, error) {
		return c.classifier.Classify(ctx, text)
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("story_id", story.ID).Msg("classification failed; using fallback category")
		if c.opts.KeywordFallback {
			if categories := KeywordCategories(story); len(categories) > 0 {
				return Result{Categories: categories, Fallback: true}
			}
		}
		return Result{Categories: []news.Category{news.CategoryOther}, Fallback: true}
	}

	parsed := make([]news.Category, 0, len(labels))
	for _, label := range labels {
		if category, ok := news.ParseCategory(label); ok {
			parsed = append(parsed, category)
		}
	}
	categories := news.CanonicalCategories(parsed)
	if len(categories) == 0 {
		c.logger.Warn().Strs("labels", labels).Str("story_id", story.ID).Msg("classifier returned no recognized category; assigning Other")
		return Result{Categories: []news.Category{news.CategoryOther}, Fallback: true}
	}
	return Result{Categories: categories}
}

const classifySystemPrompt = `You are a news desk editor who files stories into sections.`

const classifyPromptTemplate = `Categorize the following news story into one or more of these categories:
- World: international news, global events, and news about countries other than the US
- US: US domestic news, politics, and events within the United States
- Sports: sports-related news, games, athletes, and sporting events
- Financial: markets, economy, business, and finance
- Technology: technology, software, hardware, AI, and digital developments
- Other: news that doesn't fit clearly into any of the above categories

Use more than one category only when the story clearly belongs to each.

News story:
%s

Respond with a JSON array of category names only, for example ["Technology"] or ["Financial","Technology"].`

// LLMClassifier asks a language model for category labels.
type LLMClassifier struct {
	model llm.Model
}

func NewLLMClassifier(model llm.Model) *LLMClassifier {
	return &LLMClassifier{model: model}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) ([]string, error) {
	if c == nil || c.model == nil {
		return nil, fmt.Errorf("classifier model is not configured")
	}
	content, err := c.model.Complete(ctx, llm.Request{
		System:    classifySystemPrompt,
		Prompt:    fmt.Sprintf(classifyPromptTemplate, text),
		MaxTokens: 64,
	})
	if err != nil {
		return nil, err
	}
	return ParseLabels(content), nil
}

// ParseLabels accepts a JSON array or a delimited list of labels.
func ParseLabels(content string) []string {
	cleaned := llm.CleanJSONResponse(content)
	if strings.HasPrefix(cleaned, "[") {
		var labels []string
		if err := json.Unmarshal([]byte(cleaned), &labels); err == nil {
			return labels
		}
	}

	parts := strings.FieldsFunc(cleaned, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';' || r == '/' || r == '|'
	})
	labels := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.Trim(strings.TrimSpace(part), "[]"))
		part = strings.TrimPrefix(part, "- ")
		if part != "" {
			labels = append(labels, part)
		}
	}
	return labels
}
