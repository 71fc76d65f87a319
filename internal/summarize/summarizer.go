// Package summarize produces the canonical headline and summary of a story.
package summarize

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/reader"
)

const (
	DefaultMaxHeadlineRunes = 200
	DefaultMaxSummaryRunes  = 800
	fallbackHeadline        = "Untitled story"
)

// Draft is a generated headline and summary.
type Draft struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
}

// Generator writes a draft from a story's evidence.
type Generator interface {
	Generate(ctx context.Context, evidence []news.Evidence) (Draft, error)
}

type Options struct {
	Policy           collab.Policy
	MaxHeadlineRunes int
	MaxSummaryRunes  int
}

// Result carries the summary and whether it came from the fallback path.
type Result struct {
	Headline string
	Summary  string
	Degraded bool
}

type Summarizer struct {
	generator Generator
	logger    zerolog.Logger
	opts      Options
}

func New(generator Generator, logger zerolog.Logger, opts Options) *Summarizer {
	if opts.MaxHeadlineRunes <= 0 {
		opts.MaxHeadlineRunes = DefaultMaxHeadlineRunes
	}
	if opts.MaxSummaryRunes <= 0 {
		opts.MaxSummaryRunes = DefaultMaxSummaryRunes
	}
	return &Summarizer{generator: generator, logger: logger, opts: opts}
}

// Summarize always returns a non-empty headline. Generator failures after one
// retry produce a degraded result built from the first evidence.
func (s *Summarizer) Summarize(ctx context.Context, story news.Story) Result {
	draft, err := collab.Do(ctx, s.opts.Policy, "summarize", func(ctx context.Context) (Draft, error) {
		return s.generator.Generate(ctx, story.Evidence)
	})
	if err == nil {
		headline := singleLine(draft.Headline)
		if headline != "" {
			headline, _ = reader.TruncateText(headline, s.opts.MaxHeadlineRunes)
			summary, _ := reader.TruncateText(strings.TrimSpace(draft.Summary), s.opts.MaxSummaryRunes)
			return Result{Headline: headline, Summary: summary}
		}
		s.logger.Warn().Str("story_id", story.ID).Msg("summarizer returned an empty headline; using fallback")
	} else {
		s.logger.Warn().Err(err).Str("story_id", story.ID).Msg("summarization failed; using fallback")
	}

	return s.Fallback(story)
}

// Fallback derives a rough headline and summary from the first evidence.
func (s *Summarizer) Fallback(story news.Story) Result {
	result := Result{Headline: fallbackHeadline, Degraded: true}
	if len(story.Evidence) == 0 {
		return result
	}
	first := story.Evidence[0]

	headline := singleLine(first.Title)
	if headline == "" {
		headline = leadSentence(first.Text)
	}
	if headline != "" {
		result.Headline, _ = reader.TruncateText(headline, s.opts.MaxHeadlineRunes)
	}
	result.Summary, _ = reader.TruncateText(first.Text, s.opts.MaxSummaryRunes)
	if result.Summary == "" {
		result.Summary = result.Headline
	}
	return result
}

func singleLine(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

func leadSentence(text string) string {
	text = singleLine(text)
	for i, r := range text {
		if (r == '.' || r == '!' || r == '?') && i > 0 {
			return text[:i+1]
		}
	}
	return text
}
