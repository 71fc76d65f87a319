package pipeline

import (
	"context"
	"fmt"
	"strings"

	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/llm"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/reader"
)

const (
	maxAnswerContextRunes = 4000
	multipleSources       = "Multiple news articles"
)

const answerPromptTemplate = `Based on the following news content, please answer this question:

Question: %s

News Content:
%s

Answer the question factually and concisely based only on the information provided in the news content. If the answer cannot be determined from the provided content, state that clearly.

Answer:`

type Question struct {
	StoryID  string `json:"story_id,omitempty"`
	Question string `json:"question" validate:"required"`
}

type Answer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Source   string   `json:"source"`
	StoryIDs []string `json:"story_ids"`
}

// Answer responds to a question from one story, or from the stories most
// similar to the question when no story id is given.
func (s *Service) Answer(ctx context.Context, q Question) (Answer, error) {
	question := strings.TrimSpace(q.Question)
	if question == "" {
		return Answer{}, fmt.Errorf("%w: question is empty", news.ErrMalformedInput)
	}
	if s.deps.Model == nil {
		return Answer{}, fmt.Errorf("language model is not configured")
	}

	content, source, storyIDs, err := s.answerContext(ctx, strings.TrimSpace(q.StoryID), question)
	if err != nil {
		return Answer{}, err
	}

	text, err := collab.Do(ctx, s.opts.AnswerPolicy, "answer", func(ctx context.Context) (string, error) {
		return s.deps.Model.Complete(ctx, llm.Request{
			Prompt:      fmt.Sprintf(answerPromptTemplate, question, content),
			Temperature: 0.1,
		})
	})
	if err != nil {
		return Answer{}, err
	}

	return Answer{
		Question: question,
		Answer:   strings.TrimSpace(text),
		Source:   source,
		StoryIDs: storyIDs,
	}, nil
}

func (s *Service) answerContext(ctx context.Context, storyID, question string) (string, string, []string, error) {
	gateway := s.deps.Gateway
	if storyID != "" {
		story, err := gateway.Get(ctx, storyID)
		if err != nil {
			return "", "", nil, err
		}
		return storyContext(story), story.Headline, []string{story.ID}, nil
	}

	fragments, err := gateway.SearchContext(ctx, question, s.opts.ContextK)
	if err != nil {
		return "", "", nil, err
	}
	if len(fragments) == 0 {
		return "", "", nil, fmt.Errorf("%w: no stories match the question", news.ErrNotFound)
	}

	parts := make([]string, 0, len(fragments))
	ids := make([]string, 0, len(fragments))
	for _, fragment := range fragments {
		parts = append(parts, fmt.Sprintf("Article: %s\n%s", fragment.Headline, fragment.Summary))
		ids = append(ids, fragment.StoryID)
	}
	return strings.Join(parts, "\n\n"), multipleSources, ids, nil
}

func storyContext(story news.Story) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Article: %s\n%s", story.Headline, story.Summary)
	for _, evidence := range story.Evidence {
		fmt.Fprintf(&b, "\n\nSource: %s", evidence.Title)
		if evidence.URL != "" {
			fmt.Fprintf(&b, " (%s)", evidence.URL)
		}
		fmt.Fprintf(&b, "\n%s", evidence.Text)
	}
	text, _ := reader.TruncateText(b.String(), maxAnswerContextRunes)
	return text
}
