package db

import (
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"horse.fit/newsdesk/internal/news"
)

func storyRows(generationID string, story news.Story) (Story, []Evidence, error) {
	categories, err := json.Marshal(story.Categories)
	if err != nil {
		return Story{}, nil, fmt.Errorf("encode categories: %w", err)
	}
	interests, err := marshalList(story.Interests)
	if err != nil {
		return Story{}, nil, err
	}

	row := Story{
		GenerationID:     generationID,
		StoryID:          story.ID,
		Seq:              story.Seq,
		Headline:         story.Headline,
		Summary:          story.Summary,
		Categories:       categories,
		Interests:        interests,
		Degraded:         story.Degraded,
		CategoryFallback: story.CategoryFallback,
	}
	if len(story.Embedding) > 0 {
		vector := pgvector.NewVector(story.Embedding)
		row.Embedding = &vector
	}

	evidence := make([]Evidence, 0, len(story.Evidence))
	for position, item := range story.Evidence {
		query, err := json.Marshal(item.Query)
		if err != nil {
			return Story{}, nil, fmt.Errorf("encode evidence query: %w", err)
		}
		itemInterests, err := marshalList(item.Interests)
		if err != nil {
			return Story{}, nil, err
		}
		evidence = append(evidence, Evidence{
			GenerationID: generationID,
			StoryID:      story.ID,
			Position:     position,
			EvidenceKey:  item.Key,
			URL:          item.URL,
			Title:        item.Title,
			Body:         item.Text,
			Language:     item.Language,
			SourceDomain: item.SourceDomain,
			PublishedAt:  item.PublishedAt.UTC(),
			FetchedAt:    item.FetchedAt.UTC(),
			Query:        query,
			Interests:    itemInterests,
			DiscoveryOrd: item.Order,
		})
	}
	return row, evidence, nil
}

func (s Story) toNews() (news.Story, error) {
	story := news.Story{
		ID:               s.StoryID,
		Seq:              s.Seq,
		Headline:         s.Headline,
		Summary:          s.Summary,
		Degraded:         s.Degraded,
		CategoryFallback: s.CategoryFallback,
	}
	if err := json.Unmarshal(s.Categories, &story.Categories); err != nil {
		return news.Story{}, fmt.Errorf("decode categories for %s: %w", s.StoryID, err)
	}
	if len(s.Interests) > 0 {
		if err := json.Unmarshal(s.Interests, &story.Interests); err != nil {
			return news.Story{}, fmt.Errorf("decode interests for %s: %w", s.StoryID, err)
		}
	}
	if s.Embedding != nil {
		story.Embedding = s.Embedding.Slice()
	}
	return story, nil
}

func (e Evidence) toNews() news.Evidence {
	item := news.Evidence{
		Key:          e.EvidenceKey,
		URL:          e.URL,
		Title:        e.Title,
		Text:         e.Body,
		Language:     e.Language,
		SourceDomain: e.SourceDomain,
		PublishedAt:  e.PublishedAt.UTC(),
		FetchedAt:    e.FetchedAt.UTC(),
		Order:        e.DiscoveryOrd,
	}
	_ = json.Unmarshal(e.Query, &item.Query)
	if len(e.Interests) > 0 {
		_ = json.Unmarshal(e.Interests, &item.Interests)
	}
	return item
}

func runRow(run news.Run) (Run, error) {
	counters, err := json.Marshal(run.Counters)
	if err != nil {
		return Run{}, fmt.Errorf("encode run counters: %w", err)
	}
	return Run{
		RunID:        run.ID,
		StartedAt:    run.StartedAt.UTC(),
		FinishedAt:   run.FinishedAt,
		Status:       string(run.Status),
		GenerationID: run.GenerationID,
		Counters:     counters,
		ErrorMessage: run.Error,
	}, nil
}

func (r Run) toNews() news.Run {
	run := news.Run{
		ID:           r.RunID,
		StartedAt:    r.StartedAt.UTC(),
		FinishedAt:   r.FinishedAt,
		Status:       news.RunStatus(r.Status),
		GenerationID: r.GenerationID,
		Error:        r.ErrorMessage,
	}
	_ = json.Unmarshal(r.Counters, &run.Counters)
	return run
}

func marshalList(values []string) (json.RawMessage, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode string list: %w", err)
	}
	return raw, nil
}
