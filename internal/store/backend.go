// Package store keeps generations of stories and serves reads from the live one.
package store

import (
	"context"
	"errors"
	"time"

	"horse.fit/newsdesk/internal/news"
)

type GenerationState string

const (
	StateStaging GenerationState = "staging"
	StateLive    GenerationState = "live"
	StateRetired GenerationState = "retired"
)

var ErrUnknownGeneration = errors.New("unknown generation")

// GenerationInfo describes one namespace held by a backend.
type GenerationInfo struct {
	ID          string          `json:"id"`
	State       GenerationState `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	ActivatedAt *time.Time      `json:"activated_at,omitempty"`
	StoryCount  int             `json:"story_count"`
}

// Backend is the persistence substrate for generations and run history.
// Only the generation in StateLive is visible to readers.
type Backend interface {
	CreateGeneration(ctx context.Context, id string, createdAt time.Time) error
	PutStories(ctx context.Context, generationID string, stories []news.Story) error
	// Activate makes a staging generation live and retires the previous live
	// one in a single step. It returns the retired generation id, or "".
	Activate(ctx context.Context, generationID string, at time.Time) (string, error)
	DropGeneration(ctx context.Context, generationID string) error
	Generations(ctx context.Context) ([]GenerationInfo, error)
	// LiveGeneration returns the live generation id, or "" when there is none.
	LiveGeneration(ctx context.Context) (string, error)
	LoadStories(ctx context.Context, generationID string) ([]news.Story, error)

	RecordRun(ctx context.Context, run news.Run) error
	ListRuns(ctx context.Context, limit int) ([]news.Run, error)

	Ping(ctx context.Context) error
	Close() error
}

// ScoredStory is a story id with its similarity to a query vector.
type ScoredStory struct {
	StoryID string
	Score   float64
}

// VectorSearcher is implemented by backends with native similarity search.
// Backends without it are searched in memory over the live snapshot.
type VectorSearcher interface {
	SearchStories(ctx context.Context, generationID string, vector []float32, k int) ([]ScoredStory, error)
}
