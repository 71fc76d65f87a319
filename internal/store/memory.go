package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"horse.fit/newsdesk/internal/news"
)

type memoryGeneration struct {
	info    GenerationInfo
	stories []news.Story
}

// MemoryBackend keeps everything in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu          sync.RWMutex
	generations map[string]*memoryGeneration
	runs        map[string]news.Run
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		generations: make(map[string]*memoryGeneration),
		runs:        make(map[string]news.Run),
	}
}

func (m *MemoryBackend) CreateGeneration(ctx context.Context, id string, createdAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.generations[id]; exists {
		return fmt.Errorf("generation %s already exists", id)
	}
	m.generations[id] = &memoryGeneration{info: GenerationInfo{ID: id, State: StateStaging, CreatedAt: createdAt.UTC()}}
	return nil
}

func (m *MemoryBackend) PutStories(ctx context.Context, generationID string, stories []news.Story) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.generations[generationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGeneration, generationID)
	}
	if gen.info.State != StateStaging {
		return fmt.Errorf("generation %s is %s, not staging", generationID, gen.info.State)
	}
	gen.stories = append(gen.stories, stories...)
	gen.info.StoryCount = len(gen.stories)
	return nil
}

func (m *MemoryBackend) Activate(ctx context.Context, generationID string, at time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	gen, ok := m.generations[generationID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownGeneration, generationID)
	}
	if gen.info.State != StateStaging {
		return "", fmt.Errorf("generation %s is %s, not staging", generationID, gen.info.State)
	}

	previous := ""
	for id, other := range m.generations {
		if other.info.State == StateLive {
			other.info.State = StateRetired
			previous = id
		}
	}
	activatedAt := at.UTC()
	gen.info.State = StateLive
	gen.info.ActivatedAt = &activatedAt
	return previous, nil
}

func (m *MemoryBackend) DropGeneration(_ context.Context, generationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.generations, generationID)
	return nil
}

func (m *MemoryBackend) Generations(_ context.Context) ([]GenerationInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]GenerationInfo, 0, len(m.generations))
	for _, gen := range m.generations {
		out = append(out, gen.info)
	}
	sortGenerations(out)
	return out, nil
}

func (m *MemoryBackend) LiveGeneration(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, gen := range m.generations {
		if gen.info.State == StateLive {
			return id, nil
		}
	}
	return "", nil
}

func (m *MemoryBackend) LoadStories(_ context.Context, generationID string) ([]news.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gen, ok := m.generations[generationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGeneration, generationID)
	}
	return append([]news.Story(nil), gen.stories...), nil
}

func (m *MemoryBackend) RecordRun(_ context.Context, run news.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryBackend) ListRuns(_ context.Context, limit int) ([]news.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]news.Run, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }

func sortGenerations(items []GenerationInfo) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}
