package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/news"
)

const (
	DefaultMaxK         = 20
	DefaultRelatedN     = 3
	DefaultSyncInterval = 2 * time.Second
)

// Embedder turns query text into vectors comparable with story embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type GatewayOptions struct {
	MaxK   int
	Policy collab.Policy
	// SyncInterval bounds how often reads ask the backend whether another
	// process activated a newer generation. Zero means DefaultSyncInterval,
	// negative turns the check off.
	SyncInterval time.Duration
}

// Gateway serves reads from the live generation snapshot. A rebuild swaps
// the snapshot pointer; readers hold whichever snapshot they loaded.
type Gateway struct {
	backend  Backend
	embedder Embedder
	logger   zerolog.Logger
	opts     GatewayOptions
	live     atomic.Pointer[Generation]

	syncMu    sync.Mutex
	checkedAt atomic.Int64
}

func NewGateway(backend Backend, embedder Embedder, logger zerolog.Logger, opts GatewayOptions) *Gateway {
	if opts.MaxK <= 0 {
		opts.MaxK = DefaultMaxK
	}
	if opts.SyncInterval == 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	g := &Gateway{backend: backend, embedder: embedder, logger: logger, opts: opts}
	g.live.Store(emptyGeneration())
	return g
}

// Refresh loads the backend's live generation into memory. A snapshot
// published concurrently by a local rebuild wins over the one loaded here.
func (g *Gateway) Refresh(ctx context.Context) error {
	before := g.live.Load()
	id, err := g.backend.LiveGeneration(ctx)
	if err != nil {
		return fmt.Errorf("load live generation: %w", err)
	}
	defer g.checkedAt.Store(time.Now().UnixNano())

	if before != nil && before.ID == id {
		return nil
	}
	if id == "" {
		g.live.CompareAndSwap(before, emptyGeneration())
		return nil
	}

	stories, err := g.backend.LoadStories(ctx, id)
	if err != nil {
		return fmt.Errorf("load stories for generation %s: %w", id, err)
	}
	if g.live.CompareAndSwap(before, NewGeneration(id, g.activatedAt(ctx, id), stories)) {
		g.logger.Debug().Str("generation_id", id).Int("stories", len(stories)).Msg("loaded live generation")
	}
	return nil
}

// Current returns the live generation, reloading it first when the sync
// interval has passed and the backend reports a different live generation.
// A failed check keeps serving the held snapshot.
func (g *Gateway) Current(ctx context.Context) *Generation {
	if g.opts.SyncInterval < 0 {
		return g.Snapshot()
	}
	if last := g.checkedAt.Load(); last != 0 && time.Since(time.Unix(0, last)) < g.opts.SyncInterval {
		return g.Snapshot()
	}
	if !g.syncMu.TryLock() {
		return g.Snapshot()
	}
	defer g.syncMu.Unlock()

	if err := g.Refresh(ctx); err != nil {
		g.checkedAt.Store(time.Now().UnixNano())
		g.logger.Warn().Err(err).Msg("failed to sync live generation; serving held snapshot")
	}
	return g.Snapshot()
}

func (g *Gateway) activatedAt(ctx context.Context, id string) (at time.Time) {
	generations, err := g.backend.Generations(ctx)
	if err != nil {
		return at
	}
	for _, gen := range generations {
		if gen.ID == id && gen.ActivatedAt != nil {
			return *gen.ActivatedAt
		}
	}
	return at
}

func (g *Gateway) publish(gen *Generation) {
	g.live.Store(gen)
}

// Snapshot returns the held generation without consulting the backend.
func (g *Gateway) Snapshot() *Generation {
	return g.live.Load()
}

func (g *Gateway) Get(ctx context.Context, id string) (news.Story, error) {
	story, ok := g.Current(ctx).Story(strings.TrimSpace(id))
	if !ok {
		return news.Story{}, fmt.Errorf("story %q: %w", id, news.ErrNotFound)
	}
	return story, nil
}

func (g *Gateway) List(ctx context.Context, filter ListFilter) []news.StorySummary {
	return g.Current(ctx).List(filter)
}

// SearchContext returns up to k stories most similar to query. k above the
// configured maximum is clamped.
func (g *Gateway) SearchContext(ctx context.Context, query string, k int) ([]news.Fragment, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", news.ErrMalformedInput)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1", news.ErrMalformedInput)
	}
	k = min(k, g.opts.MaxK)

	gen := g.Current(ctx)
	if gen.Len() == 0 {
		return []news.Fragment{}, nil
	}
	if g.embedder == nil {
		return nil, fmt.Errorf("query embedder is not configured")
	}

	vectors, err := collab.Do(ctx, g.opts.Policy, "embed query", func(ctx context.Context) ([][]float32, error) {
		return g.embedder.Embed(ctx, []string{query})
	})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed query: %w: empty vector", news.ErrCollaboratorError)
	}

	scored, err := g.rank(ctx, gen, vectors[0], k)
	if err != nil {
		return nil, err
	}

	fragments := make([]news.Fragment, 0, len(scored))
	for _, hit := range scored {
		story, ok := gen.Story(hit.StoryID)
		if !ok {
			continue
		}
		fragments = append(fragments, news.Fragment{
			StoryID:     story.ID,
			Headline:    story.Headline,
			Summary:     story.Summary,
			Categories:  story.Categories,
			Score:       hit.Score,
			PublishedAt: story.LatestEvidenceAt(),
		})
	}
	return fragments, nil
}

func (g *Gateway) rank(ctx context.Context, gen *Generation, vector []float32, k int) ([]ScoredStory, error) {
	searcher, ok := g.backend.(VectorSearcher)
	if !ok || gen.ID == "" {
		return gen.nearest(vector, k, ""), nil
	}
	scored, err := searcher.SearchStories(ctx, gen.ID, vector, k)
	if err != nil {
		g.logger.Warn().Err(err).Str("generation_id", gen.ID).Msg("backend vector search failed; ranking in memory")
		return gen.nearest(vector, k, ""), nil
	}
	if len(scored) == 0 {
		// The generation was dropped under us; the snapshot still has it.
		return gen.nearest(vector, k, ""), nil
	}
	return scored, nil
}

// Related returns the n stories closest to the given story, excluding itself.
func (g *Gateway) Related(ctx context.Context, id string, n int) ([]news.StorySummary, error) {
	gen := g.Current(ctx)
	story, ok := gen.Story(strings.TrimSpace(id))
	if !ok {
		return nil, fmt.Errorf("story %q: %w", id, news.ErrNotFound)
	}
	if n <= 0 {
		n = DefaultRelatedN
	}
	n = min(n, g.opts.MaxK)

	out := make([]news.StorySummary, 0, n)
	if len(story.Embedding) == 0 {
		return out, nil
	}
	for _, hit := range gen.nearest(story.Embedding, n, story.ID) {
		if related, ok := gen.Story(hit.StoryID); ok {
			out = append(out, related.Summarize())
		}
	}
	return out, nil
}

// Runs lists recent collection runs, newest first.
func (g *Gateway) Runs(ctx context.Context, limit int) ([]news.Run, error) {
	return g.backend.ListRuns(ctx, limit)
}
