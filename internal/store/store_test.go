package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/newsdesk/internal/news"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func makeStory(id, headline string, age time.Duration, embedding []float32, categories ...news.Category) news.Story {
	if len(categories) == 0 {
		categories = []news.Category{news.CategoryOther}
	}
	published := baseTime.Add(-age)
	return news.Story{
		ID:         id,
		Headline:   headline,
		Summary:    headline + " summary",
		Categories: categories,
		Embedding:  embedding,
		Evidence: []news.Evidence{{
			Key:          "https://example.com/" + id,
			URL:          "https://example.com/" + id,
			Title:        headline,
			Text:         headline + " body",
			SourceDomain: "example.com",
			PublishedAt:  published,
			FetchedAt:    baseTime,
			Query:        news.Query{Kind: news.QueryTopNews, Text: "top news", Index: 0},
			Order:        0,
		}},
	}
}

type backendFactory struct {
	name string
	open func(t *testing.T) Backend
}

func backends() []backendFactory {
	return []backendFactory{
		{name: "memory", open: func(*testing.T) Backend { return NewMemoryBackend() }},
		{name: "sqlite", open: func(t *testing.T) Backend {
			t.Helper()
			backend, err := OpenSQLite(context.Background(), ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { backend.Close() })
			return backend
		}},
	}
}

func newStore(backend Backend, embedder Embedder) (*Gateway, *Rebuilder) {
	gateway := NewGateway(backend, embedder, zerolog.Nop(), GatewayOptions{MaxK: 5})
	return gateway, NewRebuilder(backend, gateway, zerolog.Nop())
}

func TestRebuildPublishesNewGeneration(t *testing.T) {
	t.Parallel()

	for _, factory := range backends() {
		t.Run(factory.name, func(t *testing.T) {
			t.Parallel()
			backend := factory.open(t)
			gateway, rebuilder := newStore(backend, nil)
			ctx := context.Background()

			genID, err := rebuilder.Rebuild(ctx, []news.Story{
				makeStory("old", "Older story", 5*time.Hour, nil, news.CategoryWorld),
				makeStory("new", "Newer story", time.Hour, nil, news.CategoryFinancial, news.CategoryTechnology),
				makeStory("tie", "Same time as newer", time.Hour, nil, news.CategoryTechnology),
			})
			require.NoError(t, err)

			live, err := backend.LiveGeneration(ctx)
			require.NoError(t, err)
			assert.Equal(t, genID, live)

			list := gateway.List(ctx, ListFilter{})
			require.Len(t, list, 3)
			assert.Equal(t, []string{"new", "tie", "old"}, summaryIDs(list))

			tech := gateway.List(ctx, ListFilter{Category: news.CategoryTechnology})
			assert.Equal(t, []string{"new", "tie"}, summaryIDs(tech))

			story, err := gateway.Get(ctx, "new")
			require.NoError(t, err)
			assert.Equal(t, "Newer story", story.Headline)

			_, err = gateway.Get(ctx, "missing")
			assert.ErrorIs(t, err, news.ErrNotFound)
		})
	}
}

func (f *failingBackend) PutStories(ctx context.Context, generationID string, stories []news.Story) error {
	if f.cancel != nil {
		f.cancel()
		return ctx.Err()
	}
	if f.failPut {
		return errors.New("disk full")
	}
	return f.MemoryBackend.PutStories(ctx, generationID, stories)
}

func TestFailedRebuildLeavesLiveGenerationUntouched(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	gateway, rebuilder := newStore(backend, nil)
	ctx := context.Background()

	liveID, err := rebuilder.Rebuild(ctx, []news.Story{makeStory("a", "A", 0, nil)})
	require.NoError(t, err)
	before := gateway.List(ctx, ListFilter{})

	backend.failPut = true
	_, err = rebuilder.Rebuild(ctx, []news.Story{makeStory("b", "B", 0, nil)})
	require.Error(t, err)

	assert.Equal(t, before, gateway.List(ctx, ListFilter{}))
	assert.Equal(t, liveID, gateway.Snapshot().ID)
	assert.Equal(t, map[string]GenerationState{liveID: StateLive}, generationStates(t, backend))
}

func TestCancelledRebuildDiscardsStaging(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	gateway, rebuilder := newStore(backend, nil)

	liveID, err := rebuilder.Rebuild(context.Background(), []news.Story{makeStory("a", "A", 0, nil)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	backend.cancel = cancel
	_, err = rebuilder.Rebuild(ctx, []news.Story{makeStory("b", "B", 0, nil)})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, liveID, gateway.Snapshot().ID)
	assert.Equal(t, map[string]GenerationState{liveID: StateLive}, generationStates(t, backend))
}

func TestRebuildRejectsInvalidStories(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	_, rebuilder := newStore(backend, nil)

	noCategory := makeStory("a", "A", 0, nil)
	noCategory.Categories = nil
	_, err := rebuilder.Rebuild(context.Background(), []news.Story{noCategory})
	assert.ErrorIs(t, err, ErrInvalidStory)

	_, err = rebuilder.Rebuild(context.Background(), []news.Story{makeStory("a", "A", 0, nil), makeStory("a", "B", 0, nil)})
	assert.ErrorIs(t, err, ErrInvalidStory)

	_, err = rebuilder.Rebuild(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidStory)

	assert.Empty(t, generationStates(t, backend))
}

func TestReadersNeverSeeMixedGenerations(t *testing.T) {
	t.Parallel()

	backend := NewMemoryBackend()
	gateway, rebuilder := newStore(backend, nil)
	ctx := context.Background()

	batch := func(run int) []news.Story {
		stories := make([]news.Story, 20)
		for i := range stories {
			stories[i] = makeStory(fmt.Sprintf("r%d-%d", run, i), fmt.Sprintf("run%d story %d", run, i), time.Duration(i)*time.Minute, nil)
		}
		return stories
	}
	_, err := rebuilder.Rebuild(ctx, batch(0))
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				list := gateway.List(ctx, ListFilter{})
				if len(list) != 20 {
					errs <- fmt.Sprintf("partial listing of %d stories", len(list))
					return
				}
				prefix, _, _ := strings.Cut(list[0].Headline, " ")
				for _, summary := range list {
					if !strings.HasPrefix(summary.Headline, prefix+" ") {
						errs <- fmt.Sprintf("mixed generations: %q and %q", list[0].Headline, summary.Headline)
						return
					}
				}
			}
		}()
	}

	for run := 1; run <= 10; run++ {
		_, err := rebuilder.Rebuild(ctx, batch(run))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Fatal(msg)
	}
}

func TestRefreshLoadsPersistedGeneration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := t.TempDir() + "/newsdesk.db"
	backend, err := OpenSQLite(ctx, path)
	require.NoError(t, err)

	story := makeStory("a", "Persisted", time.Hour, []float32{0.5, -0.25, 1}, news.CategoryUS)
	story.Interests = []string{"AI"}
	story.Degraded = true
	_, rebuilder := newStore(backend, nil)
	_, err = rebuilder.Rebuild(ctx, []news.Story{story})
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	gateway := NewGateway(reopened, nil, zerolog.Nop(), GatewayOptions{})
	require.NoError(t, gateway.Refresh(ctx))

	got, err := gateway.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Persisted", got.Headline)
	assert.Equal(t, []news.Category{news.CategoryUS}, got.Categories)
	assert.Equal(t, []string{"AI"}, got.Interests)
	assert.True(t, got.Degraded)
	assert.Equal(t, []float32{0.5, -0.25, 1}, got.Embedding)
	require.Len(t, got.Evidence, 1)
	assert.Equal(t, story.Evidence[0].PublishedAt, got.Evidence[0].PublishedAt)
	assert.Equal(t, story.Evidence[0].Query, got.Evidence[0].Query)
	assert.False(t, gateway.Snapshot().ActivatedAt.IsZero())

	assert.Len(t, gateway.List(ctx, ListFilter{Interest: "ai"}), 1)
	assert.Empty(t, gateway.List(ctx, ListFilter{Interest: "sports"}))
}

type axisEmbedder struct {
	calls int
}

// Embed maps "x" to the x axis and anything else to the y axis.
func (e *axisEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "x") {
			out[i] = []float32{1, 0}
		} else {
			out[i] = []float32{0, 1}
		}
	}
	return out, nil
}

func TestSearchContext(t *testing.T) {
	t.Parallel()

	embedder := &axisEmbedder{}
	gateway, rebuilder := newStore(NewMemoryBackend(), embedder)
	ctx := context.Background()

	empty, err := gateway.SearchContext(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Zero(t, embedder.calls)

	_, err = rebuilder.Rebuild(ctx, []news.Story{
		makeStory("along-x", "X story", 0, []float32{1, 0.1}),
		makeStory("along-y", "Y story", 0, []float32{0.1, 1}),
		makeStory("diagonal", "Diagonal", 0, []float32{1, 1}),
	})
	require.NoError(t, err)

	fragments, err := gateway.SearchContext(ctx, "x marks", 2)
	require.NoError(t, err)
	require.Len(t, fragments, 2)
	assert.Equal(t, "along-x", fragments[0].StoryID)
	assert.Equal(t, "diagonal", fragments[1].StoryID)
	assert.Greater(t, fragments[0].Score, fragments[1].Score)

	all, err := gateway.SearchContext(ctx, "x marks", 50)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = gateway.SearchContext(ctx, "x", 0)
	assert.ErrorIs(t, err, news.ErrMalformedInput)
	_, err = gateway.SearchContext(ctx, "   ", 3)
	assert.ErrorIs(t, err, news.ErrMalformedInput)
}

func TestRelated(t *testing.T) {
	t.Parallel()

	gateway, rebuilder := newStore(NewMemoryBackend(), nil)
	ctx := context.Background()
	_, err := rebuilder.Rebuild(ctx, []news.Story{
		makeStory("a", "A", 0, []float32{1, 0}),
		makeStory("b", "B", 0, []float32{0.9, 0.1}),
		makeStory("c", "C", 0, []float32{0, 1}),
	})
	require.NoError(t, err)

	related, err := gateway.Related(ctx, "a", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, summaryIDs(related))

	_, err = gateway.Related(ctx, "nope", 1)
	assert.ErrorIs(t, err, news.ErrNotFound)
}

type countingBackend struct {
	*MemoryBackend
	mu         sync.Mutex
	liveChecks int
	searchHits []ScoredStory
}

func (c *countingBackend) LiveGeneration(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.liveChecks++
	c.mu.Unlock()
	return c.MemoryBackend.LiveGeneration(ctx)
}

func (c *countingBackend) checks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.liveChecks
}

func (c *countingBackend) SearchStories(context.Context, string, []float32, int) ([]ScoredStory, error) {
	return c.searchHits, nil
}

func TestGatewayChecksBackendOncePerSyncInterval(t *testing.T) {
	t.Parallel()

	backend := &countingBackend{MemoryBackend: NewMemoryBackend()}
	ctx := context.Background()
	collector := NewRebuilder(backend, NewGateway(backend, nil, zerolog.Nop(), GatewayOptions{}), zerolog.Nop())
	_, err := collector.Rebuild(ctx, []news.Story{makeStory("a", "A", 0, nil)})
	require.NoError(t, err)

	reader := NewGateway(backend, nil, zerolog.Nop(), GatewayOptions{SyncInterval: time.Hour})
	require.NoError(t, reader.Refresh(ctx))
	checks := backend.checks()

	for range 5 {
		assert.Len(t, reader.List(ctx, ListFilter{}), 1)
	}
	assert.Equal(t, checks, backend.checks(), "reads inside the sync interval must not query the backend")

	// A newer generation stays hidden until the interval passes.
	_, err = collector.Rebuild(ctx, []news.Story{makeStory("b", "B", 0, nil)})
	require.NoError(t, err)
	_, err = reader.Get(ctx, "a")
	assert.NoError(t, err)

	disabled := NewGateway(backend, nil, zerolog.Nop(), GatewayOptions{SyncInterval: -1})
	before := backend.checks()
	assert.Empty(t, disabled.List(ctx, ListFilter{}))
	assert.Equal(t, before, backend.checks())
}

func TestSearchContextFallsBackWhenBackendFindsNothing(t *testing.T) {
	t.Parallel()

	backend := &countingBackend{MemoryBackend: NewMemoryBackend()}
	gateway, rebuilder := newStore(backend, &axisEmbedder{})
	ctx := context.Background()
	_, err := rebuilder.Rebuild(ctx, []news.Story{
		makeStory("along-x", "X story", 0, []float32{1, 0}),
		makeStory("along-y", "Y story", 0, []float32{0, 1}),
	})
	require.NoError(t, err)

	fragments, err := gateway.SearchContext(ctx, "x marks", 1)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "along-x", fragments[0].StoryID)

	backend.searchHits = []ScoredStory{{StoryID: "along-y", Score: 0.5}}
	fragments, err = gateway.SearchContext(ctx, "x marks", 1)
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "along-y", fragments[0].StoryID, "backend ranking wins when it returns rows")
}

func summaryIDs(items []news.StorySummary) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func generationStates(t *testing.T, backend Backend) map[string]GenerationState {
	t.Helper()
	generations, err := backend.Generations(context.Background())
	require.NoError(t, err)
	out := make(map[string]GenerationState, len(generations))
	for _, gen := range generations {
		out[gen.ID] = gen.State
	}
	return out
}
