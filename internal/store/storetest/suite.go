// Package storetest holds the behaviour every store.Backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/store"
)

// Opener returns an empty backend. Backends that share one database across
// calls must be emptied by the opener. Subtests run sequentially.
type Opener func(t *testing.T) store.Backend

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// RunBackendSuite exercises open against the generation and run contract.
func RunBackendSuite(t *testing.T, open Opener) {
	t.Helper()

	t.Run("ActivateSwapsLiveGeneration", func(t *testing.T) { testActivateSwaps(t, open(t)) })
	t.Run("LoadStoriesKeepsOrderAndFields", func(t *testing.T) { testLoadStories(t, open(t)) })
	t.Run("DropGeneration", func(t *testing.T) { testDropGeneration(t, open(t)) })
	t.Run("RetiredGenerationDroppedOneRunLater", func(t *testing.T) { testRetiredDroppedLater(t, open(t)) })
	t.Run("GatewayFollowsRebuildsItDidNotMake", func(t *testing.T) { testGatewayFollows(t, open(t)) })
	t.Run("ResetPublishesEmptyGeneration", func(t *testing.T) { testReset(t, open(t)) })
	t.Run("RunHistory", func(t *testing.T) { testRunHistory(t, open(t)) })
}

// Story builds a valid single-evidence story without an embedding.
func Story(id, headline string, seq int, categories ...news.Category) news.Story {
	if len(categories) == 0 {
		categories = []news.Category{news.CategoryOther}
	}
	return news.Story{
		ID:         id,
		Seq:        seq,
		Headline:   headline,
		Summary:    headline + " summary",
		Categories: categories,
		Evidence: []news.Evidence{{
			Key:          "https://example.com/" + id,
			URL:          "https://example.com/" + id,
			Title:        headline,
			Text:         headline + " body",
			SourceDomain: "example.com",
			PublishedAt:  base.Add(-time.Duration(seq) * time.Hour),
			FetchedAt:    base,
			Query:        news.Query{Kind: news.QueryTopNews, Text: "top news", Index: 0},
		}},
	}
}

func stage(t *testing.T, backend store.Backend, id string, stories ...news.Story) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, backend.CreateGeneration(ctx, id, base))
	require.NoError(t, backend.PutStories(ctx, id, stories))
}

func states(t *testing.T, backend store.Backend) map[string]store.GenerationState {
	t.Helper()
	generations, err := backend.Generations(context.Background())
	require.NoError(t, err)
	out := make(map[string]store.GenerationState, len(generations))
	for _, gen := range generations {
		out[gen.ID] = gen.State
	}
	return out
}

func ids(items []news.StorySummary) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func testActivateSwaps(t *testing.T, backend store.Backend) {
	ctx := context.Background()

	live, err := backend.LiveGeneration(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)

	stage(t, backend, "gen-1", Story("a", "A", 0))
	previous, err := backend.Activate(ctx, "gen-1", base)
	require.NoError(t, err)
	assert.Empty(t, previous)

	stage(t, backend, "gen-2", Story("b", "B", 0))
	live, err = backend.LiveGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", live, "staging generation must stay invisible")

	previous, err = backend.Activate(ctx, "gen-2", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "gen-1", previous)

	live, err = backend.LiveGeneration(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gen-2", live)
	assert.Equal(t, map[string]store.GenerationState{"gen-1": store.StateRetired, "gen-2": store.StateLive}, states(t, backend))

	_, err = backend.Activate(ctx, "gen-1", base)
	assert.Error(t, err, "a retired generation cannot be activated again")
	_, err = backend.Activate(ctx, "gen-2", base)
	assert.Error(t, err, "the live generation cannot be activated again")
	_, err = backend.Activate(ctx, "missing", base)
	assert.ErrorIs(t, err, store.ErrUnknownGeneration)
	assert.Error(t, backend.PutStories(ctx, "gen-2", []news.Story{Story("c", "C", 1)}), "a live generation is read-only")

	generations, err := backend.Generations(ctx)
	require.NoError(t, err)
	for _, gen := range generations {
		if gen.ID == "gen-2" {
			require.NotNil(t, gen.ActivatedAt)
			assert.True(t, base.Add(time.Minute).Equal(*gen.ActivatedAt))
			assert.Equal(t, 1, gen.StoryCount)
		}
	}
}

func testLoadStories(t *testing.T, backend store.Backend) {
	ctx := context.Background()

	rich := Story("s1", "Second", 1, news.CategoryFinancial, news.CategoryTechnology)
	rich.Interests = []string{"markets"}
	rich.Degraded = true
	rich.CategoryFallback = true
	extra := rich.Evidence[0]
	extra.Key = "https://other.example/s1"
	extra.URL = extra.Key
	extra.SourceDomain = "other.example"
	extra.Order = 1
	rich.Evidence = append(rich.Evidence, extra)

	require.NoError(t, backend.CreateGeneration(ctx, "gen", base))
	require.NoError(t, backend.PutStories(ctx, "gen", []news.Story{Story("s0", "First", 0), rich}))
	require.NoError(t, backend.PutStories(ctx, "gen", []news.Story{Story("s2", "Third", 2)}))

	stories, err := backend.LoadStories(ctx, "gen")
	require.NoError(t, err)
	require.Len(t, stories, 3)
	assert.Equal(t, []string{"s0", "s1", "s2"}, []string{stories[0].ID, stories[1].ID, stories[2].ID})

	got := stories[1]
	assert.Equal(t, "Second", got.Headline)
	assert.Equal(t, "Second summary", got.Summary)
	assert.Equal(t, []news.Category{news.CategoryFinancial, news.CategoryTechnology}, got.Categories)
	assert.Equal(t, []string{"markets"}, got.Interests)
	assert.True(t, got.Degraded)
	assert.True(t, got.CategoryFallback)
	require.Len(t, got.Evidence, 2)
	assert.Equal(t, "https://example.com/s1", got.Evidence[0].URL)
	assert.Equal(t, "other.example", got.Evidence[1].SourceDomain)
	assert.True(t, rich.Evidence[0].PublishedAt.Equal(got.Evidence[0].PublishedAt))
	assert.Equal(t, rich.Evidence[0].Query, got.Evidence[0].Query)

	_, err = backend.LoadStories(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrUnknownGeneration)
}

func testDropGeneration(t *testing.T, backend store.Backend) {
	ctx := context.Background()

	stage(t, backend, "live", Story("a", "A", 0))
	_, err := backend.Activate(ctx, "live", base)
	require.NoError(t, err)
	stage(t, backend, "staging", Story("b", "B", 0))

	require.NoError(t, backend.DropGeneration(ctx, "staging"))
	assert.Equal(t, map[string]store.GenerationState{"live": store.StateLive}, states(t, backend))
	_, err = backend.LoadStories(ctx, "staging")
	assert.ErrorIs(t, err, store.ErrUnknownGeneration)

	require.NoError(t, backend.DropGeneration(ctx, "missing"))

	stories, err := backend.LoadStories(ctx, "live")
	require.NoError(t, err)
	assert.Len(t, stories, 1)
}

func newStore(backend store.Backend) (*store.Gateway, *store.Rebuilder) {
	gateway := store.NewGateway(backend, nil, zerolog.Nop(), store.GatewayOptions{SyncInterval: time.Nanosecond})
	return gateway, store.NewRebuilder(backend, gateway, zerolog.Nop())
}

func testRetiredDroppedLater(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	_, rebuilder := newStore(backend)

	first, err := rebuilder.Rebuild(ctx, []news.Story{Story("a", "A", 0)})
	require.NoError(t, err)
	second, err := rebuilder.Rebuild(ctx, []news.Story{Story("b", "B", 0)})
	require.NoError(t, err)
	assert.Equal(t, map[string]store.GenerationState{first: store.StateRetired, second: store.StateLive}, states(t, backend))

	third, err := rebuilder.Rebuild(ctx, []news.Story{Story("c", "C", 0)})
	require.NoError(t, err)
	assert.Equal(t, map[string]store.GenerationState{second: store.StateRetired, third: store.StateLive}, states(t, backend))
}

// testGatewayFollows rebuilds through one gateway and reads through another
// that only shares the backend, as a server does next to a scheduler.
func testGatewayFollows(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	_, collector := newStore(backend)
	reader := store.NewGateway(backend, nil, zerolog.Nop(), store.GatewayOptions{SyncInterval: time.Nanosecond})

	_, err := collector.Rebuild(ctx, []news.Story{Story("run1", "Run one", 0)})
	require.NoError(t, err)
	require.NoError(t, reader.Refresh(ctx))
	assert.Equal(t, []string{"run1"}, ids(reader.List(ctx, store.ListFilter{})))

	_, err = collector.Rebuild(ctx, []news.Story{Story("run2", "Run two", 0)})
	require.NoError(t, err)
	third, err := collector.Rebuild(ctx, []news.Story{Story("run3", "Run three", 0)})
	require.NoError(t, err)

	assert.Equal(t, []string{"run3"}, ids(reader.List(ctx, store.ListFilter{})))
	assert.Equal(t, third, reader.Snapshot().ID)
	story, err := reader.Get(ctx, "run3")
	require.NoError(t, err)
	assert.Equal(t, "Run three", story.Headline)
	_, err = reader.Get(ctx, "run1")
	assert.ErrorIs(t, err, news.ErrNotFound)

	require.NoError(t, collector.Reset(ctx))
	assert.Empty(t, reader.List(ctx, store.ListFilter{}))
	assert.Empty(t, reader.Snapshot().ID)
}

func testReset(t *testing.T, backend store.Backend) {
	ctx := context.Background()
	gateway, rebuilder := newStore(backend)

	_, err := rebuilder.Rebuild(ctx, []news.Story{Story("a", "A", 0)})
	require.NoError(t, err)
	_, err = rebuilder.Rebuild(ctx, []news.Story{Story("b", "B", 0)})
	require.NoError(t, err)

	require.NoError(t, rebuilder.Reset(ctx))
	assert.Empty(t, gateway.List(ctx, store.ListFilter{}))
	assert.Empty(t, states(t, backend))

	live, err := backend.LiveGeneration(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func testRunHistory(t *testing.T, backend store.Backend) {
	ctx := context.Background()

	finished := base.Add(time.Minute)
	require.NoError(t, backend.RecordRun(ctx, news.Run{ID: "r1", StartedAt: base, Status: news.RunRunning}))
	require.NoError(t, backend.RecordRun(ctx, news.Run{
		ID: "r1", StartedAt: base, FinishedAt: &finished, Status: news.RunPartialFailure,
		GenerationID: "g1", Counters: news.RunCounters{Queries: 4, FailedQueries: 1, Stories: 7},
	}))
	require.NoError(t, backend.RecordRun(ctx, news.Run{ID: "r2", StartedAt: base.Add(time.Hour), Status: news.RunFailed, Error: "search provider unavailable"}))

	runs, err := backend.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID)
	assert.Equal(t, "search provider unavailable", runs[0].Error)
	assert.Equal(t, news.RunPartialFailure, runs[1].Status)
	assert.Equal(t, 7, runs[1].Counters.Stories)
	require.NotNil(t, runs[1].FinishedAt)
	assert.True(t, finished.Equal(*runs[1].FinishedAt))

	limited, err := backend.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
