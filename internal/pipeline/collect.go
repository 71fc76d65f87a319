package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/globaltime"
	"horse.fit/newsdesk/internal/interests"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/normalize"
	"horse.fit/newsdesk/internal/runlock"
	"horse.fit/newsdesk/internal/search"
)

var ErrNoEvidence = errors.New("collection produced no usable evidence")

type queryResult struct {
	hits      []news.RawHit
	fetchedAt time.Time
	err       error
}

// Collect executes one collection run. The returned Run is always filled in,
// also when err is non-nil. A failed or cancelled run leaves the live
// generation untouched.
func (s *Service) Collect(ctx context.Context) (news.Run, error) {
	lease, err := s.deps.Lock.TryAcquire(ctx)
	if err != nil {
		return news.Run{}, err
	}
	defer s.release(ctx, lease)

	run, log := s.begin(ctx)
	runCtx, stop := s.whileHeld(ctx, log, lease)
	defer stop()
	return s.execute(runCtx, log, run)
}

// Start acquires the run lock and executes the run in the background. It
// returns the registered run as soon as the lock is held; onDone, when set,
// receives the finished run.
func (s *Service) Start(ctx context.Context, onDone func(news.Run, error)) (news.Run, error) {
	lease, err := s.deps.Lock.TryAcquire(ctx)
	if err != nil {
		return news.Run{}, err
	}

	run, log := s.begin(ctx)
	go func() {
		defer s.release(ctx, lease)
		runCtx, stop := s.whileHeld(ctx, log, lease)
		defer stop()
		finished, err := s.execute(runCtx, log, run)
		if onDone != nil {
			onDone(finished, err)
		}
	}()
	return run, nil
}

// whileHeld derives a context that is cancelled with runlock.ErrLeaseLost
// when the lease stops holding the run lock.
func (s *Service) whileHeld(ctx context.Context, log zerolog.Logger, lease runlock.Lease) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	lost := lease.Lost()
	if lost != nil {
		go func() {
			select {
			case <-lost:
				log.Error().Msg("run lock lost; cancelling collection run")
				cancel(runlock.ErrLeaseLost)
			case <-ctx.Done():
			}
		}()
	}
	return ctx, func() { cancel(nil) }
}

func (s *Service) begin(ctx context.Context) (news.Run, zerolog.Logger) {
	run := news.Run{ID: uuid.NewString(), StartedAt: globaltime.UTC(), Status: news.RunRunning}
	log := s.logger.With().Str("run_id", run.ID).Logger()
	s.recordRun(ctx, log, run)
	log.Info().Msg("collection run started")
	return run, log
}

func (s *Service) execute(ctx context.Context, log zerolog.Logger, run news.Run) (news.Run, error) {
	generationID, err := s.collect(ctx, log, &run.Counters)
	if cause := context.Cause(ctx); err != nil && errors.Is(cause, runlock.ErrLeaseLost) {
		err = fmt.Errorf("%w: %w", cause, err)
	}
	finishedAt := globaltime.UTC()
	run.FinishedAt = &finishedAt
	if err != nil {
		run.Status = news.RunFailed
		run.Error = err.Error()
		s.recordRun(ctx, log, run)
		log.Error().Err(err).Interface("counters", run.Counters).Msg("collection run failed")
		return run, err
	}

	run.GenerationID = generationID
	run.Status = news.RunSucceeded
	if degradedRun(run.Counters) {
		run.Status = news.RunPartialFailure
	}
	s.recordRun(ctx, log, run)
	log.Info().
		Str("status", string(run.Status)).
		Str("generation_id", generationID).
		Interface("counters", run.Counters).
		Dur("elapsed", finishedAt.Sub(run.StartedAt)).
		Msg("collection run finished")
	return run, nil
}

func (s *Service) collect(ctx context.Context, log zerolog.Logger, counters *news.RunCounters) (string, error) {
	if s.deps.Search == nil {
		return "", fmt.Errorf("%w: search provider is not configured", news.ErrProviderUnavailable)
	}
	topics := s.loadInterests(log)
	if len(topics) == 0 {
		log.Info().Msg("no interests configured; collecting top news only")
	}
	plan := search.Plan(topics, s.opts.Plan)
	counters.Queries = len(plan)

	results, err := s.runQueries(ctx, log, plan)
	if err != nil {
		return "", err
	}

	evidence := make([]news.Evidence, 0)
	order := 0
	for i, planned := range plan {
		result := results[i]
		if result.err != nil {
			counters.FailedQueries++
			continue
		}
		counters.Hits += len(result.hits)
		for _, hit := range result.hits {
			item, err := s.deps.Normalizer.Normalize(ctx, hit, planned.Query, order, result.fetchedAt)
			order++
			if err != nil {
				counters.Malformed++
				log.Warn().Err(err).Str("url", hit.URL).Str("query", planned.Text).Msg("skipping malformed hit")
				continue
			}
			evidence = append(evidence, item)
		}
	}
	if counters.FailedQueries == len(plan) {
		return "", fmt.Errorf("%w: all %d queries failed", news.ErrProviderUnavailable, len(plan))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	merged, duplicates := normalize.MergeByKey(evidence)
	counters.DuplicateURLs = duplicates
	counters.Evidence = len(merged)
	if len(merged) == 0 {
		return "", ErrNoEvidence
	}

	deduped, err := s.deps.Dedup.Run(ctx, merged)
	if err != nil {
		return "", err
	}
	counters.EmbedFailures = len(deduped.Dropped)
	if len(deduped.Clusters) == 0 {
		return "", fmt.Errorf("%w: every item failed to embed", ErrNoEvidence)
	}

	stories := make([]news.Story, len(deduped.Clusters))
	for i, cluster := range deduped.Clusters {
		stories[i] = news.Story{
			ID:        uuid.NewString(),
			Evidence:  cluster.Members,
			Interests: normalize.UnionInterests(cluster.Members),
			Embedding: cluster.Centroid(),
		}
	}

	if err := s.enrich(ctx, stories); err != nil {
		return "", err
	}
	for _, story := range stories {
		if story.Degraded {
			counters.Degraded++
		}
		if story.CategoryFallback {
			counters.CategoryFallbacks++
		}
	}
	counters.Stories = len(stories)

	return s.deps.Rebuilder.Rebuild(ctx, stories)
}

// runQueries searches concurrently; results keep plan order. Only total
// provider failure or cancellation is an error here.
func (s *Service) runQueries(ctx context.Context, log zerolog.Logger, plan []search.PlannedQuery) ([]queryResult, error) {
	results := make([]queryResult, len(plan))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.Workers)
	for i, planned := range plan {
		group.Go(func() error {
			hits, err := collab.Do(groupCtx, s.opts.SearchPolicy, "search", func(ctx context.Context) ([]news.RawHit, error) {
				return s.deps.Search.Search(ctx, planned.Text, planned.MaxResults)
			})
			if err != nil {
				if ctxErr := groupCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn().Err(err).Str("query", planned.Text).Msg("search query failed")
			}
			results[i] = queryResult{hits: hits, fetchedAt: globaltime.UTC(), err: err}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, ctx.Err()
}

type enrichment struct {
	headline         string
	summary          string
	degraded         bool
	categories       []news.Category
	categoryFallback bool
}

// enrich categorizes and summarizes stories on a bounded worker pool.
// Results are keyed by story id and applied after every worker finishes.
func (s *Service) enrich(ctx context.Context, stories []news.Story) error {
	var (
		mu      sync.Mutex
		results = make(map[string]enrichment, len(stories))
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.Workers)
	for _, story := range stories {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			categories := s.deps.Categorizer.Categorize(groupCtx, story)
			summary := s.deps.Summarizer.Summarize(groupCtx, story)
			if err := groupCtx.Err(); err != nil {
				return err
			}

			mu.Lock()
			results[story.ID] = enrichment{
				headline:         summary.Headline,
				summary:          summary.Summary,
				degraded:         summary.Degraded,
				categories:       news.CanonicalCategories(categories.Categories),
				categoryFallback: categories.Fallback,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i := range stories {
		result, ok := results[stories[i].ID]
		if !ok {
			return fmt.Errorf("story %s was not enriched", stories[i].ID)
		}
		stories[i].Headline = result.headline
		stories[i].Summary = result.summary
		stories[i].Degraded = result.degraded
		stories[i].Categories = result.categories
		stories[i].CategoryFallback = result.categoryFallback
		if len(stories[i].Categories) == 0 {
			stories[i].Categories = []news.Category{news.CategoryOther}
			stories[i].CategoryFallback = true
		}
	}
	return nil
}

func (s *Service) loadInterests(log zerolog.Logger) []string {
	if s.deps.Interests == nil {
		return nil
	}
	topics, err := s.deps.Interests()
	if errors.Is(err, interests.ErrFileMissing) {
		log.Warn().Err(err).Msg("interests file not found; collecting top news only")
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to load interests; collecting top news only")
		return nil
	}
	return topics
}

func (s *Service) recordRun(ctx context.Context, log zerolog.Logger, run news.Run) {
	if s.deps.Backend == nil {
		return
	}
	if err := s.deps.Backend.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn().Err(err).Msg("failed to record run")
	}
}

func degradedRun(c news.RunCounters) bool {
	return c.FailedQueries > 0 || c.Malformed > 0 || c.EmbedFailures > 0 || c.Degraded > 0 || c.CategoryFallbacks > 0
}
