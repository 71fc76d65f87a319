// Package pipeline runs collection runs end to end and answers questions
// against the live generation.
package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/categorize"
	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/dedup"
	"horse.fit/newsdesk/internal/llm"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/normalize"
	"horse.fit/newsdesk/internal/runlock"
	"horse.fit/newsdesk/internal/search"
	"horse.fit/newsdesk/internal/store"
	"horse.fit/newsdesk/internal/summarize"
)

const (
	DefaultWorkers  = 4
	DefaultContextK = 3
)

type Categorizer interface {
	Categorize(ctx context.Context, story news.Story) categorize.Result
}

type Summarizer interface {
	Summarize(ctx context.Context, story news.Story) summarize.Result
}

// InterestsFunc returns the current topics of interest.
type InterestsFunc func() ([]string, error)

type Dependencies struct {
	Search      search.Provider
	Interests   InterestsFunc
	Normalizer  *normalize.Normalizer
	Dedup       *dedup.Deduplicator
	Categorizer Categorizer
	Summarizer  Summarizer
	Backend     store.Backend
	Rebuilder   *store.Rebuilder
	Gateway     *store.Gateway
	Lock        runlock.Locker
	Model       llm.Model
}

type Options struct {
	Workers      int
	Plan         search.PlanOptions
	SearchPolicy collab.Policy
	AnswerPolicy collab.Policy
	ContextK     int
}

type Service struct {
	deps   Dependencies
	opts   Options
	logger zerolog.Logger
}

func NewService(deps Dependencies, logger zerolog.Logger, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.ContextK <= 0 {
		opts.ContextK = DefaultContextK
	}
	return &Service{deps: deps, opts: opts, logger: logger}
}

// Gateway exposes the read side.
func (s *Service) Gateway() *store.Gateway {
	return s.deps.Gateway
}

// Reset drops all stored generations. It holds the run lock, so it is
// rejected while a collection is in flight.
func (s *Service) Reset(ctx context.Context) error {
	lease, err := s.deps.Lock.TryAcquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(ctx, lease)
	return s.deps.Rebuilder.Reset(ctx)
}

func (s *Service) release(ctx context.Context, lease runlock.Lease) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn().Err(err).Msg("failed to release run lock")
	}
}
