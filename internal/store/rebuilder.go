package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/globaltime"
	"horse.fit/newsdesk/internal/news"
)

const putBatchSize = 100

var ErrInvalidStory = errors.New("invalid story")

// Rebuilder replaces the live generation with a freshly staged one.
type Rebuilder struct {
	backend Backend
	gateway *Gateway
	logger  zerolog.Logger
}

func NewRebuilder(backend Backend, gateway *Gateway, logger zerolog.Logger) *Rebuilder {
	return &Rebuilder{backend: backend, gateway: gateway, logger: logger}
}

// Rebuild stages stories in a new generation and swaps it live. Stories get
// Seq values from their position. On any error, including cancellation, the
// staging generation is discarded and the live generation is left untouched.
func (r *Rebuilder) Rebuild(ctx context.Context, stories []news.Story) (string, error) {
	if len(stories) == 0 {
		return "", fmt.Errorf("%w: no stories to publish", ErrInvalidStory)
	}
	staged := make([]news.Story, len(stories))
	for i, story := range stories {
		story.Seq = i
		staged[i] = story
	}
	if err := validateStories(staged); err != nil {
		return "", err
	}

	generationID := uuid.NewString()
	createdAt := globaltime.UTC()
	if err := r.backend.CreateGeneration(ctx, generationID, createdAt); err != nil {
		return "", fmt.Errorf("create staging generation: %w", err)
	}

	log := r.logger.With().Str("generation_id", generationID).Logger()
	log.Debug().Int("stories", len(staged)).Msg("staging generation")

	if err := r.stage(ctx, generationID, staged); err != nil {
		r.discard(ctx, generationID, err)
		return "", err
	}

	activatedAt := globaltime.UTC()
	previous, err := r.backend.Activate(ctx, generationID, activatedAt)
	if err != nil {
		r.discard(ctx, generationID, err)
		return "", fmt.Errorf("activate generation: %w", err)
	}
	r.gateway.publish(NewGeneration(generationID, activatedAt, staged))
	log.Info().Str("retired_generation_id", previous).Int("stories", len(staged)).Msg("generation is live")

	r.dropStale(context.WithoutCancel(ctx), generationID, previous)
	return generationID, nil
}

func (r *Rebuilder) stage(ctx context.Context, generationID string, stories []news.Story) error {
	for start := 0; start < len(stories); start += putBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+putBatchSize, len(stories))
		if err := r.backend.PutStories(ctx, generationID, stories[start:end]); err != nil {
			return fmt.Errorf("stage stories: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Rebuilder) discard(ctx context.Context, generationID string, cause error) {
	r.logger.Warn().Err(cause).Str("generation_id", generationID).Msg("discarding staging generation")
	if err := r.backend.DropGeneration(context.WithoutCancel(ctx), generationID); err != nil {
		r.logger.Error().Err(err).Str("generation_id", generationID).Msg("failed to drop staging generation")
	}
}

// dropStale removes every generation except the live one and the one it just
// retired. The retired generation stays one more run for in-flight readers.
func (r *Rebuilder) dropStale(ctx context.Context, liveID, retiredID string) {
	generations, err := r.backend.Generations(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to list generations for cleanup")
		return
	}
	for _, gen := range generations {
		if gen.ID == liveID || gen.ID == retiredID {
			continue
		}
		if err := r.backend.DropGeneration(ctx, gen.ID); err != nil {
			r.logger.Warn().Err(err).Str("generation_id", gen.ID).Msg("failed to drop stale generation")
			continue
		}
		r.logger.Debug().Str("generation_id", gen.ID).Str("state", string(gen.State)).Msg("dropped stale generation")
	}
}

// Reset drops every generation and publishes an empty one.
func (r *Rebuilder) Reset(ctx context.Context) error {
	generations, err := r.backend.Generations(ctx)
	if err != nil {
		return fmt.Errorf("list generations: %w", err)
	}
	for _, gen := range generations {
		if err := r.backend.DropGeneration(ctx, gen.ID); err != nil {
			return fmt.Errorf("drop generation %s: %w", gen.ID, err)
		}
	}
	r.gateway.publish(emptyGeneration())
	r.logger.Info().Int("dropped", len(generations)).Msg("store reset")
	return nil
}

func validateStories(stories []news.Story) error {
	seen := make(map[string]struct{}, len(stories))
	for _, story := range stories {
		if strings.TrimSpace(story.ID) == "" {
			return fmt.Errorf("%w: story without id", ErrInvalidStory)
		}
		if _, dup := seen[story.ID]; dup {
			return fmt.Errorf("%w: duplicate story id %s", ErrInvalidStory, story.ID)
		}
		seen[story.ID] = struct{}{}
		if strings.TrimSpace(story.Headline) == "" {
			return fmt.Errorf("%w: story %s has no headline", ErrInvalidStory, story.ID)
		}
		if len(story.Categories) == 0 {
			return fmt.Errorf("%w: story %s has no category", ErrInvalidStory, story.ID)
		}
		if len(story.Evidence) == 0 {
			return fmt.Errorf("%w: story %s has no evidence", ErrInvalidStory, story.ID)
		}
	}
	return nil
}
