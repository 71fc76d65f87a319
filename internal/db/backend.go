package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/store"
)

const insertBatchSize = 200

var (
	_ store.Backend        = (*Pool)(nil)
	_ store.VectorSearcher = (*Pool)(nil)
)

func (p *Pool) CreateGeneration(ctx context.Context, id string, createdAt time.Time) error {
	row := Generation{GenerationID: id, State: string(store.StateStaging), CreatedAt: createdAt.UTC()}
	if err := p.gdb.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create generation: %w", err)
	}
	return nil
}

func (p *Pool) PutStories(ctx context.Context, generationID string, stories []news.Story) error {
	storyRowsBatch := make([]Story, 0, len(stories))
	var evidenceRows []Evidence
	for _, story := range stories {
		if p.dimensions > 0 && len(story.Embedding) > 0 && len(story.Embedding) != p.dimensions {
			return fmt.Errorf("story %s embedding has %d dimensions, expected %d", story.ID, len(story.Embedding), p.dimensions)
		}
		row, evidence, err := storyRows(generationID, story)
		if err != nil {
			return err
		}
		storyRowsBatch = append(storyRowsBatch, row)
		evidenceRows = append(evidenceRows, evidence...)
	}

	return p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireState(tx, generationID, store.StateStaging); err != nil {
			return err
		}
		if len(storyRowsBatch) > 0 {
			if err := tx.CreateInBatches(storyRowsBatch, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert stories: %w", err)
			}
		}
		if len(evidenceRows) > 0 {
			if err := tx.CreateInBatches(evidenceRows, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert evidence: %w", err)
			}
		}
		return nil
	})
}

// Activate swaps the live pointer in one transaction. The partial unique
// index on state keeps at most one live generation.
func (p *Pool) Activate(ctx context.Context, generationID string, at time.Time) (string, error) {
	var previous string
	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireState(tx, generationID, store.StateStaging); err != nil {
			return err
		}

		var live []Generation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("state = ?", string(store.StateLive)).
			Find(&live).Error; err != nil {
			return fmt.Errorf("lock live generation: %w", err)
		}
		if len(live) > 0 {
			previous = live[0].GenerationID
		}

		if err := tx.Model(&Generation{}).
			Where("state = ?", string(store.StateLive)).
			Update("state", string(store.StateRetired)).Error; err != nil {
			return fmt.Errorf("retire live generation: %w", err)
		}
		activatedAt := at.UTC()
		if err := tx.Model(&Generation{}).
			Where("generation_id = ?", generationID).
			Updates(map[string]any{"state": string(store.StateLive), "activated_at": activatedAt}).Error; err != nil {
			return fmt.Errorf("activate generation: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (p *Pool) DropGeneration(ctx context.Context, generationID string) error {
	return p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("generation_id = ?", generationID).Delete(&Evidence{}).Error; err != nil {
			return fmt.Errorf("delete evidence: %w", err)
		}
		if err := tx.Where("generation_id = ?", generationID).Delete(&Story{}).Error; err != nil {
			return fmt.Errorf("delete stories: %w", err)
		}
		if err := tx.Where("generation_id = ?", generationID).Delete(&Generation{}).Error; err != nil {
			return fmt.Errorf("delete generation: %w", err)
		}
		return nil
	})
}

func (p *Pool) Generations(ctx context.Context) ([]store.GenerationInfo, error) {
	query, args, err := generationsQuery()
	if err != nil {
		return nil, fmt.Errorf("build generations query: %w", err)
	}
	var rows []struct {
		GenerationID string
		State        string
		CreatedAt    time.Time
		ActivatedAt  *time.Time
		StoryCount   int
	}
	if err := p.gdb.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}

	out := make([]store.GenerationInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, store.GenerationInfo{
			ID:          row.GenerationID,
			State:       store.GenerationState(row.State),
			CreatedAt:   row.CreatedAt.UTC(),
			ActivatedAt: row.ActivatedAt,
			StoryCount:  row.StoryCount,
		})
	}
	return out, nil
}

func (p *Pool) LiveGeneration(ctx context.Context) (string, error) {
	query, args, err := liveGenerationQuery()
	if err != nil {
		return "", fmt.Errorf("build live generation query: %w", err)
	}
	var ids []string
	if err := p.gdb.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return "", fmt.Errorf("load live generation: %w", err)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

func (p *Pool) LoadStories(ctx context.Context, generationID string) ([]news.Story, error) {
	gdb := p.gdb.WithContext(ctx)

	var generation Generation
	if err := gdb.Where("generation_id = ?", generationID).Take(&generation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", store.ErrUnknownGeneration, generationID)
		}
		return nil, fmt.Errorf("load generation: %w", err)
	}

	var storyModels []Story
	if err := gdb.Where("generation_id = ?", generationID).Order("seq").Find(&storyModels).Error; err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	var evidenceModels []Evidence
	if err := gdb.Where("generation_id = ?", generationID).Order("story_id, position").Find(&evidenceModels).Error; err != nil {
		return nil, fmt.Errorf("load evidence: %w", err)
	}

	stories := make([]news.Story, 0, len(storyModels))
	index := make(map[string]int, len(storyModels))
	for _, model := range storyModels {
		story, err := model.toNews()
		if err != nil {
			return nil, err
		}
		index[story.ID] = len(stories)
		stories = append(stories, story)
	}
	for _, model := range evidenceModels {
		if i, ok := index[model.StoryID]; ok {
			stories[i].Evidence = append(stories[i].Evidence, model.toNews())
		}
	}
	return stories, nil
}

// SearchStories ranks the generation's stories by pgvector cosine distance.
func (p *Pool) SearchStories(ctx context.Context, generationID string, vector []float32, k int) ([]store.ScoredStory, error) {
	if k <= 0 {
		return nil, nil
	}
	dimensions := p.dimensions
	if dimensions > 0 && len(vector) != dimensions {
		dimensions = 0
	}
	query, args, err := searchStoriesQuery(generationID, vector, k, dimensions)
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	var rows []struct {
		StoryID string
		Score   float64
	}
	if err := p.gdb.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search stories: %w", err)
	}
	out := make([]store.ScoredStory, 0, len(rows))
	for _, row := range rows {
		out = append(out, store.ScoredStory{StoryID: row.StoryID, Score: row.Score})
	}
	return out, nil
}

func (p *Pool) RecordRun(ctx context.Context, run news.Run) error {
	row, err := runRow(run)
	if err != nil {
		return err
	}
	err = p.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"finished_at", "status", "generation_id", "counters", "error_message"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (p *Pool) ListRuns(ctx context.Context, limit int) ([]news.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := listRunsQuery(limit)
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	var rows []Run
	if err := p.gdb.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]news.Run, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toNews())
	}
	return out, nil
}

func requireState(tx *gorm.DB, generationID string, want store.GenerationState) error {
	var generation Generation
	if err := tx.Where("generation_id = ?", generationID).Take(&generation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", store.ErrUnknownGeneration, generationID)
		}
		return fmt.Errorf("load generation: %w", err)
	}
	if store.GenerationState(generation.State) != want {
		return fmt.Errorf("generation %s is %s, not %s", generationID, generation.State, want)
	}
	return nil
}
