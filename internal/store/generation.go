package store

import (
	"sort"
	"time"

	"horse.fit/newsdesk/internal/dedup"
	"horse.fit/newsdesk/internal/news"
)

// Generation is an immutable snapshot of one live generation. Stories are
// held in listing order and must not be modified by callers.
type Generation struct {
	ID          string
	ActivatedAt time.Time
	stories     []news.Story
	index       map[string]int
}

// NewGeneration copies stories and sorts them by newest evidence, then by Seq.
func NewGeneration(id string, activatedAt time.Time, stories []news.Story) *Generation {
	ordered := append([]news.Story(nil), stories...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].LatestEvidenceAt(), ordered[j].LatestEvidenceAt()
		if !a.Equal(b) {
			return a.After(b)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	index := make(map[string]int, len(ordered))
	for i, story := range ordered {
		index[story.ID] = i
	}
	return &Generation{ID: id, ActivatedAt: activatedAt, stories: ordered, index: index}
}

func emptyGeneration() *Generation {
	return NewGeneration("", time.Time{}, nil)
}

func (g *Generation) Len() int {
	if g == nil {
		return 0
	}
	return len(g.stories)
}

func (g *Generation) Stories() []news.Story {
	if g == nil {
		return nil
	}
	return g.stories
}

func (g *Generation) Story(id string) (news.Story, bool) {
	if g == nil {
		return news.Story{}, false
	}
	i, ok := g.index[id]
	if !ok {
		return news.Story{}, false
	}
	return g.stories[i], true
}

// ListFilter narrows a listing. Zero values match everything.
type ListFilter struct {
	Category news.Category
	Interest string
	Limit    int
}

func (g *Generation) List(filter ListFilter) []news.StorySummary {
	out := make([]news.StorySummary, 0)
	for _, story := range g.Stories() {
		if filter.Category != "" && !news.HasCategory(story.Categories, filter.Category) {
			continue
		}
		if filter.Interest != "" && !story.HasInterest(filter.Interest) {
			continue
		}
		out = append(out, story.Summarize())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// nearest ranks stories by cosine similarity to vector, best first, skipping
// the ids in exclude. Ties keep listing order.
func (g *Generation) nearest(vector []float32, k int, exclude string) []ScoredStory {
	scored := make([]ScoredStory, 0, g.Len())
	for _, story := range g.Stories() {
		if story.ID == exclude || len(story.Embedding) == 0 {
			continue
		}
		scored = append(scored, ScoredStory{StoryID: story.ID, Score: dedup.Cosine(vector, story.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
