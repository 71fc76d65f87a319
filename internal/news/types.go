// Package news holds the domain records shared by every stage of a collection run.
package news

import (
	"encoding/json"
	"strings"
	"time"
)

type QueryKind string

const (
	QueryTopNews  QueryKind = "top_news"
	QueryInterest QueryKind = "interest"
)

// Query is one search issued during a run. Index is its position in the run's query plan.
type Query struct {
	Kind  QueryKind `json:"kind"`
	Topic string    `json:"topic,omitempty"`
	Text  string    `json:"text"`
	Index int       `json:"index"`
}

// RawHit is one untyped search result as returned by the provider.
type RawHit struct {
	URL         string          `json:"url"`
	Title       string          `json:"title,omitempty"`
	Content     string          `json:"content,omitempty"`
	RawContent  string          `json:"raw_content,omitempty"`
	PublishedAt string          `json:"published_date,omitempty"`
	Score       float64         `json:"score,omitempty"`
	Payload     json.RawMessage `json:"-"`
}

// Evidence is one normalized source article. Immutable after normalization.
type Evidence struct {
	// Key identifies the evidence within a run: the canonical URL, or a content hash when no URL survived.
	Key          string    `json:"key"`
	URL          string    `json:"url,omitempty"`
	Title        string    `json:"title"`
	Text         string    `json:"text"`
	Language     string    `json:"language,omitempty"`
	SourceDomain string    `json:"source_domain,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	FetchedAt    time.Time `json:"fetched_at"`
	Query        Query     `json:"query"`
	Interests    []string  `json:"interests,omitempty"`
	// Order is the discovery position within the run: query order, then result order.
	Order     int       `json:"order"`
	Embedding []float32 `json:"-"`
}

// Story is the canonical deduplicated unit served to readers.
type Story struct {
	ID               string     `json:"id"`
	Headline         string     `json:"headline"`
	Summary          string     `json:"summary"`
	Categories       []Category `json:"categories"`
	Evidence         []Evidence `json:"evidence"`
	Interests        []string   `json:"interests,omitempty"`
	Degraded         bool       `json:"degraded,omitempty"`
	CategoryFallback bool       `json:"category_fallback,omitempty"`
	// Seq is the insertion position within its generation.
	Seq       int       `json:"seq"`
	Embedding []float32 `json:"-"`
}

// LatestEvidenceAt returns the newest publish time across the story's evidence.
func (s Story) LatestEvidenceAt() time.Time {
	var latest time.Time
	for _, evidence := range s.Evidence {
		if evidence.PublishedAt.After(latest) {
			latest = evidence.PublishedAt
		}
	}
	return latest
}

// HasInterest reports whether topic is among the story's matched interests, ignoring case.
func (s Story) HasInterest(topic string) bool {
	want := strings.TrimSpace(topic)
	for _, interest := range s.Interests {
		if strings.EqualFold(interest, want) {
			return true
		}
	}
	return false
}

// CombinedText concatenates evidence titles and text for classification.
func (s Story) CombinedText() string {
	var b strings.Builder
	for i, evidence := range s.Evidence {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if evidence.Title != "" {
			b.WriteString(evidence.Title)
			b.WriteString("\n")
		}
		b.WriteString(evidence.Text)
	}
	return strings.TrimSpace(b.String())
}

// StorySummary is the listing projection of a Story.
type StorySummary struct {
	ID               string     `json:"id"`
	Headline         string     `json:"headline"`
	Categories       []Category `json:"categories"`
	Interests        []string   `json:"interests,omitempty"`
	EvidenceCount    int        `json:"evidence_count"`
	LatestEvidenceAt time.Time  `json:"latest_evidence_at"`
	Degraded         bool       `json:"degraded,omitempty"`
}

func (s Story) Summarize() StorySummary {
	return StorySummary{
		ID:               s.ID,
		Headline:         s.Headline,
		Categories:       append([]Category(nil), s.Categories...),
		Interests:        append([]string(nil), s.Interests...),
		EvidenceCount:    len(s.Evidence),
		LatestEvidenceAt: s.LatestEvidenceAt(),
		Degraded:         s.Degraded,
	}
}

// Fragment is one similarity-search hit used to ground question answering.
type Fragment struct {
	StoryID     string     `json:"story_id"`
	Headline    string     `json:"headline"`
	Summary     string     `json:"summary"`
	Categories  []Category `json:"categories"`
	Score       float64    `json:"score"`
	PublishedAt time.Time  `json:"published_at"`
}

type RunStatus string

const (
	RunRunning        RunStatus = "running"
	RunSucceeded      RunStatus = "success"
	RunPartialFailure RunStatus = "partial_failure"
	RunFailed         RunStatus = "failed"
)

// RunCounters is the per-stage accounting reported by a run.
type RunCounters struct {
	Queries           int `json:"queries"`
	FailedQueries     int `json:"failed_queries"`
	Hits              int `json:"hits"`
	Malformed         int `json:"malformed"`
	DuplicateURLs     int `json:"duplicate_urls"`
	Evidence          int `json:"evidence"`
	EmbedFailures     int `json:"embed_failures"`
	Stories           int `json:"stories"`
	Degraded          int `json:"degraded"`
	CategoryFallbacks int `json:"category_fallbacks"`
}

// Run is one execution of the collection pipeline.
type Run struct {
	ID           string      `json:"id"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	Status       RunStatus   `json:"status"`
	GenerationID string      `json:"generation_id,omitempty"`
	Counters     RunCounters `json:"counters"`
	Error        string      `json:"error,omitempty"`
}
