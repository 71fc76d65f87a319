package db

import (
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Generation maps newsdesk.generations.
type Generation struct {
	GenerationID string     `gorm:"column:generation_id;type:text;primaryKey"`
	State        string     `gorm:"column:state;type:text;not null"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamptz;not null"`
	ActivatedAt  *time.Time `gorm:"column:activated_at;type:timestamptz"`
}

func (Generation) TableName() string { return "newsdesk.generations" }

// Story maps newsdesk.stories.
type Story struct {
	GenerationID     string           `gorm:"column:generation_id;type:text;primaryKey"`
	StoryID          string           `gorm:"column:story_id;type:text;primaryKey"`
	Seq              int              `gorm:"column:seq;type:integer;not null"`
	Headline         string           `gorm:"column:headline;type:text;not null"`
	Summary          string           `gorm:"column:summary;type:text;not null;default:''"`
	Categories       json.RawMessage  `gorm:"column:categories;type:jsonb;not null"`
	Interests        json.RawMessage  `gorm:"column:interests;type:jsonb;not null"`
	Degraded         bool             `gorm:"column:degraded;not null;default:false"`
	CategoryFallback bool             `gorm:"column:category_fallback;not null;default:false"`
	Embedding        *pgvector.Vector `gorm:"column:embedding;type:vector"`
}

func (Story) TableName() string { return "newsdesk.stories" }

// Evidence maps newsdesk.evidence.
type Evidence struct {
	GenerationID string          `gorm:"column:generation_id;type:text;primaryKey"`
	StoryID      string          `gorm:"column:story_id;type:text;primaryKey"`
	Position     int             `gorm:"column:position;type:integer;primaryKey"`
	EvidenceKey  string          `gorm:"column:evidence_key;type:text;not null"`
	URL          string          `gorm:"column:url;type:text;not null;default:''"`
	Title        string          `gorm:"column:title;type:text;not null"`
	Body         string          `gorm:"column:body;type:text;not null"`
	Language     string          `gorm:"column:language;type:text;not null;default:''"`
	SourceDomain string          `gorm:"column:source_domain;type:text;not null;default:''"`
	PublishedAt  time.Time       `gorm:"column:published_at;type:timestamptz;not null"`
	FetchedAt    time.Time       `gorm:"column:fetched_at;type:timestamptz;not null"`
	Query        json.RawMessage `gorm:"column:query;type:jsonb;not null"`
	Interests    json.RawMessage `gorm:"column:interests;type:jsonb;not null"`
	DiscoveryOrd int             `gorm:"column:discovery_ord;type:integer;not null"`
}

func (Evidence) TableName() string { return "newsdesk.evidence" }

// Run maps newsdesk.runs.
type Run struct {
	RunID        string          `gorm:"column:run_id;type:text;primaryKey"`
	StartedAt    time.Time       `gorm:"column:started_at;type:timestamptz;not null"`
	FinishedAt   *time.Time      `gorm:"column:finished_at;type:timestamptz"`
	Status       string          `gorm:"column:status;type:text;not null"`
	GenerationID string          `gorm:"column:generation_id;type:text;not null;default:''"`
	Counters     json.RawMessage `gorm:"column:counters;type:jsonb;not null"`
	ErrorMessage string          `gorm:"column:error_message;type:text;not null;default:''"`
}

func (Run) TableName() string { return "newsdesk.runs" }

func autoMigrateModels() []any {
	return []any{
		&Generation{},
		&Story{},
		&Evidence{},
		&Run{},
	}
}
