package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	LockLocal = "local"
	LockRedis = "redis"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	StoreBackend        string        `envconfig:"STORE_BACKEND" default:"sqlite"`
	SQLitePath          string        `envconfig:"SQLITE_PATH" default:"newsdesk.db"`
	DatabaseURL         string        `envconfig:"DATABASE_URL"`
	DBMinConns          int32         `envconfig:"NP_DB_MIN_CONNS" default:"1"`
	DBMaxConns          int32         `envconfig:"NP_DB_MAX_CONNS" default:"8"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	StoreSyncInterval   time.Duration `envconfig:"STORE_SYNC_INTERVAL" default:"2s"`

	RunLock    string        `envconfig:"RUN_LOCK" default:"local"`
	RedisURL   string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RunLockTTL time.Duration `envconfig:"RUN_LOCK_TTL" default:"30m"`

	TavilyAPIKey       string `envconfig:"TAVILY_API_KEY"`
	TavilyEndpoint     string `envconfig:"TAVILY_ENDPOINT" default:"https://api.tavily.com/search"`
	TopNewsMaxResults  int    `envconfig:"TOP_NEWS_MAX_RESULTS" default:"10"`
	InterestMaxResults int    `envconfig:"INTEREST_MAX_RESULTS" default:"3"`
	InterestsFile      string `envconfig:"INTERESTS_FILE" default:"interests.txt"`

	LLMProvider     string `envconfig:"LLM_PROVIDER" default:"ollama"`
	OllamaBaseURL   string `envconfig:"OLLAMA_BASE_URL" default:"http://localhost:11434"`
	ModelName       string `envconfig:"MODEL_NAME" default:"llama3"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`

	EmbeddingEndpoint string `envconfig:"EMBEDDING_ENDPOINT" default:"http://localhost:11434/api/embed"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL" default:"nomic-embed-text"`

	DedupThreshold      float64       `envconfig:"DEDUP_THRESHOLD" default:"0.75"`
	WorkerCount         int           `envconfig:"WORKER_COUNT" default:"4"`
	CollaboratorTimeout time.Duration `envconfig:"COLLABORATOR_TIMEOUT" default:"60s"`
	SearchTimeout       time.Duration `envconfig:"SEARCH_TIMEOUT" default:"30s"`
	SearchContextMaxK   int           `envconfig:"SEARCH_CONTEXT_MAX_K" default:"20"`
	FetchFullText       bool          `envconfig:"FETCH_FULL_TEXT" default:"false"`
	KeywordFallback     bool          `envconfig:"KEYWORD_FALLBACK" default:"false"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	switch c.StoreBackend {
	case StoreMemory:
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, sqlite, postgres")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("NP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("NP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("NP_DB_MIN_CONNS (%d) cannot exceed NP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be >= 1")
	}
	if c.StoreSyncInterval < 0 {
		return fmt.Errorf("STORE_SYNC_INTERVAL must be >= 0")
	}

	c.RunLock = strings.ToLower(strings.TrimSpace(c.RunLock))
	switch c.RunLock {
	case LockLocal:
	case LockRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			return fmt.Errorf("REDIS_URL is required when RUN_LOCK=redis")
		}
		if c.RunLockTTL <= 0 {
			return fmt.Errorf("RUN_LOCK_TTL must be > 0")
		}
	default:
		return fmt.Errorf("RUN_LOCK must be local or redis")
	}

	if c.TopNewsMaxResults < 1 {
		return fmt.Errorf("TOP_NEWS_MAX_RESULTS must be >= 1")
	}
	if c.InterestMaxResults < 1 {
		return fmt.Errorf("INTEREST_MAX_RESULTS must be >= 1")
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("DEDUP_THRESHOLD must be in (0, 1]")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be >= 1")
	}
	if c.CollaboratorTimeout <= 0 {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must be > 0")
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("SEARCH_TIMEOUT must be > 0")
	}
	if c.SearchContextMaxK < 1 {
		return fmt.Errorf("SEARCH_CONTEXT_MAX_K must be >= 1")
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("MODEL_NAME is required")
	}
	return nil
}

// RequireSearch reports whether collection runs can reach the search provider.
func (c *Config) RequireSearch() error {
	if strings.TrimSpace(c.TavilyAPIKey) == "" {
		return fmt.Errorf("TAVILY_API_KEY is required to collect news")
	}
	return nil
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
