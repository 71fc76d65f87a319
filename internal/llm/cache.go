package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultQueryCacheTTL     = time.Hour
	defaultQueryCacheCleanup = 10 * time.Minute
)

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CachedEmbedder memoizes single-text embeddings such as repeated search queries.
type CachedEmbedder struct {
	next  Embedder
	cache *cache.Cache
}

func NewCachedEmbedder(next Embedder, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = DefaultQueryCacheTTL
	}
	return &CachedEmbedder{
		next:  next,
		cache: cache.New(ttl, defaultQueryCacheCleanup),
	}
}

// Embed serves cached vectors and forwards only the misses, preserving input order.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if cached, ok := c.cache.Get(cacheKey(text)); ok {
			out[i] = cached.([]float32)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedding response count mismatch: requested=%d returned=%d", len(missTexts), len(vectors))
	}
	for j, i := range missIdx {
		out[i] = vectors[j]
		c.cache.SetDefault(cacheKey(texts[i]), vectors[j])
	}
	return out, nil
}

func cacheKey(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
