// Package dedup groups the evidence of one run into stories by embedding similarity.
package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"horse.fit/newsdesk/internal/collab"
	"horse.fit/newsdesk/internal/news"
	"horse.fit/newsdesk/internal/reader"
)

const (
	DefaultThreshold = 0.75
	DefaultBatchSize = 16
	maxEmbedRunes    = 2000
)

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	// Threshold is the cosine similarity an item must exceed to join a cluster.
	Threshold float64
	BatchSize int
	Policy    collab.Policy
}

// Cluster is one group of evidence judged to describe the same event.
// Members[0] is the seed; its embedding is the representative used for matching.
type Cluster struct {
	Members []news.Evidence
}

func (c Cluster) Seed() news.Evidence {
	return c.Members[0]
}

// Centroid is the normalized mean member embedding, used as the story's search vector.
func (c Cluster) Centroid() []float32 {
	vectors := make([][]float32, 0, len(c.Members))
	for _, member := range c.Members {
		vectors = append(vectors, member.Embedding)
	}
	return Mean(vectors)
}

type Result struct {
	Clusters []Cluster
	// Dropped holds evidence whose embedding could not be obtained.
	Dropped []news.Evidence
}

type Deduplicator struct {
	embedder Embedder
	logger   zerolog.Logger
	opts     Options
}

func New(embedder Embedder, logger zerolog.Logger, opts Options) *Deduplicator {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Deduplicator{embedder: embedder, logger: logger, opts: opts}
}

// Run embeds every evidence item and clusters them greedily in discovery order.
// Items that cannot be embedded are dropped with a warning. Only cancellation
// of ctx returns an error.
func (d *Deduplicator) Run(ctx context.Context, items []news.Evidence) (Result, error) {
	ordered := append([]news.Evidence(nil), items...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	embedded := make([]news.Evidence, 0, len(ordered))
	var dropped []news.Evidence
	for start := 0; start < len(ordered); start += d.opts.BatchSize {
		end := min(start+d.opts.BatchSize, len(ordered))
		batch := ordered[start:end]

		ok, failed, err := d.embedBatch(ctx, batch)
		if err != nil {
			return Result{}, err
		}
		embedded = append(embedded, ok...)
		dropped = append(dropped, failed...)
	}

	return Result{
		Clusters: Greedy(embedded, d.opts.Threshold),
		Dropped:  dropped,
	}, nil
}

// embedBatch embeds a batch in one call and falls back to one call per item
// when the batch fails, so a single bad item cannot sink its neighbours.
func (d *Deduplicator) embedBatch(ctx context.Context, batch []news.Evidence) ([]news.Evidence, []news.Evidence, error) {
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = embeddingInput(item)
	}

	vectors, err := d.embed(ctx, texts)
	if err == nil && len(vectors) == len(batch) {
		ok := make([]news.Evidence, 0, len(batch))
		var failed []news.Evidence
		for i, item := range batch {
			if !Valid(vectors[i]) {
				d.warnDropped(item, fmt.Errorf("embedding has invalid values"))
				failed = append(failed, item)
				continue
			}
			item.Embedding = vectors[i]
			ok = append(ok, item)
		}
		return ok, failed, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}
	if len(batch) == 1 {
		if err == nil {
			err = fmt.Errorf("embedding response count mismatch: requested=1 returned=%d", len(vectors))
		}
		d.warnDropped(batch[0], err)
		return nil, batch, nil
	}

	d.logger.Warn().Err(err).Int("batch_size", len(batch)).Msg("batch embedding failed; retrying items individually")
	ok := make([]news.Evidence, 0, len(batch))
	var failed []news.Evidence
	for _, item := range batch {
		single, singleFailed, err := d.embedBatch(ctx, []news.Evidence{item})
		if err != nil {
			return nil, nil, err
		}
		ok = append(ok, single...)
		failed = append(failed, singleFailed...)
	}
	return ok, failed, nil
}

func (d *Deduplicator) embed(ctx context.Context, texts []string) ([][]float32, error) {
	return collab.Do(ctx, d.opts.Policy, "embed", func(ctx context.Context) ([][]float32, error) {
		return d.embedder.Embed(ctx, texts)
	})
}

func (d *Deduplicator) warnDropped(item news.Evidence, err error) {
	d.logger.Warn().
		Err(err).
		Str("evidence_key", item.Key).
		Msg("embedding unavailable; dropping evidence from run")
}

// Greedy assigns each item, in the given order, to the first cluster whose seed
// embedding has cosine similarity strictly above threshold; otherwise it seeds a
// new cluster. Items must already carry embeddings.
func Greedy(items []news.Evidence, threshold float64) []Cluster {
	clusters := make([]Cluster, 0, len(items))
	for _, item := range items {
		joined := false
		for i := range clusters {
			if Cosine(clusters[i].Seed().Embedding, item.Embedding) > threshold {
				clusters[i].Members = append(clusters[i].Members, item)
				joined = true
				break
			}
		}
		if !joined {
			clusters = append(clusters, Cluster{Members: []news.Evidence{item}})
		}
	}
	return clusters
}

func embeddingInput(item news.Evidence) string {
	text := item.Text
	if item.Title != "" && item.Title != item.Text {
		text = item.Title + "\n\n" + item.Text
	}
	clipped, _ := reader.TruncateText(text, maxEmbedRunes)
	return clipped
}
