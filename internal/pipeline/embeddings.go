package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// EmbeddingJob embeds the titles of markets that have no embedding yet.
type EmbeddingJob struct {
	markets   domain.MarketStore
	embedder  domain.Embedder
	dim       int
	batchSize int
	logger    *slog.Logger
}

// NewEmbeddingJob creates an EmbeddingJob that accepts vectors of length dim
// and sends batchSize titles per provider call.
func NewEmbeddingJob(markets domain.MarketStore, embedder domain.Embedder, dim, batchSize int, logger *slog.Logger) *EmbeddingJob {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &EmbeddingJob{
		markets:   markets,
		embedder:  embedder,
		dim:       dim,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "embedding_job")),
	}
}

// Run embeds every market missing an embedding. A failed batch is counted in
// Failed and the job continues; vectors of the wrong length are counted in
// Skipped.
func (j *EmbeddingJob) Run(ctx context.Context) (Stats, error) {
	pending, err := j.markets.List(ctx, domain.MarketFilter{Embedding: domain.EmbeddingMissing})
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: list markets without embedding: %w", err)
	}

	var stats Stats
	for start := 0; start < len(pending); start += j.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch := pending[start:min(start+j.batchSize, len(pending))]
		texts := make([]string, len(batch))
		for i, m := range batch {
			texts[i] = m.DisplayTitle()
		}
		stats.Processed += len(batch)

		vectors, err := j.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			stats.Failed += len(batch)
			j.logger.WarnContext(ctx, "embeddings: batch failed",
				slog.String("first_market", batch[0].Slug),
				slog.Int("size", len(batch)),
				slog.String("error", err.Error()),
			)
			continue
		}

		for i, m := range batch {
			if i >= len(vectors) || len(vectors[i]) != j.dim {
				got := 0
				if i < len(vectors) {
					got = len(vectors[i])
				}
				stats.Skipped++
				j.logger.WarnContext(ctx, "embeddings: rejected vector with wrong dimension",
					slog.String("market", m.Slug),
					slog.Int("got", got),
					slog.Int("want", j.dim),
				)
				continue
			}
			if err := j.markets.SetEmbedding(ctx, m.Slug, m.Title, vectors[i]); err != nil {
				stats.Failed++
				j.logger.WarnContext(ctx, "embeddings: store failed",
					slog.String("market", m.Slug),
					slog.String("error", err.Error()),
				)
				continue
			}
			stats.Updated++
		}
	}
	return stats, nil
}
