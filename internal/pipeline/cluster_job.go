package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/cluster"
	"github.com/alanyoungcy/polyrec/internal/domain"
)

// ClusterJob groups embedded markets into semantic clusters and labels them.
type ClusterJob struct {
	markets domain.MarketStore
	opts    cluster.Options
	dim     int
	logger  *slog.Logger
}

// NewClusterJob creates a ClusterJob over embeddings of length dim.
func NewClusterJob(markets domain.MarketStore, opts cluster.Options, dim int, logger *slog.Logger) *ClusterJob {
	return &ClusterJob{
		markets: markets,
		opts:    opts,
		dim:     dim,
		logger:  logger.With(slog.String("component", "cluster_job")),
	}
}

// Run clusters every market with an embedding of the expected length and
// records the assignments. Markets with another length are counted in
// Skipped.
func (j *ClusterJob) Run(ctx context.Context) (Stats, error) {
	embedded, err := j.markets.List(ctx, domain.MarketFilter{Embedding: domain.EmbeddingPresent})
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: list embedded markets: %w", err)
	}

	var stats Stats
	points := make([]cluster.Point, 0, len(embedded))
	for _, m := range embedded {
		v := m.EmbeddingVector()
		if len(v) != j.dim {
			stats.Skipped++
			continue
		}
		points = append(points, cluster.Point{ID: m.Slug, Title: m.DisplayTitle(), Vector: v})
	}
	stats.Processed = len(points)

	res, err := cluster.KMeans(points, j.opts)
	if errors.Is(err, cluster.ErrNoPoints) {
		j.logger.InfoContext(ctx, "cluster: nothing to cluster")
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("pipeline: kmeans: %w", err)
	}

	assignments := make([]domain.ClusterAssignment, len(points))
	for i, p := range points {
		c := res.Assignments[i]
		assignments[i] = domain.ClusterAssignment{MarketSlug: p.ID, Cluster: c, Label: res.Labels[c]}
	}
	if err := j.markets.SetClusters(ctx, assignments); err != nil {
		return stats, fmt.Errorf("pipeline: store clusters: %w", err)
	}
	stats.Updated = len(assignments)

	j.logger.InfoContext(ctx, "cluster: done",
		slog.Int("clusters", len(res.Centroids)),
		slog.Int("iterations", res.Iterations),
	)
	return stats, nil
}
