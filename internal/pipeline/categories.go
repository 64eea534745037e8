package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/category"
	"github.com/alanyoungcy/polyrec/internal/domain"
)

const categoryPageSize = 500

// CategoryJob derives every market's category from its title and tags.
type CategoryJob struct {
	markets    domain.MarketStore
	classifier *category.Classifier
	logger     *slog.Logger
}

// NewCategoryJob creates a CategoryJob. A nil classifier uses the built-in
// keyword table.
func NewCategoryJob(markets domain.MarketStore, classifier *category.Classifier, logger *slog.Logger) *CategoryJob {
	if classifier == nil {
		classifier = category.NewClassifier(nil)
	}
	return &CategoryJob{
		markets:    markets,
		classifier: classifier,
		logger:     logger.With(slog.String("component", "category_job")),
	}
}

// Run classifies all markets and writes the ones whose category changed.
func (j *CategoryJob) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	for offset := 0; ; offset += categoryPageSize {
		page, err := j.markets.List(ctx, domain.MarketFilter{Limit: categoryPageSize, Offset: offset})
		if err != nil {
			return stats, fmt.Errorf("pipeline: list markets: %w", err)
		}
		for _, m := range page {
			stats.Processed++
			next := j.classifier.FromTitle(m.Title, m.Tags)
			if next == m.Category {
				stats.Skipped++
				continue
			}
			if err := j.markets.SetCategory(ctx, m.Slug, next); err != nil {
				stats.Failed++
				j.logger.WarnContext(ctx, "categories: update failed",
					slog.String("market", m.Slug),
					slog.String("error", err.Error()),
				)
				continue
			}
			stats.Updated++
		}
		if len(page) < categoryPageSize {
			return stats, nil
		}
	}
}
