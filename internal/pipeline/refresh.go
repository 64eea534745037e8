package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// MarketRefresher re-reads known open markets from the trading-data provider
// and applies their status, winning side, volume and outcome tokens. This is
// how markets become finalized.
type MarketRefresher struct {
	data    domain.TradingData
	markets domain.MarketStore
	sync    MarketSyncer
	logger  *slog.Logger
}

// MarketSyncer writes refreshed markets and drops any cached copies.
type MarketSyncer interface {
	SyncMarkets(ctx context.Context, markets []domain.Market) error
}

// NewMarketRefresher creates a MarketRefresher. When sync is nil refreshed
// markets are written straight to the store.
func NewMarketRefresher(data domain.TradingData, markets domain.MarketStore, sync MarketSyncer, logger *slog.Logger) *MarketRefresher {
	return &MarketRefresher{
		data:    data,
		markets: markets,
		sync:    sync,
		logger:  logger.With(slog.String("component", "market_refresh")),
	}
}

// Run refreshes every open market. Updated counts markets written back and
// Skipped counts markets the provider no longer returns. A failed provider
// lookup is counted in Failed for each slug of the chunk.
func (r *MarketRefresher) Run(ctx context.Context) (Stats, error) {
	open, err := r.markets.ListOpenByVolume(ctx, 0)
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: list open markets: %w", err)
	}

	var stats Stats
	finalized := 0
	for start := 0; start < len(open); start += resolveChunk {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		chunk := open[start:min(start+resolveChunk, len(open))]
		slugs := make([]string, len(chunk))
		for i, m := range chunk {
			slugs[i] = m.Slug
		}
		stats.Processed += len(chunk)

		page, err := r.data.Markets(ctx, domain.MarketQuery{Slugs: slugs, Limit: len(slugs)})
		if err != nil {
			stats.Failed += len(chunk)
			r.logger.WarnContext(ctx, "refresh: provider lookup failed",
				slog.Int("slugs", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}
		fresh := make(map[string]domain.Market, len(page.Items))
		for _, m := range page.Items {
			fresh[m.Slug] = m
		}

		updates := make([]domain.Market, 0, len(chunk))
		for _, stored := range chunk {
			f, ok := fresh[stored.Slug]
			if !ok {
				stats.Skipped++
				continue
			}
			merged := applyRefresh(stored, f)
			if merged.IsFinalized() {
				finalized++
			}
			updates = append(updates, merged)
		}
		if len(updates) == 0 {
			continue
		}
		if err := r.write(ctx, updates); err != nil {
			return stats, fmt.Errorf("pipeline: upsert refreshed markets: %w", err)
		}
		stats.Updated += len(updates)
	}

	r.logger.InfoContext(ctx, "refresh: done", slog.Int("finalized", finalized))
	return stats, nil
}

func (r *MarketRefresher) write(ctx context.Context, markets []domain.Market) error {
	if r.sync != nil {
		return r.sync.SyncMarkets(ctx, markets)
	}
	return r.markets.UpsertBatch(ctx, markets)
}

// applyRefresh overlays the provider's lifecycle fields on the stored market,
// keeping locally derived fields such as the embedding and category.
func applyRefresh(stored, fresh domain.Market) domain.Market {
	out := stored
	out.Status = fresh.Status
	out.WinningSide = fresh.WinningSide
	out.VolumeTotal = fresh.VolumeTotal
	if fresh.SideAID != "" {
		out.SideAID = fresh.SideAID
	}
	if fresh.SideBID != "" {
		out.SideBID = fresh.SideBID
	}
	if fresh.CompletedTime != nil {
		out.CompletedTime = fresh.CompletedTime
	}
	if fresh.EndTime != nil {
		out.EndTime = fresh.EndTime
	}
	if out.Title == "" {
		out.Title = fresh.Title
	}
	if len(fresh.Tags) > 0 {
		out.Tags = fresh.Tags
	}
	return out
}
