package pipeline

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// resolveChunk bounds how many slugs go into one provider market lookup.
const resolveChunk = 50

// marketArena caches provider market metadata for the duration of one job
// run. It is never shared between runs.
type marketArena struct {
	data      domain.TradingData
	logger    *slog.Logger
	markets   map[string]domain.Market
	missing   map[string]bool // looked up and not returned by the provider
	persisted map[string]bool
}

func newMarketArena(data domain.TradingData, logger *slog.Logger) *marketArena {
	return &marketArena{
		data:      data,
		logger:    logger,
		markets:   make(map[string]domain.Market),
		missing:   make(map[string]bool),
		persisted: make(map[string]bool),
	}
}

// resolve looks up every slug not yet seen in this run. A failed lookup is
// logged and its slugs stay unresolved; they are retried on the next call.
func (a *marketArena) resolve(ctx context.Context, slugs []string) {
	var unseen []string
	queued := make(map[string]bool)
	for _, s := range slugs {
		if s == "" || a.missing[s] || queued[s] {
			continue
		}
		if _, ok := a.markets[s]; ok {
			continue
		}
		queued[s] = true
		unseen = append(unseen, s)
	}

	for start := 0; start < len(unseen); start += resolveChunk {
		end := min(start+resolveChunk, len(unseen))
		chunk := unseen[start:end]
		page, err := a.data.Markets(ctx, domain.MarketQuery{Slugs: chunk, Limit: len(chunk)})
		if err != nil {
			a.logger.WarnContext(ctx, "arena: market lookup failed",
				slog.Int("slugs", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, m := range page.Items {
			a.markets[m.Slug] = m
		}
		for _, s := range chunk {
			if _, ok := a.markets[s]; !ok {
				a.missing[s] = true
			}
		}
	}
}

func (a *marketArena) get(slug string) (domain.Market, bool) {
	m, ok := a.markets[slug]
	return m, ok
}

// unpersisted filters markets down to those not yet written in this run.
func (a *marketArena) unpersisted(markets []domain.Market) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if !a.persisted[m.Slug] {
			out = append(out, m)
		}
	}
	return out
}

func (a *marketArena) markPersisted(markets []domain.Market) {
	for _, m := range markets {
		a.persisted[m.Slug] = true
	}
}
