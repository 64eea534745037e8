// Package service composes stores, caches and the ranking packages into the
// read models served over HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/recommend"
)

// MaxSlugLookup caps how many slugs a single by-slugs request may ask for.
const MaxSlugLookup = 100

// MarketService serves market metadata, reading through an optional cache.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil, in which case
// every read goes to the store.
func NewMarketService(
	markets domain.MarketStore,
	cache domain.MarketCache,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// GetMarket retrieves a market by slug, checking the cache first and falling
// back to the persistent store on a miss.
func (s *MarketService) GetMarket(ctx context.Context, slug string) (domain.Market, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Market{}, fmt.Errorf("market_service: empty slug: %w", domain.ErrInvalidInput)
	}

	if s.cache != nil {
		m, err := s.cache.Get(ctx, slug)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: cache get failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
		}
	}

	m, err := s.markets.GetBySlug(ctx, slug)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get %q: %w", slug, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("slug", slug),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// SyncMarkets upserts markets and drops their cached copies so later reads
// see the new state.
func (s *MarketService) SyncMarkets(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}
	if err := s.markets.UpsertBatch(ctx, markets); err != nil {
		return fmt.Errorf("market_service: upsert batch: %w", err)
	}
	if s.cache == nil {
		return nil
	}
	for _, m := range markets {
		if err := s.cache.Invalidate(ctx, m.Slug); err != nil {
			// Non-fatal: the entry expires on its own.
			s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
				slog.String("slug", m.Slug),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// BySlugs returns the known markets among slugs as bookmarked
// recommendations, in request order. Blank and repeated slugs are ignored and
// unknown ones are left out.
func (s *MarketService) BySlugs(ctx context.Context, slugs []string) ([]domain.Recommendation, error) {
	cleaned := make([]string, 0, len(slugs))
	seen := make(map[string]bool, len(slugs))
	for _, slug := range slugs {
		slug = strings.TrimSpace(slug)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		cleaned = append(cleaned, slug)
	}
	if len(cleaned) == 0 {
		return []domain.Recommendation{}, nil
	}
	if len(cleaned) > MaxSlugLookup {
		return nil, fmt.Errorf("market_service: %d slugs requested, max %d: %w",
			len(cleaned), MaxSlugLookup, domain.ErrInvalidInput)
	}

	markets, err := s.markets.ListBySlugs(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("market_service: list by slugs: %w", err)
	}
	return recommend.Bookmarked(markets), nil
}
