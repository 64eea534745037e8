package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Service loads a wallet's summaries and market embeddings, builds its
// interest vector and persists it.
type Service struct {
	summaries domain.MarketSummaryStore
	markets   domain.MarketStore
	profiles  domain.ProfileStore
	builder   *Builder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a profile Service.
func NewService(
	summaries domain.MarketSummaryStore,
	markets domain.MarketStore,
	profiles domain.ProfileStore,
	builder *Builder,
	logger *slog.Logger,
) *Service {
	return &Service{
		summaries: summaries,
		markets:   markets,
		profiles:  profiles,
		builder:   builder,
		logger:    logger.With(slog.String("component", "profile_service")),
		now:       time.Now,
	}
}

// BuildInterestVector regenerates the wallet's interest vector, replacing any
// stored profile. It returns domain.ErrNoProfile when none of the wallet's
// markets has an embedding.
func (s *Service) BuildInterestVector(ctx context.Context, wallet string) ([]float64, error) {
	p, _, err := s.Generate(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return p.Vector, nil
}

// Generate is BuildInterestVector returning the stored profile and build
// statistics.
func (s *Service) Generate(ctx context.Context, wallet string) (domain.InterestProfile, Result, error) {
	wallet = domain.NormalizeWallet(wallet)

	summaries, err := s.summaries.ListByWallet(ctx, wallet)
	if err != nil {
		return domain.InterestProfile{}, Result{}, fmt.Errorf("profile: list summaries %s: %w", wallet, err)
	}
	if len(summaries) == 0 {
		return domain.InterestProfile{}, Result{}, domain.ErrNoProfile
	}

	slugs := make([]string, 0, len(summaries))
	for _, sm := range summaries {
		slugs = append(slugs, sm.MarketSlug)
	}
	markets, err := s.markets.ListBySlugs(ctx, slugs)
	if err != nil {
		return domain.InterestProfile{}, Result{}, fmt.Errorf("profile: load markets %s: %w", wallet, err)
	}

	embeddings := make(map[string][]float64, len(markets))
	for _, m := range markets {
		if v := m.EmbeddingVector(); len(v) > 0 {
			embeddings[m.Slug] = v
		}
	}

	res, err := s.builder.Build(summaries, embeddings)
	if err != nil {
		return domain.InterestProfile{}, res, err
	}
	if res.Skipped > 0 {
		s.logger.WarnContext(ctx, "profile: skipped embeddings with wrong dimension",
			slog.String("wallet", wallet),
			slog.Int("skipped", res.Skipped),
			slog.Int("dimensions", s.builder.Dimensions()),
		)
	}

	p := domain.InterestProfile{
		WalletAddress: wallet,
		Vector:        res.Vector,
		LastUpdated:   s.now().UTC(),
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		return domain.InterestProfile{}, res, fmt.Errorf("profile: upsert %s: %w", wallet, err)
	}
	return p, res, nil
}
