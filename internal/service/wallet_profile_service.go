package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// WalletProfileConfig tunes the semantic match block of a wallet profile.
type WalletProfileConfig struct {
	MatchThreshold float64
	TopMatches     int
}

// WalletProfileService assembles the per-wallet aggregate: category
// breakdown, totals and the embedding-derived profile.
type WalletProfileService struct {
	categories domain.CategorySummaryStore
	profiles   domain.ProfileStore
	markets    domain.MarketStore
	cfg        WalletProfileConfig
	logger     *slog.Logger
}

// NewWalletProfileService creates a WalletProfileService.
func NewWalletProfileService(
	categories domain.CategorySummaryStore,
	profiles domain.ProfileStore,
	markets domain.MarketStore,
	cfg WalletProfileConfig,
	logger *slog.Logger,
) *WalletProfileService {
	if cfg.TopMatches <= 0 {
		cfg.TopMatches = 5
	}
	return &WalletProfileService{
		categories: categories,
		profiles:   profiles,
		markets:    markets,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "wallet_profile_service")),
	}
}

// Get builds the wallet's profile. A wallet with no recorded activity gets a
// zero-valued profile rather than an error. The category PnL is nil until at
// least one market in the category has finalized.
func (s *WalletProfileService) Get(ctx context.Context, wallet string) (domain.WalletProfile, error) {
	wallet = domain.NormalizeWallet(wallet)
	if wallet == "" {
		return domain.WalletProfile{}, fmt.Errorf("wallet_profile: empty wallet: %w", domain.ErrInvalidInput)
	}

	rows, err := s.categories.ListByWallet(ctx, wallet)
	if err != nil {
		return domain.WalletProfile{}, fmt.Errorf("wallet_profile: list categories %s: %w", wallet, err)
	}

	out := domain.WalletProfile{
		Wallet:     wallet,
		Categories: make(map[string]domain.CategoryStats, len(rows)),
	}
	for _, r := range rows {
		stats := domain.CategoryStats{
			Volume:       r.TotalVolume,
			Interactions: r.TotalInteractions,
		}
		if r.FinalizedMarkets > 0 {
			pnl := r.TotalPnL
			stats.PnL = &pnl
			out.TotalPnL += pnl
		}
		out.Categories[r.Category] = stats
		out.TotalInteractions += r.TotalInteractions
		out.TotalVolume += r.TotalVolume
	}

	ml, err := s.mlProfile(ctx, wallet)
	if err != nil {
		return domain.WalletProfile{}, err
	}
	out.MLProfile = ml
	return out, nil
}

// mlProfile returns nil when the wallet has no stored interest profile. A
// failed similarity lookup degrades to an empty match list.
func (s *WalletProfileService) mlProfile(ctx context.Context, wallet string) (*domain.MLProfile, error) {
	p, err := s.profiles.Get(ctx, wallet)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallet_profile: load profile %s: %w", wallet, err)
	}

	ml := &domain.MLProfile{
		InterestVector:     p.Vector,
		LastUpdated:        p.LastUpdated,
		TopSemanticMarkets: []domain.SemanticMarket{},
	}
	if ml.InterestVector == nil {
		ml.InterestVector = []float64{}
	}
	if len(p.Vector) == 0 {
		return ml, nil
	}

	matches, err := s.markets.MatchMarkets(ctx, p.Vector, s.cfg.MatchThreshold, s.cfg.TopMatches)
	if err != nil {
		s.logger.WarnContext(ctx, "wallet_profile: semantic match failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return ml, nil
	}
	for _, m := range matches {
		ml.TopSemanticMarkets = append(ml.TopSemanticMarkets, domain.SemanticMarket{
			Slug:       m.Market.Slug,
			Title:      m.Market.DisplayTitle(),
			Similarity: m.Similarity,
			Category:   m.Market.DisplayCategory(),
		})
	}
	return ml, nil
}
