package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Ranker orders candidate markets for a wallet.
type Ranker interface {
	Recommend(ctx context.Context, wallet string, candidates []domain.Market, limit int) ([]domain.Recommendation, error)
}

// RecommendationConfig bounds recommendation requests.
type RecommendationConfig struct {
	DefaultLimit  int
	MaxLimit      int
	CandidatePool int // open markets considered per request, by volume
}

// RecommendationService picks the candidate pool and hands it to the ranker.
type RecommendationService struct {
	markets domain.MarketStore
	ranker  Ranker
	cfg     RecommendationConfig
	logger  *slog.Logger
}

// NewRecommendationService creates a RecommendationService.
func NewRecommendationService(
	markets domain.MarketStore,
	ranker Ranker,
	cfg RecommendationConfig,
	logger *slog.Logger,
) *RecommendationService {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	return &RecommendationService{
		markets: markets,
		ranker:  ranker,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "recommendation_service")),
	}
}

// Limit clamps a requested result count: non-positive means the default and
// anything above the maximum is cut to it.
func (s *RecommendationService) Limit(requested int) int {
	switch {
	case requested <= 0:
		return s.cfg.DefaultLimit
	case requested > s.cfg.MaxLimit:
		return s.cfg.MaxLimit
	default:
		return requested
	}
}

// Recommend returns up to limit markets for wallet.
func (s *RecommendationService) Recommend(ctx context.Context, wallet string, limit int) ([]domain.Recommendation, error) {
	wallet = domain.NormalizeWallet(wallet)
	if wallet == "" {
		return nil, fmt.Errorf("recommendation_service: empty wallet: %w", domain.ErrInvalidInput)
	}
	limit = s.Limit(limit)

	candidates, err := s.markets.ListOpenByVolume(ctx, s.cfg.CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("recommendation_service: load candidates: %w", err)
	}

	recs, err := s.ranker.Recommend(ctx, wallet, candidates, limit)
	if err != nil {
		return nil, fmt.Errorf("recommendation_service: rank %s: %w", wallet, err)
	}
	s.logger.DebugContext(ctx, "recommendation_service: ranked",
		slog.String("wallet", wallet),
		slog.Int("candidates", len(candidates)),
		slog.Int("returned", len(recs)),
	)
	return recs, nil
}
