// Package recommend ranks markets for a wallet against its interest vector,
// falling back to popularity when the wallet has no usable profile.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

const (
	reasonPopular    = "Popular market with high volume"
	reasonBookmarked = "Bookmarked market"
)

func aiReason(score float64) string {
	return fmt.Sprintf("AI Match: %d%% semantic alignment with your trading history", percent(score))
}

func percent(score float64) int {
	return int(math.Round(score * 100))
}

// ProfileSource looks up stored interest profiles.
type ProfileSource interface {
	Get(ctx context.Context, wallet string) (domain.InterestProfile, error)
}

// Ranker produces wallet recommendations.
type Ranker struct {
	profiles ProfileSource
	logger   *slog.Logger
}

// NewRanker creates a Ranker.
func NewRanker(profiles ProfileSource, logger *slog.Logger) *Ranker {
	return &Ranker{
		profiles: profiles,
		logger:   logger.With(slog.String("component", "ranker")),
	}
}

// Recommend ranks candidates for wallet. When the wallet has an interest
// profile, candidates with an embedding are ordered by cosine similarity to
// it; candidates without one are left out. With no profile, or when the
// similarity ranking fails or comes back empty, the open candidates are
// ordered by volume instead. limit <= 0 returns every ranked market.
func (r *Ranker) Recommend(ctx context.Context, wallet string, candidates []domain.Market, limit int) ([]domain.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wallet = domain.NormalizeWallet(wallet)

	profile, err := r.profiles.Get(ctx, wallet)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return Popular(candidates, limit), nil
	case err != nil:
		r.logger.WarnContext(ctx, "ranker: profile lookup failed, using popularity",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return Popular(candidates, limit), nil
	case len(profile.Vector) == 0:
		return Popular(candidates, limit), nil
	}

	recs, err := r.bySimilarity(ctx, wallet, profile.Vector, candidates, limit)
	if err != nil {
		r.logger.WarnContext(ctx, "ranker: similarity ranking failed, using popularity",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return Popular(candidates, limit), nil
	}
	if len(recs) == 0 {
		return Popular(candidates, limit), nil
	}
	return recs, nil
}

// bySimilarity ranks the embedded candidates against query. Candidates whose
// embedding length differs from the profile are skipped.
func (r *Ranker) bySimilarity(ctx context.Context, wallet string, query []float64, candidates []domain.Market, limit int) ([]domain.Recommendation, error) {
	byID := make(map[string]domain.Market, len(candidates))
	vecs := make([]vector.Candidate, 0, len(candidates))
	mismatched := 0
	for _, m := range candidates {
		v := m.EmbeddingVector()
		if len(v) == 0 {
			continue
		}
		if len(v) != len(query) {
			mismatched++
			continue
		}
		if _, dup := byID[m.Slug]; dup {
			continue
		}
		byID[m.Slug] = m
		vecs = append(vecs, vector.Candidate{ID: m.Slug, Vector: v})
	}

	if mismatched > 0 {
		r.logger.WarnContext(ctx, "ranker: skipped candidates with mismatched embedding length",
			slog.String("wallet", wallet),
			slog.Int("skipped", mismatched),
			slog.Int("dimensions", len(query)),
		)
	}

	ranked, err := vector.Rank(query, vecs)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]domain.Recommendation, 0, len(ranked))
	for _, s := range ranked {
		rec := toRecommendation(byID[s.ID], domain.SourceAIMatch, aiReason(s.Score))
		rec.MatchScore = vector.Round(s.Score, 3)
		rec.MatchPercent = percent(s.Score)
		out = append(out, rec)
	}
	return out, nil
}

// Popular returns open candidates by descending total volume, at most limit
// of them. Equal volumes keep their input order.
func Popular(candidates []domain.Market, limit int) []domain.Recommendation {
	open := make([]domain.Market, 0, len(candidates))
	for _, m := range candidates {
		if m.Status == domain.MarketStatusOpen {
			open = append(open, m)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].VolumeTotal > open[j].VolumeTotal
	})
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}

	out := make([]domain.Recommendation, 0, len(open))
	for _, m := range open {
		out = append(out, toRecommendation(m, domain.SourcePopular, reasonPopular))
	}
	return out
}

// Bookmarked presents markets the user explicitly asked for.
func Bookmarked(markets []domain.Market) []domain.Recommendation {
	out := make([]domain.Recommendation, 0, len(markets))
	for _, m := range markets {
		out = append(out, toRecommendation(m, domain.SourceBookmarked, reasonBookmarked))
	}
	return out
}

func toRecommendation(m domain.Market, source domain.RecommendationSource, reason string) domain.Recommendation {
	return domain.Recommendation{
		MarketSlug:  m.Slug,
		Title:       m.DisplayTitle(),
		Category:    m.DisplayCategory(),
		VolumeTotal: m.VolumeTotal,
		Status:      m.Status,
		Reason:      reason,
		Source:      source,
		ImageURL:    m.ImageURL,
		EndTime:     m.EndTime,
	}
}
