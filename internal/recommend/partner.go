package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

// MarketEmbeddings reads stored market embeddings and caches new ones.
type MarketEmbeddings interface {
	ListBySlugs(ctx context.Context, slugs []string) ([]domain.Market, error)
	SetEmbedding(ctx context.Context, slug, title string, embedding []float64) error
}

// PartnerRanker ranks an arbitrary partner-supplied market list against one
// wallet, embedding unknown markets on the fly.
type PartnerRanker struct {
	profiles ProfileSource
	markets  MarketEmbeddings
	embedder domain.Embedder
	bg       *Background
	dim      int
	logger   *slog.Logger
}

// NewPartnerRanker creates a PartnerRanker for vectors of dimension dim.
func NewPartnerRanker(profiles ProfileSource, markets MarketEmbeddings, embedder domain.Embedder, bg *Background, dim int, logger *slog.Logger) *PartnerRanker {
	return &PartnerRanker{
		profiles: profiles,
		markets:  markets,
		embedder: embedder,
		bg:       bg,
		dim:      dim,
		logger:   logger.With(slog.String("component", "partner_ranker")),
	}
}

// RankForPartner scores every candidate against the wallet's interest vector.
// A wallet without a profile is an error wrapping domain.ErrNotFound.
// Candidates without a stored embedding are embedded synchronously; each new
// vector is written back to the market store in the background. A candidate
// whose embedding cannot be obtained is scored against a zero vector so it
// still appears in the result.
func (p *PartnerRanker) RankForPartner(ctx context.Context, wallet string, candidates []domain.PartnerCandidate) (*domain.PartnerRanking, error) {
	wallet = domain.NormalizeWallet(wallet)

	profile, err := p.profiles.Get(ctx, wallet)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("recommend: wallet missing in our database: %s: %w", wallet, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("recommend: load profile %s: %w", wallet, err)
	}
	if len(profile.Vector) == 0 {
		return nil, fmt.Errorf("recommend: wallet missing in our database: %s: %w", wallet, domain.ErrNotFound)
	}

	vectors, err := p.resolve(ctx, candidates)
	if err != nil {
		return nil, err
	}

	scored := make([]vector.Candidate, len(candidates))
	for i, c := range candidates {
		scored[i] = vector.Candidate{ID: c.Slug, Vector: vectors[i]}
	}
	ranked, err := vector.Rank(profile.Vector, scored)
	if err != nil {
		return nil, fmt.Errorf("recommend: rank for %s: %w", wallet, err)
	}

	out := make([]domain.RankedMarket, 0, len(ranked))
	for _, s := range ranked {
		c := candidates[s.Index]
		out = append(out, domain.RankedMarket{
			Slug:            c.Slug,
			Title:           c.Title,
			Extra:           c.Extra,
			RelevanceScore:  vector.Round(s.Score, 3),
			MatchPercentage: fmt.Sprintf("%d%%", percent(s.Score)),
		})
	}

	return &domain.PartnerRanking{
		WalletAddress:   wallet,
		TotalRanked:     len(out),
		Recommendations: out,
	}, nil
}

// resolve returns one vector per candidate, in candidate order.
func (p *PartnerRanker) resolve(ctx context.Context, candidates []domain.PartnerCandidate) ([][]float64, error) {
	slugs := make([]string, 0, len(candidates))
	for _, c := range candidates {
		slugs = append(slugs, c.Slug)
	}
	stored, err := p.markets.ListBySlugs(ctx, slugs)
	if err != nil {
		return nil, fmt.Errorf("recommend: load embeddings: %w", err)
	}
	known := make(map[string][]float64, len(stored))
	for _, m := range stored {
		if v := m.EmbeddingVector(); len(v) == p.dim {
			known[m.Slug] = v
		}
	}

	out := make([][]float64, len(candidates))
	var missing []int
	for i, c := range candidates {
		if v, ok := known[c.Slug]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	p.logger.InfoContext(ctx, "partner: embedding missing markets", slog.Int("count", len(missing)))

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = candidates[i].Title
		if texts[j] == "" {
			texts[j] = candidates[i].Slug
		}
	}
	fetched, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		p.logger.WarnContext(ctx, "partner: embedding provider failed, using neutral vectors",
			slog.Int("count", len(missing)),
			slog.String("error", err.Error()),
		)
		fetched = nil
	}

	for j, i := range missing {
		var v []float64
		if j < len(fetched) {
			v = fetched[j]
		}
		if len(v) != p.dim {
			out[i] = vector.Zero(p.dim)
			continue
		}
		out[i] = v
		p.cache(candidates[i], v)
	}
	return out, nil
}

func (p *PartnerRanker) cache(c domain.PartnerCandidate, v []float64) {
	slug, title := c.Slug, c.Title
	emb := append([]float64(nil), v...)
	p.bg.Go("cache-embedding:"+slug, func(ctx context.Context) error {
		if err := p.markets.SetEmbedding(ctx, slug, title, emb); err != nil {
			return fmt.Errorf("cache market %s: %w", slug, err)
		}
		return nil
	})
}
