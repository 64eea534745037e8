package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/store/memory"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float64
	err     error
	calls   [][]string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

type partnerFixture struct {
	profiles *memory.ProfileStore
	markets  *memory.MarketStore
	embedder *fakeEmbedder
	bg       *Background
	ranker   *PartnerRanker
}

func newPartnerFixture(t *testing.T) *partnerFixture {
	t.Helper()
	f := &partnerFixture{
		profiles: memory.NewProfileStore(),
		markets:  memory.NewMarketStore(),
		embedder: &fakeEmbedder{vectors: map[string][]float64{}},
		bg:       NewBackground(2, time.Second, discard()),
	}
	f.ranker = NewPartnerRanker(f.profiles, f.markets, f.embedder, f.bg, 2, discard())
	t.Cleanup(func() { _ = f.bg.Close(context.Background()) })
	return f
}

func TestRankForPartner_UnknownWallet(t *testing.T) {
	f := newPartnerFixture(t)
	ctx := context.Background()

	_, err := f.ranker.RankForPartner(ctx, "0xnobody", []domain.PartnerCandidate{{Slug: "a"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "wallet missing in our database")

	require.NoError(t, f.profiles.Upsert(ctx, domain.InterestProfile{WalletAddress: "0xempty"}))
	_, err = f.ranker.RankForPartner(ctx, "0xempty", []domain.PartnerCandidate{{Slug: "a"}})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRankForPartner_StoredAndFetchedEmbeddings(t *testing.T) {
	f := newPartnerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.Upsert(ctx, domain.InterestProfile{WalletAddress: "0xabc", Vector: []float64{1, 0}}))
	require.NoError(t, f.markets.SetEmbedding(ctx, "stored", "Stored market", []float64{0, 1}))
	f.embedder.vectors["Fresh market"] = []float64{1, 0}

	candidates := []domain.PartnerCandidate{
		{Slug: "stored", Title: "Stored market", Extra: map[string]any{"odds": 0.4}},
		{Slug: "fresh", Title: "Fresh market"},
	}
	res, err := f.ranker.RankForPartner(ctx, "0xABC", candidates)
	require.NoError(t, err)

	assert.Equal(t, "0xabc", res.WalletAddress)
	assert.Equal(t, 2, res.TotalRanked)
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, "fresh", res.Recommendations[0].Slug)
	assert.Equal(t, 1.0, res.Recommendations[0].RelevanceScore)
	assert.Equal(t, "100%", res.Recommendations[0].MatchPercentage)
	assert.Equal(t, "stored", res.Recommendations[1].Slug)
	assert.Equal(t, "0%", res.Recommendations[1].MatchPercentage)
	assert.Equal(t, map[string]any{"odds": 0.4}, res.Recommendations[1].Extra)

	// only the unknown market is sent to the provider
	require.Len(t, f.embedder.calls, 1)
	assert.Equal(t, []string{"Fresh market"}, f.embedder.calls[0])

	require.NoError(t, f.bg.Drain(ctx))
	cached, err := f.markets.GetBySlug(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, cached.EmbeddingVector())
	assert.Equal(t, "Fresh market", cached.Title)
}

func TestRankForPartner_ProviderFailureUsesNeutralVector(t *testing.T) {
	f := newPartnerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.Upsert(ctx, domain.InterestProfile{WalletAddress: "0xabc", Vector: []float64{1, 0}}))
	require.NoError(t, f.markets.SetEmbedding(ctx, "known", "Known", []float64{1, 1}))
	f.embedder.err = errors.New("quota exceeded")

	res, err := f.ranker.RankForPartner(ctx, "0xabc", []domain.PartnerCandidate{
		{Slug: "unknown", Title: "Unknown"},
		{Slug: "known", Title: "Known"},
	})
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, "known", res.Recommendations[0].Slug)
	assert.Equal(t, 0.707, res.Recommendations[0].RelevanceScore)
	assert.Equal(t, "unknown", res.Recommendations[1].Slug)
	assert.Zero(t, res.Recommendations[1].RelevanceScore)

	require.NoError(t, f.bg.Drain(ctx))
	_, err = f.markets.GetBySlug(ctx, "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRankForPartner_WrongDimensionIsNotCached(t *testing.T) {
	f := newPartnerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.Upsert(ctx, domain.InterestProfile{WalletAddress: "0xabc", Vector: []float64{1, 0}}))
	f.embedder.vectors["odd"] = []float64{1, 0, 0}

	res, err := f.ranker.RankForPartner(ctx, "0xabc", []domain.PartnerCandidate{{Slug: "odd"}})
	require.NoError(t, err)
	require.Len(t, res.Recommendations, 1)
	assert.Zero(t, res.Recommendations[0].RelevanceScore)

	require.NoError(t, f.bg.Drain(ctx))
	_, err = f.markets.GetBySlug(ctx, "odd")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRankForPartner_TiesKeepInputOrder(t *testing.T) {
	f := newPartnerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.profiles.Upsert(ctx, domain.InterestProfile{WalletAddress: "0xabc", Vector: []float64{1, 0}}))
	for _, slug := range []string{"c", "a", "b"} {
		require.NoError(t, f.markets.SetEmbedding(ctx, slug, slug, []float64{0, 1}))
	}

	res, err := f.ranker.RankForPartner(ctx, "0xabc", []domain.PartnerCandidate{{Slug: "c"}, {Slug: "a"}, {Slug: "b"}})
	require.NoError(t, err)
	got := make([]string, 0, 3)
	for _, r := range res.Recommendations {
		got = append(got, r.Slug)
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
	assert.Empty(t, f.embedder.calls)
}
