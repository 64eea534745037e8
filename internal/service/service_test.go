package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/recommend"
	"github.com/alanyoungcy/polyrec/internal/store/memory"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

type fakeCache struct {
	mu          sync.Mutex
	data        map[string]domain.Market
	sets        int
	invalidated []string
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string]domain.Market)} }

func (c *fakeCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.data[m.Slug] = m
	return nil
}

func (c *fakeCache) Get(_ context.Context, slug string) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.data[slug]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *fakeCache) Invalidate(_ context.Context, slug string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, slug)
	c.invalidated = append(c.invalidated, slug)
	return nil
}

func seedMarkets(t *testing.T, store *memory.MarketStore, markets ...domain.Market) {
	t.Helper()
	require.NoError(t, store.UpsertBatch(context.Background(), markets))
}

func TestMarketService_GetMarket(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMarketStore()
	seedMarkets(t, store, domain.Market{Slug: "btc", Title: "Bitcoin up?", VolumeTotal: 10})
	cache := newFakeCache()
	svc := NewMarketService(store, cache, discard())

	m, err := svc.GetMarket(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin up?", m.Title)
	assert.Equal(t, 1, cache.sets)

	// Served from cache: the store change is not visible until invalidated.
	seedMarkets(t, store, domain.Market{Slug: "btc", Title: "Bitcoin down?"})
	m, err = svc.GetMarket(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin up?", m.Title)
	assert.Equal(t, 1, cache.sets)

	_, err = svc.GetMarket(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetMarket(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMarketService_NoCache(t *testing.T) {
	store := memory.NewMarketStore()
	seedMarkets(t, store, domain.Market{Slug: "btc", Title: "Bitcoin up?"})
	svc := NewMarketService(store, nil, discard())

	m, err := svc.GetMarket(context.Background(), "btc")
	require.NoError(t, err)
	assert.Equal(t, "btc", m.Slug)
	require.NoError(t, svc.SyncMarkets(context.Background(), []domain.Market{{Slug: "eth"}}))
}

func TestMarketService_SyncMarketsInvalidates(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMarketStore()
	cache := newFakeCache()
	svc := NewMarketService(store, cache, discard())

	seedMarkets(t, store, domain.Market{Slug: "btc", Title: "Bitcoin up?"})
	_, err := svc.GetMarket(ctx, "btc")
	require.NoError(t, err)

	require.NoError(t, svc.SyncMarkets(ctx, []domain.Market{
		{Slug: "btc", Status: domain.MarketStatusClosed, WinningSide: domain.SideA},
	}))
	assert.Equal(t, []string{"btc"}, cache.invalidated)

	m, err := svc.GetMarket(ctx, "btc")
	require.NoError(t, err)
	assert.True(t, m.IsFinalized())
	assert.Equal(t, "Bitcoin up?", m.Title)
}

func TestMarketService_BySlugs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMarketStore()
	seedMarkets(t, store,
		domain.Market{Slug: "a", Title: "A", Category: "Crypto"},
		domain.Market{Slug: "b", Title: "B"},
	)
	svc := NewMarketService(store, nil, discard())

	recs, err := svc.BySlugs(ctx, []string{"b", " a ", "", "b", "zzz"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].MarketSlug)
	assert.Equal(t, "a", recs[1].MarketSlug)
	assert.Equal(t, domain.SourceBookmarked, recs[0].Source)
	assert.Equal(t, "Bookmarked market", recs[0].Reason)
	assert.Equal(t, domain.UncategorizedCategory, recs[0].Category)

	recs, err = svc.BySlugs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NotNil(t, recs)

	tooMany := make([]string, MaxSlugLookup+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("m-%d", i)
	}
	_, err = svc.BySlugs(ctx, tooMany)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRecommendationService_Limit(t *testing.T) {
	svc := NewRecommendationService(memory.NewMarketStore(), nil,
		RecommendationConfig{DefaultLimit: 10, MaxLimit: 50}, discard())

	tests := []struct {
		name      string
		requested int
		want      int
	}{
		{"zero uses default", 0, 10},
		{"negative uses default", -3, 10},
		{"within bounds", 25, 25},
		{"capped", 500, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.Limit(tt.requested))
		})
	}
}

func TestRecommendationService_Recommend(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	seedMarkets(t, markets,
		domain.Market{Slug: "big", Title: "Big", VolumeTotal: 900, Status: domain.MarketStatusOpen, Embedding: vector.FromValues([]float64{0, 1})},
		domain.Market{Slug: "mid", Title: "Mid", VolumeTotal: 500, Status: domain.MarketStatusOpen, Embedding: vector.FromValues([]float64{1, 0})},
		domain.Market{Slug: "small", Title: "Small", VolumeTotal: 100, Status: domain.MarketStatusOpen},
		domain.Market{Slug: "done", Title: "Done", VolumeTotal: 5000, Status: domain.MarketStatusClosed},
	)
	profiles := memory.NewProfileStore()
	require.NoError(t, profiles.Upsert(ctx, domain.InterestProfile{
		WalletAddress: "0xfan",
		Vector:        []float64{1, 0},
		LastUpdated:   time.Now(),
	}))

	svc := NewRecommendationService(markets, recommend.NewRanker(profiles, discard()),
		RecommendationConfig{DefaultLimit: 10, MaxLimit: 50, CandidatePool: 100}, discard())

	t.Run("profile ranks by similarity", func(t *testing.T) {
		recs, err := svc.Recommend(ctx, "0xFAN", 0)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "mid", recs[0].MarketSlug)
		assert.Equal(t, domain.SourceAIMatch, recs[0].Source)
		assert.Equal(t, 100, recs[0].MatchPercent)
		assert.Equal(t, "big", recs[1].MarketSlug)
	})

	t.Run("no profile falls back to popular", func(t *testing.T) {
		recs, err := svc.Recommend(ctx, "0xnew", 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "big", recs[0].MarketSlug)
		assert.Equal(t, "mid", recs[1].MarketSlug)
		assert.Equal(t, domain.SourcePopular, recs[0].Source)
	})

	t.Run("empty wallet", func(t *testing.T) {
		_, err := svc.Recommend(ctx, " ", 5)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestWalletProfileService_UnknownWallet(t *testing.T) {
	svc := NewWalletProfileService(memory.NewCategorySummaryStore(), memory.NewProfileStore(),
		memory.NewMarketStore(), WalletProfileConfig{MatchThreshold: 0.1, TopMatches: 5}, discard())

	p, err := svc.Get(context.Background(), "0xNOBODY")
	require.NoError(t, err)
	assert.Equal(t, "0xnobody", p.Wallet)
	assert.NotNil(t, p.Categories)
	assert.Empty(t, p.Categories)
	assert.Zero(t, p.TotalInteractions)
	assert.Zero(t, p.TotalVolume)
	assert.Zero(t, p.TotalPnL)
	assert.Nil(t, p.MLProfile)
}

func TestWalletProfileService_Get(t *testing.T) {
	ctx := context.Background()
	categories := memory.NewCategorySummaryStore()
	require.NoError(t, categories.Replace(ctx, "0xabc", []domain.CategorySummary{
		{Category: "Crypto", TotalVolume: 120, TotalInteractions: 4, TotalPnL: 30, FinalizedMarkets: 1},
		{Category: "Politics", TotalVolume: 80, TotalInteractions: 2, OpenMarkets: 1},
	}))

	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	profiles := memory.NewProfileStore()
	require.NoError(t, profiles.Upsert(ctx, domain.InterestProfile{
		WalletAddress: "0xabc",
		Vector:        []float64{1, 0},
		LastUpdated:   updated,
	}))

	markets := memory.NewMarketStore()
	seedMarkets(t, markets,
		domain.Market{Slug: "btc", Title: "Bitcoin above 100k", Category: "Crypto", Embedding: vector.FromValues([]float64{1, 0})},
		domain.Market{Slug: "eth", Title: "Ether above 5k", Embedding: vector.FromValues([]float64{0.8, 0.6})},
		domain.Market{Slug: "rain", Title: "Rain in London", Embedding: vector.FromValues([]float64{0, 1})},
	)

	svc := NewWalletProfileService(categories, profiles, markets,
		WalletProfileConfig{MatchThreshold: 0.1, TopMatches: 5}, discard())

	p, err := svc.Get(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, 6, p.TotalInteractions)
	assert.InDelta(t, 200, p.TotalVolume, 1e-9)
	assert.InDelta(t, 30, p.TotalPnL, 1e-9)

	require.Contains(t, p.Categories, "Crypto")
	require.NotNil(t, p.Categories["Crypto"].PnL)
	assert.InDelta(t, 30, *p.Categories["Crypto"].PnL, 1e-9)
	assert.Nil(t, p.Categories["Politics"].PnL)

	require.NotNil(t, p.MLProfile)
	assert.Equal(t, []float64{1, 0}, p.MLProfile.InterestVector)
	assert.True(t, updated.Equal(p.MLProfile.LastUpdated))
	require.Len(t, p.MLProfile.TopSemanticMarkets, 2)
	assert.Equal(t, "Bitcoin above 100k", p.MLProfile.TopSemanticMarkets[0].Title)
	assert.Equal(t, "Crypto", p.MLProfile.TopSemanticMarkets[0].Category)
	assert.InDelta(t, 1, p.MLProfile.TopSemanticMarkets[0].Similarity, 1e-9)
	assert.Equal(t, "Ether above 5k", p.MLProfile.TopSemanticMarkets[1].Title)
	assert.Equal(t, domain.UncategorizedCategory, p.MLProfile.TopSemanticMarkets[1].Category)
}
