package pipeline

import (
	"context"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrec/internal/cluster"
	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/pnl"
	"github.com/alanyoungcy/polyrec/internal/profile"
	"github.com/alanyoungcy/polyrec/internal/store/memory"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func order(user, slug, title, hash string, side domain.TradeSide, price, shares float64) domain.TradingOrder {
	return domain.TradingOrder{
		User:             user,
		MarketSlug:       slug,
		Title:            title,
		TokenID:          slug + "-a",
		Side:             side,
		Price:            price,
		Shares:           shares,
		SharesNormalized: shares,
		TxHash:           hash,
		OrderHash:        hash,
		Timestamp:        t0,
	}
}

func TestBackfiller(t *testing.T) {
	ctx := context.Background()
	data := newFakeTradingData()
	data.walletOrders["0xaaa"] = []domain.TradingOrder{
		order("0xAAA", "m1", "Bitcoin above 100k", "h1", domain.SideBuy, 0.4, 10),
		order("0xAAA", "m1", "Bitcoin above 100k", "h2", domain.SideSell, 0.6, 5),
		order("0xAAA", "m2", "Unlisted market", "h3", domain.SideBuy, 0.5, 2),
	}
	data.walletOrders["0xbbb"] = []domain.TradingOrder{
		order("0xBBB", "m1", "Bitcoin above 100k", "h4", domain.SideBuy, 0.3, 1),
	}
	data.marketOrders["m1"] = data.walletOrders["0xbbb"]
	data.activity["0xaaa"] = []domain.TradingActivity{{Kind: "REDEEM", MarketSlug: "m3"}}
	data.markets["m1"] = domain.Market{Slug: "m1", Title: "Bitcoin above 100k", Tags: []string{"Bitcoin"}, Status: domain.MarketStatusOpen, VolumeTotal: 100}
	data.markets["m3"] = domain.Market{Slug: "m3", Title: "Old redeemed market", Status: domain.MarketStatusClosed, WinningSide: domain.SideA}

	markets := memory.NewMarketStore()
	txs := memory.NewTransactionStore()
	b := NewBackfiller(data, markets, txs, BackfillConfig{
		Wallets:     []string{"0xAAA"},
		SeedMarkets: []string{"m1"},
		BatchSize:   2,
	}, discard())

	stats, err := b.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 4, stats.Updated)
	assert.Equal(t, 0, stats.Failed)
	// m1, m2 and m3 resolve in one lookup; m2 is remembered as unknown.
	assert.Equal(t, 1, data.marketCalls)

	m1, err := markets.GetBySlug(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Crypto", m1.Category)
	assert.Equal(t, 100.0, m1.VolumeTotal)

	m2, err := markets.GetBySlug(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "Unlisted market", m2.Title)
	assert.Equal(t, domain.UncategorizedCategory, m2.Category)

	m3, err := markets.GetBySlug(ctx, "m3")
	require.NoError(t, err)
	assert.True(t, m3.IsFinalized())

	got, err := txs.ListByWalletMarket(ctx, "0xaaa", "m1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 4.0, got[0].VolumeUSD, 1e-9)

	// A second run finds nothing new.
	stats, err = b.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Updated)
}

func TestBackfiller_WalletFailureIsCounted(t *testing.T) {
	data := newFakeTradingData()
	data.failWallets["0xbad"] = true
	data.walletOrders["0xok"] = []domain.TradingOrder{order("0xok", "m1", "T", "h1", domain.SideBuy, 1, 1)}

	b := NewBackfiller(data, memory.NewMarketStore(), memory.NewTransactionStore(),
		BackfillConfig{Wallets: []string{"0xbad", "0xok"}}, discard())
	stats, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Updated)
}

func TestMarketRefresher(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	require.NoError(t, markets.UpsertBatch(ctx, []domain.Market{
		{Slug: "m1", Title: "Bitcoin", Category: "Crypto", Status: domain.MarketStatusOpen, Embedding: vector.FromValues([]float64{1, 0})},
		{Slug: "m2", Title: "Gone", Status: domain.MarketStatusOpen},
		{Slug: "m3", Title: "Done", Status: domain.MarketStatusClosed, WinningSide: domain.SideB},
	}))

	data := newFakeTradingData()
	data.markets["m1"] = domain.Market{
		Slug: "m1", Status: domain.MarketStatusClosed, WinningSide: domain.SideA,
		VolumeTotal: 500, SideAID: "tok-a", SideBID: "tok-b",
	}

	stats, err := NewMarketRefresher(data, markets, nil, discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 2, Updated: 1, Skipped: 1}, stats)

	m1, err := markets.GetBySlug(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, m1.IsFinalized())
	assert.Equal(t, "tok-a", m1.WinningTokenID())
	assert.Equal(t, "Bitcoin", m1.Title)
	assert.Equal(t, "Crypto", m1.Category)
	assert.Equal(t, []float64{1, 0}, m1.EmbeddingVector())
}

func TestMarketRefresher_ProviderDown(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	require.NoError(t, markets.Upsert(ctx, domain.Market{Slug: "m1", Status: domain.MarketStatusOpen}))
	data := newFakeTradingData()
	data.marketsErr = domain.ErrUpstreamUnavailable

	stats, err := NewMarketRefresher(data, markets, nil, discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
}

// pnlFixture wires the summary and PnL jobs to real services over memory
// stores.
type pnlFixture struct {
	markets    *memory.MarketStore
	txs        *memory.TransactionStore
	summaries  *memory.MarketSummaryStore
	categories *memory.CategorySummaryStore
	svc        *pnl.Service
}

func newPnlFixture(t *testing.T) *pnlFixture {
	t.Helper()
	f := &pnlFixture{
		markets:    memory.NewMarketStore(),
		txs:        memory.NewTransactionStore(),
		summaries:  memory.NewMarketSummaryStore(),
		categories: memory.NewCategorySummaryStore(),
	}
	f.svc = pnl.NewService(f.markets, f.txs, f.summaries, f.categories, discard())

	ctx := context.Background()
	require.NoError(t, f.markets.UpsertBatch(ctx, []domain.Market{
		{Slug: "m1", Title: "Bitcoin", Category: "Crypto", Status: domain.MarketStatusClosed, WinningSide: domain.SideA, SideAID: "tok-a", SideBID: "tok-b"},
		{Slug: "m2", Title: "Election", Category: "Politics", Status: domain.MarketStatusOpen},
	}))
	buy := domain.NewTransaction("0xaaa", "m1", domain.SideBuy, 0.4, 10, 10, "tok-a", t0)
	buy.TxHash = "h1"
	open := domain.NewTransaction("0xaaa", "m2", domain.SideBuy, 0.5, 4, 4, "tok-x", t0)
	open.TxHash = "h2"
	other := domain.NewTransaction("0xbbb", "m1", domain.SideBuy, 0.6, 5, 5, "tok-b", t0)
	other.TxHash = "h3"
	_, err := f.txs.InsertBatch(ctx, []domain.Transaction{buy, open, other})
	require.NoError(t, err)
	return f
}

func TestSummaryAndPnlJobs(t *testing.T) {
	ctx := context.Background()
	f := newPnlFixture(t)

	stats, err := NewSummaryJob(f.txs, f.svc, 2, 1, discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 2, Updated: 3}, stats)

	stats, err = NewPnlJob(f.txs, f.svc, 2, 1, discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 2, Updated: 2}, stats)

	winner, err := f.summaries.Get(ctx, "0xaaa", "m1")
	require.NoError(t, err)
	require.NotNil(t, winner.PnL)
	assert.InDelta(t, 6.0, *winner.PnL, 1e-9)
	assert.True(t, winner.WinningSideHeld)

	loser, err := f.summaries.Get(ctx, "0xbbb", "m1")
	require.NoError(t, err)
	require.NotNil(t, loser.PnL)
	assert.InDelta(t, -3.0, *loser.PnL, 1e-9)

	cats, err := f.categories.ListByWallet(ctx, "0xaaa")
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Crypto", cats[0].Category)
	assert.Equal(t, 1, cats[0].FinalizedMarkets)
	assert.Equal(t, "Politics", cats[1].Category)
	assert.Equal(t, 1, cats[1].OpenMarkets)
}

func TestCategoryJob(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	require.NoError(t, markets.UpsertBatch(ctx, []domain.Market{
		{Slug: "a", Title: "Will Bitcoin hit 100k?"},
		{Slug: "b", Title: "Random question", Tags: []string{"Weather"}},
		{Slug: "c", Title: "Something odd"},
		{Slug: "d", Title: "Ethereum flips", Category: "Crypto"},
	}))

	stats, err := NewCategoryJob(markets, nil, discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 4, Updated: 3, Skipped: 1}, stats)

	want := map[string]string{"a": "Crypto", "b": "Weather", "c": "Miscellaneous", "d": "Crypto"}
	for slug, cat := range want {
		m, err := markets.GetBySlug(ctx, slug)
		require.NoError(t, err)
		assert.Equal(t, cat, m.Category, slug)
	}
}

func TestEmbeddingJob(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	require.NoError(t, markets.UpsertBatch(ctx, []domain.Market{
		{Slug: "a", Title: "Alpha"},
		{Slug: "b", Title: "Beta"},
		{Slug: "c", Title: "Gamma"},
		{Slug: "d", Title: "Done", Embedding: vector.FromValues([]float64{1, 1})},
	}))
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"Alpha": {1, 0},
		"Beta":  {0, 1, 0},
		"Gamma": {0, 1},
	}}

	stats, err := NewEmbeddingJob(markets, emb, 2, 2, discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 3, Updated: 2, Skipped: 1}, stats)
	assert.Equal(t, 2, emb.calls)

	missing, err := markets.List(ctx, domain.MarketFilter{Embedding: domain.EmbeddingMissing})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "b", missing[0].Slug)
}

func TestEmbeddingJob_ProviderFailure(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	require.NoError(t, markets.Upsert(ctx, domain.Market{Slug: "a", Title: "Alpha"}))
	emb := &fakeEmbedder{err: domain.ErrUpstreamUnavailable}

	stats, err := NewEmbeddingJob(markets, emb, 2, 5, discard()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 1, Failed: 1}, stats)
}

func TestProfileJob(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	summaries := memory.NewMarketSummaryStore()
	profiles := memory.NewProfileStore()
	require.NoError(t, markets.UpsertBatch(ctx, []domain.Market{
		{Slug: "m1", Embedding: vector.FromValues([]float64{1, 0})},
		{Slug: "m2"},
	}))
	summaries.Put(domain.MarketSummary{WalletAddress: "0xaaa", MarketSlug: "m1", TotalVolume: 10})
	summaries.Put(domain.MarketSummary{WalletAddress: "0xbbb", MarketSlug: "m2", TotalVolume: 10})

	gen := profile.NewService(summaries, markets, profiles, profile.NewBuilder(2), discard())
	archive := &recordingArchiver{}
	job := NewProfileJob(summaries, gen, archive, 2, 1, discard())
	job.newRunID = func() string { return "run-42" }

	stats, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 2, Updated: 1, Skipped: 1}, stats)

	assert.Equal(t, "run-42", archive.runID)
	require.Len(t, archive.profiles, 1)
	assert.Equal(t, "0xaaa", archive.profiles[0].WalletAddress)

	stored, err := profiles.Get(ctx, "0xaaa")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, stored.Vector)
}

func TestProfileJob_ArchiveFailureDoesNotFailRun(t *testing.T) {
	summaries := memory.NewMarketSummaryStore()
	gen := profile.NewService(summaries, memory.NewMarketStore(), memory.NewProfileStore(), profile.NewBuilder(2), discard())
	job := NewProfileJob(summaries, gen, &recordingArchiver{err: errBoom}, 1, 10, discard())

	_, err := job.Run(context.Background())
	assert.NoError(t, err)
}

func TestClusterJob(t *testing.T) {
	ctx := context.Background()
	markets := memory.NewMarketStore()
	require.NoError(t, markets.UpsertBatch(ctx, []domain.Market{
		{Slug: "btc1", Title: "Bitcoin above 100k", Embedding: vector.FromValues([]float64{1, 0.05})},
		{Slug: "btc2", Title: "Bitcoin above 120k", Embedding: vector.FromValues([]float64{0.95, 0.1})},
		{Slug: "ele1", Title: "Election winner", Embedding: vector.FromValues([]float64{0.05, 1})},
		{Slug: "ele2", Title: "Election turnout", Embedding: vector.FromValues([]float64{0.1, 0.9})},
		{Slug: "odd", Title: "Wrong size", Embedding: vector.FromValues([]float64{1, 0, 0})},
	}))

	job := NewClusterJob(markets, cluster.Options{K: 2, Iterations: 10, Seed: 7}, 2, discard())
	stats, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Processed: 4, Updated: 4, Skipped: 1}, stats)

	clusterOf := func(slug string) int {
		m, err := markets.GetBySlug(ctx, slug)
		require.NoError(t, err)
		require.NotNil(t, m.Cluster, slug)
		return *m.Cluster
	}
	assert.Equal(t, clusterOf("btc1"), clusterOf("btc2"))
	assert.Equal(t, clusterOf("ele1"), clusterOf("ele2"))
	assert.NotEqual(t, clusterOf("btc1"), clusterOf("ele1"))

	odd, err := markets.GetBySlug(ctx, "odd")
	require.NoError(t, err)
	assert.Nil(t, odd.Cluster)
}

func TestClusterJob_NothingEmbedded(t *testing.T) {
	stats, err := NewClusterJob(memory.NewMarketStore(), cluster.Options{K: 2}, 2, discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestAllWallets_Pages(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}
	calls := 0
	list := func(_ context.Context, opts domain.ListOpts) ([]string, error) {
		calls++
		return page(all, opts.Limit, opts.Offset).Items, nil
	}
	got, err := allWallets(context.Background(), list, 2)
	require.NoError(t, err)
	assert.Equal(t, all, got)
	assert.Equal(t, 3, calls)
}

func TestForEachWallet_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	var seen []string
	done := make(chan string, 10)
	wallets := []string{"a", "b", "c", "d", "e", "f"}

	err := forEachWallet(context.Background(), 2, wallets, func(_ context.Context, w string) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		done <- w
	})
	require.NoError(t, err)
	close(done)
	for w := range done {
		seen = append(seen, w)
	}
	sort.Strings(seen)
	assert.Equal(t, wallets, seen)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
