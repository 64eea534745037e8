package pnl

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/store/memory"
)

type fixture struct {
	svc        *Service
	markets    *memory.MarketStore
	txs        *memory.TransactionStore
	summaries  *memory.MarketSummaryStore
	categories *memory.CategorySummaryStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		markets:    memory.NewMarketStore(),
		txs:        memory.NewTransactionStore(),
		summaries:  memory.NewMarketSummaryStore(),
		categories: memory.NewCategorySummaryStore(),
	}
	f.svc = NewService(f.markets, f.txs, f.summaries, f.categories, slog.New(slog.DiscardHandler))
	return f
}

func (f fixture) record(t *testing.T, txs ...domain.Transaction) {
	t.Helper()
	for i := range txs {
		txs[i].TxHash = txs[i].MarketSlug + "-" + string(rune('a'+i))
	}
	_, err := f.txs.InsertBatch(context.Background(), txs)
	require.NoError(t, err)
}

func TestService_ComputeMarketPnL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ts := time.Unix(1700000000, 0)

	require.NoError(t, f.markets.Upsert(ctx, domain.Market{
		Slug: "rate-cut", Category: "Economics", Status: domain.MarketStatusClosed,
		WinningSide: domain.SideA, SideAID: "yes", SideBID: "no",
	}))
	f.record(t, domain.NewTransaction("0xW", "rate-cut", domain.SideBuy, 0.4, 10, 10, "yes", ts))

	n, err := f.svc.RebuildSummaries(ctx, "0xw")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pnl, err := f.svc.ComputeMarketPnL(ctx, "0xW", "rate-cut")
	require.NoError(t, err)
	assert.InDelta(t, 6.0, pnl, 1e-9)

	sm, err := f.summaries.Get(ctx, "0xw", "rate-cut")
	require.NoError(t, err)
	require.NotNil(t, sm.PnL)
	assert.InDelta(t, 6.0, *sm.PnL, 1e-9)
	assert.True(t, sm.IsFinalized)
	assert.True(t, sm.WinningSideHeld)

	// A summary rebuild keeps the recorded PnL.
	_, err = f.svc.RebuildSummaries(ctx, "0xw")
	require.NoError(t, err)
	sm, err = f.summaries.Get(ctx, "0xw", "rate-cut")
	require.NoError(t, err)
	require.NotNil(t, sm.PnL)
	assert.True(t, sm.IsFinalized)
}

func TestService_ComputeMarketPnL_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ts := time.Unix(1700000000, 0)

	require.NoError(t, f.markets.Upsert(ctx, domain.Market{Slug: "open", Status: domain.MarketStatusOpen}))
	f.record(t, domain.NewTransaction("0xw", "open", domain.SideBuy, 0.5, 2, 2, "yes", ts))
	_, err := f.svc.RebuildSummaries(ctx, "0xw")
	require.NoError(t, err)

	_, err = f.svc.ComputeMarketPnL(ctx, "0xw", "open")
	assert.ErrorIs(t, err, domain.ErrNotComputable)

	_, err = f.svc.ComputeMarketPnL(ctx, "0xw", "never-traded")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_RecomputeWallet(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ts := time.Unix(1700000000, 0)

	require.NoError(t, f.markets.UpsertBatch(ctx, []domain.Market{
		{Slug: "election", Category: "Politics", Status: domain.MarketStatusClosed, WinningSide: domain.SideB, SideAID: "e-a", SideBID: "e-b"},
		{Slug: "btc", Category: "Crypto", Status: domain.MarketStatusOpen, SideAID: "b-a", SideBID: "b-b"},
		{Slug: "derby", Status: domain.MarketStatusClosed, WinningSide: domain.SideA, SideAID: "d-a", SideBID: "d-b"},
	}))
	f.record(t,
		domain.NewTransaction("0xw", "election", domain.SideBuy, 0.5, 10, 10, "e-a", ts),
		domain.NewTransaction("0xw", "btc", domain.SideBuy, 0.3, 10, 10, "b-a", ts),
		domain.NewTransaction("0xw", "derby", domain.SideBuy, 0.2, 5, 5, "d-a", ts),
		domain.NewTransaction("0xw", "derby", domain.SideSell, 0.6, 5, 5, "d-a", ts.Add(time.Hour)),
	)
	_, err := f.svc.RebuildSummaries(ctx, "0xw")
	require.NoError(t, err)

	// A stale category left over from an earlier run must disappear.
	require.NoError(t, f.categories.Replace(ctx, "0xw", []domain.CategorySummary{{Category: "Sports", TotalVolume: 99}}))

	require.NoError(t, f.svc.RecomputeWallet(ctx, "0xW"))

	rows, err := f.categories.ListByWallet(ctx, "0xw")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	byCat := map[string]domain.CategorySummary{}
	var volume float64
	for _, r := range rows {
		byCat[r.Category] = r
		volume += r.TotalVolume
	}
	assert.NotContains(t, byCat, "Sports")

	assert.InDelta(t, -5.0, byCat["Politics"].TotalPnL, 1e-9)
	assert.Equal(t, 1, byCat["Politics"].FinalizedMarkets)

	assert.Equal(t, 0, byCat["Crypto"].FinalizedMarkets)
	assert.Equal(t, 1, byCat["Crypto"].OpenMarkets)

	unc := byCat[domain.UncategorizedCategory]
	assert.InDelta(t, 2.0, unc.TotalPnL, 1e-9)
	assert.Equal(t, 2, unc.TotalInteractions)

	summaries, err := f.summaries.ListByWallet(ctx, "0xw")
	require.NoError(t, err)
	var summaryVolume float64
	for _, sm := range summaries {
		summaryVolume += sm.TotalVolume
	}
	assert.InDelta(t, summaryVolume, volume, 1e-9)
}
