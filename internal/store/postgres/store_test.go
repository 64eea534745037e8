package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/polyrec/internal/domain"
	"github.com/alanyoungcy/polyrec/internal/vector"
)

// setupTestDB starts a PostgreSQL container and applies the embedded
// migrations.
func setupTestDB(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("polyrec"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.NoError(t, client.RunMigrations(ctx))
	// A second run must be a no-op.
	require.NoError(t, client.RunMigrations(ctx))
	return client
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/polyrec?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "polyrec", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestStores(t *testing.T) {
	client := setupTestDB(t)
	ctx := context.Background()
	pool := client.Pool()

	t.Run("market upsert keeps closed status and embedding", func(t *testing.T) {
		markets := NewMarketStore(pool)
		require.NoError(t, markets.UpsertBatch(ctx, []domain.Market{
			{Slug: "m1", Title: "Bitcoin above 100k", Status: domain.MarketStatusClosed, WinningSide: domain.SideA, VolumeTotal: 10},
			{Slug: "m2", Title: "Election", Status: domain.MarketStatusOpen, VolumeTotal: 50},
		}))
		require.NoError(t, markets.SetEmbedding(ctx, "m1", "", []float64{1, 0}))

		// A later refresh reporting the market open without a winner.
		require.NoError(t, markets.Upsert(ctx, domain.Market{Slug: "m1", Status: domain.MarketStatusOpen, VolumeTotal: 20}))

		got, err := markets.GetBySlug(ctx, "m1")
		require.NoError(t, err)
		assert.Equal(t, "Bitcoin above 100k", got.Title)
		assert.Equal(t, domain.MarketStatusClosed, got.Status)
		assert.Equal(t, domain.SideA, got.WinningSide)
		assert.Equal(t, 20.0, got.VolumeTotal)
		assert.Equal(t, []float64{1, 0}, got.EmbeddingVector())

		_, err = markets.GetBySlug(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		open, err := markets.ListOpenByVolume(ctx, 10)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "m2", open[0].Slug)

		bySlug, err := markets.ListBySlugs(ctx, []string{"m2", "nope", "m1"})
		require.NoError(t, err)
		require.Len(t, bySlug, 2)
		assert.Equal(t, "m2", bySlug[0].Slug)
		assert.Equal(t, "m1", bySlug[1].Slug)

		missing, err := markets.List(ctx, domain.MarketFilter{Embedding: domain.EmbeddingMissing})
		require.NoError(t, err)
		require.Len(t, missing, 1)
		assert.Equal(t, "m2", missing[0].Slug)

		assert.ErrorIs(t, markets.SetCategory(ctx, "missing", "Crypto"), domain.ErrNotFound)
		require.NoError(t, markets.SetCategory(ctx, "m1", "Crypto"))

		require.NoError(t, markets.SetEmbedding(ctx, "m3", "Fresh market", []float64{0.6, 0.8}))
		matches, err := markets.MatchMarkets(ctx, []float64{1, 0}, 0.1, 5)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "m1", matches[0].Market.Slug)
		assert.Equal(t, "Crypto", matches[0].Market.Category)
		assert.Equal(t, "m3", matches[1].Market.Slug)
		assert.Equal(t, "Fresh market", matches[1].Market.Title)
		assert.InDelta(t, 0.6, matches[1].Similarity, 1e-9)

		require.NoError(t, markets.SetClusters(ctx, []domain.ClusterAssignment{{MarketSlug: "m1", Cluster: 3, Label: "BITCOIN"}}))
		got, err = markets.GetBySlug(ctx, "m1")
		require.NoError(t, err)
		require.NotNil(t, got.Cluster)
		assert.Equal(t, 3, *got.Cluster)
	})

	t.Run("transactions dedupe on natural key", func(t *testing.T) {
		txs := NewTransactionStore(pool)
		ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		tx := domain.NewTransaction("0xABC", "m1", domain.SideBuy, 0.5, 10, 10, "tok-a", ts)
		tx.TxHash, tx.OrderHash = "0xh1", "0xo1"

		n, err := txs.InsertBatch(ctx, []domain.Transaction{tx, tx})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = txs.InsertBatch(ctx, []domain.Transaction{tx})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		got, err := txs.ListByWalletMarket(ctx, "0xabc", "m1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "0xabc", got[0].WalletAddress)
		assert.Equal(t, 5.0, got[0].VolumeUSD)
		assert.True(t, ts.Equal(got[0].Timestamp))

		wallets, err := txs.ListWallets(ctx, domain.ListOpts{})
		require.NoError(t, err)
		assert.Equal(t, []string{"0xabc"}, wallets)
	})

	t.Run("summary activity upsert keeps pnl", func(t *testing.T) {
		summaries := NewMarketSummaryStore(pool)
		sm := domain.MarketSummary{WalletAddress: "0xabc", MarketSlug: "m1", TotalVolume: 5, TotalInteractions: 1}
		require.NoError(t, summaries.UpsertActivity(ctx, []domain.MarketSummary{sm}))
		require.NoError(t, summaries.SetPnL(ctx, "0xabc", "m1", 4.5, true))

		sm.TotalVolume = 7
		sm.TotalInteractions = 2
		require.NoError(t, summaries.UpsertActivity(ctx, []domain.MarketSummary{sm}))

		got, err := summaries.Get(ctx, "0xabc", "m1")
		require.NoError(t, err)
		assert.Equal(t, 7.0, got.TotalVolume)
		require.NotNil(t, got.PnL)
		assert.Equal(t, 4.5, *got.PnL)
		assert.True(t, got.IsFinalized)
		assert.True(t, got.WinningSideHeld)
		assert.True(t, got.FirstInteractionAt.IsZero())

		assert.ErrorIs(t, summaries.SetPnL(ctx, "0xabc", "other", 1, false), domain.ErrNotFound)
	})

	t.Run("category replace prunes absent categories", func(t *testing.T) {
		cats := NewCategorySummaryStore(pool)
		require.NoError(t, cats.Replace(ctx, "0xabc", []domain.CategorySummary{
			{Category: "Crypto", TotalVolume: 5},
			{Category: "Politics", TotalVolume: 2},
		}))
		require.NoError(t, cats.Replace(ctx, "0xabc", []domain.CategorySummary{
			{Category: "Crypto", TotalVolume: 9, FinalizedMarkets: 1},
		}))

		got, err := cats.ListByWallet(ctx, "0xabc")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Crypto", got[0].Category)
		assert.Equal(t, 9.0, got[0].TotalVolume)

		require.NoError(t, cats.Replace(ctx, "0xabc", nil))
		got, err = cats.ListByWallet(ctx, "0xabc")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("profile round trip", func(t *testing.T) {
		profiles := NewProfileStore(pool)
		_, err := profiles.Get(ctx, "0xabc")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, profiles.Upsert(ctx, domain.InterestProfile{WalletAddress: "0xABC", Vector: []float64{0.25, -0.5}}))
		got, err := profiles.Get(ctx, "0xabc")
		require.NoError(t, err)
		assert.Equal(t, []float64{0.25, -0.5}, got.Vector)
		assert.False(t, got.LastUpdated.IsZero())
		assert.Equal(t, vector.Format(got.Vector), "[0.25,-0.5]")
	})

	t.Run("job runs newest first", func(t *testing.T) {
		runs := NewJobRunStore(pool)
		base := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, runs.Record(ctx, domain.JobRun{RunID: "r1", Job: "summaries", Processed: 3, StartedAt: base, Elapsed: 1500 * time.Millisecond}))
		require.NoError(t, runs.Record(ctx, domain.JobRun{RunID: "r1", Job: "pnl", Error: "boom", StartedAt: base.Add(time.Second)}))

		all, err := runs.ListRecent(ctx, "", domain.ListOpts{Limit: 10})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "pnl", all[0].Job)
		assert.False(t, all[0].Succeeded())

		only, err := runs.ListRecent(ctx, "summaries", domain.ListOpts{})
		require.NoError(t, err)
		require.Len(t, only, 1)
		assert.Equal(t, 3, only[0].Processed)
		assert.Equal(t, 1500*time.Millisecond, only[0].Elapsed)
	})
}
