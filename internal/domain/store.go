package domain

import "context"

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// EmbeddingFilter narrows market listings by embedding presence.
type EmbeddingFilter int

const (
	EmbeddingAny EmbeddingFilter = iota
	EmbeddingPresent
	EmbeddingMissing
)

// MarketFilter selects markets for batch jobs.
type MarketFilter struct {
	Status    MarketStatus // empty matches every status
	Embedding EmbeddingFilter
	Limit     int
	Offset    int
}

// MarketStore persists market metadata and embeddings.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetBySlug(ctx context.Context, slug string) (Market, error)
	ListBySlugs(ctx context.Context, slugs []string) ([]Market, error)
	// ListOpenByVolume returns open markets ordered by descending total volume.
	ListOpenByVolume(ctx context.Context, limit int) ([]Market, error)
	List(ctx context.Context, filter MarketFilter) ([]Market, error)
	// SetEmbedding stores an embedding, creating a bare market row when the
	// slug is unknown.
	SetEmbedding(ctx context.Context, slug, title string, embedding []float64) error
	SetCategory(ctx context.Context, slug, category string) error
	SetClusters(ctx context.Context, assignments []ClusterAssignment) error
	// MatchMarkets returns markets whose embedding scores above threshold
	// against query, best first, at most count of them.
	MatchMarkets(ctx context.Context, query []float64, threshold float64, count int) ([]MarketMatch, error)
}

// TransactionStore persists the append-only transaction log.
type TransactionStore interface {
	// InsertBatch inserts transactions, ignoring ones already recorded, and
	// returns how many rows were new.
	InsertBatch(ctx context.Context, txs []Transaction) (int64, error)
	ListByWallet(ctx context.Context, wallet string) ([]Transaction, error)
	ListByWalletMarket(ctx context.Context, wallet, marketSlug string) ([]Transaction, error)
	ListWallets(ctx context.Context, opts ListOpts) ([]string, error)
}

// MarketSummaryStore persists per wallet-market summaries.
type MarketSummaryStore interface {
	Get(ctx context.Context, wallet, marketSlug string) (MarketSummary, error)
	ListByWallet(ctx context.Context, wallet string) ([]MarketSummary, error)
	// UpsertActivity writes volume and interaction columns, leaving any PnL
	// already recorded for the pair untouched.
	UpsertActivity(ctx context.Context, summaries []MarketSummary) error
	// SetPnL records a realized PnL and marks the summary finalized.
	SetPnL(ctx context.Context, wallet, marketSlug string, pnl float64, winningSideHeld bool) error
	ListWallets(ctx context.Context, opts ListOpts) ([]string, error)
}

// CategorySummaryStore persists per wallet-category summaries.
type CategorySummaryStore interface {
	ListByWallet(ctx context.Context, wallet string) ([]CategorySummary, error)
	// Replace upserts rows keyed by (wallet, category) and deletes the
	// wallet's rows for any category not present in rows.
	Replace(ctx context.Context, wallet string, rows []CategorySummary) error
}

// ProfileStore persists wallet interest profiles.
type ProfileStore interface {
	Get(ctx context.Context, wallet string) (InterestProfile, error)
	Upsert(ctx context.Context, profile InterestProfile) error
}
