package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// MarketSummaryStore implements domain.MarketSummaryStore using PostgreSQL.
type MarketSummaryStore struct {
	pool *pgxpool.Pool
}

// NewMarketSummaryStore creates a new MarketSummaryStore backed by the given
// pool.
func NewMarketSummaryStore(pool *pgxpool.Pool) *MarketSummaryStore {
	return &MarketSummaryStore{pool: pool}
}

var _ domain.MarketSummaryStore = (*MarketSummaryStore)(nil)

const summaryCols = `wallet_address, market_slug, total_buy_volume, total_sell_volume,
	total_volume, total_interactions, net_shares, first_interaction_at,
	last_interaction_at, pnl, is_finalized, winning_side_held, updated_at`

func scanSummary(row pgx.Row) (domain.MarketSummary, error) {
	var sm domain.MarketSummary
	var first, last *time.Time
	err := row.Scan(
		&sm.WalletAddress, &sm.MarketSlug, &sm.TotalBuyVolume, &sm.TotalSellVolume,
		&sm.TotalVolume, &sm.TotalInteractions, &sm.NetShares, &first,
		&last, &sm.PnL, &sm.IsFinalized, &sm.WinningSideHeld, &sm.UpdatedAt,
	)
	if err != nil {
		return domain.MarketSummary{}, err
	}
	if first != nil {
		sm.FirstInteractionAt = first.UTC()
	}
	if last != nil {
		sm.LastInteractionAt = last.UTC()
	}
	return sm, nil
}

// Get returns one summary or domain.ErrNotFound.
func (s *MarketSummaryStore) Get(ctx context.Context, wallet, marketSlug string) (domain.MarketSummary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+summaryCols+` FROM wallet_market_summary WHERE wallet_address = $1 AND market_slug = $2`,
		domain.NormalizeWallet(wallet), marketSlug)
	sm, err := scanSummary(row)
	if err != nil {
		if notFound(err) {
			return domain.MarketSummary{}, domain.ErrNotFound
		}
		return domain.MarketSummary{}, fmt.Errorf("postgres: get summary %s/%s: %w", wallet, marketSlug, err)
	}
	return sm, nil
}

// ListByWallet returns the wallet's summaries ordered by market slug.
func (s *MarketSummaryStore) ListByWallet(ctx context.Context, wallet string) ([]domain.MarketSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+summaryCols+` FROM wallet_market_summary WHERE wallet_address = $1 ORDER BY market_slug ASC`,
		domain.NormalizeWallet(wallet))
	if err != nil {
		return nil, fmt.Errorf("postgres: list summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.MarketSummary, 0)
	for rows.Next() {
		sm, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan summary: %w", err)
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list summaries rows: %w", err)
	}
	return out, nil
}

// UpsertActivity writes the activity columns in one batch. pnl,
// is_finalized and winning_side_held are left as they are on conflict.
func (s *MarketSummaryStore) UpsertActivity(ctx context.Context, summaries []domain.MarketSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	const query = `
		INSERT INTO wallet_market_summary (
			wallet_address, market_slug, total_buy_volume, total_sell_volume,
			total_volume, total_interactions, net_shares, first_interaction_at,
			last_interaction_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (wallet_address, market_slug) DO UPDATE SET
			total_buy_volume     = EXCLUDED.total_buy_volume,
			total_sell_volume    = EXCLUDED.total_sell_volume,
			total_volume         = EXCLUDED.total_volume,
			total_interactions   = EXCLUDED.total_interactions,
			net_shares           = EXCLUDED.net_shares,
			first_interaction_at = EXCLUDED.first_interaction_at,
			last_interaction_at  = EXCLUDED.last_interaction_at,
			updated_at           = NOW()`

	batch := &pgx.Batch{}
	for _, sm := range summaries {
		batch.Queue(query,
			domain.NormalizeWallet(sm.WalletAddress), sm.MarketSlug, sm.TotalBuyVolume, sm.TotalSellVolume,
			sm.TotalVolume, sm.TotalInteractions, sm.NetShares, nullTime(sm.FirstInteractionAt),
			nullTime(sm.LastInteractionAt),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range summaries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert summary batch item %d: %w", i, err)
		}
	}
	return nil
}

// SetPnL records a realized PnL and marks the summary finalized.
func (s *MarketSummaryStore) SetPnL(ctx context.Context, wallet, marketSlug string, pnl float64, winningSideHeld bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE wallet_market_summary
		SET pnl = $3, is_finalized = TRUE, winning_side_held = $4, updated_at = NOW()
		WHERE wallet_address = $1 AND market_slug = $2`,
		domain.NormalizeWallet(wallet), marketSlug, pnl, winningSideHeld)
	if err != nil {
		return fmt.Errorf("postgres: set pnl %s/%s: %w", wallet, marketSlug, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListWallets returns distinct wallets with summaries in ascending order.
func (s *MarketSummaryStore) ListWallets(ctx context.Context, opts domain.ListOpts) ([]string, error) {
	return listWallets(ctx, s.pool, "wallet_market_summary", opts)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
