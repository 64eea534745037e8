package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// CategorySummaryStore implements domain.CategorySummaryStore using
// PostgreSQL.
type CategorySummaryStore struct {
	pool *pgxpool.Pool
}

// NewCategorySummaryStore creates a new CategorySummaryStore backed by the
// given pool.
func NewCategorySummaryStore(pool *pgxpool.Pool) *CategorySummaryStore {
	return &CategorySummaryStore{pool: pool}
}

var _ domain.CategorySummaryStore = (*CategorySummaryStore)(nil)

// ListByWallet returns the wallet's categories ordered by name.
func (s *CategorySummaryStore) ListByWallet(ctx context.Context, wallet string) ([]domain.CategorySummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT wallet_address, category, total_volume, total_interactions, total_pnl,
		       finalized_markets, open_markets, updated_at
		FROM wallet_category_summary
		WHERE wallet_address = $1
		ORDER BY category ASC`, domain.NormalizeWallet(wallet))
	if err != nil {
		return nil, fmt.Errorf("postgres: list category summaries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.CategorySummary, 0)
	for rows.Next() {
		var c domain.CategorySummary
		if err := rows.Scan(
			&c.WalletAddress, &c.Category, &c.TotalVolume, &c.TotalInteractions, &c.TotalPnL,
			&c.FinalizedMarkets, &c.OpenMarkets, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan category summary: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list category summaries rows: %w", err)
	}
	return out, nil
}

// Replace upserts rows and deletes the wallet's other categories inside one
// transaction.
func (s *CategorySummaryStore) Replace(ctx context.Context, wallet string, rows []domain.CategorySummary) error {
	wallet = domain.NormalizeWallet(wallet)
	categories := make([]string, 0, len(rows))
	for _, r := range rows {
		categories = append(categories, r.Category)
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM wallet_category_summary WHERE wallet_address = $1 AND NOT (category = ANY($2))`,
			wallet, categories,
		); err != nil {
			return fmt.Errorf("postgres: prune categories for %s: %w", wallet, err)
		}

		for _, r := range rows {
			if _, err := tx.Exec(ctx, `
				INSERT INTO wallet_category_summary (
					wallet_address, category, total_volume, total_interactions, total_pnl,
					finalized_markets, open_markets, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				ON CONFLICT (wallet_address, category) DO UPDATE SET
					total_volume       = EXCLUDED.total_volume,
					total_interactions = EXCLUDED.total_interactions,
					total_pnl          = EXCLUDED.total_pnl,
					finalized_markets  = EXCLUDED.finalized_markets,
					open_markets       = EXCLUDED.open_markets,
					updated_at         = NOW()`,
				wallet, r.Category, r.TotalVolume, r.TotalInteractions, r.TotalPnL,
				r.FinalizedMarkets, r.OpenMarkets,
			); err != nil {
				return fmt.Errorf("postgres: upsert category %s/%s: %w", wallet, r.Category, err)
			}
		}
		return nil
	})
}
