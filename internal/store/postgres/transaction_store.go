package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore creates a new TransactionStore backed by the given pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

var _ domain.TransactionStore = (*TransactionStore)(nil)

// InsertBatch inserts transactions in a single batch. Rows that collide with
// an already recorded (wallet, tx hash, order hash, token) are ignored.
func (s *TransactionStore) InsertBatch(ctx context.Context, txs []domain.Transaction) (int64, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO wallet_transactions (
			wallet_address, market_slug, side, price, shares, shares_normalized,
			volume_usd, token_id, condition_id, tx_hash, order_hash, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (wallet_address, tx_hash, order_hash, token_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(query,
			domain.NormalizeWallet(tx.WalletAddress), tx.MarketSlug, string(tx.Side),
			tx.Price, tx.Shares, tx.SharesNormalized, tx.VolumeUSD,
			tx.TokenID, tx.ConditionID, tx.TxHash, tx.OrderHash, tx.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range txs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert transaction batch item %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

const txCols = `wallet_address, market_slug, side, price, shares, shares_normalized,
	volume_usd, token_id, condition_id, tx_hash, order_hash, ts`

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var tx domain.Transaction
	var side string
	err := row.Scan(
		&tx.WalletAddress, &tx.MarketSlug, &side, &tx.Price, &tx.Shares, &tx.SharesNormalized,
		&tx.VolumeUSD, &tx.TokenID, &tx.ConditionID, &tx.TxHash, &tx.OrderHash, &tx.Timestamp,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Side = domain.ParseTradeSide(side)
	tx.Timestamp = tx.Timestamp.UTC()
	return tx, nil
}

func (s *TransactionStore) list(ctx context.Context, op, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", op, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

// ListByWallet returns the wallet's transactions oldest first.
func (s *TransactionStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Transaction, error) {
	return s.list(ctx, "list transactions by wallet",
		`SELECT `+txCols+` FROM wallet_transactions WHERE wallet_address = $1 ORDER BY ts ASC, id ASC`,
		domain.NormalizeWallet(wallet))
}

// ListByWalletMarket returns the wallet's transactions in one market, oldest
// first.
func (s *TransactionStore) ListByWalletMarket(ctx context.Context, wallet, marketSlug string) ([]domain.Transaction, error) {
	return s.list(ctx, "list transactions by wallet market",
		`SELECT `+txCols+` FROM wallet_transactions
		 WHERE wallet_address = $1 AND market_slug = $2 ORDER BY ts ASC, id ASC`,
		domain.NormalizeWallet(wallet), marketSlug)
}

// ListWallets returns distinct wallets with transactions in ascending order.
func (s *TransactionStore) ListWallets(ctx context.Context, opts domain.ListOpts) ([]string, error) {
	return listWallets(ctx, s.pool, "wallet_transactions", opts)
}

// listWallets pages through the distinct wallet addresses of table.
func listWallets(ctx context.Context, pool *pgxpool.Pool, table string, opts domain.ListOpts) ([]string, error) {
	query := `SELECT DISTINCT wallet_address FROM ` + table + ` ORDER BY wallet_address ASC`
	args := []any{}
	argIdx := 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets from %s: %w", table, err)
	}
	defer rows.Close()

	wallets := make([]string, 0)
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("postgres: scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list wallets rows: %w", err)
	}
	return wallets, nil
}
