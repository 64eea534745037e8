package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// WalletRecomputer recomputes a wallet's PnL and then its category summaries.
type WalletRecomputer interface {
	RecomputeWallet(ctx context.Context, wallet string) error
}

// PnlJob recomputes PnL and categories for every wallet with transactions,
// several wallets at a time.
type PnlJob struct {
	txs       domain.TransactionStore
	recompute WalletRecomputer
	workers   int
	pageSize  int
	logger    *slog.Logger
}

// NewPnlJob creates a PnlJob running at most workers wallets concurrently.
func NewPnlJob(txs domain.TransactionStore, recompute WalletRecomputer, workers, pageSize int, logger *slog.Logger) *PnlJob {
	return &PnlJob{
		txs:       txs,
		recompute: recompute,
		workers:   workers,
		pageSize:  pageSize,
		logger:    logger.With(slog.String("component", "pnl_job")),
	}
}

// Run recomputes every wallet. Failures are logged and counted per wallet.
func (j *PnlJob) Run(ctx context.Context) (Stats, error) {
	wallets, err := allWallets(ctx, j.txs.ListWallets, j.pageSize)
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: list wallets: %w", err)
	}

	var c counter
	err = forEachWallet(ctx, j.workers, wallets, func(ctx context.Context, wallet string) {
		err := j.recompute.RecomputeWallet(ctx, wallet)
		c.add(func(s *Stats) {
			s.Processed++
			if err != nil {
				s.Failed++
			} else {
				s.Updated++
			}
		})
		if err != nil {
			j.logger.WarnContext(ctx, "pnl: wallet failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		}
	})
	return c.snapshot(), err
}
