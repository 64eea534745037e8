package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// SummaryRebuilder replays one wallet's transaction log into its market
// summaries and returns how many it wrote.
type SummaryRebuilder interface {
	RebuildSummaries(ctx context.Context, wallet string) (int, error)
}

// SummaryJob rebuilds the market summaries of every wallet with transactions.
type SummaryJob struct {
	txs      domain.TransactionStore
	rebuild  SummaryRebuilder
	workers  int
	pageSize int
	logger   *slog.Logger
}

// NewSummaryJob creates a SummaryJob.
func NewSummaryJob(txs domain.TransactionStore, rebuild SummaryRebuilder, workers, pageSize int, logger *slog.Logger) *SummaryJob {
	return &SummaryJob{
		txs:      txs,
		rebuild:  rebuild,
		workers:  workers,
		pageSize: pageSize,
		logger:   logger.With(slog.String("component", "summary_job")),
	}
}

// Run rebuilds summaries wallet by wallet. Updated counts summary rows
// written.
func (j *SummaryJob) Run(ctx context.Context) (Stats, error) {
	wallets, err := allWallets(ctx, j.txs.ListWallets, j.pageSize)
	if err != nil {
		return Stats{}, fmt.Errorf("pipeline: list wallets: %w", err)
	}

	var c counter
	err = forEachWallet(ctx, j.workers, wallets, func(ctx context.Context, wallet string) {
		n, err := j.rebuild.RebuildSummaries(ctx, wallet)
		c.add(func(s *Stats) {
			s.Processed++
			s.Updated += n
			if err != nil {
				s.Failed++
			}
		})
		if err != nil {
			j.logger.WarnContext(ctx, "summaries: wallet failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
		}
	})
	return c.snapshot(), err
}
