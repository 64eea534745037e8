package pnl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Service runs the PnL engine against the stores and persists its results.
type Service struct {
	markets    domain.MarketStore
	txs        domain.TransactionStore
	summaries  domain.MarketSummaryStore
	categories domain.CategorySummaryStore
	logger     *slog.Logger
	now        func() time.Time
}

// NewService creates a PnL Service.
func NewService(
	markets domain.MarketStore,
	txs domain.TransactionStore,
	summaries domain.MarketSummaryStore,
	categories domain.CategorySummaryStore,
	logger *slog.Logger,
) *Service {
	return &Service{
		markets:    markets,
		txs:        txs,
		summaries:  summaries,
		categories: categories,
		logger:     logger.With(slog.String("component", "pnl_service")),
		now:        time.Now,
	}
}

// ComputeMarketPnL computes and records the wallet's realized PnL in one
// market. It returns domain.ErrNotComputable while the market is unresolved
// and domain.ErrNotFound when the wallet never traded it.
func (s *Service) ComputeMarketPnL(ctx context.Context, wallet, marketSlug string) (float64, error) {
	wallet = domain.NormalizeWallet(wallet)

	summary, err := s.summaries.Get(ctx, wallet, marketSlug)
	if err != nil {
		return 0, fmt.Errorf("pnl: summary %s/%s: %w", wallet, marketSlug, err)
	}
	market, err := s.markets.GetBySlug(ctx, marketSlug)
	if err != nil {
		return 0, fmt.Errorf("pnl: market %s: %w", marketSlug, err)
	}
	return s.computeAndStore(ctx, market, summary)
}

func (s *Service) computeAndStore(ctx context.Context, market domain.Market, summary domain.MarketSummary) (float64, error) {
	if !market.IsFinalized() {
		return 0, domain.ErrNotComputable
	}
	txs, err := s.txs.ListByWalletMarket(ctx, summary.WalletAddress, market.Slug)
	if err != nil {
		return 0, fmt.Errorf("pnl: transactions %s/%s: %w", summary.WalletAddress, market.Slug, err)
	}

	res, err := Compute(market, txs, summary)
	if err != nil {
		return 0, err
	}
	if err := s.summaries.SetPnL(ctx, summary.WalletAddress, market.Slug, res.PnL, res.WinningSideHeld); err != nil {
		return 0, fmt.Errorf("pnl: store %s/%s: %w", summary.WalletAddress, market.Slug, err)
	}

	s.logger.DebugContext(ctx, "pnl: market settled",
		slog.String("wallet", summary.WalletAddress),
		slog.String("market", market.Slug),
		slog.String("case", res.Case.String()),
		slog.Float64("pnl", res.PnL),
	)
	return res.PnL, nil
}

// RecomputeWallet recomputes PnL for every market the wallet traded and then
// rebuilds its category summaries from the freshly written rows. Markets that
// are unresolved or unknown are skipped.
func (s *Service) RecomputeWallet(ctx context.Context, wallet string) error {
	wallet = domain.NormalizeWallet(wallet)

	summaries, err := s.summaries.ListByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("pnl: list summaries %s: %w", wallet, err)
	}
	if len(summaries) == 0 {
		return s.categories.Replace(ctx, wallet, nil)
	}

	markets, err := s.loadMarkets(ctx, summaries)
	if err != nil {
		return err
	}

	settled := 0
	for _, sm := range summaries {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, ok := markets[sm.MarketSlug]
		if !ok {
			continue
		}
		if _, err := s.computeAndStore(ctx, m, sm); err != nil {
			if errors.Is(err, domain.ErrNotComputable) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return err
		}
		settled++
	}

	if err := s.rebuildCategories(ctx, wallet, markets); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "pnl: wallet recomputed",
		slog.String("wallet", wallet),
		slog.Int("markets", len(summaries)),
		slog.Int("settled", settled),
	)
	return nil
}

// RefreshCategories rebuilds the wallet's category summaries without
// touching PnL.
func (s *Service) RefreshCategories(ctx context.Context, wallet string) error {
	wallet = domain.NormalizeWallet(wallet)
	summaries, err := s.summaries.ListByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("pnl: list summaries %s: %w", wallet, err)
	}
	markets, err := s.loadMarkets(ctx, summaries)
	if err != nil {
		return err
	}
	return s.rebuildCategories(ctx, wallet, markets)
}

// RebuildSummaries replays the wallet's transaction log into its market
// summaries. Recorded PnL is preserved. It returns the number of summaries
// written.
func (s *Service) RebuildSummaries(ctx context.Context, wallet string) (int, error) {
	wallet = domain.NormalizeWallet(wallet)
	txs, err := s.txs.ListByWallet(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("pnl: transactions %s: %w", wallet, err)
	}
	rows := Summarize(txs)
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.summaries.UpsertActivity(ctx, rows); err != nil {
		return 0, fmt.Errorf("pnl: upsert summaries %s: %w", wallet, err)
	}
	return len(rows), nil
}

func (s *Service) loadMarkets(ctx context.Context, summaries []domain.MarketSummary) (map[string]domain.Market, error) {
	slugs := make([]string, 0, len(summaries))
	for _, sm := range summaries {
		slugs = append(slugs, sm.MarketSlug)
	}
	list, err := s.markets.ListBySlugs(ctx, slugs)
	if err != nil {
		return nil, fmt.Errorf("pnl: load markets: %w", err)
	}
	out := make(map[string]domain.Market, len(list))
	for _, m := range list {
		out[m.Slug] = m
	}
	return out, nil
}

func (s *Service) rebuildCategories(ctx context.Context, wallet string, markets map[string]domain.Market) error {
	summaries, err := s.summaries.ListByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("pnl: reload summaries %s: %w", wallet, err)
	}
	categoryOf := make(map[string]string, len(markets))
	for slug, m := range markets {
		categoryOf[slug] = m.Category
	}
	rows := AggregateCategories(wallet, summaries, categoryOf, s.now().UTC())
	if err := s.categories.Replace(ctx, wallet, rows); err != nil {
		return fmt.Errorf("pnl: replace categories %s: %w", wallet, err)
	}
	return nil
}
