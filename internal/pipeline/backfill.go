package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/polyrec/internal/category"
	"github.com/alanyoungcy/polyrec/internal/domain"
)

// BackfillConfig tunes a Backfiller.
type BackfillConfig struct {
	Wallets       []string
	SeedMarkets   []string // wallets trading these markets are backfilled too
	MaxOrders     int      // per wallet
	MaxSeedOrders int      // per seed market during discovery
	PageSize      int
	BatchSize     int // transaction insert batch
}

// Backfiller imports wallet order history from the trading-data provider
// into the market and transaction stores.
type Backfiller struct {
	data    domain.TradingData
	markets domain.MarketStore
	txs     domain.TransactionStore
	cfg     BackfillConfig
	logger  *slog.Logger
}

// NewBackfiller creates a Backfiller.
func NewBackfiller(data domain.TradingData, markets domain.MarketStore, txs domain.TransactionStore, cfg BackfillConfig, logger *slog.Logger) *Backfiller {
	if cfg.MaxOrders <= 0 {
		cfg.MaxOrders = 500
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxSeedOrders <= 0 {
		cfg.MaxSeedOrders = 1000
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Backfiller{
		data:    data,
		markets: markets,
		txs:     txs,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "backfill")),
	}
}

// Run backfills every configured wallet plus the wallets discovered in the
// seed markets. A wallet that fails is logged and counted, and the run moves
// on.
func (b *Backfiller) Run(ctx context.Context) (Stats, error) {
	wallets := b.wallets(ctx)
	arena := newMarketArena(b.data, b.logger)

	var stats Stats
	for _, w := range wallets {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		inserted, err := b.backfillWallet(ctx, arena, w)
		stats.Processed++
		stats.Updated += int(inserted)
		if err != nil {
			stats.Failed++
			b.logger.WarnContext(ctx, "backfill: wallet failed",
				slog.String("wallet", w),
				slog.String("error", err.Error()),
			)
		}
	}
	return stats, nil
}

// wallets merges the configured wallets with the traders found in the seed
// markets, normalized and sorted.
func (b *Backfiller) wallets(ctx context.Context) []string {
	set := make(map[string]struct{})
	for _, w := range b.cfg.Wallets {
		if w = domain.NormalizeWallet(w); w != "" {
			set[w] = struct{}{}
		}
	}
	for _, slug := range b.cfg.SeedMarkets {
		orders, err := domain.CollectPages(ctx, b.cfg.PageSize, b.cfg.MaxSeedOrders,
			func(ctx context.Context, limit, offset int) (domain.Page[domain.TradingOrder], error) {
				return b.data.OrdersForMarket(ctx, slug, limit, offset)
			})
		if err != nil {
			b.logger.WarnContext(ctx, "backfill: seed market discovery failed",
				slog.String("market", slug),
				slog.String("error", err.Error()),
			)
		}
		for _, o := range orders {
			if w := domain.NormalizeWallet(o.User); w != "" {
				set[w] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func (b *Backfiller) backfillWallet(ctx context.Context, arena *marketArena, wallet string) (int64, error) {
	orders, err := domain.CollectPages(ctx, b.cfg.PageSize, b.cfg.MaxOrders,
		func(ctx context.Context, limit, offset int) (domain.Page[domain.TradingOrder], error) {
			return b.data.OrdersForWallet(ctx, wallet, limit, offset)
		})
	if err != nil && len(orders) == 0 {
		return 0, fmt.Errorf("orders: %w", err)
	}
	if err != nil {
		b.logger.WarnContext(ctx, "backfill: order history truncated",
			slog.String("wallet", wallet),
			slog.Int("orders", len(orders)),
			slog.String("error", err.Error()),
		)
	}

	slugs := make([]string, 0, len(orders))
	for _, o := range orders {
		slugs = append(slugs, o.MarketSlug)
	}
	// Redemptions and merges point at markets whose orders may fall outside
	// the order cap.
	activity, err := domain.CollectPages(ctx, b.cfg.PageSize, b.cfg.MaxOrders,
		func(ctx context.Context, limit, offset int) (domain.Page[domain.TradingActivity], error) {
			return b.data.ActivityForWallet(ctx, wallet, limit, offset)
		})
	if err != nil {
		b.logger.DebugContext(ctx, "backfill: activity unavailable",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
	}
	for _, a := range activity {
		slugs = append(slugs, a.MarketSlug)
	}

	arena.resolve(ctx, slugs)
	if err := b.upsertMarkets(ctx, arena, orders, activity); err != nil {
		return 0, err
	}

	txs := make([]domain.Transaction, 0, len(orders))
	for _, o := range orders {
		if o.MarketSlug == "" {
			continue
		}
		txs = append(txs, o.Transaction(wallet))
	}

	var inserted int64
	for start := 0; start < len(txs); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(txs))
		n, err := b.txs.InsertBatch(ctx, txs[start:end])
		inserted += n
		if err != nil {
			return inserted, fmt.Errorf("insert transactions: %w", err)
		}
	}

	b.logger.InfoContext(ctx, "backfill: wallet done",
		slog.String("wallet", wallet),
		slog.Int("orders", len(orders)),
		slog.Int64("inserted", inserted),
	)
	return inserted, nil
}

// upsertMarkets writes the markets referenced by a wallet's history that this
// run has not written yet. Markets the provider does not know are stored
// from the order metadata alone.
func (b *Backfiller) upsertMarkets(ctx context.Context, arena *marketArena, orders []domain.TradingOrder, activity []domain.TradingActivity) error {
	bySlug := make(map[string]domain.Market)
	for _, o := range orders {
		if o.MarketSlug == "" {
			continue
		}
		if _, ok := bySlug[o.MarketSlug]; ok {
			continue
		}
		m, ok := arena.get(o.MarketSlug)
		if !ok {
			m = domain.Market{Slug: o.MarketSlug, Title: o.Title, ConditionID: o.ConditionID, Status: domain.MarketStatusOpen}
		}
		bySlug[o.MarketSlug] = m
	}
	for _, a := range activity {
		if _, ok := bySlug[a.MarketSlug]; ok || a.MarketSlug == "" {
			continue
		}
		if m, ok := arena.get(a.MarketSlug); ok {
			bySlug[a.MarketSlug] = m
		}
	}

	list := make([]domain.Market, 0, len(bySlug))
	for _, m := range bySlug {
		if m.Category == "" {
			m.Category = category.FromTags(m.Tags)
		}
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Slug < list[j].Slug })

	list = arena.unpersisted(list)
	if len(list) == 0 {
		return nil
	}
	if err := b.markets.UpsertBatch(ctx, list); err != nil {
		return fmt.Errorf("upsert markets: %w", err)
	}
	arena.markPersisted(list)
	return nil
}
