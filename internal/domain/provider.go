package domain

import (
	"context"
	"time"
)

// Page is one page of a paginated provider listing.
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// TradingOrder is a filled order reported by the trading-data provider.
type TradingOrder struct {
	User             string
	MarketSlug       string
	Title            string
	ConditionID      string
	TokenID          string
	Side             TradeSide
	Price            float64
	Shares           float64
	SharesNormalized float64
	TxHash           string
	OrderHash        string
	Timestamp        time.Time
}

// Transaction converts the order into a transaction for wallet.
func (o TradingOrder) Transaction(wallet string) Transaction {
	tx := NewTransaction(wallet, o.MarketSlug, o.Side, o.Price, o.Shares, o.SharesNormalized, o.TokenID, o.Timestamp)
	tx.ConditionID = o.ConditionID
	tx.TxHash = o.TxHash
	tx.OrderHash = o.OrderHash
	return tx
}

// TradingActivity is a non-order wallet event such as a redemption or merge.
type TradingActivity struct {
	User        string
	Kind        string
	MarketSlug  string
	ConditionID string
	Shares      float64
	Price       float64
	TxHash      string
	Timestamp   time.Time
}

// MarketQuery filters the provider's market listing.
type MarketQuery struct {
	Slugs     []string
	MinVolume float64
	Limit     int
	Offset    int
}

// TradingData is the external trading-data provider.
type TradingData interface {
	OrdersForMarket(ctx context.Context, marketSlug string, limit, offset int) (Page[TradingOrder], error)
	OrdersForWallet(ctx context.Context, wallet string, limit, offset int) (Page[TradingOrder], error)
	ActivityForWallet(ctx context.Context, wallet string, limit, offset int) (Page[TradingActivity], error)
	Markets(ctx context.Context, q MarketQuery) (Page[Market], error)
}

// Embedder is the external text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// CollectPages walks a paginated listing from offset zero until the provider
// reports no more pages, a page comes back empty, or max items have been
// collected (max <= 0 means no cap). On error it returns the items gathered
// so far together with the error.
func CollectPages[T any](ctx context.Context, pageSize, max int, fetch func(ctx context.Context, limit, offset int) (Page[T], error)) ([]T, error) {
	if pageSize <= 0 {
		pageSize = 100
	}
	var out []T
	for offset := 0; ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		page, err := fetch(ctx, pageSize, offset)
		if err != nil {
			return out, err
		}
		out = append(out, page.Items...)
		if max > 0 && len(out) >= max {
			return out[:max], nil
		}
		if !page.HasMore || len(page.Items) == 0 {
			return out, nil
		}
	}
}
