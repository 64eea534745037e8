package domain

import "time"

// MarketSummary is the derived per-wallet, per-market roll-up of the
// transaction log plus the realized PnL once the market finalizes.
type MarketSummary struct {
	WalletAddress      string
	MarketSlug         string
	TotalBuyVolume     float64
	TotalSellVolume    float64
	TotalVolume        float64
	TotalInteractions  int
	NetShares          float64
	FirstInteractionAt time.Time
	LastInteractionAt  time.Time
	PnL                *float64
	IsFinalized        bool
	WinningSideHeld    bool
	UpdatedAt          time.Time
}

// CategorySummary aggregates a wallet's market summaries by market category.
type CategorySummary struct {
	WalletAddress     string
	Category          string
	TotalVolume       float64
	TotalInteractions int
	TotalPnL          float64
	FinalizedMarkets  int
	OpenMarkets       int
	UpdatedAt         time.Time
}
