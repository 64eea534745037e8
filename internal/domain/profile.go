package domain

import "time"

// InterestProfile is a wallet's volume-weighted centroid of the embeddings of
// the markets it traded.
type InterestProfile struct {
	WalletAddress string    `json:"wallet_address"`
	Vector        []float64 `json:"interest_vector"`
	LastUpdated   time.Time `json:"last_updated"`
}

// CategoryStats is the per-category block of a WalletProfile.
type CategoryStats struct {
	Volume       float64  `json:"volume"`
	Interactions int      `json:"interactions"`
	PnL          *float64 `json:"pnl"`
}

// SemanticMarket is a market close to a wallet's interest vector.
type SemanticMarket struct {
	Slug       string  `json:"market_slug"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
	Category   string  `json:"category"`
}

// MLProfile is the embedding-derived part of a WalletProfile.
type MLProfile struct {
	InterestVector     []float64        `json:"interest_vector"`
	LastUpdated        time.Time        `json:"last_updated"`
	TopSemanticMarkets []SemanticMarket `json:"topSemanticMarkets"`
}

// WalletProfile is the aggregate served for a wallet.
type WalletProfile struct {
	Wallet            string                   `json:"wallet"`
	Categories        map[string]CategoryStats `json:"categories"`
	TotalInteractions int                      `json:"totalInteractions"`
	TotalVolume       float64                  `json:"totalVolume"`
	TotalPnL          float64                  `json:"totalPnL"`
	MLProfile         *MLProfile               `json:"mlProfile,omitempty"`
}
