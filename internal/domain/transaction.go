package domain

import (
	"strings"
	"time"
)

// TradeSide is the direction of a transaction.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// ParseTradeSide normalizes a side string. Anything other than SELL is BUY.
func ParseTradeSide(s string) TradeSide {
	if strings.EqualFold(strings.TrimSpace(s), string(SideSell)) {
		return SideSell
	}
	return SideBuy
}

// NormalizeWallet lower-cases and trims a wallet address. Wallet addresses are
// case-insensitive keys everywhere.
func NormalizeWallet(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Transaction is one recorded fill for a wallet in a market. Transactions are
// append-only and never mutated.
type Transaction struct {
	WalletAddress    string
	MarketSlug       string
	Side             TradeSide
	Price            float64
	Shares           float64
	SharesNormalized float64
	VolumeUSD        float64
	TokenID          string
	ConditionID      string
	TxHash           string
	OrderHash        string
	Timestamp        time.Time
}

// NewTransaction builds a Transaction with a normalized wallet and the USD
// volume computed as price times normalized shares.
func NewTransaction(wallet, marketSlug string, side TradeSide, price, shares, sharesNormalized float64, tokenID string, ts time.Time) Transaction {
	return Transaction{
		WalletAddress:    NormalizeWallet(wallet),
		MarketSlug:       marketSlug,
		Side:             side,
		Price:            price,
		Shares:           shares,
		SharesNormalized: sharesNormalized,
		VolumeUSD:        price * sharesNormalized,
		TokenID:          tokenID,
		Timestamp:        ts.UTC(),
	}
}

// SignedShares returns normalized shares, negated for sells.
func (t Transaction) SignedShares() float64 {
	if t.Side == SideSell {
		return -t.SharesNormalized
	}
	return t.SharesNormalized
}
