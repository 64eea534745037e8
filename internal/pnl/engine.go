// Package pnl computes realized profit and loss for a wallet's positions in
// finalized markets and rolls market summaries up into category summaries.
package pnl

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Case identifies which settlement rule produced a PnL.
type Case int

const (
	// CaseHeldWinner: the wallet still held winning shares at resolution.
	CaseHeldWinner Case = iota + 1
	// CaseClosedOut: the wallet had fully exited before resolution.
	CaseClosedOut
	// CaseLosing: the wallet held losing shares or a mixed, non-winning
	// position. Those shares settle worthless.
	CaseLosing
)

func (c Case) String() string {
	switch c {
	case CaseHeldWinner:
		return "held_winner"
	case CaseClosedOut:
		return "closed_out"
	case CaseLosing:
		return "losing"
	default:
		return "unknown"
	}
}

// Result is the realized PnL of one wallet in one market.
type Result struct {
	PnL              float64
	NetWinningShares float64
	NetLosingShares  float64
	WinningSideHeld  bool
	Case             Case
}

// settlement value of one winning share in USD
var payout = decimal.NewFromInt(1)

func dec(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Compute derives the realized PnL of a wallet's transactions in market. The
// buy and sell volumes come from the wallet's summary for that market. It
// returns domain.ErrNotComputable when the market is not finalized or the
// wallet has no transactions in it.
func Compute(market domain.Market, txs []domain.Transaction, summary domain.MarketSummary) (Result, error) {
	if !market.IsFinalized() {
		return Result{}, domain.ErrNotComputable
	}
	if len(txs) == 0 {
		return Result{}, domain.ErrNotComputable
	}

	winningToken := market.WinningTokenID()
	netWin := decimal.Zero
	netLose := decimal.Zero
	for _, tx := range txs {
		shares := dec(tx.SharesNormalized)
		if tx.Side == domain.SideSell {
			shares = shares.Neg()
		}
		if tx.TokenID == winningToken {
			netWin = netWin.Add(shares)
		} else {
			netLose = netLose.Add(shares)
		}
	}

	buy := dec(summary.TotalBuyVolume)
	sell := dec(summary.TotalSellVolume)
	netShares := dec(summary.NetShares)

	var (
		pnl  decimal.Decimal
		kind Case
	)
	switch {
	case netWin.IsPositive():
		pnl = netWin.Mul(payout).Sub(buy).Add(sell)
		kind = CaseHeldWinner
	case netWin.IsZero() && netShares.IsZero():
		pnl = sell.Sub(buy)
		kind = CaseClosedOut
	default:
		pnl = sell.Sub(buy)
		kind = CaseLosing
	}

	return Result{
		PnL:              pnl.InexactFloat64(),
		NetWinningShares: netWin.InexactFloat64(),
		NetLosingShares:  netLose.InexactFloat64(),
		WinningSideHeld:  netWin.IsPositive(),
		Case:             kind,
	}, nil
}
