package pnl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

const (
	tokenYes = "tok-yes"
	tokenNo  = "tok-no"
)

func finalized(winning string) domain.Market {
	return domain.Market{
		Slug:        "m",
		Status:      domain.MarketStatusClosed,
		WinningSide: winning,
		SideAID:     tokenYes,
		SideBID:     tokenNo,
	}
}

func tx(side domain.TradeSide, token string, shares, price float64) domain.Transaction {
	return domain.NewTransaction("0xabc", "m", side, price, shares, shares, token, time.Unix(1700000000, 0))
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		market   domain.Market
		txs      []domain.Transaction
		summary  domain.MarketSummary
		wantPnL  float64
		wantHeld bool
		wantCase Case
	}{
		{
			name:     "holds winning shares",
			market:   finalized(domain.SideA),
			txs:      []domain.Transaction{tx(domain.SideBuy, tokenYes, 10, 0.4)},
			summary:  domain.MarketSummary{TotalBuyVolume: 4, TotalSellVolume: 0, NetShares: 10},
			wantPnL:  6,
			wantHeld: true,
			wantCase: CaseHeldWinner,
		},
		{
			name:   "fully closed out before resolution",
			market: finalized(domain.SideA),
			txs: []domain.Transaction{
				tx(domain.SideBuy, tokenYes, 5, 1),
				tx(domain.SideSell, tokenYes, 5, 1.4),
			},
			summary:  domain.MarketSummary{TotalBuyVolume: 5, TotalSellVolume: 7, NetShares: 0},
			wantPnL:  2,
			wantHeld: false,
			wantCase: CaseClosedOut,
		},
		{
			name:     "holds losing side",
			market:   finalized(domain.SideA),
			txs:      []domain.Transaction{tx(domain.SideBuy, tokenNo, 10, 0.6)},
			summary:  domain.MarketSummary{TotalBuyVolume: 6, NetShares: 10},
			wantPnL:  -6,
			wantHeld: false,
			wantCase: CaseLosing,
		},
		{
			name:   "side b wins",
			market: finalized(domain.SideB),
			txs: []domain.Transaction{
				tx(domain.SideBuy, tokenNo, 20, 0.25),
				tx(domain.SideBuy, tokenYes, 4, 0.75),
			},
			summary:  domain.MarketSummary{TotalBuyVolume: 8, NetShares: 24},
			wantPnL:  12,
			wantHeld: true,
			wantCase: CaseHeldWinner,
		},
		{
			name:   "net negative winning exposure",
			market: finalized(domain.SideA),
			txs: []domain.Transaction{
				tx(domain.SideBuy, tokenYes, 2, 0.5),
				tx(domain.SideSell, tokenYes, 5, 0.6),
			},
			summary:  domain.MarketSummary{TotalBuyVolume: 1, TotalSellVolume: 3, NetShares: -3},
			wantPnL:  2,
			wantHeld: false,
			wantCase: CaseLosing,
		},
		{
			name:   "winning flat but losing shares open",
			market: finalized(domain.SideA),
			txs: []domain.Transaction{
				tx(domain.SideBuy, tokenYes, 3, 0.5),
				tx(domain.SideSell, tokenYes, 3, 0.5),
				tx(domain.SideBuy, tokenNo, 4, 0.5),
			},
			summary:  domain.MarketSummary{TotalBuyVolume: 3.5, TotalSellVolume: 1.5, NetShares: 4},
			wantPnL:  -2,
			wantHeld: false,
			wantCase: CaseLosing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Compute(tt.market, tt.txs, tt.summary)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantPnL, res.PnL, 1e-9)
			assert.Equal(t, tt.wantHeld, res.WinningSideHeld)
			assert.Equal(t, tt.wantCase, res.Case)
		})
	}
}

func TestCompute_NotComputable(t *testing.T) {
	open := finalized(domain.SideA)
	open.Status = domain.MarketStatusOpen

	noWinner := finalized("")

	tests := []struct {
		name   string
		market domain.Market
		txs    []domain.Transaction
	}{
		{name: "market still open", market: open, txs: []domain.Transaction{tx(domain.SideBuy, tokenYes, 1, 1)}},
		{name: "closed without winning side", market: noWinner, txs: []domain.Transaction{tx(domain.SideBuy, tokenYes, 1, 1)}},
		{name: "no transactions", market: finalized(domain.SideA), txs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.market, tt.txs, domain.MarketSummary{})
			require.ErrorIs(t, err, domain.ErrNotComputable)
		})
	}
}

func TestCase_String(t *testing.T) {
	assert.Equal(t, "held_winner", CaseHeldWinner.String())
	assert.Equal(t, "closed_out", CaseClosedOut.String())
	assert.Equal(t, "losing", CaseLosing.String())
	assert.Equal(t, "unknown", Case(0).String())
}
