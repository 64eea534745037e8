package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

type pairKey struct{ wallet, slug string }

type accumulator struct {
	buy, sell, net decimal.Decimal
	interactions   int
	first, last    time.Time
}

func (a *accumulator) add(tx domain.Transaction) {
	vol := dec(tx.VolumeUSD)
	shares := dec(tx.SharesNormalized)
	if tx.Side == domain.SideSell {
		a.sell = a.sell.Add(vol)
		a.net = a.net.Sub(shares)
	} else {
		a.buy = a.buy.Add(vol)
		a.net = a.net.Add(shares)
	}
	a.interactions++
	if a.first.IsZero() || tx.Timestamp.Before(a.first) {
		a.first = tx.Timestamp
	}
	if tx.Timestamp.After(a.last) {
		a.last = tx.Timestamp
	}
}

// Summarize replays a transaction log into one MarketSummary per
// (wallet, market) pair, ordered by wallet then market. PnL fields are left
// unset; they belong to Compute.
func Summarize(txs []domain.Transaction) []domain.MarketSummary {
	acc := make(map[pairKey]*accumulator)
	for _, tx := range txs {
		k := pairKey{domain.NormalizeWallet(tx.WalletAddress), tx.MarketSlug}
		a, ok := acc[k]
		if !ok {
			a = &accumulator{}
			acc[k] = a
		}
		a.add(tx)
	}

	out := make([]domain.MarketSummary, 0, len(acc))
	for k, a := range acc {
		buy := a.buy.InexactFloat64()
		sell := a.sell.InexactFloat64()
		out = append(out, domain.MarketSummary{
			WalletAddress:      k.wallet,
			MarketSlug:         k.slug,
			TotalBuyVolume:     buy,
			TotalSellVolume:    sell,
			TotalVolume:        a.buy.Add(a.sell).InexactFloat64(),
			TotalInteractions:  a.interactions,
			NetShares:          a.net.InexactFloat64(),
			FirstInteractionAt: a.first,
			LastInteractionAt:  a.last,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WalletAddress != out[j].WalletAddress {
			return out[i].WalletAddress < out[j].WalletAddress
		}
		return out[i].MarketSlug < out[j].MarketSlug
	})
	return out
}

// AggregateCategories groups a wallet's market summaries by the category of
// each market. Volume and interactions are always summed; PnL is summed and
// the finalized count incremented only for finalized summaries with a PnL,
// every other summary counts as open. Markets absent from categoryOf, or with
// an empty category, fall under domain.UncategorizedCategory. Rows come back
// ordered by category. A stored TotalPnL of 0 is ambiguous on its own:
// readers tell "no PnL yet" (nil) from "broke even" (0) by FinalizedMarkets.
func AggregateCategories(wallet string, summaries []domain.MarketSummary, categoryOf map[string]string, now time.Time) []domain.CategorySummary {
	type agg struct {
		volume, pnl       decimal.Decimal
		interactions      int
		finalized, opened int
	}
	groups := make(map[string]*agg)
	for _, s := range summaries {
		cat := categoryOf[s.MarketSlug]
		if cat == "" {
			cat = domain.UncategorizedCategory
		}
		g, ok := groups[cat]
		if !ok {
			g = &agg{}
			groups[cat] = g
		}
		g.volume = g.volume.Add(dec(s.TotalVolume))
		g.interactions += s.TotalInteractions
		if s.IsFinalized && s.PnL != nil {
			g.pnl = g.pnl.Add(dec(*s.PnL))
			g.finalized++
		} else {
			g.opened++
		}
	}

	wallet = domain.NormalizeWallet(wallet)
	out := make([]domain.CategorySummary, 0, len(groups))
	for cat, g := range groups {
		out = append(out, domain.CategorySummary{
			WalletAddress:     wallet,
			Category:          cat,
			TotalVolume:       g.volume.InexactFloat64(),
			TotalInteractions: g.interactions,
			TotalPnL:          g.pnl.InexactFloat64(),
			FinalizedMarkets:  g.finalized,
			OpenMarkets:       g.opened,
			UpdatedAt:         now,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}
