// Package profile builds wallet interest vectors: the volume-weighted
// centroid of the embeddings of every market a wallet traded.
package profile

import (
	"math"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

// Weight maps a market's traded volume to its pull on the centroid. It grows
// sub-linearly with volume and never drops below 1, so a single large trade
// cannot dominate and small positions still count.
func Weight(volume float64) float64 {
	if volume < 0 || math.IsNaN(volume) {
		volume = 0
	}
	return math.Sqrt(volume)/5 + math.Log10(volume+1) + 1
}

// Result is the outcome of a Build call.
type Result struct {
	Vector      []float64
	TotalWeight float64
	Markets     int // markets that contributed
	Skipped     int // markets with an embedding of the wrong dimension
}

// Builder computes interest vectors of a fixed dimension.
type Builder struct {
	dim int
}

// NewBuilder creates a Builder for vectors of dimension dim.
func NewBuilder(dim int) *Builder {
	return &Builder{dim: dim}
}

// Dimensions returns the vector dimension the builder produces.
func (b *Builder) Dimensions() int { return b.dim }

// Build folds the wallet's market summaries into one vector. Only markets
// with an embedding of exactly the builder's dimension contribute. Invalid
// components are left out of that dimension's numerator but the market's
// weight still counts toward the denominator. A wallet with no contributing
// market yields domain.ErrNoProfile.
func (b *Builder) Build(summaries []domain.MarketSummary, embeddings map[string][]float64) (Result, error) {
	sum := make([]float64, b.dim)
	res := Result{}

	for _, s := range summaries {
		emb, ok := embeddings[s.MarketSlug]
		if !ok || len(emb) == 0 {
			continue
		}
		if len(emb) != b.dim {
			res.Skipped++
			continue
		}

		w := Weight(s.TotalVolume)
		for d, v := range emb {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			sum[d] += v * w
		}
		res.TotalWeight += w
		res.Markets++
	}

	if res.TotalWeight == 0 {
		return res, domain.ErrNoProfile
	}

	for d := range sum {
		sum[d] /= res.TotalWeight
	}
	res.Vector = sum
	return res, nil
}
