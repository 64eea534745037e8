package profile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyrec/internal/domain"
)

func TestWeight(t *testing.T) {
	assert.Equal(t, 1.0, Weight(0))
	assert.Equal(t, 1.0, Weight(-5), "negative volume clamps to zero")
	assert.InDelta(t, 2+math.Log10(101)+1, Weight(100), 1e-12)

	prev := Weight(0)
	for v := 0.5; v < 1e7; v *= 1.7 {
		w := Weight(v)
		assert.Greater(t, w, prev, "weight must increase at volume %f", v)
		prev = w
	}
}

func summary(slug string, volume float64) domain.MarketSummary {
	return domain.MarketSummary{WalletAddress: "0xabc", MarketSlug: slug, TotalVolume: volume}
}

func TestBuilder_Build(t *testing.T) {
	wHeavy := Weight(100)

	tests := []struct {
		name        string
		summaries   []domain.MarketSummary
		embeddings  map[string][]float64
		want        []float64
		wantMarkets int
		wantSkipped int
		wantErr     error
	}{
		{
			name:        "single market returns its embedding",
			summaries:   []domain.MarketSummary{summary("a", 0)},
			embeddings:  map[string][]float64{"a": {1, 2, 3}},
			want:        []float64{1, 2, 3},
			wantMarkets: 1,
		},
		{
			name:        "volume weighted centroid",
			summaries:   []domain.MarketSummary{summary("small", 0), summary("large", 100)},
			embeddings:  map[string][]float64{"small": {1, 0, 0}, "large": {0, 1, 0}},
			want:        []float64{1 / (1 + wHeavy), wHeavy / (1 + wHeavy), 0},
			wantMarkets: 2,
		},
		{
			name:        "invalid component skipped in numerator only",
			summaries:   []domain.MarketSummary{summary("a", 0), summary("b", 0)},
			embeddings:  map[string][]float64{"a": {math.NaN(), 1, 1}, "b": {1, 1, 1}},
			want:        []float64{0.5, 1, 1},
			wantMarkets: 2,
		},
		{
			name:        "markets without embeddings do not contribute",
			summaries:   []domain.MarketSummary{summary("a", 10), summary("none", 1e6)},
			embeddings:  map[string][]float64{"a": {0, 0, 2}},
			want:        []float64{0, 0, 2},
			wantMarkets: 1,
		},
		{
			name:        "wrong dimension skipped",
			summaries:   []domain.MarketSummary{summary("a", 0), summary("short", 0)},
			embeddings:  map[string][]float64{"a": {1, 1, 1}, "short": {5, 5}},
			want:        []float64{1, 1, 1},
			wantMarkets: 1,
			wantSkipped: 1,
		},
		{
			name:       "no embedded history",
			summaries:  []domain.MarketSummary{summary("a", 10)},
			embeddings: map[string][]float64{},
			wantErr:    domain.ErrNoProfile,
		},
		{
			name:       "no summaries",
			summaries:  nil,
			embeddings: map[string][]float64{"a": {1, 1, 1}},
			wantErr:    domain.ErrNoProfile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(3)
			res, err := b.Build(tt.summaries, tt.embeddings)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, res.Vector)
				return
			}
			require.NoError(t, err)
			require.Len(t, res.Vector, 3)
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], res.Vector[i], 1e-12, "dimension %d", i)
			}
			assert.Equal(t, tt.wantMarkets, res.Markets)
			assert.Equal(t, tt.wantSkipped, res.Skipped)
		})
	}
}

func TestBuilder_Idempotent(t *testing.T) {
	summaries := []domain.MarketSummary{summary("a", 12.5), summary("b", 3000), summary("c", 0.25)}
	embeddings := map[string][]float64{
		"a": {0.1, -0.4, 0.9, 0.3},
		"b": {0.7, 0.2, -0.1, 0.0},
		"c": {-0.3, 0.8, 0.5, 0.2},
	}
	b := NewBuilder(4)
	first, err := b.Build(summaries, embeddings)
	require.NoError(t, err)
	second, err := b.Build(summaries, embeddings)
	require.NoError(t, err)
	assert.Equal(t, first.Vector, second.Vector)
}
