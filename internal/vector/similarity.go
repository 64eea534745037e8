package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when two non-empty vectors of different
// length are compared.
var ErrDimensionMismatch = errors.New("dimension mismatch")

// Candidate is one item to score against a query vector.
type Candidate struct {
	ID     string
	Vector []float64
}

// Scored is a ranked candidate. Index is its position in the input slice.
type Scored struct {
	ID    string
	Score float64
	Index int
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. An empty input
// or a zero-magnitude vector yields 0 rather than NaN.
func Cosine(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, nil
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: cosine: %d vs %d: %w", len(a), len(b), ErrDimensionMismatch)
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) {
		return 0, nil
	}
	return clamp(sim), nil
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Rank scores every candidate against query and orders them by descending
// score. Equal scores keep their input order.
func Rank(query []float64, candidates []Candidate) ([]Scored, error) {
	out := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		score, err := Cosine(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("vector: rank %s: %w", c.ID, err)
		}
		out = append(out, Scored{ID: c.ID, Score: score, Index: i})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}

// TopK ranks candidates, keeps those scoring strictly above threshold and
// returns at most k of them. k <= 0 means no limit.
func TopK(query []float64, candidates []Candidate, threshold float64, k int) ([]Scored, error) {
	ranked, err := Rank(query, candidates)
	if err != nil {
		return nil, err
	}
	out := ranked[:0]
	for _, s := range ranked {
		if s.Score > threshold {
			out = append(out, s)
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Zero returns an all-zero vector of dimension dim.
func Zero(dim int) []float64 {
	if dim < 0 {
		dim = 0
	}
	return make([]float64, dim)
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
