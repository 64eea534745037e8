// Package cluster groups market embeddings with cosine k-means and names each
// group after its most common title words.
package cluster

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/alanyoungcy/polyrec/internal/vector"
)

// Defaults used by the cluster job.
const (
	DefaultK          = 12
	DefaultIterations = 10
)

// ErrNoPoints is returned when there is nothing to cluster.
var ErrNoPoints = errors.New("cluster: no points")

// Point is one embedded item to cluster.
type Point struct {
	ID     string
	Title  string
	Vector []float64
}

// Options configures KMeans.
type Options struct {
	K          int
	Iterations int
	Seed       uint64
}

// Result holds the assignment for every input point, in input order, plus the
// final centroids and one label per cluster.
type Result struct {
	Assignments []int
	Centroids   [][]float64
	Labels      []string
	Iterations  int
}

// KMeans partitions points into at most opts.K clusters. Initial centroids
// are drawn from the points with a generator seeded by opts.Seed, so equal
// input and seed always give equal output. A point joins the centroid with
// the highest cosine similarity; centroids move to the mean of their members
// and an empty cluster keeps its centroid. Iteration stops early once no
// assignment changes. Every point must have the same dimension.
func KMeans(points []Point, opts Options) (Result, error) {
	if len(points) == 0 {
		return Result{}, ErrNoPoints
	}
	dim := len(points[0].Vector)
	if dim == 0 {
		return Result{}, fmt.Errorf("cluster: point %s has an empty vector", points[0].ID)
	}
	for _, p := range points {
		if len(p.Vector) != dim {
			return Result{}, fmt.Errorf("cluster: point %s: %w", p.ID, vector.ErrDimensionMismatch)
		}
	}

	k := opts.K
	if k <= 0 {
		k = DefaultK
	}
	if k > len(points) {
		k = len(points)
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	centroids := make([][]float64, k)
	for c, idx := range rng.Perm(len(points))[:k] {
		centroids[c] = append([]float64(nil), points[idx].Vector...)
	}

	assign := make([]int, len(points))
	for i := range assign {
		assign[i] = -1
	}

	ran := 0
	for iter := 0; iter < iterations; iter++ {
		ran++
		changed := false
		for i, p := range points {
			best := nearest(p.Vector, centroids)
			if best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		recenter(points, assign, centroids)
	}

	groups := make([][]string, k)
	for i, p := range points {
		groups[assign[i]] = append(groups[assign[i]], p.Title)
	}
	labels := make([]string, k)
	for c := range groups {
		labels[c] = Label(groups[c], c)
	}

	return Result{Assignments: assign, Centroids: centroids, Labels: labels, Iterations: ran}, nil
}

func nearest(v []float64, centroids [][]float64) int {
	best, bestSim := 0, -1.0
	for c, centroid := range centroids {
		sim, err := vector.Cosine(v, centroid)
		if err != nil {
			continue
		}
		if sim > bestSim {
			best, bestSim = c, sim
		}
	}
	return best
}

func recenter(points []Point, assign []int, centroids [][]float64) {
	dim := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i, p := range points {
		c := assign[i]
		if sums[c] == nil {
			sums[c] = make([]float64, dim)
		}
		for d, x := range p.Vector {
			sums[c][d] += x
		}
		counts[c]++
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for d := range sums[c] {
			sums[c][d] /= float64(counts[c])
		}
		centroids[c] = sums[c]
	}
}
