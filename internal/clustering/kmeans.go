package clustering

import (
	"gonum.org/v1/gonum/floats"
)

// Bisector partitions a subset of rows into two groups. A result with an
// empty side is degenerate and tells the caller to stop splitting.
type Bisector interface {
	Bisect(embeddings [][]float64, indices []int) (left, right []int)
}

// KMeansConfig holds configuration for the 2-means bisector
type KMeansConfig struct {
	MaxIterations int // Maximum number of Lloyd iterations
}

// DefaultKMeansConfig returns sensible defaults for bisection
func DefaultKMeansConfig() KMeansConfig {
	return KMeansConfig{
		MaxIterations: 100,
	}
}

// KMeansBisector splits a group with deterministic 2-means. Seeds are the
// point farthest from the group mean and the point farthest from that one,
// so repeated runs on the same input always agree.
type KMeansBisector struct {
	config KMeansConfig
}

// NewKMeansBisector creates a bisector with the given config
func NewKMeansBisector(config KMeansConfig) *KMeansBisector {
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultKMeansConfig().MaxIterations
	}
	return &KMeansBisector{config: config}
}

// Bisect implements Bisector. Both groups preserve the order of indices.
func (km *KMeansBisector) Bisect(embeddings [][]float64, indices []int) ([]int, []int) {
	if len(indices) < 2 {
		return append([]int(nil), indices...), nil
	}

	seedA := farthestFrom(embeddings, indices, centroid(embeddings, indices))
	seedB := farthestFrom(embeddings, indices, embeddings[seedA])
	if EuclideanDistance(embeddings[seedA], embeddings[seedB]) == 0 {
		// Every point is identical
		return append([]int(nil), indices...), nil
	}

	centroids := [2][]float64{
		append([]float64(nil), embeddings[seedA]...),
		append([]float64(nil), embeddings[seedB]...),
	}

	assignments := make([]int, len(indices))
	for iteration := 0; iteration < km.config.MaxIterations; iteration++ {
		changed := false
		for i, idx := range indices {
			nearest := km.findNearestCentroid(embeddings[idx], centroids)
			if nearest != assignments[i] {
				changed = true
				assignments[i] = nearest
			}
		}
		if iteration > 0 && !changed {
			break
		}
		centroids = km.updateCentroids(embeddings, indices, assignments, centroids)
	}

	var left, right []int
	for i, idx := range indices {
		if assignments[i] == 0 {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

// findNearestCentroid returns 0 or 1; ties go to 0
func (km *KMeansBisector) findNearestCentroid(embedding []float64, centroids [2][]float64) int {
	if floats.Distance(embedding, centroids[1], 2) < floats.Distance(embedding, centroids[0], 2) {
		return 1
	}
	return 0
}

// updateCentroids recalculates centroids from assignments. An emptied
// cluster keeps its previous centroid.
func (km *KMeansBisector) updateCentroids(
	embeddings [][]float64,
	indices []int,
	assignments []int,
	previous [2][]float64,
) [2][]float64 {
	var groups [2][]int
	for i, idx := range indices {
		groups[assignments[i]] = append(groups[assignments[i]], idx)
	}

	var centroids [2][]float64
	for c := range centroids {
		if len(groups[c]) == 0 {
			centroids[c] = previous[c]
			continue
		}
		centroids[c] = centroid(embeddings, groups[c])
	}
	return centroids
}

// farthestFrom returns the index in indices farthest from target, lowest index on ties
func farthestFrom(embeddings [][]float64, indices []int, target []float64) int {
	best := indices[0]
	bestDist := -1.0
	for _, idx := range indices {
		if d := floats.Distance(embeddings[idx], target, 2); d > bestDist {
			bestDist = d
			best = idx
		}
	}
	return best
}
