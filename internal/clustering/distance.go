package clustering

import (
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
)

// Metric names a distance function between embeddings
type Metric string

const (
	MetricEuclidean Metric = "euclidean"
	MetricCosine    Metric = "cosine"
)

// DistanceFunc computes the distance between two vectors of equal length
type DistanceFunc func(a, b []float64) float64

// ParseMetric converts a config string into a Metric
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case MetricEuclidean, "":
		return MetricEuclidean, nil
	case MetricCosine:
		return MetricCosine, nil
	default:
		return "", errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "unknown distance metric %q", s),
			"use one of: euclidean, cosine")
	}
}

// Func returns the distance function for the metric
func (m Metric) Func() DistanceFunc {
	if m == MetricCosine {
		return CosineDistance
	}
	return EuclideanDistance
}

// EuclideanDistance calculates Euclidean distance between two vectors
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	return floats.Distance(a, b, 2)
}

// CosineDistance calculates cosine distance between two vectors.
// Distance = 1 - cosine_similarity, range [0, 2].
func CosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0 // Maximum distance for incompatible vectors
	}

	magA := floats.Norm(a, 2)
	magB := floats.Norm(b, 2)
	if magA == 0.0 || magB == 0.0 {
		return 1.0
	}

	similarity := floats.Dot(a, b) / (magA * magB)

	// Clamp to [-1, 1] to absorb floating point error
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}

	return 1.0 - similarity
}

// DistanceMatrix computes pairwise distances between all points.
// The matrix is symmetric with a zero diagonal.
func DistanceMatrix(embeddings [][]float64, distanceFunc DistanceFunc) [][]float64 {
	n := len(embeddings)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := distanceFunc(embeddings[i], embeddings[j])
			matrix[i][j] = d
			matrix[j][i] = d
		}
	}

	return matrix
}

// centroid returns the mean of the given rows
func centroid(embeddings [][]float64, indices []int) []float64 {
	if len(indices) == 0 {
		return nil
	}
	c := make([]float64, len(embeddings[indices[0]]))
	for _, idx := range indices {
		floats.Add(c, embeddings[idx])
	}
	floats.Scale(1.0/float64(len(indices)), c)
	return c
}
