package clustering

import (
	"math"
)

// SilhouetteScorer scores a labeling by mean silhouette over non-noise points
type SilhouetteScorer struct {
	Metric Metric
}

// NewSilhouetteScorer creates a silhouette scorer over the given metric
func NewSilhouetteScorer(metric Metric) *SilhouetteScorer {
	if metric == "" {
		metric = MetricEuclidean
	}
	return &SilhouetteScorer{Metric: metric}
}

// Score implements ValidityScorer
func (s *SilhouetteScorer) Score(embeddings [][]float64, labels []int) float64 {
	if len(labels) != len(embeddings) || countClusters(labels) < 2 {
		return InvalidScore
	}
	distances := DistanceMatrix(embeddings, s.Metric.Func())
	return AverageSilhouetteScore(labels, distances)
}

// SilhouetteScore calculates the silhouette score for a single data point
// Returns a score between -1 and 1:
//
//	-1: Point likely in wrong cluster
//	 0: Point on the border between clusters (or alone in its cluster)
//	+1: Point well matched to its cluster
//
// Noise points are ignored on both sides of the comparison.
func SilhouetteScore(
	pointIdx int,
	clusterAssignments []int,
	distances [][]float64,
) float64 {
	n := len(clusterAssignments)
	if n == 0 || pointIdx >= n || clusterAssignments[pointIdx] == Noise {
		return 0.0
	}

	currentCluster := clusterAssignments[pointIdx]

	// a(i): mean distance to other points in same cluster
	a, ok := meanIntraClusterDistance(pointIdx, currentCluster, clusterAssignments, distances)
	if !ok {
		return 0.0 // Singleton cluster
	}

	// b(i): min mean distance to points in other clusters
	b := minInterClusterDistance(pointIdx, currentCluster, clusterAssignments, distances)

	if a < b {
		return 1.0 - (a / b)
	} else if a > b {
		return (b / a) - 1.0
	}
	return 0.0
}

func meanIntraClusterDistance(
	pointIdx int,
	clusterLabel int,
	clusterAssignments []int,
	distances [][]float64,
) (float64, bool) {
	sumDistance := 0.0
	count := 0

	for i, label := range clusterAssignments {
		if i == pointIdx {
			continue
		}
		if label == clusterLabel {
			sumDistance += distances[pointIdx][i]
			count++
		}
	}

	if count == 0 {
		return 0.0, false
	}
	return sumDistance / float64(count), true
}

func minInterClusterDistance(
	pointIdx int,
	currentCluster int,
	clusterAssignments []int,
	distances [][]float64,
) float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, label := range clusterAssignments {
		if label == currentCluster || label == Noise {
			continue
		}
		sums[label] += distances[pointIdx][i]
		counts[label]++
	}

	if len(counts) == 0 {
		return 1.0 // No other clusters
	}

	minDistance := math.MaxFloat64
	for label, count := range counts {
		if mean := sums[label] / float64(count); mean < minDistance {
			minDistance = mean
		}
	}
	return minDistance
}

// AverageSilhouetteScore calculates the mean silhouette score across all
// non-noise points. Returns InvalidScore when fewer than two clusters exist.
func AverageSilhouetteScore(
	clusterAssignments []int,
	distances [][]float64,
) float64 {
	if countClusters(clusterAssignments) < 2 {
		return InvalidScore
	}

	totalScore := 0.0
	counted := 0
	for i, label := range clusterAssignments {
		if label == Noise {
			continue
		}
		totalScore += SilhouetteScore(i, clusterAssignments, distances)
		counted++
	}

	return totalScore / float64(counted)
}

// ClusterSilhouetteScores calculates per-cluster silhouette scores keyed by label
func ClusterSilhouetteScores(
	clusterAssignments []int,
	distances [][]float64,
) map[int]float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for i, label := range clusterAssignments {
		if label == Noise {
			continue
		}
		sums[label] += SilhouetteScore(i, clusterAssignments, distances)
		counts[label]++
	}

	means := make(map[int]float64, len(counts))
	for label, count := range counts {
		means[label] = sums[label] / float64(count)
	}
	return means
}

// SilhouetteAnalysis summarises the silhouette structure of a labeling
type SilhouetteAnalysis struct {
	OverallScore  float64         // Average across non-noise points
	ClusterScores map[int]float64 // Per-cluster average scores
	NumClusters   int             // Distinct non-noise labels
	NumNoise      int             // Points labelled noise
	Quality       string          // Interpretation: Excellent/Good/Fair/Poor
}

// AnalyzeSilhouette performs a silhouette analysis of labels over embeddings
func AnalyzeSilhouette(embeddings [][]float64, labels []int, metric Metric) *SilhouetteAnalysis {
	distances := DistanceMatrix(embeddings, metric.Func())
	overall := AverageSilhouetteScore(labels, distances)

	noise := 0
	for _, l := range labels {
		if l == Noise {
			noise++
		}
	}

	return &SilhouetteAnalysis{
		OverallScore:  overall,
		ClusterScores: ClusterSilhouetteScores(labels, distances),
		NumClusters:   countClusters(labels),
		NumNoise:      noise,
		Quality:       interpretSilhouetteScore(overall),
	}
}

// interpretSilhouetteScore provides human-readable interpretation
func interpretSilhouetteScore(score float64) string {
	if score >= 0.71 {
		return "Excellent - Strong cluster structure"
	} else if score >= 0.51 {
		return "Good - Reasonable cluster structure"
	} else if score >= 0.26 {
		return "Fair - Weak cluster structure"
	} else if score >= 0.0 {
		return "Poor - No substantial cluster structure"
	}
	return "Very Poor - Artificial/forced clustering"
}
