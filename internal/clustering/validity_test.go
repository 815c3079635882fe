package clustering

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ringLabels(sizes ...int) []int {
	var labels []int
	for label, size := range sizes {
		labels = append(labels, repeatInt(label, size)...)
	}
	return labels
}

func TestDBCVWellSeparated(t *testing.T) {
	scorer := NewDBCVScorer(MetricEuclidean)
	score := scorer.Score(twoRings(), ringLabels(10, 10))
	assert.Greater(t, score, 0.9)
	assert.LessOrEqual(t, score, 1.0)
}

func TestDBCVPrefersCorrectLabeling(t *testing.T) {
	embeddings := twoRings()
	scorer := NewDBCVScorer(MetricEuclidean)

	mixed := make([]int, 20)
	for i := range mixed {
		mixed[i] = i % 2
	}

	good := scorer.Score(embeddings, ringLabels(10, 10))
	bad := scorer.Score(embeddings, mixed)
	assert.Greater(t, good, bad)
	assert.GreaterOrEqual(t, bad, -1.0)
}

func TestDBCVNoisePenalised(t *testing.T) {
	embeddings := twoRings()
	scorer := NewDBCVScorer(MetricEuclidean)

	withNoise := ringLabels(10, 10)
	for i := 0; i < 5; i++ {
		withNoise[i] = Noise
	}
	full := scorer.Score(embeddings, ringLabels(10, 10))
	partial := scorer.Score(embeddings, withNoise)
	assert.Less(t, partial, full)
	assert.Positive(t, partial)
}

func TestScorerSentinels(t *testing.T) {
	embeddings := twoRings()
	scorers := map[string]ValidityScorer{
		"dbcv":       NewDBCVScorer(MetricEuclidean),
		"silhouette": NewSilhouetteScorer(MetricEuclidean),
		"fallback":   NewScorer("dbcv", MetricEuclidean),
	}

	for name, scorer := range scorers {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, InvalidScore, scorer.Score(embeddings, repeatInt(Noise, 20)))
			assert.Equal(t, InvalidScore, scorer.Score(embeddings, repeatInt(0, 20)))

			oneCluster := repeatInt(Noise, 20)
			for i := 0; i < 10; i++ {
				oneCluster[i] = 0
			}
			assert.Equal(t, InvalidScore, scorer.Score(embeddings, oneCluster))
		})
	}
}

func TestScorersDeterministicAndBounded(t *testing.T) {
	embeddings := threeRings()
	labels := ringLabels(10, 10, 10)
	for _, scorer := range []ValidityScorer{
		NewDBCVScorer(MetricEuclidean),
		NewDBCVScorer(MetricCosine),
		NewSilhouetteScorer(MetricEuclidean),
	} {
		a := scorer.Score(embeddings, labels)
		b := scorer.Score(embeddings, labels)
		assert.Equal(t, a, b)
		assert.GreaterOrEqual(t, a, -1.0)
		assert.LessOrEqual(t, a, 1.0)
	}
}

func TestDBCVHighDimensional(t *testing.T) {
	// Wide rows overflow a naive (1/d)^dims core distance
	const width = 768
	var embeddings [][]float64
	for c := 0; c < 2; c++ {
		for k := 0; k < 8; k++ {
			row := make([]float64, width)
			for j := range row {
				row[j] = float64(c*10) + 0.001*float64((j*7+k*13)%11)
			}
			embeddings = append(embeddings, row)
		}
	}
	score := NewDBCVScorer(MetricEuclidean).Score(embeddings, ringLabels(8, 8))
	require.False(t, math.IsNaN(score))
	assert.Greater(t, score, 0.5)
}

func TestSilhouetteIgnoresNoise(t *testing.T) {
	embeddings := append(twoRings(), []float64{5, 5})
	labels := append(ringLabels(10, 10), Noise)
	score := NewSilhouetteScorer(MetricEuclidean).Score(embeddings, labels)
	assert.Greater(t, score, 0.9)
}

type constScorer float64

func (c constScorer) Score([][]float64, []int) float64 { return float64(c) }

func TestFallbackScorer(t *testing.T) {
	f := &FallbackScorer{Primary: constScorer(math.NaN()), Secondary: constScorer(0.25)}
	assert.Equal(t, 0.25, f.Score(nil, nil))

	f = &FallbackScorer{Primary: constScorer(0.5), Secondary: constScorer(0.25)}
	assert.Equal(t, 0.5, f.Score(nil, nil))

	f = &FallbackScorer{Primary: constScorer(math.Inf(1)), Secondary: constScorer(math.NaN())}
	assert.Equal(t, InvalidScore, f.Score(nil, nil))
}

func TestAnalyzeSilhouette(t *testing.T) {
	analysis := AnalyzeSilhouette(twoRings(), ringLabels(10, 10), MetricEuclidean)
	assert.Equal(t, 2, analysis.NumClusters)
	assert.Equal(t, 0, analysis.NumNoise)
	assert.Contains(t, analysis.Quality, "Excellent")
	assert.Len(t, analysis.ClusterScores, 2)
}
