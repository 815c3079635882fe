package clustering

import (
	"context"
	"math"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() Settings {
	s := DefaultSettings()
	s.Metric = MetricEuclidean
	s.MaxTokensPerCluster = 100
	s.MinSplitSize = 2
	return s
}

func newTestClusterer(t *testing.T, settings Settings, opts ...Option) *Clusterer {
	t.Helper()
	c, err := New(settings, append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestClusterTwoBlobs(t *testing.T) {
	c := newTestClusterer(t, testSettings())
	result, err := c.Cluster(context.Background(), twoRings(), Params{MinClusterSize: 2, MinSamples: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, result.NumClusters())
	assert.Equal(t, 0, result.NumNoise())
	counts := distinct(result.Labels)
	for _, n := range counts {
		assert.Equal(t, 10, n)
	}
	assert.Greater(t, result.ValidityScore, 0.9)
	assert.Len(t, result.Probabilities, 20)
}

func TestClusterNaNReturnsEmpty(t *testing.T) {
	embeddings := twoRings()
	embeddings[7][0] = math.NaN()

	c := newTestClusterer(t, testSettings())
	result, err := c.Cluster(context.Background(), embeddings, Params{MinClusterSize: 2, MinSamples: 1})
	require.NoError(t, err)
	assert.Len(t, result.Labels, 0)
	assert.Len(t, result.Probabilities, 0)
	assert.Equal(t, 0.0, result.ValidityScore)
}

func TestClusterInvalidParams(t *testing.T) {
	c := newTestClusterer(t, testSettings())
	_, err := c.Cluster(context.Background(), twoRings(), Params{MinClusterSize: 0, MinSamples: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParams))
}

func TestOptimizeClusteringScenario(t *testing.T) {
	c := newTestClusterer(t, testSettings())
	result, err := c.OptimizeClustering(context.Background(), threeRings(), Range{5, 15}, Range{1, 3})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.ValidityScore, -1.0)
	assert.LessOrEqual(t, result.ValidityScore, 1.0)
	assert.Contains(t, []int{5, 15}, result.Params.MinClusterSize)
	assert.Contains(t, []int{1, 3}, result.Params.MinSamples)
	assert.GreaterOrEqual(t, result.NumClusters(), 2)
}

func TestOptimizeClusteringEmpty(t *testing.T) {
	c := newTestClusterer(t, testSettings())
	result, err := c.OptimizeClustering(context.Background(), [][]float64{}, Range{5, 15}, Range{1, 3})
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
	assert.Equal(t, 0.0, result.ValidityScore)
}

func TestRecursiveCluster(t *testing.T) {
	c := newTestClusterer(t, testSettings())
	tokens := append(repeatInt(20, 10), repeatInt(5, 10)...)

	labels, probs, err := c.RecursiveCluster(context.Background(), twoRings(), ringLabels(10, 10), repeatFloat(0.5, 20), tokens)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(distinct(labels[:10])), 2)
	assert.Equal(t, repeatInt(1, 10), labels[10:])
	assert.Equal(t, repeatFloat(0.5, 10), probs[10:])
}

func TestRecursiveClusterDisabled(t *testing.T) {
	settings := testSettings()
	settings.RecursiveEnabled = false
	c := newTestClusterer(t, settings)

	input := ringLabels(10, 10)
	labels, _, err := c.RecursiveCluster(context.Background(), twoRings(), input, repeatFloat(0.5, 20), repeatInt(1_000_000, 20))
	require.NoError(t, err)
	assert.Equal(t, input, labels)
}

func TestRecursiveClusterInvalidEmbeddings(t *testing.T) {
	embeddings := twoRings()
	embeddings[3][1] = math.Inf(1)
	c := newTestClusterer(t, testSettings())

	input := ringLabels(10, 10)
	labels, _, err := c.RecursiveCluster(context.Background(), embeddings, input, repeatFloat(0.5, 20), repeatInt(1000, 20))
	require.NoError(t, err)
	assert.Equal(t, input, labels)
}

type recordingReducer struct {
	calls int
}

func (r *recordingReducer) Reduce(embeddings [][]float64) ([][]float64, error) {
	r.calls++
	return embeddings, nil
}

type erroringReducer struct{}

func (erroringReducer) Reduce([][]float64) ([][]float64, error) {
	return nil, errors.Wrap(ErrNumeric, "svd did not converge")
}

func TestClustererReducerWiring(t *testing.T) {
	reducer := &recordingReducer{}
	c := newTestClusterer(t, testSettings(), WithReducer(reducer))

	_, err := c.Cluster(context.Background(), twoRings(), Params{MinClusterSize: 2, MinSamples: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, reducer.calls)

	bad := twoRings()
	bad[0][0] = math.NaN()
	_, err = c.Cluster(context.Background(), bad, Params{MinClusterSize: 2, MinSamples: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, reducer.calls, "rejected input must not reach the reducer")

	c = newTestClusterer(t, testSettings(), WithReducer(erroringReducer{}))
	_, err = c.Cluster(context.Background(), twoRings(), Params{MinClusterSize: 2, MinSamples: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNumeric))
}

func TestClustererCustomStrategy(t *testing.T) {
	c := newTestClusterer(t, testSettings(), WithDensityStrategy(failingStrategy{}), WithScorer(constScorer(0.3)))
	_, err := c.Cluster(context.Background(), twoRings(), Params{MinClusterSize: 2, MinSamples: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNumeric))
}

func TestNewRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"min cluster size", func(s *Settings) { s.MinClusterSize = 0 }},
		{"inverted range", func(s *Settings) { s.MinSamplesRange = Range{5, 1} }},
		{"split budget", func(s *Settings) { s.MaxTokensPerCluster = 0 }},
		{"metric", func(s *Settings) { s.Metric = "manhattan" }},
		{"backend", func(s *Settings) { s.Backend = "sklearn" }},
		{"validity metric", func(s *Settings) { s.ValidityMetric = "davies-bouldin" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettings()
			tt.mutate(&s)
			_, err := New(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidParams))
		})
	}
}

func TestSettingsSplit(t *testing.T) {
	s := DefaultSettings()
	split := s.Split()
	assert.Equal(t, s.RecursiveEnabled, split.Enabled)
	assert.Equal(t, s.MaxTokensPerCluster, split.MaxTokensPerCluster)
	assert.Equal(t, s.MinSplitSize, split.MinSplitSize)
	assert.Equal(t, DefaultMaxSplitDepth, split.MaxDepth)
	require.NoError(t, s.Validate())
}
