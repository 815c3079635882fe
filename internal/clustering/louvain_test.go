package clustering

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLouvain(metric Metric) *Louvain {
	l := NewLouvain(metric)
	l.log = quietLogger()
	return l
}

func TestLouvainTwoRings(t *testing.T) {
	labels, probs, err := quietLouvain(MetricEuclidean).Cluster(context.Background(), twoRings(),
		Params{MinClusterSize: 2, MinSamples: 1})
	require.NoError(t, err)

	assert.Equal(t, repeatInt(0, 10), labels[:10])
	assert.Equal(t, repeatInt(1, 10), labels[10:])
	assert.Equal(t, repeatFloat(1.0, 20), probs)
}

func TestLouvainSmallCommunitiesAreNoise(t *testing.T) {
	labels, probs, err := quietLouvain(MetricEuclidean).Cluster(context.Background(), twoRings(),
		Params{MinClusterSize: 11, MinSamples: 1})
	require.NoError(t, err)
	assert.Equal(t, repeatInt(Noise, 20), labels)
	assert.Equal(t, repeatFloat(0, 20), probs)
}

func TestLouvainNoEdges(t *testing.T) {
	l := quietLouvain(MetricEuclidean).WithMinSimilarity(0.99)
	labels, _, err := l.Cluster(context.Background(), twoRings(), Params{MinClusterSize: 2, MinSamples: 1})
	require.NoError(t, err)
	assert.Equal(t, repeatInt(Noise, 20), labels)
}

func TestLouvainTooFewRows(t *testing.T) {
	labels, probs, err := quietLouvain(MetricCosine).Cluster(context.Background(), [][]float64{{1, 0}, {0, 1}},
		Params{MinClusterSize: 3, MinSamples: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{Noise, Noise}, labels)
	assert.Equal(t, []float64{0, 0}, probs)
}

func TestLouvainBuilders(t *testing.T) {
	l := NewLouvain("").WithResolution(2).WithMinSimilarity(0.5).WithMaxNeighbors(3)
	assert.Equal(t, MetricEuclidean, l.Metric)
	assert.Equal(t, 2.0, l.resolution)
	assert.Equal(t, 0.5, l.minSimilarity)
	assert.Equal(t, 3, l.maxNeighbors)
}

func TestLouvainBackend(t *testing.T) {
	backend, err := ParseBackend("Louvain")
	require.NoError(t, err)
	assert.Equal(t, BackendLouvain, backend)
	assert.IsType(t, &Louvain{}, NewDensityStrategy(backend, MetricCosine))

	backend, err = ParseBackend("")
	require.NoError(t, err)
	assert.IsType(t, &HDBSCAN{}, NewDensityStrategy(backend, MetricCosine))

	_, err = ParseBackend("humility")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidParams))
}
