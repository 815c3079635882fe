package pipeline

import (
	"context"

	"newsbundle/internal/clustering"
)

// Embedder creates vector embeddings for article text
type Embedder interface {
	// Embed returns one embedding per text, in order
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// TokenEstimator counts tokens in article text
type TokenEstimator interface {
	Count(text string) int
}

// Engine is the clustering engine the stage drives. *clustering.Clusterer
// implements it.
type Engine interface {
	Settings() clustering.Settings
	Cluster(ctx context.Context, embeddings [][]float64, params clustering.Params) (*clustering.Result, error)
	OptimizeClustering(ctx context.Context, embeddings [][]float64, mcsRange, msRange clustering.Range) (*clustering.Result, error)
	RecursiveCluster(ctx context.Context, embeddings [][]float64, labels []int, probs []float64, tokenCounts []int) ([]int, []float64, error)
}
