package clustering

import (
	"log/slog"
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"newsbundle/internal/logger"
)

// Reducer is an optional preprocessing step applied to validated
// embeddings before density clustering. It must not modify its input.
type Reducer interface {
	Reduce(embeddings [][]float64) ([][]float64, error)
}

// ReduceConfig mirrors the umap_* settings
type ReduceConfig struct {
	Enabled       bool    // enable_umap_auto
	ThresholdRows int     // Reduce only when rows exceed this
	Components    int     // Target dimensionality
	NNeighbors    int     // Carried for UMAP compatibility, unused by PCA
	MinDist       float64 // Carried for UMAP compatibility, unused by PCA
}

// DefaultReduceConfig returns the reduction defaults (disabled)
func DefaultReduceConfig() ReduceConfig {
	return ReduceConfig{
		Enabled:       false,
		ThresholdRows: 100,
		Components:    10,
		NNeighbors:    15,
		MinDist:       0.0,
	}
}

// PCAReducer projects embeddings onto their leading principal components
type PCAReducer struct {
	config ReduceConfig
	log    *slog.Logger
}

// NewPCAReducer creates a PCA-backed reducer
func NewPCAReducer(config ReduceConfig, log *slog.Logger) *PCAReducer {
	if log == nil {
		log = logger.Get()
	}
	return &PCAReducer{config: config, log: log}
}

// Reduce returns embeddings unchanged when reduction is disabled or not
// worthwhile, otherwise a fresh matrix of centred projections.
func (r *PCAReducer) Reduce(embeddings [][]float64) ([][]float64, error) {
	n, d := len(embeddings), dims(embeddings)
	k := r.config.Components
	if !r.config.Enabled || k < 1 || n <= r.config.ThresholdRows || d <= k {
		return embeddings, nil
	}
	if k > n {
		k = n
	}

	data := mat.NewDense(n, d, nil)
	for i, row := range embeddings {
		data.SetRow(i, row)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, errors.Wrapf(ErrNumeric, "PCA decomposition failed for %dx%d matrix", n, d)
	}
	var vectors mat.Dense
	pc.VectorsTo(&vectors)

	means := make([]float64, d)
	for j := 0; j < d; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			data.Set(i, j, data.At(i, j)-means[j])
		}
	}

	var projected mat.Dense
	projected.Mul(data, vectors.Slice(0, d, 0, k))

	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, &projected)
		for _, v := range out[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.Wrapf(ErrNumeric, "PCA produced non-finite value in row %d", i)
			}
		}
	}

	r.log.Debug("Reduced embeddings with PCA",
		"rows", n, "from_dims", d, "to_dims", k,
		"n_neighbors", r.config.NNeighbors, "min_dist", r.config.MinDist)
	return out, nil
}
