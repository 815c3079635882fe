package clustering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"newsbundle/internal/logger"
)

// OptimizerConfig controls the hyperparameter grid search
type OptimizerConfig struct {
	GridPoints      int             // Values tried per axis, endpoints included (<= 0 means every integer)
	Workers         int             // Concurrent grid cells (1 = sequential)
	SelectionMethod SelectionMethod // Applied to every cell
}

// DefaultOptimizerConfig returns the default grid: both range endpoints, run sequentially
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		GridPoints:      2,
		Workers:         1,
		SelectionMethod: SelectionEOM,
	}
}

// Optimizer searches (min_cluster_size, min_samples) for the labeling with
// the best validity score.
type Optimizer struct {
	strategy DensityStrategy
	scorer   ValidityScorer
	config   OptimizerConfig
	log      *slog.Logger
}

// NewOptimizer creates a grid-search optimizer
func NewOptimizer(strategy DensityStrategy, scorer ValidityScorer, config OptimizerConfig, log *slog.Logger) *Optimizer {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.SelectionMethod == "" {
		config.SelectionMethod = SelectionEOM
	}
	if log == nil {
		log = logger.Get()
	}
	return &Optimizer{strategy: strategy, scorer: scorer, config: config, log: log}
}

type cellOutcome struct {
	params Params
	labels []int
	probs  []float64
	score  float64
}

// Optimize runs every grid cell and returns the winner. Scores compare
// strictly; ties prefer the larger min_cluster_size, then the larger
// min_samples. Empty or invalid input yields an empty Result.
func (o *Optimizer) Optimize(ctx context.Context, embeddings [][]float64, mcsRange, msRange Range) (*Result, error) {
	if err := mcsRange.Validate("min_cluster_size"); err != nil {
		return nil, err
	}
	if err := msRange.Validate("min_samples"); err != nil {
		return nil, err
	}

	fallback := Params{MinClusterSize: mcsRange.Lo, MinSamples: msRange.Lo, SelectionMethod: o.config.SelectionMethod}
	if len(embeddings) == 0 {
		return EmptyResult(fallback), nil
	}
	if err := Validate(embeddings); err != nil {
		o.log.Warn("Skipping grid search on invalid embeddings", "error", err)
		return EmptyResult(fallback), nil
	}

	return o.search(ctx, embeddings, mcsRange, msRange)
}

// search runs the grid over already validated embeddings
func (o *Optimizer) search(ctx context.Context, embeddings [][]float64, mcsRange, msRange Range) (*Result, error) {
	var cells []Params
	for _, mcs := range mcsRange.Values(o.config.GridPoints) {
		for _, ms := range msRange.Values(o.config.GridPoints) {
			cells = append(cells, Params{MinClusterSize: mcs, MinSamples: ms, SelectionMethod: o.config.SelectionMethod})
		}
	}

	o.log.Info(fmt.Sprintf("🔍 Searching %d parameter combinations over %d rows", len(cells), len(embeddings)))

	// Each goroutine writes only its own slot
	outcomes := make([]cellOutcome, len(cells))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.Workers)
	for idx := range cells {
		idx := idx
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			p := cells[idx]
			labels, probs, err := o.strategy.Cluster(groupCtx, embeddings, p)
			if err != nil {
				return errors.Wrapf(err, "clustering with %s", p)
			}
			score := o.scorer.Score(embeddings, labels)
			if !isFinite(score) {
				score = InvalidScore
			}
			outcomes[idx] = cellOutcome{params: p, labels: labels, probs: probs, score: score}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	best := 0
	trials := make([]Trial, len(outcomes))
	for i, out := range outcomes {
		trials[i] = Trial{
			Params:      out.params,
			Score:       out.score,
			NumClusters: countClusters(out.labels),
			NumNoise:    len(out.labels) - countMembers(out.labels),
		}
		o.log.Debug("Grid cell scored", "params", out.params.String(), "score", out.score, "clusters", trials[i].NumClusters)
		if i > 0 && betterCell(out, outcomes[best]) {
			best = i
		}
	}

	winner := outcomes[best]
	o.log.Info(fmt.Sprintf("✓ Selected %s (score=%.3f, clusters=%d)", winner.params, winner.score, trials[best].NumClusters))

	return &Result{
		Labels:        append([]int(nil), winner.labels...),
		Probabilities: append([]float64(nil), winner.probs...),
		Params:        winner.params,
		ValidityScore: winner.score,
		Trials:        trials,
	}, nil
}

func betterCell(a, b cellOutcome) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.params.MinClusterSize != b.params.MinClusterSize {
		return a.params.MinClusterSize > b.params.MinClusterSize
	}
	return a.params.MinSamples > b.params.MinSamples
}

func countMembers(labels []int) int {
	n := 0
	for _, l := range labels {
		if l != Noise {
			n++
		}
	}
	return n
}
