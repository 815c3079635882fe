package clustering

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"

	"newsbundle/internal/logger"
)

// Settings is the full engine configuration. internal/config builds it
// from the clustering section.
type Settings struct {
	MinClusterSize  int
	MinSamples      int
	SelectionMethod SelectionMethod

	MinClusterSizeRange Range
	MinSamplesRange     Range
	GridPoints          int
	Workers             int

	RecursiveEnabled    bool
	MaxTokensPerCluster int
	MinSplitSize        int
	MaxSplitDepth       int

	Metric         Metric
	ValidityMetric string // "dbcv" (silhouette fallback) or "silhouette"
	Backend        Backend

	Reduce ReduceConfig
}

// DefaultSettings returns sensible defaults for news-article embeddings
func DefaultSettings() Settings {
	return Settings{
		MinClusterSize:      3,
		MinSamples:          1,
		SelectionMethod:     SelectionEOM,
		MinClusterSizeRange: Range{Lo: 3, Hi: 10},
		MinSamplesRange:     Range{Lo: 1, Hi: 5},
		GridPoints:          2,
		Workers:             1,
		RecursiveEnabled:    true,
		MaxTokensPerCluster: 8000,
		MinSplitSize:        4,
		MaxSplitDepth:       DefaultMaxSplitDepth,
		Metric:              MetricCosine,
		ValidityMetric:      "dbcv",
		Backend:             BackendNative,
		Reduce:              DefaultReduceConfig(),
	}
}

// Params returns the single-configuration parameters
func (s Settings) Params() Params {
	return Params{
		MinClusterSize:  s.MinClusterSize,
		MinSamples:      s.MinSamples,
		SelectionMethod: s.SelectionMethod,
	}
}

// Split returns the recursive splitter configuration
func (s Settings) Split() SplitConfig {
	return SplitConfig{
		Enabled:             s.RecursiveEnabled,
		MaxTokensPerCluster: s.MaxTokensPerCluster,
		MinSplitSize:        s.MinSplitSize,
		MaxDepth:            s.MaxSplitDepth,
	}
}

// Validate checks every setting
func (s Settings) Validate() error {
	if err := s.Params().Validate(); err != nil {
		return err
	}
	if err := s.MinClusterSizeRange.Validate("min_cluster_size"); err != nil {
		return err
	}
	if err := s.MinSamplesRange.Validate("min_samples"); err != nil {
		return err
	}
	if err := s.Split().Validate(); err != nil {
		return err
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return err
	}
	if _, err := ParseBackend(string(s.Backend)); err != nil {
		return err
	}
	switch s.ValidityMetric {
	case "", "dbcv", "silhouette":
	default:
		return errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "unknown validity metric %q", s.ValidityMetric),
			"use one of: dbcv, silhouette")
	}
	if s.Workers < 0 {
		return errors.Wrapf(ErrInvalidParams, "workers must be >= 0, got %d", s.Workers)
	}
	return nil
}

// Option customises a Clusterer
type Option func(*Clusterer)

// WithDensityStrategy replaces the density backend
func WithDensityStrategy(strategy DensityStrategy) Option {
	return func(c *Clusterer) { c.strategy = strategy }
}

// WithScorer replaces the validity scorer
func WithScorer(scorer ValidityScorer) Option {
	return func(c *Clusterer) { c.scorer = scorer }
}

// WithBisector replaces the splitter's bisection algorithm
func WithBisector(bisector Bisector) Option {
	return func(c *Clusterer) { c.bisector = bisector }
}

// WithReducer replaces the preprocessing reducer
func WithReducer(reducer Reducer) Option {
	return func(c *Clusterer) { c.reducer = reducer }
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(c *Clusterer) { c.log = log }
}

// Clusterer is the engine facade. It holds no per-call state and is safe
// for concurrent use.
type Clusterer struct {
	settings  Settings
	strategy  DensityStrategy
	scorer    ValidityScorer
	bisector  Bisector
	reducer   Reducer
	optimizer *Optimizer
	splitter  *Splitter
	log       *slog.Logger
}

// New creates a Clusterer. Components not supplied through options are
// built from settings.
func New(settings Settings, opts ...Option) (*Clusterer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	c := &Clusterer{settings: settings}
	for _, opt := range opts {
		opt(c)
	}

	if c.log == nil {
		c.log = logger.Get()
	}
	if c.strategy == nil {
		c.strategy = NewDensityStrategy(settings.Backend, settings.Metric)
	}
	if c.scorer == nil {
		c.scorer = NewScorer(settings.ValidityMetric, settings.Metric)
	}
	if c.bisector == nil {
		c.bisector = NewKMeansBisector(DefaultKMeansConfig())
	}
	if c.reducer == nil {
		c.reducer = NewPCAReducer(settings.Reduce, c.log)
	}

	c.optimizer = NewOptimizer(c.strategy, c.scorer, OptimizerConfig{
		GridPoints:      settings.GridPoints,
		Workers:         settings.Workers,
		SelectionMethod: settings.SelectionMethod,
	}, c.log)
	c.splitter = NewSplitter(c.bisector, c.log)

	return c, nil
}

// Settings returns the settings the Clusterer was built with
func (c *Clusterer) Settings() Settings {
	return c.settings
}

// prepare validates and optionally reduces embeddings. ok is false when
// the input cannot be clustered.
func (c *Clusterer) prepare(embeddings [][]float64) (prepared [][]float64, ok bool, err error) {
	if err := Validate(embeddings); err != nil {
		c.log.Warn("Embeddings rejected, returning empty result", "error", err, "rows", len(embeddings))
		return nil, false, nil
	}
	prepared, err = c.reducer.Reduce(embeddings)
	if err != nil {
		return nil, false, errors.Wrap(err, "reducing embeddings")
	}
	return prepared, true, nil
}

// Cluster runs a single density clustering attempt with params
func (c *Clusterer) Cluster(ctx context.Context, embeddings [][]float64, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	prepared, ok, err := c.prepare(embeddings)
	if err != nil {
		return nil, err
	}
	if !ok {
		return EmptyResult(params), nil
	}

	labels, probs, err := c.strategy.Cluster(ctx, prepared, params)
	if err != nil {
		return nil, errors.Wrapf(err, "clustering with %s", params)
	}

	score := c.scorer.Score(prepared, labels)
	if !isFinite(score) {
		score = InvalidScore
	}

	c.log.Info("Clustering complete",
		"params", params.String(), "clusters", countClusters(labels),
		"noise", len(labels)-countMembers(labels), "score", score)

	return &Result{
		Labels:        labels,
		Probabilities: probs,
		Params:        params,
		ValidityScore: score,
	}, nil
}

// OptimizeClustering grid-searches the parameter ranges and returns the best Result
func (c *Clusterer) OptimizeClustering(ctx context.Context, embeddings [][]float64, mcsRange, msRange Range) (*Result, error) {
	if err := mcsRange.Validate("min_cluster_size"); err != nil {
		return nil, err
	}
	if err := msRange.Validate("min_samples"); err != nil {
		return nil, err
	}

	fallback := Params{MinClusterSize: mcsRange.Lo, MinSamples: msRange.Lo, SelectionMethod: c.settings.SelectionMethod}
	if len(embeddings) == 0 {
		return EmptyResult(fallback), nil
	}

	prepared, ok, err := c.prepare(embeddings)
	if err != nil {
		return nil, err
	}
	if !ok {
		return EmptyResult(fallback), nil
	}

	return c.optimizer.search(ctx, prepared, mcsRange, msRange)
}

// RecursiveCluster splits clusters over the token budget. Embeddings that
// fail validation leave the labeling unchanged.
func (c *Clusterer) RecursiveCluster(
	ctx context.Context,
	embeddings [][]float64,
	labels []int,
	probs []float64,
	tokenCounts []int,
) ([]int, []float64, error) {
	config := c.settings.Split()
	if config.Enabled && len(labels) > 0 && len(embeddings) == len(labels) {
		if err := Validate(embeddings); err != nil {
			c.log.Warn("Embeddings rejected, skipping recursive split", "error", err)
			config.Enabled = false
		}
	}
	return c.splitter.Split(ctx, embeddings, labels, probs, tokenCounts, config)
}
