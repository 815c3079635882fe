package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"newsbundle/internal/clustering"
	"newsbundle/internal/core"
	"newsbundle/internal/logger"
	"newsbundle/internal/tokens"
)

var (
	// ErrClusteringTimeout is returned when the engine does not finish within Config.Timeout
	ErrClusteringTimeout = errors.New("clustering timed out")
	// ErrNoEmbedder is returned when articles lack embeddings and no embedder is configured
	ErrNoEmbedder = errors.New("articles without embeddings and no embedder configured")
)

// Config holds cluster stage configuration
type Config struct {
	Optimize bool          // Grid-search parameters instead of using the configured ones
	Timeout  time.Duration // Zero disables the timeout
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Optimize: true,
		Timeout:  60 * time.Second,
	}
}

// ClusterStage turns articles into topic clusters: it fills in missing
// embeddings and token counts, runs the engine, and builds TopicClusters.
type ClusterStage struct {
	engine    Engine
	embedder  Embedder
	estimator TokenEstimator
	config    Config
	log       *slog.Logger
}

// NewClusterStage creates a stage. embedder may be nil when every article
// carries an embedding; a nil estimator uses the heuristic estimator.
func NewClusterStage(engine Engine, embedder Embedder, estimator TokenEstimator, config Config, log *slog.Logger) *ClusterStage {
	if estimator == nil {
		estimator = tokens.HeuristicEstimator{}
	}
	if log == nil {
		log = logger.Get()
	}
	return &ClusterStage{
		engine:    engine,
		embedder:  embedder,
		estimator: estimator,
		config:    config,
		log:       log,
	}
}

// StageStats tracks stage execution metrics
type StageStats struct {
	Articles       int
	Embedded       int // Embeddings generated by this run
	Estimated      int // Token counts estimated by this run
	Clusters       int
	Noise          int
	ProcessingTime time.Duration
}

// StageResult is the output of a stage run
type StageResult struct {
	Skipped         bool // Too little usable data to cluster
	Result          *clustering.Result
	Articles        []core.Article // Input articles with embeddings and token counts filled in
	Topics          []core.TopicCluster
	NoiseArticleIDs []string
	Stats           StageStats
}

type engineOutcome struct {
	result *clustering.Result
	err    error
}

// Run clusters articles. The input slice and its articles are not modified.
func (s *ClusterStage) Run(ctx context.Context, articles []core.Article) (*StageResult, error) {
	startTime := time.Now()
	stats := StageStats{Articles: len(articles)}

	prepared := make([]core.Article, len(articles))
	copy(prepared, articles)

	embedded, err := s.fillEmbeddings(ctx, prepared)
	if err != nil {
		return nil, err
	}
	stats.Embedded = embedded
	stats.Estimated = s.fillTokenCounts(prepared)

	embeddings := make([][]float64, len(prepared))
	tokenCounts := make([]int, len(prepared))
	for i, a := range prepared {
		embeddings[i] = a.Embedding
		tokenCounts[i] = a.Tokens()
	}

	s.log.Info(fmt.Sprintf("🔗 Clustering %d articles", len(prepared)),
		"optimize", s.config.Optimize, "embedded", stats.Embedded, "estimated_tokens", stats.Estimated)

	result, err := s.runEngine(ctx, embeddings, tokenCounts)
	if err != nil {
		return nil, err
	}

	stageResult := &StageResult{Result: result, Articles: prepared}
	if result.IsEmpty() {
		s.log.Warn("⚠️ Not enough usable data to cluster, skipping", "articles", len(prepared))
		stageResult.Skipped = true
		stats.ProcessingTime = time.Since(startTime)
		stageResult.Stats = stats
		return stageResult, nil
	}

	stageResult.Topics, stageResult.NoiseArticleIDs = buildTopics(prepared, result)
	stats.Clusters = len(stageResult.Topics)
	stats.Noise = len(stageResult.NoiseArticleIDs)
	stats.ProcessingTime = time.Since(startTime)
	stageResult.Stats = stats

	s.log.Info(fmt.Sprintf("✓ Created %d topic clusters", stats.Clusters),
		"noise", stats.Noise, "params", result.Params.String(),
		"validity_score", result.ValidityScore, "duration", stats.ProcessingTime)
	return stageResult, nil
}

// fillEmbeddings embeds articles that have none, in one batch
func (s *ClusterStage) fillEmbeddings(ctx context.Context, articles []core.Article) (int, error) {
	var missing []int
	for i, a := range articles {
		if len(a.Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	if s.embedder == nil {
		return 0, errors.WithHint(
			errors.Wrapf(ErrNoEmbedder, "%d of %d articles", len(missing), len(articles)),
			"configure an embedding API key or include embeddings in the input")
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = articles[i].EmbeddingText()
	}

	s.log.Info(fmt.Sprintf("🧠 Generating embeddings for %d articles", len(missing)))
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, errors.Wrap(err, "failed to generate embeddings")
	}
	if len(vectors) != len(missing) {
		return 0, errors.Newf("embedder returned %d vectors for %d texts", len(vectors), len(missing))
	}
	for j, i := range missing {
		articles[i].Embedding = vectors[j]
	}
	return len(missing), nil
}

func (s *ClusterStage) fillTokenCounts(articles []core.Article) int {
	estimated := 0
	for i := range articles {
		if !articles[i].HasTokenCount() {
			articles[i].TokenCount = core.TokenCount(s.estimator.Count(articles[i].TokenText()))
			estimated++
		}
	}
	return estimated
}

// runEngine runs clustering and splitting on a goroutine under the stage
// timeout. The engine itself checks ctx between grid cells and splits.
func (s *ClusterStage) runEngine(ctx context.Context, embeddings [][]float64, tokenCounts []int) (*clustering.Result, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
	}
	defer cancel()

	done := make(chan engineOutcome, 1)
	go func() {
		result, err := s.cluster(runCtx, embeddings, tokenCounts)
		done <- engineOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, errors.Wrapf(ErrClusteringTimeout, "after %s", s.config.Timeout)
			}
			return nil, out.err
		}
		return out.result, nil
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Error("Clustering exceeded timeout", "timeout", s.config.Timeout, "articles", len(embeddings))
		return nil, errors.Wrapf(ErrClusteringTimeout, "after %s", s.config.Timeout)
	}
}

func (s *ClusterStage) cluster(ctx context.Context, embeddings [][]float64, tokenCounts []int) (*clustering.Result, error) {
	settings := s.engine.Settings()

	var (
		result *clustering.Result
		err    error
	)
	if s.config.Optimize {
		result, err = s.engine.OptimizeClustering(ctx, embeddings, settings.MinClusterSizeRange, settings.MinSamplesRange)
	} else {
		result, err = s.engine.Cluster(ctx, embeddings, settings.Params())
	}
	if err != nil {
		return nil, err
	}
	if result.IsEmpty() {
		return result, nil
	}

	labels, probs, err := s.engine.RecursiveCluster(ctx, embeddings, result.Labels, result.Probabilities, tokenCounts)
	if err != nil {
		return nil, errors.Wrap(err, "splitting oversized clusters")
	}

	final := *result
	final.Labels = labels
	final.Probabilities = probs
	return &final, nil
}
