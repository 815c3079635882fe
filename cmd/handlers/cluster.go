package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"newsbundle/internal/clustering"
	"newsbundle/internal/config"
	"newsbundle/internal/core"
	"newsbundle/internal/embedding"
	"newsbundle/internal/logger"
	"newsbundle/internal/pipeline"
	"newsbundle/internal/store"
	"newsbundle/internal/tokens"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

type clusterOptions struct {
	InputFile string
	Optimize  bool
	Save      bool
	JSON      bool
	Timeout   time.Duration
}

// NewClusterCmd creates the cluster command
func NewClusterCmd() *cobra.Command {
	opts := clusterOptions{}

	clusterCmd := &cobra.Command{
		Use:   "cluster <input.json>",
		Short: "Cluster articles from a JSON file into topic bundles",
		Long: `Cluster articles by semantic similarity.

The input is a JSON array of articles, or an object with an "articles"
array. Each article has an id, title and text, and optionally an embedding
and a token_count. Missing embeddings are generated with Gemini; missing
token counts are estimated.

Topics whose total tokens exceed clustering.max_tokens_per_cluster are
split until they fit.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			opts.InputFile = args[0]
			if !cmd.Flags().Changed("optimize") {
				opts.Optimize = cfg.Clustering.Optimize
			}
			return runCluster(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	clusterCmd.Flags().BoolVar(&opts.Optimize, "optimize", true, "Grid-search min_cluster_size and min_samples (default from clustering.optimize)")
	clusterCmd.Flags().BoolVar(&opts.Save, "save", false, "Persist the run to the run store")
	clusterCmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the result as JSON")
	clusterCmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "Override clustering.timeout")

	return clusterCmd
}

func runCluster(ctx context.Context, cfg *config.Config, opts clusterOptions, out io.Writer) error {
	articles, err := loadArticles(opts.InputFile)
	if err != nil {
		return err
	}

	settings, err := cfg.Clustering.Settings()
	if err != nil {
		return err
	}
	engine, err := clustering.New(settings, clustering.WithLogger(logger.Get()))
	if err != nil {
		return errors.Wrap(err, "failed to create clustering engine")
	}

	estimator, err := tokens.New(tokens.Config{
		Estimator: cfg.Tokens.Estimator,
		Model:     cfg.Tokens.Model,
		Encoding:  cfg.Tokens.Encoding,
	})
	if err != nil {
		return err
	}

	embedder, closeEmbedder, err := newEmbedder(ctx, cfg.Embedding, articles)
	if err != nil {
		return err
	}
	defer closeEmbedder()

	timeout := cfg.Clustering.TimeoutDuration()
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	stage := pipeline.NewClusterStage(engine, embedder, estimator,
		pipeline.Config{Optimize: opts.Optimize, Timeout: timeout}, logger.Get())
	result, err := stage.Run(ctx, articles)
	if err != nil {
		return errors.Wrap(err, "failed to cluster articles")
	}

	var runID string
	if opts.Save && !result.Skipped {
		runID, err = saveRun(ctx, cfg.Store.Directory, opts.InputFile, result)
		if err != nil {
			return err
		}
	}

	if opts.JSON {
		return writeJSON(out, newClusterReport(runID, result))
	}
	printTopics(out, result, runID, settings.Metric)
	return nil
}

// loadArticles reads a JSON array of articles or an {"articles": [...]} object
func loadArticles(path string) ([]core.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	var articles []core.Article
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		err = json.Unmarshal(trimmed, &articles)
	} else {
		var wrapper struct {
			Articles []core.Article `json:"articles"`
		}
		err = json.Unmarshal(trimmed, &wrapper)
		articles = wrapper.Articles
	}
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(err, "failed to parse %s", path),
			`expected a JSON array of {"id", "title", "text"} objects`)
	}

	seen := make(map[string]bool, len(articles))
	for i := range articles {
		if articles[i].ID == "" {
			articles[i].ID = fmt.Sprintf("article-%d", i+1)
		}
		if seen[articles[i].ID] {
			return nil, errors.Newf("duplicate article id %q in %s", articles[i].ID, path)
		}
		seen[articles[i].ID] = true
	}
	return articles, nil
}

// newEmbedder returns a Gemini embedder when some article lacks an
// embedding and a key is configured, otherwise nil.
func newEmbedder(ctx context.Context, cfg config.Embedding, articles []core.Article) (pipeline.Embedder, func(), error) {
	noop := func() {}

	needed := false
	for _, a := range articles {
		if len(a.Embedding) == 0 {
			needed = true
			break
		}
	}
	if !needed || cfg.Provider != "gemini" || !cfg.HasValidKey() {
		return nil, noop, nil
	}

	gemini, err := embedding.NewGeminiEmbedder(embedding.Config{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
	})
	if err != nil {
		return nil, noop, err
	}
	initCtx, cancel := context.WithTimeout(ctx, cfg.TimeoutDuration())
	defer cancel()
	if err := gemini.Init(initCtx); err != nil {
		return nil, noop, err
	}
	return gemini, func() {
		if err := gemini.Close(); err != nil {
			logger.Error("Failed to close embedder", err)
		}
	}, nil
}

func saveRun(ctx context.Context, dataDir, source string, result *pipeline.StageResult) (string, error) {
	runStore, err := store.NewStore(dataDir)
	if err != nil {
		return "", errors.Wrap(err, "failed to initialize run store")
	}
	defer func() {
		if err := runStore.Close(); err != nil {
			logger.Error("Failed to close run store", err)
		}
	}()

	ids := make([]string, len(result.Articles))
	for i, a := range result.Articles {
		ids[i] = a.ID
	}
	run := store.NewRun(source, ids, result.Result, result.Topics, result.NoiseArticleIDs)
	if err := runStore.SaveRun(ctx, run); err != nil {
		return "", err
	}
	logger.Info("Saved clustering run", "id", run.ID, "path", runStore.Path())
	return run.ID, nil
}

// clusterReport is the --json view of a stage result
type clusterReport struct {
	RunID           string              `json:"run_id,omitempty"`
	Skipped         bool                `json:"skipped"`
	Params          clustering.Params   `json:"params"`
	ValidityScore   float64             `json:"validity_score"`
	Topics          []core.TopicCluster `json:"topics"`
	NoiseArticleIDs []string            `json:"noise_article_ids"`
}

func newClusterReport(runID string, result *pipeline.StageResult) clusterReport {
	report := clusterReport{
		RunID:           runID,
		Skipped:         result.Skipped,
		Topics:          result.Topics,
		NoiseArticleIDs: result.NoiseArticleIDs,
	}
	if report.Topics == nil {
		report.Topics = []core.TopicCluster{}
	}
	if result.Result != nil {
		report.Params = result.Result.Params
		report.ValidityScore = result.Result.ValidityScore
	}
	return report
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printTopics(out io.Writer, result *pipeline.StageResult, runID string, metric clustering.Metric) {
	if result.Skipped {
		fmt.Fprintf(out, "⚠️  Not enough usable articles to cluster (%d provided)\n", result.Stats.Articles)
		return
	}

	titles := make(map[string]string, len(result.Articles))
	for _, a := range result.Articles {
		titles[a.ID] = a.Title
	}

	fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("🔗 Clustered %d articles into %d topics (%d noise)",
		result.Stats.Articles, len(result.Topics), len(result.NoiseArticleIDs))))
	fmt.Fprintf(out, "   Params: %s | Validity score: %.3f | %s\n",
		result.Result.Params, result.Result.ValidityScore, result.Stats.ProcessingTime.Round(time.Millisecond))
	if len(result.Topics) > 1 {
		embeddings := make([][]float64, len(result.Articles))
		for i, a := range result.Articles {
			embeddings[i] = a.Embedding
		}
		analysis := clustering.AnalyzeSilhouette(embeddings, result.Result.Labels, metric)
		fmt.Fprintf(out, "   Silhouette: %.3f (%s)\n", analysis.OverallScore, analysis.Quality)
	}
	fmt.Fprintln(out)

	for i, topic := range result.Topics {
		fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("%d. %s", i+1, topic.Label)))
		fmt.Fprintf(out, "   %d articles · %d tokens · mean probability %.2f\n",
			len(topic.ArticleIDs), topic.TokenCount, topic.MeanProbability)
		if len(topic.Keywords) > 0 {
			fmt.Fprintf(out, "   Keywords: %s\n", strings.Join(topic.Keywords, ", "))
		}
		for _, id := range topic.ArticleIDs {
			fmt.Fprintf(out, "   - %s %s\n", titles[id], dimStyle.Render("("+id+")"))
		}
		fmt.Fprintln(out)
	}

	if len(result.NoiseArticleIDs) > 0 {
		fmt.Fprintf(out, "🔇 Unclustered: %s\n", strings.Join(result.NoiseArticleIDs, ", "))
	}
	if runID != "" {
		fmt.Fprintf(out, "💾 Saved run %s\n", runID)
	}
}
