package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsbundle/internal/clustering"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "newsbundle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func freshConfig(t *testing.T) {
	t.Helper()
	Reset()
	t.Cleanup(Reset)
	t.Setenv("DEBUG", "")
	t.Setenv("NEWSBUNDLE_DEBUG", "")
}

func TestLoadDefaults(t *testing.T) {
	freshConfig(t)

	cfg, err := Load(writeConfig(t, "app:\n  debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Clustering.MinClusterSize)
	assert.Equal(t, 1, cfg.Clustering.MinSamples)
	assert.Equal(t, "eom", cfg.Clustering.SelectionMethod)
	assert.Equal(t, []int{3, 10}, cfg.Clustering.MinClusterSizeRange)
	assert.Equal(t, []int{1, 5}, cfg.Clustering.MinSamplesRange)
	assert.True(t, cfg.Clustering.Optimize)
	assert.Equal(t, 60*time.Second, cfg.Clustering.TimeoutDuration())
	assert.Equal(t, "heuristic", cfg.Tokens.Estimator)
	assert.Equal(t, "gemini", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, cfg.App.DataDir, cfg.Store.Directory)

	settings, err := cfg.Clustering.Settings()
	require.NoError(t, err)
	assert.Equal(t, clustering.DefaultSettings(), settings)
}

func TestLoadFromFile(t *testing.T) {
	freshConfig(t)

	path := writeConfig(t, `
clustering:
  hdbscan_min_cluster_size: 5
  hdbscan_min_samples: 2
  hdbscan_cluster_selection_method: leaf
  max_tokens_per_cluster: 4000
  min_cluster_size_range: [4, 12]
  min_samples_range: [2, 6]
  grid_points: 3
  workers: 4
  metric: euclidean
  validity_metric: silhouette
  backend: louvain
  timeout: 5s
  enable_umap_auto: true
  umap_n_components: 8
tokens:
  estimator: tiktoken
store:
  directory: /tmp/newsbundle-runs
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	settings, err := cfg.Clustering.Settings()
	require.NoError(t, err)
	assert.Equal(t, clustering.Params{MinClusterSize: 5, MinSamples: 2, SelectionMethod: clustering.SelectionLeaf}, settings.Params())
	assert.Equal(t, clustering.Range{Lo: 4, Hi: 12}, settings.MinClusterSizeRange)
	assert.Equal(t, clustering.Range{Lo: 2, Hi: 6}, settings.MinSamplesRange)
	assert.Equal(t, 3, settings.GridPoints)
	assert.Equal(t, 4, settings.Workers)
	assert.Equal(t, 4000, settings.MaxTokensPerCluster)
	assert.Equal(t, clustering.MetricEuclidean, settings.Metric)
	assert.Equal(t, "silhouette", settings.ValidityMetric)
	assert.Equal(t, clustering.BackendLouvain, settings.Backend)
	assert.True(t, settings.Reduce.Enabled)
	assert.Equal(t, 8, settings.Reduce.Components)
	assert.Equal(t, 5*time.Second, cfg.Clustering.TimeoutDuration())
	assert.Equal(t, "tiktoken", cfg.Tokens.Estimator)
	assert.Equal(t, "/tmp/newsbundle-runs", cfg.Store.Directory)
}

func TestLoadEnvOverride(t *testing.T) {
	freshConfig(t)
	t.Setenv("NEWSBUNDLE_CLUSTERING_HDBSCAN_MIN_CLUSTER_SIZE", "7")
	t.Setenv("NEWSBUNDLE_LOGGING_LEVEL", "warn")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("NEWSBUNDLE_EMBEDDING_API_KEY", "")

	cfg, err := Load(writeConfig(t, "app:\n  debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Clustering.MinClusterSize)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "test-key", cfg.Embedding.APIKey)
	assert.True(t, cfg.Embedding.HasValidKey())
}

func TestLoadCachesUntilReset(t *testing.T) {
	freshConfig(t)

	first, err := Load(writeConfig(t, "clustering:\n  hdbscan_min_cluster_size: 4\n"))
	require.NoError(t, err)
	second, err := Load(writeConfig(t, "clustering:\n  hdbscan_min_cluster_size: 9\n"))
	require.NoError(t, err)
	assert.Same(t, first, second)

	Reset()
	third, err := Load(writeConfig(t, "clustering:\n  hdbscan_min_cluster_size: 9\n"))
	require.NoError(t, err)
	assert.Equal(t, 9, third.Clustering.MinClusterSize)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "selection method",
			body: "clustering:\n  hdbscan_cluster_selection_method: bogus\n",
			want: "selection method",
		},
		{
			name: "range shape",
			body: "clustering:\n  min_cluster_size_range: [3]\n",
			want: "exactly two values",
		},
		{
			name: "inverted range",
			body: "clustering:\n  min_samples_range: [5, 1]\n",
			want: "min_samples_range",
		},
		{
			name: "estimator",
			body: "tokens:\n  estimator: words\n",
			want: "Unknown token estimator",
		},
		{
			name: "provider",
			body: "embedding:\n  provider: openai\n",
			want: "Unknown embedding provider",
		},
		{
			name: "duration",
			body: "clustering:\n  timeout: soon\n",
			want: "invalid duration for clustering.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freshConfig(t)
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseRange(t *testing.T) {
	r, err := parseRange("min_cluster_size_range", []int{2, 8})
	require.NoError(t, err)
	assert.Equal(t, clustering.Range{Lo: 2, Hi: 8}, r)

	_, err = parseRange("min_cluster_size_range", []int{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, clustering.ErrInvalidParams))
}

func TestIsValidAPIKey(t *testing.T) {
	assert.False(t, isValidAPIKey(""))
	assert.False(t, isValidAPIKey("your-api-key"))
	assert.False(t, isValidAPIKey("CHANGE_ME"))
	assert.True(t, isValidAPIKey("AIza-real-looking-key"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "runs"), expandPath("~/runs"))

	t.Setenv("NEWSBUNDLE_TEST_DIR", "/var/data")
	assert.Equal(t, "/var/data/runs", expandPath("$NEWSBUNDLE_TEST_DIR/runs"))
}
