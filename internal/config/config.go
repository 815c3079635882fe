package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"newsbundle/internal/clustering"
)

// EnvPrefix prefixes every environment variable override, e.g.
// NEWSBUNDLE_CLUSTERING_HDBSCAN_MIN_CLUSTER_SIZE
const EnvPrefix = "NEWSBUNDLE"

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	Clustering Clustering `mapstructure:"clustering"`
	Embedding  Embedding  `mapstructure:"embedding"`
	Tokens     Tokens     `mapstructure:"tokens"`
	Store      Store      `mapstructure:"store"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"-"` // Config file in use, empty when none was found
}

// Clustering holds the clustering engine configuration
type Clustering struct {
	MinClusterSize  int    `mapstructure:"hdbscan_min_cluster_size"`
	MinSamples      int    `mapstructure:"hdbscan_min_samples"`
	SelectionMethod string `mapstructure:"hdbscan_cluster_selection_method"`

	RecursiveEnabled    bool `mapstructure:"recursive_enabled"`
	MaxTokensPerCluster int  `mapstructure:"max_tokens_per_cluster"`
	MinSplitSize        int  `mapstructure:"min_split_size"`
	MaxSplitDepth       int  `mapstructure:"max_split_depth"`

	Optimize            bool  `mapstructure:"optimize"`
	MinClusterSizeRange []int `mapstructure:"min_cluster_size_range"`
	MinSamplesRange     []int `mapstructure:"min_samples_range"`
	GridPoints          int   `mapstructure:"grid_points"`
	Workers             int   `mapstructure:"workers"`

	Metric         string `mapstructure:"metric"`
	ValidityMetric string `mapstructure:"validity_metric"`
	Backend        string `mapstructure:"backend"`
	Timeout        string `mapstructure:"timeout"`

	EnableUMAPAuto         bool    `mapstructure:"enable_umap_auto"`
	UMAPThresholdSentences int     `mapstructure:"umap_threshold_sentences"`
	UMAPNNeighbors         int     `mapstructure:"umap_n_neighbors"`
	UMAPNComponents        int     `mapstructure:"umap_n_components"`
	UMAPMinDist            float64 `mapstructure:"umap_min_dist"`
}

// Embedding holds embedding provider configuration
type Embedding struct {
	Provider   string `mapstructure:"provider"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	Timeout    string `mapstructure:"timeout"`
}

// Tokens holds token estimation configuration
type Tokens struct {
	Estimator string `mapstructure:"estimator"` // heuristic or tiktoken
	Model     string `mapstructure:"model"`     // tiktoken model name
	Encoding  string `mapstructure:"encoding"`  // tiktoken encoding, wins over model
}

// Store holds run store configuration
type Store struct {
	Directory string `mapstructure:"directory"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var globalConfig *Config

// Load loads the configuration from various sources
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsbundle")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}

	config.App.ConfigFile = viper.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, errors.Wrap(err, "error post-processing config")
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	defaults := clustering.DefaultSettings()

	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", ".newsbundle")

	// Clustering defaults
	viper.SetDefault("clustering.hdbscan_min_cluster_size", defaults.MinClusterSize)
	viper.SetDefault("clustering.hdbscan_min_samples", defaults.MinSamples)
	viper.SetDefault("clustering.hdbscan_cluster_selection_method", string(defaults.SelectionMethod))
	viper.SetDefault("clustering.recursive_enabled", defaults.RecursiveEnabled)
	viper.SetDefault("clustering.max_tokens_per_cluster", defaults.MaxTokensPerCluster)
	viper.SetDefault("clustering.min_split_size", defaults.MinSplitSize)
	viper.SetDefault("clustering.max_split_depth", defaults.MaxSplitDepth)
	viper.SetDefault("clustering.optimize", true)
	viper.SetDefault("clustering.min_cluster_size_range", []int{defaults.MinClusterSizeRange.Lo, defaults.MinClusterSizeRange.Hi})
	viper.SetDefault("clustering.min_samples_range", []int{defaults.MinSamplesRange.Lo, defaults.MinSamplesRange.Hi})
	viper.SetDefault("clustering.grid_points", defaults.GridPoints)
	viper.SetDefault("clustering.workers", defaults.Workers)
	viper.SetDefault("clustering.metric", string(defaults.Metric))
	viper.SetDefault("clustering.validity_metric", defaults.ValidityMetric)
	viper.SetDefault("clustering.backend", string(defaults.Backend))
	viper.SetDefault("clustering.timeout", "60s")
	viper.SetDefault("clustering.enable_umap_auto", defaults.Reduce.Enabled)
	viper.SetDefault("clustering.umap_threshold_sentences", defaults.Reduce.ThresholdRows)
	viper.SetDefault("clustering.umap_n_neighbors", defaults.Reduce.NNeighbors)
	viper.SetDefault("clustering.umap_n_components", defaults.Reduce.Components)
	viper.SetDefault("clustering.umap_min_dist", defaults.Reduce.MinDist)

	// Embedding defaults
	viper.SetDefault("embedding.provider", "gemini")
	viper.SetDefault("embedding.model", "gemini-embedding-001")
	viper.SetDefault("embedding.dimensions", 768)
	viper.SetDefault("embedding.timeout", "30s")

	// Token defaults
	viper.SetDefault("tokens.estimator", "heuristic")
	viper.SetDefault("tokens.model", "gpt-4o")

	// Store defaults
	viper.SetDefault("store.directory", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	// Gemini API key - support multiple formats
	bindEnvKeys("embedding.api_key", []string{
		"NEWSBUNDLE_EMBEDDING_API_KEY",
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"NEWSBUNDLE_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}
	if config.Store.Directory == "" {
		config.Store.Directory = config.App.DataDir
	} else {
		config.Store.Directory = expandPath(config.Store.Directory)
	}
	if config.App.Debug {
		config.Logging.Level = "debug"
	}

	durations := map[string]string{
		"clustering.timeout": config.Clustering.Timeout,
		"embedding.timeout":  config.Embedding.Timeout,
	}
	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				return errors.Newf("invalid duration for %s: %s", key, duration)
			}
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures the configuration is usable
func validateConfig(config *Config) error {
	var problems []string

	if _, err := config.Clustering.Settings(); err != nil {
		problems = append(problems, err.Error())
	}

	switch config.Tokens.Estimator {
	case "heuristic", "tiktoken":
	default:
		problems = append(problems, fmt.Sprintf("Unknown token estimator: %s. Supported: heuristic, tiktoken", config.Tokens.Estimator))
	}

	switch config.Embedding.Provider {
	case "gemini", "none":
	default:
		problems = append(problems, fmt.Sprintf("Unknown embedding provider: %s. Supported: gemini, none", config.Embedding.Provider))
	}
	if config.Embedding.Dimensions <= 0 {
		problems = append(problems, "embedding.dimensions must be positive")
	}

	if len(problems) > 0 {
		return errors.Newf("configuration errors:\n- %s", strings.Join(problems, "\n- "))
	}

	return nil
}

// Settings converts the clustering section into engine settings
func (c Clustering) Settings() (clustering.Settings, error) {
	method, err := clustering.ParseSelectionMethod(c.SelectionMethod)
	if err != nil {
		return clustering.Settings{}, err
	}
	metric, err := clustering.ParseMetric(c.Metric)
	if err != nil {
		return clustering.Settings{}, err
	}
	backend, err := clustering.ParseBackend(c.Backend)
	if err != nil {
		return clustering.Settings{}, err
	}
	mcsRange, err := parseRange("min_cluster_size_range", c.MinClusterSizeRange)
	if err != nil {
		return clustering.Settings{}, err
	}
	msRange, err := parseRange("min_samples_range", c.MinSamplesRange)
	if err != nil {
		return clustering.Settings{}, err
	}

	settings := clustering.Settings{
		MinClusterSize:      c.MinClusterSize,
		MinSamples:          c.MinSamples,
		SelectionMethod:     method,
		MinClusterSizeRange: mcsRange,
		MinSamplesRange:     msRange,
		GridPoints:          c.GridPoints,
		Workers:             c.Workers,
		RecursiveEnabled:    c.RecursiveEnabled,
		MaxTokensPerCluster: c.MaxTokensPerCluster,
		MinSplitSize:        c.MinSplitSize,
		MaxSplitDepth:       c.MaxSplitDepth,
		Metric:              metric,
		ValidityMetric:      strings.ToLower(c.ValidityMetric),
		Backend:             backend,
		Reduce: clustering.ReduceConfig{
			Enabled:       c.EnableUMAPAuto,
			ThresholdRows: c.UMAPThresholdSentences,
			Components:    c.UMAPNComponents,
			NNeighbors:    c.UMAPNNeighbors,
			MinDist:       c.UMAPMinDist,
		},
	}
	if err := settings.Validate(); err != nil {
		return clustering.Settings{}, err
	}
	return settings, nil
}

// TimeoutDuration returns the clustering timeout, zero meaning none
func (c Clustering) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// TimeoutDuration returns the embedding request timeout
func (e Embedding) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(e.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func parseRange(name string, values []int) (clustering.Range, error) {
	if len(values) != 2 {
		return clustering.Range{}, errors.WithHint(
			errors.Wrapf(clustering.ErrInvalidParams, "%s must have exactly two values, got %v", name, values),
			"write ranges as [lo, hi]")
	}
	r := clustering.Range{Lo: values[0], Hi: values[1]}
	if err := r.Validate(name); err != nil {
		return clustering.Range{}, err
	}
	return r, nil
}

// HasValidKey reports whether the API key is set and not a placeholder
func (e Embedding) HasValidKey() bool {
	return isValidAPIKey(e.APIKey)
}

// isValidAPIKey checks if an API key is valid (not empty and not a placeholder)
func isValidAPIKey(apiKey string) bool {
	if apiKey == "" {
		return false
	}

	placeholders := []string{
		"your-api-key", "your-gemini-key", "YOUR_API_KEY", "PLACEHOLDER", "TODO", "CHANGE_ME",
	}
	for _, placeholder := range placeholders {
		if apiKey == placeholder {
			return false
		}
	}

	return true
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
