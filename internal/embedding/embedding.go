// Package embedding turns article text into vectors for clustering.
package embedding

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"google.golang.org/genai"

	"newsbundle/internal/logger"
)

const (
	DefaultModel      = "gemini-embedding-001"
	DefaultDimensions = 768
	// Gemini accepts at most this many contents per EmbedContent call
	maxBatchSize = 100
)

var (
	ErrMissingAPIKey  = errors.New("embedding API key is not configured")
	ErrNotInitialized = errors.New("embedder is not initialized")
)

// Embedder produces one embedding per input text
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Config configures the Gemini embedder
type Config struct {
	APIKey     string
	Model      string
	Dimensions int
}

// GeminiEmbedder calls the Gemini embedding API. Init must be called before
// Embed and Close releases the client.
type GeminiEmbedder struct {
	config Config
	mu     sync.RWMutex
	client *genai.Client
}

// NewGeminiEmbedder validates the config without touching the network
func NewGeminiEmbedder(config Config) (*GeminiEmbedder, error) {
	if config.APIKey == "" {
		return nil, errors.WithHint(ErrMissingAPIKey,
			"set GEMINI_API_KEY or embedding.api_key, or supply embeddings in the input file")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Dimensions <= 0 {
		config.Dimensions = DefaultDimensions
	}
	return &GeminiEmbedder{config: config}, nil
}

// Init creates the Gemini client
func (e *GeminiEmbedder) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create Gemini client")
	}
	e.client = client
	return nil
}

// Close drops the client; Init may be called again afterwards
func (e *GeminiEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.client = nil
	return nil
}

// Embed returns embeddings parallel to texts
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.mu.RLock()
	client := e.client
	e.mu.RUnlock()
	if client == nil {
		return nil, ErrNotInitialized
	}

	dims := int32(e.config.Dimensions)
	config := &genai.EmbedContentConfig{OutputDimensionality: &dims}

	out := make([][]float64, 0, len(texts))
	for _, batch := range batches(texts, maxBatchSize) {
		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = &genai.Content{
				Parts: []*genai.Part{{Text: text}},
				Role:  "user",
			}
		}

		resp, err := client.Models.EmbedContent(ctx, e.config.Model, contents, config)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate embeddings")
		}
		if resp == nil || len(resp.Embeddings) != len(batch) {
			return nil, errors.Newf("expected %d embeddings from API, got %d", len(batch), embeddingCount(resp))
		}
		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, errors.Newf("no embedding values returned for text %d", len(out)+i)
			}
			out = append(out, toFloat64(emb.Values))
		}
	}

	logger.Debug("Generated embeddings", "count", len(out), "model", e.config.Model, "dims", e.config.Dimensions)
	return out, nil
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}

func batches(texts []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[start:end])
	}
	return out
}

func toFloat64(values []float32) []float64 {
	embedding := make([]float64, len(values))
	for i, val := range values {
		embedding[i] = float64(val)
	}
	return embedding
}
