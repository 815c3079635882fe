package embedding

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiEmbedder(t *testing.T) {
	_, err := NewGeminiEmbedder(Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))

	e, err := NewGeminiEmbedder(Config{APIKey: "key"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, e.config.Model)
	assert.Equal(t, DefaultDimensions, e.config.Dimensions)
}

func TestEmbedRequiresInit(t *testing.T) {
	e, err := NewGeminiEmbedder(Config{APIKey: "key"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, e.Init(context.Background()))
	require.NoError(t, e.Close())
	_, err = e.Embed(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestBatches(t *testing.T) {
	texts := make([]string, 250)
	got := batches(texts, 100)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 100)
	assert.Len(t, got[2], 50)
	assert.Empty(t, batches(nil, 100))
}

func TestToFloat64(t *testing.T) {
	assert.Equal(t, []float64{0.5, -1, 0}, toFloat64([]float32{0.5, -1, 0}))
}
