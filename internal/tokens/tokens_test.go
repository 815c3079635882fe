package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeuristicEstimator(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "  \n\t ", 0},
		{"seven runes", "abcdefg", 2},
		{"eight runes", "abcdefgh", 3},
		{"newlines normalised", "abc\ndefg", 3},
		{"multibyte", "héllo wörld", 4},
	}

	est := HeuristicEstimator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, est.Count(tt.text))
		})
	}
	assert.Equal(t, "heuristic", est.Name())
}

func TestCounts(t *testing.T) {
	counts := Counts(HeuristicEstimator{}, []string{"", "abcdefg", strings.Repeat("x", 35)})
	assert.Equal(t, []int{0, 2, 10}, counts)
	assert.Empty(t, Counts(HeuristicEstimator{}, nil))
}

func TestNew(t *testing.T) {
	est, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, HeuristicEstimator{}, est)

	est, err = New(Config{Estimator: "Heuristic"})
	require.NoError(t, err)
	assert.IsType(t, HeuristicEstimator{}, est)

	_, err = New(Config{Estimator: "words"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown token estimator")
}

func TestNewTiktokenDegradesGracefully(t *testing.T) {
	// Succeeds with either tiktoken or the heuristic depending on whether
	// the encoding can be loaded in this environment.
	est, err := New(Config{Estimator: "tiktoken", Model: "gpt-4o"})
	require.NoError(t, err)
	require.NotNil(t, est)
	assert.Greater(t, est.Count("Markets rallied after the central bank held rates."), 0)
}
