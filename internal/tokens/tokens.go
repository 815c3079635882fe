// Package tokens estimates token counts for article text so the clustering
// engine can enforce per-cluster token budgets.
package tokens

import (
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/pkoukk/tiktoken-go"

	"newsbundle/internal/logger"
)

const defaultEncoding = "cl100k_base"

// Estimator counts tokens in a piece of text
type Estimator interface {
	Count(text string) int
	Name() string
}

// HeuristicEstimator approximates tokens from the rune count
type HeuristicEstimator struct{}

// Count returns ceil(runes / 3.5) of the whitespace-normalised text
func (HeuristicEstimator) Count(text string) int {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, "\n", " ")

	charCount := utf8.RuneCountInString(text)
	return int(math.Ceil(float64(charCount) / 3.5))
}

func (HeuristicEstimator) Name() string { return "heuristic" }

// TiktokenEstimator counts BPE tokens with a tiktoken encoding
type TiktokenEstimator struct {
	encodingName string
	tke          *tiktoken.Tiktoken
	mu           sync.RWMutex
}

// NewTiktokenEstimator resolves modelOrEncoding as an encoding name first,
// then as a model name, then falls back to cl100k_base.
func NewTiktokenEstimator(modelOrEncoding string) (*TiktokenEstimator, error) {
	if modelOrEncoding == "" {
		modelOrEncoding = defaultEncoding
	}

	encodingName := modelOrEncoding
	tke, err := tiktoken.GetEncoding(modelOrEncoding)
	if err != nil {
		tke, err = tiktoken.EncodingForModel(modelOrEncoding)
		if err != nil {
			tke, err = tiktoken.GetEncoding(defaultEncoding)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to get default encoding %q", defaultEncoding)
			}
			encodingName = defaultEncoding
		}
	}

	return &TiktokenEstimator{encodingName: encodingName, tke: tke}, nil
}

// Count returns the number of BPE tokens in text
func (e *TiktokenEstimator) Count(text string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.tke.Encode(text, nil, nil))
}

func (e *TiktokenEstimator) Name() string { return "tiktoken:" + e.encodingName }

// Config selects an estimator
type Config struct {
	Estimator string // heuristic or tiktoken
	Model     string
	Encoding  string
}

// New builds the configured estimator. A tiktoken estimator that cannot load
// its encoding (for example without network access) degrades to the
// heuristic with a warning.
func New(cfg Config) (Estimator, error) {
	switch strings.ToLower(cfg.Estimator) {
	case "", "heuristic":
		return HeuristicEstimator{}, nil
	case "tiktoken":
		name := cfg.Encoding
		if name == "" {
			name = cfg.Model
		}
		est, err := NewTiktokenEstimator(name)
		if err != nil {
			logger.Warn("Tiktoken unavailable, using heuristic token estimator", "error", err)
			return HeuristicEstimator{}, nil
		}
		return est, nil
	default:
		return nil, errors.WithHint(
			errors.Newf("unknown token estimator %q", cfg.Estimator),
			"use one of: heuristic, tiktoken")
	}
}

// Counts builds a token count vector parallel to texts
func Counts(est Estimator, texts []string) []int {
	counts := make([]int, len(texts))
	for i, text := range texts {
		counts[i] = est.Count(text)
	}
	return counts
}
