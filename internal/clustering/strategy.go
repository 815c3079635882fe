package clustering

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Backend represents which density clustering implementation to use
type Backend string

const (
	BackendNative  Backend = "native"  // In-package HDBSCAN with min_samples and probabilities
	BackendLouvain Backend = "louvain" // Modularity communities over a k-NN graph
)

// ParseBackend converts a config string into a Backend
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BackendNative, "", "hdbscan":
		return BackendNative, nil
	case BackendLouvain:
		return BackendLouvain, nil
	default:
		return "", errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "unknown clustering backend %q", s),
			"use one of: native, louvain")
	}
}

// NewDensityStrategy builds the density backend for the given settings
func NewDensityStrategy(backend Backend, metric Metric) DensityStrategy {
	switch backend {
	case BackendLouvain:
		return NewLouvain(metric)
	default:
		return NewHDBSCAN(metric)
	}
}
