package clustering

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Noise is the label assigned to points that belong to no cluster.
const Noise = -1

// SelectionMethod controls how flat clusters are extracted from the condensed tree.
type SelectionMethod string

const (
	SelectionEOM  SelectionMethod = "eom"  // Excess of mass (default)
	SelectionLeaf SelectionMethod = "leaf" // Leaves of the condensed tree only
)

// ParseSelectionMethod converts a config string into a SelectionMethod
func ParseSelectionMethod(s string) (SelectionMethod, error) {
	switch SelectionMethod(strings.ToLower(strings.TrimSpace(s))) {
	case SelectionEOM, "":
		return SelectionEOM, nil
	case SelectionLeaf:
		return SelectionLeaf, nil
	default:
		return "", errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "unknown cluster selection method %q", s),
			"use one of: eom, leaf")
	}
}

// Params holds the parameters for a single density clustering attempt.
// A Params value is never modified once a clustering attempt starts.
type Params struct {
	MinClusterSize  int             `json:"min_cluster_size"`
	MinSamples      int             `json:"min_samples"`
	SelectionMethod SelectionMethod `json:"cluster_selection_method"`
}

// Validate checks the parameter preconditions
func (p Params) Validate() error {
	if p.MinClusterSize < 1 {
		return errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "min_cluster_size must be >= 1, got %d", p.MinClusterSize),
			"set clustering.hdbscan_min_cluster_size to a positive integer")
	}
	if p.MinSamples < 1 {
		return errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "min_samples must be >= 1, got %d", p.MinSamples),
			"set clustering.hdbscan_min_samples to a positive integer")
	}
	if _, err := ParseSelectionMethod(string(p.SelectionMethod)); err != nil {
		return err
	}
	return nil
}

func (p Params) String() string {
	method := p.SelectionMethod
	if method == "" {
		method = SelectionEOM
	}
	return fmt.Sprintf("mcs=%d ms=%d method=%s", p.MinClusterSize, p.MinSamples, method)
}

// Range is an inclusive integer range used by the grid search.
type Range struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// Validate checks that the range is well formed and strictly positive
func (r Range) Validate(name string) error {
	if r.Lo < 1 {
		return errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "%s range lower bound must be >= 1, got %d", name, r.Lo),
			"ranges are inclusive integer pairs such as [5, 15]")
	}
	if r.Lo > r.Hi {
		return errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "%s range is inverted: [%d, %d]", name, r.Lo, r.Hi),
			"the lower bound must not exceed the upper bound")
	}
	return nil
}

// Values discretises the range into at most points evenly spaced integers,
// always including both endpoints. points <= 0, or points at least the size
// of the range, yields every integer in the range. points == 1 behaves as 2.
func (r Range) Values(points int) []int {
	if points == 1 {
		points = 2
	}
	size := r.Hi - r.Lo + 1
	if points <= 0 || points >= size {
		values := make([]int, 0, size)
		for v := r.Lo; v <= r.Hi; v++ {
			values = append(values, v)
		}
		return values
	}

	values := make([]int, 0, points)
	step := float64(r.Hi-r.Lo) / float64(points-1)
	last := r.Lo - 1
	for i := 0; i < points; i++ {
		v := r.Lo + int(float64(i)*step+0.5)
		if i == points-1 {
			v = r.Hi
		}
		if v != last {
			values = append(values, v)
			last = v
		}
	}
	return values
}

// Trial records the score of one grid cell
type Trial struct {
	Params      Params  `json:"params"`
	Score       float64 `json:"score"`
	NumClusters int     `json:"num_clusters"`
	NumNoise    int     `json:"num_noise"`
}

// Result is the output of a clustering attempt or a grid search.
type Result struct {
	Labels        []int     `json:"labels"`
	Probabilities []float64 `json:"probabilities"`
	Params        Params    `json:"params"`
	ValidityScore float64   `json:"validity_score"`
	Trials        []Trial   `json:"trials,omitempty"` // Populated by grid search only
}

// EmptyResult is returned for input that cannot be clustered
func EmptyResult(params Params) *Result {
	return &Result{
		Labels:        []int{},
		Probabilities: []float64{},
		Params:        params,
		ValidityScore: 0.0,
	}
}

// IsEmpty reports whether the result carries no labels
func (r *Result) IsEmpty() bool {
	return r == nil || len(r.Labels) == 0
}

// NumClusters counts distinct non-noise labels
func (r *Result) NumClusters() int {
	if r == nil {
		return 0
	}
	return countClusters(r.Labels)
}

// NumNoise counts points labelled as noise
func (r *Result) NumNoise() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, l := range r.Labels {
		if l == Noise {
			n++
		}
	}
	return n
}

// SplitConfig controls the recursive token-budget splitter.
type SplitConfig struct {
	Enabled             bool `json:"enabled"`
	MaxTokensPerCluster int  `json:"max_tokens_per_cluster"`
	MinSplitSize        int  `json:"min_split_size"`
	MaxDepth            int  `json:"max_depth"` // Bisection depth after which groups are packed by index
}

// DefaultMaxSplitDepth bounds how many times one original cluster may be bisected
const DefaultMaxSplitDepth = 16

// Validate checks split configuration preconditions. A disabled config is always valid.
func (c SplitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxTokensPerCluster <= 0 {
		return errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "max_tokens_per_cluster must be > 0, got %d", c.MaxTokensPerCluster),
			"set clustering.max_tokens_per_cluster")
	}
	if c.MinSplitSize < 2 {
		return errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "min_split_size must be >= 2, got %d", c.MinSplitSize),
			"a cluster needs at least two members to be bisected")
	}
	if c.MaxDepth < 0 {
		return errors.Wrapf(ErrInvalidParams, "max_depth must be >= 0, got %d", c.MaxDepth)
	}
	return nil
}

func countClusters(labels []int) int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l != Noise {
			seen[l] = struct{}{}
		}
	}
	return len(seen)
}
