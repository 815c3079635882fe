package clustering

import (
	"context"
	"log/slog"
	"sort"

	"github.com/cockroachdb/errors"

	"newsbundle/internal/logger"
)

// Splitter bisects clusters whose token total exceeds a budget until every
// cluster fits, mints fresh labels for the new halves, and leaves noise and
// in-budget clusters untouched.
type Splitter struct {
	bisector Bisector
	log      *slog.Logger
}

// NewSplitter creates a splitter using the given bisector
func NewSplitter(bisector Bisector, log *slog.Logger) *Splitter {
	if bisector == nil {
		bisector = NewKMeansBisector(DefaultKMeansConfig())
	}
	if log == nil {
		log = logger.Get()
	}
	return &Splitter{bisector: bisector, log: log}
}

type splitItem struct {
	indices []int
	label   int
	depth   int
}

// Split returns new label and probability vectors. Inputs are never modified.
func (s *Splitter) Split(
	ctx context.Context,
	embeddings [][]float64,
	labels []int,
	probs []float64,
	tokenCounts []int,
	config SplitConfig,
) ([]int, []float64, error) {
	n := len(labels)
	if len(embeddings) != n || len(probs) != n || len(tokenCounts) != n {
		return nil, nil, errors.WithHint(
			errors.Wrapf(ErrInvalidParams, "length mismatch: embeddings=%d labels=%d probabilities=%d tokens=%d",
				len(embeddings), n, len(probs), len(tokenCounts)),
			"labels, probabilities and token counts must be parallel to the embedding rows")
	}
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	outLabels := append([]int(nil), labels...)
	outProbs := append([]float64(nil), probs...)
	if !config.Enabled || n == 0 {
		return outLabels, outProbs, nil
	}

	maxDepth := config.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxSplitDepth
	}

	nextLabel := 0
	members := make(map[int][]int)
	for i, l := range labels {
		if l+1 > nextLabel {
			nextLabel = l + 1
		}
		if l != Noise {
			members[l] = append(members[l], i)
		}
	}

	ordered := make([]int, 0, len(members))
	for l := range members {
		ordered = append(ordered, l)
	}
	// Work-list pops from the end; push in descending order to handle labels ascending
	sort.Sort(sort.Reverse(sort.IntSlice(ordered)))
	work := make([]splitItem, 0, len(ordered))
	for _, l := range ordered {
		work = append(work, splitItem{indices: members[l], label: l})
	}

	splits := 0
	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		item := work[len(work)-1]
		work = work[:len(work)-1]

		total := 0
		for _, idx := range item.indices {
			total += tokenCounts[idx]
		}
		if len(item.indices) < config.MinSplitSize || total <= config.MaxTokensPerCluster {
			continue
		}
		if item.depth >= maxDepth {
			runs := packByIndex(item.indices, tokenCounts, config.MaxTokensPerCluster)
			s.log.Warn("Cluster exceeds token budget at max split depth, packing by index",
				"label", item.label, "size", len(item.indices), "tokens", total,
				"depth", item.depth, "groups", len(runs))
			for r, run := range runs {
				label := item.label
				if r > 0 {
					label = nextLabel
					nextLabel++
					splits++
				}
				for _, idx := range run {
					outLabels[idx] = label
					outProbs[idx] = 1.0
				}
			}
			continue
		}

		left, right := s.bisector.Bisect(embeddings, item.indices)
		if len(left) == 0 || len(right) == 0 {
			s.log.Warn("Cannot bisect cluster over token budget",
				"label", item.label, "size", len(item.indices), "tokens", total)
			continue
		}
		sort.Ints(left)
		sort.Ints(right)
		if right[0] < left[0] {
			left, right = right, left
		}

		fresh := nextLabel
		nextLabel++
		for _, idx := range left {
			outLabels[idx] = item.label
			outProbs[idx] = 1.0
		}
		for _, idx := range right {
			outLabels[idx] = fresh
			outProbs[idx] = 1.0
		}
		splits++

		work = append(work,
			splitItem{indices: right, label: fresh, depth: item.depth + 1},
			splitItem{indices: left, label: item.label, depth: item.depth + 1},
		)
	}

	if splits > 0 {
		s.log.Info("Split oversized clusters", "splits", splits, "clusters", countClusters(outLabels))
	}
	return outLabels, outProbs, nil
}

// packByIndex partitions indices in ascending order into consecutive runs
// whose token totals fit budget. An item over budget on its own forms a
// single-member run.
func packByIndex(indices []int, tokenCounts []int, budget int) [][]int {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	var runs [][]int
	var current []int
	sum := 0
	for _, idx := range sorted {
		if len(current) > 0 && sum+tokenCounts[idx] > budget {
			runs = append(runs, current)
			current, sum = nil, 0
		}
		current = append(current, idx)
		sum += tokenCounts[idx]
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}
