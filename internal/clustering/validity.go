package clustering

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// InvalidScore is returned when a labeling cannot be scored: all noise,
// or fewer than two clusters. It is the worst value any scorer produces.
const InvalidScore = -1.0

// ValidityScorer rates a labeling of an embedding matrix. Higher is better.
// Implementations must be deterministic and return values in [-1, 1],
// or a non-finite value when the computation breaks down.
type ValidityScorer interface {
	Score(embeddings [][]float64, labels []int) float64
}

// DBCVScorer implements Density-Based Clustering Validation (Moulavi et al. 2014).
// Noise points count towards the total but belong to no cluster.
type DBCVScorer struct {
	Metric Metric
}

// NewDBCVScorer creates a DBCV scorer over the given metric
func NewDBCVScorer(metric Metric) *DBCVScorer {
	if metric == "" {
		metric = MetricEuclidean
	}
	return &DBCVScorer{Metric: metric}
}

// Score implements ValidityScorer
func (s *DBCVScorer) Score(embeddings [][]float64, labels []int) float64 {
	if len(embeddings) == 0 || len(labels) != len(embeddings) {
		return InvalidScore
	}

	groups := groupByLabel(labels)
	if len(groups) < 2 {
		return InvalidScore
	}

	dist := DistanceMatrix(embeddings, s.Metric.Func())
	d := float64(dims(embeddings))

	core := make([]float64, len(embeddings))
	for _, g := range groups {
		for _, p := range g.members {
			core[p] = allPointsCoreDistance(dist, p, g.members, d)
		}
	}
	mrd := func(p, q int) float64 {
		return math.Max(dist[p][q], math.Max(core[p], core[q]))
	}

	internal := make([][]int, len(groups))
	sparseness := make([]float64, len(groups))
	for gi, g := range groups {
		internal[gi], sparseness[gi] = clusterSparseness(g.members, mrd)
	}

	total := float64(len(labels))
	score := 0.0
	for gi, g := range groups {
		separation := math.Inf(1)
		for gj := range groups {
			if gi == gj {
				continue
			}
			for _, p := range internal[gi] {
				for _, q := range internal[gj] {
					if m := mrd(p, q); m < separation {
						separation = m
					}
				}
			}
		}

		denom := math.Max(separation, sparseness[gi])
		v := 0.0
		if denom > 0 {
			v = (separation - sparseness[gi]) / denom
		}
		score += float64(len(g.members)) / total * v
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return math.NaN()
	}
	return clamp(score, -1, 1)
}

// allPointsCoreDistance is the inverse of the mean inverse-distance^d to the
// rest of the cluster, computed in log space to survive large d.
func allPointsCoreDistance(dist [][]float64, p int, members []int, d float64) float64 {
	if len(members) < 2 {
		return 0
	}
	terms := make([]float64, 0, len(members)-1)
	for _, q := range members {
		if q == p {
			continue
		}
		if dist[p][q] <= 0 {
			return 0
		}
		terms = append(terms, -d*math.Log(dist[p][q]))
	}
	logMean := floats.LogSumExp(terms) - math.Log(float64(len(terms)))
	return math.Exp(-logMean / d)
}

// clusterSparseness builds the mutual reachability MST of one cluster and
// returns its internal nodes (degree > 1) and the heaviest internal edge.
// Clusters too small to have internal nodes use all their members and edges.
func clusterSparseness(members []int, mrd func(p, q int) float64) ([]int, float64) {
	m := len(members)
	if m < 2 {
		return members, 0
	}

	type edge struct {
		a, b   int
		weight float64
	}
	inTree := make([]bool, m)
	best := make([]float64, m)
	from := make([]int, m)
	for i := range best {
		best[i] = math.Inf(1)
	}
	edges := make([]edge, 0, m-1)
	current := 0
	inTree[0] = true
	for len(edges) < m-1 {
		next := -1
		for j := 0; j < m; j++ {
			if inTree[j] {
				continue
			}
			if w := mrd(members[current], members[j]); w < best[j] {
				best[j] = w
				from[j] = current
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		edges = append(edges, edge{a: from[next], b: next, weight: best[next]})
		inTree[next] = true
		current = next
	}

	degree := make([]int, m)
	for _, e := range edges {
		degree[e.a]++
		degree[e.b]++
	}

	var internal []int
	isInternal := make([]bool, m)
	for i := 0; i < m; i++ {
		if degree[i] > 1 {
			internal = append(internal, members[i])
			isInternal[i] = true
		}
	}

	sparseness := 0.0
	if len(internal) == 0 {
		for _, e := range edges {
			sparseness = math.Max(sparseness, e.weight)
		}
		return members, sparseness
	}

	found := false
	for _, e := range edges {
		if isInternal[e.a] && isInternal[e.b] {
			sparseness = math.Max(sparseness, e.weight)
			found = true
		}
	}
	if !found {
		for _, e := range edges {
			sparseness = math.Max(sparseness, e.weight)
		}
	}
	return internal, sparseness
}

type labelGroup struct {
	label   int
	members []int
}

// groupByLabel returns non-noise groups ordered by label
func groupByLabel(labels []int) []labelGroup {
	index := make(map[int][]int)
	for i, l := range labels {
		if l != Noise {
			index[l] = append(index[l], i)
		}
	}
	groups := make([]labelGroup, 0, len(index))
	for l, members := range index {
		groups = append(groups, labelGroup{label: l, members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].label < groups[j].label })
	return groups
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// FallbackScorer uses Secondary whenever Primary produces a non-finite score
type FallbackScorer struct {
	Primary   ValidityScorer
	Secondary ValidityScorer
}

// Score implements ValidityScorer
func (f *FallbackScorer) Score(embeddings [][]float64, labels []int) float64 {
	if s := f.Primary.Score(embeddings, labels); isFinite(s) {
		return s
	}
	if f.Secondary != nil {
		if s := f.Secondary.Score(embeddings, labels); isFinite(s) {
			return s
		}
	}
	return InvalidScore
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NewScorer builds the scorer named by the validity_metric setting
func NewScorer(name string, metric Metric) ValidityScorer {
	switch name {
	case "silhouette":
		return NewSilhouetteScorer(metric)
	default:
		return &FallbackScorer{
			Primary:   NewDBCVScorer(metric),
			Secondary: NewSilhouetteScorer(metric),
		}
	}
}
