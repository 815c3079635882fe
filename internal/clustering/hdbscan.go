package clustering

import (
	"context"
	"math"
	"sort"

	"github.com/cockroachdb/errors"
)

// DensityStrategy is a density-based clustering backend. Implementations
// return one label per row (Noise for outliers) and a membership
// probability in [0, 1] per row.
type DensityStrategy interface {
	Cluster(ctx context.Context, embeddings [][]float64, params Params) ([]int, []float64, error)
}

// maxLambda caps 1/distance so duplicate points do not produce infinite stabilities
const maxLambda = 1e12

// HDBSCAN implements hierarchical density-based clustering over a dense
// distance matrix. It supports min_samples, eom and leaf selection, and
// per-point membership probabilities.
type HDBSCAN struct {
	Metric Metric
}

// NewHDBSCAN creates a native HDBSCAN backend using the given metric
func NewHDBSCAN(metric Metric) *HDBSCAN {
	if metric == "" {
		metric = MetricEuclidean
	}
	return &HDBSCAN{Metric: metric}
}

// Cluster runs HDBSCAN. Fewer rows than MinClusterSize yields all noise.
// MinClusterSize values below 2 behave as 2.
func (h *HDBSCAN) Cluster(ctx context.Context, embeddings [][]float64, params Params) ([]int, []float64, error) {
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}

	n := len(embeddings)
	labels := make([]int, n)
	probs := make([]float64, n)
	for i := range labels {
		labels[i] = Noise
	}

	mcs := params.MinClusterSize
	if mcs < 2 {
		mcs = 2
	}
	if n < 2 || n < mcs {
		return labels, probs, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	dist := DistanceMatrix(embeddings, h.Metric.Func())
	for i := range dist {
		for j := range dist[i] {
			if math.IsNaN(dist[i][j]) || math.IsInf(dist[i][j], 0) {
				return nil, nil, errors.Wrapf(ErrNumeric, "non-finite %s distance between rows %d and %d", h.Metric, i, j)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	core := coreDistances(dist, params.MinSamples)
	tree := singleLinkage(primMST(dist, core), n)
	condensed := condenseTree(tree, n, mcs)
	selected := selectClusters(condensed, n, params.SelectionMethod)
	labelPoints(condensed, selected, n, labels, probs)

	return labels, probs, nil
}

// coreDistances returns, for every point, the distance to its k-th nearest
// neighbour counting the point itself, so minSamples=1 gives zero.
func coreDistances(dist [][]float64, minSamples int) []float64 {
	n := len(dist)
	k := minSamples
	if k > n {
		k = n
	}
	if k < 1 {
		k = 1
	}

	core := make([]float64, n)
	row := make([]float64, n)
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[k-1]
	}
	return core
}

func mutualReachability(dist [][]float64, core []float64, i, j int) float64 {
	return math.Max(dist[i][j], math.Max(core[i], core[j]))
}

type mstEdge struct {
	a, b   int
	weight float64
}

// primMST builds the minimum spanning tree of the mutual reachability graph.
// Ties resolve to the lowest index so the tree is deterministic.
func primMST(dist [][]float64, core []float64) []mstEdge {
	n := len(dist)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]mstEdge, 0, n-1)
	current := 0
	inTree[current] = true

	for len(edges) < n-1 {
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if mr := mutualReachability(dist, core, current, j); mr < best[j] {
				best[j] = mr
				from[j] = current
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		edges = append(edges, mstEdge{a: from[next], b: next, weight: best[next]})
		inTree[next] = true
		current = next
	}

	return edges
}

// linkage is one merge in the single-linkage dendrogram. Row i describes
// internal node n+i; leaves are the point indices 0..n-1.
type linkage struct {
	left, right int
	dist        float64
	size        int
}

func singleLinkage(edges []mstEdge, n int) []linkage {
	sort.SliceStable(edges, func(i, j int) bool {
		return edges[i].weight < edges[j].weight
	})

	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	tree := make([]linkage, 0, n-1)
	next := n
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		merged := size[ra] + size[rb]
		tree = append(tree, linkage{left: ra, right: rb, dist: e.weight, size: merged})
		parent[ra] = next
		parent[rb] = next
		size[next] = merged
		next++
	}

	return tree
}

// condensedRow is an edge of the condensed tree. Children below n are
// points; children at or above n are clusters.
type condensedRow struct {
	parent int
	child  int
	lambda float64
	size   int
}

func lambdaFor(dist float64) float64 {
	if dist <= 0 {
		return maxLambda
	}
	l := 1.0 / dist
	if l > maxLambda {
		return maxLambda
	}
	return l
}

// condenseTree walks the dendrogram from the root and keeps only splits
// where both sides hold at least mcs points. Smaller sides fall out of
// their parent cluster as individual points. Cluster labels start at n
// (the root) and grow in breadth-first order.
func condenseTree(tree []linkage, n, mcs int) []condensedRow {
	root := 2*n - 2
	relabel := make([]int, 2*n-1)
	relabel[root] = n
	nextLabel := n + 1
	ignore := make([]bool, 2*n-1)
	rows := make([]condensedRow, 0, 2*n)

	nodeSize := func(node int) int {
		if node < n {
			return 1
		}
		return tree[node-n].size
	}

	queue := []int{root}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node < n || ignore[node] {
			continue
		}

		link := tree[node-n]
		lambda := lambdaFor(link.dist)
		left, right := link.left, link.right
		lc, rc := nodeSize(left), nodeSize(right)
		parent := relabel[node]

		switch {
		case lc >= mcs && rc >= mcs:
			relabel[left] = nextLabel
			nextLabel++
			rows = append(rows, condensedRow{parent: parent, child: relabel[left], lambda: lambda, size: lc})
			relabel[right] = nextLabel
			nextLabel++
			rows = append(rows, condensedRow{parent: parent, child: relabel[right], lambda: lambda, size: rc})
			queue = append(queue, left, right)
		case lc < mcs && rc < mcs:
			rows = fallOut(rows, tree, n, left, parent, lambda, ignore)
			rows = fallOut(rows, tree, n, right, parent, lambda, ignore)
		case lc < mcs:
			relabel[right] = parent
			rows = fallOut(rows, tree, n, left, parent, lambda, ignore)
			queue = append(queue, right)
		default:
			relabel[left] = parent
			rows = fallOut(rows, tree, n, right, parent, lambda, ignore)
			queue = append(queue, left)
		}
	}

	return rows
}

// fallOut detaches every point under node from parent at lambda
func fallOut(rows []condensedRow, tree []linkage, n, node, parent int, lambda float64, ignore []bool) []condensedRow {
	stack := []int{node}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if x < n {
			rows = append(rows, condensedRow{parent: parent, child: x, lambda: lambda, size: 1})
			continue
		}
		ignore[x] = true
		stack = append(stack, tree[x-n].right, tree[x-n].left)
	}
	return rows
}

// selectClusters returns, indexed by label-n, which condensed clusters are
// kept. The root (index 0) is never selected.
func selectClusters(rows []condensedRow, n int, method SelectionMethod) []bool {
	numClusters := 1
	for _, r := range rows {
		if r.child >= n && r.child-n+1 > numClusters {
			numClusters = r.child - n + 1
		}
	}

	birth := make([]float64, numClusters)
	children := make([][]int, numClusters)
	for _, r := range rows {
		if r.child >= n {
			birth[r.child-n] = r.lambda
			children[r.parent-n] = append(children[r.parent-n], r.child-n)
		}
	}

	stability := make([]float64, numClusters)
	for _, r := range rows {
		p := r.parent - n
		stability[p] += (r.lambda - birth[p]) * float64(r.size)
	}

	selected := make([]bool, numClusters)

	if method == SelectionLeaf {
		for c := 1; c < numClusters; c++ {
			selected[c] = len(children[c]) == 0
		}
		return selected
	}

	for c := 1; c < numClusters; c++ {
		selected[c] = true
	}
	// Children always carry larger labels than their parent
	for c := numClusters - 1; c >= 1; c-- {
		childSum := 0.0
		for _, ch := range children[c] {
			childSum += stability[ch]
		}
		if childSum > stability[c] {
			selected[c] = false
			stability[c] = childSum
			continue
		}
		stack := append([]int(nil), children[c]...)
		for len(stack) > 0 {
			d := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			selected[d] = false
			stack = append(stack, children[d]...)
		}
	}

	return selected
}

// labelPoints assigns each point to its nearest selected ancestor cluster
// and computes membership probabilities relative to the densest member.
func labelPoints(rows []condensedRow, selected []bool, n int, labels []int, probs []float64) {
	numClusters := len(selected)
	clusterParent := make([]int, numClusters)
	clusterParent[0] = -1
	pointParent := make([]int, n)
	pointLambda := make([]float64, n)
	for i := range pointParent {
		pointParent[i] = -1
	}

	for _, r := range rows {
		if r.child < n {
			pointParent[r.child] = r.parent - n
			pointLambda[r.child] = r.lambda
		} else {
			clusterParent[r.child-n] = r.parent - n
		}
	}

	// Parents precede children, so one ascending pass resolves owners
	owner := make([]int, numClusters)
	labelID := make([]int, numClusters)
	next := 0
	for c := 0; c < numClusters; c++ {
		switch {
		case selected[c]:
			owner[c] = c
			labelID[c] = next
			next++
		case c == 0:
			owner[c] = -1
		default:
			owner[c] = owner[clusterParent[c]]
		}
	}

	deaths := make([]float64, numClusters)
	for i := 0; i < n; i++ {
		if pointParent[i] < 0 {
			continue
		}
		if o := owner[pointParent[i]]; o >= 0 && pointLambda[i] > deaths[o] {
			deaths[o] = pointLambda[i]
		}
	}

	for i := 0; i < n; i++ {
		labels[i] = Noise
		probs[i] = 0
		if pointParent[i] < 0 {
			continue
		}
		o := owner[pointParent[i]]
		if o < 0 {
			continue
		}
		labels[i] = labelID[o]
		maxL := deaths[o]
		if maxL == 0 || math.IsInf(pointLambda[i], 0) {
			probs[i] = 1.0
			continue
		}
		probs[i] = math.Min(pointLambda[i], maxL) / maxL
	}
}
