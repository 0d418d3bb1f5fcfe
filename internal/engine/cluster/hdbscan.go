// Package cluster groups embedded failure signatures with HDBSCAN and
// reports how well the grouping holds together.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/crimson-sun/faultline/internal/model"
)

const (
	// DefaultMinClusterSize is the smallest group reported as a cluster.
	DefaultMinClusterSize = 5
	// CoherenceMaxShapes is the most distinct error types a coherent
	// cluster may contain.
	CoherenceMaxShapes = 3

	// minDistance bounds lambda = 1/distance for coincident points.
	minDistance = 1e-12
)

// Point is one embedded signature.
type Point struct {
	ID     string
	Vector []float64
	Shape  string // generalized error type, for coherence
}

// Config holds the clustering parameters.
type Config struct {
	MinClusterSize int
	MinSamples     int // 0 means MinClusterSize
	MaxShapes      int // 0 means CoherenceMaxShapes
}

// Validate rejects parameters HDBSCAN cannot run with.
func (c Config) Validate() error {
	if c.MinClusterSize < 2 {
		return &model.ClusterConfigError{Field: "min_cluster_size", Value: c.MinClusterSize, Reason: "must be at least 2"}
	}
	if c.MinSamples < 0 {
		return &model.ClusterConfigError{Field: "min_samples", Value: c.MinSamples, Reason: "must be at least 1"}
	}
	if c.MaxShapes < 0 {
		return &model.ClusterConfigError{Field: "max_shapes", Value: c.MaxShapes, Reason: "must be at least 1"}
	}
	return nil
}

func (c Config) minSamples() int {
	if c.MinSamples == 0 {
		return c.MinClusterSize
	}
	return c.MinSamples
}

func (c Config) maxShapes() int {
	if c.MaxShapes == 0 {
		return CoherenceMaxShapes
	}
	return c.MaxShapes
}

// Run clusters points and computes quality metrics. Points are ordered by
// ID first, so the result does not depend on input order. Labels are
// numbered by descending cluster size, ties broken by smallest member ID.
func Run(points []Point, cfg Config) (model.ClusterAssignment, error) {
	if err := cfg.Validate(); err != nil {
		return model.ClusterAssignment{}, err
	}
	pts, err := canonical(points)
	if err != nil {
		return model.ClusterAssignment{}, err
	}

	dist := distances(pts)
	var labels []int
	if len(pts) < cfg.MinClusterSize {
		labels = make([]int, len(pts))
		for i := range labels {
			labels[i] = model.NoiseLabel
		}
	} else {
		labels = hdbscan(dist, cfg.MinClusterSize, cfg.minSamples())
	}
	return assemble(pts, dist, labels, cfg.maxShapes()), nil
}

// canonical sorts a copy of points by ID and checks IDs and dimensions.
func canonical(points []Point) ([]Point, error) {
	pts := make([]Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool { return pts[i].ID < pts[j].ID })
	for i := range pts {
		if i > 0 && pts[i].ID == pts[i-1].ID {
			return nil, fmt.Errorf("cluster: duplicate point id %q", pts[i].ID)
		}
		if len(pts[i].Vector) != len(pts[0].Vector) {
			return nil, fmt.Errorf("cluster: point %q has %d dimensions, expected %d",
				pts[i].ID, len(pts[i].Vector), len(pts[0].Vector))
		}
	}
	return pts, nil
}

// distances returns the symmetric Euclidean distance matrix.
func distances(pts []Point) [][]float64 {
	n := len(pts)
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := euclidean(pts[i].Vector, pts[j].Vector)
			d[i][j], d[j][i] = v, v
		}
	}
	return d
}

func euclidean(a, b []float64) float64 {
	var s float64
	for i := range a {
		diff := a[i] - b[i]
		s += diff * diff
	}
	return math.Sqrt(s)
}

// hdbscan returns a raw label per point (0-based cluster index in
// selection order, or NoiseLabel).
func hdbscan(dist [][]float64, minClusterSize, minSamples int) []int {
	n := len(dist)
	core := coreDistances(dist, minSamples)
	edges := mst(dist, core)
	tree := singleLinkage(n, edges)
	ct := condense(tree, n, minClusterSize)
	selected := ct.selectEOM()
	return ct.label(n, selected)
}

// coreDistances returns, per point, the distance to its k-th nearest point
// counting itself (so k=1 is 0). k is capped at n.
func coreDistances(dist [][]float64, k int) []float64 {
	n := len(dist)
	k = min(k, n)
	core := make([]float64, n)
	row := make([]float64, n)
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[k-1]
	}
	return core
}

type edge struct {
	a, b int
	w    float64
}

// mst builds a minimum spanning tree over mutual reachability distance
// with Prim's algorithm, then orders its edges by (weight, a, b).
func mst(dist [][]float64, core []float64) []edge {
	n := len(dist)
	if n < 2 {
		return nil
	}
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	cur := 0
	inTree[0] = true
	for len(edges) < n-1 {
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			mr := max(core[cur], core[j], dist[cur][j])
			if mr < best[j] {
				best[j], from[j] = mr, cur
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		a, b := min(from[next], next), max(from[next], next)
		edges = append(edges, edge{a: a, b: b, w: best[next]})
		inTree[next] = true
		cur = next
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].w != edges[j].w {
			return edges[i].w < edges[j].w
		}
		if edges[i].a != edges[j].a {
			return edges[i].a < edges[j].a
		}
		return edges[i].b < edges[j].b
	})
	return edges
}

// merge is an internal node of the single-linkage dendrogram. Nodes
// 0..n-1 are points; merge i is node n+i.
type merge struct {
	left, right int
	dist        float64
	size        int
}

func singleLinkage(n int, edges []edge) []merge {
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	size := func(node int, merges []merge) int {
		if node < n {
			return 1
		}
		return merges[node-n].size
	}

	merges := make([]merge, 0, n-1)
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		node := n + len(merges)
		merges = append(merges, merge{
			left:  ra,
			right: rb,
			dist:  e.w,
			size:  size(ra, merges) + size(rb, merges),
		})
		parent[ra], parent[rb] = node, node
	}
	return merges
}

// condensedRow records a child (point or cluster) leaving parent at lambda.
type condensedRow struct {
	parent, child int
	lambda        float64
	size          int
}

// condensed is the condensed cluster tree. Cluster ids start at n (the
// root) so they never collide with point indices.
type condensed struct {
	rows []condensedRow
	root int
	next int // one past the largest cluster id
}

func condense(merges []merge, n, minClusterSize int) *condensed {
	ct := &condensed{root: n, next: n + 1}
	if len(merges) == 0 {
		for p := 0; p < n; p++ {
			ct.rows = append(ct.rows, condensedRow{parent: n, child: p, lambda: 0, size: 1})
		}
		return ct
	}

	top := n + len(merges) - 1
	sizeOf := func(node int) int {
		if node < n {
			return 1
		}
		return merges[node-n].size
	}
	children := func(node int) (int, int) {
		m := merges[node-n]
		return m.left, m.right
	}
	// leaves appends every point under node.
	leaves := func(node int) []int {
		var out []int
		stack := []int{node}
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if x < n {
				out = append(out, x)
				continue
			}
			l, r := children(x)
			stack = append(stack, r, l)
		}
		return out
	}

	relabel := map[int]int{top: ct.root}
	queue := []int{top}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node < n {
			continue
		}
		label, live := relabel[node]
		if !live {
			continue
		}
		left, right := children(node)
		lambda := 1 / math.Max(merges[node-n].dist, minDistance)
		ls, rs := sizeOf(left), sizeOf(right)

		switch {
		case ls >= minClusterSize && rs >= minClusterSize:
			for _, c := range []int{left, right} {
				relabel[c] = ct.next
				ct.rows = append(ct.rows, condensedRow{parent: label, child: ct.next, lambda: lambda, size: sizeOf(c)})
				ct.next++
				queue = append(queue, c)
			}
		case ls < minClusterSize && rs < minClusterSize:
			for _, c := range []int{left, right} {
				for _, p := range leaves(c) {
					ct.rows = append(ct.rows, condensedRow{parent: label, child: p, lambda: lambda, size: 1})
				}
			}
		default:
			keep, drop := left, right
			if ls < minClusterSize {
				keep, drop = right, left
			}
			relabel[keep] = label
			queue = append(queue, keep)
			for _, p := range leaves(drop) {
				ct.rows = append(ct.rows, condensedRow{parent: label, child: p, lambda: lambda, size: 1})
			}
		}
	}
	return ct
}

// selectEOM picks clusters by excess of mass. The root is never selected.
func (ct *condensed) selectEOM() map[int]bool {
	birth := map[int]float64{ct.root: 0}
	childClusters := make(map[int][]int)
	for _, r := range ct.rows {
		if r.child >= ct.root {
			birth[r.child] = r.lambda
			childClusters[r.parent] = append(childClusters[r.parent], r.child)
		}
	}
	stability := make(map[int]float64)
	for _, r := range ct.rows {
		stability[r.parent] += (r.lambda - birth[r.parent]) * float64(r.size)
	}

	selected := make(map[int]bool)
	// Children always have larger ids than their parent, so descending id
	// order visits every child before its parent.
	for c := ct.next - 1; c > ct.root; c-- {
		var subtree float64
		for _, ch := range childClusters[c] {
			subtree += stability[ch]
		}
		if subtree > stability[c] {
			stability[c] = subtree
			continue
		}
		selected[c] = true
		stack := append([]int(nil), childClusters[c]...)
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			delete(selected, x)
			stack = append(stack, childClusters[x]...)
		}
	}
	return selected
}

// label maps each point to the selected cluster containing it. Points
// under no selected cluster are noise. Raw labels follow cluster id order.
func (ct *condensed) label(n int, selected map[int]bool) []int {
	parentOf := make(map[int]int)
	for _, r := range ct.rows {
		parentOf[r.child] = r.parent
	}

	ids := make([]int, 0, len(selected))
	for c := range selected {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	index := make(map[int]int, len(ids))
	for i, c := range ids {
		index[c] = i
	}

	labels := make([]int, n)
	for p := 0; p < n; p++ {
		labels[p] = model.NoiseLabel
		for c, ok := parentOf[p]; ok; c, ok = parentOf[c] {
			if selected[c] {
				labels[p] = index[c]
				break
			}
		}
	}
	return labels
}
