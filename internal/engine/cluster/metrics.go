package cluster

import (
	"math"
	"sort"

	"github.com/crimson-sun/faultline/internal/engine/classifier"
	"github.com/crimson-sun/faultline/internal/engine/dedup"
	"github.com/crimson-sun/faultline/internal/model"
)

// assemble turns raw labels into a ClusterAssignment with final label
// order, per-cluster summaries and quality metrics. pts is sorted by ID.
func assemble(pts []Point, dist [][]float64, raw []int, maxShapes int) model.ClusterAssignment {
	labels := relabel(pts, raw)

	byLabel := make(map[int][]int)
	for i, l := range labels {
		if l != model.NoiseLabel {
			byLabel[l] = append(byLabel[l], i)
		}
	}

	out := model.ClusterAssignment{
		Labels:   make(map[string]int, len(pts)),
		Clusters: make([]model.ClusterSummary, len(byLabel)),
		Samples:  make(map[string]model.SampleMetrics, len(pts)),
	}
	for i, p := range pts {
		out.Labels[p.ID] = labels[i]
	}

	centroids := make([]classifier.Centroid, len(byLabel))
	for l := 0; l < len(byLabel); l++ {
		members := byLabel[l]
		c := centroid(pts, members)
		centroids[l] = classifier.Centroid{Label: l, Vector: c}

		ids := make([]string, len(members))
		shapes := make([]string, len(members))
		rep, repDist := "", math.Inf(1)
		for k, i := range members {
			ids[k] = pts[i].ID
			shapes[k] = pts[i].Shape
			// members ascend by ID, so strict < keeps the smallest ID on ties
			if d := euclidean(pts[i].Vector, c); d < repDist {
				rep, repDist = pts[i].ID, d
			}
		}

		counts := dedup.Counts(shapes)
		sc := make([]model.ShapeCount, len(counts))
		for k, ct := range counts {
			sc[k] = model.ShapeCount{Shape: ct.Key, Count: ct.Count}
		}
		out.Clusters[l] = model.ClusterSummary{
			Label:          l,
			Members:        ids,
			Shapes:         sc,
			Coherent:       len(sc) <= maxShapes,
			Representative: rep,
			Centroid:       c,
		}
	}

	sil := silhouettes(dist, labels, len(byLabel))
	hint := classifier.New(classifier.DefaultThreshold)
	for i, p := range pts {
		sm := model.SampleMetrics{Cluster: labels[i], Silhouette: sil[i]}
		if labels[i] == model.NoiseLabel {
			if r := hint.Nearest(p.Vector, centroids); r.Matched {
				label := r.Label
				sm.NearestCluster = &label
				sm.NearestSimilarity = r.Confidence
			}
		} else {
			d := euclidean(p.Vector, centroids[labels[i]].Vector)
			sm.DistanceToCentroid = &d
		}
		out.Samples[p.ID] = sm
	}

	out.Metrics = quality(out.Clusters, len(pts)-countMembers(byLabel), sil, labels)
	return out
}

// relabel renumbers clusters by descending size; equal sizes are ordered
// by their smallest member ID. Since pts is sorted, the smallest member is
// the first index seen.
func relabel(pts []Point, raw []int) []int {
	type group struct {
		raw, size, first int
	}
	groups := make(map[int]*group)
	for i, l := range raw {
		if l == model.NoiseLabel {
			continue
		}
		g, ok := groups[l]
		if !ok {
			g = &group{raw: l, first: i}
			groups[l] = g
		}
		g.size++
	}
	order := make([]*group, 0, len(groups))
	for _, g := range groups {
		order = append(order, g)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].size != order[j].size {
			return order[i].size > order[j].size
		}
		return pts[order[i].first].ID < pts[order[j].first].ID
	})
	final := make(map[int]int, len(order))
	for i, g := range order {
		final[g.raw] = i
	}

	out := make([]int, len(raw))
	for i, l := range raw {
		if l == model.NoiseLabel {
			out[i] = model.NoiseLabel
			continue
		}
		out[i] = final[l]
	}
	return out
}

func centroid(pts []Point, members []int) []float64 {
	c := make([]float64, len(pts[members[0]].Vector))
	for _, i := range members {
		for d, v := range pts[i].Vector {
			c[d] += v
		}
	}
	for d := range c {
		c[d] /= float64(len(members))
	}
	return c
}

// silhouettes returns the per-point silhouette coefficient over non-noise
// points. All entries are nil when fewer than two clusters exist.
func silhouettes(dist [][]float64, labels []int, clusters int) []*float64 {
	out := make([]*float64, len(labels))
	if clusters < 2 {
		return out
	}
	sum := make([]float64, clusters)
	size := make([]int, clusters)
	for _, l := range labels {
		if l != model.NoiseLabel {
			size[l]++
		}
	}
	for i, li := range labels {
		if li == model.NoiseLabel {
			continue
		}
		clear(sum)
		for j, lj := range labels {
			if j != i && lj != model.NoiseLabel {
				sum[lj] += dist[i][j]
			}
		}
		var a float64
		if size[li] > 1 {
			a = sum[li] / float64(size[li]-1)
		}
		b := math.Inf(1)
		for l := range sum {
			if l != li && size[l] > 0 {
				b = math.Min(b, sum[l]/float64(size[l]))
			}
		}
		var s float64
		if size[li] > 1 {
			if m := math.Max(a, b); m > 0 {
				s = (b - a) / m
			}
		}
		out[i] = &s
	}
	return out
}

func quality(clusters []model.ClusterSummary, noise int, sil []*float64, labels []int) model.QualityMetrics {
	q := model.QualityMetrics{Clusters: len(clusters), Noise: noise}
	for _, c := range clusters {
		if c.Coherent {
			q.CoherentClusters++
		}
	}
	if len(clusters) > 0 {
		v := float64(q.CoherentClusters) / float64(len(clusters))
		q.Coherence = &v
	}

	var total float64
	var n int
	for i, s := range sil {
		if s != nil && labels[i] != model.NoiseLabel {
			total += *s
			n++
		}
	}
	if n > 0 {
		v := total / float64(n)
		q.Silhouette = &v
	}
	return q
}

func countMembers(byLabel map[int][]int) int {
	var n int
	for _, m := range byLabel {
		n += len(m)
	}
	return n
}
