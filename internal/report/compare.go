package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/crimson-sun/faultline/internal/engine/cluster"
	"github.com/crimson-sun/faultline/internal/model"
)

// Entry is one model's artifact in a comparison.
type Entry struct {
	Model    string
	Artifact *Artifact
}

// Comparison ranks several runs over the same collection.
type Comparison struct {
	// Entries ordered by descending silhouette; runs without a score last.
	Entries []Entry
	// Agreement[i][j] is the pairwise agreement of Entries i and j.
	Agreement [][]float64
}

// Compare ranks entries and computes their pairwise agreement.
func Compare(entries []Entry) Comparison {
	ranked := append([]Entry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].Artifact.Metrics.Silhouette, ranked[j].Artifact.Metrics.Silhouette
		switch {
		case si == nil && sj == nil:
			return ranked[i].Model < ranked[j].Model
		case si == nil:
			return false
		case sj == nil:
			return true
		case *si != *sj:
			return *si > *sj
		default:
			return ranked[i].Model < ranked[j].Model
		}
	})

	n := len(ranked)
	assignments := make([]model.ClusterAssignment, n)
	for i, e := range ranked {
		assignments[i] = e.Artifact.Assignment()
	}
	agree := make([][]float64, n)
	for i := range agree {
		agree[i] = make([]float64, n)
		agree[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := cluster.Agreement(assignments[i], assignments[j])
			agree[i][j], agree[j][i] = v, v
		}
	}
	return Comparison{Entries: ranked, Agreement: agree}
}

// Best returns the top-ranked entry that has a silhouette score.
func (c Comparison) Best() (Entry, bool) {
	if len(c.Entries) == 0 || c.Entries[0].Artifact.Metrics.Silhouette == nil {
		return Entry{}, false
	}
	return c.Entries[0], true
}

// Write renders the metric table, the agreement matrix and the best model.
func (c Comparison) Write(w io.Writer) error {
	var b strings.Builder

	t := newTable("#", "Model", "Clusters", "Noise", "Groups", "Silhouette", "Coherence", "Min Size")
	for i, e := range c.Entries {
		m := e.Artifact.Metrics
		t.AppendRow(table.Row{
			i + 1, e.Model, m.Clusters, m.Noise, e.Artifact.Groups(),
			formatScore(m.Silhouette), formatPercent(m.Coherence), e.Artifact.Run.MinClusterSize,
		})
	}
	alignRight(t, 1, 3, 4, 5, 6, 7, 8)
	b.WriteString(t.Render())
	b.WriteString("\n\nCluster agreement\n")

	header := table.Row{""}
	for _, e := range c.Entries {
		header = append(header, e.Model)
	}
	matrix := newTable(header...)
	for i, e := range c.Entries {
		row := table.Row{e.Model}
		for j := range c.Entries {
			row = append(row, fmt.Sprintf("%.3f", c.Agreement[i][j]))
		}
		matrix.AppendRow(row)
	}
	b.WriteString(matrix.Render())
	b.WriteString("\n")

	if best, ok := c.Best(); ok {
		m := best.Artifact.Metrics
		fmt.Fprintf(&b, "\nBest: %s (silhouette %s, %d clusters, %d noise)\n",
			best.Model, formatScore(m.Silhouette), m.Clusters, m.Noise)
	} else {
		b.WriteString("\nNo model produced a silhouette score.\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
