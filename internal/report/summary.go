package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/crimson-sun/faultline/internal/engine/compactor"
	"github.com/crimson-sun/faultline/internal/engine/dedup"
	"github.com/crimson-sun/faultline/internal/model"
)

const (
	maxErrorTypes = 5
	maxTests      = 3
	ruleWidth     = 80
)

// Summary renders an artifact as text. The collection supplies test names
// and may be nil.
type Summary struct {
	compactor *compactor.Compactor
}

// NewSummary creates a Summary at the given verbosity.
func NewSummary(v compactor.Verbosity) *Summary {
	return &Summary{compactor: compactor.New(v)}
}

// Write renders art to w: a metrics table, one section per cluster, the
// noise points with their nearest-cluster hints and overall statistics.
func (s *Summary) Write(w io.Writer, art *Artifact, c *model.Collection) error {
	var b strings.Builder

	t := newTable("Model", "Clusters", "Noise", "Groups", "Silhouette", "Coherent")
	t.AppendRow([]any{
		art.Run.EmbeddingModel,
		art.Metrics.Clusters,
		art.Metrics.Noise,
		art.Groups(),
		formatScore(art.Metrics.Silhouette),
		fmt.Sprintf("%d/%d", art.Metrics.CoherentClusters, art.Metrics.Clusters),
	})
	alignRight(t, 2, 3, 4, 5, 6)
	b.WriteString(t.Render())
	b.WriteString("\n")

	for _, d := range art.ClusterDetails {
		s.writeCluster(&b, art, d, c)
	}
	s.writeNoise(&b, art)
	writeStats(&b, art)

	_, err := io.WriteString(w, b.String())
	return err
}

func (s *Summary) writeCluster(b *strings.Builder, art *Artifact, d ClusterDetail, c *model.Collection) {
	mark := "✓"
	if !d.Coherent {
		mark = "✗"
	}
	rule(b)
	fmt.Fprintf(b, "Cluster %d: %d failures %s\n", d.Label, d.Size, mark)
	rule(b)

	fmt.Fprintf(b, "Error types (%d):\n", len(d.ErrorTypes))
	for i, et := range d.ErrorTypes {
		if i == maxErrorTypes {
			fmt.Fprintf(b, "  ... and %d more error types\n", len(d.ErrorTypes)-maxErrorTypes)
			break
		}
		fmt.Fprintf(b, "  • %s\n    (%d/%d = %.0f%%)\n",
			s.compactor.Line(et.Shape), et.Count, d.Size, 100*float64(et.Count)/float64(d.Size))
	}

	members := art.Clusters[fmt.Sprint(d.Label)]
	if tests := testCounts(members, c); len(tests) > 0 {
		fmt.Fprintf(b, "\nTests involved (%d):\n", len(tests))
		for i, tc := range tests {
			if i == maxTests {
				break
			}
			fmt.Fprintf(b, "  • %s: %d failures\n", tc.Key, tc.Count)
		}
	}

	if d.Representative != "" {
		fmt.Fprintf(b, "\nRepresentative: %s\n", d.Representative)
	}
	shown, omitted := s.compactor.Examples(members)
	if len(shown) > 0 {
		b.WriteString("\nCase IDs:\n")
		for _, id := range shown {
			fmt.Fprintf(b, "  • %s\n", id)
		}
	}
	if omitted > 0 && len(shown) > 0 {
		fmt.Fprintf(b, "  ... and %d more\n", omitted)
	}
	b.WriteString("\n")
}

func (s *Summary) writeNoise(b *strings.Builder, art *Artifact) {
	noise := art.Clusters[NoiseKey]
	if len(noise) == 0 {
		return
	}
	rule(b)
	fmt.Fprintf(b, "Noise: %d failures\n", len(noise))
	rule(b)

	shown, omitted := s.compactor.Examples(noise)
	for _, id := range shown {
		sm := art.SampleMetrics[id]
		if sm.NearestCluster != nil {
			fmt.Fprintf(b, "  • %s (nearest cluster %d, similarity %.2f)\n", id, *sm.NearestCluster, sm.NearestSimilarity)
			continue
		}
		fmt.Fprintf(b, "  • %s\n", id)
	}
	if omitted > 0 && len(shown) > 0 {
		fmt.Fprintf(b, "  ... and %d more\n", omitted)
	}
	b.WriteString("\n")
}

func writeStats(b *strings.Builder, art *Artifact) {
	rule(b)
	b.WriteString("Summary\n")
	rule(b)
	if len(art.ClusterDetails) == 0 {
		fmt.Fprintf(b, "No clusters found; %d failures are noise.\n", art.Metrics.Noise)
		return
	}

	total, largest, smallest := 0, 0, art.ClusterDetails[0].Size
	for _, d := range art.ClusterDetails {
		total += d.Size
		largest = max(largest, d.Size)
		smallest = min(smallest, d.Size)
	}
	fmt.Fprintf(b, "Groups to investigate: %d (%d clusters + %d noise)\n", art.Groups(), art.Metrics.Clusters, art.Metrics.Noise)
	fmt.Fprintf(b, "Average cluster size: %.1f failures\n", float64(total)/float64(len(art.ClusterDetails)))
	fmt.Fprintf(b, "Largest cluster: %d failures\n", largest)
	fmt.Fprintf(b, "Smallest cluster: %d failures\n", smallest)
	fmt.Fprintf(b, "Coherent clusters: %d/%d (%s)\n",
		art.Metrics.CoherentClusters, art.Metrics.Clusters, formatPercent(art.Metrics.Coherence))
}

func testCounts(members []string, c *model.Collection) []dedup.Count {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(members))
	for _, id := range members {
		if sig, ok := c.Lookup(id); ok && sig.TestName != "" {
			names = append(names, sig.TestName)
		}
	}
	return dedup.Counts(names)
}

func rule(b *strings.Builder) {
	b.WriteString(strings.Repeat("=", ruleWidth))
	b.WriteString("\n")
}

func formatPercent(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.0f%%", 100 * *v)
}
