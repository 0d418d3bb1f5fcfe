package model

// NoiseLabel marks a point the density-based clustering could not assign.
const NoiseLabel = -1

// ClusterAssignment is the result of one clustering run.
type ClusterAssignment struct {
	Labels   map[string]int           // case id → cluster label or NoiseLabel
	Clusters []ClusterSummary         // ordered by label
	Samples  map[string]SampleMetrics // per case id
	Metrics  QualityMetrics
}

// Members returns the case ids carrying label, in ascending order.
func (a ClusterAssignment) Members(label int) []string {
	for _, c := range a.Clusters {
		if c.Label == label {
			return c.Members
		}
	}
	return nil
}

// Noise returns the case ids labeled as noise, in ascending order.
func (a ClusterAssignment) Noise() []string {
	var out []string
	for _, id := range sortedKeys(a.Labels) {
		if a.Labels[id] == NoiseLabel {
			out = append(out, id)
		}
	}
	return out
}

// ClusterSummary describes one discovered cluster.
type ClusterSummary struct {
	Label          int
	Members        []string // ascending case ids
	Shapes         []ShapeCount
	Coherent       bool
	Representative string // member closest to the centroid
	Centroid       []float64
}

// ShapeCount is a distinct error shape and how many members carry it.
type ShapeCount struct {
	Shape string `json:"error_type"`
	Count int    `json:"count"`
}

// QualityMetrics self-reports clustering quality. Nil pointers mean the
// metric is not applicable to this run.
type QualityMetrics struct {
	Clusters         int
	Noise            int
	Silhouette       *float64
	Coherence        *float64
	CoherentClusters int
}

// SampleMetrics are per-point fit measures.
type SampleMetrics struct {
	Cluster            int      `json:"cluster"`
	Silhouette         *float64 `json:"silhouette"`
	DistanceToCentroid *float64 `json:"distance_to_centroid"`
	NearestCluster     *int     `json:"nearest_cluster,omitempty"`
	NearestSimilarity  float64  `json:"nearest_similarity,omitempty"`
}
