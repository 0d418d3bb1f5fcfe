// Package report turns a cluster assignment into the persisted artifact,
// a human-readable summary and a cross-model comparison.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/faultline/internal/engine/collection"
	"github.com/crimson-sun/faultline/internal/model"
)

// Method is the clustering algorithm recorded in every artifact.
const Method = "hdbscan"

// Run describes how an assignment was produced.
type Run struct {
	RunID          string    `json:"run_id"`
	Method         string    `json:"method"`
	EmbeddingModel string    `json:"embedding_model"`
	EmbeddingKind  string    `json:"embedding_kind"`
	Dimensions     int       `json:"dimensions"`
	MinClusterSize int       `json:"min_cluster_size"`
	MinSamples     int       `json:"min_samples"`
	Collection     string    `json:"collection"`
	CreatedAt      time.Time `json:"created_at"`
}

// Metrics is the artifact form of model.QualityMetrics. Nil pointers encode
// as null and mean not applicable.
type Metrics struct {
	Clusters         int      `json:"n_clusters"`
	Noise            int      `json:"n_noise"`
	Silhouette       *float64 `json:"silhouette_score"`
	Coherence        *float64 `json:"coherence"`
	CoherentClusters int      `json:"coherent_clusters"`
}

// ClusterDetail summarizes one cluster.
type ClusterDetail struct {
	Label          int                `json:"label"`
	Size           int                `json:"size"`
	ErrorTypes     []model.ShapeCount `json:"error_types"`
	Coherent       bool               `json:"coherent"`
	Representative string             `json:"representative"`
}

// Artifact is the persisted result of one clustering run.
type Artifact struct {
	Run            Run                            `json:"run"`
	Metrics        Metrics                        `json:"metrics"`
	Labels         map[string]int                 `json:"labels"`
	Clusters       map[string][]string            `json:"clusters"`
	ClusterDetails []ClusterDetail                `json:"cluster_details"`
	SampleMetrics  map[string]model.SampleMetrics `json:"sample_metrics"`
}

// NoiseKey is the Clusters entry holding noise case ids.
const NoiseKey = "noise"

// New builds the artifact for assignment a.
func New(run Run, a model.ClusterAssignment) *Artifact {
	if run.Method == "" {
		run.Method = Method
	}
	art := &Artifact{
		Run: run,
		Metrics: Metrics{
			Clusters:         a.Metrics.Clusters,
			Noise:            a.Metrics.Noise,
			Silhouette:       a.Metrics.Silhouette,
			Coherence:        a.Metrics.Coherence,
			CoherentClusters: a.Metrics.CoherentClusters,
		},
		Labels:         make(map[string]int, len(a.Labels)),
		Clusters:       make(map[string][]string, len(a.Clusters)+1),
		ClusterDetails: make([]ClusterDetail, 0, len(a.Clusters)),
		SampleMetrics:  make(map[string]model.SampleMetrics, len(a.Samples)),
	}
	for id, l := range a.Labels {
		art.Labels[id] = l
	}
	for id, s := range a.Samples {
		art.SampleMetrics[id] = s
	}
	for _, c := range a.Clusters {
		art.Clusters[strconv.Itoa(c.Label)] = c.Members
		art.ClusterDetails = append(art.ClusterDetails, ClusterDetail{
			Label:          c.Label,
			Size:           len(c.Members),
			ErrorTypes:     c.Shapes,
			Coherent:       c.Coherent,
			Representative: c.Representative,
		})
	}
	if noise := a.Noise(); len(noise) > 0 {
		art.Clusters[NoiseKey] = noise
	}
	return art
}

// Assignment rebuilds the assignment view needed for comparison. Centroids
// are not persisted, so ClusterSummary.Centroid is nil.
func (a *Artifact) Assignment() model.ClusterAssignment {
	out := model.ClusterAssignment{
		Labels:  a.Labels,
		Samples: a.SampleMetrics,
		Metrics: model.QualityMetrics{
			Clusters:         a.Metrics.Clusters,
			Noise:            a.Metrics.Noise,
			Silhouette:       a.Metrics.Silhouette,
			Coherence:        a.Metrics.Coherence,
			CoherentClusters: a.Metrics.CoherentClusters,
		},
	}
	for _, d := range a.ClusterDetails {
		out.Clusters = append(out.Clusters, model.ClusterSummary{
			Label:          d.Label,
			Members:        a.Clusters[strconv.Itoa(d.Label)],
			Shapes:         d.ErrorTypes,
			Coherent:       d.Coherent,
			Representative: d.Representative,
		})
	}
	return out
}

// Groups is the number of things a person has to look at: every cluster
// plus every noise point.
func (a *Artifact) Groups() int {
	return a.Metrics.Clusters + a.Metrics.Noise
}

// Load reads an artifact written by a previous run.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cluster artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, &model.SerializationError{Path: path, Err: err}
	}
	if art.Labels == nil {
		return nil, &model.SerializationError{Path: path, Err: fmt.Errorf("no labels")}
	}
	sort.Slice(art.ClusterDetails, func(i, j int) bool {
		return art.ClusterDetails[i].Label < art.ClusterDetails[j].Label
	})
	return &art, nil
}

// DefaultName is the artifact path for clustering collection with modelKey
// at the given sizes: <stem>_clusters_<model>_mcs<N>[_ms<M>].json, next to
// the collection file or directory. Dashes in the model key become
// underscores; _ms<M> appears only when min samples differs from the
// cluster size.
func DefaultName(coll, modelKey string, minClusterSize, minSamples int) string {
	name := fmt.Sprintf("%s_clusters_%s_mcs%d", collection.Stem(coll), strings.ReplaceAll(modelKey, "-", "_"), minClusterSize)
	if minSamples != 0 && minSamples != minClusterSize {
		name += fmt.Sprintf("_ms%d", minSamples)
	}
	dir := strings.TrimRight(coll, string(filepath.Separator))
	if dir == "" {
		dir = coll
	}
	return filepath.Join(filepath.Dir(dir), name+".json")
}
