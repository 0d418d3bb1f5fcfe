package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/faultline/internal/engine/compactor"
	"github.com/crimson-sun/faultline/internal/model"
)

func ptr[T any](v T) *T { return &v }

func sampleAssignment() model.ClusterAssignment {
	return model.ClusterAssignment{
		Labels: map[string]int{"a": 0, "b": 0, "c": 0, "d": 1, "e": 1, "z": model.NoiseLabel},
		Clusters: []model.ClusterSummary{
			{
				Label:          0,
				Members:        []string{"a", "b", "c"},
				Shapes:         []model.ShapeCount{{Shape: "Missing field '[VALUE]'", Count: 3}},
				Coherent:       true,
				Representative: "b",
			},
			{
				Label:   1,
				Members: []string{"d", "e"},
				Shapes: []model.ShapeCount{
					{Shape: "E1", Count: 1},
					{Shape: "E2", Count: 1},
				},
				Coherent:       true,
				Representative: "d",
			},
		},
		Samples: map[string]model.SampleMetrics{
			"a": {Cluster: 0, Silhouette: ptr(0.9), DistanceToCentroid: ptr(0.1)},
			"z": {Cluster: model.NoiseLabel, NearestCluster: ptr(1), NearestSimilarity: 0.77},
		},
		Metrics: model.QualityMetrics{
			Clusters:         2,
			Noise:            1,
			Silhouette:       ptr(0.81),
			Coherence:        ptr(1.0),
			CoherentClusters: 2,
		},
	}
}

func sampleRun() Run {
	return Run{
		RunID:          "run-1",
		EmbeddingModel: "hash",
		EmbeddingKind:  "hash",
		Dimensions:     256,
		MinClusterSize: 2,
		MinSamples:     2,
		Collection:     "failure_signature_collection_x.json",
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestArtifactJSONShape(t *testing.T) {
	art := New(sampleRun(), sampleAssignment())
	data, err := json.Marshal(art)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"run", "metrics", "labels", "clusters", "cluster_details", "sample_metrics"} {
		assert.Contains(t, raw, key)
	}

	run := raw["run"].(map[string]any)
	assert.Equal(t, "hdbscan", run["method"])

	metrics := raw["metrics"].(map[string]any)
	assert.Equal(t, 0.81, metrics["silhouette_score"])
	assert.EqualValues(t, 2, metrics["n_clusters"])

	clusters := raw["clusters"].(map[string]any)
	assert.Equal(t, []any{"a", "b", "c"}, clusters["0"])
	assert.Equal(t, []any{"z"}, clusters["noise"])

	details := raw["cluster_details"].([]any)
	first := details[0].(map[string]any)
	assert.Equal(t, []any{map[string]any{"error_type": "Missing field '[VALUE]'", "count": 3.0}}, first["error_types"])
}

func TestArtifactNullMetrics(t *testing.T) {
	a := model.ClusterAssignment{
		Labels:  map[string]int{"a": model.NoiseLabel},
		Metrics: model.QualityMetrics{Noise: 1},
	}
	data, err := json.Marshal(New(sampleRun(), a))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"silhouette_score":null`)
	assert.Contains(t, string(data), `"coherence":null`)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	want := New(sampleRun(), sampleAssignment())
	data, err := json.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}

	back := got.Assignment()
	assert.Equal(t, []string{"d", "e"}, back.Members(1))
	assert.Equal(t, []string{"z"}, back.Noise())
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	var se *model.SerializationError
	assert.True(t, errors.As(err, &se), "err = %v", err)
}

func TestDefaultName(t *testing.T) {
	coll := filepath.Join("out", "failure_signature_collection_20260301T120000Z.json")
	sigDir := filepath.Join("out", "sigs")
	tests := []struct {
		name           string
		coll, model    string
		mcs, minSample int
		want           string
	}{
		{"file", coll, "openai-small", 5, 0, "failure_signature_collection_20260301T120000Z_clusters_openai_small_mcs5.json"},
		{"min samples equal to size", coll, "hash", 5, 5, "failure_signature_collection_20260301T120000Z_clusters_hash_mcs5.json"},
		{"min samples set", coll, "hash", 5, 2, "failure_signature_collection_20260301T120000Z_clusters_hash_mcs5_ms2.json"},
		{"directory", sigDir, "hash", 3, 0, "sigs_clusters_hash_mcs3.json"},
		{"directory trailing slash", sigDir + string(filepath.Separator), "hash", 3, 0, "sigs_clusters_hash_mcs3.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultName(tt.coll, tt.model, tt.mcs, tt.minSample)
			assert.Equal(t, filepath.Join("out", tt.want), got)
		})
	}
}

func TestDefaultNameDistinctPerSize(t *testing.T) {
	seen := map[string]bool{}
	for _, mcs := range []int{2, 3, 5, 8} {
		name := DefaultName("c.json", "hash", mcs, 0)
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
}

func sampleCollection() *model.Collection {
	sig := func(id, test string) model.FailureSignature {
		return model.FailureSignature{CaseID: id, TestName: test}
	}
	return model.NewCollection([]model.FailureSignature{
		sig("a", "test_destination"), sig("b", "test_destination"), sig("c", "test_budget"),
		sig("d", "test_dates"), sig("e", "test_dates"), sig("z", "test_odd"),
	})
}

func TestSummaryStandard(t *testing.T) {
	var buf bytes.Buffer
	err := NewSummary(compactor.Standard).Write(&buf, New(sampleRun(), sampleAssignment()), sampleCollection())
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "Cluster 0: 3 failures ✓")
	assert.Contains(t, out, "Missing field '[VALUE]'")
	assert.Contains(t, out, "(3/3 = 100%)")
	assert.Contains(t, out, "test_destination: 2 failures")
	assert.Contains(t, out, "Representative: b")
	assert.Contains(t, out, "z (nearest cluster 1, similarity 0.77)")
	assert.Contains(t, out, "Groups to investigate: 3 (2 clusters + 1 noise)")
	assert.Contains(t, out, "Coherent clusters: 2/2 (100%)")
	assert.Contains(t, out, "0.810")
}

func TestSummaryVerbosity(t *testing.T) {
	art := New(sampleRun(), sampleAssignment())

	var minimal bytes.Buffer
	require.NoError(t, NewSummary(compactor.Minimal).Write(&minimal, art, nil))
	assert.NotContains(t, minimal.String(), "Case IDs:")
	assert.NotContains(t, minimal.String(), "Tests involved")

	var full bytes.Buffer
	require.NoError(t, NewSummary(compactor.Full).Write(&full, art, nil))
	assert.Contains(t, full.String(), "Case IDs:")
	assert.NotContains(t, full.String(), "... and")
}

func TestSummaryNoClusters(t *testing.T) {
	a := model.ClusterAssignment{
		Labels:  map[string]int{"a": model.NoiseLabel, "b": model.NoiseLabel},
		Metrics: model.QualityMetrics{Noise: 2},
	}
	var buf bytes.Buffer
	require.NoError(t, NewSummary(compactor.Standard).Write(&buf, New(sampleRun(), a), nil))
	assert.Contains(t, buf.String(), "No clusters found; 2 failures are noise.")
	assert.Contains(t, buf.String(), "N/A")
}

func TestCompareRanksBySilhouette(t *testing.T) {
	mk := func(score *float64, labels map[string]int) *Artifact {
		a := model.ClusterAssignment{Labels: labels, Metrics: model.QualityMetrics{Silhouette: score}}
		return New(sampleRun(), a)
	}
	labels := map[string]int{"a": 0, "b": 0, "c": 1, "d": 1}
	swapped := map[string]int{"a": 0, "b": 1, "c": 1, "d": 0}

	cmpRes := Compare([]Entry{
		{Model: "none", Artifact: mk(nil, labels)},
		{Model: "low", Artifact: mk(ptr(0.2), swapped)},
		{Model: "high", Artifact: mk(ptr(0.7), labels)},
	})

	var order []string
	for _, e := range cmpRes.Entries {
		order = append(order, e.Model)
	}
	assert.Equal(t, []string{"high", "low", "none"}, order)

	assert.Equal(t, 1.0, cmpRes.Agreement[0][2], "identical labels agree fully")
	assert.Equal(t, cmpRes.Agreement[0][1], cmpRes.Agreement[1][0])
	assert.Less(t, cmpRes.Agreement[0][1], 1.0)

	best, ok := cmpRes.Best()
	require.True(t, ok)
	assert.Equal(t, "high", best.Model)

	var buf bytes.Buffer
	require.NoError(t, cmpRes.Write(&buf))
	out := buf.String()
	assert.Contains(t, out, "Cluster agreement")
	assert.Contains(t, out, "Best: high (silhouette 0.700")
	assert.Less(t, strings.Index(out, "high"), strings.Index(out, "low"))
}

func TestCompareNoScores(t *testing.T) {
	a := New(sampleRun(), model.ClusterAssignment{Labels: map[string]int{"a": -1}})
	c := Compare([]Entry{{Model: "x", Artifact: a}, {Model: "y", Artifact: a}})
	_, ok := c.Best()
	assert.False(t, ok)
	assert.Equal(t, 0.0, c.Agreement[0][1])
}
