package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/faultline/internal/engine/collection"
	"github.com/crimson-sun/faultline/internal/model"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, exitOK},
		{"cluster config", fmt.Errorf("run: %w", &model.ClusterConfigError{Field: "min_cluster_size", Value: 1}), exitUsage},
		{"joined cluster config", errors.Join(errors.New("x"), &model.ClusterConfigError{Field: "min_samples"}), exitUsage},
		{"empty collection", &model.EmptyCollectionError{Requested: 3, Skipped: 3}, exitFailed},
		{"resource", &model.ResourceError{Asset: "model.onnx", Err: os.ErrNotExist}, exitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func writeCollection(t *testing.T, dir string) string {
	t.Helper()
	var sigs []model.FailureSignature
	for i := 0; i < 8; i++ {
		errType := "Missing field '[VALUE]'"
		if i%2 == 1 {
			errType = "Timeout after [NUMBER] waiting for LLM"
		}
		sigs = append(sigs, model.FailureSignature{
			CaseID:     fmt.Sprintf("case-%d", i),
			Clustering: model.ClusteringSection{ErrorType: errType},
		})
	}
	coll := filepath.Join(dir, "failures.json")
	require.NoError(t, collection.Save(coll, model.NewCollection(sigs)))
	return coll
}

func TestClusterCommand(t *testing.T) {
	dir := t.TempDir()
	coll := writeCollection(t, dir)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs([]string{"cluster", coll, "--model", "hash", "--min-cluster-size", "3"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "Cluster 0: 4 failures")
	_, err := os.Stat(filepath.Join(dir, "failures_clusters_hash_mcs3.json"))
	assert.NoError(t, err)
	assert.Contains(t, errOut.String(), "run complete")
}

func TestClusterCommandRejectsExplicitZeroSize(t *testing.T) {
	for _, flag := range []string{"--min-cluster-size", "--min-samples"} {
		t.Run(flag, func(t *testing.T) {
			dir := t.TempDir()
			coll := writeCollection(t, dir)
			value := "0"
			if flag == "--min-samples" {
				value = "-1"
			}

			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&bytes.Buffer{})
			rootCmd.SetArgs([]string{"cluster", coll, "--model", "hash", "--min-cluster-size", "3", flag + "=" + value})
			err := rootCmd.ExecuteContext(context.Background())

			var ce *model.ClusterConfigError
			require.True(t, errors.As(err, &ce), "err = %v", err)
			assert.Equal(t, exitUsage, exitCode(err))
			assert.NotContains(t, out.String(), "Cluster assignments saved")

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "only the collection file")
		})
	}
}
