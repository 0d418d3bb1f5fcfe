package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/faultline/internal/engine/embedder"
	"github.com/crimson-sun/faultline/internal/pipeline"
)

var compareFlags struct {
	models         []string
	minClusterSize int
	minSamples     int
}

var compareCmd = &cobra.Command{
	Use:   "compare COLLECTION",
	Short: "Cluster one collection with several models and compare them",
	Long: "compare runs cluster once per --model, writing each model's artifact, then\n" +
		"ranks the models by silhouette score and prints their pairwise agreement.\n\n" +
		"Models: " + strings.Join(embedder.Keys(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	f := compareCmd.Flags()
	f.StringArrayVarP(&compareFlags.models, "model", "m", nil, "Embedding model key (repeat at least twice)")
	f.IntVar(&compareFlags.minClusterSize, "min-cluster-size", 0, "Smallest group reported as a cluster (default from config)")
	f.IntVar(&compareFlags.minSamples, "min-samples", 0, "Neighbours defining a core point (default: min cluster size)")

	_ = compareCmd.MarkFlagRequired("model")
}

func runCompare(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(cmd, false)
	if err != nil {
		return err
	}
	defer p.Close()

	_, err = p.Compare(cmd.Context(), pipeline.CompareRequest{
		Collection:     args[0],
		Models:         compareFlags.models,
		MinClusterSize: changedInt(cmd, "min-cluster-size", compareFlags.minClusterSize),
		MinSamples:     changedInt(cmd, "min-samples", compareFlags.minSamples),
	})
	return err
}
