package main

import (
	"github.com/spf13/cobra"

	"github.com/crimson-sun/faultline/internal/pipeline"
)

var clusterFlags struct {
	model          string
	minClusterSize int
	minSamples     int
	out            string
	verbosity      string
	json           bool
}

var clusterCmd = &cobra.Command{
	Use:   "cluster COLLECTION",
	Short: "Cluster a signature collection by root cause",
	Long: "cluster embeds every signature of COLLECTION (a collection file or a\n" +
		"directory of signature files), groups them with HDBSCAN and writes\n" +
		"<collection>_clusters_<model>_mcs<N>.json next to it.",
	Args: cobra.ExactArgs(1),
	RunE: runCluster,
}

func init() {
	f := clusterCmd.Flags()
	f.StringVarP(&clusterFlags.model, "model", "m", "", "Embedding model key (default from config)")
	f.IntVar(&clusterFlags.minClusterSize, "min-cluster-size", 0, "Smallest group reported as a cluster (default from config)")
	f.IntVar(&clusterFlags.minSamples, "min-samples", 0, "Neighbours defining a core point (default: min cluster size)")
	f.StringVarP(&clusterFlags.out, "out", "o", "", "Artifact path")
	f.StringVar(&clusterFlags.verbosity, "verbosity", "", "Summary detail: minimal, standard or full")
	f.BoolVar(&clusterFlags.json, "json", false, "Also print the artifact as JSON")
}

func runCluster(cmd *cobra.Command, args []string) error {
	p, err := newPipeline(cmd, clusterFlags.json)
	if err != nil {
		return err
	}
	defer p.Close()

	_, err = p.Cluster(cmd.Context(), pipeline.ClusterRequest{
		Collection:     args[0],
		Model:          clusterFlags.model,
		MinClusterSize: changedInt(cmd, "min-cluster-size", clusterFlags.minClusterSize),
		MinSamples:     changedInt(cmd, "min-samples", clusterFlags.minSamples),
		Out:            clusterFlags.out,
		Verbosity:      clusterFlags.verbosity,
	})
	return err
}
