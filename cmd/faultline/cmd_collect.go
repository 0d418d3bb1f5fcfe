package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/faultline/internal/pipeline"
)

var collectFlags struct {
	runIDs   []string
	caseIDs  []string
	out      string
	splitDir string
	source   string
	dbPath   string
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Extract failure signatures into a collection file",
	Long: "collect reads failed executions with their assertions and traces and writes\n" +
		"one failure signature per execution. Without --run-id or --case-id the\n" +
		"most recent run is used.",
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	f := collectCmd.Flags()
	f.StringArrayVar(&collectFlags.runIDs, "run-id", nil, "Run to collect failures from (repeatable)")
	f.StringArrayVar(&collectFlags.caseIDs, "case-id", nil, "Case to extract (repeatable); overrides --run-id")
	f.StringVarP(&collectFlags.out, "out", "o", "", "Collection path (default <output.dir>/failure_signature_collection_<timestamp>.json)")
	f.StringVar(&collectFlags.splitDir, "split-dir", "", "Also write one signature file per case into this directory")
	f.StringVar(&collectFlags.source, "source", "", "Source provider: sqlite or file")
	f.StringVar(&collectFlags.dbPath, "db", "", "SQLite database path")
}

func runCollect(cmd *cobra.Command, _ []string) error {
	if collectFlags.source != "" {
		cfg.Source.Provider = collectFlags.source
	}
	if collectFlags.dbPath != "" {
		cfg.Source.DBPath = collectFlags.dbPath
	}

	p, err := newPipeline(cmd, false)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.Collect(cmd.Context(), pipeline.CollectRequest{
		RunIDs:   collectFlags.runIDs,
		CaseIDs:  collectFlags.caseIDs,
		Out:      collectFlags.out,
		SplitDir: collectFlags.splitDir,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Extracted %d of %d failures\n", res.Report.Extracted, res.Report.Requested)
	for _, s := range res.Report.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", s.CaseID, s.Reason)
	}
	fmt.Fprintf(out, "Collection saved to: %s\n", res.Path)
	return nil
}
