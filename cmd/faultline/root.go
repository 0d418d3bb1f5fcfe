package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/faultline/internal/config"
	"github.com/crimson-sun/faultline/internal/logging"
	"github.com/crimson-sun/faultline/internal/output"
	"github.com/crimson-sun/faultline/internal/output/async"
	"github.com/crimson-sun/faultline/internal/output/multi"
	"github.com/crimson-sun/faultline/internal/output/stdout"
	"github.com/crimson-sun/faultline/internal/output/webhook"
	"github.com/crimson-sun/faultline/internal/pipeline"

	// Register source providers.
	_ "github.com/crimson-sun/faultline/internal/connector/file"
	_ "github.com/crimson-sun/faultline/internal/connector/sqlite"
)

var globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// cfg is loaded once per invocation by the root PersistentPreRunE.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "Group failed test executions by root cause",
	Long: "faultline extracts a failure signature from every failed test execution\n" +
		"and clusters the signatures so failures sharing one cause land together.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: loadConfig,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&globalFlags.configPath, "config", "", "YAML config file (default $FAULTLINE_CONFIG)")
	f.StringVar(&globalFlags.logLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&globalFlags.logFormat, "log-format", "", "text or json")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.Version = config.Version
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(globalFlags.configPath)
	if err != nil {
		return err
	}
	if globalFlags.logLevel != "" {
		c.Log.Level = globalFlags.logLevel
	}
	if globalFlags.logFormat != "" {
		c.Log.Format = globalFlags.logFormat
	}
	cfg = c
	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, cmd.ErrOrStderr())
	return nil
}

// newPipeline builds a pipeline for the current command. jsonOut also
// prints every cluster artifact to stdout as JSON.
func newPipeline(cmd *cobra.Command, jsonOut bool) (*pipeline.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var notifiers []output.Output
	if cfg.Output.WebhookURL != "" {
		notifiers = append(notifiers, async.New(webhook.New(cfg.Output.WebhookURL),
			async.WithOnError(func(err error) {
				logging.New("webhook").Warn("webhook delivery failed", "error", err)
			})))
	}
	if jsonOut {
		notifiers = append(notifiers, stdout.NewWriter(cmd.OutOrStdout(), true))
	}

	opts := []pipeline.Option{
		pipeline.WithStdout(cmd.OutOrStdout()),
		pipeline.WithLogger(slog.Default()),
	}
	if len(notifiers) > 0 {
		opts = append(opts, pipeline.WithNotifier(multi.New(notifiers...)))
	}
	return pipeline.New(cfg, opts...), nil
}

// changedInt returns &v when the flag was given on the command line, so an
// explicit zero reaches validation instead of meaning "use the config".
func changedInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
