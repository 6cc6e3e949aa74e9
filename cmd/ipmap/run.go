package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/matter-ipmap/internal/infrastructure/config"
	"github.com/nerrad567/matter-ipmap/internal/infrastructure/logging"
)

// runOptions are the flags of `ipmap run`.
type runOptions struct {
	snapshot  string
	outputDir string
	threshold float64
	quiet     bool
}

// overrides turns the set flags into config overrides. Logs go to stderr
// so stdout carries only the report.
func (o *runOptions) overrides() func(*config.Config) {
	return func(c *config.Config) {
		c.Logging.Output = "stderr"
		if o.snapshot != "" {
			c.HomeAssistant.SnapshotFile = o.snapshot
		}
		if o.outputDir != "" {
			c.Output.Enabled = true
			c.Output.Dir = o.outputDir
		}
		if o.threshold != 0 {
			c.Matching.Threshold = o.threshold
		}
	}
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Map devices once, write the reports and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := root.loadConfig(opts.overrides())
			if err != nil {
				return err
			}
			return runOnce(cmd, cfg, path, opts.quiet)
		},
	}

	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Read the inventory from a registry JSON dump instead of Home Assistant")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for the report files")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Similarity a match must exceed (0 keeps the configured value)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print the report")
	return cmd
}

// runOnce performs a single mapping run. The report is printed even when a
// delivery fails; the failure is still returned.
func runOnce(cmd *cobra.Command, cfg *config.Config, configPath string, quiet bool) error {
	ctx := cmd.Context()

	log := logging.New(cfg.Logging, version)
	log.Info("starting ipmap run", "version", version, "config", configPath)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.runner.Execute(ctx)
	if run.ID == "" {
		return err
	}

	if !quiet {
		if _, werr := io.WriteString(cmd.OutOrStdout(), run.Report.Text); werr != nil {
			return fmt.Errorf("writing report: %w", werr)
		}
	}
	return err
}
