package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/probecov/internal/config"
	"github.com/zjy-dev/probecov/internal/report"
)

// analysisFlags are shared by report and check.
type analysisFlags struct {
	execFiles []string
	name      string
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.execFiles, "exec", "e", nil, "Execution data file (repeatable, default from config)")
	cmd.Flags().StringVar(&f.name, "name", "", "Bundle name (default from config)")
}

// summarize runs the whole analysis: instrument, load execution data,
// analyze, check.
func (f *analysisFlags) summarize(cmd *cobra.Command, cfg *config.Config, classPaths []string) (*report.Summary, error) {
	if cmd.Flags().Changed("name") {
		cfg.Report.Name = f.name
	}
	classes, err := loadClasses(classPaths)
	if err != nil {
		return nil, err
	}
	results, err := instrumentAll(cfg, classes)
	if err != nil {
		return nil, err
	}
	store, sessions, err := loadExecFiles(cmd.Context(), cfg, execFiles(cfg, f.execFiles))
	if err != nil {
		return nil, err
	}
	bundle, err := analyzeAll(cmd.Context(), results, store, cfg.Report.Name)
	if err != nil {
		return nil, err
	}
	checks, _, err := checkBundle(cfg, bundle)
	if err != nil {
		return nil, err
	}
	return &report.Summary{
		Bundle:    bundle,
		Sessions:  sessions,
		Results:   checks,
		Generated: time.Now(),
	}, nil
}

// NewReportCommand creates the "report" subcommand.
func NewReportCommand(g *globalOptions) *cobra.Command {
	var (
		flags  analysisFlags
		format string
		output string
		noLine bool
	)

	cmd := &cobra.Command{
		Use:   "report <class-file|dir>...",
		Short: "Analyze execution data and render a coverage report.",
		Long: `Report matches the execution data with the given classes, computes their
coverage and renders it with the selected writer. Configured rules are
evaluated and included in the report.

Formats: console, markdown, json, yaml.

Examples:
  probecov report ./classes --exec probecov.exec
  probecov report ./classes --format markdown --output reports`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("format") {
				cfg.Report.Format = format
			}
			if cmd.Flags().Changed("output") {
				cfg.Report.Output = output
			}
			if cmd.Flags().Changed("no-lines") {
				cfg.Report.Lines = !noLine
			}

			r, err := report.New(cfg.Report.Format, map[string]interface{}{"lines": cfg.Report.Lines})
			if err != nil {
				return err
			}
			s, err := flags.summarize(cmd, cfg, args)
			if err != nil {
				return err
			}
			if cfg.Report.Output == "" {
				return r.Write(cmd.OutOrStdout(), s)
			}
			path, err := report.Save(r, cfg.Report.Output, s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[Report] Written to %s\n", path)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "", "Report format (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory; empty writes to stdout")
	cmd.Flags().BoolVar(&noLine, "no-lines", false, "Omit per line data from json and yaml reports")

	return cmd
}
