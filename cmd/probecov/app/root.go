package app

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/probecov/internal/config"
	"github.com/zjy-dev/probecov/internal/logger"
)

// globalOptions are shared by every subcommand. cfg is loaded before any
// subcommand runs.
type globalOptions struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

// NewProbecovCommand creates the root command for the probecov tool.
func NewProbecovCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "probecov",
		Short: "Probe based code coverage for stack VM bytecode.",
		Long: `probecov instruments the methods of stack VM classes with probes,
collects the probes fired while the instrumented code runs, and turns them
into instruction, branch, line, complexity, method and class coverage that
can be checked against rules.

Configuration is read from probecov.yaml in the working directory or a
configs directory, or from the file given with --config. Every key can be
overridden with a PROBECOV_ environment variable, e.g. PROBECOV_LOG_LEVEL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = opts.logLevel
			}
			opts.cfg = cfg
			return setupLogger(cfg.Log)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(NewInstrumentCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))

	return cmd
}

func setupLogger(c config.LogConfig) error {
	logger.Init(c.Level)
	logger.SetLevel(c.Level)
	switch {
	case c.Backend == "commonlog":
		path := ""
		if c.Dir != "" {
			path = filepath.Join(c.Dir, "probecov.log")
		}
		logger.UseCommonlog(c.Level, path)
	case c.Dir != "":
		if err := logger.InitWithFile(c.Level, c.Dir); err != nil {
			return err
		}
	}
	return nil
}
