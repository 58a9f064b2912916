package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/probecov/internal/check"
)

// NewCheckCommand creates the "check" subcommand.
func NewCheckCommand(g *globalOptions) *cobra.Command {
	var (
		flags  analysisFlags
		showOK bool
		noFail bool
	)

	cmd := &cobra.Command{
		Use:   "check <class-file|dir>...",
		Short: "Check coverage against the configured rules.",
		Long: `Check computes coverage like report and evaluates the rules of the
check section of the configuration. Every violated limit is printed; the
command fails when a limit is violated unless fail_on_violation is false.

Example rule (probecov.yaml):
  check:
    rules:
      - element: CLASS
        limits:
          - counter: LINE
            value: COVEREDRATIO
            minimum: "0.80"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("no-fail") {
				cfg.Check.FailOnViolation = !noFail
			}
			if len(cfg.Check.Rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "[Check] No rules configured")
				return nil
			}
			s, err := flags.summarize(cmd, cfg, args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range s.Results {
				if r.Result == check.Violated || showOK {
					fmt.Fprintln(out, r.Message())
				}
			}
			violations := s.Violations()
			fmt.Fprintf(out, "[Check] %d limit(s) checked, %d violated\n", len(s.Results), violations)
			if violations > 0 && cfg.Check.FailOnViolation {
				return fmt.Errorf("coverage check failed: %d violation(s)", violations)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&showOK, "show-ok", false, "Also print satisfied limits")
	cmd.Flags().BoolVar(&noFail, "no-fail", false, "Do not fail on violations")

	return cmd
}
