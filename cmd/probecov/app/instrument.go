package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/probecov/internal/bytecode"
)

// NewInstrumentCommand creates the "instrument" subcommand.
func NewInstrumentCommand(g *globalOptions) *cobra.Command {
	var (
		output    string
		maxProbes int
	)

	cmd := &cobra.Command{
		Use:   "instrument <class-file|dir>...",
		Short: "Insert probes into classes and write the instrumented code.",
		Long: `Instrument assembles each class, inserts probes into every method and
writes the disassembled instrumented class into the output directory under
the same file name.

A method that cannot be instrumented is copied unchanged and reported;
the other methods of its class are still instrumented.

Examples:
  # Instrument all classes below ./classes into ./instrumented
  probecov instrument ./classes -o instrumented`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max-probes") {
				g.cfg.Instrument.MaxProbes = maxProbes
			}
			files, err := classFiles(args)
			if err != nil {
				return err
			}
			classes, err := loadClasses(files)
			if err != nil {
				return err
			}
			results, err := instrumentAll(g.cfg, classes)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(output, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			out := cmd.OutOrStdout()
			failed := 0
			for i, res := range results {
				path := filepath.Join(output, filepath.Base(files[i]))
				if err := os.WriteFile(path, []byte(bytecode.Disassemble(res.Class)), 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				fmt.Fprintf(out, "[Instrument] %s (%s): %d probes -> %s\n",
					res.Original.Name, bytecode.FormatClassID(res.ClassID), res.ProbeCount, path)
				for _, merr := range res.Errors {
					fmt.Fprintf(out, "  skipped %v\n", merr)
					failed++
				}
			}
			if failed > 0 {
				fmt.Fprintf(out, "[Instrument] %d method(s) left uninstrumented\n", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "instrumented", "Output directory for instrumented classes")
	cmd.Flags().IntVar(&maxProbes, "max-probes", 0, "Maximum probes per class (default from config)")

	return cmd
}
