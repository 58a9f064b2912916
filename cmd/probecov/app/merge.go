package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/probecov/internal/execdata"
)

// NewMergeCommand creates the "merge" subcommand.
func NewMergeCommand(g *globalOptions) *cobra.Command {
	var (
		output string
		format string
	)

	cmd := &cobra.Command{
		Use:   "merge <exec-file>...",
		Short: "Merge execution data files into one.",
		Long: `Merge combines the records and sessions of several execution data files.
Records of the same class are merged probe by probe; records that share a
class id but disagree on name or probe count are rejected.

Examples:
  probecov merge a.exec b.exec -o all.exec
  probecov merge a.exec b.exec -o all.exec --format msgpack`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("format") {
				cfg.Record.Format = format
			}
			if output == "" {
				output = cfg.Record.File
			}

			store, sessions, err := loadExecFiles(cmd.Context(), cfg, args)
			if err != nil {
				return err
			}
			outFormat, err := cfg.RecordFormat()
			if err != nil {
				return err
			}
			fm := execdata.NewFileManager(output, outFormat, store.Mode())
			if err := fm.Store().Merge(store); err != nil {
				return err
			}
			for _, s := range sessions {
				fm.AddSession(s)
			}
			if err := fm.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "[Merge] %d file(s), %d record(s), %d session(s) -> %s\n",
				len(args), store.Len(), len(sessions), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default from config)")
	cmd.Flags().StringVar(&format, "format", "", "Output encoding: cbor or msgpack (default from config)")

	return cmd
}
