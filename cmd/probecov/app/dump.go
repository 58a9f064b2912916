package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/probecov/internal/bytecode"
	"github.com/zjy-dev/probecov/internal/execdata"
)

// NewDumpCommand creates the "dump" subcommand.
func NewDumpCommand(g *globalOptions) *cobra.Command {
	var probes bool

	cmd := &cobra.Command{
		Use:   "dump <exec-file>",
		Short: "Print the sessions and records of an execution data file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			f, err := execdata.Decode(in)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sessions (%d):\n", len(f.Sessions))
			for _, s := range f.Sessions {
				fmt.Fprintf(out, "  %s  %s .. %s\n", s.ID,
					s.Start.Format("2006-01-02 15:04:05"), s.Dump.Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintf(out, "Records (%d):\n", len(f.Records))
			for _, r := range f.Records {
				hit := 0
				var ids []string
				for i, v := range r.Probes {
					if v > 0 {
						hit++
						if r.Mode == execdata.ModeCount {
							ids = append(ids, fmt.Sprintf("%d:%d", i, v))
						} else {
							ids = append(ids, fmt.Sprint(i))
						}
					}
				}
				fmt.Fprintf(out, "  %s  %-40s %d/%d %s\n", bytecode.FormatClassID(r.ID), r.Name, hit, len(r.Probes), r.Mode)
				if probes && len(ids) > 0 {
					fmt.Fprintf(out, "    probes: %s\n", strings.Join(ids, " "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&probes, "probes", "p", false, "List the executed probe ids")

	return cmd
}
