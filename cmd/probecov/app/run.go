package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjy-dev/probecov/internal/bytecode"
	"github.com/zjy-dev/probecov/internal/execdata"
	"github.com/zjy-dev/probecov/internal/logger"
)

// call is one method invocation requested on the command line.
type call struct {
	name string
	desc string
	args []bytecode.Value
}

// parseCall parses "name(desc)ret=arg,arg". The descriptor and the
// arguments are optional; arguments are ints or "null".
func parseCall(s string) (call, error) {
	sig, argList, _ := strings.Cut(s, "=")
	c := call{name: sig}
	if i := strings.IndexByte(sig, '('); i >= 0 {
		c.name, c.desc = sig[:i], sig[i:]
	}
	if c.name == "" {
		return call{}, fmt.Errorf("invalid call %q: missing method name", s)
	}
	if strings.TrimSpace(argList) == "" {
		return c, nil
	}
	for _, a := range strings.Split(argList, ",") {
		a = strings.TrimSpace(a)
		if a == "null" {
			c.args = append(c.args, bytecode.NullValue())
			continue
		}
		v, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return call{}, fmt.Errorf("invalid call %q: argument %q: %w", s, a, err)
		}
		c.args = append(c.args, bytecode.IntValue(int32(v)))
	}
	return c, nil
}

// NewRunCommand creates the "run" subcommand.
func NewRunCommand(g *globalOptions) *cobra.Command {
	var (
		execFile string
		calls    []string
		mode     string
		reset    bool
	)

	cmd := &cobra.Command{
		Use:   "run <class-file> --call 'name(desc)=args'...",
		Short: "Run methods of an instrumented class and record the probes.",
		Long: `Run instruments a class in memory, invokes the given methods with the
reference interpreter and merges the fired probes into the execution data
file, together with a new session entry.

An uncaught exception ends the invocation but keeps the probes fired so far.

Examples:
  # Call max(7,3) and max(2,9) and record into probecov.exec
  probecov run Calc.pasm --call 'max(II)I=7,3' --call 'max(II)I=2,9'

  # Count probe executions instead of recording booleans
  probecov run Calc.pasm --call 'sum(I)I=10' --mode count --exec sum.exec`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			if cmd.Flags().Changed("exec") {
				cfg.Record.File = execFile
			}
			if cmd.Flags().Changed("mode") {
				cfg.Record.Mode = mode
			}
			if len(calls) == 0 {
				return fmt.Errorf("at least one --call is required")
			}
			parsed := make([]call, len(calls))
			for i, s := range calls {
				c, err := parseCall(s)
				if err != nil {
					return err
				}
				parsed[i] = c
			}

			classes, err := loadClasses(args)
			if err != nil {
				return err
			}
			results, err := instrumentAll(cfg, classes)
			if err != nil {
				return err
			}
			res := results[0]

			recordMode, err := cfg.RecordMode()
			if err != nil {
				return err
			}
			format, err := cfg.RecordFormat()
			if err != nil {
				return err
			}
			fm := execdata.NewFileManager(cfg.Record.File, format, recordMode)
			if !reset {
				if err := fm.Load(); err != nil {
					return err
				}
			}

			session := execdata.NewSession()
			rec, err := fm.Store().Get(res.ClassID, res.Original.Name, res.ProbeCount)
			if err != nil {
				return err
			}
			vm := bytecode.NewVM(res.Class, rec)
			vm.Out = cmd.ErrOrStderr()

			out := cmd.OutOrStdout()
			for _, c := range parsed {
				v, err := vm.Invoke(c.name, c.desc, c.args...)
				var exc *bytecode.Exception
				switch {
				case errors.As(err, &exc):
					fmt.Fprintf(out, "[Run] %s: %v\n", c.name, exc)
				case err != nil:
					return err
				default:
					fmt.Fprintf(out, "[Run] %s = %s\n", c.name, v)
				}
			}
			session.Finish()
			fm.AddSession(session)
			if err := fm.Save(); err != nil {
				return err
			}

			logger.Info("Session %s: %d/%d probes of %s executed", session.ID, rec.Covered(), rec.Len(), res.Original.Name)
			fmt.Fprintf(out, "[Run] Execution data written to %s\n", fm.GetFilePath())
			return nil
		},
	}

	cmd.Flags().StringVarP(&execFile, "exec", "e", "", "Execution data file (default from config)")
	cmd.Flags().StringArrayVar(&calls, "call", nil, "Method call as name(desc)=arg,arg (repeatable)")
	cmd.Flags().StringVar(&mode, "mode", "", "Record mode: boolean or count (default from config)")
	cmd.Flags().BoolVar(&reset, "reset", false, "Discard existing execution data instead of merging")

	return cmd
}
