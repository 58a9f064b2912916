package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zjy-dev/probecov/internal/analysis"
	"github.com/zjy-dev/probecov/internal/bytecode"
	"github.com/zjy-dev/probecov/internal/check"
	"github.com/zjy-dev/probecov/internal/config"
	"github.com/zjy-dev/probecov/internal/coverage"
	"github.com/zjy-dev/probecov/internal/execdata"
	"github.com/zjy-dev/probecov/internal/instrument"
	"github.com/zjy-dev/probecov/internal/logger"
)

// classExtensions are the file extensions picked up when a directory is
// given instead of a class file.
var classExtensions = []string{".pasm", ".asm"}

// classFiles expands directories into the class files below them.
func classFiles(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := filepath.Ext(path)
			for _, e := range classExtensions {
				if !d.IsDir() && ext == e {
					out = append(out, path)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(out)
	return out, nil
}

// loadClasses assembles every class file.
func loadClasses(paths []string) ([]*bytecode.Class, error) {
	files, err := classFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no class files found")
	}
	classes := make([]*bytecode.Class, 0, len(files))
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		c, err := bytecode.Assemble(string(src))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		classes = append(classes, c)
	}
	return classes, nil
}

// instrumentAll instruments every class. Method failures are logged by the
// instrumenter and leave the method uninstrumented.
func instrumentAll(cfg *config.Config, classes []*bytecode.Class) ([]*instrument.Result, error) {
	in := instrument.New(instrument.Options{MaxProbes: cfg.Instrument.MaxProbes})
	results := make([]*instrument.Result, len(classes))
	for i, c := range classes {
		res, err := in.Instrument(c)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

// loadExecFiles merges every execution data file into one store, decoding
// the files concurrently.
func loadExecFiles(ctx context.Context, cfg *config.Config, paths []string) (*execdata.Store, []execdata.SessionInfo, error) {
	mode, err := cfg.RecordMode()
	if err != nil {
		return nil, nil, err
	}
	format, err := cfg.RecordFormat()
	if err != nil {
		return nil, nil, err
	}

	managers := make([]*execdata.FileManager, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, nil, fmt.Errorf("execution data %s: %w", p, err)
		}
		managers[i] = execdata.NewFileManager(p, format, mode)
		fm := managers[i]
		g.Go(fm.Load)
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	store := execdata.NewStore(mode)
	var sessions []execdata.SessionInfo
	for _, fm := range managers {
		if err := store.Merge(fm.Store()); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", fm.GetFilePath(), err)
		}
		sessions = append(sessions, fm.Sessions()...)
	}
	for _, c := range store.CheckNames() {
		ids := make([]string, len(c.IDs))
		for i, id := range c.IDs {
			ids[i] = bytecode.FormatClassID(id)
		}
		logger.Warn("Execution data for %s was recorded for %d different class versions: %s",
			c.Name, len(c.IDs), strings.Join(ids, ", "))
	}
	return store, sessions, nil
}

// analyzeAll computes the coverage of every class concurrently and rolls
// it up into a bundle.
func analyzeAll(ctx context.Context, results []*instrument.Result, store *execdata.Store, name string) (*coverage.Bundle, error) {
	builder := coverage.NewBuilder()
	a := analysis.NewAnalyzer(store, builder)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, res := range results {
		res := res
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := a.Analyze(res)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if n := len(builder.NoMatchClasses()); n > 0 {
		logger.Warn("%d class(es) do not match their execution data", n)
	}
	return builder.Bundle(name), nil
}

// checkBundle runs the configured rules and collects every result.
func checkBundle(cfg *config.Config, bundle *coverage.Bundle) ([]check.CheckResult, int, error) {
	checker := check.NewRulesChecker()
	if err := checker.SetRules(cfg.Check.Rules); err != nil {
		return nil, 0, err
	}
	var results []check.CheckResult
	n, err := checker.CreateVisitor(check.OutputFunc(func(r check.CheckResult) {
		results = append(results, r)
	})).Visit(bundle)
	return results, n, err
}

// execFiles returns the given files or the configured default.
func execFiles(cfg *config.Config, given []string) []string {
	if len(given) > 0 {
		return given
	}
	return []string{cfg.Record.File}
}
