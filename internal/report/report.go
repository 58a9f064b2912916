// Package report renders a coverage bundle, its sessions and check results.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zjy-dev/probecov/internal/check"
	"github.com/zjy-dev/probecov/internal/coverage"
	"github.com/zjy-dev/probecov/internal/execdata"
)

// Summary is everything a reporter can show about one analysis.
type Summary struct {
	Bundle    *coverage.Bundle
	Sessions  []execdata.SessionInfo
	Results   []check.CheckResult
	Generated time.Time
}

// Violations counts the violated check results.
func (s *Summary) Violations() int {
	n := 0
	for _, r := range s.Results {
		if r.Result == check.Violated {
			n++
		}
	}
	return n
}

// Reporter defines the interface for rendering a summary.
type Reporter interface {
	// Write renders the summary to w.
	Write(w io.Writer, s *Summary) error
	// Ext is the file extension used by Save.
	Ext() string
}

// Factory creates a reporter from format specific options.
type Factory func(options map[string]interface{}) (Reporter, error)

var registry = make(map[string]Factory)

// Register adds a reporter factory to the registry.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New creates a reporter by format name.
func New(name string, options map[string]interface{}) (Reporter, error) {
	factory, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("report format not found: %s", name)
	}
	return factory(options)
}

// Formats lists the registered format names.
func Formats() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Save renders the summary into a new file inside outputDir and returns
// its path.
func Save(r Reporter, outputDir string, s *Summary) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	name := "coverage"
	if s.Bundle != nil && s.Bundle.Name() != "" {
		name = sanitize(s.Bundle.Name())
	}
	path := filepath.Join(outputDir, fmt.Sprintf("%s_%d.%s", name, time.Now().UnixNano(), r.Ext()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	if err := r.Write(f, s); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, name)
}

func boolOption(options map[string]interface{}, key string, def bool) bool {
	if v, ok := options[key].(bool); ok {
		return v
	}
	return def
}

func percent(c coverage.Counter) string {
	if c.Total() == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", c.CoveredRatio()*100)
}
