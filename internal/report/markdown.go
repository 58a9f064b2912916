package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/zjy-dev/probecov/internal/check"
	"github.com/zjy-dev/probecov/internal/coverage"
)

// MarkdownReporter implements the Reporter interface by rendering tables
// of counters per package and class.
type MarkdownReporter struct {
	withMethods bool
}

func init() {
	Register("markdown", func(options map[string]interface{}) (Reporter, error) {
		return NewMarkdownReporter(boolOption(options, "methods", true)), nil
	})
}

// NewMarkdownReporter creates a new MarkdownReporter.
func NewMarkdownReporter(withMethods bool) *MarkdownReporter {
	return &MarkdownReporter{withMethods: withMethods}
}

func (r *MarkdownReporter) Ext() string { return "md" }

// Write renders the summary as markdown.
func (r *MarkdownReporter) Write(w io.Writer, s *Summary) error {
	var content strings.Builder

	name := "coverage"
	if s.Bundle != nil {
		name = s.Bundle.Name()
	}
	fmt.Fprintf(&content, "# Coverage Report: %s\n\n", name)
	if !s.Generated.IsZero() {
		fmt.Fprintf(&content, "Generated: %s\n\n", s.Generated.UTC().Format("2006-01-02 15:04:05 MST"))
	}

	if b := s.Bundle; b != nil {
		content.WriteString("## Summary\n\n")
		content.WriteString("| Counter | Missed | Covered | Total | Coverage |\n")
		content.WriteString("|---|---:|---:|---:|---:|\n")
		for _, e := range coverage.Entities {
			c := b.Counter(e)
			fmt.Fprintf(&content, "| %s | %d | %d | %d | %s |\n", entityLabels[e], c.Missed, c.Covered, c.Total(), percent(c))
		}
		content.WriteString("\n")

		for _, p := range b.Packages {
			fmt.Fprintf(&content, "## Package %s\n\n", packageTitle(p.Name()))
			content.WriteString("| Element | Instructions | Branches | Lines | Methods |\n")
			content.WriteString("|---|---:|---:|---:|---:|\n")
			for _, c := range p.Classes {
				label := "`" + c.Name() + "`"
				if c.NoMatch {
					label += " (no match)"
				}
				r.row(&content, label, c)
				if !r.withMethods {
					continue
				}
				for _, m := range c.Methods {
					r.row(&content, "&nbsp;&nbsp;`"+m.Name()+m.Desc+"`", m)
				}
			}
			for _, sf := range p.SourceFiles {
				r.row(&content, "_"+sf.Name()+"_", sf)
			}
			content.WriteString("\n")
		}
	}

	if len(s.Sessions) > 0 {
		content.WriteString("## Sessions\n\n")
		for _, sess := range s.Sessions {
			fmt.Fprintf(&content, "- `%s` %s to %s\n", sess.ID,
				sess.Start.UTC().Format("2006-01-02 15:04:05"), sess.Dump.UTC().Format("2006-01-02 15:04:05"))
		}
		content.WriteString("\n")
	}

	if len(s.Results) > 0 {
		fmt.Fprintf(&content, "## Checks\n\n%d of %d limits violated.\n\n", s.Violations(), len(s.Results))
		for _, res := range s.Results {
			mark := "x"
			if res.Result == check.Violated {
				mark = " "
			}
			fmt.Fprintf(&content, "- [%s] %s\n", mark, res.Message())
		}
		content.WriteString("\n")
	}

	_, err := io.WriteString(w, content.String())
	return err
}

func (r *MarkdownReporter) row(sb *strings.Builder, label string, e coverage.Element) {
	fmt.Fprintf(sb, "| %s | %s | %s | %s | %s |\n", label,
		cell(e.Counter(coverage.EntityInstruction)),
		cell(e.Counter(coverage.EntityBranch)),
		cell(e.Counter(coverage.EntityLine)),
		cell(e.Counter(coverage.EntityMethod)))
}

func cell(c coverage.Counter) string {
	if c.Total() == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", c.Covered, c.Total())
}

func packageTitle(name string) string {
	if name == "" {
		return "(default)"
	}
	return "`" + name + "`"
}
