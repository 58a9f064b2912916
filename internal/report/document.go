package report

import (
	"strings"
	"time"

	"github.com/zjy-dev/probecov/internal/bytecode"
	"github.com/zjy-dev/probecov/internal/coverage"
	"github.com/zjy-dev/probecov/internal/execdata"
)

// Counters maps lower case entity names to counters.
type Counters map[string]coverage.Counter

func countersOf(e coverage.Element) Counters {
	out := make(Counters)
	for _, ent := range coverage.Entities {
		if c := e.Counter(ent); c.Total() > 0 {
			out[strings.ToLower(ent.String())] = c
		}
	}
	return out
}

// Document is the serializable form of a summary.
type Document struct {
	Name      string                  `json:"name" yaml:"name"`
	Generated time.Time               `json:"generated" yaml:"generated"`
	Stats     *coverage.CoverageStats `json:"stats" yaml:"stats"`
	Counters  Counters                `json:"counters" yaml:"counters"`
	Packages  []PackageDoc            `json:"packages,omitempty" yaml:"packages,omitempty"`
	Sessions  []execdata.SessionInfo  `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	Checks    []CheckDoc              `json:"checks,omitempty" yaml:"checks,omitempty"`
}

type PackageDoc struct {
	Name        string          `json:"name" yaml:"name"`
	Counters    Counters        `json:"counters" yaml:"counters"`
	Classes     []ClassDoc      `json:"classes,omitempty" yaml:"classes,omitempty"`
	SourceFiles []SourceFileDoc `json:"source_files,omitempty" yaml:"source_files,omitempty"`
}

type ClassDoc struct {
	Name       string      `json:"name" yaml:"name"`
	ID         string      `json:"id" yaml:"id"`
	SourceFile string      `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	NoMatch    bool        `json:"no_match,omitempty" yaml:"no_match,omitempty"`
	Counters   Counters    `json:"counters" yaml:"counters"`
	Methods    []MethodDoc `json:"methods,omitempty" yaml:"methods,omitempty"`
}

type MethodDoc struct {
	Name      string    `json:"name" yaml:"name"`
	Desc      string    `json:"desc" yaml:"desc"`
	FirstLine int       `json:"first_line" yaml:"first_line"`
	Counters  Counters  `json:"counters" yaml:"counters"`
	Lines     []LineDoc `json:"lines,omitempty" yaml:"lines,omitempty"`
}

type SourceFileDoc struct {
	Name     string    `json:"name" yaml:"name"`
	Counters Counters  `json:"counters" yaml:"counters"`
	Lines    []LineDoc `json:"lines,omitempty" yaml:"lines,omitempty"`
}

// LineDoc is one source line with the probe ids that fired on it.
type LineDoc struct {
	Nr           int              `json:"nr" yaml:"nr"`
	Status       string           `json:"status" yaml:"status"`
	Instructions coverage.Counter `json:"instructions" yaml:"instructions"`
	Branches     coverage.Counter `json:"branches" yaml:"branches"`
	Probes       []int            `json:"probes,omitempty" yaml:"probes,omitempty"`
}

type CheckDoc struct {
	Element string `json:"element" yaml:"element"`
	Name    string `json:"name" yaml:"name"`
	Result  string `json:"result" yaml:"result"`
	Actual  string `json:"actual" yaml:"actual"`
	Message string `json:"message" yaml:"message"`
}

func linesOf(s *coverage.SourceNode) []LineDoc {
	var out []LineDoc
	for _, nr := range s.Lines() {
		l := s.Line(nr)
		out = append(out, LineDoc{
			Nr:           nr,
			Status:       l.Status().String(),
			Instructions: l.Instructions,
			Branches:     l.Branches,
			Probes:       l.Probes,
		})
	}
	return out
}

// NewDocument converts a summary. Lines are listed only when withLines is
// set.
func NewDocument(s *Summary, withLines bool) *Document {
	d := &Document{Generated: s.Generated.UTC(), Sessions: s.Sessions}
	if b := s.Bundle; b != nil {
		d.Name = b.Name()
		d.Stats = coverage.Stats(b)
		d.Counters = countersOf(b)
		for _, p := range b.Packages {
			pd := PackageDoc{Name: p.Name(), Counters: countersOf(p)}
			for _, c := range p.Classes {
				cd := ClassDoc{
					Name:       c.Name(),
					ID:         bytecode.FormatClassID(c.ID),
					SourceFile: c.SourceFile,
					NoMatch:    c.NoMatch,
					Counters:   countersOf(c),
				}
				for _, m := range c.Methods {
					md := MethodDoc{Name: m.Name(), Desc: m.Desc, FirstLine: m.FirstLine(), Counters: countersOf(m)}
					if withLines {
						md.Lines = linesOf(&m.SourceNode)
					}
					cd.Methods = append(cd.Methods, md)
				}
				pd.Classes = append(pd.Classes, cd)
			}
			for _, sf := range p.SourceFiles {
				sd := SourceFileDoc{Name: sf.Name(), Counters: countersOf(sf)}
				if withLines {
					sd.Lines = linesOf(&sf.SourceNode)
				}
				pd.SourceFiles = append(pd.SourceFiles, sd)
			}
			d.Packages = append(d.Packages, pd)
		}
	}
	for _, r := range s.Results {
		d.Checks = append(d.Checks, CheckDoc{
			Element: r.Element.String(),
			Name:    r.Name,
			Result:  r.Result.String(),
			Actual:  r.Actual,
			Message: r.Message(),
		})
	}
	return d
}
