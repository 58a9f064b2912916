// Package analysis decodes probe hits of instrumented classes back into
// instruction, branch, line, complexity and method coverage.
package analysis

import (
	"fmt"

	"github.com/zjy-dev/probecov/internal/bytecode"
	"github.com/zjy-dev/probecov/internal/coverage"
	"github.com/zjy-dev/probecov/internal/execdata"
	"github.com/zjy-dev/probecov/internal/flow"
	"github.com/zjy-dev/probecov/internal/instrument"
	"github.com/zjy-dev/probecov/internal/logger"
)

// Analyzer matches instrumented classes with execution data and feeds the
// resulting class coverage into a builder.
type Analyzer struct {
	store   *execdata.Store
	builder *coverage.Builder
}

// NewAnalyzer creates an analyzer reading from store.
func NewAnalyzer(store *execdata.Store, builder *coverage.Builder) *Analyzer {
	return &Analyzer{store: store, builder: builder}
}

// Analyze computes the coverage of one class. A class without execution
// data is reported as fully missed; if data exists for its name under a
// different id the class is flagged as no match.
func (a *Analyzer) Analyze(res *instrument.Result) (*coverage.ClassCoverage, error) {
	var probes []bool
	noMatch := false
	if r, ok := a.store.Lookup(res.ClassID); ok {
		if r.Len() != res.ProbeCount {
			return nil, fmt.Errorf("%w: %s has %d probes, execution data has %d",
				execdata.ErrVersionMismatch, res.Original.Name, res.ProbeCount, r.Len())
		}
		probes = r.Probes()
	} else {
		for _, r := range a.store.Records() {
			if r.Name() == res.Original.Name {
				noMatch = true
				logger.Warn("Execution data for %s does not match class id %s",
					res.Original.Name, bytecode.FormatClassID(res.ClassID))
				break
			}
		}
	}

	cc := AnalyzeClass(res, probes)
	cc.NoMatch = noMatch
	if err := a.builder.AddClass(cc); err != nil {
		return nil, err
	}
	return cc, nil
}

// AnalyzeClass builds the coverage of an instrumented class from its
// class-wide probe vector. A nil vector means nothing was executed.
func AnalyzeClass(res *instrument.Result, probes []bool) *coverage.ClassCoverage {
	c := res.Original
	cc := coverage.NewClassCoverage(c.Name, res.ClassID, c.Source)
	for i, m := range c.Methods {
		mi := res.Methods[i]
		cc.AddMethod(AnalyzeMethod(m, mi.Graph, mi.Plan, mi.Base, probes))
	}
	return cc
}

type insnNode struct {
	line     int
	branches int
	covered  int
	pred     int
}

type jump struct {
	source int
	target bytecode.LabelID
}

// methodAnalyzer replays the original instruction stream with the probe
// plan. Every instruction gets at most one predecessor: the instruction
// falling through into it or the single jump reaching it. A fired probe
// covers the instruction it is attached to and walks back through the
// predecessors until it meets an instruction that is already covered.
type methodAnalyzer struct {
	m      *bytecode.Method
	g      *flow.Graph
	plan   *flow.Plan
	base   int
	probes []bool

	nodes      []insnNode
	last       int
	jumps      []jump
	fired      []int
	lineProbes map[int][]int
}

// AnalyzeMethod computes the coverage of the original method m from the
// class-wide probe vector. g and plan are those used to instrument m; if
// either is nil the method was left uninstrumented and counts as missed.
func AnalyzeMethod(m *bytecode.Method, g *flow.Graph, plan *flow.Plan, base int, probes []bool) *coverage.MethodCoverage {
	a := &methodAnalyzer{
		m:          m,
		g:          g,
		plan:       plan,
		base:       base,
		probes:     probes,
		nodes:      make([]insnNode, len(m.Code)),
		last:       -1,
		lineProbes: make(map[int][]int),
	}
	for i, in := range m.Code {
		a.nodes[i] = insnNode{line: lineOf(in), pred: -1}
	}
	if g != nil && plan != nil {
		a.walk()
		a.finish()
	}
	return a.coverage()
}

func lineOf(in bytecode.Instruction) int {
	if in.Line <= 0 {
		return coverage.UnknownLine
	}
	return in.Line
}

func (a *methodAnalyzer) walk() {
	for i, in := range a.m.Code {
		if id, ok := a.plan.LabelProbe(i); ok {
			a.addProbe(id)
			a.last = -1
		}
		if l, ok := a.g.LabelAt(i); ok && !a.g.Flags(l).Successor {
			a.last = -1
		}
		a.visitInsn(i)

		switch in.Kind() {
		case bytecode.KindGoto, bytecode.KindCondJump:
			if id, ok := a.plan.InsnProbe(i); ok {
				a.addProbe(id)
			} else {
				a.jumps = append(a.jumps, jump{source: i, target: a.g.Canonical(in.Target)})
			}
			if in.Kind() == bytecode.KindGoto {
				a.last = -1
			}
		case bytecode.KindSwitch:
			done := make(map[bytecode.LabelID]bool)
			for _, l := range append([]bytecode.LabelID{in.Switch.Default}, in.Switch.Targets...) {
				c := a.g.Canonical(l)
				if done[c] {
					continue
				}
				done[c] = true
				if id, ok := a.plan.SwitchProbe(i, c); ok {
					a.addProbe(id)
				} else {
					a.jumps = append(a.jumps, jump{source: i, target: c})
				}
			}
			a.last = -1
		case bytecode.KindTerminal:
			if id, ok := a.plan.InsnProbe(i); ok {
				a.addProbe(id)
			}
			a.last = -1
		}
	}
}

func (a *methodAnalyzer) visitInsn(i int) {
	if a.last >= 0 {
		a.nodes[i].pred = a.last
		a.nodes[a.last].branches++
	}
	a.last = i
}

func (a *methodAnalyzer) addProbe(id int) {
	if a.last < 0 {
		return
	}
	a.nodes[a.last].branches++
	gid := a.base + id
	if gid < len(a.probes) && a.probes[gid] {
		a.fired = append(a.fired, a.last)
		if line := a.nodes[a.last].line; line != coverage.UnknownLine {
			a.lineProbes[line] = append(a.lineProbes[line], gid)
		}
	}
}

func (a *methodAnalyzer) finish() {
	for _, j := range a.jumps {
		t := a.g.Pos(j.target)
		a.nodes[t].pred = j.source
		a.nodes[j.source].branches++
	}
	for _, i := range a.fired {
		for i >= 0 {
			n := &a.nodes[i]
			n.covered++
			if n.covered > 1 {
				break
			}
			i = n.pred
		}
	}
}

func (a *methodAnalyzer) coverage() *coverage.MethodCoverage {
	mc := coverage.NewMethodCoverage(a.m.Name, a.m.Desc)
	seenLine := make(map[int]bool)
	for _, n := range a.nodes {
		ins := coverage.Counter{Missed: 1}
		if n.covered > 0 {
			ins = coverage.Counter{Covered: 1}
		}
		var br coverage.Counter
		if n.branches > 1 {
			c := min(n.covered, n.branches)
			br = coverage.Counter{Missed: n.branches - c, Covered: c}
		}
		var probes []int
		if n.line != coverage.UnknownLine && !seenLine[n.line] {
			seenLine[n.line] = true
			probes = a.lineProbes[n.line]
		}
		mc.Increment(ins, br, n.line, probes...)
	}
	mc.IncrementMethodCounter()
	return mc
}
