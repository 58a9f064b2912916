package flow

import (
	"fmt"

	"github.com/zjy-dev/probecov/internal/bytecode"
)

// ProbeKind tells where a probe is inserted.
type ProbeKind int

const (
	ProbeFallthrough ProbeKind = iota // before a label, on the fallthrough path only
	ProbeJump                         // on the taken path of a goto or conditional jump
	ProbeSwitch                       // on the path from a switch to one distinct target
	ProbeTerminal                     // immediately before a return or throw
)

func (k ProbeKind) String() string {
	switch k {
	case ProbeFallthrough:
		return "fallthrough"
	case ProbeJump:
		return "jump"
	case ProbeSwitch:
		return "switch"
	case ProbeTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("ProbeKind(%d)", int(k))
	}
}

// Probe describes one placed probe.
type Probe struct {
	ID     int
	Kind   ProbeKind
	Insn   int              // label position for fallthrough probes, the branching or terminal instruction otherwise
	Target bytecode.LabelID // canonical target of jump and switch probes
}

type switchKey struct {
	insn  int
	label bytecode.LabelID
}

// Plan is the probe assignment of one method. Ids are dense in [0, Count)
// and follow instruction order.
type Plan struct {
	Count  int
	Probes []Probe

	labelProbe  map[int]int
	insnProbe   map[int]int
	switchProbe map[switchKey]int
}

// LabelProbe returns the fallthrough probe placed before position pos.
func (p *Plan) LabelProbe(pos int) (int, bool) {
	id, ok := p.labelProbe[pos]
	return id, ok
}

// InsnProbe returns the probe of a jump or terminal instruction.
func (p *Plan) InsnProbe(insn int) (int, bool) {
	id, ok := p.insnProbe[insn]
	return id, ok
}

// SwitchProbe returns the probe on the path from switch insn to the
// canonical label l.
func (p *Plan) SwitchProbe(insn int, l bytecode.LabelID) (int, bool) {
	id, ok := p.switchProbe[switchKey{insn, l}]
	return id, ok
}

// HasSwitchProbes reports whether any target of the switch at insn is probed.
func (p *Plan) HasSwitchProbes(insn int) bool {
	for k := range p.switchProbe {
		if k.insn == insn {
			return true
		}
	}
	return false
}

// EdgeProbe returns the probe carried by an edge. Exception edges never
// carry one.
func (p *Plan) EdgeProbe(g *Graph, e Edge) (int, bool) {
	switch e.Kind {
	case EdgeFallthrough:
		return p.LabelProbe(g.Blocks[e.To].Start)
	case EdgeJump:
		return p.InsnProbe(e.Insn)
	case EdgeSwitchCase:
		return p.SwitchProbe(e.Insn, e.Target)
	default:
		return 0, false
	}
}

func (p *Plan) add(kind ProbeKind, insn int, target bytecode.LabelID) int {
	id := p.Count
	p.Count++
	p.Probes = append(p.Probes, Probe{ID: id, Kind: kind, Insn: insn, Target: target})
	return id
}

// Place assigns probe ids in a single left-to-right pass:
//   - before a label reached both by fallthrough and by another edge,
//   - on a jump whose target is reached by more than one edge,
//   - on each multi-target distinct switch target, default first,
//   - before every return or throw.
func Place(g *Graph, opts Options) (*Plan, error) {
	m := g.Method
	p := &Plan{
		labelProbe:  make(map[int]int),
		insnProbe:   make(map[int]int),
		switchProbe: make(map[switchKey]int),
	}

	for i, in := range m.Code {
		if l, ok := g.LabelAt(i); ok && g.Flags(l).NeedsProbe() {
			p.labelProbe[i] = p.add(ProbeFallthrough, i, l)
		}
		switch in.Kind() {
		case bytecode.KindGoto, bytecode.KindCondJump:
			t := g.Canonical(in.Target)
			if g.Flags(t).MultiTarget {
				p.insnProbe[i] = p.add(ProbeJump, i, t)
			}
		case bytecode.KindSwitch:
			done := make(map[bytecode.LabelID]bool)
			for _, l := range append([]bytecode.LabelID{in.Switch.Default}, in.Switch.Targets...) {
				c := g.Canonical(l)
				if done[c] {
					continue
				}
				done[c] = true
				if g.Flags(c).MultiTarget {
					p.switchProbe[switchKey{i, c}] = p.add(ProbeSwitch, i, c)
				}
			}
		case bytecode.KindTerminal:
			p.insnProbe[i] = p.add(ProbeTerminal, i, bytecode.NoLabel)
		}
	}

	if limit := opts.maxProbes(); p.Count > limit {
		return nil, fmt.Errorf("%w: %s: %d probes exceed the limit of %d", ErrMalformed, m.FullName(), p.Count, limit)
	}
	return p, nil
}
