package flow

import (
	"fmt"

	"github.com/zjy-dev/probecov/internal/bytecode"
)

// EdgeKind classifies a control transfer.
type EdgeKind int

const (
	EdgeFallthrough EdgeKind = iota
	EdgeJump
	EdgeSwitchCase
	EdgeExceptionHandler
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeFallthrough:
		return "fallthrough"
	case EdgeJump:
		return "jump"
	case EdgeSwitchCase:
		return "switch"
	case EdgeExceptionHandler:
		return "exception"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}

// Edge is a possible control transfer between two blocks.
type Edge struct {
	From   int              // source block index
	To     int              // target block index
	Target bytecode.LabelID // canonical label at the target, NoLabel if none
	Kind   EdgeKind
	Insn   int // instruction transferring control, -1 for exception edges

	// Switch edges only: number of case values (default included) that
	// reach the target. Converge is set when more than one does.
	Cases    int
	Converge bool
}

// Block is a maximal straight-line run of instructions [Start, End).
type Block struct {
	Index int
	Start int
	End   int
	Edges []Edge
}

// Last returns the index of the block's final instruction.
func (b *Block) Last() int {
	return b.End - 1
}

// LabelFlags is the flow information of one canonical label.
type LabelFlags struct {
	Target      bool // reached by a jump, a switch, a try range or method entry
	Successor   bool // reached by falling through from the previous instruction
	MultiTarget bool // reached by more than one transfer
}

// NeedsProbe reports whether a probe is required on the fallthrough path
// into the label: it is reached both by fallthrough and by another edge.
func (f LabelFlags) NeedsProbe() bool {
	return f.Successor && f.MultiTarget
}

// Graph is the control-flow graph of one method. It is immutable once built.
type Graph struct {
	Method *bytecode.Method
	Blocks []*Block

	blockOf []int
	canon   []bytecode.LabelID
	byPos   map[int]bytecode.LabelID
	flags   map[bytecode.LabelID]LabelFlags
}

// BlockOf returns the block containing the instruction at pos.
func (g *Graph) BlockOf(pos int) *Block {
	return g.Blocks[g.blockOf[pos]]
}

// Canonical maps a label to the lowest label at the same position.
func (g *Graph) Canonical(l bytecode.LabelID) bytecode.LabelID {
	if l < 0 || int(l) >= len(g.canon) {
		return bytecode.NoLabel
	}
	return g.canon[l]
}

// LabelAt returns the canonical label at an instruction position.
func (g *Graph) LabelAt(pos int) (bytecode.LabelID, bool) {
	l, ok := g.byPos[pos]
	return l, ok
}

// Flags returns the flow flags of a label.
func (g *Graph) Flags(l bytecode.LabelID) LabelFlags {
	return g.flags[g.Canonical(l)]
}

// Pos resolves a label to its instruction index.
func (g *Graph) Pos(l bytecode.LabelID) int {
	return g.Method.Labels[l]
}

// Edges returns all edges in block order.
func (g *Graph) Edges() []Edge {
	var out []Edge
	for _, b := range g.Blocks {
		out = append(out, b.Edges...)
	}
	return out
}

// BuildGraph splits a method into basic blocks, connects them and computes
// the label flow flags used for probe placement.
func BuildGraph(m *bytecode.Method, opts Options) (*Graph, error) {
	if err := validate(m); err != nil {
		return nil, err
	}
	n := len(m.Code)
	g := &Graph{
		Method:  m,
		blockOf: make([]int, n),
		canon:   make([]bytecode.LabelID, len(m.Labels)),
		byPos:   make(map[int]bytecode.LabelID),
		flags:   make(map[bytecode.LabelID]LabelFlags),
	}

	for id, pos := range m.Labels {
		if cur, ok := g.byPos[pos]; !ok || bytecode.LabelID(id) < cur {
			g.byPos[pos] = bytecode.LabelID(id)
		}
	}
	for id, pos := range m.Labels {
		g.canon[id] = g.byPos[pos]
	}

	g.buildBlocks()
	g.connect()
	g.computeFlags()
	return g, nil
}

func validate(m *bytecode.Method) error {
	n := len(m.Code)
	if n == 0 {
		return fmt.Errorf("%w: %s: empty method body", ErrMalformed, m.FullName())
	}
	for id, pos := range m.Labels {
		if pos < 0 || pos > n {
			return fmt.Errorf("%w: %s: label %d at %d outside code", ErrMalformed, m.FullName(), id, pos)
		}
	}
	branch := func(i int, l bytecode.LabelID) error {
		pos, ok := m.Pos(l)
		if !ok {
			return fmt.Errorf("%w: %s: instruction %d references unknown label %d", ErrMalformed, m.FullName(), i, l)
		}
		if pos >= n {
			return fmt.Errorf("%w: %s: instruction %d branches outside the code", ErrMalformed, m.FullName(), i)
		}
		return nil
	}
	for i, in := range m.Code {
		if !in.Op.Valid() {
			return fmt.Errorf("%w: %s: unknown opcode 0x%02X at %d", ErrMalformed, m.FullName(), byte(in.Op), i)
		}
		switch in.Kind() {
		case bytecode.KindGoto, bytecode.KindCondJump:
			if err := branch(i, in.Target); err != nil {
				return err
			}
		case bytecode.KindSwitch:
			if in.Switch == nil {
				return fmt.Errorf("%w: %s: switch at %d without table", ErrMalformed, m.FullName(), i)
			}
			if err := branch(i, in.Switch.Default); err != nil {
				return err
			}
			for _, l := range in.Switch.Targets {
				if err := branch(i, l); err != nil {
					return err
				}
			}
		}
	}
	switch m.Code[n-1].Kind() {
	case bytecode.KindPlain, bytecode.KindCondJump:
		return fmt.Errorf("%w: %s: execution falls off the end of the code", ErrMalformed, m.FullName())
	}
	for i, tc := range m.TryCatches {
		start, ok1 := m.Pos(tc.Start)
		end, ok2 := m.Pos(tc.End)
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: %s: try range %d references unknown label", ErrMalformed, m.FullName(), i)
		}
		if start >= end {
			return fmt.Errorf("%w: %s: try range %d is empty or inverted (%d >= %d)", ErrMalformed, m.FullName(), i, start, end)
		}
		if err := branch(-1, tc.Handler); err != nil {
			return fmt.Errorf("%w: %s: try range %d has an invalid handler", ErrMalformed, m.FullName(), i)
		}
	}
	return nil
}

func (g *Graph) buildBlocks() {
	m := g.Method
	n := len(m.Code)
	leader := make([]bool, n+1)
	leader[0] = true
	mark := func(l bytecode.LabelID) {
		leader[m.Labels[l]] = true
	}
	for i, in := range m.Code {
		switch in.Kind() {
		case bytecode.KindGoto, bytecode.KindCondJump:
			mark(in.Target)
			leader[i+1] = true
		case bytecode.KindSwitch:
			mark(in.Switch.Default)
			for _, l := range in.Switch.Targets {
				mark(l)
			}
			leader[i+1] = true
		case bytecode.KindTerminal:
			leader[i+1] = true
		}
	}
	for _, tc := range m.TryCatches {
		mark(tc.Start)
		mark(tc.Handler)
	}

	start := 0
	for i := 1; i <= n; i++ {
		if leader[i] {
			b := &Block{Index: len(g.Blocks), Start: start, End: i}
			for j := start; j < i; j++ {
				g.blockOf[j] = b.Index
			}
			g.Blocks = append(g.Blocks, b)
			start = i
		}
	}
}

func (g *Graph) labelOf(pos int) bytecode.LabelID {
	if l, ok := g.byPos[pos]; ok {
		return l
	}
	return bytecode.NoLabel
}

func (g *Graph) edgeTo(from *Block, pos int, kind EdgeKind, insn int) Edge {
	return Edge{
		From:   from.Index,
		To:     g.blockOf[pos],
		Target: g.labelOf(pos),
		Kind:   kind,
		Insn:   insn,
	}
}

func (g *Graph) connect() {
	m := g.Method
	for _, b := range g.Blocks {
		last := b.Last()
		in := m.Code[last]
		switch in.Kind() {
		case bytecode.KindPlain:
			b.Edges = append(b.Edges, g.edgeTo(b, b.End, EdgeFallthrough, last))
		case bytecode.KindCondJump:
			b.Edges = append(b.Edges,
				g.edgeTo(b, b.End, EdgeFallthrough, last),
				g.edgeTo(b, g.Pos(in.Target), EdgeJump, last))
		case bytecode.KindGoto:
			b.Edges = append(b.Edges, g.edgeTo(b, g.Pos(in.Target), EdgeJump, last))
		case bytecode.KindSwitch:
			b.Edges = append(b.Edges, g.switchEdges(b, last, in.Switch)...)
		}
	}

	// exception edges, deduplicated per (block, handler)
	type key struct{ from, to int }
	seen := make(map[key]bool)
	for _, tc := range m.TryCatches {
		start, end, h := g.Pos(tc.Start), g.Pos(tc.End), g.Pos(tc.Handler)
		for _, b := range g.Blocks {
			if b.End <= start || b.Start >= end {
				continue
			}
			k := key{b.Index, g.blockOf[h]}
			if seen[k] {
				continue
			}
			seen[k] = true
			b.Edges = append(b.Edges, g.edgeTo(b, h, EdgeExceptionHandler, -1))
		}
	}
}

// switchEdges emits one edge per distinct target, default first, then the
// cases in table order.
func (g *Graph) switchEdges(b *Block, insn int, sw *bytecode.SwitchTable) []Edge {
	var edges []Edge
	index := make(map[bytecode.LabelID]int)
	add := func(l bytecode.LabelID) {
		c := g.Canonical(l)
		if i, ok := index[c]; ok {
			edges[i].Cases++
			edges[i].Converge = true
			return
		}
		e := g.edgeTo(b, g.Pos(l), EdgeSwitchCase, insn)
		e.Cases = 1
		index[c] = len(edges)
		edges = append(edges, e)
	}
	add(sw.Default)
	for _, l := range sw.Targets {
		add(l)
	}
	return edges
}

func (g *Graph) setTarget(l bytecode.LabelID) {
	f := g.flags[l]
	if f.Target || f.Successor {
		f.MultiTarget = true
	} else {
		f.Target = true
	}
	g.flags[l] = f
}

func (g *Graph) setSuccessor(l bytecode.LabelID) {
	f := g.flags[l]
	f.Successor = true
	if f.Target {
		f.MultiTarget = true
	}
	g.flags[l] = f
}

// computeFlags walks the method once, try ranges first, recording how each
// canonical label is reached.
func (g *Graph) computeFlags() {
	m := g.Method
	for _, tc := range m.TryCatches {
		g.setTarget(g.Canonical(tc.Start))
		g.setTarget(g.Canonical(tc.Handler))
	}

	successor, first := false, true
	for i, in := range m.Code {
		if l, ok := g.byPos[i]; ok {
			if first {
				g.setTarget(l)
			}
			if successor {
				g.setSuccessor(l)
			}
		}
		switch in.Kind() {
		case bytecode.KindPlain:
			successor = true
		case bytecode.KindGoto:
			g.setTarget(g.Canonical(in.Target))
			successor = false
		case bytecode.KindCondJump:
			g.setTarget(g.Canonical(in.Target))
			successor = true
		case bytecode.KindSwitch:
			done := make(map[bytecode.LabelID]bool)
			for _, l := range append([]bytecode.LabelID{in.Switch.Default}, in.Switch.Targets...) {
				c := g.Canonical(l)
				if !done[c] {
					done[c] = true
					g.setTarget(c)
				}
			}
			successor = false
		case bytecode.KindTerminal:
			successor = false
		}
		first = false
	}
}
