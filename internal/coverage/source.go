package coverage

import "sort"

// UnknownLine marks instructions without line information.
const UnknownLine = -1

// Line holds the counters of one source line and the probes observed on it.
type Line struct {
	Instructions Counter `json:"instructions" yaml:"instructions"`
	Branches     Counter `json:"branches" yaml:"branches"`
	Probes       []int   `json:"probes,omitempty" yaml:"probes,omitempty"`
}

// Status combines instruction and branch status. A line is partly covered
// if either of them is.
func (l Line) Status() Status {
	i, b := l.Instructions.Status(), l.Branches.Status()
	switch {
	case i == StatusPartlyCovered || b == StatusPartlyCovered:
		return StatusPartlyCovered
	case i == StatusEmpty:
		return b
	case b == StatusEmpty || b == i:
		return i
	default:
		return StatusPartlyCovered
	}
}

func (l Line) merge(instructions, branches Counter, probes []int) Line {
	l.Instructions = l.Instructions.Add(instructions)
	l.Branches = l.Branches.Add(branches)
	l.Probes = unionSorted(l.Probes, probes)
	return l
}

func unionSorted(a, b []int) []int {
	if len(b) == 0 {
		return a
	}
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, s := range [][]int{a, b} {
		for _, v := range s {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Ints(out)
	return out
}

// SourceNode is a node with per-line data: methods, classes and source
// files.
type SourceNode struct {
	Node
	lines map[int]Line
}

func newSourceNode(t ElementType, name string) SourceNode {
	return SourceNode{Node: newNode(t, name), lines: make(map[int]Line)}
}

// FirstLine returns the lowest line with data, UnknownLine if none.
func (s *SourceNode) FirstLine() int {
	ls := s.Lines()
	if len(ls) == 0 {
		return UnknownLine
	}
	return ls[0]
}

// LastLine returns the highest line with data, UnknownLine if none.
func (s *SourceNode) LastLine() int {
	ls := s.Lines()
	if len(ls) == 0 {
		return UnknownLine
	}
	return ls[len(ls)-1]
}

// Lines returns the line numbers with data in ascending order.
func (s *SourceNode) Lines() []int {
	out := make([]int, 0, len(s.lines))
	for l := range s.lines {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Line returns the data of line nr; an empty Line if there is none.
func (s *SourceNode) Line(nr int) Line {
	return s.lines[nr]
}

// Increment adds instructions and branches, attributing them to line if
// it is known.
func (s *SourceNode) Increment(instructions, branches Counter, line int, probes ...int) {
	if line != UnknownLine {
		s.incrementLine(instructions, branches, line, probes)
	}
	s.add(EntityInstruction, instructions)
	s.add(EntityBranch, branches)
}

// incrementLine merges into one line and keeps the line counter in step:
// a line counts once, as covered as soon as any of its instructions is.
func (s *SourceNode) incrementLine(instructions, branches Counter, line int, probes []int) {
	old := s.lines[line].Instructions
	s.lines[line] = s.lines[line].merge(instructions, branches, probes)

	if instructions.Total() == 0 {
		return
	}
	switch {
	case instructions.Covered == 0:
		if old.Total() == 0 {
			s.add(EntityLine, Counter{Missed: 1})
		}
	case old.Total() == 0:
		s.add(EntityLine, Counter{Covered: 1})
	case old.Covered == 0:
		s.add(EntityLine, Counter{Missed: -1, Covered: 1})
	}
}

// incrementSource adds a child with line data. Lines are merged, not
// summed, so shared lines count once.
func (s *SourceNode) incrementSource(child *SourceNode) {
	for _, e := range []CounterEntity{EntityInstruction, EntityBranch, EntityComplexity, EntityMethod, EntityClass} {
		s.add(e, child.counters[e])
	}
	for _, nr := range child.Lines() {
		l := child.lines[nr]
		s.incrementLine(l.Instructions, l.Branches, nr, l.Probes)
	}
}
