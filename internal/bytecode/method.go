package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// LabelID is a stable handle into Method.Labels.
type LabelID int

// NoLabel marks an instruction without a branch target.
const NoLabel LabelID = -1

// SwitchTable holds the targets of a tableswitch or lookupswitch.
// A tableswitch has implicit keys Low..Low+len(Targets)-1; a lookupswitch
// lists its keys explicitly in ascending order.
type SwitchTable struct {
	Default LabelID   `cbor:"default"`
	Low     int32     `cbor:"low,omitempty"`
	Keys    []int32   `cbor:"keys,omitempty"`
	Targets []LabelID `cbor:"targets"`
}

// Key returns the case value of the i-th target.
func (s *SwitchTable) Key(i int) int32 {
	if s.Keys != nil {
		return s.Keys[i]
	}
	return s.Low + int32(i)
}

// Lookup returns the label the switch transfers to for the given value.
func (s *SwitchTable) Lookup(v int32) LabelID {
	for i := range s.Targets {
		if s.Key(i) == v {
			return s.Targets[i]
		}
	}
	return s.Default
}

// Clone returns a deep copy of the table.
func (s *SwitchTable) Clone() *SwitchTable {
	if s == nil {
		return nil
	}
	c := &SwitchTable{Default: s.Default, Low: s.Low}
	if s.Keys != nil {
		c.Keys = append([]int32(nil), s.Keys...)
	}
	c.Targets = append([]LabelID(nil), s.Targets...)
	return c
}

// Instruction is one operation of a method body.
//
// Operand holds the immediate value, the local slot or the probe id,
// depending on the opcode's operand form. Operand2 is the iinc delta.
// Ref names the class of a new or the callee of an invokestatic, whose
// descriptor is in Desc.
type Instruction struct {
	Op       Opcode       `cbor:"op"`
	Operand  int          `cbor:"a,omitempty"`
	Operand2 int          `cbor:"b,omitempty"`
	Target   LabelID      `cbor:"t"`
	Switch   *SwitchTable `cbor:"sw,omitempty"`
	Ref      string       `cbor:"ref,omitempty"`
	Desc     string       `cbor:"desc,omitempty"`
	Line     int          `cbor:"line,omitempty"`
}

// Kind classifies the instruction by the way it transfers control.
func (in Instruction) Kind() Kind {
	return in.Op.Kind()
}

// Clone returns a deep copy of the instruction.
func (in Instruction) Clone() Instruction {
	in.Switch = in.Switch.Clone()
	return in
}

// TryCatch is an exception handler range [Start, End) with its handler.
// An empty Type catches everything.
type TryCatch struct {
	Start   LabelID `cbor:"start"`
	End     LabelID `cbor:"end"`
	Handler LabelID `cbor:"handler"`
	Type    string  `cbor:"type,omitempty"`
}

// Method is a single method body.
type Method struct {
	Name       string            `cbor:"name"`
	Desc       string            `cbor:"desc"`
	MaxLocals  int               `cbor:"locals"`
	Code       []Instruction     `cbor:"code"`
	Labels     []int             `cbor:"labels"` // LabelID -> instruction index
	TryCatches []TryCatch        `cbor:"try,omitempty"`
	Frames     map[LabelID]Frame `cbor:"frames,omitempty"`
}

// NewLabel allocates a label at the given instruction index.
func (m *Method) NewLabel(pos int) LabelID {
	m.Labels = append(m.Labels, pos)
	return LabelID(len(m.Labels) - 1)
}

// Pos resolves a label to its instruction index.
func (m *Method) Pos(l LabelID) (int, bool) {
	if l < 0 || int(l) >= len(m.Labels) {
		return 0, false
	}
	return m.Labels[l], true
}

// LabelsAt returns all labels placed at pos in ascending order.
func (m *Method) LabelsAt(pos int) []LabelID {
	var out []LabelID
	for id, p := range m.Labels {
		if p == pos {
			out = append(out, LabelID(id))
		}
	}
	return out
}

// FrameAt returns the declared frame at pos, if any label there carries one.
func (m *Method) FrameAt(pos int) (Frame, bool) {
	for _, l := range m.LabelsAt(pos) {
		if f, ok := m.Frames[l]; ok {
			return f, true
		}
	}
	return Frame{}, false
}

// FullName returns name and descriptor joined, e.g. "max(II)I".
func (m *Method) FullName() string {
	return m.Name + m.Desc
}

// Clone returns a deep copy of the method.
func (m *Method) Clone() *Method {
	c := &Method{
		Name:      m.Name,
		Desc:      m.Desc,
		MaxLocals: m.MaxLocals,
		Code:      make([]Instruction, len(m.Code)),
		Labels:    append([]int(nil), m.Labels...),
	}
	for i, in := range m.Code {
		c.Code[i] = in.Clone()
	}
	if m.TryCatches != nil {
		c.TryCatches = append([]TryCatch(nil), m.TryCatches...)
	}
	if m.Frames != nil {
		c.Frames = make(map[LabelID]Frame, len(m.Frames))
		for l, f := range m.Frames {
			c.Frames[l] = f.Clone()
		}
	}
	return c
}

// Lines returns the distinct source lines of the method in ascending order.
func (m *Method) Lines() []int {
	seen := make(map[int]bool)
	var lines []int
	for _, in := range m.Code {
		if in.Line > 0 && !seen[in.Line] {
			seen[in.Line] = true
			lines = append(lines, in.Line)
		}
	}
	sort.Ints(lines)
	return lines
}

// Class groups the methods of one compiled unit.
// Name is the internal VM name, e.g. "org/example/Calc".
type Class struct {
	Name    string    `cbor:"name"`
	Source  string    `cbor:"source,omitempty"`
	Methods []*Method `cbor:"methods"`
}

// Method finds a method by name. An empty desc matches any descriptor.
func (c *Class) Method(name, desc string) (*Method, error) {
	for _, m := range c.Methods {
		if m.Name == name && (desc == "" || m.Desc == desc) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("method %s%s not found in %s", name, desc, c.Name)
}

// PackageName returns the internal package name, "" for the default package.
func (c *Class) PackageName() string {
	if i := strings.LastIndexByte(c.Name, '/'); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// Clone returns a deep copy of the class.
func (c *Class) Clone() *Class {
	out := &Class{Name: c.Name, Source: c.Source, Methods: make([]*Method, len(c.Methods))}
	for i, m := range c.Methods {
		out.Methods[i] = m.Clone()
	}
	return out
}
