package bytecode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrVerify is returned when a method body is not structurally valid.
var ErrVerify = errors.New("verification failed")

// VType is a verifier type of a stack slot or local variable.
type VType uint8

const (
	Top       VType = iota // unusable or uninitialized
	Integer                // int, boolean, byte, char, short
	Null                   // the null reference
	Reference              // any object or array reference
)

var vtypeNames = [...]string{"T", "I", "N", "R"}

func (t VType) String() string {
	if int(t) < len(vtypeNames) {
		return vtypeNames[t]
	}
	return fmt.Sprintf("VType(%d)", int(t))
}

// ParseVType parses the single-letter form produced by String.
func ParseVType(s string) (VType, error) {
	for i, n := range vtypeNames {
		if n == s {
			return VType(i), nil
		}
	}
	return Top, fmt.Errorf("unknown verifier type %q", s)
}

func (t VType) isRef() bool {
	return t == Null || t == Reference
}

// Frame is the verifier state before an instruction executes.
type Frame struct {
	Locals []VType `cbor:"l"`
	Stack  []VType `cbor:"s"`
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	return Frame{
		Locals: append([]VType(nil), f.Locals...),
		Stack:  append([]VType(nil), f.Stack...),
	}
}

// Equal reports whether both frames hold the same types.
func (f Frame) Equal(o Frame) bool {
	if len(f.Stack) != len(o.Stack) {
		return false
	}
	for i := range f.Stack {
		if f.Stack[i] != o.Stack[i] {
			return false
		}
	}
	n := max(len(f.Locals), len(o.Locals))
	for i := 0; i < n; i++ {
		if localAt(f.Locals, i) != localAt(o.Locals, i) {
			return false
		}
	}
	return true
}

// Pop returns the frame with the top n stack slots removed.
func (f Frame) Pop(n int) (Frame, error) {
	if n > len(f.Stack) {
		return Frame{}, fmt.Errorf("cannot pop %d values from a stack of depth %d", n, len(f.Stack))
	}
	c := f.Clone()
	c.Stack = c.Stack[:len(c.Stack)-n]
	return c, nil
}

func (f Frame) String() string {
	return "locals=" + joinTypes(f.Locals) + " stack=" + joinTypes(f.Stack)
}

func joinTypes(ts []VType) string {
	if len(ts) == 0 {
		return "-"
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

func localAt(locals []VType, i int) VType {
	if i < len(locals) {
		return locals[i]
	}
	return Top
}

// EntryFrame returns the frame at the first instruction: parameters in the
// leading slots, Top in the remaining MaxLocals.
func EntryFrame(m *Method) (Frame, error) {
	d, err := ParseDescriptor(m.Desc)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrVerify, m.FullName(), err)
	}
	params := d.ParamTypes()
	if len(params) > m.MaxLocals {
		return Frame{}, fmt.Errorf("%w: %s: %d parameters exceed %d locals", ErrVerify, m.FullName(), len(params), m.MaxLocals)
	}
	locals := make([]VType, m.MaxLocals)
	copy(locals, params)
	return Frame{Locals: locals, Stack: []VType{}}, nil
}

// Verify checks stack discipline, local types, branch targets and declared
// frames of a method.
func Verify(m *Method) error {
	_, err := AnalyzeFrames(m)
	return err
}

// AnalyzeFrames computes the frame before every instruction by dataflow over
// the method's normal and exceptional edges. Unreachable instructions get a
// nil frame. A declared frame at a branch target is authoritative: incoming
// frames must be assignable to it.
func AnalyzeFrames(m *Method) ([]*Frame, error) {
	if len(m.Code) == 0 {
		return nil, fmt.Errorf("%w: %s: empty method body", ErrVerify, m.FullName())
	}
	for id, pos := range m.Labels {
		if pos < 0 || pos > len(m.Code) {
			return nil, fmt.Errorf("%w: %s: label %d at %d outside code", ErrVerify, m.FullName(), id, pos)
		}
	}
	desc, err := ParseDescriptor(m.Desc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrVerify, m.FullName(), err)
	}
	entry, err := EntryFrame(m)
	if err != nil {
		return nil, err
	}

	a := &frameAnalyzer{m: m, desc: desc, in: make([]*Frame, len(m.Code))}
	if err := a.flowInto(-1, 0, entry); err != nil {
		return nil, err
	}
	for len(a.work) > 0 {
		pos := a.work[len(a.work)-1]
		a.work = a.work[:len(a.work)-1]
		a.queued[pos] = false
		if err := a.step(pos); err != nil {
			return nil, err
		}
	}
	return a.in, nil
}

type frameAnalyzer struct {
	m      *Method
	desc   *Descriptor
	in     []*Frame
	work   []int
	queued map[int]bool
}

func (a *frameAnalyzer) errorf(pos int, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if pos >= 0 && pos < len(a.m.Code) {
		return fmt.Errorf("%w: %s at %d (%s): %s", ErrVerify, a.m.FullName(), pos, a.m.Code[pos].Op, msg)
	}
	return fmt.Errorf("%w: %s: %s", ErrVerify, a.m.FullName(), msg)
}

func (a *frameAnalyzer) label(from int, l LabelID) (int, error) {
	pos, ok := a.m.Pos(l)
	if !ok {
		return 0, a.errorf(from, "unknown label %d", l)
	}
	if pos >= len(a.m.Code) {
		return 0, a.errorf(from, "branch to end of code")
	}
	return pos, nil
}

func (a *frameAnalyzer) step(pos int) error {
	in := *a.in[pos]
	insn := a.m.Code[pos]
	out, err := a.execute(pos, in)
	if err != nil {
		return err
	}

	for _, tc := range a.m.TryCatches {
		start, ok1 := a.m.Pos(tc.Start)
		end, ok2 := a.m.Pos(tc.End)
		if !ok1 || !ok2 {
			return a.errorf(-1, "try range references unknown label")
		}
		if pos < start || pos >= end {
			continue
		}
		h, err := a.label(pos, tc.Handler)
		if err != nil {
			return err
		}
		for _, locals := range [][]VType{in.Locals, out.Locals} {
			hf := Frame{Locals: append([]VType(nil), locals...), Stack: []VType{Reference}}
			if err := a.flowInto(pos, h, hf); err != nil {
				return err
			}
		}
	}

	switch insn.Kind() {
	case KindPlain, KindCondJump:
		if pos+1 >= len(a.m.Code) {
			return a.errorf(pos, "execution falls off the end of the code")
		}
		if err := a.flowInto(pos, pos+1, out); err != nil {
			return err
		}
	}
	switch insn.Kind() {
	case KindGoto, KindCondJump:
		t, err := a.label(pos, insn.Target)
		if err != nil {
			return err
		}
		return a.flowInto(pos, t, out)
	case KindSwitch:
		if insn.Switch == nil {
			return a.errorf(pos, "missing switch table")
		}
		targets := append([]LabelID{insn.Switch.Default}, insn.Switch.Targets...)
		for _, l := range targets {
			t, err := a.label(pos, l)
			if err != nil {
				return err
			}
			if err := a.flowInto(pos, t, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// flowInto merges f into the frame at pos and queues pos if it changed.
func (a *frameAnalyzer) flowInto(from, pos int, f Frame) error {
	if a.queued == nil {
		a.queued = make(map[int]bool)
	}
	if declared, ok := a.m.FrameAt(pos); ok {
		if !assignable(f, declared) {
			return a.errorf(from, "frame %s not assignable to declared frame %s at %d", f, declared, pos)
		}
		if a.in[pos] == nil {
			d := declared.Clone()
			for len(d.Locals) < len(f.Locals) {
				d.Locals = append(d.Locals, Top)
			}
			a.in[pos] = &d
			a.push(pos)
		}
		return nil
	}
	cur := a.in[pos]
	if cur == nil {
		c := f.Clone()
		a.in[pos] = &c
		a.push(pos)
		return nil
	}
	merged, err := mergeFrames(*cur, f)
	if err != nil {
		return a.errorf(from, "inconsistent frames at %d: %v", pos, err)
	}
	if !merged.Equal(*cur) {
		a.in[pos] = &merged
		a.push(pos)
	}
	return nil
}

func (a *frameAnalyzer) push(pos int) {
	if !a.queued[pos] {
		a.queued[pos] = true
		a.work = append(a.work, pos)
	}
}

func mergeFrames(a, b Frame) (Frame, error) {
	if len(a.Stack) != len(b.Stack) {
		return Frame{}, fmt.Errorf("stack depth %d vs %d", len(a.Stack), len(b.Stack))
	}
	out := Frame{Stack: make([]VType, len(a.Stack))}
	for i := range a.Stack {
		t, ok := mergeType(a.Stack[i], b.Stack[i])
		if !ok {
			return Frame{}, fmt.Errorf("stack slot %d: %s vs %s", i, a.Stack[i], b.Stack[i])
		}
		out.Stack[i] = t
	}
	n := max(len(a.Locals), len(b.Locals))
	out.Locals = make([]VType, n)
	for i := 0; i < n; i++ {
		t, ok := mergeType(localAt(a.Locals, i), localAt(b.Locals, i))
		if !ok {
			t = Top
		}
		out.Locals[i] = t
	}
	return out, nil
}

func mergeType(a, b VType) (VType, bool) {
	switch {
	case a == b:
		return a, true
	case a.isRef() && b.isRef():
		return Reference, true
	default:
		return Top, false
	}
}

func assignableType(from, to VType) bool {
	return to == Top || from == to || (from == Null && to == Reference)
}

func assignable(f, declared Frame) bool {
	if len(f.Stack) != len(declared.Stack) {
		return false
	}
	for i := range f.Stack {
		if !assignableType(f.Stack[i], declared.Stack[i]) {
			return false
		}
	}
	for i := range declared.Locals {
		if !assignableType(localAt(f.Locals, i), declared.Locals[i]) {
			return false
		}
	}
	return true
}

// execute applies the typed stack effect of the instruction at pos.
func (a *frameAnalyzer) execute(pos int, in Frame) (Frame, error) {
	f := in.Clone()
	insn := a.m.Code[pos]

	pop := func(want VType) (VType, error) {
		if len(f.Stack) == 0 {
			return Top, a.errorf(pos, "stack underflow")
		}
		t := f.Stack[len(f.Stack)-1]
		f.Stack = f.Stack[:len(f.Stack)-1]
		switch want {
		case Integer:
			if t != Integer {
				return t, a.errorf(pos, "expected I on stack, found %s", t)
			}
		case Reference:
			if !t.isRef() {
				return t, a.errorf(pos, "expected R on stack, found %s", t)
			}
		}
		return t, nil
	}
	push := func(t VType) {
		f.Stack = append(f.Stack, t)
	}
	slot := func(n int) error {
		if n < 0 || n >= len(f.Locals) {
			return a.errorf(pos, "local %d out of range", n)
		}
		return nil
	}

	if !insn.Op.Valid() {
		return f, a.errorf(pos, "unknown opcode 0x%02X", byte(insn.Op))
	}

	switch insn.Op {
	case OpNop, OpProbe, OpGoto:
	case OpAconstNull:
		push(Null)
	case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5, OpBipush, OpSipush:
		push(Integer)
	case OpIload:
		if err := slot(insn.Operand); err != nil {
			return f, err
		}
		if f.Locals[insn.Operand] != Integer {
			return f, a.errorf(pos, "local %d is %s, not I", insn.Operand, f.Locals[insn.Operand])
		}
		push(Integer)
	case OpAload:
		if err := slot(insn.Operand); err != nil {
			return f, err
		}
		t := f.Locals[insn.Operand]
		if !t.isRef() {
			return f, a.errorf(pos, "local %d is %s, not R", insn.Operand, t)
		}
		push(t)
	case OpIstore, OpAstore:
		if err := slot(insn.Operand); err != nil {
			return f, err
		}
		want := Integer
		if insn.Op == OpAstore {
			want = Reference
		}
		t, err := pop(want)
		if err != nil {
			return f, err
		}
		f.Locals[insn.Operand] = t
	case OpIinc:
		if err := slot(insn.Operand); err != nil {
			return f, err
		}
		if f.Locals[insn.Operand] != Integer {
			return f, a.errorf(pos, "local %d is %s, not I", insn.Operand, f.Locals[insn.Operand])
		}
	case OpPop:
		if _, err := pop(Top); err != nil {
			return f, err
		}
	case OpDup:
		t, err := pop(Top)
		if err != nil {
			return f, err
		}
		push(t)
		push(t)
	case OpSwap:
		t1, err := pop(Top)
		if err != nil {
			return f, err
		}
		t2, err := pop(Top)
		if err != nil {
			return f, err
		}
		push(t1)
		push(t2)
	case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem:
		for i := 0; i < 2; i++ {
			if _, err := pop(Integer); err != nil {
				return f, err
			}
		}
		push(Integer)
	case OpIneg:
		if _, err := pop(Integer); err != nil {
			return f, err
		}
		push(Integer)
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle, OpTableSw, OpLookupSw:
		if _, err := pop(Integer); err != nil {
			return f, err
		}
	case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
		for i := 0; i < 2; i++ {
			if _, err := pop(Integer); err != nil {
				return f, err
			}
		}
	case OpIfAcmpeq, OpIfAcmpne:
		for i := 0; i < 2; i++ {
			if _, err := pop(Reference); err != nil {
				return f, err
			}
		}
	case OpIfnull, OpIfnonnull, OpAthrow:
		if _, err := pop(Reference); err != nil {
			return f, err
		}
	case OpIreturn, OpAreturn:
		want := Integer
		if insn.Op == OpAreturn {
			want = Reference
		}
		if a.desc.IsVoid() || a.desc.ReturnType() != want {
			return f, a.errorf(pos, "return type mismatch for %s", a.m.Desc)
		}
		if _, err := pop(want); err != nil {
			return f, err
		}
	case OpReturn:
		if !a.desc.IsVoid() {
			return f, a.errorf(pos, "void return from non-void method")
		}
	case OpNew:
		push(Reference)
	case OpInvokestatic:
		d, err := ParseDescriptor(insn.Desc)
		if err != nil {
			return f, a.errorf(pos, "%v", err)
		}
		params := d.ParamTypes()
		for i := len(params) - 1; i >= 0; i-- {
			if _, err := pop(params[i]); err != nil {
				return f, err
			}
		}
		if !d.IsVoid() {
			push(d.ReturnType())
		}
	default:
		return f, a.errorf(pos, "unhandled opcode")
	}
	return f, nil
}
