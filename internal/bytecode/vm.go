package bytecode

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrRuntime is returned when execution cannot continue.
var ErrRuntime = errors.New("runtime error")

// ProbeSink receives probe hits from executing code.
type ProbeSink interface {
	Hit(id int)
}

// Object is a heap object. Only its class is tracked.
type Object struct {
	Class string
}

// Value is a stack slot or local variable.
type Value struct {
	Type VType
	Int  int32
	Ref  *Object
}

// IntValue wraps an int.
func IntValue(v int32) Value { return Value{Type: Integer, Int: v} }

// NullValue is the null reference.
func NullValue() Value { return Value{Type: Null} }

// ObjectValue allocates a new object of the given class.
func ObjectValue(class string) Value {
	return Value{Type: Reference, Ref: &Object{Class: class}}
}

func (v Value) String() string {
	switch v.Type {
	case Integer:
		return fmt.Sprint(v.Int)
	case Null:
		return "null"
	case Reference:
		return "@" + v.Ref.Class
	default:
		return "<top>"
	}
}

// Exception is a throwable that left the invoked method.
type Exception struct {
	Object *Object
	Method string
}

func (e *Exception) Error() string {
	return fmt.Sprintf("uncaught %s thrown in %s", e.Object.Class, e.Method)
}

const (
	classArithmetic  = "java/lang/ArithmeticException"
	classNullPointer = "java/lang/NullPointerException"
	classThrowable   = "java/lang/Throwable"
)

// VM interprets the methods of a single class. Calls resolve invokestatic
// against the same class. Probe instructions report to Probes.
type VM struct {
	class *Class

	Probes   ProbeSink
	MaxDepth int
	MaxSteps int
	Trace    bool
	Out      io.Writer

	steps int
}

// NewVM creates an interpreter for the class.
func NewVM(c *Class, sink ProbeSink) *VM {
	return &VM{
		class:    c,
		Probes:   sink,
		MaxDepth: 256,
		MaxSteps: 1_000_000,
		Out:      os.Stderr,
	}
}

// Invoke runs a method to completion. An uncaught throwable is returned as
// *Exception.
func (vm *VM) Invoke(name, desc string, args ...Value) (Value, error) {
	m, err := vm.class.Method(name, desc)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	vm.steps = 0
	return vm.call(m, args, 0)
}

func (vm *VM) call(m *Method, args []Value, depth int) (Value, error) {
	if depth >= vm.MaxDepth {
		return Value{}, fmt.Errorf("%w: call depth %d exceeded in %s", ErrRuntime, vm.MaxDepth, m.FullName())
	}
	d, err := ParseDescriptor(m.Desc)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	if len(args) != len(d.Params) {
		return Value{}, fmt.Errorf("%w: %s expects %d arguments, got %d", ErrRuntime, m.FullName(), len(d.Params), len(args))
	}

	locals := make([]Value, max(m.MaxLocals, len(args)))
	copy(locals, args)
	stack := make([]Value, 0, 8)

	fail := func(pc int, format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s at %d: %s", ErrRuntime, m.FullName(), pc, fmt.Sprintf(format, args...))
	}
	target := func(pc int, l LabelID) (int, error) {
		pos, ok := m.Pos(l)
		if !ok || pos >= len(m.Code) {
			return 0, fail(pc, "bad branch target %d", l)
		}
		return pos, nil
	}

	pc := 0
	for {
		if pc < 0 || pc >= len(m.Code) {
			return Value{}, fail(pc, "pc out of range")
		}
		vm.steps++
		if vm.steps > vm.MaxSteps {
			return Value{}, fail(pc, "step limit %d exceeded", vm.MaxSteps)
		}
		insn := m.Code[pc]
		if vm.Trace {
			fmt.Fprintf(vm.Out, "%s %04d  %-24s %v\n", m.FullName(), pc, FormatInstruction(insn), stack)
		}

		var underflow bool
		pop := func() Value {
			if len(stack) == 0 {
				underflow = true
				return Value{}
			}
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			return v
		}
		push := func(v Value) { stack = append(stack, v) }

		next := pc + 1
		var thrown *Object
		branch := false

		switch insn.Op {
		case OpNop:
		case OpProbe:
			if vm.Probes != nil {
				vm.Probes.Hit(insn.Operand)
			}
		case OpAconstNull:
			push(NullValue())
		case OpIconstM1, OpIconst0, OpIconst1, OpIconst2, OpIconst3, OpIconst4, OpIconst5:
			push(IntValue(int32(insn.Op) - int32(OpIconst0)))
		case OpBipush, OpSipush:
			push(IntValue(int32(insn.Operand)))
		case OpIload, OpAload:
			push(locals[insn.Operand])
		case OpIstore, OpAstore:
			locals[insn.Operand] = pop()
		case OpIinc:
			locals[insn.Operand].Int += int32(insn.Operand2)
		case OpPop:
			pop()
		case OpDup:
			v := pop()
			push(v)
			push(v)
		case OpSwap:
			a, b := pop(), pop()
			push(a)
			push(b)
		case OpIadd, OpIsub, OpImul, OpIdiv, OpIrem:
			b, a := pop().Int, pop().Int
			switch insn.Op {
			case OpIadd:
				push(IntValue(a + b))
			case OpIsub:
				push(IntValue(a - b))
			case OpImul:
				push(IntValue(a * b))
			default:
				if b == 0 {
					thrown = &Object{Class: classArithmetic}
				} else if insn.Op == OpIdiv {
					push(IntValue(a / b))
				} else {
					push(IntValue(a % b))
				}
			}
		case OpIneg:
			push(IntValue(-pop().Int))
		case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle:
			branch = compareInt(insn.Op, pop().Int, 0)
		case OpIfIcmpeq, OpIfIcmpne, OpIfIcmplt, OpIfIcmpge, OpIfIcmpgt, OpIfIcmple:
			b, a := pop().Int, pop().Int
			branch = compareInt(insn.Op, a, b)
		case OpIfAcmpeq, OpIfAcmpne:
			b, a := pop().Ref, pop().Ref
			branch = (a == b) == (insn.Op == OpIfAcmpeq)
		case OpIfnull, OpIfnonnull:
			branch = (pop().Ref == nil) == (insn.Op == OpIfnull)
		case OpGoto:
			branch = true
		case OpTableSw, OpLookupSw:
			if insn.Switch == nil {
				return Value{}, fail(pc, "missing switch table")
			}
			pos, err := target(pc, insn.Switch.Lookup(pop().Int))
			if err != nil {
				return Value{}, err
			}
			next = pos
		case OpIreturn, OpAreturn:
			v := pop()
			if underflow {
				return Value{}, fail(pc, "stack underflow")
			}
			return v, nil
		case OpReturn:
			return Value{}, nil
		case OpAthrow:
			v := pop()
			if v.Ref == nil {
				thrown = &Object{Class: classNullPointer}
			} else {
				thrown = v.Ref
			}
		case OpNew:
			push(ObjectValue(insn.Ref))
		case OpInvokestatic:
			callee, err := vm.class.Method(insn.Ref, insn.Desc)
			if err != nil {
				return Value{}, fail(pc, "%v", err)
			}
			cd, err := ParseDescriptor(insn.Desc)
			if err != nil {
				return Value{}, fail(pc, "%v", err)
			}
			callArgs := make([]Value, len(cd.Params))
			for i := len(callArgs) - 1; i >= 0; i-- {
				callArgs[i] = pop()
			}
			if underflow {
				return Value{}, fail(pc, "stack underflow")
			}
			result, err := vm.call(callee, callArgs, depth+1)
			var exc *Exception
			switch {
			case errors.As(err, &exc):
				thrown = exc.Object
			case err != nil:
				return Value{}, err
			case !cd.IsVoid():
				push(result)
			}
		default:
			return Value{}, fail(pc, "unsupported opcode 0x%02X", byte(insn.Op))
		}

		if underflow {
			return Value{}, fail(pc, "stack underflow")
		}
		if branch {
			pos, err := target(pc, insn.Target)
			if err != nil {
				return Value{}, err
			}
			next = pos
		}
		if thrown != nil {
			h, ok, err := vm.findHandler(m, pc, thrown)
			if err != nil {
				return Value{}, err
			}
			if !ok {
				return Value{}, &Exception{Object: thrown, Method: m.FullName()}
			}
			stack = append(stack[:0], Value{Type: Reference, Ref: thrown})
			next = h
		}
		pc = next
	}
}

// findHandler returns the first handler whose range covers pc and whose type
// matches. An empty type or java/lang/Throwable catches everything; other
// types match by exact class name.
func (vm *VM) findHandler(m *Method, pc int, thrown *Object) (int, bool, error) {
	for _, tc := range m.TryCatches {
		start, ok1 := m.Pos(tc.Start)
		end, ok2 := m.Pos(tc.End)
		h, ok3 := m.Pos(tc.Handler)
		if !ok1 || !ok2 || !ok3 {
			return 0, false, fmt.Errorf("%w: %s: try range references unknown label", ErrRuntime, m.FullName())
		}
		if pc < start || pc >= end {
			continue
		}
		if tc.Type == "" || tc.Type == classThrowable || tc.Type == thrown.Class {
			return h, true, nil
		}
	}
	return 0, false, nil
}

func compareInt(op Opcode, a, b int32) bool {
	switch op {
	case OpIfeq, OpIfIcmpeq:
		return a == b
	case OpIfne, OpIfIcmpne:
		return a != b
	case OpIflt, OpIfIcmplt:
		return a < b
	case OpIfge, OpIfIcmpge:
		return a >= b
	case OpIfgt, OpIfIcmpgt:
		return a > b
	default:
		return a <= b
	}
}
