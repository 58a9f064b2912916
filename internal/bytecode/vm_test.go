package bytecode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	hits []int
}

func (s *recordingSink) Hit(id int) { s.hits = append(s.hits, id) }

func TestVM_Invoke(t *testing.T) {
	c := mustAssemble(t, calcSource)
	vm := NewVM(c, nil)

	tests := []struct {
		name   string
		method string
		args   []Value
		want   int32
	}{
		{"max first", "max", []Value{IntValue(7), IntValue(3)}, 7},
		{"max second", "max", []Value{IntValue(2), IntValue(9)}, 9},
		{"sum of 1..10", "sum", []Value{IntValue(10)}, 55},
		{"sum of nothing", "sum", []Value{IntValue(0)}, 0},
		{"divide", "safeDiv", []Value{IntValue(9), IntValue(3)}, 3},
		{"divide by zero is caught", "safeDiv", []Value{IntValue(9), IntValue(0)}, -1},
		{"tableswitch hit", "classify", []Value{IntValue(0)}, 10},
		{"tableswitch shared target", "classify", []Value{IntValue(2)}, 20},
		{"tableswitch default", "classify", []Value{IntValue(17)}, -1},
		{"lookupswitch hit", "lookup", []Value{IntValue(-5)}, 1},
		{"lookupswitch default", "lookup", []Value{IntValue(6)}, 0},
		{"static call", "twice", []Value{IntValue(3)}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := vm.Invoke(tt.method, "", tt.args...)
			require.NoError(t, err)
			assert.Equal(t, Integer, got.Type)
			assert.Equal(t, tt.want, got.Int)
		})
	}
}

func TestVM_UncaughtException(t *testing.T) {
	c := mustAssemble(t, calcSource)
	vm := NewVM(c, nil)

	_, err := vm.Invoke("check", "(I)V", IntValue(-1))
	var exc *Exception
	require.True(t, errors.As(err, &exc), "expected *Exception, got %v", err)
	assert.Equal(t, "java/lang/IllegalArgumentException", exc.Object.Class)
	assert.Equal(t, "check(I)V", exc.Method)

	_, err = vm.Invoke("check", "(I)V", IntValue(1))
	assert.NoError(t, err)
}

func TestVM_ExceptionPropagatesThroughCalls(t *testing.T) {
	c := mustAssemble(t, `
class A
method inner (I)I
  iconst_1
  iload 0
  idiv
  ireturn
end

method outer (I)I
Ls:
  iload 0
  invokestatic inner (I)I
Le:
  ireturn
Lh:
  pop
  bipush 42
  ireturn
  try Ls Le Lh
end
`)
	vm := NewVM(c, nil)

	got, err := vm.Invoke("outer", "", IntValue(0))
	require.NoError(t, err)
	assert.Equal(t, int32(42), got.Int)

	_, err = vm.Invoke("inner", "", IntValue(0))
	var exc *Exception
	require.True(t, errors.As(err, &exc))
	assert.Equal(t, "java/lang/ArithmeticException", exc.Object.Class)
}

func TestVM_Probes(t *testing.T) {
	c := mustAssemble(t, `
class A
method f (I)I
  iload 0
  ifeq L1
  probe 0
  iconst_1
  ireturn
L1:
  probe 1
  iconst_0
  ireturn
end
`)
	sink := &recordingSink{}
	vm := NewVM(c, sink)

	_, err := vm.Invoke("f", "", IntValue(5))
	require.NoError(t, err)
	_, err = vm.Invoke("f", "", IntValue(0))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, sink.hits)
}

func TestVM_Limits(t *testing.T) {
	t.Run("should stop infinite loops", func(t *testing.T) {
		c := mustAssemble(t, "class A\nmethod f ()V\nL:\n  goto L\nend\n")
		vm := NewVM(c, nil)
		vm.MaxSteps = 100
		_, err := vm.Invoke("f", "")
		assert.True(t, errors.Is(err, ErrRuntime))
	})

	t.Run("should stop unbounded recursion", func(t *testing.T) {
		c := mustAssemble(t, "class A\nmethod f ()V\n  invokestatic f ()V\n  return\nend\n")
		vm := NewVM(c, nil)
		vm.MaxDepth = 8
		_, err := vm.Invoke("f", "")
		assert.True(t, errors.Is(err, ErrRuntime))
	})

	t.Run("should reject wrong argument count", func(t *testing.T) {
		vm := NewVM(mustAssemble(t, calcSource), nil)
		_, err := vm.Invoke("max", "")
		assert.True(t, errors.Is(err, ErrRuntime))
	})
}

func TestVM_Trace(t *testing.T) {
	c := mustAssemble(t, calcSource)
	var buf bytes.Buffer
	vm := NewVM(c, nil)
	vm.Trace = true
	vm.Out = &buf

	_, err := vm.Invoke("max", "", IntValue(1), IntValue(2))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "max(II)I 0000  iload 0")
	assert.Contains(t, buf.String(), "if_icmplt L0")
}
