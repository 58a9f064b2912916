package flow

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/probecov/internal/bytecode"
)

const flowSource = `
class org/example/Flow
source Flow.java

method max (II)I
  line 3
  iload 0
  iload 1
  if_icmplt Lsmall
  line 4
  iload 0
  ireturn
Lsmall:
  line 6
  iload 1
  ireturn
end

method sum (I)I
  locals 3
  line 10
  iconst_0
  istore 1
  iconst_1
  istore 2
Lloop:
  line 11
  iload 2
  iload 0
  if_icmpgt Ldone
  line 12
  iload 1
  iload 2
  iadd
  istore 1
  iinc 2 1
  goto Lloop
Ldone:
  line 14
  iload 1
  ireturn
end

method abs (I)I
  line 20
  iload 0
  ifge Lpos
  line 21
  iload 0
  ineg
  istore 0
Lpos:
  line 23
  iload 0
  ireturn
end

method sw (I)I
  locals 2
  line 30
  iconst_0
  istore 1
  iload 0
  lookupswitch Ldef 1:La 2:Lb 3:Lb
La:
  line 31
  iinc 1 1
Lb:
  line 32
  iinc 1 10
Ldef:
  line 33
  iload 1
  ireturn
end

method classify (I)I
  line 40
  iload 0
  tableswitch 0 Ldefault Lzero Lone Lone
Lzero:
  bipush 10
  ireturn
Lone:
  bipush 20
  ireturn
Ldefault:
  iconst_m1
  ireturn
end

method safeDiv (II)I
Lstart:
  line 50
  iload 0
  iload 1
  idiv
Lend:
  ireturn
Lhandler:
  line 52
  pop
  iconst_m1
  ireturn
  try Lstart Lend Lhandler java/lang/ArithmeticException
end

method guarded (I)I
  locals 2
  line 60
  iconst_0
  istore 1
Ltry:
  line 61
  bipush 100
  iload 0
  idiv
  istore 1
Ltryend:
  goto Lout
Lcatch:
  line 63
  pop
  iconst_m1
  istore 1
Lout:
  line 65
  iload 1
  ireturn
  try Ltry Ltryend Lcatch
end
`

func loadFlow(t *testing.T) *bytecode.Class {
	t.Helper()
	c, err := bytecode.Assemble(flowSource)
	require.NoError(t, err)
	return c
}

func method(t *testing.T, c *bytecode.Class, name string) *bytecode.Method {
	t.Helper()
	m, err := c.Method(name, "")
	require.NoError(t, err)
	return m
}

// probeSet collects the distinct probe ids that fired.
type probeSet map[int]bool

func (s probeSet) Hit(id int) { s[id] = true }

func (s probeSet) sorted() []int {
	out := make([]int, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// instrumentMethod builds, places and rewrites m with base 0.
func instrumentMethod(t *testing.T, m *bytecode.Method) (*Graph, *Plan, *bytecode.Method) {
	t.Helper()
	g, err := BuildGraph(m, Options{})
	require.NoError(t, err)
	plan, err := Place(g, Options{})
	require.NoError(t, err)
	out, err := Instrument(m, g, plan, 0)
	require.NoError(t, err)
	return g, plan, out
}
