package bytecode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const calcSource = `
; sample class used across the package tests
class org/example/Calc
source Calc.java

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

method safeDiv (II)I
Lstart:
  line 20
  iload 0
  iload 1
  idiv
Lend:
  ireturn
Lhandler:
  line 22
  pop
  iconst_m1
  ireturn
  try Lstart Lend Lhandler java/lang/ArithmeticException
end

method classify (I)I
  line 30
  iload 0
  tableswitch 0 Ldefault Lzero Lone Lone
Lzero:
  line 31
  bipush 10
  ireturn
Lone:
  line 32
  bipush 20
  ireturn
Ldefault:
  line 33
  iconst_m1
  ireturn
end

method lookup (I)I
  line 40
  iload 0
  lookupswitch Lother -5:Lneg 100:Lbig
Lneg:
  iconst_1
  ireturn
Lbig:
  iconst_2
  ireturn
Lother:
  iconst_0
  ireturn
end

method check (I)V
  line 50
  iload 0
  ifge Lok
  line 51
  new java/lang/IllegalArgumentException
  athrow
Lok:
  line 53
  return
end

method twice (I)I
  line 60
  iload 0
  bipush 5
  invokestatic max (II)I
  iconst_2
  imul
  ireturn
end
`

func mustAssemble(t *testing.T, src string) *Class {
	t.Helper()
	c, err := Assemble(src)
	require.NoError(t, err)
	return c
}

func mustMethod(t *testing.T, c *Class, name string) *Method {
	t.Helper()
	m, err := c.Method(name, "")
	require.NoError(t, err)
	return m
}
