package analysis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/probecov/internal/bytecode"
	"github.com/zjy-dev/probecov/internal/coverage"
	"github.com/zjy-dev/probecov/internal/execdata"
	"github.com/zjy-dev/probecov/internal/instrument"
)

const demoSource = `
class org/example/Demo
source Demo.java

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

type call struct {
	method string
	args   []int32
}

// run instruments the demo class, executes the calls and returns the
// instrumentation result with the recorded probes.
func run(t *testing.T, calls ...call) (*instrument.Result, *execdata.Record) {
	t.Helper()
	c, err := bytecode.Assemble(demoSource)
	require.NoError(t, err)
	res, err := instrument.New(instrument.Options{}).Instrument(c)
	require.NoError(t, err)
	require.Empty(t, res.Errors)

	rec := execdata.NewRecord(res.ClassID, c.Name, res.ProbeCount, execdata.ModeBoolean)
	vm := bytecode.NewVM(res.Class, rec)
	for _, cl := range calls {
		args := make([]bytecode.Value, len(cl.args))
		for i, a := range cl.args {
			args[i] = bytecode.IntValue(a)
		}
		_, err := vm.Invoke(cl.method, "", args...)
		require.NoError(t, err)
	}
	return res, rec
}

func methodCoverage(t *testing.T, cc *coverage.ClassCoverage, name string) *coverage.MethodCoverage {
	t.Helper()
	for _, m := range cc.Methods {
		if m.Name() == name {
			return m
		}
	}
	t.Fatalf("method %s not found", name)
	return nil
}

func counters(m *coverage.MethodCoverage) map[coverage.CounterEntity]coverage.Counter {
	out := make(map[coverage.CounterEntity]coverage.Counter)
	for _, e := range []coverage.CounterEntity{coverage.EntityInstruction, coverage.EntityBranch, coverage.EntityLine, coverage.EntityComplexity, coverage.EntityMethod} {
		out[e] = m.Counter(e)
	}
	return out
}

func c(missed, covered int) coverage.Counter {
	return coverage.Counter{Missed: missed, Covered: covered}
}

func TestAnalyzeMethod(t *testing.T) {
	tests := []struct {
		name   string
		method string
		calls  []call
		want   map[coverage.CounterEntity]coverage.Counter
	}{
		{
			name: "max taking the first return", method: "max",
			calls: []call{{"max", []int32{7, 3}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(2, 5),
				coverage.EntityBranch:      c(1, 1),
				coverage.EntityLine:        c(1, 2),
				coverage.EntityComplexity:  c(1, 1),
				coverage.EntityMethod:      c(0, 1),
			},
		},
		{
			name: "max on both paths", method: "max",
			calls: []call{{"max", []int32{7, 3}}, {"max", []int32{2, 9}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(0, 7),
				coverage.EntityBranch:      c(0, 2),
				coverage.EntityLine:        c(0, 3),
				coverage.EntityComplexity:  c(0, 2),
				coverage.EntityMethod:      c(0, 1),
			},
		},
		{
			name: "max not executed", method: "max",
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(7, 0),
				coverage.EntityBranch:      c(2, 0),
				coverage.EntityLine:        c(3, 0),
				coverage.EntityComplexity:  c(2, 0),
				coverage.EntityMethod:      c(1, 0),
			},
		},
		{
			name: "sum skipping the loop body", method: "sum",
			calls: []call{{"sum", []int32{0}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(6, 9),
				coverage.EntityBranch:      c(1, 1),
				coverage.EntityLine:        c(1, 3),
				coverage.EntityComplexity:  c(1, 1),
				coverage.EntityMethod:      c(0, 1),
			},
		},
		{
			name: "sum through the loop", method: "sum",
			calls: []call{{"sum", []int32{3}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(0, 15),
				coverage.EntityBranch:      c(0, 2),
				coverage.EntityLine:        c(0, 4),
				coverage.EntityComplexity:  c(0, 2),
				coverage.EntityMethod:      c(0, 1),
			},
		},
		{
			name: "switch through the first case", method: "sw",
			calls: []call{{"sw", []int32{1}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(0, 8),
				coverage.EntityBranch:      c(2, 1),
				coverage.EntityLine:        c(0, 4),
				coverage.EntityComplexity:  c(2, 1),
				coverage.EntityMethod:      c(0, 1),
			},
		},
		{
			name: "switch to default", method: "sw",
			calls: []call{{"sw", []int32{9}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(2, 6),
				coverage.EntityBranch:      c(2, 1),
				coverage.EntityLine:        c(2, 2),
				coverage.EntityComplexity:  c(2, 1),
				coverage.EntityMethod:      c(0, 1),
			},
		},
		{
			name: "switch on every target", method: "sw",
			calls: []call{{"sw", []int32{1}}, {"sw", []int32{2}}, {"sw", []int32{9}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(0, 8),
				coverage.EntityBranch:      c(0, 3),
				coverage.EntityLine:        c(0, 4),
				coverage.EntityComplexity:  c(0, 3),
				coverage.EntityMethod:      c(0, 1),
			},
		},
		{
			name: "try block completing normally", method: "guarded",
			calls: []call{{"guarded", []int32{5}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(3, 9),
				coverage.EntityBranch:      c(0, 0),
				coverage.EntityLine:        c(1, 3),
				coverage.EntityComplexity:  c(0, 1),
				coverage.EntityMethod:      c(0, 1),
			},
		},
		{
			name: "exception caught by the handler", method: "guarded",
			calls: []call{{"guarded", []int32{0}}},
			want: map[coverage.CounterEntity]coverage.Counter{
				coverage.EntityInstruction: c(5, 7),
				coverage.EntityBranch:      c(0, 0),
				coverage.EntityLine:        c(1, 3),
				coverage.EntityComplexity:  c(0, 1),
				coverage.EntityMethod:      c(0, 1),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, rec := run(t, tt.calls...)
			mi, ok := res.Method(tt.method, "")
			require.True(t, ok)
			m, err := res.Original.Method(tt.method, "")
			require.NoError(t, err)

			var probes []bool
			if len(tt.calls) > 0 {
				probes = rec.Probes()
			}
			mc := AnalyzeMethod(m, mi.Graph, mi.Plan, mi.Base, probes)
			assert.Equal(t, tt.want, counters(mc))
		})
	}
}

func TestAnalyzeMethod_LineDetail(t *testing.T) {
	res, rec := run(t, call{"max", []int32{7, 3}})
	mi, _ := res.Method("max", "")
	m, _ := res.Original.Method("max", "")
	mc := AnalyzeMethod(m, mi.Graph, mi.Plan, mi.Base, rec.Probes())

	assert.Equal(t, []int{3, 4, 6}, mc.Lines())
	l3 := mc.Line(3)
	assert.Equal(t, c(0, 3), l3.Instructions)
	assert.Equal(t, c(1, 1), l3.Branches)
	assert.Equal(t, coverage.StatusPartlyCovered, l3.Status())
	assert.Equal(t, coverage.StatusFullyCovered, mc.Line(4).Status())
	assert.Equal(t, []int{mi.Base}, mc.Line(4).Probes, "the first return probe fired on line 4")
	assert.Equal(t, coverage.StatusNotCovered, mc.Line(6).Status())
	assert.Empty(t, mc.Line(6).Probes)
}

func TestAnalyzeMethod_Uninstrumented(t *testing.T) {
	m := &bytecode.Method{
		Name: "f", Desc: "()V",
		Code: []bytecode.Instruction{
			{Op: bytecode.OpNop, Target: bytecode.NoLabel, Line: 1},
			{Op: bytecode.OpReturn, Target: bytecode.NoLabel, Line: 2},
		},
	}
	mc := AnalyzeMethod(m, nil, nil, 0, []bool{true, true})
	assert.Equal(t, c(2, 0), mc.Counter(coverage.EntityInstruction))
	assert.Equal(t, c(2, 0), mc.Counter(coverage.EntityLine))
	assert.Equal(t, c(1, 0), mc.Counter(coverage.EntityMethod))
}

func TestAnalyzeClass(t *testing.T) {
	res, rec := run(t, call{"max", []int32{7, 3}}, call{"sw", []int32{9}})
	cc := AnalyzeClass(res, rec.Probes())

	assert.Equal(t, "org/example/Demo", cc.Name())
	assert.Equal(t, "Demo.java", cc.SourceFile)
	assert.Equal(t, res.ClassID, cc.ID)
	require.Len(t, cc.Methods, 4)
	assert.Equal(t, c(2, 2), cc.Counter(coverage.EntityMethod))
	assert.Equal(t, c(0, 1), cc.Counter(coverage.EntityClass))

	var sum coverage.Counter
	for _, m := range cc.Methods {
		sum = sum.Add(m.Counter(coverage.EntityInstruction))
	}
	assert.Equal(t, sum, cc.Counter(coverage.EntityInstruction))
	assert.Equal(t, c(4, 0), methodCoverage(t, cc, "sum").Counter(coverage.EntityLine))
}

func TestAnalyzer(t *testing.T) {
	t.Run("should match execution data by class id", func(t *testing.T) {
		res, rec := run(t, call{"sum", []int32{3}})
		store := execdata.NewStore(execdata.ModeBoolean)
		require.NoError(t, store.Put(rec))
		b := coverage.NewBuilder()

		cc, err := NewAnalyzer(store, b).Analyze(res)
		require.NoError(t, err)
		assert.False(t, cc.NoMatch)
		assert.Equal(t, c(0, 1), cc.Counter(coverage.EntityClass))
		assert.Len(t, b.Classes(), 1)
	})

	t.Run("should flag data recorded for another version", func(t *testing.T) {
		res, _ := run(t)
		store := execdata.NewStore(execdata.ModeBoolean)
		other := execdata.NewRecord(res.ClassID+1, res.Original.Name, 3, execdata.ModeBoolean)
		other.Hit(0)
		require.NoError(t, store.Put(other))

		cc, err := NewAnalyzer(store, coverage.NewBuilder()).Analyze(res)
		require.NoError(t, err)
		assert.True(t, cc.NoMatch)
		assert.Equal(t, c(1, 0), cc.Counter(coverage.EntityClass))
	})

	t.Run("should reject a record with a different probe count", func(t *testing.T) {
		res, _ := run(t)
		store := execdata.NewStore(execdata.ModeBoolean)
		require.NoError(t, store.Put(execdata.NewRecord(res.ClassID, res.Original.Name, res.ProbeCount+1, execdata.ModeBoolean)))

		_, err := NewAnalyzer(store, coverage.NewBuilder()).Analyze(res)
		assert.True(t, errors.Is(err, execdata.ErrVersionMismatch))
	})
}
