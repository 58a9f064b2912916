package flow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/probecov/internal/bytecode"
)

func ops(m *bytecode.Method) []bytecode.Opcode {
	out := make([]bytecode.Opcode, len(m.Code))
	for i, in := range m.Code {
		out[i] = in.Op
	}
	return out
}

func TestInstrument_ConditionalJump(t *testing.T) {
	m := method(t, loadFlow(t), "abs")
	_, _, out := instrumentMethod(t, m)

	assert.Equal(t, []bytecode.Opcode{
		bytecode.OpIload,
		bytecode.OpIflt, // inverted
		bytecode.OpProbe,
		bytecode.OpGoto,
		bytecode.OpIload,
		bytecode.OpIneg,
		bytecode.OpIstore,
		bytecode.OpProbe,
		bytecode.OpIload,
		bytecode.OpProbe,
		bytecode.OpIreturn,
	}, ops(out), bytecode.DisassembleMethod(out))

	skip, ok := out.Pos(out.Code[1].Target)
	require.True(t, ok)
	assert.Equal(t, 4, skip)
	f, ok := out.FrameAt(skip)
	require.True(t, ok, "intermediate label must carry a frame")
	assert.Equal(t, []bytecode.VType{bytecode.Integer}, f.Locals)
	assert.Empty(t, f.Stack, "ifge popped its operand")

	target, _ := out.Pos(out.Code[3].Target)
	assert.Equal(t, 8, target, "goto reaches the join point after its fallthrough probe")
}

func TestInstrument_Switch(t *testing.T) {
	m := method(t, loadFlow(t), "sw")
	_, _, out := instrumentMethod(t, m)

	assert.Equal(t, []bytecode.Opcode{
		bytecode.OpIconst0,
		bytecode.OpIstore,
		bytecode.OpIload,
		bytecode.OpLookupSw,
		bytecode.OpProbe, bytecode.OpGoto, // default trampoline
		bytecode.OpProbe, bytecode.OpGoto, // shared trampoline for cases 2 and 3
		bytecode.OpIinc,
		bytecode.OpProbe,
		bytecode.OpIinc,
		bytecode.OpProbe,
		bytecode.OpIload,
		bytecode.OpProbe,
		bytecode.OpIreturn,
	}, ops(out), bytecode.DisassembleMethod(out))

	sw := out.Code[3].Switch
	assert.Equal(t, sw.Targets[1], sw.Targets[2], "converging cases share a trampoline")
	assert.NotEqual(t, m.Code[3].Switch.Default, sw.Default)
	assert.Equal(t, m.Code[3].Switch.Targets[0], sw.Targets[0], "unprobed targets are kept")
}

func TestInstrument_TryStartMovesBeforeProbe(t *testing.T) {
	m := method(t, loadFlow(t), "guarded")
	_, _, out := instrumentMethod(t, m)

	require.Len(t, out.TryCatches, 1)
	start, _ := out.Pos(out.TryCatches[0].Start)
	assert.Equal(t, bytecode.OpProbe, out.Code[start].Op)
	orig, _ := out.Pos(m.TryCatches[0].Start)
	assert.Equal(t, start+1, orig, "original label stays after the probe")
}

func TestInstrument_BaseOffset(t *testing.T) {
	m := method(t, loadFlow(t), "sum")
	g, err := BuildGraph(m, Options{})
	require.NoError(t, err)
	plan, err := Place(g, Options{})
	require.NoError(t, err)
	out, err := Instrument(m, g, plan, 10)
	require.NoError(t, err)

	var ids []int
	for _, in := range out.Code {
		if in.Op == bytecode.OpProbe {
			ids = append(ids, in.Operand)
		}
	}
	assert.Equal(t, []int{10, 11, 12}, ids)
}

func TestInstrument_LeavesOriginalUntouched(t *testing.T) {
	c := loadFlow(t)
	before := bytecode.Disassemble(c)
	for _, m := range c.Methods {
		instrumentMethod(t, m)
	}
	assert.Equal(t, before, bytecode.Disassemble(c))
}

func TestInstrument_PreservesBehaviour(t *testing.T) {
	c := loadFlow(t)
	inputs := []int32{-7, -1, 0, 1, 2, 3, 4, 9, 12}

	for _, m := range c.Methods {
		t.Run(m.Name, func(t *testing.T) {
			_, plan, out := instrumentMethod(t, m)
			orig := bytecode.NewVM(&bytecode.Class{Name: c.Name, Methods: []*bytecode.Method{m}}, nil)
			hits := probeSet{}
			inst := bytecode.NewVM(&bytecode.Class{Name: c.Name, Methods: []*bytecode.Method{out}}, hits)

			d, err := bytecode.ParseDescriptor(m.Desc)
			require.NoError(t, err)
			for _, a := range inputs {
				for _, b := range inputs {
					args := []bytecode.Value{bytecode.IntValue(a)}
					if len(d.Params) == 2 {
						args = append(args, bytecode.IntValue(b))
					} else if b != inputs[0] {
						continue
					}
					want, werr := orig.Invoke(m.Name, m.Desc, args...)
					got, gerr := inst.Invoke(m.Name, m.Desc, args...)
					assert.Equal(t, werr == nil, gerr == nil)
					assert.Equal(t, want, got, "%s%v", m.Name, args)
				}
			}
			for id := range hits {
				assert.Less(t, id, plan.Count)
			}
		})
	}
}

func TestInstrument_ProbesFollowExecutedPath(t *testing.T) {
	c := loadFlow(t)
	tests := []struct {
		method string
		args   []int32
		want   []int
	}{
		{"max", []int32{7, 3}, []int{0}},
		{"max", []int32{2, 9}, []int{1}},
		{"abs", []int32{5}, []int{0, 2}},
		{"abs", []int32{-5}, []int{1, 2}},
		{"sum", []int32{3}, []int{0, 1, 2}},
		{"sum", []int32{0}, []int{0, 2}},
		{"sw", []int32{1}, []int{2, 3, 4}},
		{"sw", []int32{2}, []int{1, 3, 4}},
		{"sw", []int32{9}, []int{0, 4}},
		{"guarded", []int32{5}, []int{0, 1, 3}},
		{"guarded", []int32{0}, []int{0, 2, 3}},
	}
	for _, tt := range tests {
		m := method(t, c, tt.method)
		_, _, out := instrumentMethod(t, m)
		hits := probeSet{}
		vm := bytecode.NewVM(&bytecode.Class{Name: c.Name, Methods: []*bytecode.Method{out}}, hits)

		args := make([]bytecode.Value, len(tt.args))
		for i, a := range tt.args {
			args[i] = bytecode.IntValue(a)
		}
		_, err := vm.Invoke(tt.method, "", args...)
		require.NoError(t, err)
		assert.Equal(t, tt.want, hits.sorted(), "%s%v", tt.method, tt.args)
	}
}

func TestInstrument_Deterministic(t *testing.T) {
	for _, m := range loadFlow(t).Methods {
		_, _, a := instrumentMethod(t, m)
		_, _, b := instrumentMethod(t, m.Clone())
		assert.Equal(t, bytecode.DisassembleMethod(a), bytecode.DisassembleMethod(b))
	}
}

func TestRewriter_FrameInvariant(t *testing.T) {
	m := method(t, loadFlow(t), "max")
	r := &rewriter{
		m:      m,
		frames: []*bytecode.Frame{{Locals: []bytecode.VType{bytecode.Integer}, Stack: []bytecode.VType{bytecode.Integer}}},
	}
	_, err := r.frameAfterPop(0, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrameInvariant))
	assert.False(t, errors.Is(err, ErrMalformed))
}

func TestInstrument_RejectsUnverifiableInput(t *testing.T) {
	c, err := bytecode.Assemble("class A\nmethod f ()I\n  aconst_null\n  ireturn\nend\n")
	require.NoError(t, err)
	m := c.Methods[0]
	g, err := BuildGraph(m, Options{})
	require.NoError(t, err)
	plan, err := Place(g, Options{})
	require.NoError(t, err)

	_, err = Instrument(m, g, plan, 0)
	assert.True(t, errors.Is(err, ErrMalformed))
}
