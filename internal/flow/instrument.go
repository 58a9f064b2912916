package flow

import (
	"fmt"

	"github.com/zjy-dev/probecov/internal/bytecode"
)

type rewriter struct {
	m      *bytecode.Method
	g      *Graph
	plan   *Plan
	base   int
	frames []*bytecode.Frame
	out    *bytecode.Method
}

// Instrument returns a copy of m with the probes of plan inserted. Probe ids
// are offset by base. The original method is not modified.
//
// A probed conditional jump is rewritten as
//
//	<inverted jump> Lskip
//	probe N
//	goto <target>
//	Lskip:
//
// and a probed switch jumps to trampolines "probe N; goto <target>" emitted
// right after it. Every new branch target gets a declared frame equal to
// the frame after the original branch popped its operands.
func Instrument(m *bytecode.Method, g *Graph, plan *Plan, base int) (*bytecode.Method, error) {
	frames, err := bytecode.AnalyzeFrames(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r := &rewriter{
		m:      m,
		g:      g,
		plan:   plan,
		base:   base,
		frames: frames,
		out: &bytecode.Method{
			Name:      m.Name,
			Desc:      m.Desc,
			MaxLocals: m.MaxLocals,
			Labels:    make([]int, len(m.Labels)),
			Frames:    make(map[bytecode.LabelID]bytecode.Frame, len(m.Frames)),
		},
	}
	for l, f := range m.Frames {
		r.out.Frames[l] = f.Clone()
	}
	if err := r.rewrite(); err != nil {
		return nil, err
	}
	if err := bytecode.Verify(r.out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameInvariant, err)
	}
	return r.out, nil
}

func (r *rewriter) emit(in bytecode.Instruction) {
	r.out.Code = append(r.out.Code, in)
}

func (r *rewriter) probe(id, line int) error {
	info := bytecode.GetOpcodeInfo(bytecode.OpProbe)
	if info.StackPop != 0 || info.StackPush != 0 {
		return fmt.Errorf("%w: probe instruction is not stack neutral", ErrFrameInvariant)
	}
	r.emit(bytecode.Instruction{Op: bytecode.OpProbe, Operand: r.base + id, Target: bytecode.NoLabel, Line: line})
	return nil
}

func (r *rewriter) place(l bytecode.LabelID) {
	r.out.Labels[l] = len(r.out.Code)
}

// frameAfterPop is the frame on the path leaving instruction i after it
// consumed n operands.
func (r *rewriter) frameAfterPop(i, n int) (bytecode.Frame, error) {
	f := r.frames[i]
	if f == nil {
		// unreachable: no flow ever checks this frame
		return bytecode.Frame{Locals: []bytecode.VType{}, Stack: []bytecode.VType{}}, nil
	}
	out, err := f.Pop(n)
	if err != nil {
		return bytecode.Frame{}, fmt.Errorf("%w: %s at %d: %v", ErrFrameInvariant, r.m.FullName(), i, err)
	}
	return out, nil
}

func (r *rewriter) rewrite() error {
	m := r.m
	at := make(map[int][]bytecode.LabelID)
	for id, pos := range m.Labels {
		at[pos] = append(at[pos], bytecode.LabelID(id))
	}
	tryStarts := make(map[int]bool)
	for _, tc := range m.TryCatches {
		tryStarts[m.Labels[tc.Start]] = true
	}
	probedStart := make(map[int]bytecode.LabelID)

	for i, in := range m.Code {
		if id, ok := r.plan.LabelProbe(i); ok {
			if tryStarts[i] {
				probedStart[i] = r.out.NewLabel(len(r.out.Code))
			}
			if err := r.probe(id, in.Line); err != nil {
				return err
			}
		}
		for _, l := range at[i] {
			r.place(l)
		}

		var err error
		switch in.Kind() {
		case bytecode.KindGoto, bytecode.KindTerminal:
			if id, ok := r.plan.InsnProbe(i); ok {
				err = r.probe(id, in.Line)
			}
			r.emit(in.Clone())
		case bytecode.KindCondJump:
			if id, ok := r.plan.InsnProbe(i); ok {
				err = r.condJumpWithProbe(i, in, id)
			} else {
				r.emit(in.Clone())
			}
		case bytecode.KindSwitch:
			if r.plan.HasSwitchProbes(i) {
				err = r.switchWithProbes(i, in)
			} else {
				r.emit(in.Clone())
			}
		default:
			r.emit(in.Clone())
		}
		if err != nil {
			return err
		}
	}
	for _, l := range at[len(m.Code)] {
		r.place(l)
	}

	for _, tc := range m.TryCatches {
		if l, ok := probedStart[m.Labels[tc.Start]]; ok {
			tc.Start = l
		}
		r.out.TryCatches = append(r.out.TryCatches, tc)
	}
	return nil
}

func (r *rewriter) condJumpWithProbe(i int, in bytecode.Instruction, id int) error {
	inv, ok := in.Op.Inverted()
	if !ok {
		return fmt.Errorf("%w: %s: %s has no inverse", ErrMalformed, r.m.FullName(), in.Op)
	}
	frame, err := r.frameAfterPop(i, in.Op.JumpPopCount())
	if err != nil {
		return err
	}
	skip := r.out.NewLabel(-1)
	r.emit(bytecode.Instruction{Op: inv, Target: skip, Line: in.Line})
	if err := r.probe(id, in.Line); err != nil {
		return err
	}
	r.emit(bytecode.Instruction{Op: bytecode.OpGoto, Target: in.Target, Line: in.Line})
	r.place(skip)
	r.out.Frames[skip] = frame
	return nil
}

func (r *rewriter) switchWithProbes(i int, in bytecode.Instruction) error {
	frame, err := r.frameAfterPop(i, 1)
	if err != nil {
		return err
	}
	sw := in.Switch.Clone()
	inter := make(map[bytecode.LabelID]bytecode.LabelID)
	var order []bytecode.LabelID
	redirect := func(l bytecode.LabelID) bytecode.LabelID {
		c := r.g.Canonical(l)
		if _, ok := r.plan.SwitchProbe(i, c); !ok {
			return l
		}
		if x, ok := inter[c]; ok {
			return x
		}
		x := r.out.NewLabel(-1)
		inter[c] = x
		order = append(order, c)
		return x
	}
	sw.Default = redirect(sw.Default)
	for k := range sw.Targets {
		sw.Targets[k] = redirect(sw.Targets[k])
	}
	out := in.Clone()
	out.Switch = sw
	r.emit(out)

	for _, c := range order {
		x := inter[c]
		id, _ := r.plan.SwitchProbe(i, c)
		r.place(x)
		r.out.Frames[x] = frame.Clone()
		if err := r.probe(id, in.Line); err != nil {
			return err
		}
		r.emit(bytecode.Instruction{Op: bytecode.OpGoto, Target: c, Line: in.Line})
	}
	return nil
}
