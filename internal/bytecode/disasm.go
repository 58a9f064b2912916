package bytecode

import (
	"fmt"
	"sort"
	"strings"
)

// Disassemble renders a class in the format accepted by Assemble.
func Disassemble(c *Class) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "class %s\n", c.Name)
	if c.Source != "" {
		fmt.Fprintf(&sb, "source %s\n", c.Source)
	}
	for _, m := range c.Methods {
		sb.WriteString("\n")
		sb.WriteString(DisassembleMethod(m))
	}
	return sb.String()
}

// DisassembleMethod renders a single method block. Labels are named L<id>.
func DisassembleMethod(m *Method) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method %s %s\n", m.Name, m.Desc)
	fmt.Fprintf(&sb, "  locals %d\n", m.MaxLocals)

	at := make(map[int][]LabelID)
	for id, pos := range m.Labels {
		at[pos] = append(at[pos], LabelID(id))
	}

	line := 0
	for i, in := range m.Code {
		for _, l := range at[i] {
			fmt.Fprintf(&sb, "L%d:\n", l)
		}
		if in.Line != line {
			fmt.Fprintf(&sb, "  line %d\n", in.Line)
			line = in.Line
		}
		sb.WriteString("  ")
		sb.WriteString(FormatInstruction(in))
		sb.WriteString("\n")
	}
	for _, l := range at[len(m.Code)] {
		fmt.Fprintf(&sb, "L%d:\n", l)
	}

	for _, tc := range m.TryCatches {
		typ := tc.Type
		if typ == "" {
			typ = "*"
		}
		fmt.Fprintf(&sb, "  try L%d L%d L%d %s\n", tc.Start, tc.End, tc.Handler, typ)
	}

	ids := make([]int, 0, len(m.Frames))
	for l := range m.Frames {
		ids = append(ids, int(l))
	}
	sort.Ints(ids)
	for _, id := range ids {
		f := m.Frames[LabelID(id)]
		fmt.Fprintf(&sb, "  frame L%d locals=%s stack=%s\n", id, joinTypes(f.Locals), joinTypes(f.Stack))
	}
	sb.WriteString("end\n")
	return sb.String()
}

// FormatInstruction renders one instruction with its operands.
func FormatInstruction(in Instruction) string {
	info := GetOpcodeInfo(in.Op)
	switch info.Operand {
	case OperandInt, OperandLocal, OperandProbe:
		return fmt.Sprintf("%s %d", info.Name, in.Operand)
	case OperandIinc:
		return fmt.Sprintf("%s %d %d", info.Name, in.Operand, in.Operand2)
	case OperandLabel:
		return fmt.Sprintf("%s L%d", info.Name, in.Target)
	case OperandClass:
		return fmt.Sprintf("%s %s", info.Name, in.Ref)
	case OperandMethod:
		return fmt.Sprintf("%s %s %s", info.Name, in.Ref, in.Desc)
	case OperandTable:
		if in.Switch == nil {
			return info.Name
		}
		parts := []string{info.Name, fmt.Sprint(in.Switch.Low), fmt.Sprintf("L%d", in.Switch.Default)}
		for _, t := range in.Switch.Targets {
			parts = append(parts, fmt.Sprintf("L%d", t))
		}
		return strings.Join(parts, " ")
	case OperandLookup:
		if in.Switch == nil {
			return info.Name
		}
		parts := []string{info.Name, fmt.Sprintf("L%d", in.Switch.Default)}
		for i, t := range in.Switch.Targets {
			parts = append(parts, fmt.Sprintf("%d:L%d", in.Switch.Key(i), t))
		}
		return strings.Join(parts, " ")
	default:
		return info.Name
	}
}
