package bytecode

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for malformed assembler input.
var ErrSyntax = errors.New("syntax error")

// Assemble parses the textual class format:
//
//	class org/example/Calc
//	source Calc.java
//
//	method max (II)I
//	  locals 2
//	  line 3
//	  iload 0
//	  iload 1
//	  if_icmplt Lsmall
//	  iload 0
//	  ireturn
//	Lsmall:
//	  iload 1
//	  ireturn
//	  try Lstart Lend Lhandler java/lang/Exception
//	  frame Lsmall locals=I,I stack=-
//	end
//
// Comments start with ';' or '#'. Labels may be referenced before they are
// defined. A label may be placed after the last instruction to close a try
// range.
func Assemble(src string) (*Class, error) {
	p := &parser{class: &Class{}}
	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		p.line++
		if err := p.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	if p.method != nil {
		return nil, p.errorf("method %s not closed with 'end'", p.method.Name)
	}
	if p.class.Name == "" {
		return nil, fmt.Errorf("%w: missing class directive", ErrSyntax)
	}
	return p.class, nil
}

type parser struct {
	class   *Class
	method  *Method
	line    int
	srcLine int
	labels  map[string]LabelID
	defined map[string]bool
	refs    map[string]int // first referencing line
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrSyntax, p.line, fmt.Sprintf(format, args...))
}

func stripComment(s string) string {
	if i := strings.IndexAny(s, ";#"); i >= 0 {
		return s[:i]
	}
	return s
}

func (p *parser) parseLine(raw string) error {
	fields := strings.Fields(stripComment(raw))
	if len(fields) == 0 {
		return nil
	}
	if p.method == nil {
		return p.parseClassLevel(fields)
	}

	if len(fields) == 1 && strings.HasSuffix(fields[0], ":") {
		return p.defineLabel(strings.TrimSuffix(fields[0], ":"))
	}

	switch fields[0] {
	case "end":
		return p.endMethod()
	case "locals":
		if len(fields) != 2 {
			return p.errorf("usage: locals <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return p.errorf("invalid locals count %q", fields[1])
		}
		p.method.MaxLocals = n
		return nil
	case "line":
		if len(fields) != 2 {
			return p.errorf("usage: line <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return p.errorf("invalid line number %q", fields[1])
		}
		p.srcLine = n
		return nil
	case "try":
		return p.parseTry(fields[1:])
	case "frame":
		return p.parseFrame(fields[1:])
	}
	return p.parseInstruction(fields)
}

func (p *parser) parseClassLevel(fields []string) error {
	switch fields[0] {
	case "class":
		if len(fields) != 2 {
			return p.errorf("usage: class <name>")
		}
		if p.class.Name != "" {
			return p.errorf("duplicate class directive")
		}
		p.class.Name = fields[1]
	case "source":
		if len(fields) != 2 {
			return p.errorf("usage: source <file>")
		}
		p.class.Source = fields[1]
	case "method":
		if len(fields) != 3 {
			return p.errorf("usage: method <name> <descriptor>")
		}
		if p.class.Name == "" {
			return p.errorf("method before class directive")
		}
		d, err := ParseDescriptor(fields[2])
		if err != nil {
			return p.errorf("%v", err)
		}
		if _, err := p.class.Method(fields[1], fields[2]); err == nil {
			return p.errorf("duplicate method %s%s", fields[1], fields[2])
		}
		p.method = &Method{Name: fields[1], Desc: fields[2], MaxLocals: len(d.Params)}
		p.labels = make(map[string]LabelID)
		p.defined = make(map[string]bool)
		p.refs = make(map[string]int)
		p.srcLine = 0
	default:
		return p.errorf("unexpected %q outside method", fields[0])
	}
	return nil
}

func (p *parser) label(name string) LabelID {
	if id, ok := p.labels[name]; ok {
		return id
	}
	id := p.method.NewLabel(-1)
	p.labels[name] = id
	p.refs[name] = p.line
	return id
}

func (p *parser) defineLabel(name string) error {
	if name == "" {
		return p.errorf("empty label name")
	}
	if p.defined[name] {
		return p.errorf("label %s defined twice", name)
	}
	id := p.label(name)
	p.method.Labels[id] = len(p.method.Code)
	p.defined[name] = true
	return nil
}

func (p *parser) endMethod() error {
	for name, ln := range p.refs {
		if !p.defined[name] {
			return fmt.Errorf("%w: line %d: undefined label %s", ErrSyntax, ln, name)
		}
	}
	if len(p.method.Code) == 0 {
		return p.errorf("method %s has no instructions", p.method.Name)
	}
	p.class.Methods = append(p.class.Methods, p.method)
	p.method = nil
	return nil
}

func (p *parser) parseTry(args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return p.errorf("usage: try <start> <end> <handler> [type]")
	}
	tc := TryCatch{Start: p.label(args[0]), End: p.label(args[1]), Handler: p.label(args[2])}
	if len(args) == 4 && args[3] != "*" {
		tc.Type = args[3]
	}
	p.method.TryCatches = append(p.method.TryCatches, tc)
	return nil
}

func (p *parser) parseFrame(args []string) error {
	if len(args) < 1 {
		return p.errorf("usage: frame <label> [locals=T,I,...] [stack=...]")
	}
	var f Frame
	f.Stack = []VType{}
	for _, kv := range args[1:] {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			return p.errorf("invalid frame component %q", kv)
		}
		types, err := parseTypeList(val)
		if err != nil {
			return p.errorf("%v", err)
		}
		switch key {
		case "locals":
			f.Locals = types
		case "stack":
			f.Stack = types
		default:
			return p.errorf("unknown frame component %q", key)
		}
	}
	if p.method.Frames == nil {
		p.method.Frames = make(map[LabelID]Frame)
	}
	p.method.Frames[p.label(args[0])] = f
	return nil
}

func parseTypeList(s string) ([]VType, error) {
	if s == "-" || s == "" {
		return []VType{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]VType, len(parts))
	for i, part := range parts {
		t, err := ParseVType(part)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (p *parser) parseInt(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, p.errorf("invalid integer %q", s)
	}
	if n < lo || n > hi {
		return 0, p.errorf("value %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func (p *parser) parseInstruction(fields []string) error {
	op, ok := LookupOpcode(fields[0])
	if !ok {
		return p.errorf("unknown instruction %q", fields[0])
	}
	info := GetOpcodeInfo(op)
	args := fields[1:]
	insn := Instruction{Op: op, Target: NoLabel, Line: p.srcLine}

	want := map[OperandForm]int{
		OperandNone: 0, OperandInt: 1, OperandLocal: 1, OperandIinc: 2,
		OperandLabel: 1, OperandClass: 1, OperandMethod: 2, OperandProbe: 1,
	}
	if n, fixed := want[info.Operand]; fixed && len(args) != n {
		return p.errorf("%s expects %d operand(s), got %d", info.Name, n, len(args))
	}

	var err error
	switch info.Operand {
	case OperandInt:
		lo, hi := -128, 127
		if op == OpSipush {
			lo, hi = -32768, 32767
		}
		insn.Operand, err = p.parseInt(args[0], lo, hi)
	case OperandLocal:
		insn.Operand, err = p.parseInt(args[0], 0, 65535)
	case OperandIinc:
		if insn.Operand, err = p.parseInt(args[0], 0, 65535); err == nil {
			insn.Operand2, err = p.parseInt(args[1], -32768, 32767)
		}
	case OperandProbe:
		insn.Operand, err = p.parseInt(args[0], 0, 1<<31-1)
	case OperandLabel:
		insn.Target = p.label(args[0])
	case OperandClass:
		insn.Ref = args[0]
	case OperandMethod:
		if _, derr := ParseDescriptor(args[1]); derr != nil {
			return p.errorf("%v", derr)
		}
		insn.Ref, insn.Desc = args[0], args[1]
	case OperandTable:
		insn.Switch, err = p.parseTable(args)
	case OperandLookup:
		insn.Switch, err = p.parseLookup(args)
	}
	if err != nil {
		return err
	}
	p.method.Code = append(p.method.Code, insn)
	return nil
}

// tableswitch <low> <default> <target>...
func (p *parser) parseTable(args []string) (*SwitchTable, error) {
	if len(args) < 3 {
		return nil, p.errorf("usage: tableswitch <low> <default> <target>...")
	}
	low, err := p.parseInt(args[0], -1<<31, 1<<31-1)
	if err != nil {
		return nil, err
	}
	sw := &SwitchTable{Default: p.label(args[1]), Low: int32(low)}
	for _, a := range args[2:] {
		sw.Targets = append(sw.Targets, p.label(a))
	}
	return sw, nil
}

// lookupswitch <default> <key>:<target>...
func (p *parser) parseLookup(args []string) (*SwitchTable, error) {
	if len(args) < 1 {
		return nil, p.errorf("usage: lookupswitch <default> <key>:<target>...")
	}
	sw := &SwitchTable{Default: p.label(args[0]), Keys: []int32{}}
	for i, a := range args[1:] {
		k, l, ok := strings.Cut(a, ":")
		if !ok {
			return nil, p.errorf("invalid lookupswitch case %q", a)
		}
		key, err := p.parseInt(k, -1<<31, 1<<31-1)
		if err != nil {
			return nil, err
		}
		if i > 0 && int32(key) <= sw.Keys[i-1] {
			return nil, p.errorf("lookupswitch keys must be strictly ascending")
		}
		sw.Keys = append(sw.Keys, int32(key))
		sw.Targets = append(sw.Targets, p.label(l))
	}
	return sw, nil
}
