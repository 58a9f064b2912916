package bytecode

import "fmt"

// Opcode is a single instruction opcode. Values follow the JVM numbering for
// the supported subset so disassembly lines up with javap output.
type Opcode byte

const (
	// ========================================================================
	// Constants
	// ========================================================================

	OpNop        Opcode = 0x00
	OpAconstNull Opcode = 0x01
	OpIconstM1   Opcode = 0x02
	OpIconst0    Opcode = 0x03
	OpIconst1    Opcode = 0x04
	OpIconst2    Opcode = 0x05
	OpIconst3    Opcode = 0x06
	OpIconst4    Opcode = 0x07
	OpIconst5    Opcode = 0x08
	OpBipush     Opcode = 0x10 // bipush <value:i8>
	OpSipush     Opcode = 0x11 // sipush <value:i16>

	// ========================================================================
	// Locals
	// ========================================================================

	OpIload  Opcode = 0x15 // iload <slot>
	OpAload  Opcode = 0x19 // aload <slot>
	OpIstore Opcode = 0x36 // istore <slot>
	OpAstore Opcode = 0x3A // astore <slot>

	// ========================================================================
	// Stack manipulation
	// ========================================================================

	OpPop  Opcode = 0x57
	OpDup  Opcode = 0x59
	OpSwap Opcode = 0x5F

	// ========================================================================
	// Integer arithmetic
	// ========================================================================

	OpIadd Opcode = 0x60
	OpIsub Opcode = 0x64
	OpImul Opcode = 0x68
	OpIdiv Opcode = 0x6C
	OpIrem Opcode = 0x70
	OpIneg Opcode = 0x74
	OpIinc Opcode = 0x84 // iinc <slot> <delta>

	// ========================================================================
	// Control flow
	// ========================================================================

	OpIfeq      Opcode = 0x99
	OpIfne      Opcode = 0x9A
	OpIflt      Opcode = 0x9B
	OpIfge      Opcode = 0x9C
	OpIfgt      Opcode = 0x9D
	OpIfle      Opcode = 0x9E
	OpIfIcmpeq  Opcode = 0x9F
	OpIfIcmpne  Opcode = 0xA0
	OpIfIcmplt  Opcode = 0xA1
	OpIfIcmpge  Opcode = 0xA2
	OpIfIcmpgt  Opcode = 0xA3
	OpIfIcmple  Opcode = 0xA4
	OpIfAcmpeq  Opcode = 0xA5
	OpIfAcmpne  Opcode = 0xA6
	OpGoto      Opcode = 0xA7
	OpTableSw   Opcode = 0xAA // tableswitch <low> <default> <targets...>
	OpLookupSw  Opcode = 0xAB // lookupswitch <default> <key:target...>
	OpIfnull    Opcode = 0xC6
	OpIfnonnull Opcode = 0xC7

	// ========================================================================
	// Method exits
	// ========================================================================

	OpIreturn Opcode = 0xAC
	OpAreturn Opcode = 0xB0
	OpReturn  Opcode = 0xB1
	OpAthrow  Opcode = 0xBF

	// ========================================================================
	// Objects and calls
	// ========================================================================

	OpInvokestatic Opcode = 0xB8 // invokestatic <name> <descriptor>
	OpNew          Opcode = 0xBB // new <class>

	// ========================================================================
	// Instrumentation
	// ========================================================================

	// OpProbe records probe <id> as executed. It occupies the slot the JVM
	// reserves for implementation use (impdep1) and never touches the
	// operand stack or the locals.
	OpProbe Opcode = 0xFE
)

// Kind classifies an instruction by the way it transfers control.
type Kind int

const (
	KindPlain    Kind = iota // falls through to the next instruction
	KindGoto                 // unconditional jump
	KindCondJump             // conditional jump, falls through when not taken
	KindSwitch               // multi-way branch, never falls through
	KindTerminal             // return or throw
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindGoto:
		return "goto"
	case KindCondJump:
		return "conditional"
	case KindSwitch:
		return "switch"
	case KindTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// OperandForm describes how an instruction's operands are written.
type OperandForm int

const (
	OperandNone   OperandForm = iota
	OperandInt                // immediate integer
	OperandLocal              // local variable slot
	OperandIinc               // slot and delta
	OperandLabel              // branch target
	OperandTable              // tableswitch
	OperandLookup             // lookupswitch
	OperandClass              // internal class name
	OperandMethod             // method name and descriptor
	OperandProbe              // probe id
)

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name      string      // Assembler mnemonic
	Kind      Kind        // Control transfer classification
	Operand   OperandForm // Operand layout
	StackPop  int         // Values popped (-1 = descriptor dependent)
	StackPush int         // Values pushed (-1 = descriptor dependent)
}

var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Constants
	OpNop:        {"nop", KindPlain, OperandNone, 0, 0},
	OpAconstNull: {"aconst_null", KindPlain, OperandNone, 0, 1},
	OpIconstM1:   {"iconst_m1", KindPlain, OperandNone, 0, 1},
	OpIconst0:    {"iconst_0", KindPlain, OperandNone, 0, 1},
	OpIconst1:    {"iconst_1", KindPlain, OperandNone, 0, 1},
	OpIconst2:    {"iconst_2", KindPlain, OperandNone, 0, 1},
	OpIconst3:    {"iconst_3", KindPlain, OperandNone, 0, 1},
	OpIconst4:    {"iconst_4", KindPlain, OperandNone, 0, 1},
	OpIconst5:    {"iconst_5", KindPlain, OperandNone, 0, 1},
	OpBipush:     {"bipush", KindPlain, OperandInt, 0, 1},
	OpSipush:     {"sipush", KindPlain, OperandInt, 0, 1},

	// Locals
	OpIload:  {"iload", KindPlain, OperandLocal, 0, 1},
	OpAload:  {"aload", KindPlain, OperandLocal, 0, 1},
	OpIstore: {"istore", KindPlain, OperandLocal, 1, 0},
	OpAstore: {"astore", KindPlain, OperandLocal, 1, 0},

	// Stack
	OpPop:  {"pop", KindPlain, OperandNone, 1, 0},
	OpDup:  {"dup", KindPlain, OperandNone, 1, 2},
	OpSwap: {"swap", KindPlain, OperandNone, 2, 2},

	// Arithmetic
	OpIadd: {"iadd", KindPlain, OperandNone, 2, 1},
	OpIsub: {"isub", KindPlain, OperandNone, 2, 1},
	OpImul: {"imul", KindPlain, OperandNone, 2, 1},
	OpIdiv: {"idiv", KindPlain, OperandNone, 2, 1},
	OpIrem: {"irem", KindPlain, OperandNone, 2, 1},
	OpIneg: {"ineg", KindPlain, OperandNone, 1, 1},
	OpIinc: {"iinc", KindPlain, OperandIinc, 0, 0},

	// Control flow
	OpIfeq:      {"ifeq", KindCondJump, OperandLabel, 1, 0},
	OpIfne:      {"ifne", KindCondJump, OperandLabel, 1, 0},
	OpIflt:      {"iflt", KindCondJump, OperandLabel, 1, 0},
	OpIfge:      {"ifge", KindCondJump, OperandLabel, 1, 0},
	OpIfgt:      {"ifgt", KindCondJump, OperandLabel, 1, 0},
	OpIfle:      {"ifle", KindCondJump, OperandLabel, 1, 0},
	OpIfIcmpeq:  {"if_icmpeq", KindCondJump, OperandLabel, 2, 0},
	OpIfIcmpne:  {"if_icmpne", KindCondJump, OperandLabel, 2, 0},
	OpIfIcmplt:  {"if_icmplt", KindCondJump, OperandLabel, 2, 0},
	OpIfIcmpge:  {"if_icmpge", KindCondJump, OperandLabel, 2, 0},
	OpIfIcmpgt:  {"if_icmpgt", KindCondJump, OperandLabel, 2, 0},
	OpIfIcmple:  {"if_icmple", KindCondJump, OperandLabel, 2, 0},
	OpIfAcmpeq:  {"if_acmpeq", KindCondJump, OperandLabel, 2, 0},
	OpIfAcmpne:  {"if_acmpne", KindCondJump, OperandLabel, 2, 0},
	OpIfnull:    {"ifnull", KindCondJump, OperandLabel, 1, 0},
	OpIfnonnull: {"ifnonnull", KindCondJump, OperandLabel, 1, 0},
	OpGoto:      {"goto", KindGoto, OperandLabel, 0, 0},
	OpTableSw:   {"tableswitch", KindSwitch, OperandTable, 1, 0},
	OpLookupSw:  {"lookupswitch", KindSwitch, OperandLookup, 1, 0},

	// Exits
	OpIreturn: {"ireturn", KindTerminal, OperandNone, 1, 0},
	OpAreturn: {"areturn", KindTerminal, OperandNone, 1, 0},
	OpReturn:  {"return", KindTerminal, OperandNone, 0, 0},
	OpAthrow:  {"athrow", KindTerminal, OperandNone, 1, 0},

	// Objects and calls
	OpInvokestatic: {"invokestatic", KindPlain, OperandMethod, -1, -1},
	OpNew:          {"new", KindPlain, OperandClass, 0, 1},

	// Instrumentation
	OpProbe: {"probe", KindPlain, OperandProbe, 0, 0},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeInfoTable))
	for op, info := range opcodeInfoTable {
		m[info.Name] = op
	}
	return m
}()

// GetOpcodeInfo returns metadata for an opcode.
// Unknown opcodes get the name "UNKNOWN(0xNN)" and a zero stack effect.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupOpcode resolves an assembler mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

// String returns the assembler mnemonic.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// Valid reports whether the opcode belongs to the supported set.
func (op Opcode) Valid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// Kind returns the control transfer classification of the opcode.
func (op Opcode) Kind() Kind {
	return GetOpcodeInfo(op).Kind
}

// IsJump returns true for goto and conditional jumps.
func (op Opcode) IsJump() bool {
	k := op.Kind()
	return k == KindGoto || k == KindCondJump
}

// IsReturn returns true if this opcode terminates the method.
func (op Opcode) IsReturn() bool {
	return op.Kind() == KindTerminal
}

// JumpPopCount is the number of operands a jump consumes before transferring
// control.
func (op Opcode) JumpPopCount() int {
	switch op {
	case OpGoto:
		return 0
	case OpIfeq, OpIfne, OpIflt, OpIfge, OpIfgt, OpIfle, OpIfnull, OpIfnonnull:
		return 1
	default:
		return 2
	}
}

var invertedJumps = map[Opcode]Opcode{
	OpIfeq:      OpIfne,
	OpIfne:      OpIfeq,
	OpIflt:      OpIfge,
	OpIfge:      OpIflt,
	OpIfgt:      OpIfle,
	OpIfle:      OpIfgt,
	OpIfIcmpeq:  OpIfIcmpne,
	OpIfIcmpne:  OpIfIcmpeq,
	OpIfIcmplt:  OpIfIcmpge,
	OpIfIcmpge:  OpIfIcmplt,
	OpIfIcmpgt:  OpIfIcmple,
	OpIfIcmple:  OpIfIcmpgt,
	OpIfAcmpeq:  OpIfAcmpne,
	OpIfAcmpne:  OpIfAcmpeq,
	OpIfnull:    OpIfnonnull,
	OpIfnonnull: OpIfnull,
}

// Inverted returns the conditional jump with the opposite condition.
func (op Opcode) Inverted() (Opcode, bool) {
	inv, ok := invertedJumps[op]
	return inv, ok
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
