package bytecode

import (
	"fmt"
	"strings"
)

// Descriptor is a parsed method descriptor such as "(ILjava/lang/String;)I".
type Descriptor struct {
	Params []string // field descriptors of the parameters
	Return string   // field descriptor of the result, "V" for void
}

// ParseDescriptor parses a method descriptor. Only int-like, reference and
// array types are supported; long, float and double are rejected.
func ParseDescriptor(desc string) (*Descriptor, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, fmt.Errorf("invalid descriptor %q: missing '('", desc)
	}
	d := &Descriptor{}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		n, err := fieldLen(desc, i)
		if err != nil {
			return nil, err
		}
		d.Params = append(d.Params, desc[i:i+n])
		i += n
	}
	if i >= len(desc) {
		return nil, fmt.Errorf("invalid descriptor %q: missing ')'", desc)
	}
	i++
	if i < len(desc) && desc[i] == 'V' && i+1 == len(desc) {
		d.Return = "V"
		return d, nil
	}
	n, err := fieldLen(desc, i)
	if err != nil {
		return nil, err
	}
	if i+n != len(desc) {
		return nil, fmt.Errorf("invalid descriptor %q: trailing characters", desc)
	}
	d.Return = desc[i:]
	return d, nil
}

func fieldLen(desc string, i int) (int, error) {
	if i >= len(desc) {
		return 0, fmt.Errorf("invalid descriptor %q: unexpected end", desc)
	}
	switch desc[i] {
	case 'I', 'Z', 'B', 'C', 'S':
		return 1, nil
	case 'L':
		end := strings.IndexByte(desc[i:], ';')
		if end < 2 {
			return 0, fmt.Errorf("invalid descriptor %q: unterminated class type", desc)
		}
		return end + 1, nil
	case '[':
		n, err := fieldLen(desc, i+1)
		if err != nil {
			return 0, err
		}
		return n + 1, nil
	case 'J', 'F', 'D':
		return 0, fmt.Errorf("unsupported type %c in descriptor %q", desc[i], desc)
	default:
		return 0, fmt.Errorf("invalid descriptor %q: unknown type %q", desc, desc[i])
	}
}

// IsVoid reports whether the method returns nothing.
func (d *Descriptor) IsVoid() bool {
	return d.Return == "V"
}

// ParamTypes returns the verifier types of the parameters.
func (d *Descriptor) ParamTypes() []VType {
	out := make([]VType, len(d.Params))
	for i, p := range d.Params {
		out[i] = fieldVType(p)
	}
	return out
}

// ReturnType returns the verifier type of the result, Top for void.
func (d *Descriptor) ReturnType() VType {
	if d.IsVoid() {
		return Top
	}
	return fieldVType(d.Return)
}

func fieldVType(field string) VType {
	switch field[0] {
	case 'L', '[':
		return Reference
	default:
		return Integer
	}
}

// SourceTypeName converts a field descriptor into its source form,
// e.g. "I" -> "int", "[Ljava/lang/String;" -> "String[]".
func SourceTypeName(field string) string {
	dims := 0
	for dims < len(field) && field[dims] == '[' {
		dims++
	}
	var base string
	switch t := field[dims:]; t {
	case "I":
		base = "int"
	case "Z":
		base = "boolean"
	case "B":
		base = "byte"
	case "C":
		base = "char"
	case "S":
		base = "short"
	case "V":
		base = "void"
	default:
		name := strings.TrimSuffix(strings.TrimPrefix(t, "L"), ";")
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		base = strings.ReplaceAll(name, "$", ".")
	}
	return base + strings.Repeat("[]", dims)
}
