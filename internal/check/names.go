package check

import (
	"strings"

	"github.com/zjy-dev/probecov/internal/bytecode"
)

// LanguageNames turns internal names into the names printed in check
// results and matched by rule includes and excludes.
type LanguageNames interface {
	PackageName(vmname string) string
	QualifiedClassName(vmname string) string
	QualifiedMethodName(vmclass, vmmethod, desc string) string
}

// JavaNames renders names the way Java source code spells them.
type JavaNames struct{}

var _ LanguageNames = JavaNames{}

func (JavaNames) PackageName(vmname string) string {
	if vmname == "" {
		return "default"
	}
	return strings.ReplaceAll(vmname, "/", ".")
}

func (JavaNames) QualifiedClassName(vmname string) string {
	return strings.NewReplacer("/", ".", "$", ".").Replace(vmname)
}

// QualifiedMethodName returns e.g. "a.b.C.f(int, java.lang.String)".
// Constructors take the simple class name, static initializers print as
// "static {...}".
func (n JavaNames) QualifiedMethodName(vmclass, vmmethod, desc string) string {
	cls := n.QualifiedClassName(vmclass)
	switch vmmethod {
	case "<clinit>":
		return cls + ".static {...}"
	case "<init>":
		simple := cls
		if i := strings.LastIndexByte(cls, '.'); i >= 0 {
			simple = cls[i+1:]
		}
		vmmethod = simple
	}
	d, err := bytecode.ParseDescriptor(desc)
	if err != nil {
		return cls + "." + vmmethod + desc
	}
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = qualifiedTypeName(p)
	}
	return cls + "." + vmmethod + "(" + strings.Join(params, ", ") + ")"
}

func qualifiedTypeName(field string) string {
	dims := strings.LastIndexByte(field, '[') + 1
	if field[dims] != 'L' {
		return bytecode.SourceTypeName(field)
	}
	name := strings.TrimSuffix(field[dims+1:], ";")
	return strings.NewReplacer("/", ".", "$", ".").Replace(name) + strings.Repeat("[]", dims)
}
