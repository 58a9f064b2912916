package coverage

import (
	"sort"
	"strings"
)

// MethodCoverage is the coverage of one method.
type MethodCoverage struct {
	SourceNode
	Desc string
}

// NewMethodCoverage creates empty coverage for a method.
func NewMethodCoverage(name, desc string) *MethodCoverage {
	return &MethodCoverage{SourceNode: newSourceNode(ElementMethod, name), Desc: desc}
}

// Increment adds one instruction's counters. Each instruction with more
// than one branch adds its decision points to the complexity counter.
func (m *MethodCoverage) Increment(instructions, branches Counter, line int, probes ...int) {
	m.SourceNode.Increment(instructions, branches, line, probes...)
	if branches.Total() > 1 {
		c := max(0, branches.Covered-1)
		mi := max(0, branches.Total()-c-1)
		m.add(EntityComplexity, Counter{Missed: mi, Covered: c})
	}
}

// IncrementMethodCounter finishes the method: it counts the method itself
// and its base complexity of one, covered if any instruction was.
func (m *MethodCoverage) IncrementMethodCounter() {
	base := Counter{Missed: 1}
	if m.counters[EntityInstruction].Covered > 0 {
		base = Counter{Covered: 1}
	}
	m.add(EntityMethod, base)
	m.add(EntityComplexity, base)
}

// ClassCoverage is the coverage of one class and its methods.
type ClassCoverage struct {
	SourceNode
	ID         uint64
	SourceFile string
	Methods    []*MethodCoverage

	// NoMatch is set when execution data exists for the class name but
	// for a different class id.
	NoMatch bool
}

// NewClassCoverage creates empty coverage for a class.
func NewClassCoverage(name string, id uint64, sourceFile string) *ClassCoverage {
	return &ClassCoverage{
		SourceNode: newSourceNode(ElementClass, name),
		ID:         id,
		SourceFile: sourceFile,
	}
}

// PackageName returns the internal package name, "" for the default package.
func (c *ClassCoverage) PackageName() string {
	if i := strings.LastIndexByte(c.name, '/'); i >= 0 {
		return c.name[:i]
	}
	return ""
}

// AddMethod adds a method. Methods without code are ignored. A class is
// covered as soon as one of its methods is.
func (c *ClassCoverage) AddMethod(m *MethodCoverage) {
	if !m.ContainsCode() {
		return
	}
	c.Methods = append(c.Methods, m)
	c.incrementSource(&m.SourceNode)
	if c.counters[EntityMethod].Covered > 0 {
		c.counters[EntityClass] = Counter{Covered: 1}
	} else {
		c.counters[EntityClass] = Counter{Missed: 1}
	}
}

// SourceFileCoverage aggregates the classes compiled from one source file.
type SourceFileCoverage struct {
	SourceNode
	PackageName string
	Classes     []*ClassCoverage
}

// NewSourceFileCoverage creates empty coverage for a source file.
func NewSourceFileCoverage(name, packageName string) *SourceFileCoverage {
	return &SourceFileCoverage{SourceNode: newSourceNode(ElementSourceFile, name), PackageName: packageName}
}

// AddClass merges a class into the source file.
func (s *SourceFileCoverage) AddClass(c *ClassCoverage) {
	s.Classes = append(s.Classes, c)
	s.incrementSource(&c.SourceNode)
}

// PackageCoverage is the coverage of one package.
type PackageCoverage struct {
	Node
	Classes     []*ClassCoverage
	SourceFiles []*SourceFileCoverage
}

// NewPackageCoverage sums the source files of a package plus the classes
// that have no source file. Line counters come from the source files so
// that lines shared by several classes count once.
func NewPackageCoverage(name string, classes []*ClassCoverage, sourceFiles []*SourceFileCoverage) *PackageCoverage {
	p := &PackageCoverage{Node: newNode(ElementPackage, name), Classes: classes, SourceFiles: sourceFiles}
	for _, s := range sourceFiles {
		p.increment(&s.Node)
	}
	for _, c := range classes {
		if c.SourceFile == "" {
			p.increment(&c.Node)
		}
	}
	return p
}

// Bundle is the root of a coverage tree.
type Bundle struct {
	Node
	Packages []*PackageCoverage
}

// NewBundle groups classes and source files by package.
func NewBundle(name string, classes []*ClassCoverage, sourceFiles []*SourceFileCoverage) *Bundle {
	classesByPkg := make(map[string][]*ClassCoverage)
	sourcesByPkg := make(map[string][]*SourceFileCoverage)
	pkgs := make(map[string]bool)
	for _, c := range classes {
		classesByPkg[c.PackageName()] = append(classesByPkg[c.PackageName()], c)
		pkgs[c.PackageName()] = true
	}
	for _, s := range sourceFiles {
		sourcesByPkg[s.PackageName] = append(sourcesByPkg[s.PackageName], s)
		pkgs[s.PackageName] = true
	}
	names := make([]string, 0, len(pkgs))
	for p := range pkgs {
		names = append(names, p)
	}
	sort.Strings(names)

	b := &Bundle{Node: newNode(ElementBundle, name)}
	for _, n := range names {
		p := NewPackageCoverage(n, classesByPkg[n], sourcesByPkg[n])
		b.Packages = append(b.Packages, p)
		b.increment(&p.Node)
	}
	return b
}
