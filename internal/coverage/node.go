package coverage

import "fmt"

// ElementType is the kind of a coverage node.
type ElementType int

const (
	ElementGroup ElementType = iota
	ElementBundle
	ElementPackage
	ElementSourceFile
	ElementClass
	ElementMethod
)

var elementNames = [...]string{"GROUP", "BUNDLE", "PACKAGE", "SOURCEFILE", "CLASS", "METHOD"}

func (t ElementType) String() string {
	if t < 0 || int(t) >= len(elementNames) {
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
	return elementNames[t]
}

// ParseElementType parses an element name such as "PACKAGE".
func ParseElementType(s string) (ElementType, error) {
	for i, n := range elementNames {
		if n == s {
			return ElementType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

// Node carries the counters shared by every element of the tree.
type Node struct {
	elementType ElementType
	name        string
	counters    [len(entityNames)]Counter
}

func newNode(t ElementType, name string) Node {
	return Node{elementType: t, name: name}
}

// ElementType returns the kind of the node.
func (n *Node) ElementType() ElementType { return n.elementType }

// Name returns the internal name of the node.
func (n *Node) Name() string { return n.name }

// Counter returns the counter for an entity.
func (n *Node) Counter(e CounterEntity) Counter {
	return n.counters[e]
}

// ContainsCode reports whether the node has any instruction.
func (n *Node) ContainsCode() bool {
	return n.counters[EntityInstruction].Total() > 0
}

// increment adds every counter of child.
func (n *Node) increment(child *Node) {
	for i := range n.counters {
		n.counters[i] = n.counters[i].Add(child.counters[i])
	}
}

func (n *Node) add(e CounterEntity, c Counter) {
	n.counters[e] = n.counters[e].Add(c)
}

// Element is implemented by every node of the coverage tree.
type Element interface {
	ElementType() ElementType
	Name() string
	Counter(e CounterEntity) Counter
	ContainsCode() bool
}

// Group is an arbitrary collection of bundles or other groups.
type Group struct {
	Node
	Children []Element
}

// NewGroup sums the counters of its children.
func NewGroup(name string, children ...Element) *Group {
	g := &Group{Node: newNode(ElementGroup, name), Children: children}
	for _, c := range children {
		for _, e := range Entities {
			g.add(e, c.Counter(e))
		}
	}
	return g
}
