package coverage

import (
	"fmt"
	"sort"
	"sync"
)

// Builder collects analyzed classes and rolls them up into source files,
// packages and a bundle. AddClass is safe for concurrent use.
type Builder struct {
	mu      sync.Mutex
	classes map[string]*ClassCoverage
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{classes: make(map[string]*ClassCoverage)}
}

// AddClass adds a class. Classes without methods are ignored. Two
// different classes with the same name cannot be added.
func (b *Builder) AddClass(c *ClassCoverage) error {
	if len(c.Methods) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if dup, ok := b.classes[c.Name()]; ok && dup.ID != c.ID {
		return fmt.Errorf("cannot add different class with same name %s", c.Name())
	}
	b.classes[c.Name()] = c
	return nil
}

// Classes returns the collected classes ordered by name.
func (b *Builder) Classes() []*ClassCoverage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*ClassCoverage, 0, len(b.classes))
	for _, c := range b.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// NoMatchClasses returns the classes whose execution data had a
// different class id.
func (b *Builder) NoMatchClasses() []*ClassCoverage {
	var out []*ClassCoverage
	for _, c := range b.Classes() {
		if c.NoMatch {
			out = append(out, c)
		}
	}
	return out
}

// SourceFiles groups the classes by package and source file name.
func (b *Builder) SourceFiles() []*SourceFileCoverage {
	type key struct{ pkg, name string }
	files := make(map[key]*SourceFileCoverage)
	var keys []key
	for _, c := range b.Classes() {
		if c.SourceFile == "" {
			continue
		}
		k := key{c.PackageName(), c.SourceFile}
		s, ok := files[k]
		if !ok {
			s = NewSourceFileCoverage(c.SourceFile, c.PackageName())
			files[k] = s
			keys = append(keys, k)
		}
		s.AddClass(c)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pkg != keys[j].pkg {
			return keys[i].pkg < keys[j].pkg
		}
		return keys[i].name < keys[j].name
	})
	out := make([]*SourceFileCoverage, len(keys))
	for i, k := range keys {
		out[i] = files[k]
	}
	return out
}

// Bundle builds the coverage tree of everything added so far.
func (b *Builder) Bundle(name string) *Bundle {
	return NewBundle(name, b.Classes(), b.SourceFiles())
}
