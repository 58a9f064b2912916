// Package check verifies coverage trees against configured rules and
// reports one result per evaluated limit.
package check

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zjy-dev/probecov/internal/coverage"
	"github.com/zjy-dev/probecov/internal/logger"
)

var (
	// ErrInvalidRule is returned for rules that cannot be compiled.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrBusy is returned when rules change while a check is running.
	ErrBusy = errors.New("check in progress")
)

// Result is the outcome of one limit.
type Result int

const (
	OK Result = iota
	Violated
)

func (r Result) String() string {
	if r == Violated {
		return "VIOLATED"
	}
	return "OK"
}

// CheckResult reports one limit evaluated against one element.
type CheckResult struct {
	Element coverage.ElementType
	Name    string
	Limit   Limit
	Result  Result
	// Actual is the value rounded to the precision of the bound.
	Actual string

	message string
}

// Message is the human readable outcome, e.g. "Rule violated for BUNDLE
// all: instructions covered ratio is 0.42, but expected minimum is 0.80".
func (r CheckResult) Message() string {
	return r.message
}

// Output receives check results in traversal order.
type Output interface {
	OnResult(r CheckResult)
}

// OutputFunc adapts a function to Output.
type OutputFunc func(r CheckResult)

func (f OutputFunc) OnResult(r CheckResult) { f(r) }

type state int

const (
	stateIdle state = iota
	stateConfigured
	stateChecking
)

// RulesChecker holds a rule set and creates visitors checking coverage
// trees against it.
type RulesChecker struct {
	mu    sync.Mutex
	state state
	rules []*rule
	names LanguageNames
}

// NewRulesChecker creates a checker without rules using Java names.
func NewRulesChecker() *RulesChecker {
	return &RulesChecker{names: JavaNames{}}
}

// SetRules validates and installs a rule set.
func (c *RulesChecker) SetRules(rules []Rule) error {
	compiled := make([]*rule, 0, len(rules))
	for i, r := range rules {
		cr, err := compileRule(r)
		if err != nil {
			return fmt.Errorf("%w: rule %d: %v", ErrInvalidRule, i, err)
		}
		compiled = append(compiled, cr)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateChecking {
		return ErrBusy
	}
	c.rules = compiled
	c.state = stateConfigured
	return nil
}

// SetLanguageNames replaces the name translation.
func (c *RulesChecker) SetLanguageNames(names LanguageNames) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = names
}

// CreateVisitor returns a visitor reporting to out.
func (c *RulesChecker) CreateVisitor(out Output) *Visitor {
	return &Visitor{checker: c, out: out}
}

func (c *RulesChecker) begin() ([]*rule, LanguageNames, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateChecking {
		return nil, nil, ErrBusy
	}
	c.state = stateChecking
	return c.rules, c.names, nil
}

func (c *RulesChecker) end() {
	c.mu.Lock()
	c.state = stateIdle
	c.mu.Unlock()
}

// Visitor walks coverage trees: each bundle, then per package its
// classes with their methods, then its source files.
type Visitor struct {
	checker *RulesChecker
	out     Output

	rules      []*rule
	names      LanguageNames
	violations int
}

// Visit checks one bundle and returns the number of violations found.
func (v *Visitor) Visit(b *coverage.Bundle) (int, error) {
	return v.run(func() { v.bundle(b) })
}

// VisitGroup checks every bundle below g.
func (v *Visitor) VisitGroup(g *coverage.Group) (int, error) {
	return v.run(func() { v.group(g) })
}

func (v *Visitor) run(walk func()) (int, error) {
	rules, names, err := v.checker.begin()
	if err != nil {
		return 0, err
	}
	defer v.checker.end()
	v.rules, v.names, v.violations = rules, names, 0
	walk()
	if v.violations > 0 {
		logger.Warn("Coverage check found %d violation(s)", v.violations)
	}
	return v.violations, nil
}

func (v *Visitor) group(g *coverage.Group) {
	for _, child := range g.Children {
		switch c := child.(type) {
		case *coverage.Bundle:
			v.bundle(c)
		case *coverage.Group:
			v.group(c)
		}
	}
}

func (v *Visitor) bundle(b *coverage.Bundle) {
	v.checkRules(b, b.Name())
	for _, p := range b.Packages {
		v.checkRules(p, v.names.PackageName(p.Name()))
		for _, c := range p.Classes {
			v.checkRules(c, v.names.QualifiedClassName(c.Name()))
			for _, m := range c.Methods {
				v.checkRules(m, v.names.QualifiedMethodName(c.Name(), m.Name(), m.Desc))
			}
		}
		for _, s := range p.SourceFiles {
			v.checkRules(s, s.PackageName+"/"+s.Name())
		}
	}
}

func (v *Visitor) checkRules(node coverage.Element, name string) {
	for _, r := range v.rules {
		if r.element != node.ElementType() || !r.matches(name) {
			continue
		}
		for _, l := range r.limits {
			v.report(node, name, l)
		}
	}
}

func (v *Visitor) report(node coverage.Element, name string, l *limit) {
	o := l.check(node)
	res := CheckResult{
		Element: node.ElementType(),
		Name:    name,
		Limit:   l.config,
		Actual:  o.actual,
	}
	if o.violated {
		v.violations++
		res.Result = Violated
		res.message = fmt.Sprintf("Rule violated for %s %s: %s is %s, but expected %s is %s",
			res.Element, name, l.describe(), o.actual, o.bound, o.expected)
		logger.Debug("%s", res.message)
	} else {
		res.message = fmt.Sprintf("Rule satisfied for %s %s: %s is %s", res.Element, name, l.describe(), o.actual)
	}
	if v.out != nil {
		v.out.OnResult(res)
	}
}
