package instrument

import (
	"fmt"

	"github.com/zjy-dev/probecov/internal/bytecode"
	"github.com/zjy-dev/probecov/internal/flow"
	"github.com/zjy-dev/probecov/internal/logger"
)

// MethodError records a method that could not be instrumented. The method
// is kept unchanged in the instrumented class.
type MethodError struct {
	Method string
	Err    error
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("method %s: %v", e.Method, e.Err)
}

func (e *MethodError) Unwrap() error {
	return e.Err
}

// MethodInfo describes the instrumentation of one method. Graph and Plan
// are nil when the method failed.
type MethodInfo struct {
	Name         string
	Desc         string
	Graph        *flow.Graph
	Plan         *flow.Plan
	Base         int
	Instrumented *bytecode.Method
}

// ProbeCount returns the number of probes of the method.
func (mi *MethodInfo) ProbeCount() int {
	if mi.Plan == nil {
		return 0
	}
	return mi.Plan.Count
}

// Result is the outcome of instrumenting one class.
type Result struct {
	Original   *bytecode.Class
	Class      *bytecode.Class
	ClassID    uint64
	ProbeCount int
	Methods    []MethodInfo
	Errors     []*MethodError
}

// Method returns the info of the named method. An empty desc matches any
// descriptor.
func (r *Result) Method(name, desc string) (*MethodInfo, bool) {
	for i := range r.Methods {
		mi := &r.Methods[i]
		if mi.Name == name && (desc == "" || mi.Desc == desc) {
			return mi, true
		}
	}
	return nil, false
}

// Options configures an Instrumenter.
type Options struct {
	// MaxProbes bounds the probes of one class; 0 means flow.DefaultMaxProbes.
	MaxProbes int
}

// Instrumenter inserts probes into every method of a class. Probe ids are
// unique per class: each method gets a base offset equal to the number of
// probes of the methods before it.
type Instrumenter struct {
	opts Options
}

// New creates an Instrumenter.
func New(opts Options) *Instrumenter {
	return &Instrumenter{opts: opts}
}

// Instrument returns the instrumented copy of c. The class id is computed
// from the original class so that records written by the instrumented code
// can be matched with it later.
func (in *Instrumenter) Instrument(c *bytecode.Class) (*Result, error) {
	id, err := bytecode.ClassID(c)
	if err != nil {
		return nil, fmt.Errorf("failed to hash class %s: %w", c.Name, err)
	}

	limit := in.opts.MaxProbes
	if limit <= 0 {
		limit = flow.DefaultMaxProbes
	}

	res := &Result{
		Original: c,
		Class:    &bytecode.Class{Name: c.Name, Source: c.Source},
		ClassID:  id,
	}
	base := 0
	for _, m := range c.Methods {
		mi, err := instrumentMethod(m, base, limit)
		if err != nil {
			merr := &MethodError{Method: m.FullName(), Err: err}
			res.Errors = append(res.Errors, merr)
			logger.Warn("Skipping %s.%s: %v", c.Name, m.FullName(), err)
			mi = MethodInfo{Name: m.Name, Desc: m.Desc, Base: base, Instrumented: m.Clone()}
		}
		base += mi.ProbeCount()
		res.Methods = append(res.Methods, mi)
		res.Class.Methods = append(res.Class.Methods, mi.Instrumented)
	}
	res.ProbeCount = base

	logger.Debug("Instrumented %s: %d methods, %d probes, %d failed",
		c.Name, len(c.Methods), res.ProbeCount, len(res.Errors))
	return res, nil
}

func instrumentMethod(m *bytecode.Method, base, limit int) (MethodInfo, error) {
	if base >= limit {
		return MethodInfo{}, fmt.Errorf("%w: class probe limit %d reached", flow.ErrMalformed, limit)
	}
	opts := flow.Options{MaxProbes: limit - base}
	g, err := flow.BuildGraph(m, opts)
	if err != nil {
		return MethodInfo{}, err
	}
	plan, err := flow.Place(g, opts)
	if err != nil {
		return MethodInfo{}, err
	}
	out, err := flow.Instrument(m, g, plan, base)
	if err != nil {
		return MethodInfo{}, err
	}
	return MethodInfo{
		Name:         m.Name,
		Desc:         m.Desc,
		Graph:        g,
		Plan:         plan,
		Base:         base,
		Instrumented: out,
	}, nil
}
