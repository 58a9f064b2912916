package check

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"

	"github.com/zjy-dev/probecov/internal/coverage"
)

// Limit bounds one counter value of a node. Minimum and maximum are
// decimal strings such as "0.80" or "80%"; the number of decimal places
// of a bound is the precision the actual value is shown with.
type Limit struct {
	Counter string `mapstructure:"counter" json:"counter,omitempty" yaml:"counter,omitempty"`
	Value   string `mapstructure:"value" json:"value,omitempty" yaml:"value,omitempty"`
	Minimum string `mapstructure:"minimum" json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum string `mapstructure:"maximum" json:"maximum,omitempty" yaml:"maximum,omitempty"`
}

var entityDisplayNames = map[coverage.CounterEntity]string{
	coverage.EntityInstruction: "instructions",
	coverage.EntityBranch:      "branches",
	coverage.EntityComplexity:  "complexity",
	coverage.EntityLine:        "lines",
	coverage.EntityMethod:      "methods",
	coverage.EntityClass:       "classes",
}

var valueDisplayNames = map[coverage.CounterValue]string{
	coverage.TotalCount:   "total count",
	coverage.MissedCount:  "missed count",
	coverage.CoveredCount: "covered count",
	coverage.MissedRatio:  "missed ratio",
	coverage.CoveredRatio: "covered ratio",
}

// decimal arithmetic: quotients are truncated, products keep enough digits
// to stay exact for any realistic bound
var (
	quoContext = func() *apd.Context {
		c := apd.BaseContext.WithPrecision(34)
		c.Rounding = apd.RoundDown
		return c
	}()
	exactContext = apd.BaseContext.WithPrecision(60)
)

type limit struct {
	config   Limit
	entity   coverage.CounterEntity
	value    coverage.CounterValue
	min, max *apd.Decimal
}

func compileLimit(l Limit) (*limit, error) {
	c := &limit{config: l, entity: coverage.EntityInstruction, value: coverage.CoveredRatio}
	var err error
	if l.Counter != "" {
		if c.entity, err = coverage.ParseCounterEntity(l.Counter); err != nil {
			return nil, err
		}
	}
	if l.Value != "" {
		if c.value, err = coverage.ParseCounterValue(strings.ToUpper(l.Value)); err != nil {
			return nil, err
		}
	}
	if c.min, err = parseBound(l.Minimum); err != nil {
		return nil, fmt.Errorf("minimum: %w", err)
	}
	if c.max, err = parseBound(l.Maximum); err != nil {
		return nil, fmt.Errorf("maximum: %w", err)
	}
	return c, nil
}

func parseBound(s string) (*apd.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	percent := strings.HasSuffix(s, "%")
	d, _, err := apd.NewFromString(strings.TrimSuffix(s, "%"))
	if err != nil {
		return nil, err
	}
	if d.Form != apd.Finite {
		return nil, fmt.Errorf("%q is not a finite number", s)
	}
	if percent {
		d.Exponent -= 2
	}
	return d, nil
}

// fraction returns the value of c as num/den with den > 0.
func (l *limit) fraction(c coverage.Counter) (num, den int64) {
	switch l.value {
	case coverage.TotalCount:
		return int64(c.Total()), 1
	case coverage.MissedCount:
		return int64(c.Missed), 1
	case coverage.CoveredCount:
		return int64(c.Covered), 1
	}
	if c.Total() == 0 {
		return 0, 1
	}
	if l.value == coverage.MissedRatio {
		return int64(c.Missed), int64(c.Total())
	}
	return int64(c.Covered), int64(c.Total())
}

// compareBound returns the sign of bound - num/den, computed exactly.
func compareBound(bound *apd.Decimal, num, den int64) int {
	var p apd.Decimal
	if _, err := exactContext.Mul(&p, bound, apd.New(den, 0)); err != nil {
		return bound.Cmp(apd.New(0, 0))
	}
	return p.Cmp(apd.New(num, 0))
}

func quotient(num, den int64) *apd.Decimal {
	if den == 1 {
		return apd.New(num, 0)
	}
	var q apd.Decimal
	if _, err := quoContext.Quo(&q, apd.New(num, 0), apd.New(den, 0)); err != nil {
		return apd.New(0, 0)
	}
	return &q
}

// round renders v with the given exponent.
func round(v *apd.Decimal, exp int32, r apd.Rounder) string {
	ctx := *exactContext
	ctx.Rounding = r
	var out apd.Decimal
	if _, err := ctx.Quantize(&out, v, exp); err != nil {
		return v.Text('f')
	}
	return out.Text('f')
}

type outcome struct {
	violated bool
	bound    string // "minimum" or "maximum" when violated
	actual   string
	expected string
}

// check evaluates the limit against node. Bounds are inclusive.
func (l *limit) check(node coverage.Element) outcome {
	num, den := l.fraction(node.Counter(l.entity))
	actual := quotient(num, den)
	if l.min != nil && compareBound(l.min, num, den) > 0 {
		return outcome{violated: true, bound: "minimum",
			actual: round(actual, l.min.Exponent, apd.RoundFloor), expected: l.min.Text('f')}
	}
	if l.max != nil && compareBound(l.max, num, den) < 0 {
		return outcome{violated: true, bound: "maximum",
			actual: round(actual, l.max.Exponent, apd.RoundCeiling), expected: l.max.Text('f')}
	}
	switch {
	case l.min != nil:
		return outcome{actual: round(actual, l.min.Exponent, apd.RoundFloor)}
	case l.max != nil:
		return outcome{actual: round(actual, l.max.Exponent, apd.RoundCeiling)}
	case l.value.IsRatio():
		return outcome{actual: round(actual, -2, apd.RoundHalfEven)}
	}
	return outcome{actual: actual.Text('f')}
}

func (l *limit) describe() string {
	return entityDisplayNames[l.entity] + " " + valueDisplayNames[l.value]
}
