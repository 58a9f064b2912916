package coverage

import (
	"fmt"
	"strings"
)

// CounterEntity names one of the counters kept by every node.
type CounterEntity int

const (
	EntityInstruction CounterEntity = iota
	EntityBranch
	EntityLine
	EntityComplexity
	EntityMethod
	EntityClass
)

// Entities lists all counter entities in display order.
var Entities = []CounterEntity{
	EntityInstruction, EntityBranch, EntityLine, EntityComplexity, EntityMethod, EntityClass,
}

var entityNames = [...]string{"INSTRUCTION", "BRANCH", "LINE", "COMPLEXITY", "METHOD", "CLASS"}

func (e CounterEntity) String() string {
	if e < 0 || int(e) >= len(entityNames) {
		return fmt.Sprintf("CounterEntity(%d)", int(e))
	}
	return entityNames[e]
}

// ParseCounterEntity parses an entity name such as "BRANCH".
func ParseCounterEntity(s string) (CounterEntity, error) {
	for i, n := range entityNames {
		if strings.EqualFold(s, n) {
			return CounterEntity(i), nil
		}
	}
	return 0, fmt.Errorf("unknown counter entity %q", s)
}

// CounterValue selects which figure of a counter is compared.
type CounterValue int

const (
	TotalCount CounterValue = iota
	MissedCount
	CoveredCount
	MissedRatio
	CoveredRatio
)

var valueNames = [...]string{"TOTALCOUNT", "MISSEDCOUNT", "COVEREDCOUNT", "MISSEDRATIO", "COVEREDRATIO"}

func (v CounterValue) String() string {
	if v < 0 || int(v) >= len(valueNames) {
		return fmt.Sprintf("CounterValue(%d)", int(v))
	}
	return valueNames[v]
}

// IsRatio reports whether the value is a ratio rather than a count.
func (v CounterValue) IsRatio() bool {
	return v == MissedRatio || v == CoveredRatio
}

// ParseCounterValue parses a value name such as "COVEREDRATIO".
func ParseCounterValue(s string) (CounterValue, error) {
	for i, n := range valueNames {
		if strings.EqualFold(s, n) {
			return CounterValue(i), nil
		}
	}
	return 0, fmt.Errorf("unknown counter value %q", s)
}

// Status summarizes a counter.
type Status int

const (
	StatusEmpty Status = iota
	StatusNotCovered
	StatusFullyCovered
	StatusPartlyCovered
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusNotCovered:
		return "NOT_COVERED"
	case StatusFullyCovered:
		return "FULLY_COVERED"
	case StatusPartlyCovered:
		return "PARTLY_COVERED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Counter is a pair of missed and covered items.
type Counter struct {
	Missed  int `json:"missed" yaml:"missed"`
	Covered int `json:"covered" yaml:"covered"`
}

// Total returns missed plus covered.
func (c Counter) Total() int {
	return c.Missed + c.Covered
}

// MissedRatio returns missed/total, 0 for an empty counter.
func (c Counter) MissedRatio() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Missed) / float64(c.Total())
}

// CoveredRatio returns covered/total, 0 for an empty counter.
func (c Counter) CoveredRatio() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Covered) / float64(c.Total())
}

// Value returns the selected figure.
func (c Counter) Value(v CounterValue) float64 {
	switch v {
	case TotalCount:
		return float64(c.Total())
	case MissedCount:
		return float64(c.Missed)
	case CoveredCount:
		return float64(c.Covered)
	case MissedRatio:
		return c.MissedRatio()
	case CoveredRatio:
		return c.CoveredRatio()
	default:
		panic(fmt.Sprintf("coverage: unknown counter value %d", int(v)))
	}
}

// Add returns the element-wise sum.
func (c Counter) Add(o Counter) Counter {
	return Counter{Missed: c.Missed + o.Missed, Covered: c.Covered + o.Covered}
}

// Status classifies the counter.
func (c Counter) Status() Status {
	switch {
	case c.Covered > 0 && c.Missed > 0:
		return StatusPartlyCovered
	case c.Covered > 0:
		return StatusFullyCovered
	case c.Missed > 0:
		return StatusNotCovered
	default:
		return StatusEmpty
	}
}

func (c Counter) String() string {
	return fmt.Sprintf("%d/%d", c.Covered, c.Total())
}
