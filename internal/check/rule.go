package check

import (
	"fmt"
	"strings"

	"github.com/zjy-dev/probecov/internal/coverage"
)

// Rule applies limits to every element of one type whose name is
// included and not excluded. Includes and excludes are wildcard patterns
// matched against the language names of the elements.
type Rule struct {
	Element  string   `mapstructure:"element" json:"element,omitempty" yaml:"element,omitempty"`
	Includes []string `mapstructure:"includes" json:"includes,omitempty" yaml:"includes,omitempty"`
	Excludes []string `mapstructure:"excludes" json:"excludes,omitempty" yaml:"excludes,omitempty"`
	Limits   []Limit  `mapstructure:"limits" json:"limits,omitempty" yaml:"limits,omitempty"`
}

type rule struct {
	element  coverage.ElementType
	includes *WildcardMatcher
	excludes *WildcardMatcher
	limits   []*limit
}

func compileRule(r Rule) (*rule, error) {
	c := &rule{element: coverage.ElementBundle}
	if r.Element != "" {
		e, err := coverage.ParseElementType(strings.ToUpper(r.Element))
		if err != nil {
			return nil, err
		}
		c.element = e
	}
	includes := r.Includes
	if len(includes) == 0 {
		includes = []string{"*"}
	}
	c.includes = NewWildcardMatcher(strings.Join(includes, ":"))
	if len(r.Excludes) > 0 {
		c.excludes = NewWildcardMatcher(strings.Join(r.Excludes, ":"))
	}
	for i, l := range r.Limits {
		cl, err := compileLimit(l)
		if err != nil {
			return nil, fmt.Errorf("limit %d: %w", i, err)
		}
		c.limits = append(c.limits, cl)
	}
	return c, nil
}

func (r *rule) matches(name string) bool {
	if !r.includes.Matches(name) {
		return false
	}
	return r.excludes == nil || !r.excludes.Matches(name)
}
