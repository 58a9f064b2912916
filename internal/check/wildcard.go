package check

import (
	"regexp"
	"strings"
)

// WildcardMatcher matches names against a list of patterns separated by
// ':'. A '*' matches any run of characters, a '?' matches one character.
type WildcardMatcher struct {
	re *regexp.Regexp
}

// NewWildcardMatcher compiles an expression such as "com/acme/*:*Test".
func NewWildcardMatcher(expression string) *WildcardMatcher {
	parts := strings.Split(expression, ":")
	alts := make([]string, len(parts))
	for i, p := range parts {
		var b strings.Builder
		for _, r := range p {
			switch r {
			case '*':
				b.WriteString(".*")
			case '?':
				b.WriteString(".")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		alts[i] = "(?:" + b.String() + ")"
	}
	return &WildcardMatcher{re: regexp.MustCompile("^(?s:" + strings.Join(alts, "|") + ")$")}
}

// Matches reports whether s matches one of the patterns.
func (m *WildcardMatcher) Matches(s string) bool {
	return m.re.MatchString(s)
}
