// Package filter compiles measurement-name filter patterns and matches
// names against them with OR semantics (§4.8).
package filter

import (
	"fmt"
	"regexp"
)

// Filter is a list of eagerly-compiled, unanchored, case-sensitive regular
// expressions with Unicode character classes enabled. Matching is byte
// oriented; case-insensitivity is opted into per-pattern via "(?i)".
type Filter struct {
	patterns []*regexp.Regexp
}

// Compile compiles patterns eagerly, returning a typed error naming the
// offending pattern on the first invalid one (fail fast before any I/O).
func Compile(patterns []string) (Filter, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return Filter{}, fmt.Errorf("invalid filter pattern %q: %w", p, err)
		}

		compiled = append(compiled, re)
	}

	return Filter{patterns: compiled}, nil
}

// MatchesAny reports whether name matches any compiled pattern. An empty
// Filter matches every name.
func (f Filter) MatchesAny(name string) bool {
	if len(f.patterns) == 0 {
		return true
	}

	for _, re := range f.patterns {
		if re.MatchString(name) {
			return true
		}
	}

	return false
}

// Empty reports whether the filter holds no patterns.
func (f Filter) Empty() bool {
	return len(f.patterns) == 0
}
