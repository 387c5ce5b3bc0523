// Package rules implements the line-oriented rule language that decides
// whether a message should trigger a response.
//
// Each non-blank line is one predicate:
//
//	r <pattern>     the regex must match somewhere in the message
//	!r <pattern>    the regex must not match anywhere in the message
//
// A message matches the ruleset iff every require predicate matches and no
// forbid predicate does. An empty ruleset matches everything.
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Predicate is one atomic test against a message.
type Predicate struct {
	pattern *regexp.Regexp
	forbid  bool
}

// Forbid reports whether the predicate is negated.
func (p Predicate) Forbid() bool { return p.forbid }

// Pattern returns the predicate's pattern source.
func (p Predicate) Pattern() string { return p.pattern.String() }

// Ruleset is a compiled conjunction of predicates. It is immutable after
// Parse and safe for concurrent use.
type Ruleset struct {
	predicates []Predicate
	source     string
}

// ParseError describes an invalid rule line.
type ParseError struct {
	Line int    // 1-based line number
	Text string // the offending line
	Err  error  // regex compile error, nil for unrecognized syntax
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("rule line %d: unrecognized rule %q", e.Line, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse compiles rule text into a Ruleset. Blank lines are ignored.
func Parse(text string) (*Ruleset, error) {
	rs := &Ruleset{source: text}

	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		forbid := false
		rest, ok := strings.CutPrefix(trimmed, "r ")
		if !ok {
			rest, ok = strings.CutPrefix(trimmed, "!r ")
			forbid = true
		}
		if !ok {
			return nil, &ParseError{Line: i + 1, Text: trimmed}
		}

		re, err := regexp.Compile(rest)
		if err != nil {
			return nil, &ParseError{Line: i + 1, Text: trimmed, Err: err}
		}

		rs.predicates = append(rs.predicates, Predicate{pattern: re, forbid: forbid})
	}

	return rs, nil
}

// MustParse is Parse for rule text known to be valid at compile time.
// It panics on error and exists for tests and fixtures.
func MustParse(text string) *Ruleset {
	rs, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return rs
}

// Matches reports whether every require predicate matches text and no
// forbid predicate does. It short-circuits on the first failing predicate.
func (rs *Ruleset) Matches(text string) bool {
	for _, p := range rs.predicates {
		if p.pattern.MatchString(text) == p.forbid {
			return false
		}
	}
	return true
}

// Len returns the number of predicates.
func (rs *Ruleset) Len() int { return len(rs.predicates) }

// Source returns the original rule text, preserved so configs round-trip
// byte for byte.
func (rs *Ruleset) Source() string { return rs.source }
