// Package generalize rewrites literal values in free-form failure text to
// type-tagged placeholders, so that semantically identical failures become
// textually identical.
package generalize

import (
	"regexp"
	"strings"
)

// Placeholder tokens emitted by Generalize.
const (
	Value  = "[VALUE]"
	Number = "[NUMBER]"
	Date   = "[DATE]"
	Time   = "[TIME]"
	ID     = "[ID]"
	List   = "[LIST]"
	Map    = "[MAP]"
)

var placeholders = map[string]bool{
	Value: true, Number: true, Date: true, Time: true, ID: true, List: true, Map: true,
}

// IsPlaceholder reports whether tok is one of the placeholder tokens.
func IsPlaceholder(tok string) bool {
	return placeholders[tok]
}

// rule is one substitution. When prefixed is set, group 1 captures a single
// context character that precedes the literal and is kept as is (RE2 has no
// lookbehind).
type rule struct {
	name     string
	re       *regexp.Regexp
	prefixed bool
	token    string
	// nested rules are applied repeatedly until the text stops changing.
	nested bool
	// accept filters matches; nil accepts all.
	accept func(lit string) bool
}

func minLen(n int) func(string) bool {
	return func(lit string) bool { return len(lit) >= n }
}

// rules are ordered most specific first: identifiers and dates must be
// consumed before the generic number rule can split them.
var rules = []rule{
	{name: "uuid", re: regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`), token: ID},
	{name: "hex", re: regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`), token: ID},
	{name: "longhex", re: regexp.MustCompile(`\b[0-9]*[a-f][0-9a-f]*\b`), token: ID, accept: minLen(12)},

	{name: "isodate", re: regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?)?`), token: Date},
	{name: "slashdate", re: regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`), token: Date},
	{name: "monthdate", re: regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.? \d{1,2}(?:st|nd|rd|th)?,? \d{4}\b`), token: Date},
	{name: "daymonthdate", re: regexp.MustCompile(`(?i)\b\d{1,2} (?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.? \d{4}\b`), token: Date},

	{name: "time", re: regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:\s?[AaPp][Mm]\b)?`), token: Time},

	{name: "dquote", re: regexp.MustCompile(`"[^"\n]*"`), token: `"` + Value + `"`},
	{name: "squote", re: regexp.MustCompile(`(^|[^\w])'[^'\n]*'`), prefixed: true, token: `'` + Value + `'`},

	{name: "list", re: regexp.MustCompile(`\[(?:[^\[\]]|\[[A-Z]+\])*\]`), token: List, nested: true},
	{name: "map", re: regexp.MustCompile(`\{[^{}]*\}`), token: Map, nested: true},

	// Word identifiers carrying a varying serial: BK12345, ORD-88213,
	// user_42. Short names (gpt4, var_2, a12) are kept.
	{name: "wordid", re: regexp.MustCompile(`\b[A-Za-z_][\w-]*?(?:\d{3,}|[_-]\d{2,})[\w-]*\b`), token: ID},

	{name: "number", re: regexp.MustCompile(`(^|[^\w])\d+(?:\.\d+)?(?:[eE][+-]?\d+)?[A-Za-z%]*`), prefixed: true, token: Number},
}

// maxPasses bounds the fixpoint loops. Every substitution turns a literal
// into a placeholder, so real input settles in two or three passes.
const maxPasses = 16

// Generalize replaces literal values in s with placeholders. The rules are
// applied until the text is stable, so Generalize(Generalize(s)) ==
// Generalize(s). Matches that already are placeholders are left alone.
func Generalize(s string) string {
	for i := 0; i < maxPasses; i++ {
		next := pass(s)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

// All generalizes every string in ss into a new slice.
func All(ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = Generalize(s)
	}
	return out
}

func pass(s string) string {
	for _, r := range rules {
		if !r.nested {
			s = r.apply(s)
			continue
		}
		for i := 0; i < maxPasses; i++ {
			next := r.apply(s)
			if next == s {
				break
			}
			s = next
		}
	}
	return s
}

func (r rule) apply(s string) string {
	matches := r.re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start := m[0]
		if r.prefixed {
			start = m[3]
		}
		lit := s[start:m[1]]
		b.WriteString(s[last:start])
		if IsPlaceholder(lit) || (r.accept != nil && !r.accept(lit)) {
			b.WriteString(lit)
		} else {
			b.WriteString(r.token)
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// Leak is a literal left in generalized text.
type Leak struct {
	Rule    string
	Literal string
}

// Leaks returns every literal in s that some rule would still rewrite.
// Generalized text has no leaks.
func Leaks(s string) []Leak {
	var out []Leak
	for _, r := range rules {
		for _, m := range r.re.FindAllStringSubmatchIndex(s, -1) {
			start := m[0]
			if r.prefixed {
				start = m[3]
			}
			lit := s[start:m[1]]
			if IsPlaceholder(lit) || lit == r.token || (r.accept != nil && !r.accept(lit)) {
				continue
			}
			out = append(out, Leak{Rule: r.name, Literal: lit})
		}
	}
	return out
}
