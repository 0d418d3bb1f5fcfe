package model

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// Status is the outcome of one test-case run as reported by the runner.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Failed reports whether the status counts as a failure for extraction.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusError
}

// TraceRef is an optional trace identifier. Present is false when the run
// captured no trace.
type TraceRef struct {
	ID      string
	Present bool
}

// NewTraceRef returns a present TraceRef for a non-empty id.
func NewTraceRef(id string) TraceRef {
	id = strings.TrimSpace(id)
	return TraceRef{ID: id, Present: id != ""}
}

// ExecutionRecord is one test-case run, read-only here.
type ExecutionRecord struct {
	CaseID       string
	ExecutionID  string
	RunID        string
	TestName     string
	TestModule   string // file path of the test
	Status       Status
	Duration     time.Duration
	TraceID      TraceRef
	ErrorMessage string
}

// AssertionRecord is one assertion evaluated during an execution.
type AssertionRecord struct {
	ID           int64
	Expression   string
	LinesAbove   string
	LinesBelow   string
	Passed       bool
	ErrorMessage string
	ResolvedArgs map[string]string
}

var (
	spaceBeforeClose = regexp.MustCompile(`\s+([)\]}.,])`)
	spaceAfterOpen   = regexp.MustCompile(`([(\[{])\s+`)
	spaceAroundDot   = regexp.MustCompile(`\s*\.\s*`)
)

// Pretty renders the assertion as the runner's multi-line failure block.
// Resolved arguments are listed in name order.
func (a AssertionRecord) Pretty() string {
	var parts []string
	if a.Passed {
		parts = append(parts, "Assertion Passed!")
	} else {
		parts = append(parts, "Assertion Failed!")
	}
	if a.ErrorMessage != "" {
		parts = append(parts, "Error message: "+a.ErrorMessage)
	}

	for _, line := range dedentLines(a.LinesAbove) {
		parts = append(parts, "│  "+line)
	}
	for _, line := range splitLines(a.Expression) {
		parts = append(parts, ">  "+line)
	}
	for _, line := range dedentLines(a.LinesBelow) {
		parts = append(parts, "│  "+line)
	}

	if len(a.ResolvedArgs) > 0 {
		parts = append(parts, "╰─ where:")
		names := make([]string, 0, len(a.ResolvedArgs))
		for name := range a.ResolvedArgs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, "     "+oneLineName(name)+" = "+strings.Join(strings.Fields(a.ResolvedArgs[name]), " "))
		}
	}
	return strings.Join(parts, "\n")
}

func oneLineName(name string) string {
	s := strings.Join(strings.Fields(name), " ")
	s = spaceBeforeClose.ReplaceAllString(s, "$1")
	s = spaceAfterOpen.ReplaceAllString(s, "$1")
	return spaceAroundDot.ReplaceAllString(s, ".")
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

// dedentLines removes the common leading whitespace of all non-blank lines.
func dedentLines(s string) []string {
	lines := splitLines(s)
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimPrefix(l, prefix)
	}
	return out
}

// SpanRecord is one span of an execution trace.
type SpanRecord struct {
	SpanID        string
	ParentID      string // empty for roots
	TraceID       string
	Name          string
	Start         time.Time
	End           time.Time
	Attributes    map[string]any
	StatusCode    string
	StatusMessage string
}
