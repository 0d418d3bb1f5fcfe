package compactor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Verbosity controls how much detail a report retains.
type Verbosity int

const (
	Minimal  Verbosity = iota // counts only
	Standard                  // counts plus a few examples
	Full                      // everything
)

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Standard:
		return "standard"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("Verbosity(%d)", int(v))
	}
}

// ParseVerbosity maps "minimal", "standard" or "full" to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "standard", "":
		return Standard, nil
	case "full":
		return Full, nil
	default:
		return Standard, fmt.Errorf("unknown verbosity %q", s)
	}
}

// Compactor shortens free text and lists for human-readable summaries.
type Compactor struct {
	Verbosity Verbosity
}

// New creates a Compactor with the given verbosity level.
func New(v Verbosity) *Compactor {
	return &Compactor{Verbosity: v}
}

// Line returns text flattened to one line and truncated for the verbosity.
func (c *Compactor) Line(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	switch c.Verbosity {
	case Minimal:
		return Truncate(flat, 60)
	case Standard:
		return Truncate(flat, 120)
	default:
		return flat
	}
}

// Examples returns the items to list for the verbosity and how many were
// left out: none for Minimal, the first three for Standard, all for Full.
func (c *Compactor) Examples(items []string) (shown []string, omitted int) {
	limit := len(items)
	switch c.Verbosity {
	case Minimal:
		limit = 0
	case Standard:
		limit = min(3, len(items))
	}
	return items[:limit], len(items) - limit
}

// Truncate keeps the first maxLen runes of s, marking a cut with "...".
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
