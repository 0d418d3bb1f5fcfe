package extractor

import (
	"sort"
	"strings"

	"github.com/crimson-sun/faultline/internal/model"
)

// trace is an arena of spans. Parent links are indices into spans, so the
// tree holds no pointers and tolerates orphans and cycles.
type trace struct {
	spans    []model.SpanRecord
	index    map[string]int
	children [][]int
	roots    []int
}

func newTrace(spans []model.SpanRecord) *trace {
	t := &trace{
		spans:    spans,
		index:    make(map[string]int, len(spans)),
		children: make([][]int, len(spans)),
	}
	for i, s := range spans {
		if _, dup := t.index[s.SpanID]; !dup {
			t.index[s.SpanID] = i
		}
	}
	for i, s := range spans {
		p, ok := t.index[s.ParentID]
		if s.ParentID == "" || !ok || p == i {
			t.roots = append(t.roots, i)
			continue
		}
		t.children[p] = append(t.children[p], i)
	}
	t.sortByStart(t.roots)
	for _, c := range t.children {
		t.sortByStart(c)
	}
	return t
}

func (t *trace) sortByStart(idx []int) {
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := t.spans[idx[a]], t.spans[idx[b]]
		if !sa.Start.Equal(sb.Start) {
			return sa.Start.Before(sb.Start)
		}
		return sa.SpanID < sb.SpanID
	})
}

// order returns span indices in pre-order: each root by start time,
// followed by its subtree. Spans unreachable from any root (parent cycles)
// are visited afterwards as extra roots.
func (t *trace) order() []int {
	out := make([]int, 0, len(t.spans))
	seen := make([]bool, len(t.spans))

	visit := func(root int) {
		stack := []int{root}
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[i] {
				continue
			}
			seen[i] = true
			out = append(out, i)
			kids := t.children[i]
			for k := len(kids) - 1; k >= 0; k-- {
				stack = append(stack, kids[k])
			}
		}
	}

	for _, r := range t.roots {
		visit(r)
	}
	if len(out) < len(t.spans) {
		var rest []int
		for i := range t.spans {
			if !seen[i] {
				rest = append(rest, i)
			}
		}
		t.sortByStart(rest)
		for _, r := range rest {
			visit(r)
		}
	}
	return out
}

// flow returns the names of visited components in traversal order,
// skipping names with any of the given prefixes and keeping the last limit.
func (t *trace) flow(skip []string, limit int) []string {
	var names []string
	for _, i := range t.order() {
		name := t.spans[i].Name
		if hasAnyPrefix(name, skip) {
			continue
		}
		names = append(names, name)
	}
	if limit > 0 && len(names) > limit {
		names = names[len(names)-limit:]
	}
	return names
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
