package dedup

import "sort"

// Unique returns items with duplicates removed, in first-occurrence order.
func Unique(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Index collapses items to their distinct values. uniq holds the distinct
// values in first-occurrence order and idx[i] is the position of items[i]
// in uniq, so a result computed per distinct value can be fanned back out.
func Index(items []string) (uniq []string, idx []int) {
	pos := make(map[string]int, len(items))
	idx = make([]int, len(items))
	for i, s := range items {
		p, ok := pos[s]
		if !ok {
			p = len(uniq)
			pos[s] = p
			uniq = append(uniq, s)
		}
		idx[i] = p
	}
	return uniq, idx
}

// Count is a distinct key and how many times it occurred.
type Count struct {
	Key   string
	Count int
}

// Counts tallies keys. The result is ordered by descending count, ties in
// first-occurrence order.
func Counts(keys []string) []Count {
	if len(keys) == 0 {
		return nil
	}

	// Ordered map: preserve first-occurrence order.
	var order []*Count
	groups := make(map[string]*Count)
	for _, k := range keys {
		if c, ok := groups[k]; ok {
			c.Count++
			continue
		}
		c := &Count{Key: k, Count: 1}
		groups[k] = c
		order = append(order, c)
	}

	out := make([]Count, len(order))
	for i, c := range order {
		out[i] = *c
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Group buckets items by key, preserving first-occurrence order of keys and
// input order within each bucket.
func Group[T any](items []T, key func(T) string) (keys []string, groups map[string][]T) {
	groups = make(map[string][]T)
	for _, it := range items {
		k := key(it)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], it)
	}
	return keys, groups
}
