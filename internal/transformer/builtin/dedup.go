package builtin

import (
	"sort"
	"strings"
)

// Dedupe policies.
const (
	KeepFirst = "keep-first"
	KeepLast  = "keep-last"
)

// DeDup collapses items that share a key and picks a winner per Policy:
//
//   - "keep-first": keep the earliest occurrence
//   - "keep-last" : keep the latest occurrence (default)
//
// Winners are returned in the order of their own input positions. Items whose
// Key reports ok=false are passed through after the winners, in input order.
type DeDup[T any] struct {
	Key    func(T) (string, bool)
	Policy string
}

// Apply executes the de-duplication and returns a new slice.
func (d DeDup[T]) Apply(in []T) []T {
	if len(in) == 0 || d.Key == nil {
		return in
	}
	policy := strings.ToLower(strings.TrimSpace(d.Policy))
	if policy == "" {
		policy = KeepLast
	}

	winners := make(map[string]int, len(in))
	var passthrough []int
	for i, v := range in {
		key, ok := d.Key(v)
		if !ok {
			passthrough = append(passthrough, i)
			continue
		}
		if _, exists := winners[key]; exists && policy == KeepFirst {
			continue
		}
		winners[key] = i
	}

	idx := make([]int, 0, len(winners))
	for _, i := range winners {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]T, 0, len(idx)+len(passthrough))
	for _, i := range idx {
		out = append(out, in[i])
	}
	for _, i := range passthrough {
		out = append(out, in[i])
	}
	return out
}
