// Package builtin contains simple, reusable transformers used in the ETL.
package builtin

// Filter keeps only the items for which Keep returns true.
type Filter[T any] struct {
	Keep func(T) bool
}

// Apply filters in place by reslicing the input; the caller must not reuse in.
func (f Filter[T]) Apply(in []T) []T {
	out := in[:0]
	for _, v := range in {
		if f.Keep(v) {
			out = append(out, v)
		}
	}
	return out
}
