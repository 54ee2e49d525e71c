package transformer

// Transformer rewrites a batch of values of one type.
type Transformer[T any] interface{ Apply([]T) []T }

// Chain is an ordered list of transformers.
type Chain[T any] []Transformer[T]

func (c Chain[T]) Apply(in []T) []T {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}
