package source

import (
	"genomatrix/internal/projection"
)

// RootKeys is the keys stream of a stored dataset, whose positions are original
// indices.
type RootKeys[K comparable] struct {
	keys projection.Sequence[K]
}

// NewRootKeys wraps a key sequence of a stored dataset.
func NewRootKeys[K comparable](keys projection.Sequence[K]) *RootKeys[K] {
	return &RootKeys[K]{keys: keys}
}

func (r *RootKeys[K]) Len() int { return r.keys.Len() }

func (r *RootKeys[K]) At(i int) (K, error) { return r.keys.At(i) }

// Indices of a root are the identity [0,n).
func (r *RootKeys[K]) Indices() projection.Sequence[int] {
	n := r.keys.Len()
	return projection.Func[int]{N: n, Get: func(i int) (int, error) { return i, nil }}
}

func (r *RootKeys[K]) IndicesMapping() projection.Mapping[int, K] {
	return projection.Zip(r.Indices(), projection.Sequence[K](r.keys))
}

// FilteredKeys restricts a wrapped keys stream to the positions in include, given
// in the wrapped stream's own index space. Original indices compose through the
// chain because Indices filters the wrapped Indices.
type FilteredKeys[K comparable] struct {
	wrapped KeysSource[K]
	include []int
	view    *projection.Filtered[K]
}

// FilterKeys returns the filtered keys view.
func FilterKeys[K comparable](wrapped KeysSource[K], include []int) *FilteredKeys[K] {
	return &FilteredKeys[K]{wrapped: wrapped, include: include, view: projection.Filter[K](wrapped, include)}
}

func (f *FilteredKeys[K]) Len() int { return f.view.Len() }

func (f *FilteredKeys[K]) At(i int) (K, error) { return f.view.At(i) }

func (f *FilteredKeys[K]) Indices() projection.Sequence[int] {
	return projection.Filter(f.wrapped.Indices(), f.include)
}

func (f *FilteredKeys[K]) IndicesMapping() projection.Mapping[int, K] {
	return projection.FilterMapping(f.wrapped.IndicesMapping(), f.include)
}
