// Package projection provides lazy index-filtered views over ordered sequences and
// ordered mappings. Views never copy the wrapped data; a view's position k resolves
// to position include[k] of whatever it wraps, so views compose by chaining.
package projection

import (
	"fmt"

	"genomatrix/pkg/domain"
)

// Sequence is an ordered, random-access collection. At may perform I/O in
// file-backed implementations and therefore returns an error.
type Sequence[T any] interface {
	Len() int
	At(i int) (T, error)
}

// Slice adapts a materialized Go slice to Sequence.
type Slice[T any] []T

// Len returns the slice length.
func (s Slice[T]) Len() int { return len(s) }

// At returns element i or ErrOutOfRange.
func (s Slice[T]) At(i int) (T, error) {
	if i < 0 || i >= len(s) {
		var zero T
		return zero, domain.ErrOutOfRange{Index: i, Len: len(s)}
	}
	return s[i], nil
}

// Func adapts a length and an accessor to Sequence. The accessor is only called
// with in-range indices.
type Func[T any] struct {
	N   int
	Get func(i int) (T, error)
}

func (f Func[T]) Len() int { return f.N }

func (f Func[T]) At(i int) (T, error) {
	if i < 0 || i >= f.N {
		var zero T
		return zero, domain.ErrOutOfRange{Index: i, Len: f.N}
	}
	return f.Get(i)
}

// Filtered is a lazy view of the wrapped sequence restricted to include, which
// holds positions in the wrapped sequence's own index space.
type Filtered[T any] struct {
	wrapped Sequence[T]
	include []int
}

// Filter returns the filtered view over wrapped. Construction is O(1): include is
// not validated, an index past the end of wrapped fails when it is accessed.
func Filter[T any](wrapped Sequence[T], include []int) *Filtered[T] {
	return &Filtered[T]{wrapped: wrapped, include: include}
}

// Len returns the number of included positions.
func (f *Filtered[T]) Len() int { return len(f.include) }

// At returns wrapped.At(include[k]).
func (f *Filtered[T]) At(k int) (T, error) {
	if k < 0 || k >= len(f.include) {
		var zero T
		return zero, domain.ErrOutOfRange{Index: k, Len: len(f.include)}
	}
	v, err := f.wrapped.At(f.include[k])
	if err != nil {
		var zero T
		return zero, fmt.Errorf("filtered position %d: %w", k, err)
	}
	return v, nil
}

// Include exposes the include list (not a copy; callers must not mutate it).
func (f *Filtered[T]) Include() []int { return f.include }

// Wrapped returns the sequence the view filters.
func (f *Filtered[T]) Wrapped() Sequence[T] { return f.wrapped }

// RangeView returns a filtered view over include[from:to], used for paged
// consumption of a large filtered set without materializing it.
func RangeView[T any](wrapped Sequence[T], include []int, from, to int) (*Filtered[T], error) {
	if from < 0 || to > len(include) || from > to {
		return nil, fmt.Errorf("range [%d,%d) of %d include indices: %w", from, to, len(include), domain.ErrOutOfRange{Index: to, Len: len(include)})
	}
	return Filter(wrapped, include[from:to:to]), nil
}

// Collect materializes a sequence into a slice.
func Collect[T any](seq Sequence[T]) ([]T, error) {
	out := make([]T, 0, seq.Len())
	for i := 0; i < seq.Len(); i++ {
		v, err := seq.At(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Each visits every element in order, stopping at the first error.
func Each[T any](seq Sequence[T], fn func(i int, v T) error) error {
	for i := 0; i < seq.Len(); i++ {
		v, err := seq.At(i)
		if err != nil {
			return err
		}
		if err := fn(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Pages splits [0,n) into consecutive [from,to) windows of at most size elements.
func Pages(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	if n == 0 {
		return nil
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for from := 0; from < n; from += size {
		to := from + size
		if to > n {
			to = n
		}
		out = append(out, [2]int{from, to})
	}
	return out
}

// Identity returns the include list [0,n).
func Identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
