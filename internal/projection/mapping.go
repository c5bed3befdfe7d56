package projection

import (
	"errors"
	"fmt"

	"genomatrix/pkg/domain"
)

// Mapping is an ordered key/value collection walked in its natural order.
type Mapping[K comparable, V any] interface {
	Len() int
	Each(fn func(k K, v V) error) error
}

// Entry is one key/value pair of an Entries mapping.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Entries is a materialized Mapping preserving insertion order.
type Entries[K comparable, V any] []Entry[K, V]

func (e Entries[K, V]) Len() int { return len(e) }

func (e Entries[K, V]) Each(fn func(k K, v V) error) error {
	for _, ent := range e {
		if err := fn(ent.Key, ent.Value); err != nil {
			return err
		}
	}
	return nil
}

// Zip builds a mapping pairing keys[i] with values[i]. Both sequences are read
// lazily when the mapping is walked.
func Zip[K comparable, V any](keys Sequence[K], values Sequence[V]) Mapping[K, V] {
	return zipped[K, V]{keys: keys, values: values}
}

type zipped[K comparable, V any] struct {
	keys   Sequence[K]
	values Sequence[V]
}

func (z zipped[K, V]) Len() int { return z.keys.Len() }

func (z zipped[K, V]) Each(fn func(k K, v V) error) error {
	if z.keys.Len() != z.values.Len() {
		return fmt.Errorf("zip: %d keys vs %d values", z.keys.Len(), z.values.Len())
	}
	for i := 0; i < z.keys.Len(); i++ {
		k, err := z.keys.At(i)
		if err != nil {
			return err
		}
		v, err := z.values.At(i)
		if err != nil {
			return err
		}
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// FilteredMapping is a lazy view emitting the wrapped entries at the positions
// listed in include. include must be strictly ascending and the wrapped mapping must
// produce entries in the order of the positions they represent.
type FilteredMapping[K comparable, V any] struct {
	wrapped Mapping[K, V]
	include []int
}

// FilterMapping returns the filtered mapping view. Construction is O(1).
func FilterMapping[K comparable, V any](wrapped Mapping[K, V], include []int) *FilteredMapping[K, V] {
	return &FilteredMapping[K, V]{wrapped: wrapped, include: include}
}

// Len returns the number of included positions.
func (f *FilteredMapping[K, V]) Len() int { return len(f.include) }

var errStopWalk = errors.New("projection: stop walk")

// Each walks the wrapped entries once, consuming include in step. Unsorted
// include lists fail with ErrUnsortedIndices and indices past the wrapped end fail
// with ErrOutOfRange, both detected during the walk.
func (f *FilteredMapping[K, V]) Each(fn func(k K, v V) error) error {
	if len(f.include) == 0 {
		return nil
	}
	next := 0
	pos := 0
	err := f.wrapped.Each(func(k K, v V) error {
		defer func() { pos++ }()
		if pos != f.include[next] {
			return nil
		}
		if err := fn(k, v); err != nil {
			return err
		}
		next++
		if next == len(f.include) {
			return errStopWalk
		}
		if f.include[next] <= f.include[next-1] {
			return domain.ErrUnsortedIndices{Position: next, Index: f.include[next], Previous: f.include[next-1]}
		}
		return nil
	})
	if errors.Is(err, errStopWalk) {
		return nil
	}
	if err != nil {
		return err
	}
	if next < len(f.include) {
		return domain.ErrOutOfRange{Index: f.include[next], Len: pos}
	}
	return nil
}
