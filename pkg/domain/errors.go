package domain

import "fmt"

// ErrNotFound reports a missing record or dataset.
type ErrNotFound struct {
	Entity EntityType
	Key    string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ErrDuplicate reports an attempt to register or create a record whose key is
// already taken. Registrations never overwrite.
type ErrDuplicate struct {
	Entity EntityType
	Key    string
}

func (e ErrDuplicate) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}

// ErrOutOfRange reports an index or range outside a dimension's bounds. It is a
// contract violation by the caller, never clamped.
type ErrOutOfRange struct {
	Index int
	Len   int
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("index %d out of range [0,%d)", e.Index, e.Len)
}

// ErrUnsortedIndices reports an include-index list that is not strictly ascending.
type ErrUnsortedIndices struct {
	Position int
	Index    int
	Previous int
}

func (e ErrUnsortedIndices) Error() string {
	return fmt.Sprintf("include index %d at position %d does not follow %d", e.Index, e.Position, e.Previous)
}

// ErrMisaligned reports a dataset whose parallel per-entity streams disagree in length.
type ErrMisaligned struct {
	Dimension string
	Keys      int
	Metadata  int
	Genotypes int
}

func (e ErrMisaligned) Error() string {
	return fmt.Sprintf("%s dimension misaligned: keys=%d metadata=%d genotypes=%d", e.Dimension, e.Keys, e.Metadata, e.Genotypes)
}
