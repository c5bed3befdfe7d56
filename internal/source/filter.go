package source

import (
	"sync"

	"genomatrix/pkg/domain"
)

// Filtered is a read-only view of a parent source restricted to a subset of its
// markers and samples. Index lists are ascending positions in the parent's own
// index space; nil keeps the dimension whole.
type Filtered struct {
	key       domain.DataSetKey
	parent    DataSetSource
	markerIdx []int
	sampleIdx []int
	markers   MarkerDimension
	samples   SampleDimension

	origOnce sync.Once
	orig     DataSetSource
}

// Filter returns a view of parent keeping markerIdx × sampleIdx. Construction is
// O(1) in the data size; nothing is read until the view is accessed.
func Filter(parent DataSetSource, markerIdx, sampleIdx []int) *Filtered {
	return FilterAs(parent.Key(), parent, markerIdx, sampleIdx)
}

// FilterAs is Filter with an explicit dataset key, used when the view stands for a
// persisted operation.
func FilterAs(key domain.DataSetKey, parent DataSetSource, markerIdx, sampleIdx []int) *Filtered {
	return &Filtered{
		key:       key,
		parent:    parent,
		markerIdx: markerIdx,
		sampleIdx: sampleIdx,
		markers:   filterDimension(parent.Markers(), markerIdx, sampleIdx),
		samples:   filterDimension(parent.Samples(), sampleIdx, markerIdx),
	}
}

func (f *Filtered) Key() domain.DataSetKey { return f.key }

func (f *Filtered) Markers() MarkerDimension { return f.markers }

func (f *Filtered) Samples() SampleDimension { return f.samples }

func (f *Filtered) Orientation() domain.Orientation { return f.parent.Orientation() }

func (f *Filtered) Parent() DataSetSource { return f.parent }

// OrigSource is computed once; ancestry never changes after construction.
func (f *Filtered) OrigSource() DataSetSource {
	f.origOnce.Do(func() { f.orig = Origin(f) })
	return f.orig
}

// MarkerIndices returns the retained marker positions in the parent's index space.
func (f *Filtered) MarkerIndices() []int { return f.markerIdx }

// SampleIndices returns the retained sample positions in the parent's index space.
func (f *Filtered) SampleIndices() []int { return f.sampleIdx }

// Close is a no-op: a view never owns its parent.
func (f *Filtered) Close() error { return nil }
