// Package source defines the dataset-source contract: every dataset, stored or
// derived, exposes a marker and a sample dimension, each made of three index-aligned
// streams (keys, metadata, genotype rows). One generic Dimension type serves both
// dimensions for every backend, and Filter composes lazy index-filtered views on top
// of any source.
package source

import (
	"genomatrix/internal/projection"
	"genomatrix/pkg/domain"
)

// KeysSource is the ordered identity stream of a dimension. Indices reports the
// original (root) position of each key; IndicesMapping pairs them in order.
type KeysSource[K comparable] interface {
	projection.Sequence[K]
	Indices() projection.Sequence[int]
	IndicesMapping() projection.Mapping[int, K]
}

// MarkerDimension is the marker-side triad of a dataset.
type MarkerDimension = Dimension[domain.MarkerKey, domain.MarkerMetadata]

// SampleDimension is the sample-side triad of a dataset.
type SampleDimension = Dimension[domain.SampleKey, domain.SampleInfo]

// DataSetSource is a read-only dataset. For every i, Keys().At(i),
// Metadata().At(i) and Genotypes().At(i) of a dimension describe the same entity.
type DataSetSource interface {
	Key() domain.DataSetKey
	Markers() MarkerDimension
	Samples() SampleDimension
	// Orientation is the layout rows are cheapest to read along.
	Orientation() domain.Orientation
	// Parent is the source this one was derived from, nil for stored roots.
	Parent() DataSetSource
	// OrigSource is the stored root whose index space Indices() refer to.
	OrigSource() DataSetSource
	Close() error
}

// Origin walks Parent links until it reaches a source without a parent.
func Origin(src DataSetSource) DataSetSource {
	cur := src
	for cur != nil {
		p := cur.Parent()
		if p == nil {
			return cur
		}
		cur = p
	}
	return nil
}
