// Package memory implements the in-memory dataset backend: fully materialized
// sources, a session-owned registry of them, and a destination that builds one.
package memory

import (
	"fmt"

	"genomatrix/internal/projection"
	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

// Source is a fully materialized stored matrix. Genotypes are held sample-major;
// marker rows are gathered on access.
type Source struct {
	key     domain.MatrixKey
	markers []domain.MarkerMetadata
	samples []domain.SampleInfo
	rows    []domain.GenotypesList // rows[sample][marker]
}

// NewSource builds a source from sample-major rows. Every row must span all
// markers.
func NewSource(key domain.MatrixKey, markers []domain.MarkerMetadata, samples []domain.SampleInfo, rows []domain.GenotypesList) (*Source, error) {
	if len(rows) != len(samples) {
		return nil, domain.ErrMisaligned{Dimension: "sample", Keys: len(samples), Metadata: len(samples), Genotypes: len(rows)}
	}
	for i, r := range rows {
		if len(r) != len(markers) {
			return nil, fmt.Errorf("sample row %d has %d genotypes, want %d", i, len(r), len(markers))
		}
	}
	return &Source{key: key, markers: markers, samples: samples, rows: rows}, nil
}

// MatrixKey returns the stored matrix identity.
func (s *Source) MatrixKey() domain.MatrixKey { return s.key }

func (s *Source) Key() domain.DataSetKey { return domain.NewMatrixDataSetKey(s.key) }

func (s *Source) Markers() source.MarkerDimension {
	keys := projection.Func[domain.MarkerKey]{N: len(s.markers), Get: func(i int) (domain.MarkerKey, error) {
		return s.markers[i].Key, nil
	}}
	rows := projection.Func[domain.GenotypesList]{N: len(s.markers), Get: s.markerRow}
	return source.NewDimension[domain.MarkerKey, domain.MarkerMetadata](source.NewRootKeys[domain.MarkerKey](keys), projection.Slice[domain.MarkerMetadata](s.markers), rows)
}

func (s *Source) Samples() source.SampleDimension {
	keys := projection.Func[domain.SampleKey]{N: len(s.samples), Get: func(i int) (domain.SampleKey, error) {
		return s.samples[i].Key, nil
	}}
	return source.NewDimension[domain.SampleKey, domain.SampleInfo](source.NewRootKeys[domain.SampleKey](keys), projection.Slice[domain.SampleInfo](s.samples), projection.Slice[domain.GenotypesList](s.rows))
}

func (s *Source) markerRow(m int) (domain.GenotypesList, error) {
	out := make(domain.GenotypesList, len(s.rows))
	for i, r := range s.rows {
		out[i] = r[m]
	}
	return out, nil
}

// Orientation is PerSample: sample rows are stored contiguously.
func (s *Source) Orientation() domain.Orientation { return domain.PerSample }

func (s *Source) Parent() source.DataSetSource { return nil }

func (s *Source) OrigSource() source.DataSetSource { return s }

// Close is a no-op; the registry owns the data.
func (s *Source) Close() error { return nil }
