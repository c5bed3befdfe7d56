package chunked

import (
	"context"
	"errors"
	"sync"

	"genomatrix/internal/projection"
	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

// ErrClosed is returned by reads on a closed Source.
var ErrClosed = errors.New("chunked source closed")

// Source is a stored matrix read from chunks. Lengths come from the manifest;
// descriptor documents load on first use; genotype rows are read through the
// chunk cache. Reads keep the values of the context the source was opened with
// but not its cancellation, since the row accessors take no context of their own.
type Source struct {
	ctx   context.Context
	store *Store
	key   domain.MatrixKey
	meta  ArrayMeta

	mu     sync.Mutex
	closed bool

	docMu   sync.Mutex
	loaded  bool
	markers []domain.MarkerMetadata
	samples []domain.SampleInfo
}

func newSource(ctx context.Context, store *Store, key domain.MatrixKey, meta ArrayMeta) *Source {
	return &Source{ctx: context.WithoutCancel(ctx), store: store, key: key, meta: meta}
}

// Manifest returns the manifest the source was opened with.
func (s *Source) Manifest() ArrayMeta { return s.meta }

// MatrixKey returns the stored matrix identity.
func (s *Source) MatrixKey() domain.MatrixKey { return s.key }

func (s *Source) Key() domain.DataSetKey { return domain.NewMatrixDataSetKey(s.key) }

// load reads both descriptor documents. A failed load is retried on the next
// access; only a successful one is kept.
func (s *Source) load() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()
	if s.loaded {
		return nil
	}
	var markers []domain.MarkerMetadata
	if err := s.store.readDoc(s.ctx, s.key, markersName, &markers); err != nil {
		return err
	}
	var samples []domain.SampleInfo
	if err := s.store.readDoc(s.ctx, s.key, samplesName, &samples); err != nil {
		return err
	}
	if len(markers) != s.meta.Markers() {
		return domain.ErrMisaligned{Dimension: "marker", Keys: s.meta.Markers(), Metadata: len(markers), Genotypes: s.meta.Markers()}
	}
	if len(samples) != s.meta.Samples() {
		return domain.ErrMisaligned{Dimension: "sample", Keys: s.meta.Samples(), Metadata: len(samples), Genotypes: s.meta.Samples()}
	}
	s.markers, s.samples, s.loaded = markers, samples, true
	return nil
}

func (s *Source) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Source) marker(i int) (domain.MarkerMetadata, error) {
	if err := s.load(); err != nil {
		return domain.MarkerMetadata{}, err
	}
	if i < 0 || i >= len(s.markers) {
		return domain.MarkerMetadata{}, domain.ErrOutOfRange{Index: i, Len: len(s.markers)}
	}
	return s.markers[i], nil
}

func (s *Source) sample(i int) (domain.SampleInfo, error) {
	if err := s.load(); err != nil {
		return domain.SampleInfo{}, err
	}
	if i < 0 || i >= len(s.samples) {
		return domain.SampleInfo{}, domain.ErrOutOfRange{Index: i, Len: len(s.samples)}
	}
	return s.samples[i], nil
}

func (s *Source) row(dim domain.Orientation) func(int) (domain.GenotypesList, error) {
	return func(i int) (domain.GenotypesList, error) {
		if err := s.checkOpen(); err != nil {
			return nil, err
		}
		rows, err := s.store.readRange(s.ctx, s.key, s.meta, dim, i, i+1)
		if err != nil {
			return nil, err
		}
		return rows[0], nil
	}
}

func (s *Source) Markers() source.MarkerDimension {
	n := s.meta.Markers()
	keys := projection.Func[domain.MarkerKey]{N: n, Get: func(i int) (domain.MarkerKey, error) {
		m, err := s.marker(i)
		return m.Key, err
	}}
	meta := projection.Func[domain.MarkerMetadata]{N: n, Get: s.marker}
	rows := projection.Func[domain.GenotypesList]{N: n, Get: s.row(domain.PerMarker)}
	return source.NewDimension[domain.MarkerKey, domain.MarkerMetadata](source.NewRootKeys[domain.MarkerKey](keys), meta, rows)
}

func (s *Source) Samples() source.SampleDimension {
	n := s.meta.Samples()
	keys := projection.Func[domain.SampleKey]{N: n, Get: func(i int) (domain.SampleKey, error) {
		m, err := s.sample(i)
		return m.Key, err
	}}
	meta := projection.Func[domain.SampleInfo]{N: n, Get: s.sample}
	rows := projection.Func[domain.GenotypesList]{N: n, Get: s.row(domain.PerSample)}
	return source.NewDimension[domain.SampleKey, domain.SampleInfo](source.NewRootKeys[domain.SampleKey](keys), meta, rows)
}

// Orientation is the layout the chunks were written along.
func (s *Source) Orientation() domain.Orientation { return s.meta.Layout }

func (s *Source) Parent() source.DataSetSource { return nil }

func (s *Source) OrigSource() source.DataSetSource { return s }

// Close invalidates the source. Later reads fail with ErrClosed.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
