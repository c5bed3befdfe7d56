package chunked

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"genomatrix/internal/blob"
	"genomatrix/internal/logging"
	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

var logger = logging.Component("chunked")

const (
	// DefaultChunkRows is the number of rows per chunk when none is configured.
	DefaultChunkRows = 256
	// DefaultCacheChunks bounds the decoded chunk cache.
	DefaultCacheChunks = 64
)

// Store reads and writes chunked matrices in a blob store.
type Store struct {
	blobs     blob.Store
	chunkRows int
	codec     *codec
	cache     *lru.Cache[string, []domain.GenotypesList]
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	chunkRows   int
	cacheChunks int
	level       zstd.EncoderLevel
}

// WithChunkRows sets the rows per chunk used by new writers.
func WithChunkRows(n int) Option { return func(o *storeOptions) { o.chunkRows = n } }

// WithCacheChunks sets how many decoded chunks are kept in memory.
func WithCacheChunks(n int) Option { return func(o *storeOptions) { o.cacheChunks = n } }

// WithLevel sets the zstd level of new chunks.
func WithLevel(l zstd.EncoderLevel) Option { return func(o *storeOptions) { o.level = l } }

// NewStore wraps blobs.
func NewStore(blobs blob.Store, opts ...Option) (*Store, error) {
	o := storeOptions{chunkRows: DefaultChunkRows, cacheChunks: DefaultCacheChunks, level: zstd.SpeedDefault}
	for _, opt := range opts {
		opt(&o)
	}
	if o.chunkRows <= 0 {
		return nil, fmt.Errorf("chunk rows must be positive, got %d", o.chunkRows)
	}
	if o.cacheChunks <= 0 {
		o.cacheChunks = 1
	}
	cache, err := lru.New[string, []domain.GenotypesList](o.cacheChunks)
	if err != nil {
		return nil, fmt.Errorf("chunk cache: %w", err)
	}
	c, err := newCodec(o.level)
	if err != nil {
		return nil, err
	}
	return &Store{blobs: blobs, chunkRows: o.chunkRows, codec: c, cache: cache}, nil
}

// Open builds a Store on the blob backend selected by the environment:
//
//	GENOMATRIX_CHUNK_ROWS   rows per chunk (default 256)
//	GENOMATRIX_CHUNK_CACHE  decoded chunks kept in memory (default 64)
func Open(ctx context.Context) (*Store, error) {
	blobs, err := blob.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return NewStore(blobs,
		WithChunkRows(logging.EnvInt("GENOMATRIX_CHUNK_ROWS", DefaultChunkRows)),
		WithCacheChunks(logging.EnvInt("GENOMATRIX_CHUNK_CACHE", DefaultCacheChunks)),
	)
}

// Blobs exposes the underlying blob store.
func (s *Store) Blobs() blob.Store { return s.blobs }

// Close releases codec resources and drops the cache.
func (s *Store) Close() error {
	s.cache.Purge()
	s.codec.close()
	return nil
}

// Manifest loads and validates the manifest of key. A missing manifest, even with
// chunks present, reports domain.ErrNotFound: the matrix was never committed.
func (s *Store) Manifest(ctx context.Context, key domain.MatrixKey) (ArrayMeta, error) {
	prefix, err := matrixPrefix(key)
	if err != nil {
		return ArrayMeta{}, err
	}
	b, err := blob.ReadAll(ctx, s.blobs, prefix+manifestName)
	if errors.Is(err, blob.ErrNotFound) {
		return ArrayMeta{}, domain.ErrNotFound{Entity: domain.EntityMatrix, Key: key.String()}
	}
	if err != nil {
		return ArrayMeta{}, fmt.Errorf("read manifest %s: %w", key, err)
	}
	var meta ArrayMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		return ArrayMeta{}, fmt.Errorf("decode manifest %s: %w", key, err)
	}
	if err := meta.Validate(); err != nil {
		return ArrayMeta{}, fmt.Errorf("matrix %s: %w", key, err)
	}
	return meta, nil
}

// ReadRange returns rows [from,to) of dimension dim. The range is validated
// against the dimension length before any blob is fetched. Reading along the
// layout touches only the covering chunks; reading across it scans every chunk
// once and gathers the requested columns. Returned rows never share memory with
// the chunk cache.
func (s *Store) ReadRange(ctx context.Context, key domain.MatrixKey, dim domain.Orientation, from, to int) ([]domain.GenotypesList, error) {
	meta, err := s.Manifest(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.readRange(ctx, key, meta, dim, from, to)
}

func (s *Store) readRange(ctx context.Context, key domain.MatrixKey, meta ArrayMeta, dim domain.Orientation, from, to int) ([]domain.GenotypesList, error) {
	if !dim.Valid() {
		return nil, fmt.Errorf("read range: invalid dimension %q", dim)
	}
	n := meta.Len(dim)
	if from < 0 || to > n || from > to {
		return nil, fmt.Errorf("read %s rows [%d,%d) of %s: %w", dim, from, to, key, domain.ErrOutOfRange{Index: to, Len: n})
	}
	if from == to {
		return []domain.GenotypesList{}, nil
	}
	if dim == meta.Layout {
		return s.readAlong(ctx, key, meta, from, to)
	}
	return s.readAcross(ctx, key, meta, from, to)
}

func (s *Store) readAlong(ctx context.Context, key domain.MatrixKey, meta ArrayMeta, from, to int) ([]domain.GenotypesList, error) {
	out := make([]domain.GenotypesList, 0, to-from)
	for c := from / meta.ChunkRows; c*meta.ChunkRows < to; c++ {
		rows, err := s.chunk(ctx, key, meta, c)
		if err != nil {
			return nil, err
		}
		base := c * meta.ChunkRows
		lo, hi := max(from, base)-base, min(to, base+len(rows))-base
		for _, row := range rows[lo:hi] {
			out = append(out, row.Clone())
		}
	}
	return out, nil
}

func (s *Store) readAcross(ctx context.Context, key domain.MatrixKey, meta ArrayMeta, from, to int) ([]domain.GenotypesList, error) {
	along := meta.Len(meta.Layout)
	out := make([]domain.GenotypesList, to-from)
	for i := range out {
		out[i] = make(domain.GenotypesList, along)
	}
	for c := 0; c < meta.Chunks; c++ {
		rows, err := s.chunk(ctx, key, meta, c)
		if err != nil {
			return nil, err
		}
		base := c * meta.ChunkRows
		for r, row := range rows {
			for col := from; col < to; col++ {
				out[col-from][base+r] = row[col]
			}
		}
	}
	return out, nil
}

// chunk returns decoded chunk c, from cache when possible.
func (s *Store) chunk(ctx context.Context, key domain.MatrixKey, meta ArrayMeta, c int) ([]domain.GenotypesList, error) {
	prefix, err := matrixPrefix(key)
	if err != nil {
		return nil, err
	}
	name := prefix + chunkName(c)
	if rows, ok := s.cache.Get(name); ok {
		return rows, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := blob.ReadAll(ctx, s.blobs, name)
	if err != nil {
		return nil, fmt.Errorf("read chunk %d of %s: %w", c, key, err)
	}
	want := min(meta.ChunkRows, meta.Len(meta.Layout)-c*meta.ChunkRows)
	rows, err := s.codec.decode(b, want, meta.RowLen(meta.Layout))
	if err != nil {
		return nil, fmt.Errorf("chunk %d of %s: %w", c, key, err)
	}
	s.cache.Add(name, rows)
	return rows, nil
}

// OpenMatrix implements source.MatrixOpener. Descriptor documents are loaded on
// first access; genotypes are never loaded eagerly.
func (s *Store) OpenMatrix(ctx context.Context, key domain.MatrixKey) (source.DataSetSource, error) {
	meta, err := s.Manifest(ctx, key)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("matrix", key.String()).Ints("shape", meta.Shape[:]).Str("layout", string(meta.Layout)).Msg("opened chunked matrix")
	return newSource(ctx, s, key, meta), nil
}

// List returns the keys of committed matrices.
func (s *Store) List(ctx context.Context) ([]domain.MatrixKey, error) {
	infos, err := s.blobs.List(ctx, "matrices/")
	if err != nil {
		return nil, err
	}
	var out []domain.MatrixKey
	for _, inf := range infos {
		rest, ok := strings.CutSuffix(strings.TrimPrefix(inf.Key, "matrices/"), "/"+manifestName)
		if !ok {
			continue
		}
		study, matrix, ok := strings.Cut(rest, "/")
		if !ok || strings.Contains(matrix, "/") {
			continue
		}
		out = append(out, domain.MatrixKey{StudyID: study, MatrixID: matrix})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// Delete removes every blob of key, committed or partial.
func (s *Store) Delete(ctx context.Context, key domain.MatrixKey) (int, error) {
	prefix, err := matrixPrefix(key)
	if err != nil {
		return 0, err
	}
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Remove(k)
		}
	}
	return blob.DeletePrefix(ctx, s.blobs, prefix)
}

func (s *Store) readDoc(ctx context.Context, key domain.MatrixKey, name string, v any) error {
	prefix, err := matrixPrefix(key)
	if err != nil {
		return err
	}
	b, err := blob.ReadAll(ctx, s.blobs, prefix+name)
	if err != nil {
		return fmt.Errorf("read %s of %s: %w", name, key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s of %s: %w", name, key, err)
	}
	return nil
}

func (s *Store) writeDoc(ctx context.Context, key domain.MatrixKey, name string, v any) error {
	prefix, err := matrixPrefix(key)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s of %s: %w", name, key, err)
	}
	if _, err := blob.PutBytes(ctx, s.blobs, prefix+name, b, blob.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write %s of %s: %w", name, key, err)
	}
	return nil
}
