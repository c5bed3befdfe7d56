package chunked

import (
	"context"
	"fmt"

	"genomatrix/internal/blob"
	"genomatrix/pkg/domain"
)

// Writer appends genotype rows of one matrix along its layout and writes a
// chunk every chunkRows rows. Rows are append-only: index i must follow i-1.
type Writer struct {
	store  *Store
	key    domain.MatrixKey
	prefix string
	layout domain.Orientation
	rowLen int
	next   int
	chunks int
	buf    []domain.GenotypesList
}

// NewWriter starts the chunk stream of key. rowLen is the genotype count of each
// row, i.e. the length of the dimension across the layout.
func (s *Store) NewWriter(key domain.MatrixKey, layout domain.Orientation, rowLen int) (*Writer, error) {
	prefix, err := matrixPrefix(key)
	if err != nil {
		return nil, err
	}
	if !layout.Valid() {
		return nil, fmt.Errorf("writer layout %q invalid", layout)
	}
	return &Writer{store: s, key: key, prefix: prefix, layout: layout, rowLen: rowLen, buf: make([]domain.GenotypesList, 0, s.chunkRows)}, nil
}

// WriteRow buffers row index and flushes a full chunk.
func (w *Writer) WriteRow(ctx context.Context, index int, row domain.GenotypesList) error {
	if index != w.next {
		return fmt.Errorf("write %s row %d of %s: expected row %d", w.layout, index, w.key, w.next)
	}
	if len(row) != w.rowLen {
		return fmt.Errorf("write %s row %d of %s: %d genotypes, want %d", w.layout, index, w.key, len(row), w.rowLen)
	}
	w.buf = append(w.buf, row.Clone())
	w.next++
	if len(w.buf) == w.store.chunkRows {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes buffered rows as the next chunk. A partial chunk is only legal as
// the last one.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	body := w.store.codec.encode(w.buf)
	name := w.prefix + chunkName(w.chunks)
	if _, err := blob.PutBytes(ctx, w.store.blobs, name, body, blob.PutOptions{ContentType: "application/zstd"}); err != nil {
		return fmt.Errorf("write chunk %d of %s: %w", w.chunks, w.key, err)
	}
	logger.Debug().Str("matrix", w.key.String()).Int("chunk", w.chunks).Int("rows", len(w.buf)).Int("bytes", len(body)).Msg("chunk written")
	w.chunks++
	w.buf = w.buf[:0]
	return nil
}

// Rows is the number of rows accepted so far.
func (w *Writer) Rows() int { return w.next }

// Chunks is the number of chunks written so far.
func (w *Writer) Chunks() int { return w.chunks }

// Manifest describes what the writer produced once all rows are flushed.
func (w *Writer) Manifest(meta domain.MatrixMetadata) ArrayMeta {
	return ArrayMeta{
		Format:      FormatVersion,
		Shape:       [2]int{meta.MarkerCount, meta.SampleCount},
		Layout:      w.layout,
		ChunkRows:   w.store.chunkRows,
		Chunks:      w.chunks,
		Compressor:  w.store.codec.meta(),
		Encoding:    meta.Encoding,
		Chromosomes: meta.Chromosomes,
		CreatedAt:   meta.CreatedAt,
	}
}
