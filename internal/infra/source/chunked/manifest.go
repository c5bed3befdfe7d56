// Package chunked implements the file-backed dataset backend. A matrix is a
// directory of blobs: a JSON manifest, marker and sample descriptor documents,
// and zstd-compressed chunks holding a fixed number of genotype rows each. Reads
// fetch only the chunks covering the requested range and keep recently used
// chunks in a bounded LRU cache.
package chunked

import (
	"fmt"
	"strings"
	"time"

	"genomatrix/pkg/domain"
)

// FormatVersion is the manifest format this package reads and writes.
const FormatVersion = 1

// CompressionMeta identifies the chunk codec.
type CompressionMeta struct {
	ID    string `json:"id"`
	Level int    `json:"level,omitempty"`
}

// ArrayMeta is the manifest of a stored matrix. Shape is (markers, samples);
// Layout names the dimension chunk rows run along.
type ArrayMeta struct {
	Format      int                     `json:"format"`
	Shape       [2]int                  `json:"shape"`
	Layout      domain.Orientation      `json:"layout"`
	ChunkRows   int                     `json:"chunk_rows"`
	Chunks      int                     `json:"chunks"`
	Compressor  CompressionMeta         `json:"compressor"`
	Encoding    domain.GenotypeEncoding `json:"encoding"`
	Chromosomes []domain.ChromosomeInfo `json:"chromosomes,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// Markers is the marker count.
func (m ArrayMeta) Markers() int { return m.Shape[0] }

// Samples is the sample count.
func (m ArrayMeta) Samples() int { return m.Shape[1] }

// Len returns the length of dimension dim.
func (m ArrayMeta) Len(dim domain.Orientation) int {
	if dim == domain.PerMarker {
		return m.Markers()
	}
	return m.Samples()
}

// RowLen is the number of genotypes in a row of dimension dim.
func (m ArrayMeta) RowLen(dim domain.Orientation) int {
	if dim == domain.PerMarker {
		return m.Samples()
	}
	return m.Markers()
}

// Validate checks a decoded manifest before it is trusted.
func (m ArrayMeta) Validate() error {
	if m.Format != FormatVersion {
		return fmt.Errorf("manifest format %d not supported", m.Format)
	}
	if m.Shape[0] < 0 || m.Shape[1] < 0 {
		return fmt.Errorf("manifest shape %v invalid", m.Shape)
	}
	if !m.Layout.Valid() {
		return fmt.Errorf("manifest layout %q invalid", m.Layout)
	}
	if m.ChunkRows <= 0 {
		return fmt.Errorf("manifest chunk_rows %d invalid", m.ChunkRows)
	}
	if want := chunkCount(m.Len(m.Layout), m.ChunkRows); m.Chunks != want {
		return fmt.Errorf("manifest lists %d chunks, shape needs %d", m.Chunks, want)
	}
	if m.Compressor.ID != codecID {
		return fmt.Errorf("manifest compressor %q not supported", m.Compressor.ID)
	}
	return nil
}

func chunkCount(rows, chunkRows int) int {
	return (rows + chunkRows - 1) / chunkRows
}

// Blob layout under a matrix prefix.
const (
	manifestName = "manifest.json"
	markersName  = "markers.json"
	samplesName  = "samples.json"
	chunksDir    = "chunks/"
)

// matrixPrefix maps a key to its blob directory.
func matrixPrefix(key domain.MatrixKey) (string, error) {
	for _, part := range []string{key.StudyID, key.MatrixID} {
		if part == "" || strings.ContainsAny(part, "/\\") || strings.Contains(part, "..") {
			return "", fmt.Errorf("matrix key %q not storable", key.String())
		}
	}
	return "matrices/" + key.StudyID + "/" + key.MatrixID + "/", nil
}

func chunkName(i int) string { return fmt.Sprintf("%s%06d", chunksDir, i) }
