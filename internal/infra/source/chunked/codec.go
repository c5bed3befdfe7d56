package chunked

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"genomatrix/pkg/domain"
)

const codecID = "zstd"

// codec packs genotype rows as two bytes per call and compresses the chunk with
// zstd. EncodeAll and DecodeAll are safe for concurrent use.
type codec struct {
	level zstd.EncoderLevel
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

func newCodec(level zstd.EncoderLevel) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &codec{level: level, enc: enc, dec: dec}, nil
}

func (c *codec) meta() CompressionMeta {
	return CompressionMeta{ID: codecID, Level: int(c.level)}
}

func (c *codec) encode(rows []domain.GenotypesList) []byte {
	n := 0
	for _, r := range rows {
		n += 2 * len(r)
	}
	raw := make([]byte, 0, n)
	for _, r := range rows {
		for _, g := range r {
			raw = append(raw, g[0], g[1])
		}
	}
	return c.enc.EncodeAll(raw, nil)
}

// decode splits a chunk into rows of rowLen genotypes; want is the row count the
// manifest expects in this chunk.
func (c *codec) decode(b []byte, want, rowLen int) ([]domain.GenotypesList, error) {
	raw, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress chunk: %w", err)
	}
	if len(raw) != 2*want*rowLen {
		return nil, fmt.Errorf("chunk holds %d bytes, want %d rows of %d genotypes", len(raw), want, rowLen)
	}
	rows := make([]domain.GenotypesList, want)
	for i := range rows {
		row := make(domain.GenotypesList, rowLen)
		base := 2 * i * rowLen
		for j := range row {
			row[j] = domain.Genotype{raw[base+2*j], raw[base+2*j+1]}
		}
		rows[i] = row
	}
	return rows, nil
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}
