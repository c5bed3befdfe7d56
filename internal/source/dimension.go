package source

import (
	"genomatrix/internal/projection"
	"genomatrix/pkg/domain"
)

// Dimension is the index-aligned triad of one dataset dimension.
type Dimension[K comparable, M any] struct {
	keys      KeysSource[K]
	metadata  projection.Sequence[M]
	genotypes projection.Sequence[domain.GenotypesList]
}

// NewDimension assembles a dimension from its three streams.
func NewDimension[K comparable, M any](keys KeysSource[K], metadata projection.Sequence[M], genotypes projection.Sequence[domain.GenotypesList]) Dimension[K, M] {
	return Dimension[K, M]{keys: keys, metadata: metadata, genotypes: genotypes}
}

func (d Dimension[K, M]) Keys() KeysSource[K] { return d.keys }

func (d Dimension[K, M]) Metadata() projection.Sequence[M] { return d.metadata }

// Genotypes returns one row per entity of this dimension, each as long as the
// sibling dimension.
func (d Dimension[K, M]) Genotypes() projection.Sequence[domain.GenotypesList] { return d.genotypes }

// Len is the entity count of the dimension (the keys length).
func (d Dimension[K, M]) Len() int {
	if d.keys == nil {
		return 0
	}
	return d.keys.Len()
}

// filterDimension restricts rows of d to rowIdx and projects every genotype row on
// colIdx. A nil list keeps the whole dimension.
func filterDimension[K comparable, M any](d Dimension[K, M], rowIdx, colIdx []int) Dimension[K, M] {
	keys := d.keys
	metadata := d.metadata
	if rowIdx != nil {
		keys = FilterKeys(d.keys, rowIdx)
		metadata = projection.Filter(d.metadata, rowIdx)
	}
	return Dimension[K, M]{keys: keys, metadata: metadata, genotypes: projectRows(d.genotypes, rowIdx, colIdx)}
}

// projectedRows is a row sequence restricted to rows and with each row gathered at
// cols. Rows are read lazily; each access allocates only the projected row.
type projectedRows struct {
	wrapped projection.Sequence[domain.GenotypesList]
	rows    []int
	cols    []int
}

func projectRows(wrapped projection.Sequence[domain.GenotypesList], rows, cols []int) projection.Sequence[domain.GenotypesList] {
	if rows == nil && cols == nil {
		return wrapped
	}
	return projectedRows{wrapped: wrapped, rows: rows, cols: cols}
}

func (p projectedRows) Len() int {
	if p.rows == nil {
		return p.wrapped.Len()
	}
	return len(p.rows)
}

func (p projectedRows) At(i int) (domain.GenotypesList, error) {
	if i < 0 || i >= p.Len() {
		return nil, domain.ErrOutOfRange{Index: i, Len: p.Len()}
	}
	idx := i
	if p.rows != nil {
		idx = p.rows[i]
	}
	row, err := p.wrapped.At(idx)
	if err != nil {
		return nil, err
	}
	if p.cols == nil {
		return row, nil
	}
	return Gather(row, p.cols)
}

// Gather returns row[cols[0]], row[cols[1]], ... as a new row.
func Gather(row domain.GenotypesList, cols []int) (domain.GenotypesList, error) {
	out := make(domain.GenotypesList, len(cols))
	for j, c := range cols {
		if c < 0 || c >= len(row) {
			return nil, domain.ErrOutOfRange{Index: c, Len: len(row)}
		}
		out[j] = row[c]
	}
	return out, nil
}
