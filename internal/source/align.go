package source

import (
	"fmt"

	"genomatrix/internal/projection"
	"genomatrix/pkg/domain"
)

// CheckAlignment verifies that keys, metadata and genotype rows of each dimension
// have the same length.
func CheckAlignment(src DataSetSource) error {
	if err := checkDimension("marker", src.Markers()); err != nil {
		return err
	}
	return checkDimension("sample", src.Samples())
}

func checkDimension[K comparable, M any](name string, d Dimension[K, M]) error {
	k, m, g := d.Keys().Len(), d.Metadata().Len(), d.Genotypes().Len()
	if k != m || k != g {
		return domain.ErrMisaligned{Dimension: name, Keys: k, Metadata: m, Genotypes: g}
	}
	return nil
}

// CheckRowLengths reads every row along the source's orientation and verifies it
// spans the sibling dimension. It reads the whole matrix and is meant for tests and
// import validation.
func CheckRowLengths(src DataSetSource) error {
	if src.Orientation() == domain.PerMarker {
		return checkRows("marker", src.Markers().Genotypes(), src.Samples().Len())
	}
	return checkRows("sample", src.Samples().Genotypes(), src.Markers().Len())
}

func checkRows(name string, rows projection.Sequence[domain.GenotypesList], want int) error {
	return projection.Each(rows, func(i int, row domain.GenotypesList) error {
		if len(row) != want {
			return fmt.Errorf("%s row %d has %d genotypes, want %d", name, i, len(row), want)
		}
		return nil
	})
}
