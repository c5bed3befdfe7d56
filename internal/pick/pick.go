package pick

import (
	"context"
	"errors"
	"fmt"

	"genomatrix/internal/logging"
	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

var logger = logging.Component("pick")

// ErrExternalMarkers is returned for external-field cases on the marker dimension.
var ErrExternalMarkers = errors.New("external field picks are only supported for samples")

// Selection is the outcome of a pick over one dimension. Positions index the
// picked source's own dimension; OrigIndices are the same entities in the stored
// root's index space. All slices are parallel and ascending.
type Selection[M any] struct {
	Positions   []int
	OrigIndices []int
	Items       []M
	Criteria    Criteria
}

// Len is the number of retained entities.
func (s Selection[M]) Len() int { return len(s.Positions) }

// Empty reports whether nothing was retained.
func (s Selection[M]) Empty() bool { return len(s.Positions) == 0 }

// FieldStore resolves externally curated per-sample fields. It returns the
// samples of matrix whose field equals one of values, each with its original
// index in that matrix.
type FieldStore interface {
	LookupSampleField(ctx context.Context, matrix domain.MatrixKey, field string, values []string) (map[domain.SampleKey]int, error)
}

// ExternalFields binds a FieldStore to the stored matrix the picked dimension
// originates from.
type ExternalFields struct {
	Store  FieldStore
	Matrix domain.MatrixKey
}

// PickMarkers selects markers of dim. BY_ID cases compare the marker id.
func PickMarkers(ctx context.Context, dim source.MarkerDimension, p Params) (Selection[domain.MarkerMetadata], error) {
	if err := ctx.Err(); err != nil {
		return Selection[domain.MarkerMetadata]{}, err
	}
	crit, err := LoadCriteria(p)
	if err != nil {
		return Selection[domain.MarkerMetadata]{}, err
	}
	var match func(orig int, key domain.MarkerKey, m domain.MarkerMetadata) bool
	switch {
	case p.Case == All:
	case p.Case.byID():
		ids := tokenSet(crit.Tokens())
		match = func(_ int, key domain.MarkerKey, _ domain.MarkerMetadata) bool {
			_, ok := ids[key.ID]
			return ok
		}
	case p.Case.byFieldValue():
		f, err := MarkerFields.lookup(p.Field)
		if err != nil {
			return Selection[domain.MarkerMetadata]{}, err
		}
		values, err := valueSet(f, crit.Tokens())
		if err != nil {
			return Selection[domain.MarkerMetadata]{}, err
		}
		match = func(_ int, _ domain.MarkerKey, m domain.MarkerMetadata) bool {
			_, ok := values[f.Value(m)]
			return ok
		}
	case p.Case.byExternalField():
		return Selection[domain.MarkerMetadata]{}, ErrExternalMarkers
	default:
		return Selection[domain.MarkerMetadata]{}, fmt.Errorf("unknown pick case %s", p.Case)
	}
	sel, err := scan(dim, crit, match)
	if err != nil {
		return sel, fmt.Errorf("pick markers: %w", err)
	}
	logger.Debug().Str("case", p.Case.String()).Int("scanned", dim.Len()).Int("retained", sel.Len()).Msg("markers picked")
	return sel, nil
}

// PickSamples selects samples of dim. BY_ID cases compare the sample id within
// its study. External cases need ext.
func PickSamples(ctx context.Context, dim source.SampleDimension, p Params, ext *ExternalFields) (Selection[domain.SampleInfo], error) {
	if err := ctx.Err(); err != nil {
		return Selection[domain.SampleInfo]{}, err
	}
	crit, err := LoadCriteria(p)
	if err != nil {
		return Selection[domain.SampleInfo]{}, err
	}
	var match func(orig int, key domain.SampleKey, s domain.SampleInfo) bool
	switch {
	case p.Case == All:
	case p.Case.byID():
		ids := tokenSet(crit.Tokens())
		match = func(_ int, key domain.SampleKey, _ domain.SampleInfo) bool {
			_, ok := ids[key.SampleID]
			return ok
		}
	case p.Case.byFieldValue():
		f, err := SampleFields.lookup(p.Field)
		if err != nil {
			return Selection[domain.SampleInfo]{}, err
		}
		values, err := valueSet(f, crit.Tokens())
		if err != nil {
			return Selection[domain.SampleInfo]{}, err
		}
		match = func(_ int, _ domain.SampleKey, s domain.SampleInfo) bool {
			_, ok := values[f.Value(s)]
			return ok
		}
	case p.Case.byExternalField():
		if ext == nil || ext.Store == nil {
			return Selection[domain.SampleInfo]{}, fmt.Errorf("pick samples: %s needs a sample field store", p.Case)
		}
		if p.Field == "" {
			return Selection[domain.SampleInfo]{}, fmt.Errorf("pick samples: %s needs a field", p.Case)
		}
		found, err := ext.Store.LookupSampleField(ctx, ext.Matrix, p.Field, crit.Tokens())
		if err != nil {
			return Selection[domain.SampleInfo]{}, fmt.Errorf("lookup sample field %s: %w", p.Field, err)
		}
		match = func(orig int, key domain.SampleKey, _ domain.SampleInfo) bool {
			idx, ok := found[key]
			return ok && idx == orig
		}
	default:
		return Selection[domain.SampleInfo]{}, fmt.Errorf("unknown pick case %s", p.Case)
	}
	sel, err := scan(dim, crit, match)
	if err != nil {
		return sel, fmt.Errorf("pick samples: %w", err)
	}
	logger.Debug().Str("case", p.Case.String()).Int("scanned", dim.Len()).Int("retained", sel.Len()).Msg("samples picked")
	return sel, nil
}

// scan walks the dimension once in index order. A nil match retains everything.
func scan[K comparable, M any](dim source.Dimension[K, M], crit Criteria, match func(int, K, M) bool) (Selection[M], error) {
	sel := Selection[M]{Criteria: crit}
	if dim.Keys() == nil {
		return sel, nil
	}
	metadata := dim.Metadata()
	if metadata.Len() != dim.Len() {
		return sel, domain.ErrMisaligned{Dimension: "picked", Keys: dim.Len(), Metadata: metadata.Len(), Genotypes: dim.Genotypes().Len()}
	}
	include := crit.Case.IsInclude()
	pos := 0
	err := dim.Keys().IndicesMapping().Each(func(orig int, key K) error {
		m, err := metadata.At(pos)
		if err != nil {
			return fmt.Errorf("metadata %d: %w", pos, err)
		}
		if match == nil || match(orig, key, m) == include {
			sel.Positions = append(sel.Positions, pos)
			sel.OrigIndices = append(sel.OrigIndices, orig)
			sel.Items = append(sel.Items, m)
		}
		pos++
		return nil
	})
	if err != nil {
		return Selection[M]{Criteria: crit}, err
	}
	return sel, nil
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
