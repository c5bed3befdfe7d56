package source_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"genomatrix/internal/infra/source/memory"
	"genomatrix/internal/projection"
	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

var alleles = []byte("ACGT")

func genotypeAt(sample, marker int) domain.Genotype {
	return domain.NewGenotype(alleles[(sample+marker)%4], alleles[(sample*3+marker)%4])
}

func newMatrix(t *testing.T, key domain.MatrixKey, markers, samples int) *memory.Source {
	t.Helper()
	mm := make([]domain.MarkerMetadata, markers)
	for i := range mm {
		mm[i] = domain.MarkerMetadata{Key: domain.MarkerKey{ID: fmt.Sprintf("M%d", i+1)}, Chromosome: fmt.Sprint(1 + i/3), Position: int64(1000 + i)}
	}
	ss := make([]domain.SampleInfo, samples)
	rows := make([]domain.GenotypesList, samples)
	for s := range ss {
		ss[s] = domain.SampleInfo{Key: domain.SampleKey{StudyID: key.StudyID, SampleID: fmt.Sprintf("S%d", s+1)}, Sex: domain.Sex(s % 3)}
		rows[s] = make(domain.GenotypesList, markers)
		for m := range rows[s] {
			rows[s][m] = genotypeAt(s, m)
		}
	}
	src, err := memory.NewSource(key, mm, ss, rows)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return src
}

func markerIDs(t *testing.T, src source.DataSetSource) []string {
	t.Helper()
	keys, err := projection.Collect[domain.MarkerKey](src.Markers().Keys())
	if err != nil {
		t.Fatalf("collect marker keys: %v", err)
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.ID
	}
	return out
}

func TestFilter_ProjectsKeysMetadataAndRows(t *testing.T) {
	root := newMatrix(t, domain.MatrixKey{StudyID: "st", MatrixID: "m"}, 6, 4)
	view := source.Filter(root, []int{1, 3, 4}, []int{0, 2})
	if err := source.CheckAlignment(view); err != nil {
		t.Fatalf("alignment: %v", err)
	}
	if err := source.CheckRowLengths(view); err != nil {
		t.Fatalf("row lengths: %v", err)
	}
	if diff := cmp.Diff([]string{"M2", "M4", "M5"}, markerIDs(t, view)); diff != "" {
		t.Fatalf("marker keys (-want +got):\n%s", diff)
	}
	row, err := view.Samples().Genotypes().At(1)
	if err != nil {
		t.Fatalf("sample row: %v", err)
	}
	want := domain.GenotypesList{genotypeAt(2, 1), genotypeAt(2, 3), genotypeAt(2, 4)}
	if !row.Equal(want) {
		t.Fatalf("sample row: got %v want %v", row, want)
	}
	mrow, err := view.Markers().Genotypes().At(2)
	if err != nil {
		t.Fatalf("marker row: %v", err)
	}
	if !mrow.Equal(domain.GenotypesList{genotypeAt(0, 4), genotypeAt(2, 4)}) {
		t.Fatalf("marker row mismatch: %v", mrow)
	}
}

func TestFilter_NilIndicesKeepDimension(t *testing.T) {
	root := newMatrix(t, domain.MatrixKey{StudyID: "st", MatrixID: "m"}, 3, 5)
	view := source.Filter(root, nil, []int{4})
	if view.Markers().Len() != 3 || view.Samples().Len() != 1 {
		t.Fatalf("dims: %d x %d", view.Markers().Len(), view.Samples().Len())
	}
	row, err := view.Markers().Genotypes().At(0)
	if err != nil || len(row) != 1 || row[0] != genotypeAt(4, 0) {
		t.Fatalf("marker row projected on samples: %v %v", row, err)
	}
}

func TestFilter_ChainedIndicesResolveToOriginal(t *testing.T) {
	root := newMatrix(t, domain.MatrixKey{StudyID: "st", MatrixID: "m"}, 8, 2)
	first := source.Filter(root, []int{1, 2, 5, 6, 7}, nil)
	second := source.Filter(first, []int{0, 2, 4}, nil)

	orig, err := projection.Collect(second.Markers().Keys().Indices())
	if err != nil {
		t.Fatalf("indices: %v", err)
	}
	if diff := cmp.Diff([]int{1, 5, 7}, orig); diff != "" {
		t.Fatalf("original indices (-want +got):\n%s", diff)
	}
	var pairs []string
	if err := second.Markers().Keys().IndicesMapping().Each(func(i int, k domain.MarkerKey) error {
		pairs = append(pairs, fmt.Sprintf("%d=%s", i, k.ID))
		return nil
	}); err != nil {
		t.Fatalf("indices mapping: %v", err)
	}
	if diff := cmp.Diff([]string{"1=M2", "5=M6", "7=M8"}, pairs); diff != "" {
		t.Fatalf("indices mapping (-want +got):\n%s", diff)
	}
	if second.OrigSource() != source.DataSetSource(root) {
		t.Fatalf("orig source should be the stored root")
	}
	if second.OrigSource() != second.OrigSource() {
		t.Fatalf("orig source must be stable")
	}
}

func TestFilter_OutOfRangeSurfacesOnAccess(t *testing.T) {
	root := newMatrix(t, domain.MatrixKey{StudyID: "st", MatrixID: "m"}, 2, 2)
	view := source.Filter(root, []int{0, 9}, nil)
	if _, err := view.Markers().Keys().At(1); err == nil {
		t.Fatalf("expected access past the end to fail")
	}
	var oor domain.ErrOutOfRange
	if _, err := view.Markers().Metadata().At(1); !errors.As(err, &oor) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestCheckAlignment_DetectsMismatch(t *testing.T) {
	keys := source.NewRootKeys[domain.MarkerKey](projection.Slice[domain.MarkerKey]{{ID: "a"}, {ID: "b"}})
	dim := source.NewDimension[domain.MarkerKey, domain.MarkerMetadata](keys, projection.Slice[domain.MarkerMetadata]{{}}, projection.Slice[domain.GenotypesList]{nil, nil})
	src := stubSource{markers: dim, samples: source.NewDimension[domain.SampleKey, domain.SampleInfo](source.NewRootKeys[domain.SampleKey](projection.Slice[domain.SampleKey]{}), projection.Slice[domain.SampleInfo]{}, projection.Slice[domain.GenotypesList]{})}
	err := source.CheckAlignment(src)
	var mis domain.ErrMisaligned
	if !errors.As(err, &mis) || mis.Dimension != "marker" || mis.Metadata != 1 {
		t.Fatalf("expected marker misalignment, got %v", err)
	}
}

type stubSource struct {
	markers source.MarkerDimension
	samples source.SampleDimension
	closed  *int
}

func (s stubSource) Key() domain.DataSetKey {
	return domain.NewMatrixDataSetKey(domain.MatrixKey{StudyID: "stub", MatrixID: "stub"})
}
func (s stubSource) Markers() source.MarkerDimension { return s.markers }
func (s stubSource) Samples() source.SampleDimension { return s.samples }
func (s stubSource) Orientation() domain.Orientation { return domain.PerSample }
func (s stubSource) Parent() source.DataSetSource { return nil }
func (s stubSource) OrigSource() source.DataSetSource { return s }
func (s stubSource) Close() error {
	if s.closed != nil {
		*s.closed++
	}
	return nil
}

type opLookup map[string]domain.OperationMetadata

func (o opLookup) GetOperation(key domain.OperationKey) (domain.OperationMetadata, bool) {
	op, ok := o[key.String()]
	return op, ok
}

func TestResolver_OperationChain(t *testing.T) {
	mk := domain.MatrixKey{StudyID: "st", MatrixID: "root"}
	reg := memory.NewRegistry()
	if err := reg.Register(newMatrix(t, mk, 6, 3)); err != nil {
		t.Fatalf("register: %v", err)
	}
	op1 := domain.OperationMetadata{Key: domain.OperationKey{Matrix: mk, ID: "op1"}, MarkerIndices: []int{0, 2, 3, 5}}
	op2 := domain.OperationMetadata{Key: domain.OperationKey{Matrix: mk, ID: "op2", ParentOperation: "op1"}, MarkerIndices: []int{1, 3}, SampleIndices: []int{2}}
	ops := opLookup{op1.Key.String(): op1, op2.Key.String(): op2}
	r := source.NewResolver(ops, reg)

	key, err := domain.ParseDataSetKey("operation:st/root/op2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	src, err := r.Resolve(context.Background(), key)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer src.Close()
	if diff := cmp.Diff([]string{"M3", "M6"}, markerIDs(t, src)); diff != "" {
		t.Fatalf("markers (-want +got):\n%s", diff)
	}
	if src.Samples().Len() != 1 {
		t.Fatalf("samples: %d", src.Samples().Len())
	}
	if !src.Key().IsOperation() || src.Key().Operation.ID != "op2" {
		t.Fatalf("resolved key: %v", src.Key())
	}
	if src.OrigSource().Key() != domain.NewMatrixDataSetKey(mk) {
		t.Fatalf("orig source: %v", src.OrigSource().Key())
	}
}

func TestResolver_NotFound(t *testing.T) {
	r := source.NewResolver(opLookup{}, memory.NewRegistry())
	_, err := r.Resolve(context.Background(), domain.NewMatrixDataSetKey(domain.MatrixKey{StudyID: "x", MatrixID: "y"}))
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityMatrix {
		t.Fatalf("expected matrix not found, got %v", err)
	}
	_, err = r.Resolve(context.Background(), domain.NewOperationDataSetKey(domain.OperationKey{Matrix: domain.MatrixKey{StudyID: "x", MatrixID: "y"}, ID: "z"}))
	if !errors.As(err, &nf) || nf.Entity != domain.EntityOperation {
		t.Fatalf("expected operation not found, got %v", err)
	}
}

type stubOpener struct{ src stubSource }

func (s stubOpener) OpenMatrix(context.Context, domain.MatrixKey) (source.DataSetSource, error) {
	return s.src, nil
}

func TestResolver_CloseReleasesAncestors(t *testing.T) {
	closed := 0
	mk := domain.MatrixKey{StudyID: "stub", MatrixID: "stub"}
	empty := source.NewDimension[domain.MarkerKey, domain.MarkerMetadata](source.NewRootKeys[domain.MarkerKey](projection.Slice[domain.MarkerKey]{{ID: "a"}}), projection.Slice[domain.MarkerMetadata]{{}}, projection.Slice[domain.GenotypesList]{{}})
	stub := stubSource{markers: empty, samples: source.NewDimension[domain.SampleKey, domain.SampleInfo](source.NewRootKeys[domain.SampleKey](projection.Slice[domain.SampleKey]{}), projection.Slice[domain.SampleInfo]{}, projection.Slice[domain.GenotypesList]{}), closed: &closed}
	op := domain.OperationMetadata{Key: domain.OperationKey{Matrix: mk, ID: "op"}}
	r := source.NewResolver(opLookup{op.Key.String(): op}, stubOpener{src: stub})
	src, err := r.Resolve(context.Background(), domain.NewOperationDataSetKey(op.Key))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed != 1 {
		t.Fatalf("root handle should be closed once, got %d", closed)
	}
}

func TestResolver_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := source.NewResolver(nil).Resolve(ctx, domain.NewMatrixDataSetKey(domain.MatrixKey{StudyID: "a", MatrixID: "b"})); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
