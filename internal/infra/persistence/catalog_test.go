package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"genomatrix/internal/infra/persistence/sqlite"
	"genomatrix/pkg/domain"
)

var rootKey = domain.MatrixKey{StudyID: "s1", MatrixID: "root"}

func seeded(t *testing.T) *Catalog {
	t.Helper()
	c := NewMemoryCatalog()
	if _, err := c.CreateMatrix(context.Background(), domain.MatrixMetadata{Key: rootKey, SampleCount: 4}); err != nil {
		t.Fatalf("CreateMatrix: %v", err)
	}
	return c
}

func TestLookupSampleField(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	sk := func(id string) domain.SampleKey { return domain.SampleKey{StudyID: "s1", SampleID: id} }
	records := []domain.SampleFieldRecord{
		{Sample: sk("a"), OrigIndex: 0, Fields: map[string]string{"batch": "b1", "site": "north"}},
		{Sample: sk("b"), OrigIndex: 1, Fields: map[string]string{"batch": "b2"}},
		{Sample: sk("c"), OrigIndex: 3, Fields: map[string]string{"batch": "b1"}},
	}
	if err := c.PutSampleFields(ctx, rootKey, records); err != nil {
		t.Fatalf("PutSampleFields: %v", err)
	}
	got, err := c.LookupSampleField(ctx, rootKey, "batch", []string{"b1", "b9"})
	if err != nil {
		t.Fatalf("LookupSampleField: %v", err)
	}
	want := map[domain.SampleKey]int{sk("a"): 0, sk("c"): 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lookup mismatch (-want +got):\n%s", diff)
	}
	got, err = c.LookupSampleField(ctx, rootKey, "site", []string{"south"})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty match, got %v %v", got, err)
	}
	_, err = c.LookupSampleField(ctx, domain.MatrixKey{StudyID: "s1", MatrixID: "nope"}, "batch", []string{"b1"})
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLineageFollowsOperationsAndExtractedMatrices(t *testing.T) {
	ctx := context.Background()
	c := seeded(t)
	if _, err := c.CreateOperation(ctx, domain.OperationMetadata{Key: domain.OperationKey{Matrix: rootKey, ID: "op1"}}); err != nil {
		t.Fatalf("op1: %v", err)
	}
	op2 := domain.OperationKey{Matrix: rootKey, ID: "op2", ParentOperation: "op1"}
	if _, err := c.CreateOperation(ctx, domain.OperationMetadata{Key: op2}); err != nil {
		t.Fatalf("op2: %v", err)
	}
	parent := domain.NewOperationDataSetKey(op2)
	extracted := domain.MatrixKey{StudyID: "s1", MatrixID: "x1"}
	if _, err := c.CreateMatrix(ctx, domain.MatrixMetadata{Key: extracted, Parent: &parent}); err != nil {
		t.Fatalf("extracted: %v", err)
	}

	got, err := c.Lineage(ctx, domain.NewMatrixDataSetKey(extracted))
	if err != nil {
		t.Fatalf("Lineage: %v", err)
	}
	var names []string
	for _, k := range got {
		names = append(names, k.String())
	}
	want := []string{"matrix:s1/x1", "operation:s1/root/op2", "operation:s1/root/op1", "matrix:s1/root"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("lineage mismatch (-want +got):\n%s", diff)
	}

	ops, err := c.ListOperations(ctx, rootKey)
	if err != nil || len(ops) != 2 {
		t.Fatalf("expected two operations, got %v %v", ops, err)
	}
	if err := c.DeleteMatrix(ctx, rootKey); err == nil {
		t.Fatalf("expected referenced matrix delete to fail")
	}
}

func TestLineageMissingDataset(t *testing.T) {
	c := seeded(t)
	_, err := c.Lineage(context.Background(), domain.NewOperationDataSetKey(domain.OperationKey{Matrix: rootKey, ID: "ghost"}))
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityOperation {
		t.Fatalf("expected missing operation, got %v", err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("GENOMATRIX_STORAGE_DRIVER", "memory")
	c, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(t.TempDir(), "meta.db")
	t.Setenv("GENOMATRIX_STORAGE_DRIVER", "SQLite")
	t.Setenv("GENOMATRIX_SQLITE_PATH", path)
	c, err = Open(context.Background())
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	defer func() { _ = c.Close() }()
	if s, ok := c.PersistentStore.(*sqlite.Store); !ok || s.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, c.PersistentStore)
	}

	t.Setenv("GENOMATRIX_STORAGE_DRIVER", "gibberish")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
