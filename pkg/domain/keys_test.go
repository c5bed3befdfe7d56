package domain

import (
	"errors"
	"testing"
)

func TestDataSetKeyTextRoundTrip(t *testing.T) {
	m := MatrixKey{StudyID: "st", MatrixID: "m1"}
	keys := []DataSetKey{
		NewMatrixDataSetKey(m),
		NewOperationDataSetKey(OperationKey{Matrix: m, ID: "op1"}),
	}
	for _, k := range keys {
		got, err := ParseDataSetKey(k.String())
		if err != nil {
			t.Fatalf("parse %s: %v", k, err)
		}
		if got != k {
			t.Fatalf("round trip of %s gave %+v", k, got)
		}
	}
}

func TestParseDataSetKeyRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "st/m1", "matrix:st", "matrix:st/", "matrix:/m1", "operation:st/m1", "operation:st/m1/", "table:st/m1"} {
		if _, err := ParseDataSetKey(s); err == nil {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestOperationKeyParent(t *testing.T) {
	m := MatrixKey{StudyID: "st", MatrixID: "m1"}
	root := OperationKey{Matrix: m, ID: "a"}
	if p := root.Parent(); !p.IsMatrix() || p.Matrix != m {
		t.Fatalf("expected matrix parent, got %+v", p)
	}
	child := OperationKey{Matrix: m, ID: "b", ParentOperation: "a"}
	p := child.Parent()
	if !p.IsOperation() || p.Operation.ID != "a" || p.Matrix != m {
		t.Fatalf("expected operation parent a, got %+v", p)
	}
	if child.String() != "st/m1/b" {
		t.Fatalf("parent operation must not leak into the key text: %s", child)
	}
}

func TestSampleKeyString(t *testing.T) {
	if got := (SampleKey{SampleID: "s"}).String(); got != "s" {
		t.Fatalf("got %q", got)
	}
	if got := (SampleKey{StudyID: "st", SampleID: "s"}).String(); got != "st:s" {
		t.Fatalf("got %q", got)
	}
}

func TestErrorsMatchByType(t *testing.T) {
	var err error = ErrNotFound{Entity: EntityMatrix, Key: "st/m1"}
	var nf ErrNotFound
	if !errors.As(err, &nf) || nf.Error() != "matrix st/m1 not found" {
		t.Fatalf("unexpected %v", err)
	}
	if got := (ErrOutOfRange{Index: 5, Len: 3}).Error(); got != "index 5 out of range [0,3)" {
		t.Fatalf("unexpected %q", got)
	}
}
