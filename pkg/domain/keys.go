package domain

import (
	"fmt"
	"strings"
)

// MatrixKey identifies a physically stored genotype matrix.
type MatrixKey struct {
	StudyID  string `json:"study_id"`
	MatrixID string `json:"matrix_id"`
}

// String renders the key as study/matrix.
func (k MatrixKey) String() string {
	return k.StudyID + "/" + k.MatrixID
}

// IsZero reports whether the key is unset.
func (k MatrixKey) IsZero() bool { return k.StudyID == "" && k.MatrixID == "" }

// OperationKey identifies a persisted result derived from a matrix or from another
// operation. Matrix always names the root matrix of the lineage chain; ParentOperation
// is empty when the direct parent is that matrix.
type OperationKey struct {
	Matrix          MatrixKey `json:"matrix"`
	ID              string    `json:"id"`
	ParentOperation string    `json:"parent_operation,omitempty"`
}

// Parent returns the dataset the operation was derived from.
func (k OperationKey) Parent() DataSetKey {
	if k.ParentOperation == "" {
		return NewMatrixDataSetKey(k.Matrix)
	}
	return NewOperationDataSetKey(OperationKey{Matrix: k.Matrix, ID: k.ParentOperation})
}

// String renders the key as study/matrix/operation.
func (k OperationKey) String() string {
	return k.Matrix.String() + "/" + k.ID
}

// DataSetKind discriminates the DataSetKey union.
type DataSetKind string

const (
	// DataSetMatrix marks a key referencing a stored matrix.
	DataSetMatrix DataSetKind = "matrix"
	// DataSetOperation marks a key referencing a derived operation.
	DataSetOperation DataSetKind = "operation"
)

// DataSetKey holds either a MatrixKey or an OperationKey. It is the parent
// reference used everywhere a source or filter needs to locate its origin.
type DataSetKey struct {
	Kind      DataSetKind  `json:"kind"`
	Matrix    MatrixKey    `json:"matrix"`
	Operation OperationKey `json:"operation,omitempty"`
}

// NewMatrixDataSetKey wraps a matrix key.
func NewMatrixDataSetKey(k MatrixKey) DataSetKey {
	return DataSetKey{Kind: DataSetMatrix, Matrix: k}
}

// NewOperationDataSetKey wraps an operation key. Matrix is set to the operation's
// root matrix so callers can always reach the study.
func NewOperationDataSetKey(k OperationKey) DataSetKey {
	return DataSetKey{Kind: DataSetOperation, Matrix: k.Matrix, Operation: k}
}

// IsMatrix reports whether the key references a stored matrix.
func (k DataSetKey) IsMatrix() bool { return k.Kind == DataSetMatrix }

// IsOperation reports whether the key references an operation.
func (k DataSetKey) IsOperation() bool { return k.Kind == DataSetOperation }

// String renders a stable textual form, e.g. "matrix:study/m1" or
// "operation:study/m1/op7". It round-trips through ParseDataSetKey.
func (k DataSetKey) String() string {
	switch k.Kind {
	case DataSetMatrix:
		return "matrix:" + k.Matrix.String()
	case DataSetOperation:
		return "operation:" + k.Operation.String()
	default:
		return "unknown:" + k.Matrix.String()
	}
}

// ParseDataSetKey parses the textual form produced by DataSetKey.String.
// The parent operation of an operation key is not part of the textual form; it is
// recovered from the metadata store when the key is resolved.
func ParseDataSetKey(s string) (DataSetKey, error) {
	kind, rest, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return DataSetKey{}, fmt.Errorf("dataset key %q: missing kind prefix", s)
	}
	parts := strings.Split(rest, "/")
	switch DataSetKind(kind) {
	case DataSetMatrix:
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return DataSetKey{}, fmt.Errorf("dataset key %q: expected matrix:<study>/<matrix>", s)
		}
		return NewMatrixDataSetKey(MatrixKey{StudyID: parts[0], MatrixID: parts[1]}), nil
	case DataSetOperation:
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return DataSetKey{}, fmt.Errorf("dataset key %q: expected operation:<study>/<matrix>/<operation>", s)
		}
		return NewOperationDataSetKey(OperationKey{Matrix: MatrixKey{StudyID: parts[0], MatrixID: parts[1]}, ID: parts[2]}), nil
	default:
		return DataSetKey{}, fmt.Errorf("dataset key %q: unknown kind %q", s, kind)
	}
}

// MarkerKey identifies a marker by its id. Chromosome and position are descriptive
// attributes carried by MarkerMetadata.
type MarkerKey struct {
	ID string `json:"id"`
}

func (k MarkerKey) String() string { return k.ID }

// SampleKey identifies a sample within a study.
type SampleKey struct {
	StudyID  string `json:"study_id"`
	SampleID string `json:"sample_id"`
}

func (k SampleKey) String() string {
	if k.StudyID == "" {
		return k.SampleID
	}
	return k.StudyID + ":" + k.SampleID
}
