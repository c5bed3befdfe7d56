package memory

import (
	"encoding/json"
	"fmt"
	"slices"

	"genomatrix/pkg/domain"
)

// Bucket names used by snapshotting backends. Each bucket is stored as one JSON
// document.
const (
	BucketMatrices     = "matrices"
	BucketOperations   = "operations"
	BucketSampleFields = "sample_fields"
)

// Buckets lists every bucket in persistence order.
var Buckets = []string{BucketMatrices, BucketOperations, BucketSampleFields}

type memoryState struct {
	matrices     map[string]domain.MatrixMetadata
	operations   map[string]domain.OperationMetadata
	sampleFields map[string][]domain.SampleFieldRecord
}

// Snapshot captures a point-in-time clone of the store state. Maps are keyed by
// the String form of the matrix or operation key.
type Snapshot struct {
	Matrices     map[string]domain.MatrixMetadata      `json:"matrices"`
	Operations   map[string]domain.OperationMetadata   `json:"operations"`
	SampleFields map[string][]domain.SampleFieldRecord `json:"sample_fields"`
}

// EncodeBucket marshals one bucket of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	switch bucket {
	case BucketMatrices:
		return json.Marshal(s.Matrices)
	case BucketOperations:
		return json.Marshal(s.Operations)
	case BucketSampleFields:
		return json.Marshal(s.SampleFields)
	default:
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
}

// DecodeBucket unmarshals payload into the named bucket. Unknown buckets are
// ignored so older binaries can read newer databases.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	var target any
	switch bucket {
	case BucketMatrices:
		target = &s.Matrices
	case BucketOperations:
		target = &s.Operations
	case BucketSampleFields:
		target = &s.SampleFields
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func newMemoryState() memoryState {
	return memoryState{
		matrices:     make(map[string]domain.MatrixMetadata),
		operations:   make(map[string]domain.OperationMetadata),
		sampleFields: make(map[string][]domain.SampleFieldRecord),
	}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		matrices:     make(map[string]domain.MatrixMetadata, len(s.matrices)),
		operations:   make(map[string]domain.OperationMetadata, len(s.operations)),
		sampleFields: make(map[string][]domain.SampleFieldRecord, len(s.sampleFields)),
	}
	for k, v := range s.matrices {
		out.matrices[k] = cloneMatrix(v)
	}
	for k, v := range s.operations {
		out.operations[k] = cloneOperation(v)
	}
	for k, v := range s.sampleFields {
		out.sampleFields[k] = cloneSampleFields(v)
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{Matrices: c.matrices, Operations: c.operations, SampleFields: c.sampleFields}
}

func memoryStateFromSnapshot(snapshot Snapshot) memoryState {
	state := memoryState{
		matrices:     snapshot.Matrices,
		operations:   snapshot.Operations,
		sampleFields: snapshot.SampleFields,
	}
	if state.matrices == nil {
		state.matrices = map[string]domain.MatrixMetadata{}
	}
	if state.operations == nil {
		state.operations = map[string]domain.OperationMetadata{}
	}
	if state.sampleFields == nil {
		state.sampleFields = map[string][]domain.SampleFieldRecord{}
	}
	return state.clone()
}

func cloneMatrix(m domain.MatrixMetadata) domain.MatrixMetadata {
	cp := m
	cp.Chromosomes = slices.Clone(m.Chromosomes)
	if m.Parent != nil {
		parent := *m.Parent
		cp.Parent = &parent
	}
	return cp
}

func cloneOperation(o domain.OperationMetadata) domain.OperationMetadata {
	cp := o
	cp.MarkerIndices = slices.Clone(o.MarkerIndices)
	cp.SampleIndices = slices.Clone(o.SampleIndices)
	return cp
}

func cloneSampleFields(records []domain.SampleFieldRecord) []domain.SampleFieldRecord {
	if records == nil {
		return nil
	}
	out := make([]domain.SampleFieldRecord, len(records))
	for i, r := range records {
		out[i] = r
		if r.Fields != nil {
			fields := make(map[string]string, len(r.Fields))
			for k, v := range r.Fields {
				fields[k] = v
			}
			out[i].Fields = fields
		}
	}
	return out
}
