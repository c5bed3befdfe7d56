// Package memory provides an in-memory implementation of the metadata store used
// for tests and ephemeral environments. The SQLite and Postgres stores embed it
// and snapshot its state after every committed transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"genomatrix/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store provides an in-memory transactional store of matrix, operation and
// sample field records.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc replaces the clock used to stamp records created without a
// timestamp.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn returns nil.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone(), now: s.nowFn()}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(transactionView{state: &snapshot})
}

// GetMatrix returns a stored matrix record.
func (s *Store) GetMatrix(key domain.MatrixKey) (domain.MatrixMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindMatrix(key)
}

// ListMatrices returns every matrix ordered by key.
func (s *Store) ListMatrices() []domain.MatrixMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.ListMatrices()
}

// GetOperation returns a stored operation record. The parent operation of key is
// ignored; the stored record carries it.
func (s *Store) GetOperation(key domain.OperationKey) (domain.OperationMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindOperation(key)
}

type transaction struct {
	state memoryState
	now   time.Time
}

type transactionView struct {
	state *memoryState
}

func (v transactionView) FindMatrix(key domain.MatrixKey) (domain.MatrixMetadata, bool) {
	m, ok := v.state.matrices[key.String()]
	if !ok {
		return domain.MatrixMetadata{}, false
	}
	return cloneMatrix(m), true
}

func (v transactionView) ListMatrices() []domain.MatrixMetadata {
	out := make([]domain.MatrixMetadata, 0, len(v.state.matrices))
	for _, m := range v.state.matrices {
		out = append(out, cloneMatrix(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (v transactionView) FindOperation(key domain.OperationKey) (domain.OperationMetadata, bool) {
	o, ok := v.state.operations[key.String()]
	if !ok {
		return domain.OperationMetadata{}, false
	}
	return cloneOperation(o), true
}

// ListOperations returns the operations rooted at matrix ordered by creation
// time, then id.
func (v transactionView) ListOperations(matrix domain.MatrixKey) []domain.OperationMetadata {
	var out []domain.OperationMetadata
	for _, o := range v.state.operations {
		if o.Key.Matrix == matrix {
			out = append(out, cloneOperation(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Key.ID < out[j].Key.ID
	})
	return out
}

func (v transactionView) SampleFields(matrix domain.MatrixKey) []domain.SampleFieldRecord {
	return cloneSampleFields(v.state.sampleFields[matrix.String()])
}

func (tx *transaction) Snapshot() domain.TransactionView {
	return transactionView{state: &tx.state}
}

// CreateMatrix stores a new matrix record. Keys are never overwritten.
func (tx *transaction) CreateMatrix(m domain.MatrixMetadata) (domain.MatrixMetadata, error) {
	if m.Key.StudyID == "" || m.Key.MatrixID == "" {
		return domain.MatrixMetadata{}, fmt.Errorf("matrix key %q is incomplete", m.Key)
	}
	id := m.Key.String()
	if _, exists := tx.state.matrices[id]; exists {
		return domain.MatrixMetadata{}, domain.ErrDuplicate{Entity: domain.EntityMatrix, Key: id}
	}
	if m.Parent != nil {
		if err := tx.checkDataSet(*m.Parent); err != nil {
			return domain.MatrixMetadata{}, err
		}
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = tx.now
	}
	tx.state.matrices[id] = cloneMatrix(m)
	return cloneMatrix(m), nil
}

// DeleteMatrix removes a matrix and its sample field records. It fails while
// operations or extracted matrices still reference it.
func (tx *transaction) DeleteMatrix(key domain.MatrixKey) error {
	id := key.String()
	if _, ok := tx.state.matrices[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityMatrix, Key: id}
	}
	for _, o := range tx.state.operations {
		if o.Key.Matrix == key {
			return fmt.Errorf("matrix %s still referenced by operation %s", id, o.Key)
		}
	}
	for _, m := range tx.state.matrices {
		if m.Parent != nil && m.Parent.IsMatrix() && m.Parent.Matrix == key {
			return fmt.Errorf("matrix %s still referenced by matrix %s", id, m.Key)
		}
	}
	delete(tx.state.matrices, id)
	delete(tx.state.sampleFields, id)
	return nil
}

// CreateOperation stores a new operation record. The root matrix and, when set,
// the parent operation must already exist. An empty id is generated.
func (tx *transaction) CreateOperation(o domain.OperationMetadata) (domain.OperationMetadata, error) {
	if o.Key.ID == "" {
		o.Key.ID = uuid.NewString()
	}
	id := o.Key.String()
	if _, exists := tx.state.operations[id]; exists {
		return domain.OperationMetadata{}, domain.ErrDuplicate{Entity: domain.EntityOperation, Key: id}
	}
	if o.Key.ParentOperation == o.Key.ID {
		return domain.OperationMetadata{}, fmt.Errorf("operation %s cannot derive from itself", id)
	}
	if err := tx.checkDataSet(o.Key.Parent()); err != nil {
		return domain.OperationMetadata{}, err
	}
	if err := tx.checkAcyclic(o.Key); err != nil {
		return domain.OperationMetadata{}, err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = tx.now
	}
	tx.state.operations[id] = cloneOperation(o)
	return cloneOperation(o), nil
}

// DeleteOperation removes an operation that no other operation derives from.
func (tx *transaction) DeleteOperation(key domain.OperationKey) error {
	id := key.String()
	if _, ok := tx.state.operations[id]; !ok {
		return domain.ErrNotFound{Entity: domain.EntityOperation, Key: id}
	}
	for _, o := range tx.state.operations {
		if o.Key.Matrix == key.Matrix && o.Key.ParentOperation == key.ID {
			return fmt.Errorf("operation %s still referenced by operation %s", id, o.Key)
		}
	}
	delete(tx.state.operations, id)
	return nil
}

// PutSampleFields replaces the external sample field records of a matrix.
func (tx *transaction) PutSampleFields(matrix domain.MatrixKey, records []domain.SampleFieldRecord) error {
	id := matrix.String()
	m, ok := tx.state.matrices[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityMatrix, Key: id}
	}
	for _, r := range records {
		if r.OrigIndex < 0 || r.OrigIndex >= m.SampleCount {
			return domain.ErrOutOfRange{Index: r.OrigIndex, Len: m.SampleCount}
		}
	}
	tx.state.sampleFields[id] = cloneSampleFields(records)
	return nil
}

func (tx *transaction) checkDataSet(key domain.DataSetKey) error {
	switch {
	case key.IsMatrix():
		if _, ok := tx.state.matrices[key.Matrix.String()]; !ok {
			return domain.ErrNotFound{Entity: domain.EntityMatrix, Key: key.Matrix.String()}
		}
	case key.IsOperation():
		if _, ok := tx.state.operations[key.Operation.String()]; !ok {
			return domain.ErrNotFound{Entity: domain.EntityOperation, Key: key.Operation.String()}
		}
	default:
		return domain.ErrNotFound{Entity: domain.EntityDataSet, Key: key.String()}
	}
	return nil
}

// checkAcyclic walks the parent chain of key and fails if it revisits key.
func (tx *transaction) checkAcyclic(key domain.OperationKey) error {
	seen := map[string]bool{key.String(): true}
	parent := key.ParentOperation
	for parent != "" {
		pk := domain.OperationKey{Matrix: key.Matrix, ID: parent}
		if seen[pk.String()] {
			return fmt.Errorf("operation %s would close a lineage cycle at %s", key, pk)
		}
		seen[pk.String()] = true
		rec, ok := tx.state.operations[pk.String()]
		if !ok {
			return nil
		}
		parent = rec.Key.ParentOperation
	}
	return nil
}
