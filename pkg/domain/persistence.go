package domain

import "context"

// Transaction exposes the metadata mutations a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateMatrix(MatrixMetadata) (MatrixMetadata, error)
	DeleteMatrix(key MatrixKey) error
	CreateOperation(OperationMetadata) (OperationMetadata, error)
	DeleteOperation(key OperationKey) error
	PutSampleFields(matrix MatrixKey, records []SampleFieldRecord) error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	FindMatrix(key MatrixKey) (MatrixMetadata, bool)
	ListMatrices() []MatrixMetadata
	FindOperation(key OperationKey) (OperationMetadata, bool)
	ListOperations(matrix MatrixKey) []OperationMetadata
	SampleFields(matrix MatrixKey) []SampleFieldRecord
}

// PersistentStore is a minimal abstraction over durable metadata backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	GetMatrix(key MatrixKey) (MatrixMetadata, bool)
	ListMatrices() []MatrixMetadata
	GetOperation(key OperationKey) (OperationMetadata, bool)
}
