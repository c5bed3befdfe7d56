// Package persistence selects a metadata backend and layers the context-aware
// operations the extraction pipeline needs on top of any domain.PersistentStore.
package persistence

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"genomatrix/internal/infra/persistence/memory"
	"genomatrix/internal/infra/persistence/postgres"
	"genomatrix/internal/infra/persistence/sqlite"
	"genomatrix/internal/logging"
	"genomatrix/pkg/domain"
)

var logger = logging.Component("persistence")

// Driver identifies a concrete persistent storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Catalog wraps a PersistentStore with single-record helpers. Every mutation runs
// in its own transaction.
type Catalog struct {
	domain.PersistentStore
}

// NewCatalog wraps store.
func NewCatalog(store domain.PersistentStore) *Catalog {
	return &Catalog{PersistentStore: store}
}

// NewMemoryCatalog returns a catalog over a fresh in-memory store.
func NewMemoryCatalog() *Catalog {
	return NewCatalog(memory.NewStore())
}

// Open selects a backend using environment variables.
//
//	GENOMATRIX_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	GENOMATRIX_SQLITE_PATH: path to sqlite file (default ./genomatrix.db)
//	GENOMATRIX_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(ctx context.Context) (*Catalog, error) {
	driver := Driver(strings.ToLower(logging.EnvOrDefault("GENOMATRIX_STORAGE_DRIVER", string(DriverSQLite))))
	var (
		store domain.PersistentStore
		err   error
	)
	switch driver {
	case DriverMemory:
		store = memory.NewStore()
	case DriverSQLite:
		store, err = sqlite.NewStore(ctx, os.Getenv("GENOMATRIX_SQLITE_PATH"))
	case DriverPostgres:
		store, err = postgres.NewStore(ctx, os.Getenv("GENOMATRIX_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("driver", string(driver)).Msg("metadata store opened")
	return NewCatalog(store), nil
}

// Close releases the backend when it holds resources.
func (c *Catalog) Close() error {
	if closer, ok := c.PersistentStore.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CreateMatrix persists a new matrix record.
func (c *Catalog) CreateMatrix(ctx context.Context, meta domain.MatrixMetadata) (domain.MatrixMetadata, error) {
	var out domain.MatrixMetadata
	err := c.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		out, err = tx.CreateMatrix(meta)
		return err
	})
	return out, err
}

// DeleteMatrix removes a matrix record and its sample fields.
func (c *Catalog) DeleteMatrix(ctx context.Context, key domain.MatrixKey) error {
	return c.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteMatrix(key)
	})
}

// CreateOperation persists a new operation record. Missing parents and lineage
// cycles are rejected.
func (c *Catalog) CreateOperation(ctx context.Context, op domain.OperationMetadata) (domain.OperationMetadata, error) {
	var out domain.OperationMetadata
	err := c.RunInTransaction(ctx, func(tx domain.Transaction) error {
		var err error
		out, err = tx.CreateOperation(op)
		return err
	})
	return out, err
}

// ListOperations returns the operations rooted at matrix.
func (c *Catalog) ListOperations(ctx context.Context, matrix domain.MatrixKey) ([]domain.OperationMetadata, error) {
	var out []domain.OperationMetadata
	err := c.View(ctx, func(v domain.TransactionView) error {
		out = v.ListOperations(matrix)
		return nil
	})
	return out, err
}

// PutSampleFields replaces the external sample fields of a stored matrix.
func (c *Catalog) PutSampleFields(ctx context.Context, matrix domain.MatrixKey, records []domain.SampleFieldRecord) error {
	return c.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.PutSampleFields(matrix, records)
	})
}

// LookupSampleField returns the samples of matrix whose external field equals
// one of values, mapped to their original index in that matrix.
func (c *Catalog) LookupSampleField(ctx context.Context, matrix domain.MatrixKey, field string, values []string) (map[domain.SampleKey]int, error) {
	want := make(map[string]struct{}, len(values))
	for _, v := range values {
		want[v] = struct{}{}
	}
	out := make(map[domain.SampleKey]int)
	err := c.View(ctx, func(v domain.TransactionView) error {
		if _, ok := v.FindMatrix(matrix); !ok {
			return domain.ErrNotFound{Entity: domain.EntityMatrix, Key: matrix.String()}
		}
		for _, rec := range v.SampleFields(matrix) {
			value, ok := rec.Fields[field]
			if !ok {
				continue
			}
			if _, hit := want[value]; hit {
				out[rec.Sample] = rec.OrigIndex
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Lineage returns key followed by each ancestor up to and including the first
// matrix with no recorded parent. Extracted matrices continue the walk through
// their Parent reference.
func (c *Catalog) Lineage(ctx context.Context, key domain.DataSetKey) ([]domain.DataSetKey, error) {
	var out []domain.DataSetKey
	err := c.View(ctx, func(v domain.TransactionView) error {
		seen := make(map[string]bool)
		cur := key
		for {
			if seen[cur.String()] {
				return fmt.Errorf("lineage of %s revisits %s", key, cur)
			}
			seen[cur.String()] = true
			out = append(out, cur)
			switch {
			case cur.IsOperation():
				op, ok := v.FindOperation(cur.Operation)
				if !ok {
					return domain.ErrNotFound{Entity: domain.EntityOperation, Key: cur.Operation.String()}
				}
				cur = op.Parent()
			case cur.IsMatrix():
				m, ok := v.FindMatrix(cur.Matrix)
				if !ok {
					return domain.ErrNotFound{Entity: domain.EntityMatrix, Key: cur.Matrix.String()}
				}
				if m.Parent == nil {
					return nil
				}
				cur = *m.Parent
			default:
				return domain.ErrNotFound{Entity: domain.EntityDataSet, Key: cur.String()}
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
