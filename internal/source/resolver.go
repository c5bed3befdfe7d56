package source

import (
	"context"
	"errors"
	"fmt"

	"genomatrix/internal/logging"
	"genomatrix/pkg/domain"
)

var logger = logging.Component("source")

// maxLineageDepth bounds operation chains; stored lineage is acyclic but a corrupt
// store must not send resolution into a loop.
const maxLineageDepth = 256

// MatrixOpener opens stored matrices. Implementations return domain.ErrNotFound
// for keys they do not hold so the resolver can try the next backend.
type MatrixOpener interface {
	OpenMatrix(ctx context.Context, key domain.MatrixKey) (DataSetSource, error)
}

// OperationLookup finds persisted operation records.
type OperationLookup interface {
	GetOperation(key domain.OperationKey) (domain.OperationMetadata, bool)
}

// Resolver turns dataset keys into sources. Matrix keys are offered to the
// openers in order; operation keys become filtered views of their resolved parent.
type Resolver struct {
	ops     OperationLookup
	openers []MatrixOpener
}

// NewResolver builds a resolver. ops may be nil when only matrix keys are resolved.
func NewResolver(ops OperationLookup, openers ...MatrixOpener) *Resolver {
	return &Resolver{ops: ops, openers: openers}
}

// Resolve opens key. The caller must Close the returned source; closing releases
// every handle acquired on the way, including those of ancestors.
func (r *Resolver) Resolve(ctx context.Context, key domain.DataSetKey) (DataSetSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.resolve(ctx, key, 0)
}

func (r *Resolver) resolve(ctx context.Context, key domain.DataSetKey, depth int) (DataSetSource, error) {
	if depth > maxLineageDepth {
		return nil, fmt.Errorf("resolve %s: lineage deeper than %d", key, maxLineageDepth)
	}
	switch key.Kind {
	case domain.DataSetMatrix:
		return r.openMatrix(ctx, key.Matrix)
	case domain.DataSetOperation:
		if r.ops == nil {
			return nil, fmt.Errorf("resolve %s: no operation store configured", key)
		}
		op, ok := r.ops.GetOperation(key.Operation)
		if !ok {
			return nil, domain.ErrNotFound{Entity: domain.EntityOperation, Key: key.Operation.String()}
		}
		parent, err := r.resolve(ctx, op.Parent(), depth+1)
		if err != nil {
			return nil, fmt.Errorf("resolve parent of %s: %w", key, err)
		}
		view := FilterAs(domain.NewOperationDataSetKey(op.Key), parent, op.MarkerIndices, op.SampleIndices)
		if err := CheckAlignment(view); err != nil {
			_ = parent.Close()
			return nil, fmt.Errorf("resolve %s: %w", key, err)
		}
		return Owning(view, parent), nil
	default:
		return nil, fmt.Errorf("resolve %s: unknown dataset kind %q", key, key.Kind)
	}
}

func (r *Resolver) openMatrix(ctx context.Context, key domain.MatrixKey) (DataSetSource, error) {
	for _, o := range r.openers {
		src, err := o.OpenMatrix(ctx, key)
		if err == nil {
			logger.Debug().Str("matrix", key.String()).Msg("matrix resolved")
			return src, nil
		}
		var nf domain.ErrNotFound
		if errors.As(err, &nf) {
			continue
		}
		return nil, fmt.Errorf("open matrix %s: %w", key, err)
	}
	return nil, domain.ErrNotFound{Entity: domain.EntityMatrix, Key: key.String()}
}

// owned is a source that releases extra resources when closed.
type owned struct {
	DataSetSource
	closers []interface{ Close() error }
}

// Owning returns src whose Close also closes each of closers, in order.
func Owning(src DataSetSource, closers ...interface{ Close() error }) DataSetSource {
	return &owned{DataSetSource: src, closers: closers}
}

func (o *owned) Close() error {
	errs := []error{o.DataSetSource.Close()}
	for _, c := range o.closers {
		errs = append(errs, c.Close())
	}
	o.closers = nil
	return errors.Join(errs...)
}
