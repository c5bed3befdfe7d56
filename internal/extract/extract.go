package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"genomatrix/internal/logging"
	"genomatrix/internal/pick"
	"genomatrix/internal/projection"
	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

var logger = logging.Component("extract")

// DefaultPageSize is the number of rows transcribed per range view.
const DefaultPageSize = 1024

// Params describes one extraction.
type Params struct {
	Parent       domain.DataSetKey `yaml:"-" json:"parent"`
	FriendlyName string            `yaml:"name" json:"friendly_name"`
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	Markers      pick.Params       `yaml:"markers" json:"markers"`
	Samples      pick.Params       `yaml:"samples" json:"samples"`
	// PageSize bounds how many rows are read per page; zero means DefaultPageSize.
	PageSize int `yaml:"page_size,omitempty" json:"page_size,omitempty"`
}

// Outcome tells a completed extraction from one stopped by an empty selection.
type Outcome int

const (
	Completed Outcome = iota
	NoSamples
	NoMarkers
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case NoSamples:
		return "no_samples"
	case NoMarkers:
		return "no_markers"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result reports an extraction. Key and Metadata are set only when Outcome is
// Completed; the index lists are in the stored root's index space.
type Result struct {
	Outcome           Outcome
	Key               domain.MatrixKey
	MarkerOrigIndices []int
	SampleOrigIndices []int
	Metadata          domain.MatrixMetadata
}

// Resolver opens dataset keys; *source.Resolver is the production implementation.
type Resolver interface {
	Resolve(ctx context.Context, key domain.DataSetKey) (source.DataSetSource, error)
}

// MatrixRecorder persists the metadata of a new matrix.
type MatrixRecorder interface {
	CreateMatrix(ctx context.Context, meta domain.MatrixMetadata) (domain.MatrixMetadata, error)
}

// OperationRecorder persists a derived view.
type OperationRecorder interface {
	CreateOperation(ctx context.Context, op domain.OperationMetadata) (domain.OperationMetadata, error)
}

// Extractor runs extractions. It is not safe for concurrent use with the same
// destination; separate calls with separate destinations are independent.
type Extractor struct {
	resolver Resolver
	fields   pick.FieldStore
	matrices MatrixRecorder
	ops      OperationRecorder
	factory  MetadataFactory
	metrics  *Metrics
	newID    func() string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFieldStore enables the external-field sample cases.
func WithFieldStore(fs pick.FieldStore) Option { return func(e *Extractor) { e.fields = fs } }

// WithMatrixRecorder persists the metadata of each completed extraction.
func WithMatrixRecorder(r MatrixRecorder) Option { return func(e *Extractor) { e.matrices = r } }

// WithOperationRecorder enables Derive.
func WithOperationRecorder(r OperationRecorder) Option { return func(e *Extractor) { e.ops = r } }

// WithMetrics records extraction metrics.
func WithMetrics(m *Metrics) Option { return func(e *Extractor) { e.metrics = m } }

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option { return func(e *Extractor) { e.factory.Now = now } }

// WithIDGenerator overrides how new matrix and operation ids are minted.
func WithIDGenerator(gen func() string) Option { return func(e *Extractor) { e.newID = gen } }

// New returns an extractor resolving parents through resolver.
func New(resolver Resolver, opts ...Option) *Extractor {
	e := &Extractor{resolver: resolver, newID: uuid.NewString}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// selection is the picked index sets of both dimensions.
type selection struct {
	samples pick.Selection[domain.SampleInfo]
	markers pick.Selection[domain.MarkerMetadata]
}

// pickBoth runs the sample picker then the marker picker. outcome is Completed
// when both retained something.
func (e *Extractor) pickBoth(ctx context.Context, src source.DataSetSource, p Params) (selection, Outcome, error) {
	var sel selection
	var ext *pick.ExternalFields
	if e.fields != nil {
		ext = &pick.ExternalFields{Store: e.fields, Matrix: src.OrigSource().Key().Matrix}
	}
	samples, err := pick.PickSamples(ctx, src.Samples(), p.Samples, ext)
	if err != nil {
		return sel, Completed, err
	}
	sel.samples = samples
	if samples.Empty() {
		return sel, NoSamples, nil
	}
	if err := ctx.Err(); err != nil {
		return sel, Completed, err
	}
	markers, err := pick.PickMarkers(ctx, src.Markers(), p.Markers)
	if err != nil {
		return sel, Completed, err
	}
	sel.markers = markers
	if markers.Empty() {
		return sel, NoMarkers, nil
	}
	return sel, Completed, nil
}

// Extract copies the picked markers × samples of p.Parent into dest. An empty
// selection returns a NoSamples or NoMarkers result before dest is touched. Any
// failure after dest.Init aborts dest and is returned wrapped.
func (e *Extractor) Extract(ctx context.Context, p Params, dest Destination) (res Result, err error) {
	started := time.Now()
	defer func() {
		outcome := res.Outcome.String()
		if err != nil {
			outcome = "error"
		}
		e.metrics.observe(outcome, started)
	}()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	src, err := e.resolver.Resolve(ctx, p.Parent)
	if err != nil {
		return Result{}, fmt.Errorf("resolve parent %s: %w", p.Parent, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logger.Warn().Err(cerr).Str("parent", p.Parent.String()).Msg("closing parent source")
		}
	}()

	sel, outcome, err := e.pickBoth(ctx, src, p)
	if err != nil {
		return Result{}, fmt.Errorf("extract from %s: %w", p.Parent, err)
	}
	res = Result{Outcome: outcome, SampleOrigIndices: sel.samples.OrigIndices, MarkerOrigIndices: sel.markers.OrigIndices}
	if outcome != Completed {
		logger.Info().Str("parent", p.Parent.String()).Str("outcome", outcome.String()).Msg("extraction selected nothing")
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	key := domain.MatrixKey{StudyID: p.Parent.Matrix.StudyID, MatrixID: e.newID()}
	if err := dest.Init(ctx, key); err != nil {
		return Result{}, fmt.Errorf("init destination %s: %w", key, err)
	}
	meta, err := e.write(ctx, src, sel, p, dest)
	if err != nil {
		dest.Abort(err)
		return Result{}, fmt.Errorf("extract %s into %s: %w", p.Parent, key, err)
	}

	meta = e.factory.Build(meta, p, p.Parent, sel.markers.Criteria, sel.samples.Criteria)
	if e.matrices != nil {
		stored, err := e.matrices.CreateMatrix(ctx, meta)
		if err != nil {
			err = fmt.Errorf("record matrix %s: %w", key, err)
			if derr := dest.Discard(context.WithoutCancel(ctx)); derr != nil {
				err = errors.Join(err, derr)
			}
			return Result{}, err
		}
		meta = stored
	}
	res.Key = key
	res.Metadata = meta
	logger.Info().Str("parent", p.Parent.String()).Str("matrix", key.String()).
		Int("markers", meta.MarkerCount).Int("samples", meta.SampleCount).
		Dur("took", time.Since(started)).Msg("extraction completed")
	return res, nil
}

// write streams descriptors then genotype rows. Cancellation is honoured between
// phases only.
func (e *Extractor) write(ctx context.Context, src source.DataSetSource, sel selection, p Params, dest Destination) (domain.MatrixMetadata, error) {
	if err := dest.StartLoadingSampleInfos(true); err != nil {
		return domain.MatrixMetadata{}, err
	}
	for _, info := range sel.samples.Items {
		if err := dest.AddSampleInfo(info); err != nil {
			return domain.MatrixMetadata{}, err
		}
	}
	if err := dest.FinishedLoadingSampleInfos(); err != nil {
		return domain.MatrixMetadata{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.MatrixMetadata{}, err
	}

	if err := dest.StartLoadingMarkerMetadatas(true); err != nil {
		return domain.MatrixMetadata{}, err
	}
	for _, m := range sel.markers.Items {
		if err := dest.AddMarkerMetadata(m); err != nil {
			return domain.MatrixMetadata{}, err
		}
	}
	if err := dest.FinishedLoadingMarkerMetadatas(); err != nil {
		return domain.MatrixMetadata{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.MatrixMetadata{}, err
	}

	perSample := src.Orientation() == domain.PerSample
	if err := dest.StartLoadingAlleles(perSample); err != nil {
		return domain.MatrixMetadata{}, err
	}
	view := source.Filter(src, sel.markers.Positions, sel.samples.Positions)
	var n int
	var err error
	if perSample {
		n, err = transcribe(view.Samples().Genotypes(), p.PageSize, dest.AddSampleGTAlleles)
	} else {
		n, err = transcribe(view.Markers().Genotypes(), p.PageSize, dest.AddMarkerGTAlleles)
	}
	if err != nil {
		return domain.MatrixMetadata{}, err
	}
	e.metrics.addRows(string(src.Orientation()), n)
	if err := dest.FinishedLoadingAlleles(); err != nil {
		return domain.MatrixMetadata{}, err
	}
	return dest.Done(ctx)
}

// transcribe pages over the rows of a filtered view, emitting them in order.
// Each page is a range view so only one page of rows is live at a time.
func transcribe(rows projection.Sequence[domain.GenotypesList], pageSize int, emit func(int, domain.GenotypesList) error) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	all := projection.Identity(rows.Len())
	written := 0
	for _, page := range projection.Pages(len(all), pageSize) {
		view, err := projection.RangeView(rows, all, page[0], page[1])
		if err != nil {
			return written, err
		}
		err = projection.Each[domain.GenotypesList](view, func(i int, row domain.GenotypesList) error {
			if err := emit(page[0]+i, row); err != nil {
				return fmt.Errorf("row %d: %w", page[0]+i, err)
			}
			written++
			return nil
		})
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// ErrNoOperationStore is returned by Derive without an OperationRecorder.
var ErrNoOperationStore = errors.New("no operation store configured")

// Derive records the selection of p as an operation over p.Parent without copying
// genotypes. The operation resolves later as a filtered view of its parent.
// Dimensions picked with ALL are stored as nil index lists.
func (e *Extractor) Derive(ctx context.Context, p Params) (Result, domain.OperationMetadata, error) {
	if e.ops == nil {
		return Result{}, domain.OperationMetadata{}, ErrNoOperationStore
	}
	if err := ctx.Err(); err != nil {
		return Result{}, domain.OperationMetadata{}, err
	}
	src, err := e.resolver.Resolve(ctx, p.Parent)
	if err != nil {
		return Result{}, domain.OperationMetadata{}, fmt.Errorf("resolve parent %s: %w", p.Parent, err)
	}
	defer src.Close()

	sel, outcome, err := e.pickBoth(ctx, src, p)
	if err != nil {
		return Result{}, domain.OperationMetadata{}, fmt.Errorf("derive from %s: %w", p.Parent, err)
	}
	res := Result{Outcome: outcome, SampleOrigIndices: sel.samples.OrigIndices, MarkerOrigIndices: sel.markers.OrigIndices}
	if outcome != Completed {
		return res, domain.OperationMetadata{}, nil
	}

	key := domain.OperationKey{Matrix: p.Parent.Matrix, ID: e.newID()}
	if p.Parent.IsOperation() {
		key.ParentOperation = p.Parent.Operation.ID
	}
	op := domain.OperationMetadata{
		Key:          key,
		Type:         domain.OperationFilter,
		FriendlyName: p.FriendlyName,
	}
	if p.Markers.Case != pick.All {
		op.MarkerIndices = sel.markers.Positions
	}
	if p.Samples.Case != pick.All {
		op.SampleIndices = sel.samples.Positions
	}
	shape := domain.MatrixMetadata{MarkerCount: sel.markers.Len(), SampleCount: sel.samples.Len(), Encoding: domain.EncodingUnknown}
	built := e.factory.Build(shape, p, p.Parent, sel.markers.Criteria, sel.samples.Criteria)
	op.FriendlyName, op.Description, op.CreatedAt = built.FriendlyName, built.Description, built.CreatedAt

	stored, err := e.ops.CreateOperation(ctx, op)
	if err != nil {
		return Result{}, domain.OperationMetadata{}, fmt.Errorf("record operation %s: %w", key, err)
	}
	logger.Info().Str("parent", p.Parent.String()).Str("operation", key.String()).Int("markers", shape.MarkerCount).Int("samples", shape.SampleCount).Msg("operation recorded")
	return res, stored, nil
}
