package chunked

import (
	"context"
	"fmt"
	"time"

	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

// Destination writes a new matrix into a Store. Descriptor documents are written
// when their phase finishes, chunks while alleles stream in, and the manifest last
// in Done. A matrix without a manifest is invisible to readers, and Abort removes
// whatever was written.
type Destination struct {
	store   *Store
	ctx     context.Context
	tracker *source.WriteTracker
	markers []domain.MarkerMetadata
	samples []domain.SampleInfo
	writer  *Writer
	now     func() time.Time
}

// NewDestination returns a destination writing into store.
func NewDestination(store *Store) *Destination {
	return &Destination{store: store, ctx: context.Background(), tracker: source.NewWriteTracker(), now: time.Now}
}

// Init claims key. Any blob already under the key's prefix makes it taken.
func (d *Destination) Init(ctx context.Context, key domain.MatrixKey) error {
	prefix, err := matrixPrefix(key)
	if err != nil {
		return err
	}
	existing, err := d.store.blobs.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("init %s: %w", key, err)
	}
	if len(existing) > 0 {
		return domain.ErrDuplicate{Entity: domain.EntityMatrix, Key: key.String()}
	}
	d.ctx = ctx
	return d.tracker.Init(key)
}

func (d *Destination) StartLoadingSampleInfos(reset bool) error {
	if reset {
		d.samples = nil
	}
	return d.tracker.StartSamples(reset)
}

func (d *Destination) AddSampleInfo(info domain.SampleInfo) error {
	if err := d.tracker.AddSample(); err != nil {
		return err
	}
	d.samples = append(d.samples, info)
	return nil
}

func (d *Destination) FinishedLoadingSampleInfos() error {
	if err := d.tracker.FinishSamples(); err != nil {
		return err
	}
	return d.store.writeDoc(d.ctx, d.tracker.Key(), samplesName, d.samplesDoc())
}

func (d *Destination) StartLoadingMarkerMetadatas(reset bool) error {
	if reset {
		d.markers = nil
	}
	return d.tracker.StartMarkers(reset)
}

func (d *Destination) AddMarkerMetadata(meta domain.MarkerMetadata) error {
	if err := d.tracker.AddMarker(meta); err != nil {
		return err
	}
	d.markers = append(d.markers, meta)
	return nil
}

func (d *Destination) FinishedLoadingMarkerMetadatas() error {
	if err := d.tracker.FinishMarkers(); err != nil {
		return err
	}
	return d.store.writeDoc(d.ctx, d.tracker.Key(), markersName, d.markersDoc())
}

// StartLoadingAlleles opens the chunk writer along the chosen orientation.
func (d *Destination) StartLoadingAlleles(perSample bool) error {
	if err := d.tracker.StartAlleles(perSample); err != nil {
		return err
	}
	layout, rowLen := domain.PerMarker, len(d.samples)
	if perSample {
		layout, rowLen = domain.PerSample, len(d.markers)
	}
	w, err := d.store.NewWriter(d.tracker.Key(), layout, rowLen)
	if err != nil {
		return err
	}
	d.writer = w
	return nil
}

func (d *Destination) AddSampleGTAlleles(index int, row domain.GenotypesList) error {
	if err := d.tracker.AddRow(domain.PerSample, index, row); err != nil {
		return err
	}
	return d.writer.WriteRow(d.ctx, index, row)
}

func (d *Destination) AddMarkerGTAlleles(index int, row domain.GenotypesList) error {
	if err := d.tracker.AddRow(domain.PerMarker, index, row); err != nil {
		return err
	}
	return d.writer.WriteRow(d.ctx, index, row)
}

func (d *Destination) FinishedLoadingAlleles() error {
	if err := d.tracker.FinishAlleles(); err != nil {
		return err
	}
	return d.writer.Flush(d.ctx)
}

// Done commits the matrix by writing its manifest. Until the manifest is stored
// the write can still be aborted.
func (d *Destination) Done(ctx context.Context) (domain.MatrixMetadata, error) {
	meta, err := d.tracker.Finish()
	if err != nil {
		return domain.MatrixMetadata{}, err
	}
	meta.CreatedAt = d.now().UTC()
	manifest := d.writer.Manifest(meta)
	if err := manifest.Validate(); err != nil {
		return domain.MatrixMetadata{}, fmt.Errorf("commit %s: %w", meta.Key, err)
	}
	if err := d.store.writeDoc(ctx, meta.Key, manifestName, manifest); err != nil {
		return domain.MatrixMetadata{}, err
	}
	if err := d.tracker.Commit(); err != nil {
		return domain.MatrixMetadata{}, err
	}
	logger.Info().Str("matrix", meta.Key.String()).Int("markers", meta.MarkerCount).Int("samples", meta.SampleCount).Int("chunks", manifest.Chunks).Msg("matrix committed")
	return meta, nil
}

// Abort deletes every blob written for the matrix.
func (d *Destination) Abort(cause error) {
	if !d.tracker.Abort() {
		return
	}
	key := d.tracker.Key()
	if key.IsZero() {
		return
	}
	n, err := d.store.Delete(context.WithoutCancel(d.ctx), key)
	ev := logger.Warn().Str("matrix", key.String()).Int("removed", n)
	if cause != nil {
		ev = ev.AnErr("cause", cause)
	}
	if err != nil {
		ev = ev.AnErr("cleanup", err)
	}
	ev.Msg("matrix write aborted")
	d.markers, d.samples, d.writer = nil, nil, nil
}

// Discard deletes a matrix that Done committed, manifest included.
func (d *Destination) Discard(ctx context.Context) error {
	if !d.tracker.Revoke() {
		return fmt.Errorf("discard: destination is %s, want %s", d.tracker.Phase(), source.PhaseDone)
	}
	key := d.tracker.Key()
	n, err := d.store.Delete(ctx, key)
	if err != nil {
		return fmt.Errorf("discard %s: %w", key, err)
	}
	logger.Warn().Str("matrix", key.String()).Int("removed", n).Msg("committed matrix discarded")
	d.markers, d.samples, d.writer = nil, nil, nil
	return nil
}

func (d *Destination) markersDoc() []domain.MarkerMetadata {
	if d.markers == nil {
		return []domain.MarkerMetadata{}
	}
	return d.markers
}

func (d *Destination) samplesDoc() []domain.SampleInfo {
	if d.samples == nil {
		return []domain.SampleInfo{}
	}
	return d.samples
}
