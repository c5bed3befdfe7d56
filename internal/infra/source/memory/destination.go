package memory

import (
	"context"
	"fmt"

	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

// Destination builds an in-memory Source and registers it only when Done
// succeeds, so an aborted or failed write leaves nothing visible.
type Destination struct {
	registry *Registry
	tracker  *source.WriteTracker
	markers  []domain.MarkerMetadata
	samples  []domain.SampleInfo
	rows     []domain.GenotypesList // in the orientation chosen by StartLoadingAlleles
	built    *Source
}

// NewDestination returns a destination registering into registry.
func NewDestination(registry *Registry) *Destination {
	return &Destination{registry: registry, tracker: source.NewWriteTracker()}
}

func (d *Destination) Init(_ context.Context, key domain.MatrixKey) error {
	if _, exists := d.registry.Lookup(key); exists {
		return domain.ErrDuplicate{Entity: domain.EntityMatrix, Key: key.String()}
	}
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

func (d *Destination) FinishedLoadingSampleInfos() error { return d.tracker.FinishSamples() }

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

func (d *Destination) FinishedLoadingMarkerMetadatas() error { return d.tracker.FinishMarkers() }

func (d *Destination) StartLoadingAlleles(perSample bool) error {
	d.rows = nil
	return d.tracker.StartAlleles(perSample)
}

func (d *Destination) AddSampleGTAlleles(index int, row domain.GenotypesList) error {
	if err := d.tracker.AddRow(domain.PerSample, index, row); err != nil {
		return err
	}
	d.rows = append(d.rows, row.Clone())
	return nil
}

func (d *Destination) AddMarkerGTAlleles(index int, row domain.GenotypesList) error {
	if err := d.tracker.AddRow(domain.PerMarker, index, row); err != nil {
		return err
	}
	d.rows = append(d.rows, row.Clone())
	return nil
}

func (d *Destination) FinishedLoadingAlleles() error { return d.tracker.FinishAlleles() }

// Done builds the source, transposing marker-major rows, and registers it.
func (d *Destination) Done(_ context.Context) (domain.MatrixMetadata, error) {
	meta, err := d.tracker.Finish()
	if err != nil {
		return domain.MatrixMetadata{}, err
	}
	rows := d.rows
	if meta.Orientation == domain.PerMarker {
		rows = transpose(d.rows, len(d.samples), len(d.markers))
	}
	src, err := NewSource(meta.Key, d.markers, d.samples, rows)
	if err != nil {
		return domain.MatrixMetadata{}, fmt.Errorf("build in-memory matrix %s: %w", meta.Key, err)
	}
	if err := d.registry.Register(src); err != nil {
		return domain.MatrixMetadata{}, err
	}
	if err := d.tracker.Commit(); err != nil {
		d.registry.Remove(meta.Key)
		return domain.MatrixMetadata{}, err
	}
	d.built = src
	d.rows = nil
	meta.Orientation = src.Orientation()
	return meta, nil
}

// Abort discards buffered data. Nothing was registered before Done.
func (d *Destination) Abort(_ error) {
	if d.tracker.Abort() {
		d.markers, d.samples, d.rows = nil, nil, nil
	}
}

// Discard unregisters the matrix committed by Done.
func (d *Destination) Discard(_ context.Context) error {
	if !d.tracker.Revoke() {
		return fmt.Errorf("discard: destination is %s, want %s", d.tracker.Phase(), source.PhaseDone)
	}
	d.registry.Remove(d.tracker.Key())
	d.built, d.markers, d.samples = nil, nil, nil
	return nil
}

// Source returns the registered source after a successful Done.
func (d *Destination) Source() (*Source, bool) { return d.built, d.built != nil }

// transpose turns marker-major rows into sample-major ones.
func transpose(markerRows []domain.GenotypesList, samples, markers int) []domain.GenotypesList {
	out := make([]domain.GenotypesList, samples)
	for s := range out {
		out[s] = make(domain.GenotypesList, markers)
	}
	for m, row := range markerRows {
		for s, g := range row {
			out[s][m] = g
		}
	}
	return out
}
