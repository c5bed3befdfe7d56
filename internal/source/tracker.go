package source

import (
	"fmt"

	"genomatrix/pkg/domain"
)

// WritePhase is a step of the destination write protocol.
type WritePhase int

const (
	PhaseNew WritePhase = iota
	PhaseInit
	PhaseSamples
	PhaseSamplesDone
	PhaseMarkers
	PhaseMarkersDone
	PhaseAlleles
	PhaseAllelesDone
	PhaseDone
	PhaseAborted
)

var phaseNames = map[WritePhase]string{
	PhaseNew:         "new",
	PhaseInit:        "init",
	PhaseSamples:     "loading samples",
	PhaseSamplesDone: "samples loaded",
	PhaseMarkers:     "loading markers",
	PhaseMarkersDone: "markers loaded",
	PhaseAlleles:     "loading alleles",
	PhaseAllelesDone: "alleles loaded",
	PhaseDone:        "done",
	PhaseAborted:     "aborted",
}

func (p WritePhase) String() string { return phaseNames[p] }

// WriteTracker enforces the destination write protocol and accumulates what the
// finished matrix needs to describe itself: counts, chromosome runs, allele codes.
// Rows must arrive append-only, index 0 first.
type WriteTracker struct {
	phase       WritePhase
	key         domain.MatrixKey
	samples     int
	markers     int
	orientation domain.Orientation
	rows        int
	chromosomes []domain.ChromosomeInfo
	alleles     map[byte]struct{}
}

// NewWriteTracker returns a tracker in PhaseNew.
func NewWriteTracker() *WriteTracker {
	return &WriteTracker{alleles: make(map[byte]struct{})}
}

func (t *WriteTracker) Phase() WritePhase { return t.phase }

func (t *WriteTracker) Key() domain.MatrixKey { return t.key }

func (t *WriteTracker) Orientation() domain.Orientation { return t.orientation }

func (t *WriteTracker) MarkerCount() int { return t.markers }

func (t *WriteTracker) SampleCount() int { return t.samples }

func (t *WriteTracker) expect(want WritePhase, op string) error {
	if t.phase != want {
		return fmt.Errorf("%s: destination is %s, want %s", op, t.phase, want)
	}
	return nil
}

// Init starts writing the matrix key.
func (t *WriteTracker) Init(key domain.MatrixKey) error {
	if err := t.expect(PhaseNew, "init"); err != nil {
		return err
	}
	if key.IsZero() {
		return fmt.Errorf("init: empty matrix key")
	}
	t.key = key
	t.phase = PhaseInit
	return nil
}

// StartSamples enters the sample phase. reset discards samples already counted.
func (t *WriteTracker) StartSamples(reset bool) error {
	if err := t.expect(PhaseInit, "start loading sample infos"); err != nil {
		return err
	}
	if reset {
		t.samples = 0
	}
	t.phase = PhaseSamples
	return nil
}

func (t *WriteTracker) AddSample() error {
	if err := t.expect(PhaseSamples, "add sample info"); err != nil {
		return err
	}
	t.samples++
	return nil
}

func (t *WriteTracker) FinishSamples() error {
	if err := t.expect(PhaseSamples, "finish sample infos"); err != nil {
		return err
	}
	t.phase = PhaseSamplesDone
	return nil
}

// StartMarkers enters the marker phase.
func (t *WriteTracker) StartMarkers(reset bool) error {
	if err := t.expect(PhaseSamplesDone, "start loading marker metadata"); err != nil {
		return err
	}
	if reset {
		t.markers = 0
		t.chromosomes = nil
	}
	t.phase = PhaseMarkers
	return nil
}

// AddMarker counts a marker and extends the chromosome run it belongs to.
func (t *WriteTracker) AddMarker(meta domain.MarkerMetadata) error {
	if err := t.expect(PhaseMarkers, "add marker metadata"); err != nil {
		return err
	}
	idx := t.markers
	t.markers++
	if n := len(t.chromosomes); n > 0 && t.chromosomes[n-1].Chromosome == meta.Chromosome {
		t.chromosomes[n-1].LastIndex = idx
		t.chromosomes[n-1].MarkerCount++
		return nil
	}
	t.chromosomes = append(t.chromosomes, domain.ChromosomeInfo{Chromosome: meta.Chromosome, FirstIndex: idx, LastIndex: idx, MarkerCount: 1})
	return nil
}

func (t *WriteTracker) FinishMarkers() error {
	if err := t.expect(PhaseMarkers, "finish marker metadata"); err != nil {
		return err
	}
	t.phase = PhaseMarkersDone
	return nil
}

// StartAlleles enters the genotype phase with the given row orientation.
func (t *WriteTracker) StartAlleles(perSample bool) error {
	if err := t.expect(PhaseMarkersDone, "start loading alleles"); err != nil {
		return err
	}
	t.orientation = domain.PerMarker
	if perSample {
		t.orientation = domain.PerSample
	}
	t.rows = 0
	t.phase = PhaseAlleles
	return nil
}

// AddRow validates the next genotype row. orientation is the dimension the row
// belongs to.
func (t *WriteTracker) AddRow(orientation domain.Orientation, index int, row domain.GenotypesList) error {
	if err := t.expect(PhaseAlleles, "add genotype row"); err != nil {
		return err
	}
	if orientation != t.orientation {
		return fmt.Errorf("add genotype row: %s row written to a %s destination", orientation, t.orientation)
	}
	rowCount, rowLen := t.markers, t.samples
	if orientation == domain.PerSample {
		rowCount, rowLen = t.samples, t.markers
	}
	if index != t.rows {
		return fmt.Errorf("add genotype row: index %d out of order, next is %d", index, t.rows)
	}
	if index >= rowCount {
		return domain.ErrOutOfRange{Index: index, Len: rowCount}
	}
	if len(row) != rowLen {
		return fmt.Errorf("add genotype row %d: %d genotypes, want %d", index, len(row), rowLen)
	}
	for _, g := range row {
		t.alleles[g[0]] = struct{}{}
		t.alleles[g[1]] = struct{}{}
	}
	t.rows++
	return nil
}

// FinishAlleles checks that every row was written.
func (t *WriteTracker) FinishAlleles() error {
	if err := t.expect(PhaseAlleles, "finish alleles"); err != nil {
		return err
	}
	want := t.markers
	if t.orientation == domain.PerSample {
		want = t.samples
	}
	if t.rows != want {
		return fmt.Errorf("finish alleles: %d of %d rows written", t.rows, want)
	}
	t.phase = PhaseAllelesDone
	return nil
}

// Finish returns the structural metadata of a fully written matrix without
// committing it. Naming, description and lineage are added by the caller.
func (t *WriteTracker) Finish() (domain.MatrixMetadata, error) {
	if err := t.expect(PhaseAllelesDone, "done"); err != nil {
		return domain.MatrixMetadata{}, err
	}
	chroms := make([]domain.ChromosomeInfo, len(t.chromosomes))
	copy(chroms, t.chromosomes)
	return domain.MatrixMetadata{
		Key:         t.key,
		Encoding:    domain.DetectEncoding(t.alleles),
		Orientation: t.orientation,
		MarkerCount: t.markers,
		SampleCount: t.samples,
		Chromosomes: chroms,
	}, nil
}

// Commit moves a finished write to PhaseDone. Destinations call it only once
// the matrix is durably visible, so a failed commit can still be aborted.
func (t *WriteTracker) Commit() error {
	if err := t.expect(PhaseAllelesDone, "commit"); err != nil {
		return err
	}
	t.phase = PhaseDone
	return nil
}

// Abort marks the write invalid. It is idempotent and allowed from any phase
// except PhaseDone.
func (t *WriteTracker) Abort() bool {
	if t.phase == PhaseDone {
		return false
	}
	t.phase = PhaseAborted
	return true
}

// Revoke invalidates a committed write. It reports false unless the write is in
// PhaseDone.
func (t *WriteTracker) Revoke() bool {
	if t.phase != PhaseDone {
		return false
	}
	t.phase = PhaseAborted
	return true
}
