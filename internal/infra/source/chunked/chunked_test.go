package chunked

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"genomatrix/internal/blob"
	"genomatrix/internal/projection"
	"genomatrix/pkg/domain"
)

var alleles = []byte("ACGT")

func genotypeAt(sample, marker int) domain.Genotype {
	return domain.NewGenotype(alleles[(sample+2*marker)%4], alleles[(sample*3+marker)%4])
}

func fixture(markers, samples int) ([]domain.MarkerMetadata, []domain.SampleInfo) {
	mm := make([]domain.MarkerMetadata, markers)
	for i := range mm {
		mm[i] = domain.MarkerMetadata{Key: domain.MarkerKey{ID: fmt.Sprintf("rs%d", i+1)}, Chromosome: fmt.Sprint(1 + i/4), Position: int64(100 * (i + 1))}
	}
	ss := make([]domain.SampleInfo, samples)
	for i := range ss {
		ss[i] = domain.SampleInfo{Key: domain.SampleKey{StudyID: "st", SampleID: fmt.Sprintf("S%d", i+1)}, Sex: domain.SexFemale}
	}
	return mm, ss
}

func newStore(t *testing.T, blobs blob.Store, chunkRows int) *Store {
	t.Helper()
	s, err := NewStore(blobs, WithChunkRows(chunkRows), WithCacheChunks(4))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// writeMatrix streams a generated matrix through a Destination.
func writeMatrix(t *testing.T, s *Store, key domain.MatrixKey, markers, samples int, perSample bool) domain.MatrixMetadata {
	t.Helper()
	d := NewDestination(s)
	fillDestination(t, d, key, markers, samples, perSample)
	meta, err := d.Done(context.Background())
	if err != nil {
		t.Fatalf("done: %v", err)
	}
	return meta
}

// fillDestination runs every write phase short of Done.
func fillDestination(t *testing.T, d *Destination, key domain.MatrixKey, markers, samples int, perSample bool) {
	t.Helper()
	ctx := context.Background()
	mm, ss := fixture(markers, samples)
	must := func(step string, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", step, err)
		}
	}
	must("init", d.Init(ctx, key))
	must("start samples", d.StartLoadingSampleInfos(true))
	for _, info := range ss {
		must("add sample", d.AddSampleInfo(info))
	}
	must("finish samples", d.FinishedLoadingSampleInfos())
	must("start markers", d.StartLoadingMarkerMetadatas(true))
	for _, m := range mm {
		must("add marker", d.AddMarkerMetadata(m))
	}
	must("finish markers", d.FinishedLoadingMarkerMetadatas())
	must("start alleles", d.StartLoadingAlleles(perSample))
	if perSample {
		for s := 0; s < samples; s++ {
			row := make(domain.GenotypesList, markers)
			for m := range row {
				row[m] = genotypeAt(s, m)
			}
			must("add sample row", d.AddSampleGTAlleles(s, row))
		}
	} else {
		for m := 0; m < markers; m++ {
			row := make(domain.GenotypesList, samples)
			for s := range row {
				row[s] = genotypeAt(s, m)
			}
			must("add marker row", d.AddMarkerGTAlleles(m, row))
		}
	}
	must("finish alleles", d.FinishedLoadingAlleles())
}

func TestRoundTrip_BothLayoutsAndBackends(t *testing.T) {
	ctx := context.Background()
	for _, perSample := range []bool{true, false} {
		for _, blobs := range []blob.Store{blob.NewMemory(), blob.NewMockS3ForTests()} {
			t.Run(fmt.Sprintf("%s/perSample=%v", blobs.Driver(), perSample), func(t *testing.T) {
				s := newStore(t, blobs, 2)
				key := domain.MatrixKey{StudyID: "st", MatrixID: "m1"}
				meta := writeMatrix(t, s, key, 7, 5, perSample)
				if meta.MarkerCount != 7 || meta.SampleCount != 5 || meta.Encoding != domain.EncodingACGT0 {
					t.Fatalf("unexpected metadata %+v", meta)
				}
				if len(meta.Chromosomes) != 2 || meta.Chromosomes[1].FirstIndex != 4 {
					t.Fatalf("unexpected chromosome runs %+v", meta.Chromosomes)
				}

				src, err := s.OpenMatrix(ctx, key)
				if err != nil {
					t.Fatalf("open: %v", err)
				}
				defer src.Close()
				wantLayout := domain.PerMarker
				if perSample {
					wantLayout = domain.PerSample
				}
				if src.Orientation() != wantLayout {
					t.Fatalf("orientation %s, want %s", src.Orientation(), wantLayout)
				}
				markers, err := projection.Collect[domain.MarkerMetadata](src.Markers().Metadata())
				if err != nil {
					t.Fatalf("markers: %v", err)
				}
				wantMarkers, wantSamples := fixture(7, 5)
				if diff := cmp.Diff(wantMarkers, markers); diff != "" {
					t.Fatalf("markers (-want +got):\n%s", diff)
				}
				sampleKeys, err := projection.Collect[domain.SampleKey](src.Samples().Keys())
				if err != nil {
					t.Fatalf("sample keys: %v", err)
				}
				if len(sampleKeys) != 5 || sampleKeys[4] != wantSamples[4].Key {
					t.Fatalf("sample keys %v", sampleKeys)
				}
				for sIdx := 0; sIdx < 5; sIdx++ {
					row, err := src.Samples().Genotypes().At(sIdx)
					if err != nil {
						t.Fatalf("sample row %d: %v", sIdx, err)
					}
					for m, g := range row {
						if g != genotypeAt(sIdx, m) {
							t.Fatalf("sample %d marker %d: got %v want %v", sIdx, m, g, genotypeAt(sIdx, m))
						}
					}
				}
				mrow, err := src.Markers().Genotypes().At(6)
				if err != nil {
					t.Fatalf("marker row: %v", err)
				}
				for sIdx, g := range mrow {
					if g != genotypeAt(sIdx, 6) {
						t.Fatalf("marker 6 sample %d: got %v", sIdx, g)
					}
				}
			})
		}
	}
}

func TestReadRange_ValidatesBeforeFetching(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, blob.NewMemory(), 3)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "m"}
	writeMatrix(t, s, key, 4, 6, true)

	for _, tc := range []struct{ from, to int }{{-1, 2}, {0, 7}, {4, 3}} {
		_, err := s.ReadRange(ctx, key, domain.PerSample, tc.from, tc.to)
		var oor domain.ErrOutOfRange
		if !errors.As(err, &oor) || oor.Len != 6 {
			t.Fatalf("range [%d,%d): expected ErrOutOfRange over 6, got %v", tc.from, tc.to, err)
		}
	}
	if _, err := s.ReadRange(ctx, key, domain.Orientation("diagonal"), 0, 1); err == nil {
		t.Fatalf("expected invalid dimension to fail")
	}
	rows, err := s.ReadRange(ctx, key, domain.PerSample, 2, 2)
	if err != nil || len(rows) != 0 {
		t.Fatalf("empty range: %v %v", rows, err)
	}
	rows, err = s.ReadRange(ctx, key, domain.PerSample, 2, 5)
	if err != nil || len(rows) != 3 {
		t.Fatalf("range spanning chunks: %d %v", len(rows), err)
	}
	if rows[0][3] != genotypeAt(2, 3) || rows[2][0] != genotypeAt(4, 0) {
		t.Fatalf("range rows do not match source")
	}
	across, err := s.ReadRange(ctx, key, domain.PerMarker, 1, 3)
	if err != nil || len(across) != 2 || len(across[0]) != 6 {
		t.Fatalf("cross-layout range: %v %v", across, err)
	}
	if across[1][5] != genotypeAt(5, 2) {
		t.Fatalf("cross-layout genotype mismatch")
	}
}

func TestAbort_LeavesNothingVisible(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	s := newStore(t, blobs, 1)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "partial"}
	mm, ss := fixture(2, 2)
	d := NewDestination(s)
	if err := d.Init(ctx, key); err != nil {
		t.Fatalf("init: %v", err)
	}
	_ = d.StartLoadingSampleInfos(true)
	for _, info := range ss {
		_ = d.AddSampleInfo(info)
	}
	_ = d.FinishedLoadingSampleInfos()
	_ = d.StartLoadingMarkerMetadatas(true)
	for _, m := range mm {
		_ = d.AddMarkerMetadata(m)
	}
	_ = d.FinishedLoadingMarkerMetadatas()
	_ = d.StartLoadingAlleles(true)
	if err := d.AddSampleGTAlleles(0, domain.GenotypesList{{'A', 'A'}, {'C', 'C'}}); err != nil {
		t.Fatalf("add row: %v", err)
	}
	if left, _ := blobs.List(ctx, "matrices/st/partial/"); len(left) == 0 {
		t.Fatalf("expected partial blobs before abort")
	}
	if _, err := s.OpenMatrix(ctx, key); !isNotFound(err) {
		t.Fatalf("uncommitted matrix must not open, got %v", err)
	}

	d.Abort(errors.New("selection failed"))
	left, err := blobs.List(ctx, "matrices/st/partial/")
	if err != nil || len(left) != 0 {
		t.Fatalf("abort left %d blobs (%v)", len(left), err)
	}
	if _, err := d.Done(ctx); err == nil {
		t.Fatalf("done after abort must fail")
	}
}

func TestInit_RejectsTakenKey(t *testing.T) {
	s := newStore(t, blob.NewMemory(), 4)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "m"}
	writeMatrix(t, s, key, 2, 2, false)
	d := NewDestination(s)
	var dup domain.ErrDuplicate
	if err := d.Init(context.Background(), key); !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	d.Abort(nil)
	if _, err := s.OpenMatrix(context.Background(), key); err != nil {
		t.Fatalf("abort of a rejected init must not touch the existing matrix: %v", err)
	}
}

func TestCache_ServesChunksUntilDelete(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	s := newStore(t, blobs, 2)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "m"}
	writeMatrix(t, s, key, 3, 2, true)

	if _, err := s.ReadRange(ctx, key, domain.PerSample, 0, 2); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	if _, err := blobs.Delete(ctx, "matrices/st/m/"+chunkName(0)); err != nil {
		t.Fatalf("delete chunk blob: %v", err)
	}
	if _, err := s.ReadRange(ctx, key, domain.PerSample, 0, 2); err != nil {
		t.Fatalf("cached read: %v", err)
	}
	n, err := s.Delete(ctx, key)
	if err != nil || n != 3 {
		t.Fatalf("delete matrix: %d %v", n, err)
	}
	if _, err := s.ReadRange(ctx, key, domain.PerSample, 0, 2); !isNotFound(err) {
		t.Fatalf("deleted matrix must be gone, got %v", err)
	}
}

func TestReadRange_RowsDoNotAliasCache(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, blob.NewMemory(), 2)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "m"}
	writeMatrix(t, s, key, 3, 2, true)

	rows, err := s.ReadRange(ctx, key, domain.PerSample, 0, 2)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := rows[0].Clone()
	rows[0][0] = domain.MissingGenotype
	again, err := s.ReadRange(ctx, key, domain.PerSample, 0, 1)
	if err != nil {
		t.Fatalf("reread: %v", err)
	}
	if !again[0].Equal(want) {
		t.Fatalf("caller write leaked into the cache: got %v, want %v", again[0], want)
	}
}

func TestSource_OutlivesOpenContext(t *testing.T) {
	s := newStore(t, blob.NewMemory(), 2)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "m"}
	writeMatrix(t, s, key, 3, 2, false)

	ctx, cancel := context.WithCancel(context.Background())
	src, err := s.OpenMatrix(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = src.Close() }()
	cancel()

	if m, err := src.Markers().Metadata().At(1); err != nil || m.Key.ID != "rs2" {
		t.Fatalf("metadata after open context ended: %+v %v", m, err)
	}
	if _, err := src.Samples().Genotypes().At(1); err != nil {
		t.Fatalf("genotypes after open context ended: %v", err)
	}
}

func TestList_OnlyCommittedMatrices(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	s := newStore(t, blobs, 8)
	writeMatrix(t, s, domain.MatrixKey{StudyID: "b", MatrixID: "m2"}, 1, 1, true)
	writeMatrix(t, s, domain.MatrixKey{StudyID: "a", MatrixID: "m1"}, 1, 1, false)
	if _, err := blob.PutBytes(ctx, blobs, "matrices/a/orphan/"+chunkName(0), []byte{0}, blob.PutOptions{}); err != nil {
		t.Fatalf("put orphan: %v", err)
	}
	keys, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []domain.MatrixKey{{StudyID: "a", MatrixID: "m1"}, {StudyID: "b", MatrixID: "m2"}}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}
}

func TestSource_ClosedRejectsReads(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, blob.NewMemory(), 2)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "m"}
	writeMatrix(t, s, key, 2, 2, true)
	src, err := s.OpenMatrix(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if src.Markers().Len() != 2 || src.OrigSource() != src || src.Parent() != nil {
		t.Fatalf("unexpected root source shape")
	}
	_ = src.Close()
	if _, err := src.Samples().Genotypes().At(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := src.Markers().Metadata().At(0); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for metadata, got %v", err)
	}
}

func TestWriter_AppendOnly(t *testing.T) {
	s := newStore(t, blob.NewMemory(), 2)
	w, err := s.NewWriter(domain.MatrixKey{StudyID: "st", MatrixID: "w"}, domain.PerMarker, 1)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	ctx := context.Background()
	if err := w.WriteRow(ctx, 1, domain.GenotypesList{{'A', 'A'}}); err == nil {
		t.Fatalf("expected out-of-order row to fail")
	}
	if err := w.WriteRow(ctx, 0, domain.GenotypesList{{'A', 'A'}, {'C', 'C'}}); err == nil {
		t.Fatalf("expected wrong row length to fail")
	}
	for i := 0; i < 3; i++ {
		if err := w.WriteRow(ctx, i, domain.GenotypesList{{'A', 'C'}}); err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if w.Rows() != 3 || w.Chunks() != 2 {
		t.Fatalf("rows=%d chunks=%d", w.Rows(), w.Chunks())
	}
}

func TestMatrixPrefix_RejectsUnsafeKeys(t *testing.T) {
	for _, key := range []domain.MatrixKey{{StudyID: "", MatrixID: "m"}, {StudyID: "a/b", MatrixID: "m"}, {StudyID: "st", MatrixID: ".."}} {
		if _, err := matrixPrefix(key); err == nil {
			t.Fatalf("expected %q to be rejected", key.String())
		}
	}
}

func TestManifest_Validate(t *testing.T) {
	good := ArrayMeta{Format: FormatVersion, Shape: [2]int{5, 3}, Layout: domain.PerMarker, ChunkRows: 2, Chunks: 3, Compressor: CompressionMeta{ID: codecID}}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
	bad := good
	bad.Chunks = 2
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected chunk count mismatch to fail")
	}
	bad = good
	bad.Compressor.ID = "lz4"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected unknown compressor to fail")
	}
}

// manifestFailing refuses to store manifests so a commit fails after every other
// blob of the matrix is written.
type manifestFailing struct {
	blob.Store
}

var errManifestDown = errors.New("manifest volume down")

func (m manifestFailing) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if strings.HasSuffix(key, "/"+manifestName) {
		return blob.Info{}, errManifestDown
	}
	return m.Store.Put(ctx, key, r, opts)
}

func TestDone_FailedManifestCanStillBeAborted(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	s := newStore(t, manifestFailing{Store: blobs}, 1)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "p"}
	d := NewDestination(s)
	fillDestination(t, d, key, 3, 2, true)

	if _, err := d.Done(ctx); !errors.Is(err, errManifestDown) {
		t.Fatalf("expected manifest failure, got %v", err)
	}
	if left, _ := blobs.List(ctx, "matrices/st/p/"); len(left) == 0 {
		t.Fatalf("expected descriptor and chunk blobs before abort")
	}
	d.Abort(errManifestDown)
	left, err := blobs.List(ctx, "matrices/st/p/")
	if err != nil || len(left) != 0 {
		t.Fatalf("abort after failed commit left %d blobs (%v)", len(left), err)
	}
	if err := NewDestination(s).Init(ctx, key); err != nil {
		t.Fatalf("key should be free again: %v", err)
	}
}

func TestDiscard_RemovesCommittedMatrix(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	s := newStore(t, blobs, 2)
	key := domain.MatrixKey{StudyID: "st", MatrixID: "gone"}
	d := NewDestination(s)
	if err := d.Discard(ctx); err == nil {
		t.Fatalf("discard before commit must fail")
	}
	fillDestination(t, d, key, 4, 3, false)
	if _, err := d.Done(ctx); err != nil {
		t.Fatalf("done: %v", err)
	}
	src, err := s.OpenMatrix(ctx, key)
	if err != nil {
		t.Fatalf("open committed matrix: %v", err)
	}
	if _, err := src.Markers().Genotypes().At(0); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	_ = src.Close()

	if err := d.Discard(ctx); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := s.OpenMatrix(ctx, key); !isNotFound(err) {
		t.Fatalf("discarded matrix must not open, got %v", err)
	}
	if left, _ := blobs.List(ctx, "matrices/st/gone/"); len(left) != 0 {
		t.Fatalf("discard left %d blobs", len(left))
	}
	if err := d.Discard(ctx); err == nil {
		t.Fatalf("second discard must fail")
	}
}

func isNotFound(err error) bool {
	var nf domain.ErrNotFound
	return errors.As(err, &nf)
}
