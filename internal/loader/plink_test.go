package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"genomatrix/internal/infra/persistence"
	"genomatrix/internal/infra/source/memory"
	"genomatrix/internal/projection"
	"genomatrix/pkg/domain"
)

const mapText = `# chr id cm bp
1 rs1 0 100
1 rs2 0 200
2 snp3 0 -5
2 rs4 0.1 400
`

const pedText = `F1 S1 0 0 1 2 A C G G 0 0 T T
F1 S2 S1 0 2 1 c c G A 1 2 T 0
`

var key = domain.MatrixKey{StudyID: "st", MatrixID: "imp"}

func input(mapData, pedData string) Input {
	return Input{Map: BytesOpener([]byte(mapData)), Ped: BytesOpener([]byte(pedData)), Name: "cohort"}
}

func TestLoadPlinkIntoMemory(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	catalog := persistence.NewMemoryCatalog()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	l := New(WithMatrixRecorder(catalog), WithClock(func() time.Time { return at }))

	meta, err := l.Load(ctx, key, input(mapText, pedText), memory.NewDestination(reg))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.MarkerCount != 3 || meta.SampleCount != 2 {
		t.Fatalf("unexpected shape %d markers x %d samples", meta.MarkerCount, meta.SampleCount)
	}
	if meta.Encoding != domain.EncodingACGT0 {
		t.Fatalf("expected ACGT0 encoding, got %s", meta.Encoding)
	}
	if meta.FriendlyName != "cohort" || !meta.CreatedAt.Equal(at) {
		t.Fatalf("unexpected naming %q at %v", meta.FriendlyName, meta.CreatedAt)
	}
	wantChrom := []domain.ChromosomeInfo{
		{Chromosome: "1", FirstIndex: 0, LastIndex: 1, MarkerCount: 2},
		{Chromosome: "2", FirstIndex: 2, LastIndex: 2, MarkerCount: 1},
	}
	if diff := cmp.Diff(wantChrom, meta.Chromosomes); diff != "" {
		t.Fatalf("chromosomes mismatch (-want +got):\n%s", diff)
	}
	if _, ok := catalog.GetMatrix(key); !ok {
		t.Fatalf("expected recorded matrix")
	}

	src, ok := reg.Lookup(key)
	if !ok {
		t.Fatalf("expected registered matrix")
	}
	rows, err := projection.Collect(src.Samples().Genotypes())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	want := []domain.GenotypesList{
		{{'A', 'C'}, {'G', 'G'}, {'T', 'T'}},
		{{'C', 'C'}, {'G', 'A'}, {'T', '0'}},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("genotypes mismatch (-want +got):\n%s", diff)
	}
	infos, err := projection.Collect(src.Samples().Metadata())
	if err != nil {
		t.Fatalf("collect samples: %v", err)
	}
	second := infos[1]
	if second.FatherID != "S1" || second.MotherID != "" || second.Sex != domain.SexFemale || second.Affection != domain.AffectionUnaffected {
		t.Fatalf("unexpected pedigree fields %+v", second)
	}
	markers, err := projection.Collect(src.Markers().Metadata())
	if err != nil {
		t.Fatalf("collect markers: %v", err)
	}
	if markers[2].Key.ID != "rs4" || markers[2].RsID != "rs4" || markers[2].Position != 400 {
		t.Fatalf("unexpected third marker %+v", markers[2])
	}
}

func TestLoadRejectsMalformedInput(t *testing.T) {
	cases := map[string]Input{
		"short ped row":    input(mapText, "F1 S1 0 0 1 2 A C\n"),
		"bad position":     input("1 rs1 0 abc\n", "F1 S1 0 0 1 2 A C\n"),
		"bad map columns":  input("1 rs1\n", "F1 S1 0 0 1 2 A C\n"),
		"multi-char":       input("1 rs1 0 1\n", "F1 S1 0 0 1 2 AA C\n"),
		"duplicate marker": input("1 rs1 0 1\n1 rs1 0 2\n", "F1 S1 0 0 1 2 A C A C\n"),
		"duplicate sample": input("1 rs1 0 1\n", "F1 S1 0 0 1 2 A C\nF2 S1 0 0 1 2 A C\n"),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			reg := memory.NewRegistry()
			if _, err := New().Load(context.Background(), key, in, memory.NewDestination(reg)); err == nil {
				t.Fatalf("expected error")
			}
			if _, ok := reg.Lookup(key); ok {
				t.Fatalf("failed import must not register a matrix")
			}
		})
	}
}

func TestLoadDuplicateSampleReportsTypedError(t *testing.T) {
	_, err := New().Load(context.Background(), key, input("1 rs1 0 1\n", "F1 S1 0 0 1 2 A C\nF2 S1 0 0 1 2 A C\n"), memory.NewDestination(memory.NewRegistry()))
	var dup domain.ErrDuplicate
	if !errors.As(err, &dup) || dup.Entity != domain.EntitySample {
		t.Fatalf("expected duplicate sample, got %v", err)
	}
}

func TestLoadIntoTakenKeyFails(t *testing.T) {
	reg := memory.NewRegistry()
	ctx := context.Background()
	if _, err := New().Load(ctx, key, input(mapText, pedText), memory.NewDestination(reg)); err != nil {
		t.Fatalf("first load: %v", err)
	}
	_, err := New().Load(ctx, key, input(mapText, pedText), memory.NewDestination(reg))
	var dup domain.ErrDuplicate
	if !errors.As(err, &dup) || dup.Entity != domain.EntityMatrix {
		t.Fatalf("expected duplicate matrix, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	in := Input{Map: FileOpener("/nonexistent/x.map"), Ped: BytesOpener(nil)}
	if _, err := New().Load(context.Background(), key, in, memory.NewDestination(memory.NewRegistry())); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestLoadUnrecordedMatrixIsDiscarded(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	catalog := persistence.NewMemoryCatalog()
	if _, err := catalog.CreateMatrix(ctx, domain.MatrixMetadata{Key: key, FriendlyName: "earlier"}); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	_, err := New(WithMatrixRecorder(catalog)).Load(ctx, key, input(mapText, pedText), memory.NewDestination(reg))
	var dup domain.ErrDuplicate
	if !errors.As(err, &dup) {
		t.Fatalf("expected duplicate from the catalog, got %v", err)
	}
	if _, ok := reg.Lookup(key); ok {
		t.Fatalf("matrix the catalog refused is still registered")
	}
}
