// Package loader imports PLINK text filesets (MAP + PED) as new root matrices,
// streaming them through the same Destination protocol extractions use.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"genomatrix/internal/extract"
	"genomatrix/internal/logging"
	"genomatrix/pkg/domain"
)

var logger = logging.Component("loader")

// Opener yields a fresh reader over one input file. The PED file is read twice,
// once for the sample phase and once for the genotype phase.
type Opener func() (io.ReadCloser, error)

// FileOpener opens path on every call.
func FileOpener(path string) Opener {
	return func() (io.ReadCloser, error) { return os.Open(path) }
}

// BytesOpener serves b on every call.
func BytesOpener(b []byte) Opener {
	return func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
}

// Input names one PLINK fileset.
type Input struct {
	Map Opener
	Ped Opener
	// Name and Description are recorded on the imported matrix.
	Name        string
	Description string
}

// Loader imports filesets and optionally records the resulting metadata.
type Loader struct {
	matrices extract.MatrixRecorder
	now      func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithMatrixRecorder persists the metadata of every imported matrix.
func WithMatrixRecorder(r extract.MatrixRecorder) Option {
	return func(l *Loader) { l.matrices = r }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// New builds a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load writes the fileset into dest under key. Samples are keyed in key's study.
// Markers with a negative position are excluded along with their genotype
// columns. Any failure after Init aborts dest.
func (l *Loader) Load(ctx context.Context, key domain.MatrixKey, in Input, dest extract.Destination) (domain.MatrixMetadata, error) {
	started := time.Now()
	markers, keep, err := readMap(in.Map)
	if err != nil {
		return domain.MatrixMetadata{}, err
	}
	if err := dest.Init(ctx, key); err != nil {
		return domain.MatrixMetadata{}, fmt.Errorf("init destination %s: %w", key, err)
	}
	meta, err := l.write(ctx, key, in, markers, keep, dest)
	if err != nil {
		dest.Abort(err)
		return domain.MatrixMetadata{}, fmt.Errorf("import into %s: %w", key, err)
	}
	meta.FriendlyName = in.Name
	if meta.FriendlyName == "" {
		meta.FriendlyName = key.MatrixID
	}
	meta.Description = in.Description
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = l.now().UTC()
	}
	if l.matrices != nil {
		stored, err := l.matrices.CreateMatrix(ctx, meta)
		if err != nil {
			err = fmt.Errorf("record matrix %s: %w", key, err)
			if derr := dest.Discard(context.WithoutCancel(ctx)); derr != nil {
				err = errors.Join(err, derr)
			}
			return domain.MatrixMetadata{}, err
		}
		meta = stored
	}
	logger.Info().Str("matrix", key.String()).Int("markers", meta.MarkerCount).
		Int("samples", meta.SampleCount).Str("encoding", string(meta.Encoding)).
		Dur("took", time.Since(started)).Msg("plink import completed")
	return meta, nil
}

func (l *Loader) write(ctx context.Context, key domain.MatrixKey, in Input, markers []domain.MarkerMetadata, keep []bool, dest extract.Destination) (domain.MatrixMetadata, error) {
	if err := dest.StartLoadingSampleInfos(true); err != nil {
		return domain.MatrixMetadata{}, err
	}
	seen := make(map[domain.SampleKey]struct{})
	err := scanPed(in.Ped, len(keep), func(line int, fields []string) error {
		info, err := parseSampleInfo(key.StudyID, fields)
		if err != nil {
			return fmt.Errorf("ped line %d: %w", line, err)
		}
		if _, dup := seen[info.Key]; dup {
			return domain.ErrDuplicate{Entity: domain.EntitySample, Key: info.Key.String()}
		}
		seen[info.Key] = struct{}{}
		return dest.AddSampleInfo(info)
	})
	if err != nil {
		return domain.MatrixMetadata{}, err
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
	for _, m := range markers {
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

	if err := dest.StartLoadingAlleles(true); err != nil {
		return domain.MatrixMetadata{}, err
	}
	index := 0
	err = scanPed(in.Ped, len(keep), func(line int, fields []string) error {
		row, err := parseGenotypes(fields[6:], keep, len(markers))
		if err != nil {
			return fmt.Errorf("ped line %d: %w", line, err)
		}
		if err := dest.AddSampleGTAlleles(index, row); err != nil {
			return err
		}
		index++
		return nil
	})
	if err != nil {
		return domain.MatrixMetadata{}, err
	}
	if err := dest.FinishedLoadingAlleles(); err != nil {
		return domain.MatrixMetadata{}, err
	}
	return dest.Done(ctx)
}

// readMap parses a MAP file: chromosome, variant id, optional genetic distance
// and base-pair position. keep has one entry per MAP line.
func readMap(open Opener) ([]domain.MarkerMetadata, []bool, error) {
	if open == nil {
		return nil, nil, fmt.Errorf("map file: no input")
	}
	r, err := open()
	if err != nil {
		return nil, nil, fmt.Errorf("open map file: %w", err)
	}
	defer func() { _ = r.Close() }()

	var (
		markers []domain.MarkerMetadata
		keep    []bool
		seen    = make(map[string]struct{})
	)
	err = scanLines(r, func(line int, fields []string) error {
		var posField string
		switch len(fields) {
		case 3:
			posField = fields[2]
		case 4:
			posField = fields[3]
		default:
			return fmt.Errorf("map line %d: expected 3 or 4 columns, got %d", line, len(fields))
		}
		pos, err := strconv.ParseInt(posField, 10, 64)
		if err != nil {
			return fmt.Errorf("map line %d: position %q: %w", line, posField, err)
		}
		if pos < 0 {
			keep = append(keep, false)
			return nil
		}
		id := fields[1]
		if _, dup := seen[id]; dup {
			return domain.ErrDuplicate{Entity: domain.EntityMarker, Key: id}
		}
		seen[id] = struct{}{}
		m := domain.MarkerMetadata{Key: domain.MarkerKey{ID: id}, Chromosome: fields[0], Position: pos}
		if strings.HasPrefix(strings.ToLower(id), "rs") {
			m.RsID = id
		}
		markers = append(markers, m)
		keep = append(keep, true)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return markers, keep, nil
}

// scanPed calls fn for every PED record after checking its column count against
// the number of MAP lines.
func scanPed(open Opener, mapLines int, fn func(line int, fields []string) error) error {
	if open == nil {
		return fmt.Errorf("ped file: no input")
	}
	r, err := open()
	if err != nil {
		return fmt.Errorf("open ped file: %w", err)
	}
	defer func() { _ = r.Close() }()
	want := 6 + 2*mapLines
	return scanLines(r, func(line int, fields []string) error {
		if len(fields) != want {
			return fmt.Errorf("ped line %d: expected %d columns, got %d", line, want, len(fields))
		}
		return fn(line, fields)
	})
}

func scanLines(r io.Reader, fn func(line int, fields []string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := fn(line, strings.Fields(text)); err != nil {
			return err
		}
	}
	return sc.Err()
}

func parseSampleInfo(study string, f []string) (domain.SampleInfo, error) {
	info := domain.SampleInfo{
		Key:      domain.SampleKey{StudyID: study, SampleID: f[1]},
		FamilyID: f[0],
		FatherID: parentID(f[2]),
		MotherID: parentID(f[3]),
	}
	switch f[4] {
	case "1":
		info.Sex = domain.SexMale
	case "2":
		info.Sex = domain.SexFemale
	}
	switch f[5] {
	case "1":
		info.Affection = domain.AffectionUnaffected
	case "2":
		info.Affection = domain.AffectionAffected
	case "0", "-9":
	default:
		// quantitative phenotype
		info.Category = f[5]
	}
	if info.Key.SampleID == "" {
		return domain.SampleInfo{}, fmt.Errorf("empty sample id")
	}
	return info, nil
}

func parentID(s string) string {
	if s == "0" {
		return ""
	}
	return s
}

func parseGenotypes(cols []string, keep []bool, markers int) (domain.GenotypesList, error) {
	row := make(domain.GenotypesList, 0, markers)
	for i, k := range keep {
		if !k {
			continue
		}
		a, err := allele(cols[2*i])
		if err != nil {
			return nil, err
		}
		b, err := allele(cols[2*i+1])
		if err != nil {
			return nil, err
		}
		row = append(row, domain.NewGenotype(a, b))
	}
	return row, nil
}

func allele(s string) (byte, error) {
	if len(s) != 1 {
		return 0, fmt.Errorf("allele %q is not a single character", s)
	}
	switch c := s[0]; c {
	case '0', 'N', 'n', '-', '.':
		return domain.MissingAllele, nil
	default:
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		return c, nil
	}
}
