package extract

import (
	"fmt"
	"strings"
	"time"

	"genomatrix/internal/pick"
	"genomatrix/pkg/domain"
)

// MetadataFactory completes the structural metadata a destination reports with
// naming, lineage and a provenance description of the criteria applied.
type MetadataFactory struct {
	Now func() time.Time
}

// Build returns the persisted record for an extraction of parent.
func (f MetadataFactory) Build(meta domain.MatrixMetadata, p Params, parent domain.DataSetKey, markers, samples pick.Criteria) domain.MatrixMetadata {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	out := meta
	out.FriendlyName = p.FriendlyName
	if out.FriendlyName == "" {
		out.FriendlyName = "extract of " + parent.String()
	}
	out.Description = Describe(p.Description, parent, out, markers, samples)
	lineage := parent
	out.Parent = &lineage
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now().UTC()
	}
	return out
}

// Describe renders the human-readable provenance of an extraction: the user's
// note, the parent, the resulting shape and the criteria of both dimensions.
func Describe(note string, parent domain.DataSetKey, meta domain.MatrixMetadata, markers, samples pick.Criteria) string {
	var b strings.Builder
	if note = strings.TrimSpace(note); note != "" {
		b.WriteString(note)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Extracted from %s.\n", parent)
	fmt.Fprintf(&b, "Markers: %d, samples: %d, encoding: %s.\n", meta.MarkerCount, meta.SampleCount, meta.Encoding)
	describeCriteria(&b, "Markers", markers)
	describeCriteria(&b, "Samples", samples)
	return strings.TrimRight(b.String(), "\n")
}

func describeCriteria(b *strings.Builder, dim string, c pick.Criteria) {
	switch {
	case c.Case == pick.All:
		fmt.Fprintf(b, "%s: all retained.\n", dim)
		return
	case c.Case.IsInclude():
		fmt.Fprintf(b, "%s: included %s", dim, subject(c))
	case c.Case.IsExclude():
		fmt.Fprintf(b, "%s: excluded %s", dim, subject(c))
	default:
		fmt.Fprintf(b, "%s: %s", dim, c.Case)
	}
	if len(c.Inline) > 0 {
		fmt.Fprintf(b, "; inline values: %s", strings.Join(c.Inline, ", "))
	}
	if c.File != "" {
		fmt.Fprintf(b, "; %d values from criteria file %s", len(c.FromFile), c.File)
	}
	if len(c.Inline) == 0 && c.File == "" {
		b.WriteString("; no criteria given")
	}
	b.WriteString(".\n")
}

func subject(c pick.Criteria) string {
	switch c.Case {
	case pick.IncludeByID, pick.ExcludeByID:
		return "by id"
	case pick.IncludeByFieldValue, pick.ExcludeByFieldValue:
		return fmt.Sprintf("by field %q", c.Field)
	default:
		return fmt.Sprintf("by external field %q", c.Field)
	}
}
