package pick

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"genomatrix/pkg/domain"
)

// Field reads one typed attribute of a descriptor. Parse converts a criteria token
// to the same type, so matching compares typed values.
type Field[M any] struct {
	Name  string
	Value func(M) any
	Parse func(string) (any, error)
}

// MarkerFields lists the marker metadata fields usable in *_BY_FIELD_VALUE picks.
var MarkerFields = fieldSet[domain.MarkerMetadata]{
	"chromosome": {Value: func(m domain.MarkerMetadata) any { return normChromosome(m.Chromosome) }, Parse: parseChromosome},
	"position":   {Value: func(m domain.MarkerMetadata) any { return m.Position }, Parse: parseInt64},
	"rsid":       {Value: func(m domain.MarkerMetadata) any { return m.RsID }, Parse: parseString},
	"strand":     {Value: func(m domain.MarkerMetadata) any { return m.Strand }, Parse: parseString},
	"alleles":    {Value: func(m domain.MarkerMetadata) any { return strings.ToUpper(m.Alleles) }, Parse: parseUpper},
}

// SampleFields lists the sample info fields usable in *_BY_FIELD_VALUE picks.
var SampleFields = fieldSet[domain.SampleInfo]{
	"family":     {Value: func(s domain.SampleInfo) any { return s.FamilyID }, Parse: parseString},
	"father":     {Value: func(s domain.SampleInfo) any { return s.FatherID }, Parse: parseString},
	"mother":     {Value: func(s domain.SampleInfo) any { return s.MotherID }, Parse: parseString},
	"sex":        {Value: func(s domain.SampleInfo) any { return s.Sex }, Parse: parseSex},
	"affection":  {Value: func(s domain.SampleInfo) any { return s.Affection }, Parse: parseAffection},
	"category":   {Value: func(s domain.SampleInfo) any { return s.Category }, Parse: parseString},
	"disease":    {Value: func(s domain.SampleInfo) any { return s.Disease }, Parse: parseString},
	"population": {Value: func(s domain.SampleInfo) any { return s.Population }, Parse: parseString},
	"age":        {Value: func(s domain.SampleInfo) any { return s.Age }, Parse: parseInt},
	"filter":     {Value: func(s domain.SampleInfo) any { return s.Filter }, Parse: parseString},
	"approved":   {Value: func(s domain.SampleInfo) any { return s.Approved }, Parse: parseInt},
	"status":     {Value: func(s domain.SampleInfo) any { return s.Status }, Parse: parseInt},
}

type fieldSet[M any] map[string]Field[M]

func (fs fieldSet[M]) lookup(name string) (Field[M], error) {
	f, ok := fs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Field[M]{}, fmt.Errorf("unknown field %q (known: %s)", name, strings.Join(fs.Names(), ", "))
	}
	f.Name = strings.ToLower(strings.TrimSpace(name))
	return f, nil
}

// Names returns the field names in sorted order.
func (fs fieldSet[M]) Names() []string {
	out := make([]string, 0, len(fs))
	for n := range fs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// valueSet converts tokens with f.Parse.
func valueSet[M any](f Field[M], tokens []string) (map[any]struct{}, error) {
	set := make(map[any]struct{}, len(tokens))
	for _, tok := range tokens {
		v, err := f.Parse(tok)
		if err != nil {
			return nil, fmt.Errorf("field %s: criterion %q: %w", f.Name, tok, err)
		}
		set[v] = struct{}{}
	}
	return set, nil
}

func parseString(s string) (any, error) { return s, nil }

func parseUpper(s string) (any, error) { return strings.ToUpper(s), nil }

func parseInt(s string) (any, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func parseInt64(s string) (any, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func normChromosome(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 3 && strings.EqualFold(s[:3], "chr") {
		s = s[3:]
	}
	return strings.ToUpper(s)
}

func parseChromosome(s string) (any, error) { return normChromosome(s), nil }

func parseSex(s string) (any, error) {
	switch strings.ToLower(s) {
	case "1", "m", "male":
		return domain.SexMale, nil
	case "2", "f", "female":
		return domain.SexFemale, nil
	case "0", "u", "unknown":
		return domain.SexUnknown, nil
	}
	return nil, fmt.Errorf("not a sex code")
}

func parseAffection(s string) (any, error) {
	switch strings.ToLower(s) {
	case "1", "unaffected":
		return domain.AffectionUnaffected, nil
	case "2", "affected":
		return domain.AffectionAffected, nil
	case "0", "-9", "unknown":
		return domain.AffectionUnknown, nil
	}
	return nil, fmt.Errorf("not an affection code")
}
