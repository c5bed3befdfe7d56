// Package pick selects markers or samples of a dataset. A picker scans one
// dimension in index order and emits the positions it retains together with their
// original indices and descriptors; it never touches genotype rows and never
// reorders.
package pick

import (
	"fmt"
	"strings"
)

// Case is the selection strategy for one dimension.
type Case int

const (
	All Case = iota
	IncludeByID
	ExcludeByID
	IncludeByFieldValue
	ExcludeByFieldValue
	IncludeByExternalField
	ExcludeByExternalField
)

var caseNames = [...]string{
	All:                    "ALL",
	IncludeByID:            "INCLUDE_BY_ID",
	ExcludeByID:            "EXCLUDE_BY_ID",
	IncludeByFieldValue:    "INCLUDE_BY_FIELD_VALUE",
	ExcludeByFieldValue:    "EXCLUDE_BY_FIELD_VALUE",
	IncludeByExternalField: "INCLUDE_BY_EXTERNAL_FIELD",
	ExcludeByExternalField: "EXCLUDE_BY_EXTERNAL_FIELD",
}

func (c Case) String() string {
	if c < 0 || int(c) >= len(caseNames) {
		return fmt.Sprintf("Case(%d)", int(c))
	}
	return caseNames[c]
}

// ParseCase accepts the canonical names case-insensitively, with '-' or ' ' in
// place of '_'.
func ParseCase(s string) (Case, error) {
	norm := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	for i, name := range caseNames {
		if name == norm {
			return Case(i), nil
		}
	}
	return All, fmt.Errorf("unknown pick case %q", s)
}

// IsInclude reports whether matching entities are retained.
func (c Case) IsInclude() bool {
	return c == IncludeByID || c == IncludeByFieldValue || c == IncludeByExternalField
}

// IsExclude reports whether matching entities are dropped.
func (c Case) IsExclude() bool {
	return c == ExcludeByID || c == ExcludeByFieldValue || c == ExcludeByExternalField
}

func (c Case) byID() bool { return c == IncludeByID || c == ExcludeByID }

func (c Case) byFieldValue() bool { return c == IncludeByFieldValue || c == ExcludeByFieldValue }

func (c Case) byExternalField() bool {
	return c == IncludeByExternalField || c == ExcludeByExternalField
}

// MarshalText renders the canonical name.
func (c Case) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(caseNames) {
		return nil, fmt.Errorf("unknown pick case %d", int(c))
	}
	return []byte(caseNames[c]), nil
}

// UnmarshalText parses a case name, so request files can spell cases as strings.
func (c *Case) UnmarshalText(b []byte) error {
	parsed, err := ParseCase(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
