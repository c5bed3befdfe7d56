package pick

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Params configures the picker of one dimension.
type Params struct {
	Case Case `yaml:"case" json:"case"`
	// Field names the metadata or external field of the *_BY_FIELD_VALUE and
	// *_BY_EXTERNAL_FIELD cases.
	Field        string   `yaml:"field,omitempty" json:"field,omitempty"`
	Criteria     []string `yaml:"criteria,omitempty" json:"criteria,omitempty"`
	CriteriaFile string   `yaml:"criteria_file,omitempty" json:"criteria_file,omitempty"`
}

// Criteria is what a picker actually applied, kept for provenance.
type Criteria struct {
	Case     Case
	Field    string
	Inline   []string
	File     string
	FromFile []string
}

// Tokens is the union of inline and file tokens, first occurrence order.
func (c Criteria) Tokens() []string {
	seen := make(map[string]struct{}, len(c.Inline)+len(c.FromFile))
	out := make([]string, 0, len(c.Inline)+len(c.FromFile))
	for _, list := range [][]string{c.Inline, c.FromFile} {
		for _, tok := range list {
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}

// LoadCriteria resolves p into the criteria to apply, reading the criteria file
// when one is named.
func LoadCriteria(p Params) (Criteria, error) {
	c := Criteria{Case: p.Case, Field: p.Field, File: p.CriteriaFile}
	for _, tok := range p.Criteria {
		if tok = strings.TrimSpace(tok); tok != "" {
			c.Inline = append(c.Inline, tok)
		}
	}
	if p.CriteriaFile == "" {
		return c, nil
	}
	f, err := os.Open(p.CriteriaFile)
	if err != nil {
		return Criteria{}, fmt.Errorf("open criteria file: %w", err)
	}
	defer f.Close()
	toks, err := ReadCriteria(f)
	if err != nil {
		return Criteria{}, fmt.Errorf("criteria file %s: %w", p.CriteriaFile, err)
	}
	c.FromFile = toks
	return c, nil
}

// ReadCriteria returns one token per line. Blank lines and lines starting with
// '#' are skipped.
func ReadCriteria(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
