package domain

// MissingAllele is the allele code stored for an uncalled allele.
const MissingAllele byte = '0'

// Genotype is the pair of allele codes observed at one marker for one sample.
type Genotype [2]byte

// MissingGenotype is the genotype of an uncalled site.
var MissingGenotype = Genotype{MissingAllele, MissingAllele}

// NewGenotype builds a genotype from two allele codes.
func NewGenotype(a, b byte) Genotype { return Genotype{a, b} }

// IsMissing reports whether either allele is uncalled.
func (g Genotype) IsMissing() bool { return g[0] == MissingAllele || g[1] == MissingAllele }

func (g Genotype) String() string { return string(g[:]) }

// GenotypesList is the ordered genotype row of one marker (across all samples) or
// of one sample (across all markers). Its length equals the size of the sibling
// dimension of the source it was read from.
type GenotypesList []Genotype

// Equal compares two rows allele by allele.
func (l GenotypesList) Equal(other GenotypesList) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the row.
func (l GenotypesList) Clone() GenotypesList {
	if l == nil {
		return nil
	}
	out := make(GenotypesList, len(l))
	copy(out, l)
	return out
}

// Orientation names the dimension genotype rows are transcribed or stored along.
type Orientation string

const (
	// PerSample rows hold one sample's genotypes across all markers.
	PerSample Orientation = "per_sample"
	// PerMarker rows hold one marker's genotypes across all samples.
	PerMarker Orientation = "per_marker"
)

// Valid reports whether o is a known orientation.
func (o Orientation) Valid() bool { return o == PerSample || o == PerMarker }

// GenotypeEncoding describes how allele codes are spelled in a matrix.
type GenotypeEncoding string

const (
	EncodingACGT0   GenotypeEncoding = "ACGT0"
	Encoding1234    GenotypeEncoding = "O1234"
	Encoding12      GenotypeEncoding = "O12"
	EncodingAB0     GenotypeEncoding = "AB0"
	EncodingUnknown GenotypeEncoding = "UNKNOWN"
)

// DetectEncoding guesses the encoding from the set of allele codes seen in rows.
func DetectEncoding(seen map[byte]struct{}) GenotypeEncoding {
	only := func(allowed string) bool {
		for b := range seen {
			if b == MissingAllele {
				continue
			}
			found := false
			for i := 0; i < len(allowed); i++ {
				if allowed[i] == b {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	switch {
	case len(seen) == 0:
		return EncodingUnknown
	case only("12"):
		return Encoding12
	case only("1234"):
		return Encoding1234
	case only("ACGT"):
		return EncodingACGT0
	case only("AB"):
		return EncodingAB0
	default:
		return EncodingUnknown
	}
}
