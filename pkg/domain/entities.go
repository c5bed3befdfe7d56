// Package domain defines the value types shared by the genotype matrix engine:
// dataset identities, marker and sample descriptors, genotype rows, and the
// persisted metadata records describing stored matrices and derived operations.
package domain

import (
	"time"
)

// EntityType identifies the kind of record an error or persistence bucket refers to.
type EntityType string

// Supported entity type identifiers used in errors and persistence buckets.
const (
	// EntityMatrix identifies a stored matrix record.
	EntityMatrix EntityType = "matrix"
	// EntityOperation identifies a derived operation record.
	EntityOperation EntityType = "operation"
	// EntityDataSet identifies a resolvable dataset source.
	EntityDataSet EntityType = "dataset"
	// EntityMarker identifies a marker.
	EntityMarker EntityType = "marker"
	// EntitySample identifies a sample.
	EntitySample    EntityType = "sample"
	EntitySampleSet EntityType = "sample_fields"
)

// Sex is the PLINK-style sex code of a sample.
type Sex int

const (
	SexUnknown Sex = 0
	SexMale    Sex = 1
	SexFemale  Sex = 2
)

// Affection is the PLINK-style affection (phenotype) status of a sample.
type Affection int

const (
	AffectionUnknown    Affection = 0
	AffectionUnaffected Affection = 1
	AffectionAffected   Affection = 2
)

// MarkerMetadata describes a marker: identity plus its genomic attributes.
type MarkerMetadata struct {
	Key        MarkerKey `json:"key"`
	RsID       string    `json:"rs_id,omitempty"`
	Chromosome string    `json:"chromosome"`
	Position   int64     `json:"position"`
	Alleles    string    `json:"alleles,omitempty"`
	Strand     string    `json:"strand,omitempty"`
}

// SampleInfo describes a genotyped sample and its pedigree/phenotype attributes.
type SampleInfo struct {
	Key        SampleKey `json:"key"`
	FamilyID   string    `json:"family_id,omitempty"`
	FatherID   string    `json:"father_id,omitempty"`
	MotherID   string    `json:"mother_id,omitempty"`
	Sex        Sex       `json:"sex"`
	Affection  Affection `json:"affection"`
	Category   string    `json:"category,omitempty"`
	Disease    string    `json:"disease,omitempty"`
	Population string    `json:"population,omitempty"`
	Age        int       `json:"age,omitempty"`
	Filter     string    `json:"filter,omitempty"`
	Approved   int       `json:"approved,omitempty"`
	Status     int       `json:"status,omitempty"`
}

// ChromosomeInfo summarizes the contiguous run of markers on one chromosome in a
// matrix's marker order.
type ChromosomeInfo struct {
	Chromosome  string `json:"chromosome"`
	FirstIndex  int    `json:"first_index"`
	LastIndex   int    `json:"last_index"`
	MarkerCount int    `json:"marker_count"`
}

// MatrixMetadata is the persisted record describing a stored matrix.
type MatrixMetadata struct {
	Key          MatrixKey        `json:"key"`
	FriendlyName string           `json:"friendly_name"`
	Description  string           `json:"description,omitempty"`
	Encoding     GenotypeEncoding `json:"encoding"`
	Orientation  Orientation      `json:"orientation"`
	MarkerCount  int              `json:"marker_count"`
	SampleCount  int              `json:"sample_count"`
	Chromosomes  []ChromosomeInfo `json:"chromosomes,omitempty"`
	// Parent is set for matrices extracted from another dataset.
	Parent    *DataSetKey `json:"parent,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// DataSetKey returns the dataset key addressing this matrix.
func (m MatrixMetadata) DataSetKey() DataSetKey { return NewMatrixDataSetKey(m.Key) }

// OperationType names the computation that produced an operation.
type OperationType string

const (
	// OperationFilter retains a subset of its parent's markers and samples.
	OperationFilter OperationType = "filter"
	// OperationQAMarkers and OperationQASamples mark quality-control filters.
	OperationQAMarkers OperationType = "qa_markers"
	OperationQASamples OperationType = "qa_samples"
)

// OperationMetadata is the persisted record of an operation. MarkerIndices and
// SampleIndices are ascending positions in the parent's own index space; nil means
// the dimension is retained unchanged.
type OperationMetadata struct {
	Key           OperationKey  `json:"key"`
	Type          OperationType `json:"type"`
	FriendlyName  string        `json:"friendly_name"`
	Description   string        `json:"description,omitempty"`
	MarkerIndices []int         `json:"marker_indices,omitempty"`
	SampleIndices []int         `json:"sample_indices,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Parent returns the dataset the operation was derived from.
func (o OperationMetadata) Parent() DataSetKey { return o.Key.Parent() }

// SampleFieldRecord holds externally curated per-sample fields for a matrix,
// keyed by the sample's original index in that matrix.
type SampleFieldRecord struct {
	Sample    SampleKey         `json:"sample"`
	OrigIndex int               `json:"orig_index"`
	Fields    map[string]string `json:"fields"`
}
