// Package extract materializes a physically reduced dataset from a parent one:
// it picks samples and markers, then streams the retained descriptors and the
// projected genotype rows into a Destination.
package extract

import (
	"context"

	"genomatrix/pkg/domain"
)

// Destination receives a new matrix. Calls arrive in protocol order: Init, the
// sample phase, the marker phase, the allele phase, then Done. Rows of the allele
// phase are append-only. Abort may be called at any point before Done succeeds and
// marks whatever was written invalid. Discard removes a matrix that Done already
// committed, for callers whose own bookkeeping failed afterwards.
type Destination interface {
	Init(ctx context.Context, key domain.MatrixKey) error

	StartLoadingSampleInfos(reset bool) error
	AddSampleInfo(info domain.SampleInfo) error
	FinishedLoadingSampleInfos() error

	StartLoadingMarkerMetadatas(reset bool) error
	AddMarkerMetadata(meta domain.MarkerMetadata) error
	FinishedLoadingMarkerMetadatas() error

	StartLoadingAlleles(perSample bool) error
	AddSampleGTAlleles(index int, row domain.GenotypesList) error
	AddMarkerGTAlleles(index int, row domain.GenotypesList) error
	FinishedLoadingAlleles() error

	Done(ctx context.Context) (domain.MatrixMetadata, error)
	Abort(cause error)
	Discard(ctx context.Context) error
}
