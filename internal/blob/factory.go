package blob

import (
	"context"
	"fmt"
	"strings"

	"genomatrix/internal/infra/blob/fs"
	memorystore "genomatrix/internal/infra/blob/memory"
	infraS3 "genomatrix/internal/infra/blob/s3"
	"genomatrix/internal/logging"
)

// Open returns the chunk object store named by the environment.
//
//	GENOMATRIX_BLOB_DRIVER   fs|s3|memory (default fs)
//	GENOMATRIX_BLOB_FS_ROOT  directory for driver=fs (default ./genodata)
//	GENOMATRIX_BLOB_S3_BUCKET (required for s3), GENOMATRIX_BLOB_S3_REGION,
//	GENOMATRIX_BLOB_S3_ENDPOINT, GENOMATRIX_BLOB_S3_PATH_STYLE
func Open(ctx context.Context) (Store, error) {
	driver := Driver(strings.ToLower(logging.EnvOrDefault("GENOMATRIX_BLOB_DRIVER", string(DriverFilesystem))))
	switch driver {
	case DriverFilesystem:
		return fs.New(logging.EnvOrDefault("GENOMATRIX_BLOB_FS_ROOT", ""))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", driver)
	}
}

// NewMemory returns an empty in-process store. Matrices written to it vanish
// with the process.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests returns an S3 store backed by an in-memory fake endpoint so
// chunked storage can be exercised against the S3 code path without a bucket.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
