package blob

import (
	"context"
	"errors"
	"testing"
)

func TestOpen_DriverSelection(t *testing.T) {
	ctx := context.Background()
	t.Setenv("GENOMATRIX_BLOB_DRIVER", "memory")
	s, err := Open(ctx)
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory driver: %v %v", s, err)
	}
	t.Setenv("GENOMATRIX_BLOB_DRIVER", "fs")
	t.Setenv("GENOMATRIX_BLOB_FS_ROOT", t.TempDir())
	s, err = Open(ctx)
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("fs driver: %v %v", s, err)
	}
	t.Setenv("GENOMATRIX_BLOB_DRIVER", "s3")
	t.Setenv("GENOMATRIX_BLOB_S3_BUCKET", "")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("s3 without bucket should fail")
	}
	t.Setenv("GENOMATRIX_BLOB_DRIVER", "tape")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("unknown driver should fail")
	}
}

func TestHelpers(t *testing.T) {
	ctx := context.Background()
	for _, s := range []Store{NewMemory(), NewMockS3ForTests()} {
		if _, err := PutBytes(ctx, s, "m/a", []byte("alpha"), PutOptions{}); err != nil {
			t.Fatalf("%s put: %v", s.Driver(), err)
		}
		if _, err := PutBytes(ctx, s, "m/b", []byte("beta"), PutOptions{}); err != nil {
			t.Fatalf("%s put: %v", s.Driver(), err)
		}
		if _, err := PutBytes(ctx, s, "m/a", []byte("again"), PutOptions{}); !errors.Is(err, ErrExists) {
			t.Fatalf("%s duplicate put: %v", s.Driver(), err)
		}
		b, err := ReadAll(ctx, s, "m/a")
		if err != nil || string(b) != "alpha" {
			t.Fatalf("%s read: %q %v", s.Driver(), b, err)
		}
		if ok, err := Exists(ctx, s, "m/missing"); err != nil || ok {
			t.Fatalf("%s exists(missing): %v %v", s.Driver(), ok, err)
		}
		n, err := DeletePrefix(ctx, s, "m/")
		if err != nil || n != 2 {
			t.Fatalf("%s delete prefix: %d %v", s.Driver(), n, err)
		}
		if ok, _ := Exists(ctx, s, "m/a"); ok {
			t.Fatalf("%s blob survived prefix delete", s.Driver())
		}
	}
}
