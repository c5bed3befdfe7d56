package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"genomatrix/internal/blob/core"
)

func TestStore_MissingHeadGet(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false")
	}
}

func TestStore_CreateOnlyAndList(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "m/chunks/0", bytes.NewReader([]byte("v")), core.PutOptions{Metadata: map[string]string{"a": "1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "m/chunks/0", bytes.NewReader([]byte("v2")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.Put(ctx, "m/chunks/1", bytes.NewReader([]byte("w")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "other", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := store.List(ctx, "m/")
	if err != nil || len(list) != 2 || list[0].Key != "m/chunks/0" {
		t.Fatalf("list prefix: %v %+v", err, list)
	}
	info, rc, err := store.Get(ctx, "m/chunks/0")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "v" || info.Metadata["a"] != "1" || info.ETag == "" {
		t.Fatalf("unexpected get result %q %+v", b, info)
	}
	info.Metadata["a"] = "mutated"
	if h, _ := store.Head(ctx, "m/chunks/0"); h.Metadata["a"] != "1" {
		t.Fatalf("metadata must be copied out")
	}
	if store.Len() != 3 {
		t.Fatalf("len: %d", store.Len())
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("fail") }

func TestStore_PutReadErrorAndDriver(t *testing.T) {
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver")
	}
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := store.Put(context.Background(), " ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}
	if store.Len() != 0 {
		t.Fatalf("failed puts must not store anything")
	}
}
