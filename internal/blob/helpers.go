package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

// PutBytes stores data under key.
func PutBytes(ctx context.Context, s Store, key string, data []byte, opts PutOptions) (Info, error) {
	return s.Put(ctx, key, bytes.NewReader(data), opts)
}

// ReadAll fetches the whole blob at key.
func ReadAll(ctx context.Context, s Store, key string) ([]byte, error) {
	_, rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return b, nil
}

// Exists reports whether key is present.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Head(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeletePrefix removes every blob under prefix and returns how many were deleted.
// It keeps going past individual failures and reports them joined.
func DeletePrefix(ctx context.Context, s Store, prefix string) (int, error) {
	infos, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, inf := range infos {
		ok, err := s.Delete(ctx, inf.Key)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", inf.Key, err))
			continue
		}
		if ok {
			n++
		}
	}
	return n, errors.Join(errs...)
}
