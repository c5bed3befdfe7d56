package memory

import (
	"context"
	"sort"

	"genomatrix/internal/source"
	"genomatrix/pkg/domain"
)

// Registry maps matrix keys to in-memory sources for one session. It is not safe
// for concurrent use; callers sharing a registry across goroutines serialize access.
type Registry struct {
	sources map[domain.MatrixKey]*Source
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[domain.MatrixKey]*Source)}
}

// Register adds src under its key. An existing entry is never replaced.
func (r *Registry) Register(src *Source) error {
	if _, exists := r.sources[src.key]; exists {
		return domain.ErrDuplicate{Entity: domain.EntityMatrix, Key: src.key.String()}
	}
	r.sources[src.key] = src
	return nil
}

// Lookup returns the source registered under key.
func (r *Registry) Lookup(key domain.MatrixKey) (*Source, bool) {
	src, ok := r.sources[key]
	return src, ok
}

// Remove drops key, reporting whether it was present.
func (r *Registry) Remove(key domain.MatrixKey) bool {
	_, ok := r.sources[key]
	delete(r.sources, key)
	return ok
}

// Reset drops every registered source.
func (r *Registry) Reset() {
	r.sources = make(map[domain.MatrixKey]*Source)
}

// Keys lists the registered matrix keys in string order.
func (r *Registry) Keys() []domain.MatrixKey {
	out := make([]domain.MatrixKey, 0, len(r.sources))
	for k := range r.sources {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// OpenMatrix implements source.MatrixOpener.
func (r *Registry) OpenMatrix(_ context.Context, key domain.MatrixKey) (source.DataSetSource, error) {
	src, ok := r.sources[key]
	if !ok {
		return nil, domain.ErrNotFound{Entity: domain.EntityMatrix, Key: key.String()}
	}
	return src, nil
}
