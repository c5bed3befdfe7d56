package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"genomatrix/internal/extract"
	"genomatrix/internal/infra/persistence"
	"genomatrix/internal/infra/source/chunked"
	"genomatrix/internal/source"
)

// app holds the wired backends of one invocation.
type app struct {
	store     *chunked.Store
	catalog   *persistence.Catalog
	metrics   *prometheus.Registry
	extractor *extract.Extractor
}

type opener func(ctx context.Context) (*app, error)

func openApp(ctx context.Context) (*app, error) {
	store, err := chunked.Open(ctx)
	if err != nil {
		return nil, err
	}
	catalog, err := persistence.Open(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	return newApp(store, catalog), nil
}

func newApp(store *chunked.Store, catalog *persistence.Catalog) *app {
	reg := prometheus.NewRegistry()
	resolver := source.NewResolver(catalog, store)
	return &app{
		store:   store,
		catalog: catalog,
		metrics: reg,
		extractor: extract.New(resolver,
			extract.WithFieldStore(catalog),
			extract.WithMatrixRecorder(catalog),
			extract.WithOperationRecorder(catalog),
			extract.WithMetrics(extract.NewMetrics(reg)),
		),
	}
}

func (a *app) Close() error {
	return errors.Join(a.catalog.Close(), a.store.Close())
}
