package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dvloznov/budget-updater/internal/categorizer"
	"github.com/dvloznov/budget-updater/internal/gcs"
	"github.com/dvloznov/budget-updater/internal/googleauth"
	infra "github.com/dvloznov/budget-updater/internal/infra/bigquery"
	"github.com/dvloznov/budget-updater/internal/infra/sqlite"
	"github.com/dvloznov/budget-updater/internal/pipeline"
	"github.com/dvloznov/budget-updater/internal/reconcile"
	"github.com/dvloznov/budget-updater/internal/sheets"
)

// backend is the full store surface. Both repositories implement it.
type backend interface {
	pipeline.Store
	pipeline.PublishStore
	pipeline.ExportStore
	categorizer.Store
	reconcile.Store
	io.Closer
}

var (
	_ backend = (*infra.BigQueryTransactionRepository)(nil)
	_ backend = (*sqlite.SQLiteRepository)(nil)
)

func (a *app) openStore(ctx context.Context) (backend, error) {
	switch a.cfg.Store.Backend {
	case "sqlite":
		repo, err := sqlite.NewSQLiteRepository(a.cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "bigquery":
		if a.cfg.BigQuery.ProjectID == "" {
			return nil, fmt.Errorf("bigquery.project_id is not configured")
		}
		repo, err := infra.NewBigQueryTransactionRepository(ctx, a.cfg.BigQuery.ProjectID, a.cfg.BigQuery.Dataset)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", a.cfg.Store.Backend)
}

// openStorage returns nil when no bucket is configured, so the pipeline runs
// without archival.
func (a *app) openStorage(ctx context.Context) (pipeline.StorageService, func(), error) {
	if a.cfg.GCS.Bucket == "" {
		return nil, func() {}, nil
	}
	s, err := gcs.NewStore(ctx, a.cfg.GCS.Bucket)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func (a *app) googleClient(ctx context.Context) (*http.Client, error) {
	return googleauth.HTTPClient(ctx, a.cfg.OAuth.ClientSecretFile, a.cfg.OAuth.TokenFile, a.cfg.OAuth.RedirectPort)
}

func (a *app) openSheet(ctx context.Context) (*sheets.Client, error) {
	client, err := a.googleClient(ctx)
	if err != nil {
		return nil, err
	}
	return sheets.New(ctx, client, a.cfg.Sheets.SpreadsheetID)
}
