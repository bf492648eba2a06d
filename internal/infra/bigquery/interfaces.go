package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/merge"
	"github.com/dvloznov/budget-updater/internal/reconcile"
)

// BigQueryTransactionRepository is the BigQuery-backed staging and
// canonical store. It holds a shared BigQuery client to avoid creating a new
// connection for each operation.
type BigQueryTransactionRepository struct {
	client *bigquery.Client
	ds     Dataset
}

// NewBigQueryTransactionRepository creates a repository over projectID.datasetID.
func NewBigQueryTransactionRepository(ctx context.Context, projectID, datasetID string) (*BigQueryTransactionRepository, error) {
	if projectID == "" || datasetID == "" {
		return nil, fmt.Errorf("NewBigQueryTransactionRepository: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryTransactionRepository: creating client: %w", err)
	}
	return &BigQueryTransactionRepository{
		client: client,
		ds:     Dataset{ProjectID: projectID, DatasetID: datasetID},
	}, nil
}

// Close closes the BigQuery client connection. This should be called when
// the repository is no longer needed to release resources.
func (r *BigQueryTransactionRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// CanonicalTable is the name backups are derived from.
func (r *BigQueryTransactionRepository) CanonicalTable() string {
	return transactionsTable
}

// ExistingKeys delegates to ExistingKeysWithClient with the shared client.
func (r *BigQueryTransactionRepository) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	return ExistingKeysWithClient(ctx, r.client, r.ds, keys)
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (r *BigQueryTransactionRepository) InsertTransactions(ctx context.Context, txs []*domain.StandardizedTransaction) ([]merge.InsertOutcome, error) {
	return InsertTransactionsWithClient(ctx, r.client, r.ds, txs)
}

// PendingTransactions delegates to PendingTransactionsWithClient with the shared client.
func (r *BigQueryTransactionRepository) PendingTransactions(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error) {
	return PendingTransactionsWithClient(ctx, r.client, r.ds, limit)
}

// UpdateCategorization delegates to UpdateCategorizationWithClient with the shared client.
func (r *BigQueryTransactionRepository) UpdateCategorization(ctx context.Context, transactionID string, result domain.CategorizationResult, at time.Time) error {
	return UpdateCategorizationWithClient(ctx, r.client, r.ds, transactionID, result, at)
}

// Unpublished delegates to UnpublishedWithClient with the shared client.
func (r *BigQueryTransactionRepository) Unpublished(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error) {
	return UnpublishedWithClient(ctx, r.client, r.ds, limit)
}

// MarkPublished delegates to MarkPublishedWithClient with the shared client.
func (r *BigQueryTransactionRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	return MarkPublishedWithClient(ctx, r.client, r.ds, ids, at)
}

// ListTransactions delegates to ListTransactionsWithClient with the shared client.
func (r *BigQueryTransactionRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.StandardizedTransaction, error) {
	return ListTransactionsWithClient(ctx, r.client, r.ds, filter)
}

// StageRows delegates to StageRowsWithClient with the shared client.
func (r *BigQueryTransactionRepository) StageRows(ctx context.Context, bank domain.Bank, rows []domain.StagingRow) error {
	return StageRowsWithClient(ctx, r.client, r.ds, bank, rows)
}

// IsFileProcessed delegates to IsFileProcessedWithClient with the shared client.
func (r *BigQueryTransactionRepository) IsFileProcessed(ctx context.Context, fileHash string) (bool, error) {
	return IsFileProcessedWithClient(ctx, r.client, r.ds, fileHash)
}

// RecordFile delegates to RecordFileWithClient with the shared client.
func (r *BigQueryTransactionRepository) RecordFile(ctx context.Context, e domain.ProcessingLogEntry) error {
	return RecordFileWithClient(ctx, r.client, r.ds, e)
}

// ReconcileStats delegates to ReconcileStatsWithClient with the shared client.
func (r *BigQueryTransactionRepository) ReconcileStats(ctx context.Context, bank domain.Bank, cutoff civil.Date) (reconcile.Stats, error) {
	return ReconcileStatsWithClient(ctx, r.client, r.ds, bank, cutoff)
}

// BackupReverseEngineered delegates to BackupReverseEngineeredWithClient with the shared client.
func (r *BigQueryTransactionRepository) BackupReverseEngineered(ctx context.Context, bank domain.Bank, destination string) (int64, error) {
	return BackupReverseEngineeredWithClient(ctx, r.client, r.ds, bank, destination)
}

// DeleteReverseEngineered delegates to DeleteReverseEngineeredWithClient with the shared client.
func (r *BigQueryTransactionRepository) DeleteReverseEngineered(ctx context.Context, bank domain.Bank, cutoff civil.Date) (int64, error) {
	return DeleteReverseEngineeredWithClient(ctx, r.client, r.ds, bank, cutoff)
}
