package pipeline_test

import (
	"context"
	"time"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/merge"
)

// MockStore is an in-memory Store. Func fields override the default behavior.
type MockStore struct {
	ExistingKeysFunc       func(ctx context.Context, keys []string) (map[string]bool, error)
	InsertTransactionsFunc func(ctx context.Context, txs []*domain.StandardizedTransaction) ([]merge.InsertOutcome, error)
	StageRowsFunc          func(ctx context.Context, bank domain.Bank, rows []domain.StagingRow) error
	RecordFileFunc         func(ctx context.Context, entry domain.ProcessingLogEntry) error

	Transactions []*domain.StandardizedTransaction
	Staged       []domain.StagingRow
	Log          []domain.ProcessingLogEntry
}

func (m *MockStore) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	if m.ExistingKeysFunc != nil {
		return m.ExistingKeysFunc(ctx, keys)
	}
	found := map[string]bool{}
	for _, tx := range m.Transactions {
		for _, k := range keys {
			if tx.BusinessKey == k {
				found[k] = true
			}
		}
	}
	return found, nil
}

func (m *MockStore) InsertTransactions(ctx context.Context, txs []*domain.StandardizedTransaction) ([]merge.InsertOutcome, error) {
	if m.InsertTransactionsFunc != nil {
		return m.InsertTransactionsFunc(ctx, txs)
	}
	outcomes := make([]merge.InsertOutcome, len(txs))
	for i, tx := range txs {
		outcomes[i].BusinessKey = tx.BusinessKey
		m.Transactions = append(m.Transactions, tx)
	}
	return outcomes, nil
}

func (m *MockStore) IsFileProcessed(ctx context.Context, fileHash string) (bool, error) {
	for _, e := range m.Log {
		if e.FileHash == fileHash && e.Status == domain.ProcessingSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) StageRows(ctx context.Context, bank domain.Bank, rows []domain.StagingRow) error {
	if m.StageRowsFunc != nil {
		return m.StageRowsFunc(ctx, bank, rows)
	}
	m.Staged = append(m.Staged, rows...)
	return nil
}

func (m *MockStore) RecordFile(ctx context.Context, entry domain.ProcessingLogEntry) error {
	if m.RecordFileFunc != nil {
		return m.RecordFileFunc(ctx, entry)
	}
	m.Log = append(m.Log, entry)
	return nil
}

// MockStorageService fakes the Cloud Storage bucket.
type MockStorageService struct {
	FetchFromGCSFunc  func(ctx context.Context, gcsURI string) ([]byte, error)
	ArchiveExportFunc func(ctx context.Context, bank, fileHash, fileName string, data []byte) (string, error)
}

func (m *MockStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	if m.FetchFromGCSFunc != nil {
		return m.FetchFromGCSFunc(ctx, gcsURI)
	}
	return nil, nil
}

func (m *MockStorageService) ArchiveExport(ctx context.Context, bank, fileHash, fileName string, data []byte) (string, error) {
	if m.ArchiveExportFunc != nil {
		return m.ArchiveExportFunc(ctx, bank, fileHash, fileName, data)
	}
	return "gs://archive/raw/" + bank + "/" + fileHash + "_" + fileName, nil
}

// MockSheet is both ledger reader and writer.
type MockSheet struct {
	ReadValuesFunc func(ctx context.Context, tab string) ([][]string, error)
	AppendRowsFunc func(ctx context.Context, tab string, rows [][]any) (int64, error)
}

func (m *MockSheet) ReadValues(ctx context.Context, tab string) ([][]string, error) {
	if m.ReadValuesFunc != nil {
		return m.ReadValuesFunc(ctx, tab)
	}
	return nil, nil
}

func (m *MockSheet) AppendRows(ctx context.Context, tab string, rows [][]any) (int64, error) {
	if m.AppendRowsFunc != nil {
		return m.AppendRowsFunc(ctx, tab, rows)
	}
	return int64(len(rows)), nil
}

// MockPublishStore serves and stamps unpublished rows.
type MockPublishStore struct {
	UnpublishedFunc   func(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error)
	MarkPublishedFunc func(ctx context.Context, ids []string, at time.Time) error
}

func (m *MockPublishStore) Unpublished(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error) {
	if m.UnpublishedFunc != nil {
		return m.UnpublishedFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockPublishStore) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if m.MarkPublishedFunc != nil {
		return m.MarkPublishedFunc(ctx, ids, at)
	}
	return nil
}

// MockExportStore returns a fixed list.
type MockExportStore struct {
	ListTransactionsFunc func(ctx context.Context, filter domain.TransactionFilter) ([]*domain.StandardizedTransaction, error)
}

func (m *MockExportStore) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.StandardizedTransaction, error) {
	if m.ListTransactionsFunc != nil {
		return m.ListTransactionsFunc(ctx, filter)
	}
	return nil, nil
}
