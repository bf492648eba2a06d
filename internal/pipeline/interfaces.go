package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/ingest"
	"github.com/dvloznov/budget-updater/internal/merge"
)

// StorageService fetches exports by gs:// URI and archives raw files.
// gcs.Store implements it.
type StorageService interface {
	ArchiveExport(ctx context.Context, bank, fileHash, fileName string, data []byte) (string, error)
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// Parser turns export bytes into staging rows. *ingest.Parser implements it.
type Parser interface {
	Parse(bank domain.Bank, sourceFile string, data []byte) (*ingest.Result, error)
}

// Merger moves a staging batch into the canonical store. *merge.Engine implements it.
type Merger interface {
	Merge(ctx context.Context, store merge.Store, bank domain.Bank, rows []domain.StagingRow) (*merge.Result, error)
}

// StagingStore records staged rows and which files were processed.
type StagingStore interface {
	IsFileProcessed(ctx context.Context, fileHash string) (bool, error)
	StageRows(ctx context.Context, bank domain.Bank, rows []domain.StagingRow) error
	RecordFile(ctx context.Context, entry domain.ProcessingLogEntry) error
}

// Store is everything ingestion needs from the backend. Both the BigQuery
// and the SQLite repositories implement it.
type Store interface {
	merge.Store
	StagingStore
}

// LedgerReader reads the ledger tab of the budget spreadsheet.
type LedgerReader interface {
	ReadValues(ctx context.Context, tab string) ([][]string, error)
}

// LedgerWriter appends rows to a tab of the budget spreadsheet.
type LedgerWriter interface {
	AppendRows(ctx context.Context, tab string, rows [][]any) (int64, error)
}

// PublishStore lists and stamps rows waiting to be published.
type PublishStore interface {
	Unpublished(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// ExportStore lists canonical rows.
type ExportStore interface {
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.StandardizedTransaction, error)
}
