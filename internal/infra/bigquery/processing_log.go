package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/budget-updater/internal/domain"
	"google.golang.org/api/iterator"
)

// ProcessingLogRow is one row of budget.file_processing_log. The table is
// append-only; the latest row per file_hash is the current state.
type ProcessingLogRow struct {
	FileHash     string    `bigquery:"file_hash"`     // REQUIRED
	FileName     string    `bigquery:"file_name"`     // REQUIRED
	Bank         string    `bigquery:"bank"`          // REQUIRED
	Status       string    `bigquery:"status"`        // REQUIRED: SUCCESS or FAILED
	RowsParsed   int64     `bigquery:"rows_parsed"`   // REQUIRED
	RowsFailed   int64     `bigquery:"rows_failed"`   // REQUIRED
	RowsInserted int64     `bigquery:"rows_inserted"` // REQUIRED
	RowsSkipped  int64     `bigquery:"rows_skipped"`  // REQUIRED
	ErrorMessage string    `bigquery:"error_message"` // NULLABLE
	ProcessedAt  time.Time `bigquery:"processed_at"`  // REQUIRED
}

// IsFileProcessedWithClient reports whether a file with this hash was
// ingested successfully before.
func IsFileProcessedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, fileHash string) (bool, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT COUNT(*) AS n
		FROM %s
		WHERE file_hash = @file_hash
		  AND status = @status
	`, ds.Table(processingLogTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "file_hash", Value: fileHash},
		{Name: "status", Value: string(domain.ProcessingSuccess)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("IsFileProcessed: query read: %w", err)
	}
	var r struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&r); err != nil && err != iterator.Done {
		return false, fmt.Errorf("IsFileProcessed: iter next: %w", err)
	}
	return r.N > 0, nil
}

// RecordFileWithClient appends an entry to the processing log.
func RecordFileWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, e domain.ProcessingLogEntry) error {
	errMsg := e.ErrorMessage
	const maxLen = 2000
	if len(errMsg) > maxLen {
		errMsg = errMsg[:maxLen]
	}
	row := &ProcessingLogRow{
		FileHash:     e.FileHash,
		FileName:     e.FileName,
		Bank:         string(e.Bank),
		Status:       string(e.Status),
		RowsParsed:   int64(e.RowsParsed),
		RowsFailed:   int64(e.RowsFailed),
		RowsInserted: int64(e.RowsInserted),
		RowsSkipped:  int64(e.RowsSkipped),
		ErrorMessage: errMsg,
		ProcessedAt:  e.ProcessedAt,
	}
	inserter := ds.handle(client, processingLogTable).Inserter()
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("RecordFile: inserting row: %w", err)
	}
	return nil
}
