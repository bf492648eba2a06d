package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dvloznov/budget-updater/internal/domain"
)

// StageRows records parsed rows with their bank fields as a JSON payload.
// Rows already staged under the same staging row id are ignored.
func (r *SQLiteRepository) StageRows(ctx context.Context, bank domain.Bank, rows []domain.StagingRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("StageRows: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO staging_rows (
			staging_row_id, bank, file_hash, source_file, row_number,
			business_key, reverse_engineered, upload_timestamp, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("StageRows: prepare: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if row.Bank() != bank {
			return fmt.Errorf("StageRows: %s row in %s batch", row.Bank(), bank)
		}
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("StageRows: encode row: %w", err)
		}
		m := row.Meta()
		if _, err := stmt.ExecContext(ctx,
			m.StagingRowID(), string(bank), m.FileHash, m.SourceFile, m.RowNumber,
			m.BusinessKey, boolInt(m.ReverseEngineered), formatTime(m.UploadTimestamp), string(payload),
		); err != nil {
			return fmt.Errorf("StageRows: insert %s: %w", m.StagingRowID(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("StageRows: commit: %w", err)
	}
	return nil
}

// IsFileProcessed reports whether a file with this hash was ingested successfully before.
func (r *SQLiteRepository) IsFileProcessed(ctx context.Context, fileHash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_processing_log WHERE file_hash = ? AND status = ?`,
		fileHash, string(domain.ProcessingSuccess)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("IsFileProcessed: %w", err)
	}
	return n > 0, nil
}

// RecordFile appends an entry to the processing log.
func (r *SQLiteRepository) RecordFile(ctx context.Context, e domain.ProcessingLogEntry) error {
	_, err := r.exec(ctx, "RecordFile", `
		INSERT INTO file_processing_log (
			file_hash, file_name, bank, status, rows_parsed, rows_failed,
			rows_inserted, rows_skipped, error_message, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.FileHash, e.FileName, string(e.Bank), string(e.Status), e.RowsParsed, e.RowsFailed,
		e.RowsInserted, e.RowsSkipped, e.ErrorMessage, formatTime(e.ProcessedAt))
	return err
}
