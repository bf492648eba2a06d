package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/merge"
	"github.com/shopspring/decimal"
)

const transactionColumns = `transaction_id, source_bank, account, transaction_date, description,
	amount, currency, business_key, category, category_status,
	summary, evidence_query, evidence_summary, reverse_engineered,
	source_file, file_hash, staging_row_id, inserted_at, categorized_at, published_at`

// ExistingKeys reports which business keys are already stored.
func (r *SQLiteRepository) ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error) {
	found := make(map[string]bool, len(keys))
	const batch = 500
	for start := 0; start < len(keys); start += batch {
		end := min(start+batch, len(keys))
		part := keys[start:end]
		args := make([]any, len(part))
		for i, k := range part {
			args[i] = k
		}
		q := `SELECT business_key FROM transactions WHERE business_key IN (` + placeholders(len(part)) + `)`
		rows, err := r.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("ExistingKeys: query: %w", err)
		}
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return nil, fmt.Errorf("ExistingKeys: scan: %w", err)
			}
			found[k] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("ExistingKeys: rows: %w", err)
		}
	}
	return found, nil
}

// InsertTransactions inserts each row on its own. A row whose key appeared
// since ExistingKeys was checked is ignored rather than failed.
func (r *SQLiteRepository) InsertTransactions(ctx context.Context, txs []*domain.StandardizedTransaction) ([]merge.InsertOutcome, error) {
	stmt, err := r.db.PrepareContext(ctx, `
		INSERT INTO transactions (
			transaction_id, source_bank, account, transaction_date, description,
			amount, currency, business_key, category, category_status,
			reverse_engineered, source_file, file_hash, staging_row_id, inserted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(business_key) DO NOTHING`)
	if err != nil {
		return nil, fmt.Errorf("InsertTransactions: prepare: %w", err)
	}
	defer stmt.Close()

	outcomes := make([]merge.InsertOutcome, len(txs))
	for i, tx := range txs {
		outcomes[i].BusinessKey = tx.BusinessKey
		_, err := stmt.ExecContext(ctx,
			tx.TransactionID, string(tx.SourceBank), tx.Account, tx.TransactionDate.String(), tx.Description,
			tx.Amount.String(), tx.Currency, tx.BusinessKey, tx.Category, string(tx.CategoryStatus),
			boolInt(tx.ReverseEngineered), tx.SourceFile, tx.FileHash, tx.StagingRowID, formatTime(tx.InsertedAt),
		)
		if err != nil {
			outcomes[i].Err = fmt.Errorf("InsertTransactions: %s: %w", tx.BusinessKey, err)
		}
	}
	return outcomes, nil
}

// PendingTransactions lists rows still waiting for a category, oldest first.
func (r *SQLiteRepository) PendingTransactions(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error) {
	return r.query(ctx, "PendingTransactions", `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE category_status = ?
		ORDER BY transaction_date, business_key
		LIMIT ?`, string(domain.StatusPending), limit)
}

// UpdateCategorization stores the agent's verdict on a pending row.
func (r *SQLiteRepository) UpdateCategorization(ctx context.Context, transactionID string, result domain.CategorizationResult, at time.Time) error {
	_, err := r.exec(ctx, "UpdateCategorization", `
		UPDATE transactions
		SET category = ?, category_status = ?, summary = ?, evidence_query = ?,
		    evidence_summary = ?, categorized_at = ?
		WHERE transaction_id = ? AND category_status = ?`,
		result.Category, string(result.Status()), result.Summary, result.EvidenceQuery,
		result.EvidenceSummary, formatTime(at),
		transactionID, string(domain.StatusPending))
	return err
}

// Unpublished lists categorized export rows not yet appended to the ledger.
func (r *SQLiteRepository) Unpublished(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error) {
	return r.query(ctx, "Unpublished", `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE category_status != ? AND published_at IS NULL AND reverse_engineered = 0
		ORDER BY transaction_date, business_key
		LIMIT ?`, string(domain.StatusPending), limit)
}

// MarkPublished stamps published_at on the given rows.
func (r *SQLiteRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{formatTime(at)}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.exec(ctx, "MarkPublished",
		`UPDATE transactions SET published_at = ? WHERE transaction_id IN (`+placeholders(len(ids))+`)`, args...)
	return err
}

// ListTransactions returns canonical rows matching filter in date order.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.StandardizedTransaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.Bank != "" {
		where = append(where, "source_bank = ?")
		args = append(args, string(filter.Bank))
	}
	if !filter.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, filter.From.String())
	}
	if !filter.To.IsZero() {
		where = append(where, "transaction_date <= ?")
		args = append(args, filter.To.String())
	}
	q := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY transaction_date, business_key`
	return r.query(ctx, "ListTransactions", q, args...)
}

func (r *SQLiteRepository) query(ctx context.Context, op, q string, args ...any) ([]*domain.StandardizedTransaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []*domain.StandardizedTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func scanTransaction(rows *sql.Rows) (*domain.StandardizedTransaction, error) {
	var (
		tx                          domain.StandardizedTransaction
		bank, date, amount, status  string
		summary, evQuery, evSummary sql.NullString
		reverse                     int
		insertedAt                  string
		categorizedAt, publishedAt  sql.NullString
	)
	err := rows.Scan(
		&tx.TransactionID, &bank, &tx.Account, &date, &tx.Description,
		&amount, &tx.Currency, &tx.BusinessKey, &tx.Category, &status,
		&summary, &evQuery, &evSummary, &reverse,
		&tx.SourceFile, &tx.FileHash, &tx.StagingRowID, &insertedAt, &categorizedAt, &publishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	tx.SourceBank = domain.Bank(bank)
	tx.CategoryStatus = domain.CategoryStatus(status)
	tx.Summary = summary.String
	tx.EvidenceQuery = evQuery.String
	tx.EvidenceSummary = evSummary.String
	tx.ReverseEngineered = reverse != 0

	if tx.TransactionDate, err = civil.ParseDate(date); err != nil {
		return nil, fmt.Errorf("transaction_date %q: %w", date, err)
	}
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("amount %q: %w", amount, err)
	}
	if tx.InsertedAt, err = time.Parse(timeLayout, insertedAt); err != nil {
		return nil, fmt.Errorf("inserted_at %q: %w", insertedAt, err)
	}
	if tx.CategorizedAt, err = parseNullTime(categorizedAt); err != nil {
		return nil, fmt.Errorf("categorized_at: %w", err)
	}
	if tx.PublishedAt, err = parseNullTime(publishedAt); err != nil {
		return nil, fmt.Errorf("published_at: %w", err)
	}
	return &tx, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
