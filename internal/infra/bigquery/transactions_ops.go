package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/merge"
	"google.golang.org/api/iterator"
)

const transactionColumns = `
	transaction_id, source_bank, account, transaction_date, description,
	amount, currency, business_key, category, category_status,
	summary, evidence_query, evidence_summary, reverse_engineered,
	source_file, file_hash, staging_row_id, inserted_at, categorized_at, published_at`

// insertBatchSize is the number of rows bound to one INSERT statement.
const insertBatchSize = 500

// ExistingKeysWithClient reports which business keys are already stored.
func ExistingKeysWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, keys []string) (map[string]bool, error) {
	found := make(map[string]bool, len(keys))
	for _, c := range chunks(len(keys), keyBatchSize) {
		q := client.Query(fmt.Sprintf(`
			SELECT business_key
			FROM %s
			WHERE business_key IN UNNEST(@keys)
		`, ds.Table(transactionsTable)))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "keys", Value: keys[c[0]:c[1]]},
		}

		it, err := q.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("ExistingKeys: query read: %w", err)
		}
		for {
			var r struct {
				BusinessKey string `bigquery:"business_key"`
			}
			err := it.Next(&r)
			if err == iterator.Done {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("ExistingKeys: iter next: %w", err)
			}
			found[r.BusinessKey] = true
		}
	}
	return found, nil
}

// InsertTransactionsWithClient inserts canonical rows with DML so they are
// immediately available to UPDATE and DELETE. Each statement re-checks the
// business key, so a concurrent insert of the same key is skipped rather
// than duplicated. A failed statement marks its rows failed and the next
// batch is still attempted; only when every statement fails is the whole
// call an error.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, txs []*domain.StandardizedTransaction) ([]merge.InsertOutcome, error) {
	outcomes := make([]merge.InsertOutcome, len(txs))
	for i, tx := range txs {
		outcomes[i].BusinessKey = tx.BusinessKey
	}

	table := ds.Table(transactionsTable)
	batches := chunks(len(txs), insertBatchSize)
	failedBatches := 0
	for _, c := range batches {
		params := make([]transactionParam, 0, c[1]-c[0])
		for _, tx := range txs[c[0]:c[1]] {
			params = append(params, newTransactionParam(tx))
		}

		q := client.Query(fmt.Sprintf(`
			INSERT INTO %s (
				transaction_id, source_bank, account, transaction_date, description,
				amount, currency, business_key, category, category_status,
				reverse_engineered, source_file, file_hash, staging_row_id, inserted_at
			)
			SELECT
				r.transaction_id, r.source_bank, r.account, r.transaction_date, r.description,
				r.amount, r.currency, r.business_key, r.category, r.category_status,
				r.reverse_engineered, r.source_file, r.file_hash, r.staging_row_id, r.inserted_at
			FROM UNNEST(@rows) AS r
			WHERE NOT EXISTS (
				SELECT 1 FROM %s t WHERE t.business_key = r.business_key
			)
		`, table, table))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "rows", Value: params},
		}

		if _, err := runDML(ctx, q); err != nil {
			failedBatches++
			for i := c[0]; i < c[1]; i++ {
				outcomes[i].Err = fmt.Errorf("InsertTransactions: %w", err)
			}
		}
	}
	if len(batches) > 0 && failedBatches == len(batches) {
		return nil, fmt.Errorf("InsertTransactions: every batch failed: %w", outcomes[0].Err)
	}
	return outcomes, nil
}

// PendingTransactionsWithClient lists rows still waiting for a category,
// oldest first.
func PendingTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, limit int) ([]*domain.StandardizedTransaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE category_status = @status
		ORDER BY transaction_date, business_key
		LIMIT @limit
	`, transactionColumns, ds.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(domain.StatusPending)},
		{Name: "limit", Value: limit},
	}
	return readTransactions(ctx, q, "PendingTransactions")
}

// UpdateCategorizationWithClient stores the agent's verdict. Rows that have
// left the pending state are not touched.
func UpdateCategorizationWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, transactionID string, result domain.CategorizationResult, at time.Time) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s
		SET category = @category,
		    category_status = @status,
		    summary = @summary,
		    evidence_query = @evidence_query,
		    evidence_summary = @evidence_summary,
		    categorized_at = @categorized_at
		WHERE transaction_id = @transaction_id
		  AND category_status = @pending
	`, ds.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "category", Value: result.Category},
		{Name: "status", Value: string(result.Status())},
		{Name: "summary", Value: result.Summary},
		{Name: "evidence_query", Value: result.EvidenceQuery},
		{Name: "evidence_summary", Value: result.EvidenceSummary},
		{Name: "categorized_at", Value: at},
		{Name: "transaction_id", Value: transactionID},
		{Name: "pending", Value: string(domain.StatusPending)},
	}
	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("UpdateCategorization: %s: %w", transactionID, err)
	}
	return nil
}

// UnpublishedWithClient lists categorized export rows not yet appended to
// the ledger. Rebuilt rows came from the ledger and are never published.
func UnpublishedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, limit int) ([]*domain.StandardizedTransaction, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE category_status != @pending
		  AND published_at IS NULL
		  AND NOT reverse_engineered
		ORDER BY transaction_date, business_key
		LIMIT @limit
	`, transactionColumns, ds.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "pending", Value: string(domain.StatusPending)},
		{Name: "limit", Value: limit},
	}
	return readTransactions(ctx, q, "Unpublished")
}

// MarkPublishedWithClient stamps published_at on the given rows.
func MarkPublishedWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, ids []string, at time.Time) error {
	for _, c := range chunks(len(ids), keyBatchSize) {
		q := client.Query(fmt.Sprintf(`
			UPDATE %s
			SET published_at = @published_at
			WHERE transaction_id IN UNNEST(@ids)
		`, ds.Table(transactionsTable)))
		q.Parameters = []bigquery.QueryParameter{
			{Name: "published_at", Value: at},
			{Name: "ids", Value: ids[c[0]:c[1]]},
		}
		if _, err := runDML(ctx, q); err != nil {
			return fmt.Errorf("MarkPublished: %w", err)
		}
	}
	return nil
}

// ListTransactionsWithClient returns canonical rows matching filter in date order.
func ListTransactionsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, filter domain.TransactionFilter) ([]*domain.StandardizedTransaction, error) {
	var (
		where  []string
		params []bigquery.QueryParameter
	)
	if filter.Bank != "" {
		where = append(where, "source_bank = @bank")
		params = append(params, bigquery.QueryParameter{Name: "bank", Value: string(filter.Bank)})
	}
	if !filter.From.IsZero() {
		where = append(where, "transaction_date >= @from")
		params = append(params, bigquery.QueryParameter{Name: "from", Value: filter.From})
	}
	if !filter.To.IsZero() {
		where = append(where, "transaction_date <= @to")
		params = append(params, bigquery.QueryParameter{Name: "to", Value: filter.To})
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	q := client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		%s
		ORDER BY transaction_date, business_key
	`, transactionColumns, ds.Table(transactionsTable), clause))
	q.Parameters = params
	return readTransactions(ctx, q, "ListTransactions")
}

func readTransactions(ctx context.Context, q *bigquery.Query, op string) ([]*domain.StandardizedTransaction, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: query read: %w", op, err)
	}

	var out []*domain.StandardizedTransaction
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: iter next: %w", op, err)
		}
		out = append(out, r.toDomain())
	}
	return out, nil
}
