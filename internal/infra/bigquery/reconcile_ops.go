package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/reconcile"
	"google.golang.org/api/iterator"
)

type statsRow struct {
	ReverseBefore    int64    `bigquery:"reverse_before"`
	ReverseOnOrAfter int64    `bigquery:"reverse_on_or_after"`
	Canonical        int64    `bigquery:"canonical"`
	DuplicateKeys    int64    `bigquery:"duplicate_keys"`
	Overlapping      int64    `bigquery:"overlapping"`
	Outflow          *big.Rat `bigquery:"outflow"`
	Inflow           *big.Rat `bigquery:"inflow"`
}

// ReconcileStatsWithClient summarizes one bank's rows around cutoff.
func ReconcileStatsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, bank domain.Bank, cutoff civil.Date) (reconcile.Stats, error) {
	q := client.Query(fmt.Sprintf(`
		WITH acct AS (
			SELECT business_key, transaction_date, amount, reverse_engineered
			FROM %s
			WHERE source_bank = @bank
		),
		exports AS (
			SELECT DISTINCT transaction_date, amount
			FROM acct
			WHERE NOT reverse_engineered
		)
		SELECT
			COUNTIF(reverse_engineered AND transaction_date < @cutoff) AS reverse_before,
			COUNTIF(reverse_engineered AND transaction_date >= @cutoff) AS reverse_on_or_after,
			COUNTIF(NOT reverse_engineered) AS canonical,
			(SELECT COUNT(*) FROM (
				SELECT business_key FROM acct GROUP BY business_key HAVING COUNT(*) > 1
			)) AS duplicate_keys,
			(SELECT COUNT(*) FROM acct a JOIN exports e USING (transaction_date, amount)
				WHERE a.reverse_engineered AND a.transaction_date >= @cutoff) AS overlapping,
			COALESCE(SUM(IF(amount < 0, -amount, 0)), 0) AS outflow,
			COALESCE(SUM(IF(amount > 0, amount, 0)), 0) AS inflow
		FROM acct
	`, ds.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "bank", Value: string(bank)},
		{Name: "cutoff", Value: cutoff},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return reconcile.Stats{}, fmt.Errorf("ReconcileStats: query read: %w", err)
	}
	var r statsRow
	if err := it.Next(&r); err != nil && err != iterator.Done {
		return reconcile.Stats{}, fmt.Errorf("ReconcileStats: iter next: %w", err)
	}
	return reconcile.Stats{
		ReverseBefore:    r.ReverseBefore,
		ReverseOnOrAfter: r.ReverseOnOrAfter,
		Canonical:        r.Canonical,
		DuplicateKeys:    r.DuplicateKeys,
		Overlapping:      r.Overlapping,
		Outflow:          ratToDecimal(r.Outflow),
		Inflow:           ratToDecimal(r.Inflow),
	}, nil
}

// BackupReverseEngineeredWithClient writes every rebuilt row of bank into a
// new table. The job refuses to write into an existing non-empty table. The
// returned count is read back from the new table's metadata.
func BackupReverseEngineeredWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, bank domain.Bank, destination string) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT *
		FROM %s
		WHERE source_bank = @bank
		  AND reverse_engineered
	`, ds.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "bank", Value: string(bank)},
	}
	dst := ds.handle(client, destination)
	q.Dst = dst
	q.CreateDisposition = bigquery.CreateIfNeeded
	q.WriteDisposition = bigquery.WriteEmpty

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("BackupReverseEngineered: running copy query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("BackupReverseEngineered: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("BackupReverseEngineered: job error: %w", err)
	}

	md, err := dst.Metadata(ctx)
	if err != nil {
		return 0, fmt.Errorf("BackupReverseEngineered: reading %s metadata: %w", destination, err)
	}
	return int64(md.NumRows), nil
}

// DeleteReverseEngineeredWithClient removes rebuilt rows of bank dated on or
// after cutoff. Rows ingested from exports are never matched.
func DeleteReverseEngineeredWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, bank domain.Bank, cutoff civil.Date) (int64, error) {
	q := client.Query(fmt.Sprintf(`
		DELETE FROM %s
		WHERE source_bank = @bank
		  AND reverse_engineered
		  AND transaction_date >= @cutoff
	`, ds.Table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "bank", Value: string(bank)},
		{Name: "cutoff", Value: cutoff},
	}
	n, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("DeleteReverseEngineered: %w", err)
	}
	return n, nil
}
