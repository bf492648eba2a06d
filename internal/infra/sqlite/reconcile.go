package sqlite

import (
	"context"
	"fmt"
	"regexp"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/reconcile"
	"github.com/shopspring/decimal"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReconcileStats summarizes one bank's rows around cutoff.
func (r *SQLiteRepository) ReconcileStats(ctx context.Context, bank domain.Bank, cutoff civil.Date) (reconcile.Stats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT business_key, transaction_date, amount, reverse_engineered
		FROM transactions
		WHERE source_bank = ?`, string(bank))
	if err != nil {
		return reconcile.Stats{}, fmt.Errorf("ReconcileStats: query: %w", err)
	}
	defer rows.Close()

	type row struct {
		key     string
		date    string
		amount  decimal.Decimal
		reverse bool
	}
	var all []row
	for rows.Next() {
		var (
			x       row
			amount  string
			reverse int
		)
		if err := rows.Scan(&x.key, &x.date, &amount, &reverse); err != nil {
			return reconcile.Stats{}, fmt.Errorf("ReconcileStats: scan: %w", err)
		}
		if x.amount, err = decimal.NewFromString(amount); err != nil {
			return reconcile.Stats{}, fmt.Errorf("ReconcileStats: amount %q: %w", amount, err)
		}
		x.reverse = reverse != 0
		all = append(all, x)
	}
	if err := rows.Err(); err != nil {
		return reconcile.Stats{}, fmt.Errorf("ReconcileStats: rows: %w", err)
	}

	match := func(x row) string { return x.date + "|" + x.amount.StringFixed(2) }
	exports := map[string]bool{}
	for _, x := range all {
		if !x.reverse {
			exports[match(x)] = true
		}
	}

	s := reconcile.Stats{Outflow: decimal.Zero, Inflow: decimal.Zero}
	keys := map[string]int{}
	cut := cutoff.String()
	for _, x := range all {
		keys[x.key]++
		if x.amount.IsNegative() {
			s.Outflow = s.Outflow.Add(x.amount.Abs())
		} else {
			s.Inflow = s.Inflow.Add(x.amount)
		}
		switch {
		case !x.reverse:
			s.Canonical++
		case x.date < cut:
			s.ReverseBefore++
		default:
			s.ReverseOnOrAfter++
			if exports[match(x)] {
				s.Overlapping++
			}
		}
	}
	for _, n := range keys {
		if n > 1 {
			s.DuplicateKeys++
		}
	}
	return s, nil
}

// BackupReverseEngineered copies every rebuilt row of bank into a new table.
// It fails if the destination already exists.
func (r *SQLiteRepository) BackupReverseEngineered(ctx context.Context, bank domain.Bank, destination string) (int64, error) {
	if !tableName.MatchString(destination) {
		return 0, fmt.Errorf("BackupReverseEngineered: invalid table name %q", destination)
	}
	if _, err := r.exec(ctx, "BackupReverseEngineered",
		`CREATE TABLE "`+destination+`" AS SELECT * FROM transactions WHERE source_bank = ? AND reverse_engineered = 1`,
		string(bank)); err != nil {
		return 0, err
	}
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM "`+destination+`"`).Scan(&n); err != nil {
		return 0, fmt.Errorf("BackupReverseEngineered: count %s: %w", destination, err)
	}
	return n, nil
}

// DeleteReverseEngineered removes rebuilt rows of bank dated on or after cutoff.
func (r *SQLiteRepository) DeleteReverseEngineered(ctx context.Context, bank domain.Bank, cutoff civil.Date) (int64, error) {
	return r.exec(ctx, "DeleteReverseEngineered", `
		DELETE FROM transactions
		WHERE source_bank = ? AND reverse_engineered = 1 AND transaction_date >= ?`,
		string(bank), cutoff.String())
}
