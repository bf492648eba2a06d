// Package merge moves staging rows into the canonical transaction store,
// inserting only business keys the store has not seen.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/budget-updater/internal/bizkey"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/logger"
	"github.com/dvloznov/budget-updater/internal/normalize"
	"github.com/dvloznov/budget-updater/internal/sign"
	"github.com/google/uuid"
)

// InsertOutcome is the per-row result of a bulk insert.
type InsertOutcome struct {
	BusinessKey string
	Err         error
}

// Store is the canonical side of the merge.
type Store interface {
	// ExistingKeys reports which of keys are already in the canonical store.
	ExistingKeys(ctx context.Context, keys []string) (map[string]bool, error)
	// InsertTransactions returns one outcome per input row, in order. A
	// returned error means the whole batch failed.
	InsertTransactions(ctx context.Context, txs []*domain.StandardizedTransaction) ([]InsertOutcome, error)
}

// RowFailure describes a staging row that could not become a candidate or
// could not be inserted.
type RowFailure struct {
	StagingRowID string
	BusinessKey  string
	Err          error
}

// Result counts what happened to a batch.
type Result struct {
	Bank             domain.Bank
	Candidates       int
	Inserted         int
	SkippedDuplicate int
	Failed           int
	Failures         []RowFailure
}

// Engine builds canonical transactions from staging rows.
type Engine struct {
	signs    sign.Table
	accounts map[domain.Bank]string
	newID    func() string
	now      func() time.Time
}

// NewEngine returns an engine using the given sign rules and bank → account aliases.
func NewEngine(signs sign.Table, accounts map[domain.Bank]string) *Engine {
	return &Engine{
		signs:    signs,
		accounts: accounts,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Candidates converts staging rows to canonical transactions. Rows whose key
// does not match their content, or whose bank has no account alias, are
// returned as failures.
func (e *Engine) Candidates(rows []domain.StagingRow) ([]*domain.StandardizedTransaction, []RowFailure) {
	var (
		out      []*domain.StandardizedTransaction
		failures []RowFailure
		tracker  = bizkey.NewTracker()
		now      = e.now().UTC()
	)
	for _, row := range rows {
		meta := row.Meta()
		fail := func(err error) {
			failures = append(failures, RowFailure{StagingRowID: meta.StagingRowID(), BusinessKey: meta.BusinessKey, Err: err})
		}

		f, err := normalize.Project(row, e.signs)
		if err != nil {
			fail(err)
			continue
		}

		if meta.BusinessKey == "" {
			if f.ExternalID != "" {
				meta.BusinessKey = f.PlainKey()
			} else {
				meta.BusinessKey = f.KeyWith(tracker.Next(f.PlainKey(), meta.RowNumber))
			}
		} else if err := normalize.VerifyKey(row, f); err != nil {
			fail(err)
			continue
		}

		account, ok := e.accounts[f.Bank]
		if !ok || account == "" {
			fail(fmt.Errorf("no account alias for bank %q", f.Bank))
			continue
		}

		out = append(out, &domain.StandardizedTransaction{
			TransactionID:     e.newID(),
			SourceBank:        f.Bank,
			Account:           account,
			TransactionDate:   f.Date,
			Description:       f.Description,
			Amount:            f.Canonical,
			Currency:          f.Currency,
			BusinessKey:       meta.BusinessKey,
			Category:          domain.PendingCategory,
			CategoryStatus:    domain.StatusPending,
			ReverseEngineered: f.Reverse,
			SourceFile:        meta.SourceFile,
			FileHash:          meta.FileHash,
			StagingRowID:      meta.StagingRowID(),
			InsertedAt:        now,
		})
	}
	return out, failures
}

// Merge inserts the rows whose business keys are new. Duplicates, whether
// already stored or repeated within the batch, are counted and skipped.
// Store errors abort the batch; per-row insert failures are counted and
// not rolled back, so re-running only retries what did not land.
func (e *Engine) Merge(ctx context.Context, store Store, bank domain.Bank, rows []domain.StagingRow) (*Result, error) {
	log := logger.Component(ctx, "merge").With().Str("bank", string(bank)).Logger()

	candidates, failures := e.Candidates(rows)
	res := &Result{
		Bank:       bank,
		Candidates: len(candidates),
		Failed:     len(failures),
		Failures:   failures,
	}
	for _, f := range failures {
		log.Warn().Err(f.Err).Str("staging_row_id", f.StagingRowID).Msg("row rejected before merge")
	}
	if len(candidates) == 0 {
		return res, nil
	}

	unique := make([]*domain.StandardizedTransaction, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if seen[c.BusinessKey] {
			res.SkippedDuplicate++
			continue
		}
		seen[c.BusinessKey] = true
		unique = append(unique, c)
	}

	keys := make([]string, len(unique))
	for i, c := range unique {
		keys[i] = c.BusinessKey
	}
	existing, err := store.ExistingKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("Merge: looking up existing keys: %w", err)
	}

	var inserts []*domain.StandardizedTransaction
	for _, c := range unique {
		if existing[c.BusinessKey] {
			res.SkippedDuplicate++
			continue
		}
		inserts = append(inserts, c)
	}
	if len(inserts) == 0 {
		log.Info().Int("skipped_duplicate", res.SkippedDuplicate).Msg("nothing new to insert")
		return res, nil
	}

	outcomes, err := store.InsertTransactions(ctx, inserts)
	if err != nil {
		return nil, fmt.Errorf("Merge: inserting %d transactions: %w", len(inserts), err)
	}
	if len(outcomes) != len(inserts) {
		return nil, fmt.Errorf("Merge: store returned %d outcomes for %d rows", len(outcomes), len(inserts))
	}
	for i, o := range outcomes {
		if o.Err != nil {
			res.Failed++
			res.Failures = append(res.Failures, RowFailure{
				StagingRowID: inserts[i].StagingRowID,
				BusinessKey:  inserts[i].BusinessKey,
				Err:          o.Err,
			})
			log.Warn().Err(o.Err).Str("business_key", inserts[i].BusinessKey).Msg("insert failed")
			continue
		}
		res.Inserted++
	}

	log.Info().
		Int("inserted", res.Inserted).
		Int("skipped_duplicate", res.SkippedDuplicate).
		Int("failed", res.Failed).
		Msg("merge complete")
	return res, nil
}
