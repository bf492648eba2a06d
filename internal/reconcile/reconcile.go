// Package reconcile resolves the overlap between transactions rebuilt from
// the historical ledger sheet and transactions ingested from bank exports.
//
// For each account a cutoff date splits history: before it the rebuilt rows
// are the only record and are kept, from it onwards the bank exports are
// authoritative and the rebuilt rows are removed. Removal is always preceded
// by a verified backup and an operator confirmation.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/logger"
	"github.com/shopspring/decimal"
)

// ErrConfirmationRequired is returned by Resolve when the operator has not confirmed.
var ErrConfirmationRequired = errors.New("reconcile: operator confirmation required")

// ConflictError reports a step run out of order.
type ConflictError struct {
	Want, Got State
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reconcile: plan is %s, step requires %s", e.Got, e.Want)
}

// DestructiveOperationError stops a run before anything is deleted.
type DestructiveOperationError struct {
	Step string
	Err  error
}

func (e *DestructiveOperationError) Error() string {
	return fmt.Sprintf("reconcile: refusing destructive operation, %s failed: %v", e.Step, e.Err)
}

func (e *DestructiveOperationError) Unwrap() error { return e.Err }

// State is the position of an account in the reconciliation lifecycle.
type State string

const (
	NeedsReconciliation State = "NEEDS_RECONCILIATION"
	BackedUp            State = "BACKED_UP"
	Resolved            State = "RESOLVED"
)

// Stats is a snapshot of one account in the canonical store.
type Stats struct {
	ReverseBefore    int64 // rebuilt rows dated before the cutoff
	ReverseOnOrAfter int64 // rebuilt rows dated on or after the cutoff
	Canonical        int64 // rows ingested from bank exports
	DuplicateKeys    int64 // business keys stored more than once
	Overlapping      int64 // rebuilt rows on or after the cutoff matching an export row by date and amount
	Outflow          decimal.Decimal
	Inflow           decimal.Decimal
}

// Reverse is the total number of rebuilt rows.
func (s Stats) Reverse() int64 { return s.ReverseBefore + s.ReverseOnOrAfter }

// Store is the canonical store as seen by the resolver.
type Store interface {
	CanonicalTable() string
	ReconcileStats(ctx context.Context, bank domain.Bank, cutoff civil.Date) (Stats, error)
	// BackupReverseEngineered copies every rebuilt row of bank into a new
	// table named destination and returns the number of rows copied.
	BackupReverseEngineered(ctx context.Context, bank domain.Bank, destination string) (int64, error)
	// DeleteReverseEngineered removes rebuilt rows dated on or after cutoff.
	DeleteReverseEngineered(ctx context.Context, bank domain.Bank, cutoff civil.Date) (int64, error)
}

// Plan is the intended change for one account.
type Plan struct {
	Bank      domain.Bank
	Account   string
	Cutoff    civil.Date
	Before    Stats
	Backup    string
	State     State
	CreatedAt time.Time

	BackupRows int64
	Deleted    int64
}

// ToKeep is the number of rebuilt rows that survive.
func (p *Plan) ToKeep() int64 { return p.Before.ReverseBefore }

// ToRemove is the number of rebuilt rows that will be deleted.
func (p *Plan) ToRemove() int64 { return p.Before.ReverseOnOrAfter }

// Verification compares the account before and after Resolve.
type Verification struct {
	After    Stats
	Problems []string
}

// Passed reports whether every check held.
func (v *Verification) Passed() bool { return len(v.Problems) == 0 }

// BackupTableName is the CTAS destination for a backup taken at ts.
func BackupTableName(table string, ts time.Time) string {
	return fmt.Sprintf("%s_backup_%s", table, ts.UTC().Format("20060102_150405"))
}

// Resolver runs plan, backup, resolve and verify against a store.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver returns a resolver over store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Plan reads the current state of the account without changing anything.
// Accounts with nothing to remove come back Resolved.
func (r *Resolver) Plan(ctx context.Context, bank domain.Bank, account string, cutoff civil.Date) (*Plan, error) {
	stats, err := r.store.ReconcileStats(ctx, bank, cutoff)
	if err != nil {
		return nil, fmt.Errorf("Plan: reading stats for %s: %w", bank, err)
	}
	now := r.now()
	p := &Plan{
		Bank:      bank,
		Account:   account,
		Cutoff:    cutoff,
		Before:    stats,
		Backup:    BackupTableName(r.store.CanonicalTable(), now),
		State:     NeedsReconciliation,
		CreatedAt: now,
	}
	if stats.ReverseOnOrAfter == 0 {
		p.State = Resolved
	}

	log := logger.Component(ctx, "reconcile")
	log.Info().
		Str("bank", string(bank)).
		Str("account", account).
		Str("cutoff", cutoff.String()).
		Int64("keep", p.ToKeep()).
		Int64("remove", p.ToRemove()).
		Int64("canonical", stats.Canonical).
		Int64("overlapping", stats.Overlapping).
		Int64("duplicate_keys", stats.DuplicateKeys).
		Str("state", string(p.State)).
		Msg("reconciliation planned")
	return p, nil
}

// Backup copies every rebuilt row of the account. A failed copy or a row
// count different from the plan stops the run.
func (r *Resolver) Backup(ctx context.Context, p *Plan) error {
	if p.State != NeedsReconciliation {
		return &ConflictError{Want: NeedsReconciliation, Got: p.State}
	}
	n, err := r.store.BackupReverseEngineered(ctx, p.Bank, p.Backup)
	if err != nil {
		return &DestructiveOperationError{Step: "backup", Err: err}
	}
	if n != p.Before.Reverse() {
		return &DestructiveOperationError{
			Step: "backup",
			Err:  fmt.Errorf("copied %d rows into %s, planned %d", n, p.Backup, p.Before.Reverse()),
		}
	}
	p.BackupRows = n
	p.State = BackedUp

	log := logger.Component(ctx, "reconcile")
	log.Info().
		Str("bank", string(p.Bank)).
		Str("backup", p.Backup).
		Int64("rows", n).
		Msg("backup created")
	return nil
}

// Resolve deletes the rebuilt rows dated on or after the cutoff. Export rows
// are never touched.
func (r *Resolver) Resolve(ctx context.Context, p *Plan, confirmed bool) error {
	if p.State != BackedUp {
		return &ConflictError{Want: BackedUp, Got: p.State}
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	n, err := r.store.DeleteReverseEngineered(ctx, p.Bank, p.Cutoff)
	if err != nil {
		return fmt.Errorf("Resolve: deleting rebuilt rows for %s: %w", p.Bank, err)
	}
	p.Deleted = n
	p.State = Resolved

	log := logger.Component(ctx, "reconcile")
	log.Info().
		Str("bank", string(p.Bank)).
		Int64("deleted", n).
		Msg("rebuilt rows removed")
	return nil
}

// Verify checks the account after Resolve. Problems are reported, not rolled back.
func (r *Resolver) Verify(ctx context.Context, p *Plan) (*Verification, error) {
	after, err := r.store.ReconcileStats(ctx, p.Bank, p.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("Verify: reading stats for %s: %w", p.Bank, err)
	}
	v := &Verification{After: after}
	if after.DuplicateKeys != 0 {
		v.Problems = append(v.Problems, fmt.Sprintf("%d duplicate business keys remain", after.DuplicateKeys))
	}
	if after.Outflow.GreaterThan(p.Before.Outflow) {
		v.Problems = append(v.Problems, fmt.Sprintf("outflow increased from %s to %s", p.Before.Outflow.StringFixed(2), after.Outflow.StringFixed(2)))
	}
	if after.Inflow.GreaterThan(p.Before.Inflow) {
		v.Problems = append(v.Problems, fmt.Sprintf("inflow increased from %s to %s", p.Before.Inflow.StringFixed(2), after.Inflow.StringFixed(2)))
	}
	if after.ReverseBefore != p.Before.ReverseBefore {
		v.Problems = append(v.Problems, fmt.Sprintf("rebuilt rows before cutoff changed from %d to %d", p.Before.ReverseBefore, after.ReverseBefore))
	}
	if after.Canonical != p.Before.Canonical {
		v.Problems = append(v.Problems, fmt.Sprintf("export rows changed from %d to %d", p.Before.Canonical, after.Canonical))
	}

	log := logger.Component(ctx, "reconcile")
	if v.Passed() {
		log.Info().Str("bank", string(p.Bank)).Msg("verification passed")
	} else {
		log.Warn().Str("bank", string(p.Bank)).Strs("problems", v.Problems).Msg("verification failed")
	}
	return v, nil
}

// Run backs up, resolves and verifies a plan that needs reconciliation.
func (r *Resolver) Run(ctx context.Context, p *Plan, confirmed bool) (*Verification, error) {
	if p.State == Resolved {
		return &Verification{After: p.Before}, nil
	}
	if !confirmed {
		return nil, ErrConfirmationRequired
	}
	if err := r.Backup(ctx, p); err != nil {
		return nil, err
	}
	if err := r.Resolve(ctx, p, confirmed); err != nil {
		return nil, err
	}
	return r.Verify(ctx, p)
}
