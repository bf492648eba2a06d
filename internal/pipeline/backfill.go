package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/reconcile"
	"github.com/dvloznov/budget-updater/internal/sign"
)

// Backfiller rebuilds a bank's history from the ledger tab and merges it
// like an export, flagged as reverse-engineered.
type Backfiller struct {
	store   Store
	reader  LedgerReader
	merger  Merger
	signs   sign.Table
	aliases map[domain.Bank]string
	tab     string
	now     func() time.Time
}

// NewBackfiller wires the ledger source and the store.
func NewBackfiller(store Store, reader LedgerReader, tab string, merger Merger, signs sign.Table, aliases map[domain.Bank]string) *Backfiller {
	return &Backfiller{
		store:   store,
		reader:  reader,
		merger:  merger,
		signs:   signs,
		aliases: aliases,
		tab:     tab,
		now:     time.Now,
	}
}

// Backfill runs the ledger pipeline for bank, keeping rows inside window.
// An unchanged ledger has the same hash and is skipped.
func (b *Backfiller) Backfill(ctx context.Context, bank domain.Bank, window reconcile.Window) (FileReport, error) {
	alias, ok := b.aliases[bank]
	if !ok || alias == "" {
		return FileReport{}, fmt.Errorf("Backfill: no ledger account for bank %s", bank)
	}
	ledger := &LedgerStep{
		Reader: b.reader,
		Tab:    b.tab,
		Alias:  alias,
		Signs:  b.signs,
		Window: window,
		Now:    b.now,
	}
	state := &PipelineState{Source: "sheet:" + b.tab, Bank: bank}
	report, err := runAndRecord(ctx, NewBackfillPipeline(b.store, ledger, b.merger), b.store, state, b.now)
	if err != nil {
		return report, fmt.Errorf("Backfill: %w", err)
	}
	return report, nil
}
