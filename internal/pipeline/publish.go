package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/budget-updater/internal/logger"
	"github.com/dvloznov/budget-updater/internal/sheets"
)

// Publisher appends categorized rows to the ledger tab and stamps them.
type Publisher struct {
	store  PublishStore
	writer LedgerWriter
	tab    string
	now    func() time.Time
}

// NewPublisher returns a publisher writing to tab.
func NewPublisher(store PublishStore, writer LedgerWriter, tab string) *Publisher {
	return &Publisher{store: store, writer: writer, tab: tab, now: time.Now}
}

// Publish appends up to limit unpublished rows in date order and returns how
// many were written. Rows are marked published only after the append succeeds.
func (p *Publisher) Publish(ctx context.Context, limit int) (int, error) {
	log := logger.Component(ctx, "publish")

	txs, err := p.store.Unpublished(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("Publish: list unpublished: %w", err)
	}
	if len(txs) == 0 {
		log.Info().Msg("nothing to publish")
		return 0, nil
	}

	rows := make([][]any, len(txs))
	ids := make([]string, len(txs))
	for i, tx := range txs {
		rows[i] = sheets.LedgerValues(tx)
		ids[i] = tx.TransactionID
	}

	appended, err := p.writer.AppendRows(ctx, p.tab, rows)
	if err != nil {
		return 0, fmt.Errorf("Publish: append to %s: %w", p.tab, err)
	}
	if appended != int64(len(rows)) {
		log.Warn().Int64("appended", appended).Int("rows", len(rows)).Msg("sheet reported a different row count")
	}

	if err := p.store.MarkPublished(ctx, ids, p.now().UTC()); err != nil {
		return 0, fmt.Errorf("Publish: mark %d rows published: %w", len(ids), err)
	}
	log.Info().Int("rows", len(rows)).Str("tab", p.tab).Msg("published to ledger")
	return len(rows), nil
}
