package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/gocarina/gocsv"
)

// ExportRow is one canonical transaction as written to CSV.
type ExportRow struct {
	Date              string `csv:"date"`
	Bank              string `csv:"bank"`
	Account           string `csv:"account"`
	Description       string `csv:"description"`
	Amount            string `csv:"amount"`
	Currency          string `csv:"currency"`
	Category          string `csv:"category"`
	Status            string `csv:"category_status"`
	Summary           string `csv:"summary"`
	BusinessKey       string `csv:"business_key"`
	ReverseEngineered bool   `csv:"reverse_engineered"`
	SourceFile        string `csv:"source_file"`
}

func exportRow(tx *domain.StandardizedTransaction) *ExportRow {
	return &ExportRow{
		Date:              tx.TransactionDate.String(),
		Bank:              string(tx.SourceBank),
		Account:           tx.Account,
		Description:       tx.Description,
		Amount:            domain.FormatAmount(tx.Amount),
		Currency:          tx.Currency,
		Category:          tx.Category,
		Status:            string(tx.CategoryStatus),
		Summary:           tx.Summary,
		BusinessKey:       tx.BusinessKey,
		ReverseEngineered: tx.ReverseEngineered,
		SourceFile:        tx.SourceFile,
	}
}

// Export writes the canonical rows matching filter to w as CSV with a
// header line and returns the number of rows written.
func Export(ctx context.Context, store ExportStore, filter domain.TransactionFilter, w io.Writer) (int, error) {
	txs, err := store.ListTransactions(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("Export: list transactions: %w", err)
	}
	rows := make([]*ExportRow, len(txs))
	for i, tx := range txs {
		rows[i] = exportRow(tx)
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return 0, fmt.Errorf("Export: write csv: %w", err)
	}
	return len(rows), nil
}
