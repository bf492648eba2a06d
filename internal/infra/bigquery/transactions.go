package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRow is one row of budget.transactions.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED
	SourceBank    string `bigquery:"source_bank"`    // REQUIRED
	Account       string `bigquery:"account"`        // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Description     string     `bigquery:"description"`      // REQUIRED

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC, outflow negative
	Currency string   `bigquery:"currency"` // REQUIRED

	BusinessKey string `bigquery:"business_key"` // REQUIRED, unique

	Category        string              `bigquery:"category"`         // REQUIRED
	CategoryStatus  string              `bigquery:"category_status"`  // REQUIRED
	Summary         bigquery.NullString `bigquery:"summary"`          // NULLABLE
	EvidenceQuery   bigquery.NullString `bigquery:"evidence_query"`   // NULLABLE
	EvidenceSummary bigquery.NullString `bigquery:"evidence_summary"` // NULLABLE

	ReverseEngineered bool   `bigquery:"reverse_engineered"`
	SourceFile        string `bigquery:"source_file"`
	FileHash          string `bigquery:"file_hash"`
	StagingRowID      string `bigquery:"staging_row_id"`

	InsertedAt    time.Time              `bigquery:"inserted_at"`    // REQUIRED
	CategorizedAt bigquery.NullTimestamp `bigquery:"categorized_at"` // NULLABLE
	PublishedAt   bigquery.NullTimestamp `bigquery:"published_at"`   // NULLABLE
}

// transactionParam is the ARRAY<STRUCT> element bound by the merge insert.
// Nullable columns are left out; they start NULL.
type transactionParam struct {
	TransactionID     string     `bigquery:"transaction_id"`
	SourceBank        string     `bigquery:"source_bank"`
	Account           string     `bigquery:"account"`
	TransactionDate   civil.Date `bigquery:"transaction_date"`
	Description       string     `bigquery:"description"`
	Amount            *big.Rat   `bigquery:"amount"`
	Currency          string     `bigquery:"currency"`
	BusinessKey       string     `bigquery:"business_key"`
	Category          string     `bigquery:"category"`
	CategoryStatus    string     `bigquery:"category_status"`
	ReverseEngineered bool       `bigquery:"reverse_engineered"`
	SourceFile        string     `bigquery:"source_file"`
	FileHash          string     `bigquery:"file_hash"`
	StagingRowID      string     `bigquery:"staging_row_id"`
	InsertedAt        time.Time  `bigquery:"inserted_at"`
}

func newTransactionParam(tx *domain.StandardizedTransaction) transactionParam {
	return transactionParam{
		TransactionID:     tx.TransactionID,
		SourceBank:        string(tx.SourceBank),
		Account:           tx.Account,
		TransactionDate:   tx.TransactionDate,
		Description:       tx.Description,
		Amount:            tx.Amount.Rat(),
		Currency:          tx.Currency,
		BusinessKey:       tx.BusinessKey,
		Category:          tx.Category,
		CategoryStatus:    string(tx.CategoryStatus),
		ReverseEngineered: tx.ReverseEngineered,
		SourceFile:        tx.SourceFile,
		FileHash:          tx.FileHash,
		StagingRowID:      tx.StagingRowID,
		InsertedAt:        tx.InsertedAt,
	}
}

// toDomain converts a stored row back to the canonical model.
func (r *TransactionRow) toDomain() *domain.StandardizedTransaction {
	tx := &domain.StandardizedTransaction{
		TransactionID:     r.TransactionID,
		SourceBank:        domain.Bank(r.SourceBank),
		Account:           r.Account,
		TransactionDate:   r.TransactionDate,
		Description:       r.Description,
		Amount:            ratToDecimal(r.Amount),
		Currency:          r.Currency,
		BusinessKey:       r.BusinessKey,
		Category:          r.Category,
		CategoryStatus:    domain.CategoryStatus(r.CategoryStatus),
		Summary:           r.Summary.StringVal,
		EvidenceQuery:     r.EvidenceQuery.StringVal,
		EvidenceSummary:   r.EvidenceSummary.StringVal,
		ReverseEngineered: r.ReverseEngineered,
		SourceFile:        r.SourceFile,
		FileHash:          r.FileHash,
		StagingRowID:      r.StagingRowID,
		InsertedAt:        r.InsertedAt,
	}
	if r.CategorizedAt.Valid {
		tx.CategorizedAt = r.CategorizedAt.Timestamp
	}
	if r.PublishedAt.Valid {
		tx.PublishedAt = r.PublishedAt.Timestamp
	}
	return tx
}

func ratToDecimal(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigRat(r, 2)
}
