package domain

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// CategoryStatus tracks where a transaction is in categorization.
type CategoryStatus string

const (
	StatusPending      CategoryStatus = "PENDING"
	StatusCategorized  CategoryStatus = "CATEGORIZED"
	StatusManualReview CategoryStatus = "MANUAL_REVIEW"
)

const (
	// PendingCategory is the category placeholder until the agent has run.
	PendingCategory = "PENDING_AI"
	// ManualReview is the sentinel category for uncertain categorizations.
	ManualReview = "MANUAL REVIEW"
	// NoEmailUsed is the evidence summary when no archived message corroborated the transaction.
	NoEmailUsed = "NO_EMAIL_USED"
	// DefaultCurrency applies when an export has no currency column value.
	DefaultCurrency = "SEK"
)

// StandardizedTransaction is one row of the canonical store.
// Amount follows the canonical sign convention: outflow negative, inflow positive.
type StandardizedTransaction struct {
	TransactionID     string
	SourceBank        Bank
	Account           string
	TransactionDate   civil.Date
	Description       string
	Amount            decimal.Decimal
	Currency          string
	BusinessKey       string
	Category          string
	CategoryStatus    CategoryStatus
	Summary           string
	EvidenceQuery     string
	EvidenceSummary   string
	ReverseEngineered bool
	SourceFile        string
	FileHash          string
	StagingRowID      string
	InsertedAt        time.Time
	CategorizedAt     time.Time
	PublishedAt       time.Time
}

// IsOutflow reports whether money left the account.
func (t *StandardizedTransaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// CategorizationResult is the agent's verdict for one transaction.
type CategorizationResult struct {
	Category        string `json:"category"`
	Summary         string `json:"summary"`
	EvidenceQuery   string `json:"query"`
	EvidenceSummary string `json:"email_summary"`
}

// Status derives the category status the result should be stored with.
func (r CategorizationResult) Status() CategoryStatus {
	if IsManualReview(r.Category) {
		return StatusManualReview
	}
	return StatusCategorized
}

// IsManualReview matches the sentinel and its "MANUAL REVIEW (reason)" variants.
func IsManualReview(category string) bool {
	return category == ManualReview || strings.HasPrefix(category, ManualReview+" (")
}
