package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// SourceReverseEngineered marks staging rows rebuilt from the ledger sheet.
const SourceReverseEngineered = "orig_google_sheet_rev_engineered"

// StagingMeta is the provenance shared by every staging variant.
type StagingMeta struct {
	FileHash          string
	SourceFile        string
	UploadTimestamp   time.Time
	RowNumber         int
	BusinessKey       string
	ReverseEngineered bool
}

// StagingRowID identifies the row inside its source file.
func (m StagingMeta) StagingRowID() string {
	return fmt.Sprintf("%s_%d", m.FileHash, m.RowNumber)
}

// StagingRow is one parsed export row. The concrete type is one of
// *SEBRow, *RevolutRow, *FirstCardRow or *StrawberryRow.
type StagingRow interface {
	Bank() Bank
	Meta() *StagingMeta
	stagingRow()
}

// SEBRow mirrors an SEB account export.
type SEBRow struct {
	StagingMeta
	Bokforingsdatum     civil.Date
	Valutadatum         string
	Verifikationsnummer string
	Text                string
	Belopp              decimal.Decimal
	Saldo               *decimal.Decimal
}

func (*SEBRow) Bank() Bank            { return BankSEB }
func (r *SEBRow) Meta() *StagingMeta { return &r.StagingMeta }
func (*SEBRow) stagingRow()           {}

// RevolutRow mirrors a Revolut account statement.
type RevolutRow struct {
	StagingMeta
	Type          string
	Product       string
	StartedDate   string
	CompletedDate string
	Date          civil.Date
	Description   string
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Currency      string
	State         string
	Balance       *decimal.Decimal
}

func (*RevolutRow) Bank() Bank            { return BankRevolut }
func (r *RevolutRow) Meta() *StagingMeta { return &r.StagingMeta }
func (*RevolutRow) stagingRow()           {}

// NetAmount is the amount after fees, the figure that leaves the account.
func (r *RevolutRow) NetAmount() decimal.Decimal {
	return r.Amount.Sub(r.Fee)
}

// FirstCardRow mirrors a FirstCard credit card statement. Purchases are positive.
type FirstCardRow struct {
	StagingMeta
	Datum                      civil.Date
	YtterligareInformation     string
	ReseinformationInkopsplats string
	Valuta                     string
	Vaxlingskurs               *decimal.Decimal
	UtlandsktBelopp            *decimal.Decimal
	Belopp                     decimal.Decimal
	Moms                       *decimal.Decimal
	Kort                       string
}

func (*FirstCardRow) Bank() Bank            { return BankFirstCard }
func (r *FirstCardRow) Meta() *StagingMeta { return &r.StagingMeta }
func (*FirstCardRow) stagingRow()           {}

// StrawberryRow mirrors a Strawberry card statement. Purchases are positive.
type StrawberryRow struct {
	StagingMeta
	Datum          civil.Date
	Bokfort        string
	Specifikation  string
	Ort            string
	Valuta         string
	UtlBeloppMoms  string
	Belopp         decimal.Decimal
}

func (*StrawberryRow) Bank() Bank            { return BankStrawberry }
func (r *StrawberryRow) Meta() *StagingMeta { return &r.StagingMeta }
func (*StrawberryRow) stagingRow()           {}
