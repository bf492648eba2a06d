package reconcile

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/ingest"
	"github.com/dvloznov/budget-updater/internal/normalize"
	"github.com/dvloznov/budget-updater/internal/sign"
	"github.com/shopspring/decimal"
)

// HistoricalDescription is used when a ledger row has neither category nor memo.
const HistoricalDescription = "Historical Transaction"

// LedgerColumns is the layout of the budget sheet.
var LedgerColumns = []string{"Date", "Outflow", "Inflow", "Category", "Account", "Memo", "Status"}

// LedgerRow is one line of the budget sheet.
type LedgerRow struct {
	Row      int
	Date     string
	Outflow  string
	Inflow   string
	Category string
	Account  string
	Memo     string
	Status   string
}

// ParseLedger locates the header row (the first containing DATE) and reads
// the rows below it.
func ParseLedger(values [][]string) ([]LedgerRow, error) {
	header, err := ingest.FindHeader(values, []string{"Date", "Outflow", "Inflow", "Account"})
	if err != nil {
		return nil, fmt.Errorf("ParseLedger: %w", err)
	}
	var out []LedgerRow
	for _, rec := range header.Records(values) {
		out = append(out, LedgerRow{
			Row:      rec.Row,
			Date:     rec.Get("Date"),
			Outflow:  rec.Get("Outflow"),
			Inflow:   rec.Get("Inflow"),
			Category: rec.Get("Category"),
			Account:  rec.Get("Account"),
			Memo:     rec.Get("Memo"),
			Status:   rec.Get("Status"),
		})
	}
	return out, nil
}

// Window optionally bounds a backfill by date, inclusive. Zero dates are open.
type Window struct {
	From, To civil.Date
}

func (w Window) contains(d civil.Date) bool {
	if w.From.IsValid() && d.Before(w.From) {
		return false
	}
	if w.To.IsValid() && d.After(w.To) {
		return false
	}
	return true
}

// Backfill is the staging batch rebuilt from the ledger for one bank.
type Backfill struct {
	Bank     domain.Bank
	Account  string
	FileHash string
	Rows     []domain.StagingRow
	Failures []*domain.ParseError
	Skipped  int // rows of other accounts or outside the window
}

// ReverseEngineer rebuilds staging rows for bank from ledger rows whose
// Account matches alias. Amounts are turned back into the bank's native
// convention so the rows go through the same merge as export rows.
func ReverseEngineer(rows []LedgerRow, bank domain.Bank, alias string, signs sign.Table, window Window, now time.Time) (*Backfill, error) {
	b := &Backfill{
		Bank:     bank,
		Account:  alias,
		FileHash: ledgerHash(rows, alias),
	}
	for _, lr := range rows {
		if !strings.EqualFold(strings.TrimSpace(lr.Account), strings.TrimSpace(alias)) {
			b.Skipped++
			continue
		}
		date, err := ingest.ParseDate(lr.Date)
		if err != nil {
			b.Failures = append(b.Failures, &domain.ParseError{Bank: bank, Row: lr.Row, Field: "Date", Value: lr.Date, Err: err})
			continue
		}
		if !window.contains(date) {
			b.Skipped++
			continue
		}
		// An explicit 0,00 is kept; only rows with both cells blank lack an amount.
		if strings.TrimSpace(lr.Outflow) == "" && strings.TrimSpace(lr.Inflow) == "" {
			b.Failures = append(b.Failures, &domain.ParseError{Bank: bank, Row: lr.Row, Field: "Outflow/Inflow", Value: lr.Outflow + "/" + lr.Inflow, Reason: "missing amount"})
			continue
		}
		canonical, err := sign.Join(lr.Outflow, lr.Inflow)
		if err != nil {
			b.Failures = append(b.Failures, &domain.ParseError{Bank: bank, Row: lr.Row, Field: "Outflow/Inflow", Value: lr.Outflow + "/" + lr.Inflow, Err: err})
			continue
		}
		native, err := signs.ToNative(bank, canonical)
		if err != nil {
			return nil, fmt.Errorf("ReverseEngineer: %w", err)
		}

		meta := domain.StagingMeta{
			FileHash:          b.FileHash,
			SourceFile:        domain.SourceReverseEngineered,
			UploadTimestamp:   now.UTC(),
			RowNumber:         lr.Row,
			ReverseEngineered: true,
		}
		b.Rows = append(b.Rows, rebuild(bank, meta, date, LedgerDescription(lr.Category, lr.Memo), native))
	}

	if err := normalize.AssignKeys(b.Rows, signs); err != nil {
		return nil, fmt.Errorf("ReverseEngineer: assigning keys: %w", err)
	}
	return b, nil
}

// LedgerDescription joins category and memo the way rebuilt rows are described.
func LedgerDescription(category, memo string) string {
	d := strings.Trim(strings.TrimSpace(category)+" - "+strings.TrimSpace(memo), " -")
	if d == "" {
		return HistoricalDescription
	}
	return d
}

func rebuild(bank domain.Bank, meta domain.StagingMeta, date civil.Date, desc string, native decimal.Decimal) domain.StagingRow {
	switch bank {
	case domain.BankSEB:
		return &domain.SEBRow{StagingMeta: meta, Bokforingsdatum: date, Valutadatum: date.String(), Text: desc, Belopp: native}
	case domain.BankRevolut:
		return &domain.RevolutRow{StagingMeta: meta, Date: date, CompletedDate: date.String(), Description: desc, Amount: native, Currency: domain.DefaultCurrency, State: "COMPLETED"}
	case domain.BankFirstCard:
		return &domain.FirstCardRow{StagingMeta: meta, Datum: date, ReseinformationInkopsplats: desc, Valuta: domain.DefaultCurrency, Belopp: native}
	default:
		return &domain.StrawberryRow{StagingMeta: meta, Datum: date, Specifikation: desc, Valuta: domain.DefaultCurrency, Belopp: native}
	}
}

func ledgerHash(rows []LedgerRow, alias string) string {
	var sb strings.Builder
	sb.WriteString(alias)
	for _, r := range rows {
		fmt.Fprintf(&sb, "\n%d|%s|%s|%s|%s|%s|%s", r.Row, r.Date, r.Outflow, r.Inflow, r.Category, r.Account, r.Memo)
	}
	return ingest.FileHash([]byte(sb.String()))
}
