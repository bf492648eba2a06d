// Package normalize projects bank-specific staging rows onto the fields the
// canonical store needs. It is the single place that knows, per bank, which
// columns hold the date, amount and description.
package normalize

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/bizkey"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/sign"
	"github.com/shopspring/decimal"
)

// Fields are the bank-independent values of one staging row.
type Fields struct {
	Bank        domain.Bank
	Date        civil.Date
	Description string
	Native      decimal.Decimal
	Canonical   decimal.Decimal
	Currency    string
	ExternalID  string
	Reverse     bool
}

// Project dispatches on the staging variant, choosing the description
// fallback chain and applying the bank's sign rule exactly once.
func Project(row domain.StagingRow, table sign.Table) (Fields, error) {
	var f Fields
	switch r := row.(type) {
	case *domain.SEBRow:
		f = Fields{
			Date:        r.Bokforingsdatum,
			Description: firstNonEmpty(r.Text),
			Native:      r.Belopp,
			Currency:    domain.DefaultCurrency,
			ExternalID:  r.Verifikationsnummer,
		}
	case *domain.RevolutRow:
		f = Fields{
			Date:        r.Date,
			Description: firstNonEmpty(r.Description),
			Native:      r.NetAmount(),
			Currency:    r.Currency,
		}
	case *domain.FirstCardRow:
		f = Fields{
			Date:        r.Datum,
			Description: firstNonEmpty(r.ReseinformationInkopsplats, r.YtterligareInformation),
			Native:      r.Belopp,
			Currency:    r.Valuta,
		}
	case *domain.StrawberryRow:
		f = Fields{
			Date:        r.Datum,
			Description: firstNonEmpty(r.Specifikation),
			Native:      r.Belopp,
			Currency:    r.Valuta,
		}
	default:
		return Fields{}, fmt.Errorf("normalize.Project: unsupported staging row %T", row)
	}

	f.Bank = row.Bank()
	f.Reverse = row.Meta().ReverseEngineered
	if f.Description == "" {
		f.Description = f.Bank.FallbackDescription()
	}
	if strings.TrimSpace(f.Currency) == "" {
		f.Currency = domain.DefaultCurrency
	}
	if f.Reverse {
		// Rebuilt rows carry no bank-issued identifiers.
		f.ExternalID = ""
	}

	canonical, err := table.ToCanonical(f.Bank, f.Native)
	if err != nil {
		return Fields{}, fmt.Errorf("normalize.Project: %w", err)
	}
	f.Canonical = canonical
	return f, nil
}

// PlainKey is the business key without any disambiguator.
func (f Fields) PlainKey() string {
	return f.KeyWith("")
}

// KeyWith returns the business key using disambiguator when it is non-empty.
// Bank-issued identifiers always win over the content hash.
func (f Fields) KeyWith(disambiguator string) string {
	if f.ExternalID != "" {
		return bizkey.ExternalKey(f.Bank, f.ExternalID)
	}
	if f.Reverse {
		return bizkey.ReverseKey(f.Bank, f.Date, f.Canonical, f.Description, disambiguator)
	}
	return bizkey.Key(f.Bank, f.Date, f.Canonical, f.Description, disambiguator)
}

// AssignKeys computes business keys for a batch parsed from one source,
// disambiguating repeated content by row number.
func AssignKeys(rows []domain.StagingRow, table sign.Table) error {
	tracker := bizkey.NewTracker()
	for _, row := range rows {
		f, err := Project(row, table)
		if err != nil {
			return err
		}
		meta := row.Meta()
		if f.ExternalID != "" {
			meta.BusinessKey = f.PlainKey()
			continue
		}
		plain := f.PlainKey()
		meta.BusinessKey = f.KeyWith(tracker.Next(plain, meta.RowNumber))
	}
	return nil
}

// VerifyKey checks a stored key against a recomputation from the row content.
func VerifyKey(row domain.StagingRow, f Fields) error {
	meta := row.Meta()
	if meta.BusinessKey == f.PlainKey() || meta.BusinessKey == f.KeyWith(bizkey.Disambiguator(meta.RowNumber)) {
		return nil
	}
	return fmt.Errorf("business key %q does not match row content (expected %q)", meta.BusinessKey, f.PlainKey())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
