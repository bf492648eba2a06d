// Package bizkey derives the business keys used to detect duplicate
// transactions across re-ingestion and across sources.
package bizkey

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// DescriptionPrefix is how many runes of the normalized description take part in the hash.
const DescriptionPrefix = 50

const (
	kindContent = "biz"
	kindReverse = "rev"
	kindVerif   = "verif"
)

// NormalizeDescription trims, lowercases, collapses whitespace and bounds
// the description to DescriptionPrefix runes.
func NormalizeDescription(desc string) string {
	s := norm.NFC.String(desc)
	s = cases.Lower(language.Und).String(s)
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > DescriptionPrefix {
		s = string(r[:DescriptionPrefix])
	}
	return s
}

// Disambiguator is the row suffix used for repeated content within one source.
func Disambiguator(rowNumber int) string {
	return fmt.Sprintf("row_%d", rowNumber)
}

// Key returns the content key for a transaction. disambiguator may be empty.
func Key(bank domain.Bank, date civil.Date, amount decimal.Decimal, description, disambiguator string) string {
	return build(kindContent, bank, date, amount, description, disambiguator)
}

// ReverseKey is the content key for rows rebuilt from the ledger sheet.
// It lives in its own namespace so such rows never collide with export rows.
func ReverseKey(bank domain.Bank, date civil.Date, amount decimal.Decimal, description, disambiguator string) string {
	return build(kindReverse, bank, date, amount, description, disambiguator)
}

// ExternalKey is used when the bank issues its own unique sequence number.
func ExternalKey(bank domain.Bank, externalID string) string {
	return fmt.Sprintf("%s_%s_%s", bank, kindVerif, strings.TrimSpace(externalID))
}

func build(kind string, bank domain.Bank, date civil.Date, amount decimal.Decimal, description, disambiguator string) string {
	parts := []string{
		string(bank),
		date.String(),
		amount.StringFixed(2),
		NormalizeDescription(description),
	}
	if disambiguator != "" {
		parts = append(parts, disambiguator)
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s_%s_%s", bank, kind, hex.EncodeToString(sum[:]))
}

// HasPrefix reports whether key belongs to bank.
func HasPrefix(key string, bank domain.Bank) bool {
	return strings.HasPrefix(key, string(bank)+"_")
}

// IsReverse reports whether key was produced by ReverseKey.
func IsReverse(key string) bool {
	return strings.Contains(key, "_"+kindReverse+"_")
}

// Tracker hands out disambiguators for content keys seen more than once
// within a single file or ledger read. The first occurrence keeps the plain key.
// The suffix follows row position, so a repeat can get a different key in a
// re-export covering another date range.
type Tracker struct {
	seen map[string]int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]int)}
}

// Next returns the disambiguator to use for a row whose plain key is key.
func (t *Tracker) Next(key string, rowNumber int) string {
	t.seen[key]++
	if t.seen[key] == 1 {
		return ""
	}
	return Disambiguator(rowNumber)
}
