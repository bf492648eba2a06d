package categorizer

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// AmountSpellings lists the ways a receipt may write amount: the integer
// part, comma and dot decimals when the fraction is non-zero, and each of
// those with space-grouped thousands.
func AmountSpellings(amount decimal.Decimal) []string {
	fixed := amount.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	plain := []string{intPart}
	if frac != "00" {
		plain = append(plain, intPart+","+frac, intPart+"."+frac)
	}

	grouped := groupThousands(intPart)
	out := append([]string(nil), plain...)
	if grouped != intPart {
		out = append(out, grouped)
		if frac != "00" {
			out = append(out, grouped+","+frac, grouped+"."+frac)
		}
	}
	return out
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var sb strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		sb.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(digits[i : i+3])
	}
	return sb.String()
}

// BuildQuery returns the archive search for a transaction, e.g.
//
//	"1049" OR "1049,12" OR "1049.12" OR "1 049" OR "1 049,12" OR "1 049.12" after:2025/04/28 before:2025/05/04
func BuildQuery(date civil.Date, amount decimal.Decimal, windowDays int) string {
	spellings := AmountSpellings(amount)
	quoted := make([]string, len(spellings))
	for i, s := range spellings {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%s after:%s before:%s",
		strings.Join(quoted, " OR "),
		searchDate(date.AddDays(-windowDays)),
		searchDate(date.AddDays(windowDays)),
	)
}

func searchDate(d civil.Date) string {
	return fmt.Sprintf("%04d/%02d/%02d", d.Year, int(d.Month), d.Day)
}
