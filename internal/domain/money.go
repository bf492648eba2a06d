package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for strings that are not a monetary amount.
var ErrInvalidAmount = errors.New("invalid amount")

var amountReplacer = strings.NewReplacer(
	" ", "",
	"\u00a0", "",
	"\u202f", "",
	"\t", "",
	"kr", "",
	"KR", "",
	"Kr", "",
	"SEK", "",
)

// ParseAmount parses amounts in the formats found in Swedish bank exports.
//
//	"1 234,56 kr" -> 1234.56
//	"-300.00"     -> -300
//	"1.234,56"    -> 1234.56
//	"1,234.56"    -> 1234.56
//
// The last separator is taken as the decimal mark when both are present.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = amountReplacer.Replace(strings.TrimSpace(s))
	// Unicode minus shows up in some xlsx exports.
	s = strings.ReplaceAll(s, "\u2212", "-")
	if s == "" || s == "-" || s == "+" {
		return decimal.Zero, ErrInvalidAmount
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseOptionalAmount returns nil for blank input.
func ParseOptionalAmount(s string) (*decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// FormatAmount renders an amount with two decimals and a dot mark.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
