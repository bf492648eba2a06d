package domain

import (
	"fmt"
	"strings"
)

// Bank identifies one of the supported export sources.
type Bank string

const (
	BankSEB        Bank = "seb"
	BankRevolut    Bank = "revolut"
	BankFirstCard  Bank = "firstcard"
	BankStrawberry Bank = "strawberry"
)

// Banks lists every supported source in a stable order.
var Banks = []Bank{BankSEB, BankRevolut, BankFirstCard, BankStrawberry}

// ParseBank resolves a case-insensitive bank name.
func ParseBank(s string) (Bank, error) {
	b := Bank(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Banks {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown bank %q", s)
}

// DisplayName is the human form used in fallback descriptions,
// e.g. "FirstCard Transaction".
func (b Bank) DisplayName() string {
	switch b {
	case BankSEB:
		return "SEB"
	case BankRevolut:
		return "Revolut"
	case BankFirstCard:
		return "FirstCard"
	case BankStrawberry:
		return "Strawberry"
	}
	return string(b)
}

// FallbackDescription is the literal used when every description column is empty.
func (b Bank) FallbackDescription() string {
	return b.DisplayName() + " Transaction"
}

func (b Bank) String() string { return string(b) }
