// Package sign maps each bank's native amount convention onto the canonical
// one, where outflows are negative and inflows positive.
package sign

import (
	"fmt"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/shopspring/decimal"
)

// Rule describes how a bank signs its amounts.
type Rule string

const (
	// Native banks already post expenses as negative amounts.
	Native Rule = "native"
	// Inverted banks post purchases positive and refunds/payments negative.
	Inverted Rule = "inverted"
)

// ParseRule validates a configured rule name.
func ParseRule(s string) (Rule, error) {
	switch Rule(s) {
	case Native, Inverted:
		return Rule(s), nil
	}
	return "", fmt.Errorf("unknown sign rule %q", s)
}

// Table holds one rule per bank.
type Table map[domain.Bank]Rule

// DefaultTable is the convention of the four supported exports.
func DefaultTable() Table {
	return Table{
		domain.BankSEB:        Native,
		domain.BankRevolut:    Native,
		domain.BankFirstCard:  Inverted,
		domain.BankStrawberry: Inverted,
	}
}

// Rule returns the rule for bank, or an error if none is configured.
func (t Table) Rule(bank domain.Bank) (Rule, error) {
	r, ok := t[bank]
	if !ok {
		return "", fmt.Errorf("no sign rule configured for bank %q", bank)
	}
	return r, nil
}

// ToCanonical converts a native amount to the canonical convention.
func (t Table) ToCanonical(bank domain.Bank, native decimal.Decimal) (decimal.Decimal, error) {
	r, err := t.Rule(bank)
	if err != nil {
		return decimal.Zero, err
	}
	return apply(r, native), nil
}

// ToNative is the inverse of ToCanonical, used when rebuilding raw rows
// from the ledger view.
func (t Table) ToNative(bank domain.Bank, canonical decimal.Decimal) (decimal.Decimal, error) {
	r, err := t.Rule(bank)
	if err != nil {
		return decimal.Zero, err
	}
	return apply(r, canonical), nil
}

// negation is its own inverse, so both directions share one function
func apply(r Rule, amount decimal.Decimal) decimal.Decimal {
	if r == Inverted && !amount.IsZero() {
		return amount.Neg()
	}
	return amount
}

// Split renders a canonical amount as ledger outflow/inflow cells.
// Zero amounts leave both cells empty.
func Split(canonical decimal.Decimal) (outflow, inflow string) {
	switch {
	case canonical.IsNegative():
		return canonical.Abs().StringFixed(2), ""
	case canonical.IsPositive():
		return "", canonical.StringFixed(2)
	}
	return "", ""
}

// Join is the inverse of Split. Blank cells count as zero.
func Join(outflow, inflow string) (decimal.Decimal, error) {
	out, err := domain.ParseOptionalAmount(outflow)
	if err != nil {
		return decimal.Zero, fmt.Errorf("outflow %q: %w", outflow, err)
	}
	in, err := domain.ParseOptionalAmount(inflow)
	if err != nil {
		return decimal.Zero, fmt.Errorf("inflow %q: %w", inflow, err)
	}
	total := decimal.Zero
	if in != nil {
		total = total.Add(in.Abs())
	}
	if out != nil {
		total = total.Sub(out.Abs())
	}
	return total, nil
}
