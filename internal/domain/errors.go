package domain

import "fmt"

// ParseError is a row-level failure. The row is excluded and counted.
type ParseError struct {
	Bank   Bank
	Row    int
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s row %d: failed to parse %s=%q: %v", e.Bank, e.Row, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s row %d: %s %s=%q", e.Bank, e.Row, e.Reason, e.Field, e.Value)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
