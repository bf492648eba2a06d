// Package ingest parses raw bank exports into typed staging rows.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/normalize"
	"github.com/dvloznov/budget-updater/internal/sign"
	"github.com/xuri/excelize/v2"
)

var errInvalidDate = errors.New("invalid date")

// Result is the outcome of parsing one export file.
type Result struct {
	Bank       domain.Bank
	SourceFile string
	FileHash   string
	Rows       []domain.StagingRow
	Failures   []*domain.ParseError
}

// Parsed is the number of rows that made it into staging.
func (r *Result) Parsed() int { return len(r.Rows) }

// Failed is the number of rows excluded for parse errors.
func (r *Result) Failed() int { return len(r.Failures) }

// Parser turns export bytes into staging rows with business keys assigned.
type Parser struct {
	signs sign.Table
	now   func() time.Time
}

// NewParser returns a parser using the given sign table for key computation.
func NewParser(signs sign.Table) *Parser {
	return &Parser{signs: signs, now: time.Now}
}

// FileHash is the hex SHA-256 of an export, used to recognize reprocessing.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Parse reads one export. Unreadable files and missing headers are errors;
// bad rows are collected in Result.Failures.
func (p *Parser) Parse(bank domain.Bank, sourceFile string, data []byte) (*Result, error) {
	l, ok := layouts[bank]
	if !ok {
		return nil, fmt.Errorf("Parse: no layout for bank %q", bank)
	}
	reader, err := ReaderFor(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("Parse: %w", err)
	}
	rows, err := reader.ReadRows(data)
	if err != nil {
		return nil, fmt.Errorf("Parse: reading %s: %w", sourceFile, err)
	}
	header, err := FindHeader(rows, l.required)
	if err != nil {
		return nil, fmt.Errorf("Parse: %s export %s: %w", bank, sourceFile, err)
	}

	res := &Result{
		Bank:       bank,
		SourceFile: sourceFile,
		FileHash:   FileHash(data),
	}
	uploaded := p.now().UTC()

	for _, rec := range header.Records(rows) {
		meta := domain.StagingMeta{
			FileHash:        res.FileHash,
			SourceFile:      sourceFile,
			UploadTimestamp: uploaded,
			RowNumber:       rec.Row,
		}
		row, perr := l.build(rec, meta)
		if perr != nil {
			perr.Bank = bank
			perr.Row = rec.Row
			res.Failures = append(res.Failures, perr)
			continue
		}
		res.Rows = append(res.Rows, row)
	}

	if err := normalize.AssignKeys(res.Rows, p.signs); err != nil {
		return nil, fmt.Errorf("Parse: assigning keys: %w", err)
	}
	return res, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"20060102",
	"02.01.2006",
	"01-02-06",
	"1/2/2006",
	"1/2/06",
}

// ParseDate accepts the date forms seen in exports, including timestamps
// (the date part is kept) and Excel serial numbers.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}, errInvalidDate
	}
	if len(s) > 10 && (s[10] == ' ' || s[10] == 'T') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return civil.DateOf(t), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 && serial < 80000 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return civil.DateOf(t), nil
		}
	}
	return civil.Date{}, errInvalidDate
}
