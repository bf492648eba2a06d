package ingest

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeHeader strips BOM and surrounding whitespace and NFC-normalizes
// a header cell. Exports from different years disagree on composed vs
// decomposed "ö".
func NormalizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\ufeff", "")
	return norm.NFC.String(strings.TrimSpace(s))
}

// headerKey is the comparison form of a header: case folded, single spaced,
// no spaces around slashes.
func headerKey(s string) string {
	s = cases.Fold().String(NormalizeHeader(s))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, " /", "/")
	s = strings.ReplaceAll(s, "/ ", "/")
	return s
}

// Header is the located header row of an export.
type Header struct {
	Index   int // zero-based row index in the raw table
	Columns []string
	pos     map[string]int
}

// FindHeader returns the first row containing every required column.
func FindHeader(rows [][]string, required []string) (*Header, error) {
	for i, row := range rows {
		pos := make(map[string]int, len(row))
		for j, cell := range row {
			k := headerKey(cell)
			if k == "" {
				continue
			}
			if _, dup := pos[k]; !dup {
				pos[k] = j
			}
		}
		if hasAll(pos, required) {
			cols := make([]string, len(row))
			for j, cell := range row {
				cols[j] = NormalizeHeader(cell)
			}
			return &Header{Index: i, Columns: cols, pos: pos}, nil
		}
	}
	return nil, fmt.Errorf("header row with columns %v not found", required)
}

func hasAll(pos map[string]int, required []string) bool {
	for _, r := range required {
		if _, ok := pos[headerKey(r)]; !ok {
			return false
		}
	}
	return true
}

// Record is one data row keyed by header.
type Record struct {
	header *Header
	cells  []string
	Row    int // 1-based data row number
}

// Records pads short rows to header width and skips blank rows.
func (h *Header) Records(rows [][]string) []Record {
	var out []Record
	n := 0
	for _, row := range rows[h.Index+1:] {
		if isBlank(row) {
			continue
		}
		n++
		cells := make([]string, len(h.Columns))
		copy(cells, row)
		out = append(out, Record{header: h, cells: cells, Row: n})
	}
	return out
}

// Get returns the trimmed value of the first alias present in the header.
func (r Record) Get(aliases ...string) string {
	for _, a := range aliases {
		if j, ok := r.header.pos[headerKey(a)]; ok && j < len(r.cells) {
			return strings.TrimSpace(r.cells[j])
		}
	}
	return ""
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
