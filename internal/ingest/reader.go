package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

// Reader turns a raw export into ordered string rows. Header discovery is
// done by the caller.
type Reader interface {
	ReadRows(data []byte) ([][]string, error)
}

// ReaderFor picks a reader from the file extension.
func ReaderFor(filename string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return XLSXReader{}, nil
	case ".csv", ".txt", "":
		return CSVReader{}, nil
	}
	return nil, fmt.Errorf("unsupported export format %q", filepath.Ext(filename))
}

// XLSXReader reads the first worksheet of a workbook.
type XLSXReader struct{}

func (XLSXReader) ReadRows(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("XLSXReader: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("XLSXReader: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("XLSXReader: read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

// CSVReader reads delimited text. The delimiter is sniffed from the first
// lines and Windows-1252 input is transcoded to UTF-8.
type CSVReader struct {
	Comma rune
}

func (c CSVReader) ReadRows(data []byte) ([][]string, error) {
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("CSVReader: transcode: %w", err)
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	comma := c.Comma
	if comma == 0 {
		comma = sniffDelimiter(data)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("CSVReader: %w", err)
	}
	return rows, nil
}

func sniffDelimiter(data []byte) rune {
	lines := strings.SplitN(string(data), "\n", 6)
	best, bestCount := ',', 0
	for _, cand := range []rune{';', '\t', ','} {
		n := 0
		for _, l := range lines {
			n += strings.Count(l, string(cand))
		}
		if n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}
