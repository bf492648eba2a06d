// Package sheets reads and appends rows of the budget spreadsheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/sign"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// StatusPublished marks ledger rows written by this tool.
const StatusPublished = "✅"

// Client wraps one spreadsheet.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// New creates a client from an authorized HTTP client. Extra options are
// passed to the Sheets service.
func New(ctx context.Context, httpClient *http.Client, spreadsheetID string, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("sheets.New: missing spreadsheet id")
	}
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets.New: create service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// ReadValues returns every cell of tab as trimmed strings.
func (c *Client) ReadValues(ctx context.Context, tab string) ([][]string, error) {
	rng := quoteTab(tab)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("ReadValues: read %s: %w", rng, err)
	}
	return toStrings(resp.Values), nil
}

// AppendRows adds rows after the last row of tab, parsed as if typed by a
// user so dates and amounts keep the sheet's formatting.
func (c *Client) AppendRows(ctx context.Context, tab string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	rng := quoteTab(tab) + "!A:G"
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: rows}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("AppendRows: append to %s: %w", rng, err)
	}
	if resp.Updates == nil {
		return 0, nil
	}
	return resp.Updates.UpdatedRows, nil
}

// LedgerValues renders a canonical transaction as a ledger row:
// Date, Outflow, Inflow, Category, Account, Memo, Status.
func LedgerValues(tx *domain.StandardizedTransaction) []any {
	outflow, inflow := sign.Split(tx.Amount)
	memo := strings.TrimSpace(tx.Summary)
	if memo == "" {
		memo = tx.Description
	}
	return []any{
		tx.TransactionDate.String(),
		outflow,
		inflow,
		tx.Category,
		tx.Account,
		memo,
		StatusPublished,
	}
}

func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

func toStrings(values [][]any) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}
