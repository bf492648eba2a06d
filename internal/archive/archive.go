// Package archive searches the user's mail archive for receipts and
// invoices that explain a transaction.
package archive

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Message is one archived mail reduced to what the categorizer reads.
type Message struct {
	Date    string `json:"date"`
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Searcher runs a mail search query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Message, error)
}

// ToolResponse is the payload handed back to the model for a search call.
type ToolResponse struct {
	Status string    `json:"status"`
	Emails []Message `json:"emails"`
	Error  string    `json:"error,omitempty"`
}

// Map converts the response to the generic form function responses take.
func (r ToolResponse) Map() map[string]any {
	emails := make([]any, 0, len(r.Emails))
	for _, m := range r.Emails {
		emails = append(emails, map[string]any{
			"date":    m.Date,
			"sender":  m.Sender,
			"subject": m.Subject,
			"body":    m.Body,
		})
	}
	out := map[string]any{"status": r.Status, "emails": emails}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

// Truncate bounds s to limit runes. limit <= 0 leaves s unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}

// CollapseWhitespace joins the fields of s with single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
