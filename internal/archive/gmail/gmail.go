// Package gmail implements archive.Searcher on the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/budget-updater/internal/archive"
	"github.com/dvloznov/budget-updater/internal/logger"
	"golang.org/x/net/html"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const userID = "me"

// Searcher queries the authorized user's mailbox.
type Searcher struct {
	svc       *gm.Service
	bodyLimit int
}

// New builds a searcher from an OAuth-authorized HTTP client.
func New(ctx context.Context, client *http.Client, bodyLimit int) (*Searcher, error) {
	svc, err := gm.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("gmail.New: create service: %w", err)
	}
	return &Searcher{svc: svc, bodyLimit: bodyLimit}, nil
}

// Search lists messages matching query and fetches each one.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) ([]archive.Message, error) {
	log := logger.Component(ctx, "gmail")

	list, err := s.svc.Users.Messages.List(userID).Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("Search: list messages: %w", err)
	}
	log.Debug().Str("query", query).Int("hits", len(list.Messages)).Msg("archive search")

	out := make([]archive.Message, 0, len(list.Messages))
	for _, ref := range list.Messages {
		full, err := s.svc.Users.Messages.Get(userID, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			log.Warn().Err(err).Str("message_id", ref.Id).Msg("skipping unreadable message")
			continue
		}
		out = append(out, toMessage(full, s.bodyLimit))
	}
	return out, nil
}

func toMessage(m *gm.Message, bodyLimit int) archive.Message {
	msg := archive.Message{}
	if m.InternalDate > 0 {
		msg.Date = time.UnixMilli(m.InternalDate).UTC().Format("2006-01-02")
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				msg.Sender = h.Value
			case "subject":
				msg.Subject = h.Value
			}
		}
		msg.Body = extractBody(m.Payload)
	}
	if msg.Body == "" {
		msg.Body = html.UnescapeString(m.Snippet)
	}
	msg.Body = archive.Truncate(archive.CollapseWhitespace(msg.Body), bodyLimit)
	return msg
}

// extractBody prefers the plain text part and falls back to stripped HTML.
func extractBody(p *gm.MessagePart) string {
	if text := findPart(p, "text/plain"); text != "" {
		return text
	}
	if markup := findPart(p, "text/html"); markup != "" {
		return htmlToText(markup)
	}
	return ""
}

func findPart(p *gm.MessagePart, mimeType string) string {
	if p == nil {
		return ""
	}
	if strings.HasPrefix(p.MimeType, mimeType) && p.Body != nil && p.Body.Data != "" {
		if b, err := decodeData(p.Body.Data); err == nil {
			return string(b)
		}
	}
	for _, child := range p.Parts {
		if s := findPart(child, mimeType); s != "" {
			return s
		}
	}
	return ""
}

// Gmail returns base64url, sometimes without padding.
func decodeData(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

func htmlToText(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var sb strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return archive.CollapseWhitespace(sb.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br", "p", "div", "tr", "li":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "td", "th":
				sb.WriteByte(' ')
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}
