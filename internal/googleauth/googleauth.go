// Package googleauth handles the installed-app OAuth flow used for the
// mail archive and the budget spreadsheet.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"
)

// Scopes are requested once and cover both Gmail search and ledger access.
var Scopes = []string{gmail.GmailReadonlyScope, sheets.SpreadsheetsScope}

// ErrNoToken means `budget auth` has not been run yet.
var ErrNoToken = errors.New("no OAuth token, run `budget auth` first")

// LoadConfig reads the OAuth client secret and points the redirect at the
// local callback server.
func LoadConfig(clientSecretFile string, redirectPort int) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientSecretFile)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: read client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(b, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("LoadConfig: parse client secret: %w", err)
	}
	cfg.RedirectURL = "http://localhost:" + strconv.Itoa(redirectPort) + "/callback"
	return cfg, nil
}

// LoadToken reads a token saved by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("LoadToken: %w", err)
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("LoadToken: decode %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken writes tok with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("SaveToken: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("SaveToken: open %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("SaveToken: encode: %w", err)
	}
	return nil
}

// HTTPClient returns an authorized client that refreshes the saved token.
func HTTPClient(ctx context.Context, clientSecretFile, tokenFile string, redirectPort int) (*http.Client, error) {
	cfg, err := LoadConfig(clientSecretFile, redirectPort)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return cfg.Client(ctx, tok), nil
}

// Authorize runs the browser consent flow: it prints the consent URL, waits
// for the redirect on the local callback server and exchanges the code.
func Authorize(ctx context.Context, cfg *oauth2.Config, redirectPort int, out io.Writer, timeout time.Duration) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.Handle("/callback", callbackHandler(codeCh, errCh))
	ln, err := net.Listen("tcp", "localhost:"+strconv.Itoa(redirectPort))
	if err != nil {
		return nil, fmt.Errorf("Authorize: listen: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Close() }()

	url := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL to authorize:\n%s\n", url)

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("Authorize: token exchange: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, fmt.Errorf("Authorize: %w", err)
	case <-time.After(timeout):
		return nil, errors.New("Authorize: authorization timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func callbackHandler(codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("consent denied: %s", e):
			default:
			}
			return
		}
		if q.Get("state") != "state-token" {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "You may close this window and return to the terminal.")
		select {
		case codeCh <- code:
		default:
		}
	})
}
