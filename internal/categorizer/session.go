package categorizer

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Session is the conversation state of one categorization.
type Session struct {
	ID            string
	TransactionID string
	OpenedAt      time.Time
	History       []*genai.Content
}

// Append records turns in the session history.
func (s *Session) Append(turns ...*genai.Content) {
	s.History = append(s.History, turns...)
}

// Sessions tracks open sessions so leaks are observable.
type Sessions struct {
	mu   sync.Mutex
	open map[string]*Session
}

// NewSessions returns an empty registry.
func NewSessions() *Sessions {
	return &Sessions{open: make(map[string]*Session)}
}

// Open starts a fresh session for a transaction.
func (r *Sessions) Open(transactionID string) *Session {
	s := &Session{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		OpenedAt:      time.Now(),
	}
	r.mu.Lock()
	r.open[s.ID] = s
	r.mu.Unlock()
	return s
}

// Close releases a session. Closing twice is harmless.
func (r *Sessions) Close(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	delete(r.open, s.ID)
	r.mu.Unlock()
	s.History = nil
}

// Active is the number of sessions not yet closed.
func (r *Sessions) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
