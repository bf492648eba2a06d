package categorizer

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/logger"
)

// Store is the canonical store as seen by the categorizer.
type Store interface {
	PendingTransactions(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error)
	UpdateCategorization(ctx context.Context, transactionID string, result domain.CategorizationResult, at time.Time) error
}

// Categorizer is what Service runs per transaction. *Agent implements it.
type Categorizer interface {
	Categorize(ctx context.Context, tx *domain.StandardizedTransaction) domain.CategorizationResult
}

// Summary counts the outcome of one run.
type Summary struct {
	Processed    int
	Categorized  int
	ManualReview int
}

// Service categorizes pending transactions one by one.
type Service struct {
	store Store
	agent Categorizer
	now   func() time.Time
}

// NewService wires the store and the agent.
func NewService(store Store, agent Categorizer) *Service {
	return &Service{store: store, agent: agent, now: time.Now}
}

// Run processes up to limit pending transactions in order. Cancellation is
// honored between transactions; store errors abort the run.
func (s *Service) Run(ctx context.Context, limit int) (Summary, error) {
	log := logger.Component(ctx, "categorizer")
	var sum Summary

	pending, err := s.store.PendingTransactions(ctx, limit)
	if err != nil {
		return sum, fmt.Errorf("Run: list pending transactions: %w", err)
	}
	log.Info().Int("pending", len(pending)).Msg("categorizing transactions")

	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("Run: %w", err)
		}
		res := s.agent.Categorize(ctx, tx)
		if err := s.store.UpdateCategorization(ctx, tx.TransactionID, res, s.now().UTC()); err != nil {
			return sum, fmt.Errorf("Run: update %s: %w", tx.TransactionID, err)
		}
		sum.Processed++
		if res.Status() == domain.StatusManualReview {
			sum.ManualReview++
		} else {
			sum.Categorized++
		}
	}
	return sum, nil
}
