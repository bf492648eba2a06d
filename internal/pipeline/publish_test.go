package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/categorizer"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/pipeline"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func categorized(id, amount, category, summary string) *domain.StandardizedTransaction {
	return &domain.StandardizedTransaction{
		TransactionID:   id,
		SourceBank:      domain.BankRevolut,
		Account:         "💳 Revolut",
		TransactionDate: civil.Date{Year: 2022, Month: 1, Day: 3},
		Description:     "Amazon",
		Amount:          decimal.RequireFromString(amount),
		Currency:        "SEK",
		BusinessKey:     "revolut_biz_" + id,
		Category:        category,
		CategoryStatus:  domain.StatusCategorized,
		Summary:         summary,
	}
}

func TestPublish(t *testing.T) {
	var (
		appended [][]any
		marked   []string
	)
	store := &MockPublishStore{
		UnpublishedFunc: func(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error) {
			assert.Equal(t, 50, limit)
			return []*domain.StandardizedTransaction{
				categorized("1", "-300.00", "Shopping", "Amazon order: headphones"),
				categorized("2", "250", "Income", ""),
			}, nil
		},
		MarkPublishedFunc: func(ctx context.Context, ids []string, at time.Time) error {
			marked = ids
			return nil
		},
	}
	sheet := &MockSheet{
		AppendRowsFunc: func(ctx context.Context, tab string, rows [][]any) (int64, error) {
			assert.Equal(t, "New Transactions", tab)
			appended = rows
			return int64(len(rows)), nil
		},
	}

	n, err := pipeline.NewPublisher(store, sheet, "New Transactions").Publish(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1", "2"}, marked)
	require.Len(t, appended, 2)
	assert.Equal(t, []any{"2022-01-03", "300.00", "", "Shopping", "💳 Revolut", "Amazon order: headphones", "✅"}, appended[0])
	assert.Equal(t, []any{"2022-01-03", "", "250.00", "Income", "💳 Revolut", "Amazon", "✅"}, appended[1])
}

func TestPublish_AppendFailureLeavesRowsUnpublished(t *testing.T) {
	markCalled := false
	store := &MockPublishStore{
		UnpublishedFunc: func(ctx context.Context, limit int) ([]*domain.StandardizedTransaction, error) {
			return []*domain.StandardizedTransaction{categorized("1", "-1", "Other", "")}, nil
		},
		MarkPublishedFunc: func(ctx context.Context, ids []string, at time.Time) error {
			markCalled = true
			return nil
		},
	}
	sheet := &MockSheet{
		AppendRowsFunc: func(ctx context.Context, tab string, rows [][]any) (int64, error) {
			return 0, errors.New("403 forbidden")
		},
	}

	_, err := pipeline.NewPublisher(store, sheet, "New Transactions").Publish(context.Background(), 10)
	require.Error(t, err)
	assert.False(t, markCalled)
}

func TestPublish_NothingToDo(t *testing.T) {
	sheet := &MockSheet{
		AppendRowsFunc: func(ctx context.Context, tab string, rows [][]any) (int64, error) {
			t.Fatal("no append expected")
			return 0, nil
		},
	}
	n, err := pipeline.NewPublisher(&MockPublishStore{}, sheet, "x").Publish(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExport(t *testing.T) {
	store := &MockExportStore{
		ListTransactionsFunc: func(ctx context.Context, filter domain.TransactionFilter) ([]*domain.StandardizedTransaction, error) {
			assert.Equal(t, domain.BankRevolut, filter.Bank)
			return []*domain.StandardizedTransaction{categorized("1", "-300", "Shopping", "")}, nil
		},
	}
	var buf bytes.Buffer
	n, err := pipeline.Export(context.Background(), store, domain.TransactionFilter{Bank: domain.BankRevolut}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "date,bank,account,description,amount,currency,category,category_status,summary,business_key,reverse_engineered,source_file", lines[0])
	assert.Equal(t, "2022-01-03,revolut,💳 Revolut,Amazon,-300.00,SEK,Shopping,CATEGORIZED,,revolut_biz_1,false,", lines[1])
}

func TestRunSummary(t *testing.T) {
	var s pipeline.RunSummary
	s.AddFile(pipeline.FileReport{Parsed: 10, Inserted: 7, SkippedDuplicate: 3, ParseFailed: 1})
	s.AddFile(pipeline.FileReport{Skipped: true, Inserted: 99})
	s.AddCategorization(categorizer.Summary{Processed: 7, Categorized: 5, ManualReview: 2})

	assert.Equal(t, 2, s.Files)
	assert.Equal(t, 1, s.FilesSkipped)
	assert.Equal(t, 7, s.Inserted)

	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()
	assert.Contains(t, out, "inserted:          7")
	assert.Contains(t, out, "skipped_duplicate: 3")
	assert.Contains(t, out, "parse_failed:      1")
	assert.Contains(t, out, "categorized:       5")
	assert.Contains(t, out, "manual_review:     2")
	assert.NotContains(t, out, "merge_failed")
}
