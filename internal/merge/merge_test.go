package merge

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/normalize"
	"github.com/dvloznov/budget-updater/internal/sign"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory canonical store.
type memStore struct {
	rows      map[string]*domain.StandardizedTransaction
	failKeys  map[string]bool
	lookupErr error
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*domain.StandardizedTransaction{}, failKeys: map[string]bool{}}
}

func (m *memStore) ExistingKeys(_ context.Context, keys []string) (map[string]bool, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	out := map[string]bool{}
	for _, k := range keys {
		if _, ok := m.rows[k]; ok {
			out[k] = true
		}
	}
	return out, nil
}

func (m *memStore) InsertTransactions(_ context.Context, txs []*domain.StandardizedTransaction) ([]InsertOutcome, error) {
	out := make([]InsertOutcome, len(txs))
	for i, tx := range txs {
		out[i].BusinessKey = tx.BusinessKey
		if m.failKeys[tx.BusinessKey] {
			out[i].Err = errors.New("quota exceeded")
			continue
		}
		m.rows[tx.BusinessKey] = tx
	}
	return out, nil
}

func accounts() map[domain.Bank]string {
	return map[domain.Bank]string{
		domain.BankSEB:        "💰 SEB",
		domain.BankRevolut:    "💳 Revolut",
		domain.BankFirstCard:  "💳 First Card",
		domain.BankStrawberry: "💳 Strawberry",
	}
}

func strawberryRows(t *testing.T) []domain.StagingRow {
	t.Helper()
	rows := []domain.StagingRow{
		&domain.StrawberryRow{
			StagingMeta:   domain.StagingMeta{FileHash: "abc", SourceFile: "s.csv", RowNumber: 1},
			Datum:         civil.Date{Year: 2025, Month: 4, Day: 3},
			Specifikation: "APOTEK HJARTAT",
			Belopp:        decimal.RequireFromString("124.83"),
		},
		&domain.StrawberryRow{
			StagingMeta: domain.StagingMeta{FileHash: "abc", SourceFile: "s.csv", RowNumber: 2},
			Datum:       civil.Date{Year: 2025, Month: 4, Day: 4},
			Belopp:      decimal.RequireFromString("-500"),
		},
	}
	require.NoError(t, normalize.AssignKeys(rows, sign.DefaultTable()))
	return rows
}

func TestMerge_InsertsCanonicalRows(t *testing.T) {
	store := newMemStore()
	e := NewEngine(sign.DefaultTable(), accounts())

	res, err := e.Merge(context.Background(), store, domain.BankStrawberry, strawberryRows(t))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Zero(t, res.SkippedDuplicate)
	assert.Zero(t, res.Failed)

	var apotek, payment *domain.StandardizedTransaction
	for _, tx := range store.rows {
		if tx.Description == "APOTEK HJARTAT" {
			apotek = tx
		} else {
			payment = tx
		}
	}
	require.NotNil(t, apotek)
	require.NotNil(t, payment)

	assert.True(t, decimal.RequireFromString("-124.83").Equal(apotek.Amount))
	assert.Equal(t, "💳 Strawberry", apotek.Account)
	assert.Equal(t, domain.PendingCategory, apotek.Category)
	assert.Equal(t, domain.StatusPending, apotek.CategoryStatus)
	assert.Equal(t, "abc_1", apotek.StagingRowID)
	assert.NotEmpty(t, apotek.TransactionID)

	assert.Equal(t, "Strawberry Transaction", payment.Description)
	assert.True(t, decimal.RequireFromString("500").Equal(payment.Amount))
}

func TestMerge_Idempotent(t *testing.T) {
	store := newMemStore()
	e := NewEngine(sign.DefaultTable(), accounts())
	ctx := context.Background()

	_, err := e.Merge(ctx, store, domain.BankStrawberry, strawberryRows(t))
	require.NoError(t, err)
	before := len(store.rows)

	res, err := e.Merge(ctx, store, domain.BankStrawberry, strawberryRows(t))
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 2, res.SkippedDuplicate)
	assert.Equal(t, before, len(store.rows))
}

func TestMerge_DedupesWithinBatch(t *testing.T) {
	rows := strawberryRows(t)
	dup := *rows[0].(*domain.StrawberryRow)
	dup.StagingMeta.FileHash = "other"
	batch := append(rows, &dup)

	store := newMemStore()
	res, err := NewEngine(sign.DefaultTable(), accounts()).Merge(context.Background(), store, domain.BankStrawberry, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.SkippedDuplicate)
	assert.Equal(t, "abc_1", store.rows[rows[0].Meta().BusinessKey].StagingRowID, "first occurrence wins")
}

func TestMerge_KeyMismatchIsRowFailure(t *testing.T) {
	rows := strawberryRows(t)
	rows[0].Meta().BusinessKey = "strawberry_biz_tampered"

	store := newMemStore()
	res, err := NewEngine(sign.DefaultTable(), accounts()).Merge(context.Background(), store, domain.BankStrawberry, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "abc_1", res.Failures[0].StagingRowID)
}

func TestMerge_ComputesMissingKeys(t *testing.T) {
	row := &domain.RevolutRow{
		StagingMeta: domain.StagingMeta{FileHash: "f", RowNumber: 1},
		Date:        civil.Date{Year: 2022, Month: 1, Day: 3},
		Description: "Amazon",
		Amount:      decimal.RequireFromString("-300.00"),
	}
	store := newMemStore()
	res, err := NewEngine(sign.DefaultTable(), accounts()).Merge(context.Background(), store, domain.BankRevolut, []domain.StagingRow{row})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Contains(t, row.BusinessKey, "revolut_biz_")
	assert.Equal(t, "SEK", store.rows[row.BusinessKey].Currency)
}

func TestMerge_PartialInsertFailureIsRetriedNextRun(t *testing.T) {
	rows := strawberryRows(t)
	store := newMemStore()
	store.failKeys[rows[1].Meta().BusinessKey] = true
	e := NewEngine(sign.DefaultTable(), accounts())
	ctx := context.Background()

	res, err := e.Merge(ctx, store, domain.BankStrawberry, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Failed)

	store.failKeys = map[string]bool{}
	res, err = e.Merge(ctx, store, domain.BankStrawberry, strawberryRows(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.SkippedDuplicate)
}

func TestMerge_StoreErrorAborts(t *testing.T) {
	store := newMemStore()
	store.lookupErr = errors.New("bigquery unavailable")
	_, err := NewEngine(sign.DefaultTable(), accounts()).Merge(context.Background(), store, domain.BankStrawberry, strawberryRows(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, store.lookupErr)
}

func TestMerge_MissingAccountAlias(t *testing.T) {
	e := NewEngine(sign.DefaultTable(), map[domain.Bank]string{})
	res, err := e.Merge(context.Background(), newMemStore(), domain.BankStrawberry, strawberryRows(t))
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	assert.Equal(t, 2, res.Failed)
}
