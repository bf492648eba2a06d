package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatasetTable(t *testing.T) {
	ds := Dataset{ProjectID: "my-project", DatasetID: "budget"}
	assert.Equal(t, "`my-project.budget.transactions`", ds.Table(transactionsTable))
	assert.Equal(t, "staging_firstcard", StagingTable(domain.BankFirstCard))
}

func TestChunks(t *testing.T) {
	assert.Nil(t, chunks(0, 10))
	assert.Equal(t, [][2]int{{0, 10}}, chunks(10, 10))
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 9}}, chunks(9, 4))
}

func TestStagingSaver(t *testing.T) {
	upload := time.Date(2025, 4, 5, 10, 0, 0, 0, time.UTC)
	meta := domain.StagingMeta{FileHash: "abc", SourceFile: "fc.xlsx", UploadTimestamp: upload, RowNumber: 3, BusinessKey: "firstcard_biz_x"}

	t.Run("firstcard with nulls", func(t *testing.T) {
		row := &domain.FirstCardRow{
			StagingMeta:                meta,
			Datum:                      civil.Date{Year: 2025, Month: 4, Day: 3},
			ReseinformationInkopsplats: "APOTEK HJARTAT",
			Belopp:                     decimal.RequireFromString("124.83"),
		}
		v, insertID, err := stagingSaver{row: row}.Save()
		require.NoError(t, err)
		assert.Equal(t, "abc_3", insertID)
		assert.Equal(t, "2025-04-03", v["datum"])
		assert.Equal(t, "124.83", v["belopp"])
		assert.Nil(t, v["moms"])
		assert.Equal(t, "firstcard_biz_x", v["business_key"])
		assert.Equal(t, "2025-04-05T10:00:00Z", v["upload_timestamp"])
	})

	t.Run("seb with balance", func(t *testing.T) {
		saldo := decimal.RequireFromString("10500.5")
		row := &domain.SEBRow{StagingMeta: meta, Text: "ICA", Belopp: decimal.RequireFromString("-99"), Saldo: &saldo}
		v, _, err := stagingSaver{row: row}.Save()
		require.NoError(t, err)
		assert.Equal(t, "10500.5", v["saldo"])
		assert.Equal(t, "-99", v["belopp"])
	})
}

func TestTransactionRowRoundTrip(t *testing.T) {
	tx := &domain.StandardizedTransaction{
		TransactionID:   "id-1",
		SourceBank:      domain.BankStrawberry,
		Account:         "💳 Strawberry",
		TransactionDate: civil.Date{Year: 2025, Month: 4, Day: 3},
		Description:     "APOTEK HJARTAT",
		Amount:          decimal.RequireFromString("-124.83"),
		Currency:        "SEK",
		BusinessKey:     "strawberry_biz_1",
		Category:        domain.PendingCategory,
		CategoryStatus:  domain.StatusPending,
	}
	p := newTransactionParam(tx)
	assert.Equal(t, 0, p.Amount.Cmp(big.NewRat(-12483, 100)))
	assert.Equal(t, "strawberry", p.SourceBank)

	row := &TransactionRow{
		TransactionID:   p.TransactionID,
		SourceBank:      p.SourceBank,
		TransactionDate: p.TransactionDate,
		Amount:          p.Amount,
		CategoryStatus:  "CATEGORIZED",
		Summary:         bigquery.NullString{StringVal: "Pharmacy", Valid: true},
		PublishedAt:     bigquery.NullTimestamp{Timestamp: time.Unix(100, 0), Valid: true},
	}
	back := row.toDomain()
	assert.True(t, back.Amount.Equal(tx.Amount))
	assert.Equal(t, domain.StatusCategorized, back.CategoryStatus)
	assert.Equal(t, "Pharmacy", back.Summary)
	assert.Equal(t, int64(100), back.PublishedAt.Unix())
	assert.True(t, back.CategorizedAt.IsZero())
}

func TestRatToDecimal(t *testing.T) {
	assert.True(t, ratToDecimal(nil).IsZero())
	assert.Equal(t, "1049.12", ratToDecimal(big.NewRat(104912, 100)).StringFixed(2))
}
