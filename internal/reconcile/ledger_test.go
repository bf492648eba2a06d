package reconcile

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/sign"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sheetValues = [][]string{
	{"", "Budget 2023"},
	{""},
	{"", "DATE", "OUTFLOW", "INFLOW", "CATEGORY", "ACCOUNT", "MEMO", "STATUS"},
	{"", "2023-04-12", "124,83", "", "Hälsa/Familj", "💳 First Card", "APOTEK HJARTAT", "✅"},
	{"", "2023-04-13", "", "1 200,00", "↕️ Account Transfer", "💳 First Card", "", "✅"},
	{"", "2023-04-14", "55,00", "", "Mat och hushåll", "💰 SEB", "ICA", "✅"},
	{"", "2023-04-15", "", "", "", "💳 First Card", "", ""},
	{"", "2023-04-16", "10,00", "", "", "💳 first card", "", "✅"},
	{"", "not a date", "10,00", "", "", "💳 First Card", "", ""},
}

func TestParseLedger(t *testing.T) {
	rows, err := ParseLedger(sheetValues)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "2023-04-12", rows[0].Date)
	assert.Equal(t, "124,83", rows[0].Outflow)
	assert.Equal(t, "APOTEK HJARTAT", rows[0].Memo)
	assert.Equal(t, 1, rows[0].Row)

	_, err = ParseLedger([][]string{{"no", "header"}})
	assert.Error(t, err)
}

func TestReverseEngineer(t *testing.T) {
	rows, err := ParseLedger(sheetValues)
	require.NoError(t, err)
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	b, err := ReverseEngineer(rows, domain.BankFirstCard, "💳 First Card", sign.DefaultTable(), Window{}, now)
	require.NoError(t, err)
	require.Len(t, b.Rows, 3)
	assert.Len(t, b.Failures, 2, "empty amount and bad date")
	assert.Equal(t, 1, b.Skipped, "SEB row")

	apotek := b.Rows[0].(*domain.FirstCardRow)
	assert.True(t, decimal.RequireFromString("124.83").Equal(apotek.Belopp), "outflow becomes positive belopp")
	assert.Equal(t, "Hälsa/Familj - APOTEK HJARTAT", apotek.ReseinformationInkopsplats)
	assert.Equal(t, domain.SourceReverseEngineered, apotek.SourceFile)
	assert.True(t, apotek.ReverseEngineered)
	assert.True(t, strings.HasPrefix(apotek.BusinessKey, "firstcard_rev_"))

	transfer := b.Rows[1].(*domain.FirstCardRow)
	assert.True(t, decimal.RequireFromString("-1200").Equal(transfer.Belopp))
	assert.Equal(t, "↕️ Account Transfer", transfer.ReseinformationInkopsplats)

	bare := b.Rows[2].(*domain.FirstCardRow)
	assert.Equal(t, HistoricalDescription, bare.ReseinformationInkopsplats)

	again, err := ReverseEngineer(rows, domain.BankFirstCard, "💳 First Card", sign.DefaultTable(), Window{}, now.Add(time.Hour))
	require.NoError(t, err)
	for i := range b.Rows {
		assert.Equal(t, b.Rows[i].Meta().BusinessKey, again.Rows[i].Meta().BusinessKey)
	}
}

func TestReverseEngineer_RoundTripsNativeAmount(t *testing.T) {
	signs := sign.DefaultTable()
	for _, bank := range domain.Banks {
		t.Run(string(bank), func(t *testing.T) {
			native := decimal.RequireFromString("124.83")
			canonical, err := signs.ToCanonical(bank, native)
			require.NoError(t, err)
			out, in := sign.Split(canonical)

			rows := []LedgerRow{{Row: 1, Date: "2023-04-12", Outflow: out, Inflow: in, Category: "Bensin", Account: "acct"}}
			b, err := ReverseEngineer(rows, bank, "acct", signs, Window{}, time.Now())
			require.NoError(t, err)
			require.Len(t, b.Rows, 1)

			switch r := b.Rows[0].(type) {
			case *domain.SEBRow:
				assert.True(t, native.Equal(r.Belopp))
			case *domain.RevolutRow:
				assert.True(t, native.Equal(r.NetAmount()))
			case *domain.FirstCardRow:
				assert.True(t, native.Equal(r.Belopp))
			case *domain.StrawberryRow:
				assert.True(t, native.Equal(r.Belopp))
			}
		})
	}
}

func TestReverseEngineer_Window(t *testing.T) {
	rows, err := ParseLedger(sheetValues)
	require.NoError(t, err)
	w := Window{From: civil.Date{Year: 2023, Month: 4, Day: 13}, To: civil.Date{Year: 2023, Month: 4, Day: 13}}

	b, err := ReverseEngineer(rows, domain.BankFirstCard, "💳 First Card", sign.DefaultTable(), w, time.Now())
	require.NoError(t, err)
	require.Len(t, b.Rows, 1)
	assert.Equal(t, civil.Date{Year: 2023, Month: 4, Day: 13}, b.Rows[0].(*domain.FirstCardRow).Datum)
}

func TestLedgerDescription(t *testing.T) {
	assert.Equal(t, "Bensin - OKQ8", LedgerDescription("Bensin", "OKQ8"))
	assert.Equal(t, "Bensin", LedgerDescription("Bensin", ""))
	assert.Equal(t, "OKQ8", LedgerDescription("", "OKQ8"))
	assert.Equal(t, HistoricalDescription, LedgerDescription(" ", ""))
}

func TestReverseEngineer_ZeroAmounts(t *testing.T) {
	rows := []LedgerRow{
		{Row: 1, Date: "2023-04-12", Outflow: "0,00", Category: "Avgifter", Account: "acct"},
		{Row: 2, Date: "2023-04-13", Inflow: "0", Account: "acct"},
		{Row: 3, Date: "2023-04-14", Outflow: " ", Inflow: "", Account: "acct"},
	}

	b, err := ReverseEngineer(rows, domain.BankFirstCard, "acct", sign.DefaultTable(), Window{}, time.Now())
	require.NoError(t, err)
	require.Len(t, b.Rows, 2, "explicit zeros are kept")
	for _, r := range b.Rows {
		assert.True(t, r.(*domain.FirstCardRow).Belopp.IsZero())
	}
	assert.NotEqual(t, b.Rows[0].Meta().BusinessKey, b.Rows[1].Meta().BusinessKey)

	require.Len(t, b.Failures, 1, "both cells blank")
	assert.Equal(t, 3, b.Failures[0].Row)
	assert.Equal(t, " /", b.Failures[0].Value)
	assert.Contains(t, b.Failures[0].Error(), "missing amount")
}
