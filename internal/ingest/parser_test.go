package ingest

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
	"github.com/xuri/excelize/v2"
)

func newTestParser() *Parser {
	p := NewParser(sign.DefaultTable())
	p.now = func() time.Time { return time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC) }
	return p
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParse_Strawberry(t *testing.T) {
	data := "Kontoutdrag Strawberry Card\n" +
		"Period;2025-04-01 - 2025-04-30\n" +
		"\n" +
		"Datum;Bokfört;Specifikation;Ort;Valuta;Utl.belopp/moms;Belopp\n" +
		"2025-04-03;2025-04-04;APOTEK HJARTAT;STOCKHOLM;SEK;;124,83\n" +
		"2025-04-05;2025-04-06;Inbetalning\n" +
		"2025-04-07;2025-04-08;;;SEK;;1 049,12 kr\n" +
		"not a date;;X;;;;10\n"

	res, err := newTestParser().Parse(domain.BankStrawberry, "strawberry_april.csv", []byte(data))
	require.NoError(t, err)

	require.Equal(t, 2, res.Parsed())
	require.Equal(t, 2, res.Failed(), "short row without amount and bad date are excluded")
	assert.Equal(t, FileHash([]byte(data)), res.FileHash)

	first := res.Rows[0].(*domain.StrawberryRow)
	assert.Equal(t, civil.Date{Year: 2025, Month: 4, Day: 3}, first.Datum)
	assert.Equal(t, "APOTEK HJARTAT", first.Specifikation)
	assert.True(t, dec("124.83").Equal(first.Belopp))
	assert.Equal(t, 1, first.RowNumber)
	assert.Equal(t, res.FileHash+"_1", first.StagingRowID())
	assert.True(t, strings.HasPrefix(first.BusinessKey, "strawberry_biz_"))

	third := res.Rows[1].(*domain.StrawberryRow)
	assert.True(t, dec("1049.12").Equal(third.Belopp))

	for _, f := range res.Failures {
		assert.Equal(t, domain.BankStrawberry, f.Bank)
		assert.NotZero(t, f.Row)
	}
}

func TestParse_SEB(t *testing.T) {
	data := "\ufeffBokföringsdatum;Valutadatum;Verifikationsnummer;Text;Belopp;Saldo\n" +
		"2025-04-25;2025-04-25;5490123;LÖN;25 000,00;31 000,00\n" +
		"2025-04-26;2025-04-26;;ICA NARA JAR/25-04-26;-342,50;30 657,50\n"

	res, err := newTestParser().Parse(domain.BankSEB, "seb.csv", []byte(data))
	require.NoError(t, err)
	require.Equal(t, 2, res.Parsed())

	salary := res.Rows[0].(*domain.SEBRow)
	assert.Equal(t, "seb_verif_5490123", salary.BusinessKey)
	require.NotNil(t, salary.Saldo)
	assert.True(t, dec("31000").Equal(*salary.Saldo))

	ica := res.Rows[1].(*domain.SEBRow)
	assert.True(t, strings.HasPrefix(ica.BusinessKey, "seb_biz_"))
	assert.True(t, dec("-342.5").Equal(ica.Belopp))
}

func TestParse_Revolut(t *testing.T) {
	data := "Type,Product,Started Date,Completed Date,Description,Amount,Fee,Currency,State,Balance\n" +
		"CARD_PAYMENT,Current,2022-01-02 10:11:12,2022-01-03 09:00:00,Amazon,-298.50,1.50,SEK,COMPLETED,1000.00\n" +
		"CARD_PAYMENT,Current,2022-01-04 10:11:12,,Spotify,-119.00,0.00,SEK,REVERTED,\n" +
		"TOPUP,Current,2022-01-05 08:00:00,,Top-up,500.00,0,SEK,,\n"

	p := newTestParser()
	res, err := p.Parse(domain.BankRevolut, "revolut.csv", []byte(data))
	require.NoError(t, err)
	require.Equal(t, 2, res.Parsed())
	require.Equal(t, 1, res.Failed())
	assert.Equal(t, "State", res.Failures[0].Field)

	amazon := res.Rows[0].(*domain.RevolutRow)
	assert.Equal(t, civil.Date{Year: 2022, Month: 1, Day: 3}, amazon.Date)
	assert.True(t, dec("-300.00").Equal(amazon.NetAmount()))

	topup := res.Rows[1].(*domain.RevolutRow)
	assert.Equal(t, civil.Date{Year: 2022, Month: 1, Day: 5}, topup.Date, "falls back to started date")

	again, err := p.Parse(domain.BankRevolut, "revolut_copy.csv", []byte(data))
	require.NoError(t, err)
	assert.Equal(t, amazon.BusinessKey, again.Rows[0].Meta().BusinessKey)
}

func TestParse_FirstCardXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"First Card kontoutdrag"},
		{},
		{"Datum", "Ytterligare information", "Reseinformation / Inköpsplats", "Valuta", "växlingskurs", "Utländskt belopp", "Belopp", "Moms", "Kort"},
		{"2023-04-12", "Årsavgift", "", "SEK", "", "", "395,00", "", "1234"},
		{"2023-04-13", "", "SAS STOCKHOLM", "SEK", "", "", "-1 200,00"},
	}
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		rr := r
		require.NoError(t, f.SetSheetRow(sheet, cell, &rr))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := newTestParser().Parse(domain.BankFirstCard, "firstcard.xlsx", buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, 2, res.Parsed())

	fee := res.Rows[0].(*domain.FirstCardRow)
	assert.Equal(t, "Årsavgift", fee.YtterligareInformation)
	assert.True(t, dec("395").Equal(fee.Belopp))

	refund := res.Rows[1].(*domain.FirstCardRow)
	assert.Equal(t, "SAS STOCKHOLM", refund.ReseinformationInkopsplats)
	assert.Equal(t, "", refund.Kort, "short row is padded")
}

func TestParse_MissingHeader(t *testing.T) {
	_, err := newTestParser().Parse(domain.BankSEB, "seb.csv", []byte("a;b;c\n1;2;3\n"))
	assert.Error(t, err)
}

func TestParse_RepeatedContentGetsDisambiguated(t *testing.T) {
	data := "Datum;Specifikation;Belopp\n" +
		"2025-04-03;PRESSBYRÅN;35,00\n" +
		"2025-04-03;PRESSBYRÅN;35,00\n"
	res, err := newTestParser().Parse(domain.BankStrawberry, "s.csv", []byte(data))
	require.NoError(t, err)
	require.Equal(t, 2, res.Parsed())
	assert.NotEqual(t, res.Rows[0].Meta().BusinessKey, res.Rows[1].Meta().BusinessKey)
}

func TestParseDate(t *testing.T) {
	want := civil.Date{Year: 2025, Month: 5, Day: 1}
	for _, in := range []string{"2025-05-01", "2025/05/01", "2025-05-01 13:45:00", "2025-05-01T13:45:00Z", "20250501", "45778"} {
		t.Run(in, func(t *testing.T) {
			got, err := ParseDate(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}

	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}

func TestFindHeader_Normalization(t *testing.T) {
	rows := [][]string{
		{"Export"},
		{" \ufeffDATUM ", "Reseinformation/Inköpsplats", "belopp"},
	}
	h, err := FindHeader(rows, []string{"Datum", "Reseinformation / Inköpsplats", "Belopp"})
	require.NoError(t, err)
	assert.Equal(t, 1, h.Index)
	assert.Equal(t, "DATUM", h.Columns[0])
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ';', sniffDelimiter([]byte("a;b;c\n1;2;3")))
	assert.Equal(t, ',', sniffDelimiter([]byte("a,b,c\n1,2,3")))
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\tc")))
}
