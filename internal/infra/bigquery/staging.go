package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/shopspring/decimal"
)

// StagingTable is the raw landing table of a bank, e.g. staging_firstcard.
func StagingTable(bank domain.Bank) string {
	return stagingTablePrefix + string(bank)
}

// stagingSaver maps a parsed row onto its bank's staging columns. Absent
// optional values are sent as NULL.
type stagingSaver struct {
	row domain.StagingRow
}

func (s stagingSaver) Save() (map[string]bigquery.Value, string, error) {
	m := s.row.Meta()
	v := map[string]bigquery.Value{
		"file_hash":          m.FileHash,
		"source_file":        m.SourceFile,
		"upload_timestamp":   m.UploadTimestamp.UTC().Format(time.RFC3339Nano),
		"row_number":         m.RowNumber,
		"business_key":       m.BusinessKey,
		"reverse_engineered": m.ReverseEngineered,
	}

	switch r := s.row.(type) {
	case *domain.SEBRow:
		v["bokforingsdatum"] = r.Bokforingsdatum.String()
		v["valutadatum"] = r.Valutadatum
		v["verifikationsnummer"] = r.Verifikationsnummer
		v["text"] = r.Text
		v["belopp"] = numeric(r.Belopp)
		v["saldo"] = optionalNumeric(r.Saldo)
	case *domain.RevolutRow:
		v["type"] = r.Type
		v["product"] = r.Product
		v["started_date"] = r.StartedDate
		v["completed_date"] = r.CompletedDate
		v["transaction_date"] = r.Date.String()
		v["description"] = r.Description
		v["amount"] = numeric(r.Amount)
		v["fee"] = numeric(r.Fee)
		v["currency"] = r.Currency
		v["state"] = r.State
		v["balance"] = optionalNumeric(r.Balance)
	case *domain.FirstCardRow:
		v["datum"] = r.Datum.String()
		v["ytterligare_information"] = r.YtterligareInformation
		v["reseinformation_inkopsplats"] = r.ReseinformationInkopsplats
		v["valuta"] = r.Valuta
		v["vaxlingskurs"] = optionalNumeric(r.Vaxlingskurs)
		v["utlandskt_belopp"] = optionalNumeric(r.UtlandsktBelopp)
		v["belopp"] = numeric(r.Belopp)
		v["moms"] = optionalNumeric(r.Moms)
		v["kort"] = r.Kort
	case *domain.StrawberryRow:
		v["datum"] = r.Datum.String()
		v["bokfort"] = r.Bokfort
		v["specifikation"] = r.Specifikation
		v["ort"] = r.Ort
		v["valuta"] = r.Valuta
		v["utl_belopp_moms"] = r.UtlBeloppMoms
		v["belopp"] = numeric(r.Belopp)
	default:
		return nil, "", fmt.Errorf("unsupported staging row %T", s.row)
	}
	return v, m.StagingRowID(), nil
}

// StageRowsWithClient streams parsed rows into the bank's staging table.
// Staging tables are append-only, so streaming inserts are safe here. The
// staging row id is the insert id, which makes a retried batch idempotent.
func StageRowsWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, bank domain.Bank, rows []domain.StagingRow) error {
	if len(rows) == 0 {
		return nil
	}
	savers := make([]bigquery.ValueSaver, 0, len(rows))
	for _, r := range rows {
		if r.Bank() != bank {
			return fmt.Errorf("StageRows: %s row in %s batch", r.Bank(), bank)
		}
		savers = append(savers, stagingSaver{row: r})
	}

	inserter := ds.handle(client, StagingTable(bank)).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("StageRows: inserting into %s: %w", StagingTable(bank), err)
	}
	return nil
}

func numeric(d decimal.Decimal) string {
	return d.String()
}

func optionalNumeric(d *decimal.Decimal) bigquery.Value {
	if d == nil {
		return nil
	}
	return d.String()
}
