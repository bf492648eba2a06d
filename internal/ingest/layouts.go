package ingest

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/shopspring/decimal"
)

type layout struct {
	required []string
	build    func(rec Record, meta domain.StagingMeta) (domain.StagingRow, *domain.ParseError)
}

var layouts = map[domain.Bank]layout{
	domain.BankSEB: {
		required: []string{"Bokföringsdatum", "Text", "Belopp"},
		build:    buildSEB,
	},
	domain.BankRevolut: {
		required: []string{"Completed Date", "Description", "Amount"},
		build:    buildRevolut,
	},
	domain.BankFirstCard: {
		required: []string{"Datum", "Belopp"},
		build:    buildFirstCard,
	},
	domain.BankStrawberry: {
		required: []string{"Datum", "Specifikation", "Belopp"},
		build:    buildStrawberry,
	},
}

func buildSEB(rec Record, meta domain.StagingMeta) (domain.StagingRow, *domain.ParseError) {
	date, perr := requireDate(rec, "Bokföringsdatum")
	if perr != nil {
		return nil, perr
	}
	belopp, perr := requireAmount(rec, "Belopp")
	if perr != nil {
		return nil, perr
	}
	return &domain.SEBRow{
		StagingMeta:         meta,
		Bokforingsdatum:     date,
		Valutadatum:         rec.Get("Valutadatum"),
		Verifikationsnummer: normalizeVerif(rec.Get("Verifikationsnummer")),
		Text:                rec.Get("Text"),
		Belopp:              belopp,
		Saldo:               optionalAmount(rec, "Saldo"),
	}, nil
}

func buildRevolut(rec Record, meta domain.StagingMeta) (domain.StagingRow, *domain.ParseError) {
	state := rec.Get("State")
	if state != "" && !strings.EqualFold(state, "COMPLETED") {
		return nil, &domain.ParseError{Field: "State", Value: state, Reason: "transaction not completed"}
	}
	completed := rec.Get("Completed Date")
	started := rec.Get("Started Date")
	dateField, raw := "Completed Date", completed
	if raw == "" {
		dateField, raw = "Started Date", started
	}
	date, err := ParseDate(raw)
	if err != nil {
		return nil, &domain.ParseError{Field: dateField, Value: raw, Err: err}
	}
	amount, perr := requireAmount(rec, "Amount")
	if perr != nil {
		return nil, perr
	}
	fee := decimal.Zero
	if f := optionalAmount(rec, "Fee"); f != nil {
		fee = *f
	}
	return &domain.RevolutRow{
		StagingMeta:   meta,
		Type:          rec.Get("Type"),
		Product:       rec.Get("Product"),
		StartedDate:   started,
		CompletedDate: completed,
		Date:          date,
		Description:   rec.Get("Description"),
		Amount:        amount,
		Fee:           fee,
		Currency:      rec.Get("Currency"),
		State:         state,
		Balance:       optionalAmount(rec, "Balance"),
	}, nil
}

func buildFirstCard(rec Record, meta domain.StagingMeta) (domain.StagingRow, *domain.ParseError) {
	date, perr := requireDate(rec, "Datum")
	if perr != nil {
		return nil, perr
	}
	belopp, perr := requireAmount(rec, "Belopp")
	if perr != nil {
		return nil, perr
	}
	return &domain.FirstCardRow{
		StagingMeta:                meta,
		Datum:                      date,
		YtterligareInformation:     rec.Get("Ytterligare information"),
		ReseinformationInkopsplats: rec.Get("Reseinformation / Inköpsplats", "Inköpsplats", "Reseinformation"),
		Valuta:                     rec.Get("Valuta"),
		Vaxlingskurs:               optionalAmount(rec, "Växlingskurs"),
		UtlandsktBelopp:            optionalAmount(rec, "Utländskt belopp"),
		Belopp:                     belopp,
		Moms:                       optionalAmount(rec, "Moms"),
		Kort:                       rec.Get("Kort"),
	}, nil
}

func buildStrawberry(rec Record, meta domain.StagingMeta) (domain.StagingRow, *domain.ParseError) {
	date, perr := requireDate(rec, "Datum")
	if perr != nil {
		return nil, perr
	}
	belopp, perr := requireAmount(rec, "Belopp")
	if perr != nil {
		return nil, perr
	}
	return &domain.StrawberryRow{
		StagingMeta:   meta,
		Datum:         date,
		Bokfort:       rec.Get("Bokfört"),
		Specifikation: rec.Get("Specifikation"),
		Ort:           rec.Get("Ort"),
		Valuta:        rec.Get("Valuta"),
		UtlBeloppMoms: rec.Get("Utl.belopp/moms"),
		Belopp:        belopp,
	}, nil
}

func requireDate(rec Record, field string) (civil.Date, *domain.ParseError) {
	raw := rec.Get(field)
	d, err := ParseDate(raw)
	if err != nil {
		return civil.Date{}, &domain.ParseError{Field: field, Value: raw, Err: err}
	}
	return d, nil
}

func requireAmount(rec Record, field string) (decimal.Decimal, *domain.ParseError) {
	raw := rec.Get(field)
	d, err := domain.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, &domain.ParseError{Field: field, Value: raw, Err: err}
	}
	return d, nil
}

// optional numeric columns are informational; unreadable values become NULL
func optionalAmount(rec Record, field string) *decimal.Decimal {
	d, err := domain.ParseOptionalAmount(rec.Get(field))
	if err != nil {
		return nil
	}
	return d
}

func normalizeVerif(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.IndexAny(v, ".,"); i > 0 && strings.Trim(v[i+1:], "0") == "" {
		v = v[:i]
	}
	return v
}
