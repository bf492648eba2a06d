package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/ingest"
	"github.com/dvloznov/budget-updater/internal/logger"
	"github.com/dvloznov/budget-updater/internal/merge"
	"github.com/dvloznov/budget-updater/internal/pipeline"
	"github.com/dvloznov/budget-updater/internal/reconcile"
	"github.com/dvloznov/budget-updater/internal/sign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strawberryExport = "Kontoutdrag Strawberry Card\n" +
	"Datum;Bokfört;Specifikation;Ort;Valuta;Utl.belopp/moms;Belopp\n" +
	"2025-04-03;2025-04-04;APOTEK HJARTAT;STOCKHOLM;SEK;;124,83\n" +
	"2025-04-05;2025-04-06;Inbetalning\n" +
	"2025-04-07;2025-04-08;ICA NARA;;SEK;;1 049,12 kr\n"

var aliases = map[domain.Bank]string{
	domain.BankStrawberry: "💳 Strawberry",
	domain.BankFirstCard:  "💳 First Card",
}

func newIngestor(store *MockStore, storage pipeline.StorageService) *pipeline.Ingestor {
	return pipeline.NewIngestor(store, storage, ingest.NewParser(sign.DefaultTable()), merge.NewEngine(sign.DefaultTable(), aliases))
}

func writeExport(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestIngestFile_LocalExport(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	path := writeExport(t, "strawberry_april.csv", strawberryExport)

	report, err := newIngestor(store, nil).IngestFile(ctx, domain.BankStrawberry, path)
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.Equal(t, "strawberry_april.csv", report.FileName)
	assert.Equal(t, ingest.FileHash([]byte(strawberryExport)), report.FileHash)
	assert.Equal(t, 2, report.Parsed)
	assert.Equal(t, 1, report.ParseFailed)
	assert.Equal(t, 2, report.Inserted)
	assert.Empty(t, report.ArchiveURI)

	assert.Len(t, store.Staged, 2)
	require.Len(t, store.Transactions, 2)
	assert.Equal(t, "-124.83", store.Transactions[0].Amount.StringFixed(2))
	assert.Equal(t, "💳 Strawberry", store.Transactions[0].Account)

	require.Len(t, store.Log, 1)
	entry := store.Log[0]
	assert.Equal(t, domain.ProcessingSuccess, entry.Status)
	assert.Equal(t, report.FileHash, entry.FileHash)
	assert.Equal(t, 2, entry.RowsParsed)
	assert.Equal(t, 1, entry.RowsFailed)
	assert.Equal(t, 2, entry.RowsInserted)
}

func TestIngestFile_SkipsProcessedFile(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	path := writeExport(t, "s.csv", strawberryExport)
	in := newIngestor(store, nil)

	_, err := in.IngestFile(ctx, domain.BankStrawberry, path)
	require.NoError(t, err)

	var buf bytes.Buffer
	report, err := in.IngestFile(logger.WithContext(ctx, logger.NewWithWriter(&buf)), domain.BankStrawberry, path)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, report.Inserted)
	assert.Len(t, store.Staged, 2, "nothing staged twice")
	assert.Len(t, store.Log, 1, "skips are not recorded in the processing log")
	assert.Contains(t, buf.String(), "file already processed, skipping")
	assert.Contains(t, buf.String(), `"file_hash":"`+report.FileHash+`"`)
}

func TestIngestFile_RenamedCopyIsMergedAsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	in := newIngestor(store, nil)

	_, err := in.IngestFile(ctx, domain.BankStrawberry, writeExport(t, "a.csv", strawberryExport))
	require.NoError(t, err)

	// Same rows with a trailing blank line: new hash, same business keys.
	report, err := in.IngestFile(ctx, domain.BankStrawberry, writeExport(t, "b.csv", strawberryExport+"\n"))
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Zero(t, report.Inserted)
	assert.Equal(t, 2, report.SkippedDuplicate)
	assert.Len(t, store.Transactions, 2)
}

func TestIngestFile_FromGCSIsArchived(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	var archived []string
	storage := &MockStorageService{
		FetchFromGCSFunc: func(ctx context.Context, uri string) ([]byte, error) {
			assert.Equal(t, "gs://inbox/exports/strawberry.csv", uri)
			return []byte(strawberryExport), nil
		},
		ArchiveExportFunc: func(ctx context.Context, bank, fileHash, fileName string, data []byte) (string, error) {
			archived = append(archived, bank+"/"+fileName)
			return "gs://archive/raw/" + bank + "/" + fileHash + "_" + fileName, nil
		},
	}

	report, err := newIngestor(store, storage).IngestFile(ctx, domain.BankStrawberry, "gs://inbox/exports/strawberry.csv")
	require.NoError(t, err)
	assert.Equal(t, "strawberry.csv", report.FileName)
	assert.Equal(t, []string{"strawberry/strawberry.csv"}, archived)
	assert.True(t, strings.HasPrefix(report.ArchiveURI, "gs://archive/raw/strawberry/"))
	assert.Equal(t, 2, report.Inserted)
}

func TestIngestFile_GCSWithoutStorage(t *testing.T) {
	store := &MockStore{}
	_, err := newIngestor(store, nil).IngestFile(context.Background(), domain.BankStrawberry, "gs://b/o.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step 1 failed")
	assert.Empty(t, store.Log, "unread input has no hash to record")
}

func TestIngestFile_StoreErrorRecordsFailure(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{
		ExistingKeysFunc: func(ctx context.Context, keys []string) (map[string]bool, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	path := writeExport(t, "s.csv", strawberryExport)

	_, err := newIngestor(store, nil).IngestFile(ctx, domain.BankStrawberry, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline step 5 failed")
	assert.Contains(t, err.Error(), "quota exceeded")

	require.Len(t, store.Log, 1)
	assert.Equal(t, domain.ProcessingFailed, store.Log[0].Status)
	assert.Contains(t, store.Log[0].ErrorMessage, "quota exceeded")

	done, err := store.IsFileProcessed(ctx, store.Log[0].FileHash)
	require.NoError(t, err)
	assert.False(t, done, "a failed file is retried next run")
}

func TestIngestFile_MissingHeaderFails(t *testing.T) {
	store := &MockStore{}
	path := writeExport(t, "s.csv", "just;some;cells\n1;2;3\n")

	_, err := newIngestor(store, nil).IngestFile(context.Background(), domain.BankStrawberry, path)
	require.Error(t, err)
	require.Len(t, store.Log, 1)
	assert.Equal(t, domain.ProcessingFailed, store.Log[0].Status)
	assert.Empty(t, store.Staged)
}

func TestIngest_AbortsOnFirstFailure(t *testing.T) {
	store := &MockStore{}
	in := newIngestor(store, nil)
	good := writeExport(t, "good.csv", strawberryExport)
	missing := filepath.Join(t.TempDir(), "missing.csv")

	sum, err := in.Ingest(context.Background(), domain.BankStrawberry, []string{good, missing, good})
	require.Error(t, err)
	assert.Equal(t, 1, sum.Files)
	assert.Equal(t, 2, sum.Inserted)

	_, err = in.Ingest(context.Background(), domain.BankStrawberry, nil)
	assert.Error(t, err)
}

func TestPipeline_StopsWhenDone(t *testing.T) {
	var ran []int
	step := func(n int, done bool) pipeline.PipelineStep {
		return stepFunc(func(ctx context.Context, s *pipeline.PipelineState) error {
			ran = append(ran, n)
			s.Done = done
			return nil
		})
	}
	err := pipeline.NewPipeline(step(1, false), step(2, true), step(3, false)).Execute(context.Background(), &pipeline.PipelineState{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ran)
}

func TestPipeline_WrapsStepError(t *testing.T) {
	boom := errors.New("boom")
	failing := stepFunc(func(ctx context.Context, s *pipeline.PipelineState) error { return boom })
	ok := stepFunc(func(ctx context.Context, s *pipeline.PipelineState) error { return nil })

	err := pipeline.NewPipeline(ok, failing).Execute(context.Background(), &pipeline.PipelineState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "pipeline step 2 failed: boom", err.Error())
}

type stepFunc func(ctx context.Context, s *pipeline.PipelineState) error

func (f stepFunc) Execute(ctx context.Context, s *pipeline.PipelineState) error { return f(ctx, s) }

var ledgerValues = [][]string{
	{"", "DATE", "OUTFLOW", "INFLOW", "CATEGORY", "ACCOUNT", "MEMO", "STATUS"},
	{"", "2023-04-12", "124,83", "", "Hälsa/Familj", "💳 First Card", "APOTEK HJARTAT", "✅"},
	{"", "2023-04-13", "", "1 200,00", "↕️ Account Transfer", "💳 First Card", "", "✅"},
	{"", "2023-04-14", "55,00", "", "Mat och hushåll", "💰 SEB", "ICA", "✅"},
	{"", "2023-04-16", "10,00", "", "", "💳 first card", "", "✅"},
	{"", "not a date", "10,00", "", "", "💳 First Card", "", ""},
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	store := &MockStore{}
	sheet := &MockSheet{
		ReadValuesFunc: func(ctx context.Context, tab string) ([][]string, error) {
			assert.Equal(t, "Transactions", tab)
			return ledgerValues, nil
		},
	}
	b := pipeline.NewBackfiller(store, sheet, "Transactions", merge.NewEngine(sign.DefaultTable(), aliases), sign.DefaultTable(), aliases)

	report, err := b.Backfill(ctx, domain.BankFirstCard, reconcile.Window{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Parsed)
	assert.Equal(t, 1, report.ParseFailed)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, domain.SourceReverseEngineered, report.FileName)

	for _, tx := range store.Transactions {
		assert.True(t, tx.ReverseEngineered)
		assert.Equal(t, domain.BankFirstCard, tx.SourceBank)
		assert.Contains(t, tx.BusinessKey, "_rev_")
	}
	assert.Equal(t, "-124.83", store.Transactions[0].Amount.StringFixed(2))

	again, err := b.Backfill(ctx, domain.BankFirstCard, reconcile.Window{})
	require.NoError(t, err)
	assert.True(t, again.Skipped, "unchanged ledger")
	assert.Len(t, store.Transactions, 3)
}

func TestBackfill_UnknownAccount(t *testing.T) {
	b := pipeline.NewBackfiller(&MockStore{}, &MockSheet{}, "Transactions", merge.NewEngine(sign.DefaultTable(), aliases), sign.DefaultTable(), aliases)
	_, err := b.Backfill(context.Background(), domain.BankSEB, reconcile.Window{})
	assert.Error(t, err)
}
