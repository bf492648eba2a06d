// Package pipeline orchestrates a run: ingest exports (or rebuild history
// from the ledger), merge into the canonical store, publish and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/budget-updater/internal/archive"
	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/logger"
)

// maxLoggedError bounds the error text kept in the processing log.
const maxLoggedError = 2000

var errNoSources = errors.New("no input files")

// FileReport is the outcome of one pipeline run over a single input.
type FileReport struct {
	Source           string
	FileName         string
	FileHash         string
	Skipped          bool
	Parsed           int
	ParseFailed      int
	Inserted         int
	SkippedDuplicate int
	MergeFailed      int
	ArchiveURI       string
}

func reportFor(state *PipelineState) FileReport {
	r := FileReport{
		Source:      state.Source,
		FileName:    state.FileName,
		FileHash:    state.FileHash,
		Skipped:     state.Done,
		Parsed:      len(state.Rows),
		ParseFailed: len(state.ParseFailures),
		ArchiveURI:  state.ArchiveURI,
	}
	if state.Merge != nil {
		r.Inserted = state.Merge.Inserted
		r.SkippedDuplicate = state.Merge.SkippedDuplicate
		r.MergeFailed = state.Merge.Failed
	}
	return r
}

// Ingestor runs the export ingestion pipeline for each input file.
type Ingestor struct {
	store    Store
	pipeline *Pipeline
	now      func() time.Time
}

// NewIngestor wires the ingestion pipeline. storage may be nil, in which
// case gs:// inputs are rejected and raw files are not archived.
func NewIngestor(store Store, storage StorageService, parser Parser, merger Merger) *Ingestor {
	return &Ingestor{
		store:    store,
		pipeline: NewExportIngestionPipeline(store, storage, parser, merger),
		now:      time.Now,
	}
}

// IngestFile runs the pipeline over one export and records the attempt in
// the processing log.
func (in *Ingestor) IngestFile(ctx context.Context, bank domain.Bank, source string) (FileReport, error) {
	state := &PipelineState{Source: source, Bank: bank}
	return runAndRecord(ctx, in.pipeline, in.store, state, in.now)
}

// Ingest processes sources in order. The first failing file aborts the run;
// the summary covers the files handled before it.
func (in *Ingestor) Ingest(ctx context.Context, bank domain.Bank, sources []string) (RunSummary, error) {
	var sum RunSummary
	if len(sources) == 0 {
		return sum, fmt.Errorf("Ingest: %w", errNoSources)
	}
	for _, src := range sources {
		report, err := in.IngestFile(ctx, bank, src)
		if err != nil {
			return sum, fmt.Errorf("Ingest: %s: %w", src, err)
		}
		sum.AddFile(report)
	}
	return sum, nil
}

// runAndRecord executes p and appends the outcome to the processing log.
// Inputs that could not be read are not logged since they have no hash.
func runAndRecord(ctx context.Context, p *Pipeline, store StagingStore, state *PipelineState, now func() time.Time) (FileReport, error) {
	log := logger.Component(ctx, "pipeline").With().
		Str("bank", string(state.Bank)).
		Str("source", state.Source).
		Logger()

	runErr := p.Execute(ctx, state)
	report := reportFor(state)
	if state.Done {
		return report, nil
	}
	if state.FileHash == "" {
		return report, runErr
	}

	entry := domain.ProcessingLogEntry{
		FileHash:     state.FileHash,
		FileName:     state.FileName,
		Bank:         state.Bank,
		Status:       domain.ProcessingSuccess,
		RowsParsed:   report.Parsed,
		RowsFailed:   report.ParseFailed + report.MergeFailed,
		RowsInserted: report.Inserted,
		RowsSkipped:  report.SkippedDuplicate,
		ProcessedAt:  now().UTC(),
	}
	if runErr != nil {
		entry.Status = domain.ProcessingFailed
		entry.ErrorMessage = archive.Truncate(runErr.Error(), maxLoggedError)
	}

	// Record with a fresh context so a cancelled run still leaves a FAILED entry.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := store.RecordFile(recordCtx, entry); err != nil {
		if runErr != nil {
			log.Error().Err(err).Msg("failed to record failed file")
			return report, runErr
		}
		return report, fmt.Errorf("record processing log: %w", err)
	}

	if runErr != nil {
		log.Error().Err(runErr).Str("file_hash", state.FileHash).Msg("file failed")
		return report, runErr
	}
	log.Info().
		Str("file", report.FileName).
		Int("parsed", report.Parsed).
		Int("parse_failed", report.ParseFailed).
		Int("inserted", report.Inserted).
		Int("skipped_duplicate", report.SkippedDuplicate).
		Int("merge_failed", report.MergeFailed).
		Msg("file processed")
	return report, nil
}
