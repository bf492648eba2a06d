package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/dvloznov/budget-updater/internal/gcs"
	"github.com/dvloznov/budget-updater/internal/ingest"
	"github.com/dvloznov/budget-updater/internal/logger"
	"github.com/dvloznov/budget-updater/internal/merge"
	"github.com/dvloznov/budget-updater/internal/reconcile"
	"github.com/dvloznov/budget-updater/internal/sign"
)

// PipelineStep represents a single step in the ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Source        string // local path or gs:// URI
	Bank          domain.Bank
	FileName      string
	Data          []byte
	FileHash      string
	Rows          []domain.StagingRow
	ParseFailures []*domain.ParseError
	ArchiveURI    string
	Merge         *merge.Result

	// Done stops the pipeline without error; the file was processed before.
	Done bool
}

// LoadFileStep reads the export from disk or from Cloud Storage.
type LoadFileStep struct {
	Storage  StorageService
	ReadFile func(name string) ([]byte, error)
}

func (s *LoadFileStep) Execute(ctx context.Context, state *PipelineState) error {
	var (
		data []byte
		err  error
	)
	if gcs.IsURI(state.Source) {
		if s.Storage == nil {
			return fmt.Errorf("LoadFileStep: %s: no storage bucket configured", state.Source)
		}
		data, err = s.Storage.FetchFromGCS(ctx, state.Source)
		state.FileName = gcs.FilenameFromURI(state.Source)
	} else {
		read := s.ReadFile
		if read == nil {
			read = os.ReadFile
		}
		data, err = read(state.Source)
		state.FileName = filepath.Base(state.Source)
	}
	if err != nil {
		return fmt.Errorf("LoadFileStep: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("LoadFileStep: %s is empty", state.Source)
	}
	state.Data = data
	state.FileHash = ingest.FileHash(data)
	return nil
}

// SkipProcessedStep ends the run for files already ingested successfully.
type SkipProcessedStep struct {
	Store StagingStore
}

func (s *SkipProcessedStep) Execute(ctx context.Context, state *PipelineState) error {
	done, err := s.Store.IsFileProcessed(ctx, state.FileHash)
	if err != nil {
		return fmt.Errorf("SkipProcessedStep: %w", err)
	}
	if done {
		log := logger.Component(ctx, "pipeline")
		log.Info().
			Str("file", state.FileName).
			Str("file_hash", state.FileHash).
			Msg("file already processed, skipping")
		state.Done = true
	}
	return nil
}

// ArchiveStep keeps a copy of the raw export. It does nothing without storage.
type ArchiveStep struct {
	Storage StorageService
}

func (s *ArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Storage == nil {
		return nil
	}
	uri, err := s.Storage.ArchiveExport(ctx, string(state.Bank), state.FileHash, state.FileName, state.Data)
	if err != nil {
		return fmt.Errorf("ArchiveStep: %w", err)
	}
	state.ArchiveURI = uri
	return nil
}

// ParseStep turns the export into staging rows.
type ParseStep struct {
	Parser Parser
}

func (s *ParseStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Parser.Parse(state.Bank, state.FileName, state.Data)
	if err != nil {
		return fmt.Errorf("ParseStep: %w", err)
	}
	log := logger.Component(ctx, "pipeline")
	for _, f := range res.Failures {
		log.Warn().Err(f).Str("bank", string(state.Bank)).Str("file", state.FileName).Msg("row excluded")
	}
	state.Rows = res.Rows
	state.ParseFailures = res.Failures
	return nil
}

// LedgerStep rebuilds staging rows for one bank from the ledger tab.
type LedgerStep struct {
	Reader LedgerReader
	Tab    string
	Alias  string
	Signs  sign.Table
	Window reconcile.Window
	Now    func() time.Time
}

func (s *LedgerStep) Execute(ctx context.Context, state *PipelineState) error {
	values, err := s.Reader.ReadValues(ctx, s.Tab)
	if err != nil {
		return fmt.Errorf("LedgerStep: %w", err)
	}
	rows, err := reconcile.ParseLedger(values)
	if err != nil {
		return fmt.Errorf("LedgerStep: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	b, err := reconcile.ReverseEngineer(rows, state.Bank, s.Alias, s.Signs, s.Window, now())
	if err != nil {
		return fmt.Errorf("LedgerStep: %w", err)
	}
	if len(b.Rows) == 0 && len(b.Failures) == 0 {
		return fmt.Errorf("LedgerStep: no ledger rows for account %q", s.Alias)
	}

	log := logger.Component(ctx, "pipeline")
	for _, f := range b.Failures {
		log.Warn().Err(f).Str("account", s.Alias).Msg("ledger row excluded")
	}
	log.Info().
		Str("account", s.Alias).
		Int("rows", len(b.Rows)).
		Int("ignored", b.Skipped).
		Msg("rebuilt staging rows from ledger")

	state.FileName = domain.SourceReverseEngineered
	state.FileHash = b.FileHash
	state.Rows = b.Rows
	state.ParseFailures = b.Failures
	return nil
}

// StageStep records the parsed rows in the staging tables.
type StageStep struct {
	Store StagingStore
}

func (s *StageStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := s.Store.StageRows(ctx, state.Bank, state.Rows); err != nil {
		return fmt.Errorf("StageStep: %w", err)
	}
	return nil
}

// MergeStep inserts the new business keys into the canonical store.
type MergeStep struct {
	Merger Merger
	Store  merge.Store
}

func (s *MergeStep) Execute(ctx context.Context, state *PipelineState) error {
	res, err := s.Merger.Merge(ctx, s.Store, state.Bank, state.Rows)
	if err != nil {
		return fmt.Errorf("MergeStep: %w", err)
	}
	state.Merge = res
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially, stopping early once a
// step marks the state done.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		if state.Done {
			return nil
		}
	}
	return nil
}

// NewExportIngestionPipeline creates the pipeline for one bank export:
// load, skip if processed, archive, parse, stage, merge.
func NewExportIngestionPipeline(store Store, storage StorageService, parser Parser, merger Merger) *Pipeline {
	steps := []PipelineStep{
		&LoadFileStep{Storage: storage},
		&SkipProcessedStep{Store: store},
	}
	if storage != nil {
		steps = append(steps, &ArchiveStep{Storage: storage})
	}
	steps = append(steps,
		&ParseStep{Parser: parser},
		&StageStep{Store: store},
		&MergeStep{Merger: merger, Store: store},
	)
	return NewPipeline(steps...)
}

// NewBackfillPipeline creates the pipeline that rebuilds one bank's history
// from the ledger.
func NewBackfillPipeline(store Store, ledger *LedgerStep, merger Merger) *Pipeline {
	return NewPipeline(
		ledger,
		&SkipProcessedStep{Store: store},
		&StageStep{Store: store},
		&MergeStep{Merger: merger, Store: store},
	)
}
