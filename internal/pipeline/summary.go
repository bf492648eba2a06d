package pipeline

import (
	"fmt"
	"io"

	"github.com/dvloznov/budget-updater/internal/categorizer"
	"github.com/rs/zerolog"
)

// RunSummary accumulates the counts printed at the end of a run.
type RunSummary struct {
	Files            int
	FilesSkipped     int
	Parsed           int
	Inserted         int
	SkippedDuplicate int
	ParseFailed      int
	MergeFailed      int
	Categorized      int
	ManualReview     int
	Published        int
}

// AddFile folds one file report into the summary.
func (s *RunSummary) AddFile(r FileReport) {
	s.Files++
	if r.Skipped {
		s.FilesSkipped++
		return
	}
	s.Parsed += r.Parsed
	s.Inserted += r.Inserted
	s.SkippedDuplicate += r.SkippedDuplicate
	s.ParseFailed += r.ParseFailed
	s.MergeFailed += r.MergeFailed
}

// AddCategorization folds a categorizer run into the summary.
func (s *RunSummary) AddCategorization(c categorizer.Summary) {
	s.Categorized += c.Categorized
	s.ManualReview += c.ManualReview
}

// Print writes the summary as aligned key/value lines.
func (s RunSummary) Print(w io.Writer) {
	fmt.Fprintf(w, "files:             %d (%d already processed)\n", s.Files, s.FilesSkipped)
	fmt.Fprintf(w, "inserted:          %d\n", s.Inserted)
	fmt.Fprintf(w, "skipped_duplicate: %d\n", s.SkippedDuplicate)
	fmt.Fprintf(w, "parse_failed:      %d\n", s.ParseFailed)
	if s.MergeFailed > 0 {
		fmt.Fprintf(w, "merge_failed:      %d\n", s.MergeFailed)
	}
	fmt.Fprintf(w, "categorized:       %d\n", s.Categorized)
	fmt.Fprintf(w, "manual_review:     %d\n", s.ManualReview)
	if s.Published > 0 {
		fmt.Fprintf(w, "published:         %d\n", s.Published)
	}
}

// Log emits the summary as one structured event.
func (s RunSummary) Log(log zerolog.Logger) {
	log.Info().
		Int("files", s.Files).
		Int("files_skipped", s.FilesSkipped).
		Int("parsed", s.Parsed).
		Int("inserted", s.Inserted).
		Int("skipped_duplicate", s.SkippedDuplicate).
		Int("parse_failed", s.ParseFailed).
		Int("merge_failed", s.MergeFailed).
		Int("categorized", s.Categorized).
		Int("manual_review", s.ManualReview).
		Int("published", s.Published).
		Msg("run summary")
}
