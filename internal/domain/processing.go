package domain

import (
	"time"

	"cloud.google.com/go/civil"
)

// ProcessingStatus is the outcome recorded for an ingested file.
type ProcessingStatus string

const (
	ProcessingSuccess ProcessingStatus = "SUCCESS"
	ProcessingFailed  ProcessingStatus = "FAILED"
)

// ProcessingLogEntry records one ingestion attempt of a file. A file whose
// hash has a SUCCESS entry is skipped on later runs.
type ProcessingLogEntry struct {
	FileHash     string
	FileName     string
	Bank         Bank
	Status       ProcessingStatus
	RowsParsed   int
	RowsFailed   int
	RowsInserted int
	RowsSkipped  int
	ErrorMessage string
	ProcessedAt  time.Time
}

// TransactionFilter narrows a listing of canonical transactions. Zero
// values mean no restriction.
type TransactionFilter struct {
	Bank Bank
	From civil.Date // inclusive
	To   civil.Date // inclusive
}
