package gcs

import (
	"context"
)

// StorageService archives raw exports and fetches exports by URI.
// Store implements it; tests substitute fakes.
type StorageService interface {
	// ArchiveExport stores the raw bytes of an export and returns its gs:// URI.
	ArchiveExport(ctx context.Context, bank, fileHash, fileName string, data []byte) (string, error)

	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}
