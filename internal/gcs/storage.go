// Package gcs keeps raw bank exports in Cloud Storage and reads exports
// given as gs:// URIs.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Store is a StorageService bound to one archive bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// NewStore creates a Store. It assumes Application Default Credentials are
// configured (gcloud auth application-default login).
func NewStore(ctx context.Context, bucket string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStore: create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Close releases the storage client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ArchiveExport writes data to raw/<bank>/<hash>_<name>. An object that is
// already present is left untouched since the hash pins its content.
func (s *Store) ArchiveExport(ctx context.Context, bank, fileHash, fileName string, data []byte) (string, error) {
	if s.bucket == "" {
		return "", errors.New("ArchiveExport: no bucket configured")
	}
	name := ObjectName(bank, fileHash, fileName)
	uri := "gs://" + s.bucket + "/" + name
	obj := s.client.Bucket(s.bucket).Object(name)

	_, err := obj.Attrs(ctx)
	switch {
	case err == nil:
		return uri, nil
	case !errors.Is(err, storage.ErrObjectNotExist):
		return "", fmt.Errorf("ArchiveExport: stat %s: %w", uri, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := obj.NewWriter(ctx)
	w.ContentType = contentType(fileName)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("ArchiveExport: write %s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ArchiveExport: finalize upload: %w", err)
	}
	return uri, nil
}

// FetchFromGCS downloads the file bytes from the given GCS URI.
func (s *Store) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading bytes: %w", err)
	}
	return data, nil
}

// IsURI reports whether s looks like a gs:// URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, "gs://")
}

// ParseURI splits gs://bucket/path/to/file into bucket and object path.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.csv" → "file.csv"
func FilenameFromURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// ObjectName is the archive path of an export.
func ObjectName(bank, fileHash, fileName string) string {
	return path.Join("raw", strings.ToLower(bank), fileHash+"_"+path.Base(fileName))
}

func contentType(fileName string) string {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xls":
		return "application/vnd.ms-excel"
	}
	return "application/octet-stream"
}
