package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://budget-raw/exports/2025/seb.csv")
	require.NoError(t, err)
	assert.Equal(t, "budget-raw", bucket)
	assert.Equal(t, "exports/2025/seb.csv", object)

	for _, bad := range []string{"budget-raw/seb.csv", "gs://budget-raw", "gs://budget-raw/", "gs:///seb.csv"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestFilenameFromURI(t *testing.T) {
	assert.Equal(t, "seb.csv", FilenameFromURI("gs://bucket/folder/seb.csv"))
	assert.Equal(t, "bucket", FilenameFromURI("gs://bucket"))
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "raw/firstcard/abc123_statement.xlsx", ObjectName("FirstCard", "abc123", "/home/me/Downloads/statement.xlsx"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("a.CSV"))
	assert.Equal(t, "application/vnd.ms-excel", contentType("a.xls"))
	assert.Equal(t, "application/octet-stream", contentType("a"))
}
