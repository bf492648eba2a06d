package categorizer

import (
	"testing"

	"github.com/dvloznov/budget-updater/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validAnswer = `{"category": "Bensin", "summary": "Fuel at Circle K", "query": "\"1049\" after:2025/04/28", "email_summary": "Receipt from Circle K"}`

func TestDecode(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantCategory string
		wantFailure  bool
	}{
		{"strict json", validAnswer, "Bensin", false},
		{"fenced", "```json\n" + validAnswer + "\n```", "Bensin", false},
		{"fenced without tag", "```\n" + validAnswer + "\n```", "Bensin", false},
		{"prose around object", "Here is the result: " + validAnswer + " Hope this helps.", "Bensin", false},
		{"not json", "I could not decide.", FallbackJSONError, true},
		{"truncated json", `{"category": "Bensin", "summary": `, FallbackJSONError, true},
		{"array", `["Bensin"]`, FallbackFormatError, true},
		{"empty", "   ", FallbackFormatError, true},
		{"missing keys", `{"category": "Bensin", "summary": "Fuel"}`, FallbackMissingKeys, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, failure := Decode(tt.raw)
			if tt.wantFailure {
				require.NotNil(t, failure)
				assert.Equal(t, tt.wantCategory, failure.Category)
				assert.True(t, domain.IsManualReview(failure.Result().Category))
				return
			}
			require.Nil(t, failure)
			assert.Equal(t, tt.wantCategory, res.Category)
			assert.Equal(t, "Fuel at Circle K", res.Summary)
			assert.Equal(t, "Receipt from Circle K", res.EvidenceSummary)
		})
	}
}

func TestDecode_JSONErrorKeepsRawText(t *testing.T) {
	_, failure := Decode("no json here")
	require.NotNil(t, failure)
	assert.Equal(t, "no json here", failure.Result().Summary)
}

func TestDecode_MissingKeysKeepsWhatWasThere(t *testing.T) {
	_, failure := Decode(`{"category": "Bensin", "summary": "Fuel", "query": "q"}`)
	require.NotNil(t, failure)
	assert.Equal(t, "q", failure.Query)
	assert.Contains(t, failure.Summary, "email_summary")
}
