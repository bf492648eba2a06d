package categorizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/budget-updater/internal/domain"
)

// Fallback categories. Each sends the transaction to manual review.
const (
	FallbackJSONError        = domain.ManualReview + " (ADK JSON Error)"
	FallbackFormatError      = domain.ManualReview + " (ADK Format Error)"
	FallbackMissingKeys      = domain.ManualReview + " (Missing Keys)"
	FallbackAgentError       = domain.ManualReview + " (Agent Error)"
	FallbackServiceException = domain.ManualReview + " (Service Exception)"
)

var requiredKeys = []string{"category", "summary", "query", "email_summary"}

// DecodeFailure explains why model output could not be used as-is.
type DecodeFailure struct {
	Category string
	Summary  string
	Query    string
	Evidence string
}

func (f *DecodeFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Category, f.Summary)
}

// Result is the manual-review result to store in place of the model's answer.
func (f *DecodeFailure) Result() domain.CategorizationResult {
	return domain.CategorizationResult{
		Category:        f.Category,
		Summary:         f.Summary,
		EvidenceQuery:   f.Query,
		EvidenceSummary: f.Evidence,
	}
}

// Decode parses the agent's final answer. Strict JSON is tried first, then
// the text with Markdown fences stripped, then the outermost {...}.
func Decode(raw string) (domain.CategorizationResult, *DecodeFailure) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.CategorizationResult{}, &DecodeFailure{
			Category: FallbackFormatError,
			Summary:  "Agent returned an empty response",
			Evidence: domain.NoEmailUsed,
		}
	}

	var (
		value   any
		lastErr error
		parsed  bool
	)
	for _, candidate := range []string{text, stripFences(text), outermostObject(text)} {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), &value); err != nil {
			lastErr = err
			continue
		}
		parsed = true
		break
	}
	if !parsed {
		return domain.CategorizationResult{}, &DecodeFailure{
			Category: FallbackJSONError,
			Summary:  raw,
			Evidence: fmt.Sprintf("N/A (JSON parsing failed: %v)", lastErr),
		}
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return domain.CategorizationResult{}, &DecodeFailure{
			Category: FallbackFormatError,
			Summary:  fmt.Sprintf("Agent returned non-object JSON: %s", raw),
			Evidence: domain.NoEmailUsed,
		}
	}

	var missing []string
	for _, k := range requiredKeys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return domain.CategorizationResult{}, &DecodeFailure{
			Category: FallbackMissingKeys,
			Summary:  fmt.Sprintf("Agent output missing %s: %s", strings.Join(missing, ", "), raw),
			Query:    stringField(obj, "query"),
			Evidence: stringField(obj, "email_summary"),
		}
	}

	return domain.CategorizationResult{
		Category:        strings.TrimSpace(stringField(obj, "category")),
		Summary:         strings.TrimSpace(stringField(obj, "summary")),
		EvidenceQuery:   stringField(obj, "query"),
		EvidenceSummary: stringField(obj, "email_summary"),
	}, nil
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// stripFences removes a ```json ... ``` wrapper.
func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return ""
	}
	s = s[start+3:]
	// Drop the language tag line.
	if nl := strings.Index(s, "\n"); nl != -1 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "json"), "JSON")
	}
	if end := strings.Index(s, "```"); end != -1 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func outermostObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
