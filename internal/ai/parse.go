package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/complycheck/complycheck/pkg/models"
)

// ExtractVerdict parses the structured verdict out of raw model output.
// Models sometimes wrap JSON in markdown fences or preamble text, so the
// parser locates the outermost JSON object before decoding. A response with
// no usable verdict is an ErrInvalidResponse, which the processor treats as
// retryable, never as a default verdict.
func ExtractVerdict(raw string) (models.ParsedVerdict, error) {
	jsonText := extractJSONObject(raw)
	if jsonText == "" {
		return models.ParsedVerdict{}, fmt.Errorf("%w: no JSON object in output", ErrInvalidResponse)
	}

	var verdict models.ParsedVerdict
	if err := json.Unmarshal([]byte(jsonText), &verdict); err != nil {
		return models.ParsedVerdict{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if len(verdict.Sections) == 0 && verdict.ComplianceStatus == "" {
		return models.ParsedVerdict{}, fmt.Errorf("%w: verdict has neither sections nor a compliance status", ErrInvalidResponse)
	}

	return verdict, nil
}

// extractJSONObject returns the substring spanning the first top-level JSON
// object in s, or "" if none is found.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
