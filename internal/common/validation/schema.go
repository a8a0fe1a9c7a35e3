// internal/common/validation/schema.go
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "match-pipeline/internal/common/errors"
)

// Schema is a JSON Schema document expressed as a Go map.
type Schema map[string]interface{}

// Validate checks document against schema and joins every violation into one error.
func Validate(schema Schema, document interface{}) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(map[string]interface{}(schema)),
		gojsonschema.NewGoLoader(document),
	)
	if err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("data validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateResponse parses a generated model response and validates it against
// schema. Markdown code fences around the JSON are tolerated. The returned
// error is a retryable RESPONSE_INVALID so a later sample gets a chance.
func ValidateResponse(raw string, schema Schema) (json.RawMessage, error) {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return nil, apperrors.NewResponseInvalidError("empty response")
	}

	var document interface{}
	if err := json.Unmarshal([]byte(cleaned), &document); err != nil {
		return nil, apperrors.NewResponseInvalidError(fmt.Sprintf("response is not valid JSON: %v", err))
	}

	if err := Validate(schema, document); err != nil {
		return nil, apperrors.NewResponseInvalidError(err.Error())
	}
	return json.RawMessage(cleaned), nil
}

// ExtractJSON strips surrounding whitespace and ``` / ```json fences.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
