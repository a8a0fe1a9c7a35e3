// internal/common/validation/schema_test.go
package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "match-pipeline/internal/common/errors"
)

var notesSchema = Schema{
	"type":     "array",
	"minItems": 1,
	"items":    map[string]interface{}{"type": "string"},
}

var dashboardSchema = Schema{
	"type":     "object",
	"required": []interface{}{"summary", "questions"},
	"properties": map[string]interface{}{
		"summary":   map[string]interface{}{"type": "string"},
		"questions": map[string]interface{}{"type": "array"},
	},
}

// ==========================
// ValidateResponse
// ==========================

func TestValidateResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		schema  Schema
		want    string
		wantErr bool
	}{
		{"plain array", `["strong react", "no node"]`, notesSchema, `["strong react", "no node"]`, false},
		{"fenced json", "```json\n{\"summary\":\"ok\",\"questions\":[]}\n```", dashboardSchema, `{"summary":"ok","questions":[]}`, false},
		{"bare fence", "```\n[\"a\"]\n```", notesSchema, `["a"]`, false},
		{"not json", "Sure! Here are your notes", notesSchema, "", true},
		{"wrong item type", `[1, 2]`, notesSchema, "", true},
		{"missing required", `{"summary":"ok"}`, dashboardSchema, "", true},
		{"empty", "   ", notesSchema, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateResponse(tt.raw, tt.schema)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, apperrors.ErrCodeResponseInvalid, apperrors.CodeOf(err))
				assert.True(t, apperrors.IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestValidate_EmptySchemaAcceptsAnything(t *testing.T) {
	assert.NoError(t, Validate(nil, map[string]interface{}{"x": 1}))
}
