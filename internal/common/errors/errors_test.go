// internal/common/errors/errors_test.go
package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ map[string]interface{}) { l.errors = append(l.errors, msg) }
func (l *recordingLogger) Warn(msg string, _ map[string]interface{})  { l.warns = append(l.warns, msg) }

// ==========================
// Classification
// ==========================

func TestAsStandardError_UnwrapsWrappedErrors(t *testing.T) {
	base := NewEntityNotFoundError("job", "job-1")
	wrapped := fmt.Errorf("load bundle: %w", base)

	got := AsStandardError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeEntityNotFound, got.Code)
	assert.False(t, got.Retryable)
}

func TestAsStandardError_PlainErrorIsRetryableInternal(t *testing.T) {
	got := AsStandardError(stderrors.New("connection reset by peer"))

	assert.Equal(t, ErrCodeInternal, got.Code)
	assert.True(t, got.Retryable)
	assert.Nil(t, AsStandardError(nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"missing embedding", NewEmbeddingMissingError("job job-1"), false},
		{"validation", NewValidationFailedError("country required"), false},
		{"unknown kind", NewUnknownJobKindError("employer", "bogus"), false},
		{"generation", NewGenerationFailedError(stderrors.New("503")), true},
		{"invalid response", NewResponseInvalidError("unexpected EOF"), true},
		{"database", NewDatabaseQueryFailedError("claim", stderrors.New("timeout")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestStandardError_UnwrapExposesCause(t *testing.T) {
	cause := stderrors.New("deadline exceeded")
	err := NewQueueOperationFailedError("xadd", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "QUEUE_OPERATION_FAILED")
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeDatabaseQueryFailed))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeConcurrentUpdate))
	assert.Equal(t, "SEARCH", GetErrorCategory(ErrCodeSearchQueryFailed))
	assert.Equal(t, "QUEUE", GetErrorCategory(ErrCodeUnknownJobKind))
	assert.Equal(t, "AI", GetErrorCategory(ErrCodeResponseInvalid))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeEmbeddingMissing))
	assert.Equal(t, "INTERNAL", GetErrorCategory(ErrCodeInternal))
}

// ==========================
// Retry decisions
// ==========================

func TestErrorHandler_Decide(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		max     int
		err     error
		want    Outcome
	}{
		{"retryable with attempts left", 1, 3, NewGenerationFailedError(stderrors.New("429")), OutcomeRetry},
		{"retryable on last attempt", 3, 3, NewGenerationFailedError(stderrors.New("429")), OutcomeTerminal},
		{"non-retryable on first attempt", 1, 3, NewEntityNotFoundError("profile", "p-1"), OutcomeTerminal},
		{"plain error retried", 1, 2, stderrors.New("boom"), OutcomeRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recordingLogger{}
			h := NewErrorHandler(log)

			d := h.Decide(JobRef{ID: "j1", Queue: "salary-prediction", Attempt: tt.attempt, MaxAttempts: tt.max}, tt.err)

			assert.Equal(t, tt.want, d.Outcome)
			if tt.want == OutcomeRetry {
				assert.Len(t, log.warns, 1)
				assert.Empty(t, log.errors)
			} else {
				assert.Len(t, log.errors, 1)
			}
		})
	}
}
