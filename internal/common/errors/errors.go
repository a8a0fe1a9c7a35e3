// internal/common/errors/errors.go

// Package errors provides the pipeline's error taxonomy: validation failures that
// must not be retried, transient failures that consume the job's attempt budget,
// and the terminal decision taken once that budget is spent.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// input / validation: surfaced immediately, never retried
	ErrCodeEntityNotFound   ErrorCode = "ENTITY_NOT_FOUND"
	ErrCodeEmbeddingMissing ErrorCode = "EMBEDDING_MISSING"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeUnknownJobKind   ErrorCode = "UNKNOWN_JOB_KIND"
	ErrCodePayloadInvalid   ErrorCode = "PAYLOAD_INVALID"

	// transient: retried with backoff up to the attempt limit
	ErrCodeGenerationFailed     ErrorCode = "GENERATION_FAILED"
	ErrCodeEmbeddingFailed      ErrorCode = "EMBEDDING_FAILED"
	ErrCodeResponseInvalid      ErrorCode = "RESPONSE_INVALID"
	ErrCodeDatabaseQueryFailed  ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeQueueOperationFailed ErrorCode = "QUEUE_OPERATION_FAILED"
	ErrCodeSearchQueryFailed    ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeRateLimitWaitFailed  ErrorCode = "RATE_LIMIT_WAIT_FAILED"
	ErrCodeConcurrentUpdate     ErrorCode = "DATABASE_CONCURRENT_UPDATE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured pipeline error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error's metadata and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewEntityNotFoundError reports a missing referenced entity (job, profile, application).
func NewEntityNotFoundError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEntityNotFound,
		Message:   fmt.Sprintf("%s not found", entity),
		Details:   fmt.Sprintf("%sId: %s", entity, id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmbeddingMissingError reports that scoring inputs lack an embedding.
func NewEmbeddingMissingError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmbeddingMissing,
		Message:   "Embedding missing",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPayloadInvalidError reports a job payload that cannot be decoded.
func NewPayloadInvalidError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadInvalid,
		Message:   "Job payload could not be decoded",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewUnknownJobKindError(queue, kind string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownJobKind,
		Message:   "No handler registered for job kind",
		Details:   fmt.Sprintf("queue: %s, kind: %s", queue, kind),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationFailedError wraps a failed call to the generative model.
func NewGenerationFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationFailed,
		Message:   "Generative model call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewEmbeddingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmbeddingFailed,
		Message:   "Embedding call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewResponseInvalidError reports generated output that is not valid JSON or
// does not satisfy its response schema. A later sample may validate.
func NewResponseInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResponseInvalid,
		Message:   "Generated response failed validation",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewDatabaseQueryFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewConcurrentUpdateError reports a row that changed between the read that
// produced a result and the write that stores it. The next attempt rereads it.
func NewConcurrentUpdateError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConcurrentUpdate,
		Message:   "Row changed while it was being processed",
		Details:   fmt.Sprintf("%s: %s", entity, id),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewQueueOperationFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueueOperationFailed,
		Message:   "Queue operation failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewSearchQueryFailedError(index string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSearchQueryFailed,
		Message:   "Search query failed",
		Details:   fmt.Sprintf("index: %s, error: %s", index, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewRateLimitWaitFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimitWaitFailed,
		Message:   "Waiting for a rate limiter slot failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Classification
// ==========================

// AsStandardError unwraps err to a *StandardError. Errors that carry no code are
// classified as retryable internal errors so they spend the attempt budget
// instead of being dropped.
func AsStandardError(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return AsStandardError(err).Retryable
}

// CodeOf returns the error code of err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return AsStandardError(err).Code
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "QUEUE") || strings.Contains(codeStr, "JOB_KIND"):
		return "QUEUE"
	case strings.Contains(codeStr, "GENERATION") || strings.Contains(codeStr, "EMBEDDING_FAILED") ||
		strings.Contains(codeStr, "RESPONSE") || strings.Contains(codeStr, "RATE_LIMIT"):
		return "AI"
	case strings.Contains(codeStr, "NOT_FOUND") || strings.Contains(codeStr, "MISSING") ||
		strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PAYLOAD"):
		return "VALIDATION"
	default:
		return "INTERNAL"
	}
}
