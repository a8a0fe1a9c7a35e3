// internal/common/errors/handler.go
package errors

// Outcome is what the dispatcher does with a failed job.
type Outcome string

const (
	OutcomeRetry    Outcome = "retry"
	OutcomeTerminal Outcome = "terminal"
)

// Decision is the result of classifying a job failure.
type Decision struct {
	Outcome  Outcome
	Error    *StandardError
	Category string
}

// Logger is the subset of logger.Logger the handler needs.
type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// ErrorHandler turns a handler error into a retry or terminal decision.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// JobRef identifies the failed job for logging.
type JobRef struct {
	ID          string
	Queue       string
	Kind        string
	BusinessID  string
	Attempt     int
	MaxAttempts int
}

// Decide retries a retryable error while attempts remain; everything else is terminal.
func (h *ErrorHandler) Decide(job JobRef, err error) Decision {
	stdErr := AsStandardError(err)

	outcome := OutcomeTerminal
	if stdErr.Retryable && job.Attempt < job.MaxAttempts {
		outcome = OutcomeRetry
	}

	d := Decision{
		Outcome:  outcome,
		Error:    stdErr,
		Category: GetErrorCategory(stdErr.Code),
	}
	h.logDecision(job, d)
	return d
}

func (h *ErrorHandler) logDecision(job JobRef, d Decision) {
	if h.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"jobId":         job.ID,
		"queue":         job.Queue,
		"kind":          job.Kind,
		"businessId":    job.BusinessID,
		"attempt":       job.Attempt,
		"maxAttempts":   job.MaxAttempts,
		"errorCode":     string(d.Error.Code),
		"message":       d.Error.Message,
		"details":       d.Error.Details,
		"retryable":     d.Error.Retryable,
		"errorCategory": d.Category,
		"outcome":       string(d.Outcome),
	}
	if d.Outcome == OutcomeRetry {
		h.logger.Warn("job attempt failed", fields)
		return
	}
	h.logger.Error("job failed", fields)
}
