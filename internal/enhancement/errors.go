package enhancement

import (
	"fmt"

	"github.com/contextcrawl/contextcrawl/pkg/failure"
)

type EnhancementErrorCause string

const (
	ErrCauseFileReadFailure  EnhancementErrorCause = "file read failure"
	ErrCauseFileWriteFailure EnhancementErrorCause = "file write failure"
	ErrCauseLLMFailure       EnhancementErrorCause = "LLM request failed"
	ErrCauseCatalogueFailure EnhancementErrorCause = "catalogue update failed"
)

// EnhancementError is the sole error type a worker task records before
// marking a page failed. It never aborts the pool: a single page's failure
// never blocks the supervisor from claiming the next batch.
type EnhancementError struct {
	Message   string
	Retryable bool
	Cause     EnhancementErrorCause
	URL       string
}

func (e *EnhancementError) Error() string {
	return fmt.Sprintf("enhancement: %s (%s): %s", e.Cause, e.URL, e.Message)
}

func (e *EnhancementError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *EnhancementError) IsRetryable() bool {
	return e.Retryable
}
