package catalogue

import (
	"fmt"

	"github.com/contextcrawl/contextcrawl/pkg/failure"
)

type CatalogueErrorCause string

const (
	ErrCauseOpenFailure       CatalogueErrorCause = "failed to open catalogue"
	ErrCauseIntegrityFailure  CatalogueErrorCause = "session integrity check failed"
	ErrCauseMigrationFailure  CatalogueErrorCause = "schema migration failed"
	ErrCauseQueryFailure      CatalogueErrorCause = "catalogue query failed"
	ErrCauseCommitFailure     CatalogueErrorCause = "commit protocol failed"
	ErrCauseRecordNotFound    CatalogueErrorCause = "record not found"
)

// CatalogueError is the sole error type the catalogue package returns.
// Every operation classifies its failure the same way the rest of the
// pipeline does: fatal failures abort the run, recoverable ones don't.
type CatalogueError struct {
	Message   string
	Retryable bool
	Cause     CatalogueErrorCause
	URL       string
}

func (e *CatalogueError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("catalogue: %s (%s): %s", e.Cause, e.URL, e.Message)
	}
	return fmt.Sprintf("catalogue: %s: %s", e.Cause, e.Message)
}

func (e *CatalogueError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// IsRetryable reports whether the retry helper in pkg/retry should retry
// the operation that produced this error.
func (e *CatalogueError) IsRetryable() bool {
	return e.Retryable
}
