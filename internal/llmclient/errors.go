package llmclient

import (
	"fmt"

	"github.com/contextcrawl/contextcrawl/pkg/failure"
)

// LLMErrorCause is a closed classification of why a provider call failed.
type LLMErrorCause string

const (
	ErrCauseNoProvider         LLMErrorCause = "no provider available"
	ErrCauseTimeout            LLMErrorCause = "request timed out"
	ErrCauseTransport          LLMErrorCause = "transport failure"
	ErrCauseHTTPStatus         LLMErrorCause = "non-2xx response"
	ErrCauseMalformedReply     LLMErrorCause = "malformed response body"
	ErrCauseAllFallbacksFailed LLMErrorCause = "every fallback provider failed"
)

// LLMError is the classified error every provider and the fallback Client
// return. Enhancement workers record it verbatim on the catalogue page via
// MarkFailed.
type LLMError struct {
	Message   string
	Retryable bool
	Cause     LLMErrorCause
	Provider  string
}

func (e *LLMError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llmclient: %s: %s: %s", e.Provider, e.Cause, e.Message)
	}
	return fmt.Sprintf("llmclient: %s: %s", e.Cause, e.Message)
}

func (e *LLMError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *LLMError) IsRetryable() bool {
	return e.Retryable
}
