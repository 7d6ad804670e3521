package normalize

import (
	"fmt"

	"github.com/contextcrawl/contextcrawl/internal/metadata"
	"github.com/contextcrawl/contextcrawl/pkg/failure"
)

type NormalizationErrorCause string

const (
	ErrCauseEmptyContent             NormalizationErrorCause = "empty content"
	ErrCauseBrokenH1Invariant        NormalizationErrorCause = "broken H1 invariant"
	ErrCauseOrphanContent            NormalizationErrorCause = "orphan content before H1"
	ErrCauseSkippedHeadingLevels     NormalizationErrorCause = "skipped heading levels"
	ErrCauseBrokenAtomicBlock        NormalizationErrorCause = "heading inside atomic block"
	ErrCauseSectionDerivationFailed  NormalizationErrorCause = "section derivation failed"
	ErrCauseTitleExtractionFailed    NormalizationErrorCause = "title extraction failed"
	ErrCauseHashComputationFailed    NormalizationErrorCause = "hash computation failed"
	ErrCauseFrontmatterRenderFailed  NormalizationErrorCause = "frontmatter render failed"
)

type NormalizationError struct {
	Message   string
	Retryable bool
	Cause     NormalizationErrorCause
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization error: %s", e.Cause)
}

func (e *NormalizationError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *NormalizationError) IsRetryable() bool {
	return e.Retryable
}

// mapNormalizationErrorToMetadataCause maps normalize-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapNormalizationErrorToMetadataCause(err NormalizationError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseEmptyContent:
		return metadata.CauseContentInvalid
	case ErrCauseBrokenH1Invariant, ErrCauseOrphanContent, ErrCauseSkippedHeadingLevels, ErrCauseBrokenAtomicBlock:
		return metadata.CauseInvariantViolation
	case ErrCauseSectionDerivationFailed, ErrCauseTitleExtractionFailed, ErrCauseHashComputationFailed, ErrCauseFrontmatterRenderFailed:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
