package assets

import (
	"fmt"

	"github.com/contextcrawl/contextcrawl/internal/metadata"
	"github.com/contextcrawl/contextcrawl/pkg/failure"
)

type AssetsErrorCause string

const (
	ErrCauseImageDownloadFailure AssetsErrorCause = "failed to download image"
	ErrCauseHashError            AssetsErrorCause = "hash computation failed"
	ErrCauseNetworkFailure       AssetsErrorCause = "network failure"
	ErrCauseAssetTooLarge        AssetsErrorCause = "asset exceeds max size"
	ErrCauseDiskFull             AssetsErrorCause = "disk is full"
	ErrCausePathError            AssetsErrorCause = "path error"
	ErrCauseReadResponseBodyError AssetsErrorCause = "failed to read response body"
	ErrCauseRedirectLimitExceeded AssetsErrorCause = "redirect limit exceeded"
	ErrCauseRequest5xx           AssetsErrorCause = "server error"
	ErrCauseRequestPageForbidden AssetsErrorCause = "forbidden"
	ErrCauseRequestTooMany       AssetsErrorCause = "too many requests"
	ErrCauseWriteFailure         AssetsErrorCause = "write failed"
)

type AssetsError struct {
	Message   string
	Retryable bool
	Cause     AssetsErrorCause
}

func (e *AssetsError) Error() string {
	return fmt.Sprintf("assets error: %s", e.Cause)
}

func (e *AssetsError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *AssetsError) IsRetryable() bool {
	return e.Retryable
}

// mapAssetsErrorToMetadataCause maps assets-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapAssetsErrorToMetadataCause(err AssetsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseImageDownloadFailure, ErrCauseNetworkFailure, ErrCauseRequest5xx,
		ErrCauseRequestPageForbidden, ErrCauseRequestTooMany, ErrCauseRedirectLimitExceeded,
		ErrCauseReadResponseBodyError:
		return metadata.CauseNetworkFailure
	case ErrCauseDiskFull, ErrCauseWriteFailure, ErrCausePathError:
		return metadata.CauseStorageFailure
	case ErrCauseAssetTooLarge:
		return metadata.CauseContentInvalid
	case ErrCauseHashError:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
