package sitemap

import (
	"fmt"

	"github.com/contextcrawl/contextcrawl/pkg/failure"
)

type SitemapErrorCause string

const (
	ErrCauseFetchFailure  SitemapErrorCause = "sitemap fetch failed"
	ErrCauseParseFailure  SitemapErrorCause = "sitemap parse failed"
	ErrCauseHTTPStatus    SitemapErrorCause = "sitemap fetch non-2xx"
)

// SitemapError is recoverable by default: a site with no sitemap, or a
// malformed one, never blocks the crawl, which still discovers pages via
// ordinary link traversal.
type SitemapError struct {
	Message   string
	Retryable bool
	Cause     SitemapErrorCause
	URL       string
}

func (e *SitemapError) Error() string {
	return fmt.Sprintf("sitemap: %s (%s): %s", e.Cause, e.URL, e.Message)
}

func (e *SitemapError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *SitemapError) IsRetryable() bool {
	return e.Retryable
}
