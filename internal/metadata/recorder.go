package metadata

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Hashes
- Status codes
- Durations
- Identifiers (page ID, crawl ID)
*/

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MetadataSink is the observational write side every pipeline stage reports
// through. Implementations must never let recording influence control flow:
// a sink call never returns an error a caller can branch on.
type MetadataSink interface {
	RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int)
	RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int)
	RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute)
	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

// CrawlFinalizer records the terminal, derived summary of a completed crawl.
// It is recorded exactly once, after the crawl loop exits.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(totalPages, totalErrors, totalAssets int, duration time.Duration)
}

// Recorder is the structured-logging implementation of MetadataSink and
// CrawlFinalizer. Every event is emitted as one structured log line; no
// in-memory event history is kept (this is a reporter, not a store).
type Recorder struct {
	logger zerolog.Logger
	worker string
}

// NewRecorder constructs a Recorder that tags every event with workerName,
// useful once more than one enhancement/crawl worker shares a process.
func NewRecorder(workerName string) Recorder {
	return Recorder{
		logger: log.Logger,
		worker: workerName,
	}
}

// NewRecorderWithLogger constructs a Recorder against an explicit logger
// instance, for tests or for callers that configure their own zerolog
// output/level rather than the global logger.
func NewRecorderWithLogger(workerName string, logger zerolog.Logger) Recorder {
	return Recorder{
		logger: logger,
		worker: workerName,
	}
}

func (r *Recorder) RecordFetch(fetchURL string, httpStatus int, duration time.Duration, contentType string, retryCount int, crawlDepth int) {
	r.logger.Info().
		Str("worker", r.worker).
		Str("event", "fetch").
		Str("url", fetchURL).
		Int("http_status", httpStatus).
		Dur("duration", duration).
		Str("content_type", contentType).
		Int("retry_count", retryCount).
		Int("crawl_depth", crawlDepth).
		Msg("fetched page")
}

func (r *Recorder) RecordAssetFetch(fetchURL string, httpStatus int, duration time.Duration, retryCount int) {
	r.logger.Info().
		Str("worker", r.worker).
		Str("event", "asset_fetch").
		Str("url", fetchURL).
		Int("http_status", httpStatus).
		Dur("duration", duration).
		Int("retry_count", retryCount).
		Msg("fetched asset")
}

func (r *Recorder) RecordError(observedAt time.Time, packageName string, action string, cause ErrorCause, errorString string, attrs []Attribute) {
	event := r.logger.Warn().
		Str("worker", r.worker).
		Str("event", "error").
		Time("observed_at", observedAt).
		Str("package", packageName).
		Str("action", action).
		Str("cause", cause.String()).
		Str("error", errorString)
	for _, attr := range attrs {
		event = event.Str(string(attr.Key), attr.Value)
	}
	event.Msg("pipeline error")
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	event := r.logger.Info().
		Str("worker", r.worker).
		Str("event", "artifact").
		Str("kind", kind.String()).
		Str("path", path)
	for _, attr := range attrs {
		event = event.Str(string(attr.Key), attr.Value)
	}
	event.Msg("wrote artifact")
}

func (r *Recorder) RecordFinalCrawlStats(totalPages, totalErrors, totalAssets int, duration time.Duration) {
	r.logger.Info().
		Str("worker", r.worker).
		Str("event", "crawl_finished").
		Int("total_pages", totalPages).
		Int("total_errors", totalErrors).
		Int("total_assets", totalAssets).
		Dur("duration", duration).
		Msg("crawl finished")
}
