package limiter

import "time"

// HostSnapshot is a read-only view of the politeness state tracked for one
// host, exposed for status reporting (CLI --status, logging) without leaking
// the limiter's internal hostTiming representation.
type HostSnapshot struct {
	Host         string
	LastFetchAt  time.Time
	CrawlDelay   time.Duration
	BackoffDelay time.Duration
	BackoffCount int
}
