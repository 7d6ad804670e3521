package robots

import (
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
)

// ruleSet is the immutable, per-host decision engine built once per crawl
// and reused for every URL on that host.
type ruleSet struct {
	host      string
	userAgent string
	data      *robotstxt.RobotsData

	fetchedAt time.Time
	sourceURL string
}

type DecisionReason string

const (
	AllowedByRobots    DecisionReason = "allowed_by_robots"
	DisallowedByRobots DecisionReason = "disallowed_by_robots"
	EmptyRuleSet       DecisionReason = "empty_rule_set"
)

type Decision struct {
	Url url.URL

	Allowed bool

	// Why this decision was made (for logging/debugging)
	Reason DecisionReason

	// Crawl delay from robots.txt for this host, zero if unspecified.
	CrawlDelay time.Duration
}
