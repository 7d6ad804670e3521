package robots

import (
	"time"

	"github.com/temoto/robotstxt"
)

// NewRuleSet wraps a parsed robots.txt document into the decision engine
// used by CachedRobot. data is nil when no robots.txt could be parsed; in
// that case every path is allowed.
func NewRuleSet(data *robotstxt.RobotsData, host, userAgent string, fetchedAt time.Time, sourceURL string) ruleSet {
	return ruleSet{
		host:      host,
		userAgent: userAgent,
		data:      data,
		fetchedAt: fetchedAt,
		sourceURL: sourceURL,
	}
}

// Host returns the host this ruleSet applies to.
func (r ruleSet) Host() string {
	return r.host
}

// UserAgent returns the user agent string these rules apply to.
func (r ruleSet) UserAgent() string {
	return r.userAgent
}

// FetchedAt returns when this ruleSet was fetched.
func (r ruleSet) FetchedAt() time.Time {
	return r.fetchedAt
}

// SourceURL returns the URL of the robots.txt file.
func (r ruleSet) SourceURL() string {
	return r.sourceURL
}

// CrawlDelay returns the crawl delay for this user agent, or nil if none
// was specified.
func (r ruleSet) CrawlDelay() *time.Duration {
	if r.data == nil {
		return nil
	}
	group := r.data.FindGroup(r.userAgent)
	if group == nil || group.CrawlDelay <= 0 {
		return nil
	}
	delay := group.CrawlDelay
	return &delay
}

// Sitemaps returns the Sitemap: directives declared in this host's
// robots.txt, or nil if none were declared or no robots.txt could be parsed.
func (r ruleSet) Sitemaps() []string {
	if r.data == nil {
		return nil
	}
	return r.data.Sitemaps
}

// Allowed reports whether path may be crawled under this ruleSet, and why.
func (r ruleSet) Allowed(path string) (bool, DecisionReason) {
	if r.data == nil {
		return true, EmptyRuleSet
	}
	if r.data.TestAgent(path, r.userAgent) {
		return true, AllowedByRobots
	}
	return false, DisallowedByRobots
}
