package robots

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/contextcrawl/contextcrawl/internal/metadata"
	"github.com/contextcrawl/contextcrawl/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// Robot is the crawl-time robots.txt decision port.
type Robot interface {
	Init(userAgent string)
	Decide(target url.URL) (Decision, *RobotsError)
	Sitemaps(host string) []string
}

// CachedRobot fetches robots.txt once per host for the lifetime of a crawl
// and reuses the parsed ruleSet for every subsequent URL on that host.
type CachedRobot struct {
	metadataSink metadata.MetadataSink
	fetcher      *RobotsFetcher
	userAgent    string

	mu    sync.Mutex
	rules map[string]ruleSet
}

// NewCachedRobot constructs a CachedRobot. Init must be called with the
// crawl's user agent before the first Decide call.
func NewCachedRobot(metadataSink metadata.MetadataSink) CachedRobot {
	return CachedRobot{
		metadataSink: metadataSink,
		fetcher:      NewRobotsFetcher(metadataSink, "", cache.NewMemoryCache()),
		rules:        make(map[string]ruleSet),
	}
}

func (r *CachedRobot) Init(userAgent string) {
	r.userAgent = userAgent
	r.fetcher = NewRobotsFetcher(r.metadataSink, userAgent, cache.NewMemoryCache())
}

// Decide fetches (or reuses the cached) robots.txt for target's host and
// returns whether target may be crawled.
func (r *CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rules[target.Host]
	if !ok {
		result, err := r.fetcher.Fetch(context.Background(), target.Scheme, target.Host)
		if err != nil {
			return Decision{}, err
		}
		data, parseErr := result.Parse()
		if parseErr != nil {
			data = nil
		}
		rs = NewRuleSet(data, target.Host, r.userAgent, result.FetchedAt, result.SourceURL)
		r.rules[target.Host] = rs
	}

	allowed, reason := rs.Allowed(target.Path)
	var delay time.Duration
	if cd := rs.CrawlDelay(); cd != nil {
		delay = *cd
	}
	return Decision{
		Url:        target,
		Allowed:    allowed,
		Reason:     reason,
		CrawlDelay: delay,
	}, nil
}

// Sitemaps returns the Sitemap: directives for host's cached robots.txt, or
// nil if host has not been decided yet or declared none. Sitemap discovery
// always runs after the seed URL's admission check, so the cache is already
// warm by the time this is called.
func (r *CachedRobot) Sitemaps(host string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	rs, ok := r.rules[host]
	if !ok {
		return nil
	}
	return rs.Sitemaps()
}
