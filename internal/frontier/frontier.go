package frontier

import (
	"sync"

	"github.com/contextcrawl/contextcrawl/internal/config"
	"github.com/contextcrawl/contextcrawl/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// CrawlingPolicy is the admission policy a Frontier enforces on every
// candidate it is handed: depth bound, page budget, host scope, and
// include/exclude path patterns. The scheduler has already run robots.txt
// and host-scope checks before a candidate reaches Submit; CrawlingPolicy
// is the frontier's own, independent backstop against runaway traversal.
type CrawlingPolicy struct {
	maxDepth     int
	maxPages     int
	allowedHosts map[string]struct{}
	patterns     urlutil.PatternSet
}

func NewCrawlingPolicy(cfg config.Config) CrawlingPolicy {
	return CrawlingPolicy{
		maxDepth:     cfg.MaxDepth(),
		maxPages:     cfg.MaxPages(),
		allowedHosts: cfg.AllowedHosts(),
		patterns:     urlutil.NewPatternSet(cfg.IncludePatterns(), cfg.ExcludePatterns()),
	}
}

// Admits reports whether candidate may enter the frontier given how many
// URLs have already been admitted this crawl.
func (p CrawlingPolicy) Admits(candidate CrawlAdmissionCandidate, admittedCount int) bool {
	if p.maxPages > 0 && admittedCount >= p.maxPages {
		return false
	}
	if candidate.discoveryMetadata.Depth() > p.maxDepth {
		return false
	}
	if len(p.allowedHosts) > 0 {
		if _, ok := p.allowedHosts[candidate.targetURL.Host]; !ok {
			return false
		}
	}
	if !p.patterns.Admit(candidate.targetURL.Path) {
		return false
	}
	return true
}

// Frontier owns crawl ordering and deduplication state for one crawl run.
// It trusts that every CrawlAdmissionCandidate it receives has already
// passed robots.txt checks; it applies CrawlingPolicy and visited-set
// deduplication on top.
//
// Submit and Dequeue are called concurrently once a crawl runs more than
// one worker; mu guards the queue and visited set together so admission
// and dequeue never interleave with a torn view of either.
type Frontier struct {
	mu      sync.Mutex
	queue   *FIFOQueue[CrawlToken]
	visited Set[string]
	policy  CrawlingPolicy
}

// NewFrontier constructs an empty Frontier. Init must be called with the
// crawl's config before the first Submit, to install the CrawlingPolicy.
func NewFrontier() Frontier {
	return Frontier{
		queue:   NewFIFOQueue[CrawlToken](),
		visited: NewSet[string](),
	}
}

func (f *Frontier) Init(cfg config.Config) {
	f.policy = NewCrawlingPolicy(cfg)
}

// Submit admits candidate into the crawl queue if it has not already been
// visited and the crawling policy allows it. Returns whether the candidate
// was enqueued.
func (f *Frontier) Submit(candidate CrawlAdmissionCandidate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	canonical := urlutil.Canonicalize(candidate.targetURL)
	key := canonical.String()

	if f.visited.Contains(key) {
		return false
	}
	if !f.policy.Admits(candidate, f.visited.Size()) {
		return false
	}

	f.visited.Add(key)
	f.queue.Enqueue(NewCrawlToken(candidate.targetURL, candidate.discoveryMetadata.Depth()))
	return true
}

// Dequeue pops the next admitted URL in BFS order.
func (f *Frontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Dequeue()
}

// VisitedCount returns how many distinct URLs have been admitted this crawl.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}
