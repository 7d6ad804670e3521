package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/contextcrawl/contextcrawl/internal/metadata"
	"github.com/contextcrawl/contextcrawl/pkg/retry"
	"github.com/contextcrawl/contextcrawl/pkg/timeutil"
)

// Entry is one <url> record discovered from a sitemap, carrying whatever
// optional fields the sitemap declared.
type Entry struct {
	URL        string
	LastMod    string
	ChangeFreq string
	Priority   float64
	FromIndex  string
}

// maxIndexDepth bounds sitemap-index following to one level: a
// sitemapindex's children are fetched and parsed, but a child that is
// itself an index is logged and skipped rather than followed further.
const maxIndexDepth = 1

// defaultSitemapPath is probed when a host's robots.txt declared no
// Sitemap: directive.
const defaultSitemapPath = "/sitemap.xml"

type Discoverer struct {
	httpClient   *http.Client
	userAgent    string
	metadataSink metadata.MetadataSink
	sleeper      timeutil.Sleeper
	rng          *rand.Rand
}

func NewDiscoverer(httpClient *http.Client, userAgent string, metadataSink metadata.MetadataSink, sleeper timeutil.Sleeper) Discoverer {
	return Discoverer{
		httpClient:   httpClient,
		userAgent:    userAgent,
		metadataSink: metadataSink,
		sleeper:      sleeper,
		rng:          rand.New(rand.NewSource(1)),
	}
}

// Discover fetches every sitemap URL in roots (falling back to
// scheme://host/sitemap.xml when roots is empty), follows one level of
// sitemapindex nesting, and returns every <url> entry found. Fetch and
// parse failures for an individual sitemap are recorded and skipped; they
// never abort the crawl, since sitemap discovery is a supplement to
// ordinary link-based discovery, not a replacement for it.
func (d *Discoverer) Discover(ctx context.Context, scheme, host string, roots []string, retryParam retry.RetryParam) []Entry {
	if len(roots) == 0 {
		roots = []string{fmt.Sprintf("%s://%s%s", scheme, host, defaultSitemapPath)}
	}

	var entries []Entry
	for _, root := range roots {
		entries = append(entries, d.walk(ctx, root, retryParam, 0)...)
	}
	return entries
}

func (d *Discoverer) walk(ctx context.Context, sitemapURL string, retryParam retry.RetryParam, depth int) []Entry {
	body, err := d.fetch(ctx, sitemapURL, retryParam)
	if err != nil {
		d.recordError(sitemapURL, err)
		return nil
	}

	urls, children, parseErr := parseSitemapXML(body)
	if parseErr != nil {
		d.recordError(sitemapURL, &SitemapError{Message: parseErr.Error(), Retryable: false, Cause: ErrCauseParseFailure, URL: sitemapURL})
		return nil
	}

	entries := make([]Entry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, Entry{URL: u.Loc, LastMod: u.LastMod, ChangeFreq: u.ChangeFreq, Priority: u.Priority, FromIndex: sitemapURL})
	}

	if len(children) == 0 {
		return entries
	}

	if depth >= maxIndexDepth {
		if d.metadataSink != nil {
			d.metadataSink.RecordError(time.Now(), "sitemap", "walk", metadata.CauseContentInvalid,
				fmt.Sprintf("sitemap index nesting beyond depth %d, %d child sitemaps dropped", maxIndexDepth, len(children)),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, sitemapURL)})
		}
		return entries
	}

	for _, child := range children {
		entries = append(entries, d.walk(ctx, child, retryParam, depth+1)...)
	}
	return entries
}

func (d *Discoverer) fetch(ctx context.Context, rawURL string, retryParam retry.RetryParam) ([]byte, *SitemapError) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, &SitemapError{Message: err.Error(), Retryable: false, Cause: ErrCauseFetchFailure, URL: rawURL}
	}

	maxAttempts := retryParam.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr *SitemapError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, &SitemapError{Message: err.Error(), Retryable: false, Cause: ErrCauseFetchFailure, URL: rawURL}
		}
		req.Header.Set("User-Agent", d.userAgent)

		resp, doErr := d.httpClient.Do(req)
		if doErr != nil {
			lastErr = &SitemapError{Message: doErr.Error(), Retryable: true, Cause: ErrCauseFetchFailure, URL: rawURL}
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return nil, &SitemapError{Message: "not found", Retryable: false, Cause: ErrCauseHTTPStatus, URL: rawURL}
			}
			if resp.StatusCode >= 400 {
				lastErr = &SitemapError{Message: fmt.Sprintf("status %d", resp.StatusCode), Retryable: resp.StatusCode >= 500, Cause: ErrCauseHTTPStatus, URL: rawURL}
			} else if readErr != nil {
				lastErr = &SitemapError{Message: readErr.Error(), Retryable: true, Cause: ErrCauseFetchFailure, URL: rawURL}
			} else {
				return body, nil
			}
		}

		if !lastErr.Retryable || attempt == maxAttempts {
			break
		}
		delay := timeutil.ExponentialBackoffDelay(attempt, retryParam.Jitter, *d.rng, retryParam.BackoffParam)
		d.sleeper.Sleep(delay)
	}
	return nil, lastErr
}

func (d *Discoverer) recordError(sitemapURL string, err *SitemapError) {
	if d.metadataSink == nil {
		return
	}
	d.metadataSink.RecordError(time.Now(), "sitemap", "fetch", metadata.CauseNetworkFailure, err.Error(),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, sitemapURL)})
}

type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc        string  `xml:"loc"`
	LastMod    string  `xml:"lastmod"`
	ChangeFreq string  `xml:"changefreq"`
	Priority   float64 `xml:"priority"`
}

type xmlSitemapIndex struct {
	XMLName  xml.Name          `xml:"sitemapindex"`
	Sitemaps []xmlSitemapEntry `xml:"sitemap"`
}

type xmlSitemapEntry struct {
	Loc string `xml:"loc"`
}

// parseSitemapXML distinguishes a <urlset> document from a <sitemapindex>
// one by probing the root element name before committing to a shape.
func parseSitemapXML(data []byte) (urls []xmlURL, childSitemaps []string, err error) {
	var probe struct {
		XMLName xml.Name
	}
	if err := xml.Unmarshal(data, &probe); err != nil {
		return nil, nil, err
	}

	switch probe.XMLName.Local {
	case "sitemapindex":
		var idx xmlSitemapIndex
		if err := xml.Unmarshal(data, &idx); err != nil {
			return nil, nil, err
		}
		for _, s := range idx.Sitemaps {
			if s.Loc != "" {
				childSitemaps = append(childSitemaps, s.Loc)
			}
		}
		return nil, childSitemaps, nil
	default:
		var set xmlURLSet
		if err := xml.Unmarshal(data, &set); err != nil {
			return nil, nil, err
		}
		return set.URLs, nil, nil
	}
}
