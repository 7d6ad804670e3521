package robots

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/contextcrawl/contextcrawl/internal/metadata"
	"github.com/contextcrawl/contextcrawl/internal/robots/cache"
)

/*
RobotsFetcher

Responsibilities:
- Fetch robots.txt per host using net/http
- Hand the raw body to a robots.txt parsing library rather than a
  hand-rolled scanner
- Handle HTTP errors and status codes according to spec
- Cache fetched results using the provided Cache implementation

The Fetcher returns a RobotsFetchResult; it does not make allow/disallow
decisions. That belongs to ruleSet, via RobotsFetchResult.Parse().
*/

// RobotsFetcher fetches robots.txt files from hosts.
type RobotsFetcher struct {
	httpClient *http.Client
	userAgent  string
	cache      cache.Cache
}

// RobotsFetchResult represents the result of fetching a robots.txt file.
type RobotsFetchResult struct {
	RawContent  string    `json:"raw_content"`
	FetchedAt   time.Time `json:"fetched_at"`
	SourceURL   string    `json:"source_url"`
	HTTPStatus  int       `json:"http_status"`
	ContentType string    `json:"content_type"`
}

// Parse builds the robots.txt decision engine from the fetched content.
// Status-code semantics (401/403 disallow-all, other 4xx allow-all, 2xx
// parsed normally) are handled by robotstxt.FromStatusAndBytes.
func (r RobotsFetchResult) Parse() (*robotstxt.RobotsData, error) {
	return robotstxt.FromStatusAndBytes(r.HTTPStatus, []byte(r.RawContent))
}

// NewRobotsFetcher creates a new RobotsFetcher with the given dependencies.
// The cache parameter is optional - if nil, no caching will be performed.
func NewRobotsFetcher(
	metadataSink metadata.MetadataSink,
	userAgent string,
	cache cache.Cache,
) *RobotsFetcher {
	return &RobotsFetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  userAgent,
		cache:      cache,
	}
}

// NewRobotsFetcherWithClient creates a new RobotsFetcher with a custom HTTP
// client. The cache parameter is optional - if nil, no caching is performed.
func NewRobotsFetcherWithClient(
	metadataSink metadata.MetadataSink,
	userAgent string,
	httpClient *http.Client,
	cache cache.Cache,
) *RobotsFetcher {
	return &RobotsFetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		cache:      cache,
	}
}

func cacheKey(scheme, hostname string) string {
	return fmt.Sprintf("%s://%s/robots.txt", scheme, hostname)
}

// Fetch retrieves the robots.txt file from the given host. The scheme
// (http/https) must be provided to construct the URL. If a cache is
// configured, it is checked first and populated after a successful fetch.
func (f *RobotsFetcher) Fetch(ctx context.Context, scheme, hostname string) (RobotsFetchResult, *RobotsError) {
	key := cacheKey(scheme, hostname)
	if f.cache != nil {
		if cached, found := f.cache.Get(key); found {
			var result RobotsFetchResult
			if err := json.Unmarshal([]byte(cached), &result); err == nil {
				return result, nil
			}
		}
	}

	start := time.Now()
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, hostname)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCausePreFetchFailure,
		}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain,text/html,*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("failed to fetch robots.txt: %v", err),
			Retryable: true,
			Cause:     ErrCauseHttpFetchFailure,
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("redirect loop or too many redirects for %s", robotsURL),
			Retryable: true,
			Cause:     ErrCauseHttpTooManyRedirects,
		}
	case resp.StatusCode == 429:
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("rate limited (429) when fetching %s", robotsURL),
			Retryable: true,
			Cause:     ErrCauseHttpTooManyRequests,
		}
	case resp.StatusCode >= 500:
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("server error (%d) when fetching %s", resp.StatusCode, robotsURL),
			Retryable: true,
			Cause:     ErrCauseHttpServerError,
		}
	}

	const maxSize = 500 * 1024
	var rawContent string
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		content, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
		if err != nil {
			return RobotsFetchResult{}, &RobotsError{
				Message:   fmt.Sprintf("failed to read robots.txt body: %v", err),
				Retryable: true,
				Cause:     ErrCauseParseError,
			}
		}
		if len(content) > maxSize {
			content = content[:maxSize]
		}
		rawContent = string(content)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// No robots.txt: downstream parsing treats this as allow-all
		// (except 401/403, which robotstxt.FromStatusAndBytes maps to
		// disallow-all).
		rawContent = ""
	default:
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("unexpected status code %d for %s", resp.StatusCode, robotsURL),
			Retryable: true,
			Cause:     ErrCauseHttpUnexpectedStatus,
		}
	}

	result := RobotsFetchResult{
		RawContent:  rawContent,
		FetchedAt:   start,
		SourceURL:   robotsURL,
		HTTPStatus:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}

	if f.cache != nil {
		if encoded, err := json.Marshal(result); err == nil {
			f.cache.Put(key, string(encoded))
		}
	}

	return result, nil
}

func (f *RobotsFetcher) UserAgent() string {
	return f.userAgent
}

func (f *RobotsFetcher) HttpClient() *http.Client {
	return f.httpClient
}

func (f *RobotsFetcher) Cache() cache.Cache {
	return f.cache
}
