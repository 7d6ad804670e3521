package fetcher

import (
	"net/url"
	"time"
)

// HTTP boundary

type FetchParam struct {
	fetchUrl        url.URL
	userAgent       string
	ifNoneMatch     string
	ifModifiedSince string
}

func NewFetchParam(fetchUrl url.URL, userAgent string) FetchParam {
	return FetchParam{
		fetchUrl:  fetchUrl,
		userAgent: userAgent,
	}
}

// NewConditionalFetchParam builds a FetchParam that attaches the
// If-None-Match / If-Modified-Since validators a prior catalogue record
// produced, so an unchanged page comes back as 304 instead of a full body.
// Either validator may be empty.
func NewConditionalFetchParam(fetchUrl url.URL, userAgent string, ifNoneMatch string, ifModifiedSince string) FetchParam {
	return FetchParam{
		fetchUrl:        fetchUrl,
		userAgent:       userAgent,
		ifNoneMatch:     ifNoneMatch,
		ifModifiedSince: ifModifiedSince,
	}
}

type FetchResult struct {
	url          url.URL
	body         []byte
	meta         ResponseMeta
	fetchedAt    time.Time
	notModified  bool
}

// NotModified reports whether the server answered 304, meaning the prior
// catalogue record's body is still current and no rewrite is needed.
func (f *FetchResult) NotModified() bool {
	return f.notModified
}

func (f *FetchResult) URL() url.URL {
	return f.url
}

func (f *FetchResult) Body() []byte {
	return f.body
}

func (f *FetchResult) Code() int {
	return f.meta.statusCode
}

func (f *FetchResult) SizeByte() uint64 {
	return uint64(len(f.body))
}

func (f *FetchResult) Headers() map[string]string {
	return f.meta.responseHeaders
}

func (f *FetchResult) FetchedAt() time.Time {
	return f.fetchedAt
}

type ResponseMeta struct {
	statusCode      int
	responseHeaders map[string]string
}

// NewFetchResultForTest creates a FetchResult for testing purposes.
// This allows test packages to construct FetchResult values without
// accessing unexported fields directly.
func NewFetchResultForTest(
	url url.URL,
	body []byte,
	statusCode int,
	contentType string,
	responseHeaders map[string]string,
	fetchedAt time.Time,
) FetchResult {
	return FetchResult{
		url:       url,
		body:      body,
		fetchedAt: fetchedAt,
		meta: ResponseMeta{
			statusCode:      statusCode,
			responseHeaders: responseHeaders,
		},
	}
}

// NewNotModifiedResultForTest creates a 304 FetchResult for testing.
func NewNotModifiedResultForTest(url url.URL, responseHeaders map[string]string, fetchedAt time.Time) FetchResult {
	return FetchResult{
		url:         url,
		fetchedAt:   fetchedAt,
		notModified: true,
		meta: ResponseMeta{
			statusCode:      304,
			responseHeaders: responseHeaders,
		},
	}
}
