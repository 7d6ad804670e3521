package urlutil

import (
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Canonicalize applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Path is cleaned (trailing slashes removed, except for root "/")
//   - Fragments are removed
//   - Query parameters are removed
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	// Lowercase scheme and host
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Clean the path: remove trailing slashes (except root)
	if len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	// Remove query parameters
	canonical.RawQuery = ""
	canonical.ForceQuery = false

	return canonical
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}

// Resolve turns a possibly-relative URL discovered on a page into an
// absolute URL, using scheme/host as the base when the discovered URL
// carries neither.
func Resolve(discovered url.URL, scheme, host string) url.URL {
	resolved := discovered
	if resolved.Scheme == "" {
		resolved.Scheme = scheme
	}
	if resolved.Host == "" {
		resolved.Host = host
	}
	return resolved
}

// FilterByHost keeps only the URLs whose host matches the given host,
// case-insensitively.
func FilterByHost(host string, urls []url.URL) []url.URL {
	want := lowerASCII(host)
	kept := make([]url.URL, 0, len(urls))
	for _, u := range urls {
		if lowerASCII(u.Host) == want {
			kept = append(kept, u)
		}
	}
	return kept
}

// PatternSet compiles include/exclude glob patterns once and evaluates them
// against URL paths. A single "*" does not cross a "/" boundary; "**"
// matches across path segments, following gobwas/glob's separator semantics.
type PatternSet struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewPatternSet compiles the given include/exclude glob patterns. A pattern
// that fails to compile is skipped rather than treated as a fatal error,
// since pattern lists arrive from user-supplied CLI/config input.
func NewPatternSet(includePatterns, excludePatterns []string) PatternSet {
	return PatternSet{
		include: compileAll(includePatterns),
		exclude: compileAll(excludePatterns),
	}
}

func compileAll(patterns []string) []glob.Glob {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		compiled = append(compiled, g)
	}
	return compiled
}

// Admit reports whether path is admitted by the pattern set: it must match
// at least one include pattern (when any are configured) and must not match
// any exclude pattern.
func (p PatternSet) Admit(path string) bool {
	for _, g := range p.exclude {
		if g.Match(path) {
			return false
		}
	}
	if len(p.include) == 0 {
		return true
	}
	for _, g := range p.include {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// SafeFilename derives a filesystem-safe, content-addressed filename stem
// for a canonical URL: a short human-readable slug from the path, followed
// by a hex stem derived from hashing the full canonical URL. The hash
// guarantees uniqueness independent of path length or exotic characters.
func SafeFilename(canonicalURL string, urlHashHex string) string {
	slug := slugify(canonicalURL)
	if slug == "" {
		return urlHashHex
	}
	return slug + "-" + urlHashHex
}

func slugify(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	var b strings.Builder
	for _, r := range lowerASCII(last) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return slug
}
