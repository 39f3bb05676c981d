package crawler

import (
	"net/url"
	"strings"
)

// defaultAllowedSuffixes is the default suffix allow-list applied to the
// lowercased path portion of a candidate URL.
var defaultAllowedSuffixes = []string{"/", ".jsp", ".htm", ".html"}

// ScopePolicy decides whether a URL is eligible to be crawled: it must
// start with one of the two configured base URLs, its path must end with
// an allowed suffix, it must not already be visited, and it must not
// match a blocked pattern.
type ScopePolicy struct {
	BaseURL         string
	BaseURLSecure   string
	AllowedSuffixes []string
	Blocked         []string
}

// NewScopePolicy creates a ScopePolicy seeded with the default allowed
// suffixes ("/", ".jsp", ".htm", ".html").
func NewScopePolicy(baseURL, baseURLSecure string) *ScopePolicy {
	return &ScopePolicy{
		BaseURL:         baseURL,
		BaseURLSecure:   baseURLSecure,
		AllowedSuffixes: append([]string(nil), defaultAllowedSuffixes...),
	}
}

// IsExcluded implements the scope filter of spec §4.6: a URL is excluded
// if it falls outside both base URLs, its path doesn't carry an allowed
// suffix, it has already been dispatched (raw or cleaned form), or it
// matches a blocked pattern. Order of evaluation is only observable via
// logging; the semantics are a set union.
func (s *ScopePolicy) IsExcluded(u string, visited *visitedSet) bool {
	startsBase := strings.HasPrefix(u, s.BaseURL)
	startsSecure := s.BaseURLSecure != "" && strings.HasPrefix(u, s.BaseURLSecure)
	if !startsBase && !startsSecure {
		return true
	}
	if !pathHasAllowedSuffix(u, s.AllowedSuffixes) {
		return true
	}
	cleaned := cleanURL(u)
	if visited != nil && visited.Seen(u, cleaned) {
		return true
	}
	for _, pattern := range s.Blocked {
		if pattern != "" && strings.Contains(u, pattern) {
			return true
		}
	}
	return false
}

// pathHasAllowedSuffix reports whether the lowercased path portion of u
// (the part before any "?") ends with one of the given suffixes.
func pathHasAllowedSuffix(u string, suffixes []string) bool {
	path := u
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.ToLower(path)
	for _, suffix := range suffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// cleanURL reduces a URL to its host+path form, discarding scheme, port
// and query. It is used as the secondary dedup key so that http/https and
// query-only variants collapse onto the same visited entry.
func cleanURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return parsed.Hostname() + parsed.Path
}

// prependBaseURLIfNeeded promotes a relative path input to an absolute
// URL by prepending baseURL, ensuring a leading slash. A URL whose scheme
// marker "://" is already present is returned verbatim.
func prependBaseURLIfNeeded(raw, baseURL string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return baseURL + raw
	}
	return baseURL + "/" + raw
}
