package librarian

import (
	"net/url"
	"strings"
)

// MaxURLLength bounds URLs accepted during discovery and crawling.
const MaxURLLength = 255

// NormalizeURL canonicalizes a URL for crawl-queue deduplication:
// host lowercased, double slashes in the path collapsed, trailing
// slash stripped, a trailing ".md" stripped, fragment dropped, scheme
// and query preserved. Normalization is idempotent. Invalid URLs are
// returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	path := u.EscapedPath()
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, ".md")
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return raw
	}
	u.Path = unescaped
	u.RawPath = path

	return u.String()
}

// ScopeRules decides whether a candidate URL belongs to a web
// source's crawl.
type ScopeRules struct {
	RootHost        string
	RootPath        string
	AllowSubdomains bool
	AllowedPaths    []string
	DeniedPaths     []string
}

// NewScopeRules builds scope rules from a web source's root URL and
// path lists.
func NewScopeRules(source *Source) (*ScopeRules, error) {
	u, err := url.Parse(source.RootURL)
	if err != nil {
		return nil, Errorf(EINVALID, "invalid root URL %q", source.RootURL)
	}
	return &ScopeRules{
		RootHost:     strings.ToLower(u.Host),
		RootPath:     u.Path,
		AllowedPaths: source.AllowedPaths,
		DeniedPaths:  source.DeniedPaths,
	}, nil
}

// InScope reports whether a candidate URL may be crawled: http(s)
// scheme, same host (or subdomain when allowed), path under at least
// one allowed prefix (when any are set) and under none of the denied
// prefixes.
func (r *ScopeRules) InScope(raw string) bool {
	if len(raw) > MaxURLLength {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Host)
	if host != r.RootHost {
		if !r.AllowSubdomains || !strings.HasSuffix(host, "."+r.RootHost) {
			return false
		}
	}
	if len(r.AllowedPaths) > 0 {
		allowed := false
		for _, p := range r.AllowedPaths {
			if strings.HasPrefix(u.Path, p) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	for _, p := range r.DeniedPaths {
		if p != "" && strings.HasPrefix(u.Path, p) {
			return false
		}
	}
	return true
}

// UnderRootPath reports whether the URL's path sits under the scope's
// root path, respecting path boundaries.
func (r *ScopeRules) UnderRootPath(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	prefix := r.RootPath
	if prefix == "" || prefix == "/" {
		return true
	}
	if u.Path == prefix || u.Path == strings.TrimSuffix(prefix, "/") {
		return true
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(u.Path, prefix)
}

// PathFromURL derives the synthetic document path for a crawled page:
// host plus path with a ".md" suffix.
func PathFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		path = "index"
	}
	return strings.ToLower(u.Host) + "/" + path + ".md"
}
