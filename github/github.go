// Package github downloads repository snapshots as zip archives,
// extracts them with path sanitization, filters out binary and build
// artifacts, and emits a stream of loaded text files. Change
// detection uses the commit SHA and HTTP entity tags so unchanged
// repositories cost one conditional request.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/iannuttall/librarian"
)

// Defaults for the sync transport.
const (
	// DefaultTimeout aborts a single archive request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxArchiveBytes caps the downloaded archive size.
	DefaultMaxArchiveBytes = 500 << 20

	// DefaultMaxFileBytes caps a single extracted file.
	DefaultMaxFileBytes = 5 << 20
)

// Compile-time interface verification.
var _ librarian.ArchiveSyncer = (*Syncer)(nil)

// Syncer implements librarian.ArchiveSyncer against the GitHub API
// with web-archive fallbacks.
type Syncer struct {
	client *http.Client

	// Token authenticates API requests when set.
	Token string

	// APIBaseURL and ArchiveBaseURL are overridable for tests.
	APIBaseURL     string
	ArchiveBaseURL string

	// MaxArchiveBytes and MaxFileBytes bound downloads.
	MaxArchiveBytes int64
	MaxFileBytes    int64

	// RetryDelay spaces attempts across candidate URLs.
	RetryDelay time.Duration
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithToken sets the bearer token for API requests.
func WithToken(token string) Option {
	return func(s *Syncer) { s.Token = token }
}

// WithHTTPClient replaces the HTTP client (e.g. to add a proxy).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Syncer) { s.client = client }
}

// WithBaseURLs points the syncer at alternative API and archive
// hosts.
func WithBaseURLs(api, archive string) Option {
	return func(s *Syncer) {
		s.APIBaseURL = api
		s.ArchiveBaseURL = archive
	}
}

// NewSyncer creates a Syncer with production defaults.
func NewSyncer(opts ...Option) *Syncer {
	s := &Syncer{
		APIBaseURL:      "https://api.github.com",
		ArchiveBaseURL:  "https://github.com",
		MaxArchiveBytes: DefaultMaxArchiveBytes,
		MaxFileBytes:    DefaultMaxFileBytes,
		RetryDelay:      500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: DefaultTimeout}
	}
	return s
}

// shaRe matches a full or abbreviated commit SHA.
var shaRe = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// candidateURLs builds the ordered zipball URL list: the API endpoint
// first, then web-archive fallbacks by ref shape.
func (s *Syncer) candidateURLs(owner, repo, ref string) []string {
	apiRef := ref
	if apiRef == "" {
		apiRef = "HEAD"
	}
	urls := []string{
		fmt.Sprintf("%s/repos/%s/%s/zipball/%s", s.APIBaseURL, owner, repo, apiRef),
	}
	base := fmt.Sprintf("%s/%s/%s/archive", s.ArchiveBaseURL, owner, repo)
	switch {
	case ref == "":
		urls = append(urls, base+"/HEAD.zip")
	case shaRe.MatchString(ref):
		urls = append(urls, fmt.Sprintf("%s/%s.zip", base, ref))
	default:
		urls = append(urls,
			fmt.Sprintf("%s/refs/heads/%s.zip", base, ref),
			fmt.Sprintf("%s/refs/tags/%s.zip", base, ref),
			base+"/HEAD.zip")
	}
	return urls
}

// Sync downloads the archive for the requested ref, short-circuits on
// unchanged content, extracts and filters the tree, and emits loaded
// files.
func (s *Syncer) Sync(ctx context.Context, req librarian.SyncRequest, emit librarian.SyncEmitFunc) (*librarian.SyncResult, error) {
	if req.Owner == "" || req.Repo == "" {
		return nil, librarian.Errorf(librarian.EINVALID, "sync requires owner and repo")
	}

	archive, err := s.download(ctx, req)
	if err != nil {
		return nil, err
	}
	if archive.notModified {
		return &librarian.SyncResult{
			Status:    librarian.SyncNotModified,
			CommitSHA: req.PrevSHA,
			Etag:      req.PrevEtag,
		}, nil
	}

	dir, topDir, cleanup, err := extractArchive(archive.data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	sha := recoverSHA(archive.headerSHA, topDir, archive.finalURL, req.PrevSHA)
	if sha != "" && sha == req.PrevSHA && !req.Force {
		return &librarian.SyncResult{
			Status:    librarian.SyncNotModified,
			CommitSHA: sha,
			Etag:      archive.etag,
		}, nil
	}

	result := &librarian.SyncResult{
		Status:    librarian.SyncOK,
		CommitSHA: sha,
		Etag:      archive.etag,
	}
	if err := s.loadFiles(dir, req.BasePath, result, emit); err != nil {
		return nil, err
	}
	return result, nil
}

// downloadResult carries one fetched archive.
type downloadResult struct {
	data        []byte
	etag        string
	headerSHA   string
	finalURL    string
	notModified bool
}

// download walks the candidate URLs until one succeeds, mapping HTTP
// statuses to the failure policy: 304 short-circuits, auth errors
// stop immediately, transient errors fall through to the next
// candidate after a short delay.
func (s *Syncer) download(ctx context.Context, req librarian.SyncRequest) (*downloadResult, error) {
	var lastErr error
	for i, url := range s.candidateURLs(req.Owner, req.Repo, req.Ref) {
		if i > 0 && s.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.RetryDelay):
			}
		}

		res, err := s.fetchArchive(ctx, url, req)
		if err == nil {
			return res, nil
		}
		switch librarian.ErrorCode(err) {
		case librarian.EUNAUTHORIZED, librarian.ERATELIMITED:
			return nil, err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = librarian.Errorf(librarian.EUNAVAILABLE, "no archive candidates for %s/%s", req.Owner, req.Repo)
	}
	return nil, lastErr
}

// fetchArchive issues one conditional GET and interprets the status.
func (s *Syncer) fetchArchive(ctx context.Context, url string, req librarian.SyncRequest) (*downloadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/vnd.github+json")
	if s.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.Token)
	}
	if req.PrevEtag != "" && !req.Force {
		httpReq.Header.Set("If-None-Match", req.PrevEtag)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return &downloadResult{notModified: true}, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, librarian.Errorf(librarian.EUNAUTHORIZED, "github token invalid or expired")
	case resp.StatusCode == http.StatusForbidden:
		if resp.Header.Get("x-ratelimit-remaining") == "0" {
			return nil, librarian.Errorf(librarian.ERATELIMITED,
				"github rate limit exceeded; configure github.token to raise the limit")
		}
		return nil, librarian.Errorf(librarian.EUNAUTHORIZED, "access denied for %s/%s", req.Owner, req.Repo)
	case resp.StatusCode == http.StatusNotFound:
		return nil, librarian.Errorf(librarian.ENOTFOUND, "repository or ref not found: %s/%s@%s", req.Owner, req.Repo, req.Ref)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, librarian.Errorf(librarian.EUNAVAILABLE, "github returned HTTP %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected HTTP %d for %s", resp.StatusCode, url)
	}

	if resp.ContentLength > s.MaxArchiveBytes {
		return nil, librarian.Errorf(librarian.EINVALID,
			"archive exceeds size limit (%d > %d bytes)", resp.ContentLength, s.MaxArchiveBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.MaxArchiveBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.MaxArchiveBytes {
		return nil, librarian.Errorf(librarian.EINVALID,
			"archive exceeds size limit (%d bytes)", s.MaxArchiveBytes)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &downloadResult{
		data:      data,
		etag:      resp.Header.Get("Etag"),
		headerSHA: resp.Header.Get("x-github-sha"),
		finalURL:  finalURL,
	}, nil
}

// recoverSHA resolves the commit SHA in preference order: response
// header, trailing hex in the top-level directory name, hex in the
// URL tail, previously known SHA.
func recoverSHA(headerSHA, topDir, url, prev string) string {
	if shaRe.MatchString(headerSHA) {
		return headerSHA
	}
	if idx := strings.LastIndexByte(topDir, '-'); idx >= 0 {
		if tail := topDir[idx+1:]; shaRe.MatchString(tail) {
			return tail
		}
	}
	tail := url
	if idx := strings.LastIndexByte(tail, '/'); idx >= 0 {
		tail = tail[idx+1:]
	}
	tail = strings.TrimSuffix(tail, ".zip")
	if shaRe.MatchString(tail) {
		return tail
	}
	return prev
}
