package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/iannuttall/librarian"
)

// Compile-time interface verification.
var _ librarian.RepoHost = (*Syncer)(nil)

// repoMetadata is the subset of the repository response the planner
// needs.
type repoMetadata struct {
	DefaultBranch string `json:"default_branch"`
}

// tagEntry is one element of the tags listing.
type tagEntry struct {
	Name string `json:"name"`
}

// DefaultBranch returns the repository's default branch.
func (s *Syncer) DefaultBranch(ctx context.Context, owner, repo string) (string, error) {
	var meta repoMetadata
	url := fmt.Sprintf("%s/repos/%s/%s", s.APIBaseURL, owner, repo)
	if err := s.getJSON(ctx, url, &meta); err != nil {
		return "", err
	}
	if meta.DefaultBranch == "" {
		meta.DefaultBranch = "main"
	}
	return meta.DefaultBranch, nil
}

// ListTags returns the repository's tag names, newest first, across
// up to three pages.
func (s *Syncer) ListTags(ctx context.Context, owner, repo string) ([]string, error) {
	var tags []string
	for page := 1; page <= 3; page++ {
		url := fmt.Sprintf("%s/repos/%s/%s/tags?per_page=100&page=%d", s.APIBaseURL, owner, repo, page)
		var entries []tagEntry
		if err := s.getJSON(ctx, url, &entries); err != nil {
			if page == 1 {
				return nil, err
			}
			break
		}
		for _, e := range entries {
			tags = append(tags, e.Name)
		}
		if len(entries) < 100 {
			break
		}
	}
	return tags, nil
}

// getJSON issues an authenticated API GET and decodes the response.
func (s *Syncer) getJSON(ctx context.Context, url string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return librarian.Errorf(librarian.EUNAUTHORIZED, "github token invalid or expired")
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("x-ratelimit-remaining") == "0":
		return librarian.Errorf(librarian.ERATELIMITED,
			"github rate limit exceeded; configure github.token to raise the limit")
	case resp.StatusCode == http.StatusNotFound:
		return librarian.Errorf(librarian.ENOTFOUND, "not found: %s", url)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected HTTP %d for %s", resp.StatusCode, url)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}
