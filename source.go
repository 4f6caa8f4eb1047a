package librarian

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SourceKind discriminates the two source variants.
type SourceKind string

// Source kinds.
const (
	SourceGitHub SourceKind = "github"
	SourceWeb    SourceKind = "web"
)

// IngestMode selects what a GitHub source ingests.
type IngestMode string

// Ingest modes. ModeDocs keeps only markdown files containing code
// snippets under the docs path; ModeRepo ingests every text file.
const (
	ModeDocs IngestMode = "docs"
	ModeRepo IngestMode = "repo"
)

// Source is a library registration tracked in the index database.
// Kind-specific fields are populated for exactly one variant.
type Source struct {
	ID   int64      `json:"id"`
	Kind SourceKind `json:"kind"`
	Name string     `json:"name"`

	// Pointer to the per-library database file.
	DBPath string `json:"dbPath"`

	// Last-sync bookkeeping, updated after each ingest.
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
	LastCommit string     `json:"lastCommit,omitempty"`
	LastEtag   string     `json:"lastEtag,omitempty"`
	LastError  string     `json:"lastError,omitempty"`

	// GitHub variant.
	Owner        string     `json:"owner,omitempty"`
	Repo         string     `json:"repo,omitempty"`
	Ref          string     `json:"ref,omitempty"`
	DocsPath     string     `json:"docsPath,omitempty"`
	IngestMode   IngestMode `json:"ingestMode,omitempty"`
	VersionLabel string     `json:"versionLabel,omitempty"`

	// Web variant.
	RootURL      string   `json:"rootUrl,omitempty"`
	AllowedPaths []string `json:"allowedPaths,omitempty"`
	DeniedPaths  []string `json:"deniedPaths,omitempty"`
	MaxDepth     int      `json:"maxDepth,omitempty"`
	MaxPages     int      `json:"maxPages,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate returns an error if the source contains invalid fields.
func (s *Source) Validate() error {
	switch s.Kind {
	case SourceGitHub:
		if s.Owner == "" || s.Repo == "" {
			return Errorf(EINVALID, "github source requires owner and repo")
		}
	case SourceWeb:
		if s.RootURL == "" {
			return Errorf(EINVALID, "web source requires a root URL")
		}
		u, err := url.Parse(s.RootURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Errorf(EINVALID, "invalid root URL %q", s.RootURL)
		}
	default:
		return Errorf(EINVALID, "unknown source kind %q", s.Kind)
	}
	if s.Name == "" {
		return Errorf(EINVALID, "source name required")
	}
	return nil
}

// Library returns the human identifier used to address the source:
// owner/repo for GitHub sources, the name otherwise.
func (s *Source) Library() string {
	if s.Kind == SourceGitHub && s.Owner != "" {
		return s.Owner + "/" + s.Repo
	}
	return s.Name
}

// DBFileName derives a stable library database filename from the
// source identity and id, so renames do not orphan the file.
func (s *Source) DBFileName() string {
	base := s.Name
	if s.Kind == SourceGitHub {
		base = s.Owner + "-" + s.Repo
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, base)
	return fmt.Sprintf("%s-%d.db", base, s.ID)
}

// DocumentURI builds the canonical URI for a document path inside this
// source: gh://owner/repo@label/relpath for GitHub sources, the root
// URL for web sources (path and label are not used).
func (s *Source) DocumentURI(path, label string) string {
	if s.Kind == SourceGitHub {
		return fmt.Sprintf("gh://%s/%s@%s/%s", s.Owner, s.Repo, label, path)
	}
	return s.RootURL
}

// SourceVersion records the last sync outcome for one
// (source, version label) pair. One row per label, replaced on each
// successful sync.
type SourceVersion struct {
	ID        int64     `json:"id"`
	SourceID  int64     `json:"sourceId"`
	Label     string    `json:"label"`
	Ref       string    `json:"ref,omitempty"`
	CommitSHA string    `json:"commitSha,omitempty"`
	TreeHash  string    `json:"treeHash,omitempty"`
	Etag      string    `json:"etag,omitempty"`
	SyncedAt  time.Time `json:"syncedAt"`
}

// SourceFilter represents a filter for FindSources.
type SourceFilter struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
	Kind *SourceKind
}

// SourceUpdate holds the mutable bookkeeping fields of a source.
type SourceUpdate struct {
	LastSyncAt *time.Time
	LastCommit *string
	LastEtag   *string
	LastError  *string
}

// SourceService manages sources and their version records in the
// index database.
type SourceService interface {
	// CreateSource registers a new source and assigns its ID and
	// library database path.
	CreateSource(ctx context.Context, source *Source) error

	// FindSourceByID retrieves a source by ID.
	// Returns ENOTFOUND if the source does not exist.
	FindSourceByID(ctx context.Context, id int64) (*Source, error)

	// FindSources retrieves sources matching the filter.
	FindSources(ctx context.Context, filter SourceFilter) ([]*Source, error)

	// FindSourceByLibrary resolves a library identifier (owner/repo or
	// name) to a source. Returns ENOTFOUND if no source matches.
	FindSourceByLibrary(ctx context.Context, library string) (*Source, error)

	// UpdateSource applies bookkeeping updates after an ingest.
	UpdateSource(ctx context.Context, id int64, upd SourceUpdate) error

	// DeleteSource removes a source and its version records. The
	// library database file is the caller's responsibility.
	DeleteSource(ctx context.Context, id int64) error

	// UpsertSourceVersion replaces the version row for
	// (source, label).
	UpsertSourceVersion(ctx context.Context, v *SourceVersion) error

	// FindSourceVersions lists version rows for a source.
	FindSourceVersions(ctx context.Context, sourceID int64) ([]*SourceVersion, error)
}
