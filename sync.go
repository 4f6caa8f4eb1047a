package librarian

import "context"

// SyncStatus is the outcome of an archive sync.
type SyncStatus string

// Sync outcomes.
const (
	SyncOK          SyncStatus = "ok"
	SyncNotModified SyncStatus = "not-modified"
)

// LoadedFile is one text file emitted by an archive sync from under
// the configured base path.
type LoadedFile struct {
	// Path is the repository-relative path.
	Path string

	// Content is the UTF-8 file text.
	Content string

	// Hash is the SHA-256 hex of Content.
	Hash string

	// Language is the detected language name, empty when unknown.
	Language string
}

// SkippedFile records a file the sync refused to load.
type SkippedFile struct {
	Path   string
	Reason string
}

// SyncRequest describes one archive sync.
type SyncRequest struct {
	Owner string
	Repo  string

	// Ref is a branch, tag or commit SHA; empty means HEAD.
	Ref string

	// PrevSHA and PrevEtag enable change detection against the last
	// successful sync.
	PrevSHA  string
	PrevEtag string

	// Force ignores change detection and always loads files.
	Force bool

	// BasePath restricts the walk to a subdirectory of the repo.
	BasePath string
}

// SyncResult is the outcome of an archive sync. Files is only
// populated when no streaming callback was supplied.
type SyncResult struct {
	Status    SyncStatus
	CommitSHA string
	Etag      string

	// Tree is a printable listing of the loaded paths.
	Tree string

	Files   []LoadedFile
	Skipped []SkippedFile
}

// SyncEmitFunc receives loaded files one at a time. Returning an
// error aborts the sync.
type SyncEmitFunc func(LoadedFile) error

// ArchiveSyncer downloads a repository archive for a ref, filters and
// loads its text files, and detects unchanged syncs via commit SHA
// and entity tag.
type ArchiveSyncer interface {
	// Sync runs one archive sync. When emit is non-nil, files are
	// streamed through it and not accumulated on the result.
	Sync(ctx context.Context, req SyncRequest, emit SyncEmitFunc) (*SyncResult, error)
}

// RepoHost answers repository metadata questions needed by the
// version planner.
type RepoHost interface {
	// ListTags returns the repository's tag names, newest first.
	ListTags(ctx context.Context, owner, repo string) ([]string, error)

	// DefaultBranch returns the repository's default branch.
	DefaultBranch(ctx context.Context, owner, repo string) (string, error)
}
