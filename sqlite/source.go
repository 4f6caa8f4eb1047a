package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iannuttall/librarian"
)

// Compile-time interface verification.
var _ librarian.SourceService = (*SourceService)(nil)

// SourceService implements librarian.SourceService on the index
// database.
type SourceService struct {
	db *DB

	// LibraryDir is where library database files are created. The
	// db_path of a new source is derived from it.
	LibraryDir string
}

// NewSourceService creates a new SourceService.
func NewSourceService(db *DB, libraryDir string) *SourceService {
	return &SourceService{db: db, LibraryDir: libraryDir}
}

// CreateSource registers a new source and derives its library
// database path from the assigned ID.
func (s *SourceService) CreateSource(ctx context.Context, source *librarian.Source) error {
	if err := source.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now
	if source.Kind == librarian.SourceGitHub && source.IngestMode == "" {
		source.IngestMode = librarian.ModeDocs
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (
			kind, name, db_path, last_commit, last_etag, last_error,
			owner, repo, ref, docs_path, ingest_mode, version_label,
			root_url, allowed_paths, denied_paths, max_depth, max_pages,
			created_at, updated_at
		) VALUES (?, ?, '', '', '', '', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, source.Kind, source.Name,
		source.Owner, source.Repo, source.Ref, source.DocsPath, source.IngestMode, source.VersionLabel,
		source.RootURL, joinPaths(source.AllowedPaths), joinPaths(source.DeniedPaths),
		source.MaxDepth, source.MaxPages,
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return err
	}

	source.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	source.DBPath = s.LibraryDir + "/" + source.DBFileName()
	_, err = s.db.ExecContext(ctx, "UPDATE sources SET db_path = ? WHERE id = ?", source.DBPath, source.ID)
	return err
}

// FindSourceByID retrieves a source by ID.
func (s *SourceService) FindSourceByID(ctx context.Context, id int64) (*librarian.Source, error) {
	sources, err := s.FindSources(ctx, librarian.SourceFilter{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, librarian.Errorf(librarian.ENOTFOUND, "source not found")
	}
	return sources[0], nil
}

// FindSourceByLibrary resolves owner/repo or a source name.
func (s *SourceService) FindSourceByLibrary(ctx context.Context, library string) (*librarian.Source, error) {
	if owner, repo, ok := strings.Cut(library, "/"); ok {
		row := s.db.QueryRowContext(ctx,
			selectSources+" WHERE owner = ? AND repo = ?", owner, repo)
		src, err := scanSource(row)
		if err == nil {
			return src, nil
		}
		if librarian.ErrorCode(err) != librarian.ENOTFOUND {
			return nil, err
		}
	}
	row := s.db.QueryRowContext(ctx, selectSources+" WHERE name = ?", library)
	src, err := scanSource(row)
	if err != nil && librarian.ErrorCode(err) == librarian.ENOTFOUND {
		return nil, librarian.Errorf(librarian.ENOTFOUND, "unknown library %q", library)
	}
	return src, err
}

// FindSources retrieves sources matching the filter.
func (s *SourceService) FindSources(ctx context.Context, filter librarian.SourceFilter) ([]*librarian.Source, error) {
	var query strings.Builder
	var args []any

	query.WriteString(selectSources + " WHERE 1=1")
	if filter.ID != nil {
		query.WriteString(" AND id = ?")
		args = append(args, *filter.ID)
	}
	if filter.Name != nil {
		query.WriteString(" AND name = ?")
		args = append(args, *filter.Name)
	}
	if filter.Kind != nil {
		query.WriteString(" AND kind = ?")
		args = append(args, *filter.Kind)
	}
	query.WriteString(" ORDER BY id ASC")

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*librarian.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateSource applies post-ingest bookkeeping.
func (s *SourceService) UpdateSource(ctx context.Context, id int64, upd librarian.SourceUpdate) error {
	var sets []string
	var args []any

	if upd.LastSyncAt != nil {
		sets = append(sets, "last_sync_at = ?")
		args = append(args, upd.LastSyncAt.UTC().Format(time.RFC3339))
	}
	if upd.LastCommit != nil {
		sets = append(sets, "last_commit = ?")
		args = append(args, *upd.LastCommit)
	}
	if upd.LastEtag != nil {
		sets = append(sets, "last_etag = ?")
		args = append(args, *upd.LastEtag)
	}
	if upd.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, *upd.LastError)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC().Format(time.RFC3339))
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE sources SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return librarian.Errorf(librarian.ENOTFOUND, "source not found")
	}
	return nil
}

// DeleteSource removes a source; version rows cascade.
func (s *SourceService) DeleteSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sources WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return librarian.Errorf(librarian.ENOTFOUND, "source not found")
	}
	return nil
}

// UpsertSourceVersion replaces the version row for (source, label).
func (s *SourceService) UpsertSourceVersion(ctx context.Context, v *librarian.SourceVersion) error {
	if v.SourceID == 0 || v.Label == "" {
		return librarian.Errorf(librarian.EINVALID, "source version requires source ID and label")
	}
	if v.SyncedAt.IsZero() {
		v.SyncedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_versions (source_id, label, ref, commit_sha, tree_hash, etag, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, label) DO UPDATE SET
			ref = excluded.ref,
			commit_sha = excluded.commit_sha,
			tree_hash = excluded.tree_hash,
			etag = excluded.etag,
			synced_at = excluded.synced_at
	`, v.SourceID, v.Label, v.Ref, v.CommitSHA, v.TreeHash, v.Etag, v.SyncedAt.UTC().Format(time.RFC3339))
	return err
}

// FindSourceVersions lists version rows for a source.
func (s *SourceService) FindSourceVersions(ctx context.Context, sourceID int64) ([]*librarian.SourceVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, label, ref, commit_sha, tree_hash, etag, synced_at
		FROM source_versions WHERE source_id = ? ORDER BY label ASC
	`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*librarian.SourceVersion
	for rows.Next() {
		var v librarian.SourceVersion
		var syncedAt string
		if err := rows.Scan(&v.ID, &v.SourceID, &v.Label, &v.Ref, &v.CommitSHA, &v.TreeHash, &v.Etag, &syncedAt); err != nil {
			return nil, err
		}
		if v.SyncedAt, err = parseRFC3339(syncedAt, "synced_at"); err != nil {
			return nil, err
		}
		versions = append(versions, &v)
	}
	return versions, rows.Err()
}

const selectSources = `
	SELECT id, kind, name, db_path, last_sync_at, last_commit, last_etag, last_error,
		owner, repo, ref, docs_path, ingest_mode, version_label,
		root_url, allowed_paths, denied_paths, max_depth, max_pages,
		created_at, updated_at
	FROM sources`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*librarian.Source, error) {
	var src librarian.Source
	var lastSyncAt sql.NullString
	var allowed, denied, createdAt, updatedAt string

	err := row.Scan(&src.ID, &src.Kind, &src.Name, &src.DBPath,
		&lastSyncAt, &src.LastCommit, &src.LastEtag, &src.LastError,
		&src.Owner, &src.Repo, &src.Ref, &src.DocsPath, &src.IngestMode, &src.VersionLabel,
		&src.RootURL, &allowed, &denied, &src.MaxDepth, &src.MaxPages,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, librarian.Errorf(librarian.ENOTFOUND, "source not found")
	}
	if err != nil {
		return nil, err
	}

	if lastSyncAt.Valid && lastSyncAt.String != "" {
		t, err := parseRFC3339(lastSyncAt.String, "last_sync_at")
		if err != nil {
			return nil, err
		}
		src.LastSyncAt = &t
	}
	src.AllowedPaths = splitPaths(allowed)
	src.DeniedPaths = splitPaths(denied)
	if src.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if src.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &src, nil
}

func joinPaths(paths []string) string {
	return strings.Join(paths, "\n")
}

func splitPaths(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
