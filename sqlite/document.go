package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iannuttall/librarian"
)

// Compile-time interface verification.
var _ librarian.DocumentService = (*DocumentService)(nil)

// DocumentService implements librarian.DocumentService on a library
// database.
type DocumentService struct {
	db *DB
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(db *DB) *DocumentService {
	return &DocumentService{db: db}
}

// UpsertDocument inserts the blob if unseen, then creates or updates
// the document row for (source, path, label). The row is always
// reactivated; Changed reports whether the stored content hash
// differs from the new one.
func (s *DocumentService) UpsertDocument(ctx context.Context, doc *librarian.Document, content string) (*librarian.UpsertResult, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	doc.Hash = librarian.HashContent(content)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO document_blobs (hash, content) VALUES (?, ?) ON CONFLICT(hash) DO NOTHING",
		doc.Hash, content); err != nil {
		return nil, err
	}

	var existingID int64
	var existingHash string
	err = tx.QueryRowContext(ctx, `
		SELECT id, hash FROM documents
		WHERE source_id = ? AND path = ? AND version_label = ?
	`, doc.SourceID, doc.Path, doc.VersionLabel).Scan(&existingID, &existingHash)

	changed := true
	switch {
	case err == sql.ErrNoRows:
		doc.CreatedAt = now
		doc.UpdatedAt = now
		doc.Active = true
		res, err := tx.ExecContext(ctx, `
			INSERT INTO documents (source_id, path, version_label, uri, title, hash, content_type, active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, doc.SourceID, doc.Path, doc.VersionLabel, doc.URI, doc.Title, doc.Hash, doc.ContentType,
			now.Format(time.RFC3339), now.Format(time.RFC3339))
		if err != nil {
			return nil, err
		}
		if doc.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}

	case err != nil:
		return nil, err

	default:
		changed = existingHash != doc.Hash
		doc.ID = existingID
		doc.UpdatedAt = now
		doc.Active = true
		if _, err := tx.ExecContext(ctx, `
			UPDATE documents SET uri = ?, title = ?, hash = ?, content_type = ?, active = 1, updated_at = ?
			WHERE id = ?
		`, doc.URI, doc.Title, doc.Hash, doc.ContentType, now.Format(time.RFC3339), existingID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &librarian.UpsertResult{Doc: doc, Changed: changed}, nil
}

// FindDocumentByID retrieves a document by ID.
func (s *DocumentService) FindDocumentByID(ctx context.Context, id int64) (*librarian.Document, error) {
	docs, err := s.FindDocuments(ctx, librarian.DocumentFilter{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, librarian.Errorf(librarian.ENOTFOUND, "document not found")
	}
	return docs[0], nil
}

// FindDocuments retrieves documents matching the filter.
func (s *DocumentService) FindDocuments(ctx context.Context, filter librarian.DocumentFilter) ([]*librarian.Document, error) {
	var query strings.Builder
	var args []any

	query.WriteString(`
		SELECT id, source_id, path, version_label, uri, title, hash, content_type, active, created_at, updated_at
		FROM documents WHERE 1=1`)

	if filter.ID != nil {
		query.WriteString(" AND id = ?")
		args = append(args, *filter.ID)
	}
	if filter.Path != nil {
		query.WriteString(" AND path = ?")
		args = append(args, *filter.Path)
	}
	if filter.URI != nil {
		query.WriteString(" AND uri = ?")
		args = append(args, *filter.URI)
	}
	if filter.VersionLabel != nil {
		query.WriteString(" AND version_label = ?")
		args = append(args, *filter.VersionLabel)
	}
	if filter.Active != nil {
		query.WriteString(" AND active = ?")
		args = append(args, boolToInt(*filter.Active))
	}
	query.WriteString(" ORDER BY path ASC, version_label ASC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*librarian.Document
	for rows.Next() {
		var doc librarian.Document
		var active int
		var createdAt, updatedAt string
		if err := rows.Scan(&doc.ID, &doc.SourceID, &doc.Path, &doc.VersionLabel, &doc.URI,
			&doc.Title, &doc.Hash, &doc.ContentType, &active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		doc.Active = active != 0
		if doc.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
			return nil, err
		}
		if doc.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DocumentContent returns the blob content for a document.
func (s *DocumentService) DocumentContent(ctx context.Context, id int64) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx, `
		SELECT b.content FROM documents d
		JOIN document_blobs b ON b.hash = d.hash
		WHERE d.id = ?
	`, id).Scan(&content)
	if err == sql.ErrNoRows {
		return "", librarian.Errorf(librarian.ENOTFOUND, "document not found")
	}
	return content, err
}

// DeactivateMissing flips active off for documents of the label whose
// paths were not seen in the latest sync.
func (s *DocumentService) DeactivateMissing(ctx context.Context, label string, seen map[string]struct{}) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path FROM documents WHERE version_label = ? AND active = 1", label)
	if err != nil {
		return 0, err
	}

	var stale []int64
	for rows.Next() {
		var id int64
		var path string
		if err := rows.Scan(&id, &path); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := seen[path]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, id := range stale {
		if _, err := s.db.ExecContext(ctx,
			"UPDATE documents SET active = 0, updated_at = ? WHERE id = ?", now, id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// CleanupInactive deletes inactive documents (chunks and vectors
// cascade) and garbage-collects unreferenced blobs.
func (s *DocumentService) CleanupInactive(ctx context.Context) (docs, blobs int64, err error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE active = 0")
	if err != nil {
		return 0, 0, err
	}
	if docs, err = res.RowsAffected(); err != nil {
		return 0, 0, err
	}

	res, err = tx.ExecContext(ctx, `
		DELETE FROM document_blobs
		WHERE hash NOT IN (SELECT DISTINCT hash FROM documents)`)
	if err != nil {
		return 0, 0, err
	}
	if blobs, err = res.RowsAffected(); err != nil {
		return 0, 0, err
	}

	return docs, blobs, tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
