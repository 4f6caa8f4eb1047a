package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/iannuttall/librarian"
)

// Compile-time interface verification.
var _ librarian.CrawlQueue = (*CrawlQueue)(nil)

// CrawlQueue implements librarian.CrawlQueue on a library database.
// Pages are popped by ascending (depth, id), which yields breadth-
// first order with ties broken by insertion order.
type CrawlQueue struct {
	db *DB
}

// NewCrawlQueue creates a new CrawlQueue.
func NewCrawlQueue(db *DB) *CrawlQueue {
	return &CrawlQueue{db: db}
}

// EnqueuePages inserts pages that are not already present, matched by
// normalized URL. Existing rows are never replaced.
func (q *CrawlQueue) EnqueuePages(ctx context.Context, pages []*librarian.CrawlPage) (int, error) {
	if len(pages) == 0 {
		return 0, nil
	}

	tx, err := q.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	inserted := 0
	for _, p := range pages {
		if p.NormalizedURL == "" {
			p.NormalizedURL = librarian.NormalizeURL(p.URL)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO crawl_pages (source_id, url, normalized_url, depth, status, error, created_at, updated_at)
			VALUES (?, ?, ?, ?, 'pending', '', ?, ?)
			ON CONFLICT(source_id, normalized_url) DO NOTHING
		`, p.SourceID, p.URL, p.NormalizedURL, p.Depth, now, now)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	return inserted, tx.Commit()
}

// ClaimNextPage atomically pops the next pending (or failed, when
// retryFailed is set) page and marks it fetching.
func (q *CrawlQueue) ClaimNextPage(ctx context.Context, retryFailed bool) (*librarian.CrawlPage, error) {
	tx, err := q.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	statuses := "('pending')"
	if retryFailed {
		statuses = "('pending', 'failed')"
	}

	var p librarian.CrawlPage
	var status, createdAt, updatedAt string
	err = tx.QueryRowContext(ctx, `
		SELECT id, source_id, url, normalized_url, depth, status, error, created_at, updated_at
		FROM crawl_pages
		WHERE status IN `+statuses+`
		ORDER BY depth ASC, id ASC
		LIMIT 1
	`).Scan(&p.ID, &p.SourceID, &p.URL, &p.NormalizedURL, &p.Depth, &status, &p.Error, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, librarian.Errorf(librarian.ENOTFOUND, "crawl queue drained")
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE crawl_pages SET status = 'fetching', updated_at = ? WHERE id = ?",
		now.Format(time.RFC3339), p.ID); err != nil {
		return nil, err
	}

	p.Status = librarian.CrawlFetching
	if p.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	p.UpdatedAt = now
	return &p, tx.Commit()
}

// CompletePage transitions a fetching page to done or failed.
func (q *CrawlQueue) CompletePage(ctx context.Context, id int64, status librarian.CrawlStatus, pageErr string) error {
	if status != librarian.CrawlDone && status != librarian.CrawlFailed {
		return librarian.Errorf(librarian.EINVALID, "invalid terminal status %q", status)
	}
	res, err := q.db.ExecContext(ctx, `
		UPDATE crawl_pages SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = 'fetching'
	`, status, pageErr, time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return librarian.Errorf(librarian.ECONFLICT, "page %d is not being fetched", id)
	}
	return nil
}

// CountPages returns per-status totals.
func (q *CrawlQueue) CountPages(ctx context.Context) (map[librarian.CrawlStatus]int64, error) {
	rows, err := q.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM crawl_pages GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[librarian.CrawlStatus]int64)
	for rows.Next() {
		var status librarian.CrawlStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// RequeueFailed returns failed pages to pending so a new run can
// retry them.
func (q *CrawlQueue) RequeueFailed(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE crawl_pages SET status = 'pending', updated_at = ?
		WHERE status = 'failed'
	`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetQueue clears every page so discovery can repeat.
func (q *CrawlQueue) ResetQueue(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, "DELETE FROM crawl_pages")
	return err
}

// ReleaseStuck returns fetching pages to pending after an interrupted
// run.
func (q *CrawlQueue) ReleaseStuck(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE crawl_pages SET status = 'pending', updated_at = ?
		WHERE status = 'fetching'
	`, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
