// Package sqlite provides SQLite-based storage for librarian: the
// index database tracking sources and versions, and the per-library
// databases holding documents, chunks, embeddings and the crawl queue.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB represents a SQLite database connection with a fixed migration
// set. Use NewIndexDB for the global index database and NewLibraryDB
// for a per-library database.
type DB struct {
	db         *sql.DB
	path       string
	migrations []migration
}

// NewIndexDB creates a DB for the index database at path.
// Use ":memory:" for an in-memory database.
func NewIndexDB(path string) *DB {
	return &DB{path: path, migrations: indexMigrations}
}

// NewLibraryDB creates a DB for a library database at path.
func NewLibraryDB(path string) *DB {
	return &DB{path: path, migrations: libraryMigrations}
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Open opens the database connection and applies pending migrations.
// A database file that fails to open with a recoverable I/O error
// (short read, disk I/O error, not a database) is deleted and
// recreated from scratch.
func (db *DB) Open() error {
	err := db.open()
	if err == nil {
		return nil
	}
	if db.path == ":memory:" || !isRecoverable(err) {
		return err
	}

	// Corrupt or truncated database: remove the file trio and retry
	// once with a fresh schema.
	_ = db.Close()
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(db.path + suffix)
	}
	return db.open()
}

func (db *DB) open() error {
	conn, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit to one connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Wait for lock contention instead of failing immediately.
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// WAL allows concurrent reads during writes. Not supported for
	// in-memory databases.
	if db.path != ":memory:" {
		if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
			conn.Close()
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.db = conn

	if err := db.migrate(); err != nil {
		conn.Close()
		db.db = nil
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// isRecoverable reports whether an open error indicates a damaged
// database file that should be deleted and rebuilt.
func isRecoverable(err error) bool {
	msg := err.Error()
	for _, needle := range []string{"short read", "disk I/O error", "file is not a database", "database disk image is malformed"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement that doesn't return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.db.BeginTx(ctx, nil)
}

// executor abstracts the statement methods shared by *sql.DB and
// *sql.Tx so upsert helpers can run inside or outside a transaction.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
