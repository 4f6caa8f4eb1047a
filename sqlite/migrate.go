package sqlite

import (
	"fmt"
	"sort"
	"time"
)

// migration is one numbered schema step. Migrations are applied in
// lexicographic name order, each inside its own transaction, and
// recorded in the migration table.
type migration struct {
	name string
	sql  string
}

// migrate applies pending migrations for this database.
func (db *DB) migrate() error {
	if _, err := db.db.Exec(`
		CREATE TABLE IF NOT EXISTS migration (
			name TEXT PRIMARY KEY,
			timestamp TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := db.db.Query("SELECT name FROM migration")
	if err != nil {
		return fmt.Errorf("read migration table: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		applied[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	pending := make([]migration, 0, len(db.migrations))
	for _, m := range db.migrations {
		if !applied[m.name] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].name < pending[j].name })

	for _, m := range pending {
		tx, err := db.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO migration (name, timestamp) VALUES (?, ?)",
			m.name, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}

	return nil
}

// indexMigrations defines the schema of the global index database.
var indexMigrations = []migration{
	{
		name: "0001_sources",
		sql: `
			CREATE TABLE sources (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				kind TEXT NOT NULL,
				name TEXT NOT NULL,
				db_path TEXT NOT NULL DEFAULT '',
				last_sync_at TEXT,
				last_commit TEXT NOT NULL DEFAULT '',
				last_etag TEXT NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				owner TEXT NOT NULL DEFAULT '',
				repo TEXT NOT NULL DEFAULT '',
				ref TEXT NOT NULL DEFAULT '',
				docs_path TEXT NOT NULL DEFAULT '',
				ingest_mode TEXT NOT NULL DEFAULT 'docs',
				version_label TEXT NOT NULL DEFAULT '',
				root_url TEXT NOT NULL DEFAULT '',
				allowed_paths TEXT NOT NULL DEFAULT '',
				denied_paths TEXT NOT NULL DEFAULT '',
				max_depth INTEGER NOT NULL DEFAULT 0,
				max_pages INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			CREATE INDEX idx_sources_name ON sources(name);
			CREATE INDEX idx_sources_owner_repo ON sources(owner, repo);
		`,
	},
	{
		name: "0002_source_versions",
		sql: `
			CREATE TABLE source_versions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
				label TEXT NOT NULL,
				ref TEXT NOT NULL DEFAULT '',
				commit_sha TEXT NOT NULL DEFAULT '',
				tree_hash TEXT NOT NULL DEFAULT '',
				etag TEXT NOT NULL DEFAULT '',
				synced_at TEXT NOT NULL,
				UNIQUE(source_id, label)
			);
		`,
	},
}

// libraryMigrations defines the schema of a per-library database. The
// vector table is created lazily once the first embedding reveals its
// dimensionality.
var libraryMigrations = []migration{
	{
		name: "0001_documents",
		sql: `
			CREATE TABLE document_blobs (
				hash TEXT PRIMARY KEY,
				content TEXT NOT NULL
			);

			CREATE TABLE documents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id INTEGER NOT NULL,
				path TEXT NOT NULL,
				version_label TEXT NOT NULL,
				uri TEXT NOT NULL DEFAULT '',
				title TEXT NOT NULL DEFAULT '',
				hash TEXT NOT NULL REFERENCES document_blobs(hash),
				content_type TEXT NOT NULL DEFAULT 'markdown',
				active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(source_id, path, version_label)
			);

			CREATE INDEX idx_documents_label_active ON documents(version_label, active);
			CREATE INDEX idx_documents_hash ON documents(hash);
		`,
	},
	{
		name: "0002_chunks",
		sql: `
			CREATE TABLE chunks (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				chunk_type TEXT NOT NULL,
				language TEXT NOT NULL DEFAULT '',
				symbol_name TEXT NOT NULL DEFAULT '',
				symbol_type TEXT NOT NULL DEFAULT '',
				symbol_id TEXT NOT NULL DEFAULT '',
				symbol_part_index INTEGER NOT NULL DEFAULT 0,
				symbol_part_count INTEGER NOT NULL DEFAULT 0,
				line_start INTEGER NOT NULL DEFAULT 0,
				line_end INTEGER NOT NULL DEFAULT 0,
				char_start INTEGER NOT NULL DEFAULT 0,
				char_end INTEGER NOT NULL DEFAULT 0,
				token_count INTEGER NOT NULL DEFAULT 0,
				chunk_sha TEXT NOT NULL,
				content TEXT NOT NULL,
				doc_path TEXT NOT NULL DEFAULT '',
				doc_uri TEXT NOT NULL DEFAULT '',
				doc_title TEXT NOT NULL DEFAULT '',
				context_path TEXT NOT NULL DEFAULT '',
				UNIQUE(document_id, position)
			);

			CREATE INDEX idx_chunks_document ON chunks(document_id);

			CREATE VIRTUAL TABLE chunks_fts USING fts5(
				content, doc_title, doc_path, context_path, doc_uri,
				content='chunks',
				content_rowid='id',
				tokenize='porter unicode61'
			);

			CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
				INSERT INTO chunks_fts(rowid, content, doc_title, doc_path, context_path, doc_uri)
				VALUES (new.id, new.content, new.doc_title, new.doc_path, new.context_path, new.doc_uri);
			END;

			CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, content, doc_title, doc_path, context_path, doc_uri)
				VALUES ('delete', old.id, old.content, old.doc_title, old.doc_path, old.context_path, old.doc_uri);
			END;

			CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, content, doc_title, doc_path, context_path, doc_uri)
				VALUES ('delete', old.id, old.content, old.doc_title, old.doc_path, old.context_path, old.doc_uri);
				INSERT INTO chunks_fts(rowid, content, doc_title, doc_path, context_path, doc_uri)
				VALUES (new.id, new.content, new.doc_title, new.doc_path, new.context_path, new.doc_uri);
			END;
		`,
	},
	{
		name: "0003_vectors",
		sql: `
			CREATE TABLE chunk_vectors (
				chunk_id INTEGER NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
				model_uri TEXT NOT NULL,
				dims INTEGER NOT NULL,
				created_at TEXT NOT NULL,
				PRIMARY KEY (chunk_id, model_uri)
			);
		`,
	},
	{
		name: "0004_crawl_pages",
		sql: `
			CREATE TABLE crawl_pages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				source_id INTEGER NOT NULL,
				url TEXT NOT NULL,
				normalized_url TEXT NOT NULL,
				depth INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'pending',
				error TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE(source_id, normalized_url)
			);

			CREATE INDEX idx_crawl_pages_pick ON crawl_pages(status, depth, id);
		`,
	},
}
