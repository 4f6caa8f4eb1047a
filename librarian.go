// Package librarian provides a local-first documentation indexer and
// hybrid search engine. It ingests code repositories (fetched as
// archives) and documentation websites (fetched by crawling),
// normalizes their contents to markdown or code text, splits documents
// into retrievable chunks, and persists everything in per-library
// embedded SQLite databases with full-text and vector indexes.
//
// This package contains domain types and interfaces following Ben
// Johnson's Standard Package Layout. Implementations live in
// subdirectories named after their primary dependency (e.g., sqlite/,
// rod/, goquery/) or their concern (crawl/, ingest/, search/).
package librarian
