package librarian

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Content types stored on documents.
const (
	ContentMarkdown = "markdown"
	ContentCode     = "code"
)

// Document is one logical document per (source, path, version label).
// Content lives in a DocumentBlob addressed by Hash.
type Document struct {
	ID           int64     `json:"id"`
	SourceID     int64     `json:"sourceId"`
	Path         string    `json:"path"`
	VersionLabel string    `json:"versionLabel"`
	URI          string    `json:"uri"`
	Title        string    `json:"title"`
	Hash         string    `json:"hash"`
	ContentType  string    `json:"contentType"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate returns an error if the document contains invalid fields.
func (d *Document) Validate() error {
	if d.SourceID == 0 {
		return Errorf(EINVALID, "document source ID required")
	}
	if d.Path == "" {
		return Errorf(EINVALID, "document path required")
	}
	if d.VersionLabel == "" {
		return Errorf(EINVALID, "document version label required")
	}
	return nil
}

// DocumentBlob is the canonical content store keyed by SHA-256 hex of
// the content. Blobs are shared by documents with identical content
// and garbage-collected when unreferenced.
type DocumentBlob struct {
	Hash    string `json:"hash"`
	Content string `json:"content"`
}

// HashContent returns the SHA-256 hex digest used as blob key.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DocumentFilter represents a filter for FindDocuments.
type DocumentFilter struct {
	ID           *int64
	Path         *string
	URI          *string
	VersionLabel *string
	Active       *bool

	Offset int
	Limit  int
}

// UpsertResult reports what an upsert did to a document.
type UpsertResult struct {
	Doc     *Document
	Changed bool // content hash differs from the stored row (or row is new)
}

// DocumentService manages documents and their blobs inside one library
// database.
type DocumentService interface {
	// UpsertDocument inserts the blob if unseen and creates or updates
	// the document row for (source, path, label), reactivating it.
	// Changed reports whether the content hash differs from the prior
	// row.
	UpsertDocument(ctx context.Context, doc *Document, content string) (*UpsertResult, error)

	// FindDocumentByID retrieves a document by ID.
	// Returns ENOTFOUND if the document does not exist.
	FindDocumentByID(ctx context.Context, id int64) (*Document, error)

	// FindDocuments retrieves documents matching the filter.
	FindDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error)

	// DocumentContent returns the blob content for a document.
	DocumentContent(ctx context.Context, id int64) (string, error)

	// DeactivateMissing flips active off for every document of
	// (source, label) whose path is not in seen, and returns how many
	// rows were deactivated.
	DeactivateMissing(ctx context.Context, label string, seen map[string]struct{}) (int, error)

	// CleanupInactive deletes inactive documents, their chunks and
	// vectors, and any blobs left unreferenced.
	CleanupInactive(ctx context.Context) (docs, blobs int64, err error)
}
