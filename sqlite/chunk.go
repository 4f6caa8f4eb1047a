package sqlite

import (
	"context"
	"database/sql"
	"math"
	"strings"
	"unicode"

	"github.com/iannuttall/librarian"
)

// Compile-time interface verification.
var _ librarian.ChunkService = (*ChunkService)(nil)

// ChunkService implements librarian.ChunkService on a library
// database. The chunks_fts index is maintained by triggers, so every
// write here keeps the text index in sync atomically.
type ChunkService struct {
	db *DB
}

// NewChunkService creates a new ChunkService.
func NewChunkService(db *DB) *ChunkService {
	return &ChunkService{db: db}
}

// ReplaceChunks drops all chunks of the document and inserts the
// drafts in one transaction, assigning positions in order.
func (s *ChunkService) ReplaceChunks(ctx context.Context, doc *librarian.Document, drafts []librarian.ChunkDraft) ([]*librarian.Chunk, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
		return nil, err
	}

	chunks := make([]*librarian.Chunk, 0, len(drafts))
	for i, d := range drafts {
		chunk := &librarian.Chunk{
			DocumentID:  doc.ID,
			Position:    i,
			Type:        d.Type,
			Language:    d.Language,
			SymbolName:  d.SymbolName,
			SymbolType:  d.SymbolType,
			SymbolID:    d.SymbolID,
			SymbolPart:  d.SymbolPart,
			SymbolParts: d.SymbolParts,
			StartLine:   d.StartLine,
			EndLine:     d.EndLine,
			StartChar:   d.StartChar,
			EndChar:     d.EndChar,
			TokenCount:  d.TokenCount,
			Content:     d.Content,
			DocPath:     doc.Path,
			DocURI:      doc.URI,
			DocTitle:    doc.Title,
			ContextPath: d.ContextPath,
		}
		chunk.SHA = chunk.ComputeSHA()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (
				document_id, position, chunk_type, language,
				symbol_name, symbol_type, symbol_id, symbol_part_index, symbol_part_count,
				line_start, line_end, char_start, char_end,
				token_count, chunk_sha, content,
				doc_path, doc_uri, doc_title, context_path
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, chunk.DocumentID, chunk.Position, chunk.Type, chunk.Language,
			chunk.SymbolName, chunk.SymbolType, chunk.SymbolID, chunk.SymbolPart, chunk.SymbolParts,
			chunk.StartLine, chunk.EndLine, chunk.StartChar, chunk.EndChar,
			chunk.TokenCount, chunk.SHA, chunk.Content,
			chunk.DocPath, chunk.DocURI, chunk.DocTitle, chunk.ContextPath)
		if err != nil {
			return nil, err
		}
		if chunk.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return chunks, nil
}

// FindChunkByID retrieves a chunk by ID.
func (s *ChunkService) FindChunkByID(ctx context.Context, id int64) (*librarian.Chunk, error) {
	row := s.db.QueryRowContext(ctx, selectChunks+" WHERE c.id = ?", id)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, librarian.Errorf(librarian.ENOTFOUND, "chunk not found")
	}
	return chunk, err
}

// CountChunks returns the number of chunks in the library.
func (s *ChunkService) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// SearchWords runs the FTS index with the verbatim query first and
// retries with a normalized form when the text engine rejects the
// syntax. Scores are returned as 1/(1+|bm25|) so larger is better.
func (s *ChunkService) SearchWords(ctx context.Context, query string, limit int, versionLabel string) ([]librarian.WordHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 8
	}

	hits, err := s.searchFTS(ctx, query, limit, versionLabel)
	if err != nil {
		normalized := NormalizeFTSQuery(query)
		if normalized == "" || normalized == query {
			return nil, err
		}
		hits, err = s.searchFTS(ctx, normalized, limit, versionLabel)
	}
	return hits, err
}

func (s *ChunkService) searchFTS(ctx context.Context, match string, limit int, versionLabel string) ([]librarian.WordHit, error) {
	var query strings.Builder
	args := []any{match}

	query.WriteString(chunkColumns)
	query.WriteString(`, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		JOIN documents d ON d.id = c.document_id
		WHERE chunks_fts MATCH ? AND d.active = 1`)
	if versionLabel != "" {
		query.WriteString(" AND d.version_label = ?")
		args = append(args, versionLabel)
	}
	query.WriteString(" ORDER BY rank LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []librarian.WordHit
	for rows.Next() {
		chunk, rank, err := scanChunkRank(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, librarian.WordHit{
			Chunk: chunk,
			Score: 1 / (1 + math.Abs(rank)),
		})
	}
	return hits, rows.Err()
}

// NormalizeFTSQuery reduces a query to letters and digits separated
// by whitespace, the form the text engine always accepts.
func NormalizeFTSQuery(q string) string {
	var sb strings.Builder
	prevSpace := true
	for _, r := range q {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if !prevSpace {
			sb.WriteByte(' ')
			prevSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}

const chunkColumns = `
	SELECT c.id, c.document_id, c.position, c.chunk_type, c.language,
		c.symbol_name, c.symbol_type, c.symbol_id, c.symbol_part_index, c.symbol_part_count,
		c.line_start, c.line_end, c.char_start, c.char_end,
		c.token_count, c.chunk_sha, c.content,
		c.doc_path, c.doc_uri, c.doc_title, c.context_path`

const selectChunks = chunkColumns + `
	FROM chunks c`

func scanChunk(row rowScanner) (*librarian.Chunk, error) {
	var c librarian.Chunk
	err := row.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Type, &c.Language,
		&c.SymbolName, &c.SymbolType, &c.SymbolID, &c.SymbolPart, &c.SymbolParts,
		&c.StartLine, &c.EndLine, &c.StartChar, &c.EndChar,
		&c.TokenCount, &c.SHA, &c.Content,
		&c.DocPath, &c.DocURI, &c.DocTitle, &c.ContextPath)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanChunkRank(row rowScanner) (*librarian.Chunk, float64, error) {
	var c librarian.Chunk
	var rank float64
	err := row.Scan(&c.ID, &c.DocumentID, &c.Position, &c.Type, &c.Language,
		&c.SymbolName, &c.SymbolType, &c.SymbolID, &c.SymbolPart, &c.SymbolParts,
		&c.StartLine, &c.EndLine, &c.StartChar, &c.EndChar,
		&c.TokenCount, &c.SHA, &c.Content,
		&c.DocPath, &c.DocURI, &c.DocTitle, &c.ContextPath, &rank)
	if err != nil {
		return nil, 0, err
	}
	return &c, rank, nil
}
