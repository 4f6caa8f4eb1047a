package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/iannuttall/librarian"
)

// Compile-time interface verification.
var _ librarian.VectorService = (*VectorService)(nil)

// VectorService implements librarian.VectorService on a library
// database. Vectors are stored as little-endian float32 blobs in the
// vectors_vec table, which is created lazily with the dimensionality
// of the first embedding and rebuilt from scratch when the
// dimensionality changes. Nearest-neighbor search scans the library's
// vectors and ranks by cosine distance.
type VectorService struct {
	db *DB
}

// NewVectorService creates a new VectorService.
func NewVectorService(db *DB) *VectorService {
	return &VectorService{db: db}
}

// UpsertEmbedding stores the vector for (chunk, model).
func (s *VectorService) UpsertEmbedding(ctx context.Context, chunkID int64, modelURI string, vector []float32) error {
	if len(vector) == 0 {
		return librarian.Errorf(librarian.EINVALID, "empty embedding vector")
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := ensureVectorTable(ctx, tx, len(vector)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chunk_vectors (chunk_id, model_uri, dims, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id, model_uri) DO UPDATE SET
			dims = excluded.dims,
			created_at = excluded.created_at
	`, chunkID, modelURI, len(vector), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO vectors_vec (chunk_id, embedding) VALUES (?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET embedding = excluded.embedding
	`, chunkID, serializeVector(vector)); err != nil {
		return err
	}

	return tx.Commit()
}

// ensureVectorTable creates the vector table on first use and
// rebuilds it when the dimensionality changes.
func ensureVectorTable(ctx context.Context, tx *sql.Tx, dims int) error {
	var current int
	err := tx.QueryRowContext(ctx, "SELECT dims FROM chunk_vectors LIMIT 1").Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		// First embedding for this library.
	case err != nil:
		return err
	case current != dims:
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS vectors_vec"); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_vectors"); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS vectors_vec (
			chunk_id INTEGER PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			embedding BLOB NOT NULL
		)`)
	return err
}

// ClearEmbeddings removes all embeddings and the vector table.
func (s *VectorService) ClearEmbeddings(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS vectors_vec"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_vectors"); err != nil {
		return err
	}
	return tx.Commit()
}

// MissingEmbeddings returns chunks of active documents with no
// embedding for the model, up to limit (0 = all).
func (s *VectorService) MissingEmbeddings(ctx context.Context, modelURI string, limit int) ([]*librarian.Chunk, error) {
	var query strings.Builder
	args := []any{modelURI}

	query.WriteString(selectChunks)
	query.WriteString(`
		JOIN documents d ON d.id = c.document_id
		WHERE d.active = 1 AND c.id NOT IN (
			SELECT chunk_id FROM chunk_vectors WHERE model_uri = ?
		)
		ORDER BY c.id ASC`)
	appendPagination(&query, &args, limit, 0)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*librarian.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// CountEmbeddings returns the number of stored embeddings.
func (s *VectorService) CountEmbeddings(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunk_vectors").Scan(&n)
	return n, err
}

// SearchVectors returns the nearest chunks of active documents by
// cosine distance. Queries against a missing or dimension-mismatched
// table return no hits.
func (s *VectorService) SearchVectors(ctx context.Context, vector []float32, limit int, versionLabel string) ([]librarian.VectorHit, error) {
	if len(vector) == 0 {
		return nil, librarian.Errorf(librarian.EINVALID, "empty query vector")
	}
	if limit <= 0 {
		limit = 8
	}

	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'vectors_vec'").Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, nil
	}

	var query strings.Builder
	var args []any
	query.WriteString(`
		SELECT v.chunk_id, v.embedding
		FROM vectors_vec v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE d.active = 1`)
	if versionLabel != "" {
		query.WriteString(" AND d.version_label = ?")
		args = append(args, versionLabel)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []librarian.VectorHit
	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, err
		}
		candidate := deserializeVector(blob)
		if len(candidate) != len(vector) {
			continue
		}
		hits = append(hits, librarian.VectorHit{
			ChunkID:  chunkID,
			Distance: cosineDistance(vector, candidate),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// serializeVector encodes float32 values as a little-endian blob.
func serializeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeVector decodes a little-endian float32 blob.
func deserializeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// cosineDistance returns 1 - cosine similarity. Zero-magnitude
// vectors are treated as maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(magA)*math.Sqrt(magB))
}
