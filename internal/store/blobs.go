package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Agronaut41/admin-cc/internal/models"
)

const blobColumns = "id, display_name, byte_length, media_type, digest, chunk_size, chunk_count, meta_json, created_at"

// Chunk is one persisted slice of a blob's bytes.
type Chunk struct {
	N           int
	Compression string
	RawSize     int
	Data        []byte
}

// BlobFilter selects catalog entries for ListBlobs. Results are ordered by id
// and start strictly after AfterID.
type BlobFilter struct {
	MediaTypePrefix   string
	ExcludeMediaTypes []string
	AfterID           string
	Limit             int
}

// blobWrite is an open transaction writing one blob's chunks.
type blobWrite struct {
	tx   *sql.Tx
	id   string
	done bool
}

// BeginBlobWrite inserts the catalog row for blob and opens a transaction that
// receives its chunks. Nothing is visible to readers until Commit.
func (s *Store) BeginBlobWrite(ctx context.Context, blob *models.Blob) (ChunkWriter, error) {
	if blob == nil {
		return nil, fmt.Errorf("blob is required")
	}
	blob.ID = strings.TrimSpace(blob.ID)
	if blob.ID == "" {
		return nil, fmt.Errorf("blob id is required")
	}
	if strings.TrimSpace(blob.MediaType) == "" {
		blob.MediaType = models.MediaTypeOctetStream
	}
	if blob.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk_size must be > 0")
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	metaJSON, err := blobMetaToJSON(blob.Metadata)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO blobs (id, display_name, byte_length, media_type, digest, chunk_size, chunk_count, meta_json, created_at)
		VALUES (?, ?, 0, ?, '', ?, 0, ?, ?)
	`, blob.ID, blob.DisplayName, blob.MediaType, blob.ChunkSize, metaJSON, dbFormatTime(blob.CreatedAt))
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	return &blobWrite{tx: tx, id: blob.ID}, nil
}

// WriteChunk stores chunk n.
func (w *blobWrite) WriteChunk(ctx context.Context, chunk Chunk) error {
	if w.done {
		return fmt.Errorf("blob write %s already finished", w.id)
	}
	_, err := w.tx.ExecContext(ctx, `
		INSERT INTO blob_chunks (blob_id, n, compression, raw_size, data)
		VALUES (?, ?, ?, ?, ?)
	`, w.id, chunk.N, chunk.Compression, chunk.RawSize, chunk.Data)
	return err
}

// Commit records the final length, chunk count and digest and commits.
func (w *blobWrite) Commit(ctx context.Context, byteLength int64, chunkCount int, digest string) error {
	if w.done {
		return fmt.Errorf("blob write %s already finished", w.id)
	}
	w.done = true
	if _, err := w.tx.ExecContext(ctx, `
		UPDATE blobs SET byte_length = ?, chunk_count = ?, digest = ? WHERE id = ?
	`, byteLength, chunkCount, digest, w.id); err != nil {
		_ = w.tx.Rollback()
		return err
	}
	return w.tx.Commit()
}

// Abort discards everything written so far. Safe to call after Commit.
func (w *blobWrite) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	return w.tx.Rollback()
}

// GetBlob returns one catalog entry, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// GetBlobChunk returns chunk n of a blob, or nil when absent.
func (s *Store) GetBlobChunk(ctx context.Context, id string, n int) (*Chunk, error) {
	chunk := Chunk{N: n}
	err := s.db.QueryRowContext(ctx, `
		SELECT compression, raw_size, data FROM blob_chunks WHERE blob_id = ? AND n = ?
	`, id, n).Scan(&chunk.Compression, &chunk.RawSize, &chunk.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// DeleteBlob removes a blob and its chunks. It reports whether a row existed.
func (s *Store) DeleteBlob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListBlobs returns one page of catalog entries matching filter.
func (s *Store) ListBlobs(ctx context.Context, filter BlobFilter) ([]models.Blob, error) {
	var (
		clauses []string
		args    []any
	)
	if prefix := filter.MediaTypePrefix; prefix != "" {
		clauses = append(clauses, `media_type LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(prefix)+"%")
	}
	if len(filter.ExcludeMediaTypes) > 0 {
		placeholders := make([]string, 0, len(filter.ExcludeMediaTypes))
		for _, mt := range filter.ExcludeMediaTypes {
			placeholders = append(placeholders, "?")
			args = append(args, mt)
		}
		clauses = append(clauses, "media_type NOT IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.AfterID != "" {
		clauses = append(clauses, "id > ?")
		args = append(args, filter.AfterID)
	}

	query := `SELECT ` + blobColumns + ` FROM blobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}

// CountBlobs returns the number of catalog entries.
func (s *Store) CountBlobs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blobs").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var metaJSON sql.NullString
	var createdAt string

	err := scanner.Scan(
		&blob.ID,
		&blob.DisplayName,
		&blob.ByteLength,
		&blob.MediaType,
		&blob.Digest,
		&blob.ChunkSize,
		&blob.ChunkCount,
		&metaJSON,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &blob.Metadata); err != nil {
			return nil, fmt.Errorf("parse blob meta_json: %w", err)
		}
	}

	return &blob, nil
}

func blobMetaToJSON(meta map[string]any) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal blob meta_json: %w", err)
	}
	return string(data), nil
}

func escapeLike(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(value)
}
