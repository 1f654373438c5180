package store

import (
	"context"

	"github.com/Agronaut41/admin-cc/internal/models"
)

// ChunkWriter receives the chunks of one blob inside a single transaction.
type ChunkWriter interface {
	WriteChunk(ctx context.Context, chunk Chunk) error
	Commit(ctx context.Context, byteLength int64, chunkCount int, digest string) error
	Abort() error
}

// BlobCatalog is the persistence surface used by the blob store.
type BlobCatalog interface {
	Ping(ctx context.Context) error
	BeginBlobWrite(ctx context.Context, blob *models.Blob) (ChunkWriter, error)
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	GetBlobChunk(ctx context.Context, id string, n int) (*Chunk, error)
	DeleteBlob(ctx context.Context, id string) (bool, error)
	ListBlobs(ctx context.Context, filter BlobFilter) ([]models.Blob, error)
}

// ReferenceStore is the persistence surface for records that point at blobs
// by locator string.
//
// This is intentionally separate from BlobCatalog: the referencing records
// have no foreign key into the blob tables.
type ReferenceStore interface {
	ReplaceCacambaImageURL(ctx context.Context, oldURL, newURL string) (int64, error)
	CountCacambasWithImageURL(ctx context.Context, url string) (int, error)
	ListOrdersWithImageURL(ctx context.Context, url string) ([]models.Order, error)
	SetOrderImageURLs(ctx context.Context, id string, urls []string) error
}

var (
	_ BlobCatalog    = (*Store)(nil)
	_ ReferenceStore = (*Store)(nil)
)
