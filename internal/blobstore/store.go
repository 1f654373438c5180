// Package blobstore stores immutable binary blobs in fixed-size chunks and
// hands them back as lazy streams.
//
// A Store is created either ready, with New, or pending, with NewPending.
// A pending store rejects every operation with ErrStoreNotReady until Attach
// supplies a catalog.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/Agronaut41/admin-cc/internal/models"
	"github.com/Agronaut41/admin-cc/internal/store"
)

// DefaultChunkSize matches the GridFS default of 255 KiB.
const DefaultChunkSize = 255 * 1024

// Options configure a Store.
type Options struct {
	ChunkSize int
	// ReadyWait bounds how long an operation on a pending store waits for
	// Attach. Zero fails immediately.
	ReadyWait time.Duration
	Logger    *slog.Logger
}

// Store is the blob store.
type Store struct {
	chunkSize int
	readyWait time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	catalog store.BlobCatalog
	ready   chan struct{}
}

// New returns a store backed by catalog.
func New(catalog store.BlobCatalog, opts Options) *Store {
	s := NewPending(opts)
	if catalog != nil {
		_ = s.Attach(catalog)
	}
	return s
}

// NewPending returns a store with no backend yet.
func NewPending(opts Options) *Store {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		chunkSize: opts.ChunkSize,
		readyWait: opts.ReadyWait,
		logger:    opts.Logger.With("component", "blobstore"),
		ready:     make(chan struct{}),
	}
}

// Attach connects the store to its catalog. It may be called once.
func (s *Store) Attach(catalog store.BlobCatalog) error {
	if catalog == nil {
		return fmt.Errorf("catalog is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalog != nil {
		return fmt.Errorf("blob store already attached")
	}
	s.catalog = catalog
	close(s.ready)
	return nil
}

// Ready reports whether a catalog is attached.
func (s *Store) Ready() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// ChunkSize returns the chunk size used for new blobs.
func (s *Store) ChunkSize() int { return s.chunkSize }

func (s *Store) backend(ctx context.Context) (store.BlobCatalog, error) {
	if !s.Ready() {
		if s.readyWait <= 0 {
			return nil, ErrStoreNotReady
		}
		timer := time.NewTimer(s.readyWait)
		defer timer.Stop()
		select {
		case <-s.ready:
		case <-timer.C:
			return nil, ErrStoreNotReady
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog, nil
}

// Ping checks that the storage medium is reachable.
func (s *Store) Ping(ctx context.Context) error {
	catalog, err := s.backend(ctx)
	if err != nil {
		return err
	}
	return catalog.Ping(ctx)
}

// Put streams r into a new blob and returns its id. The whole blob is written
// in one transaction: on any failure nothing is stored and the error is a
// *StoreWriteError.
//
// r must not read from this store; the write holds the only connection.
func (s *Store) Put(ctx context.Context, r io.Reader, displayName, mediaType string, metadata map[string]any) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	mediaType, err := models.NormalizeMediaType(mediaType)
	if err != nil {
		return "", err
	}
	if mediaType == "" {
		mediaType = models.MediaTypeOctetStream
	}
	catalog, err := s.backend(ctx)
	if err != nil {
		return "", err
	}

	blob := &models.Blob{
		ID:          newID(),
		DisplayName: displayName,
		MediaType:   mediaType,
		ChunkSize:   s.chunkSize,
		Metadata:    cloneMetadata(metadata),
		CreatedAt:   time.Now().UTC(),
	}
	w, err := catalog.BeginBlobWrite(ctx, blob)
	if err != nil {
		return "", &StoreWriteError{Op: "begin", Err: err}
	}

	h, _ := blake2b.New256(nil)
	buf := make([]byte, s.chunkSize)
	var (
		total int64
		n     int
		codec Compression
	)
	for {
		if err := ctx.Err(); err != nil {
			_ = w.Abort()
			return "", &StoreWriteError{Op: "read", Err: err}
		}
		read, rerr := io.ReadFull(r, buf)
		if read > 0 {
			chunk := buf[:read]
			h.Write(chunk)
			if n == 0 {
				codec = selectCompression(mediaType, chunk)
			}
			data, tag, err := compressChunk(chunk, codec)
			if err != nil {
				_ = w.Abort()
				return "", &StoreWriteError{Op: "compress", Err: err}
			}
			if tag == CompressionNone {
				data = append([]byte(nil), chunk...)
			}
			if err := w.WriteChunk(ctx, store.Chunk{N: n, Compression: string(tag), RawSize: read, Data: data}); err != nil {
				_ = w.Abort()
				return "", &StoreWriteError{Op: "write chunk", Err: err}
			}
			n++
			total += int64(read)
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			_ = w.Abort()
			return "", &StoreWriteError{Op: "read", Err: rerr}
		}
	}

	digest := hex.EncodeToString(h.Sum(nil))
	if err := w.Commit(ctx, total, n, digest); err != nil {
		_ = w.Abort()
		return "", &StoreWriteError{Op: "commit", Err: err}
	}
	s.logger.Debug("blob stored", "id", blob.ID, "bytes", total, "chunks", n, "media_type", mediaType)
	return blob.ID, nil
}

// Stat returns the catalog entry of a blob.
func (s *Store) Stat(ctx context.Context, id string) (models.Blob, error) {
	catalog, err := s.backend(ctx)
	if err != nil {
		return models.Blob{}, err
	}
	if !ValidID(id) {
		return models.Blob{}, ErrNotFound
	}
	blob, err := catalog.GetBlob(ctx, id)
	if err != nil {
		return models.Blob{}, err
	}
	if blob == nil {
		return models.Blob{}, ErrNotFound
	}
	return *blob, nil
}

// Get opens a blob for reading. Chunks are fetched one at a time as the
// stream is consumed; the stream cannot be rewound. Reading past the last
// chunk verifies the recorded length and digest.
func (s *Store) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	catalog, err := s.backend(ctx)
	if err != nil {
		return nil, err
	}
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	blob, err := catalog.GetBlob(ctx, id)
	if err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, ErrNotFound
	}
	return newChunkReader(ctx, catalog, *blob), nil
}

// ReadAll reads a whole blob into memory.
func (s *Store) ReadAll(ctx context.Context, id string) ([]byte, models.Blob, error) {
	blob, err := s.Stat(ctx, id)
	if err != nil {
		return nil, models.Blob{}, err
	}
	catalog, err := s.backend(ctx)
	if err != nil {
		return nil, models.Blob{}, err
	}
	rc := newChunkReader(ctx, catalog, blob)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, models.Blob{}, err
	}
	return data, blob, nil
}

// Delete removes a blob and its chunks.
func (s *Store) Delete(ctx context.Context, id string) error {
	catalog, err := s.backend(ctx)
	if err != nil {
		return err
	}
	if !ValidID(id) {
		return ErrNotFound
	}
	existed, err := catalog.DeleteBlob(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return ErrNotFound
	}
	s.logger.Debug("blob deleted", "id", id)
	return nil
}

func cloneMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// chunkReader streams a blob chunk by chunk.
type chunkReader struct {
	ctx     context.Context
	catalog store.BlobCatalog
	blob    models.Blob

	next   int
	buf    []byte
	read   int64
	hash   hash.Hash
	err    error
	closed bool
}

func newChunkReader(ctx context.Context, catalog store.BlobCatalog, blob models.Blob) *chunkReader {
	h, _ := blake2b.New256(nil)
	return &chunkReader{
		ctx:     ctx,
		catalog: catalog,
		blob:    blob,
		hash:    h,
	}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errors.New("read on closed blob reader")
	}
	if r.err != nil {
		return 0, r.err
	}
	for len(r.buf) == 0 {
		if r.next >= r.blob.ChunkCount {
			r.err = r.verify()
			return 0, r.err
		}
		if err := r.loadChunk(); err != nil {
			r.err = err
			return 0, err
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) loadChunk() error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	chunk, err := r.catalog.GetBlobChunk(r.ctx, r.blob.ID, r.next)
	if err != nil {
		return fmt.Errorf("read chunk %d of %s: %w", r.next, r.blob.ID, err)
	}
	if chunk == nil {
		return fmt.Errorf("chunk %d of %s missing: %w", r.next, r.blob.ID, ErrCorrupt)
	}
	tag, err := ParseCompression(chunk.Compression)
	if err != nil {
		return err
	}
	data, err := decompressChunk(chunk.Data, tag, chunk.RawSize)
	if err != nil {
		return fmt.Errorf("decode chunk %d of %s: %w", r.next, r.blob.ID, err)
	}
	r.hash.Write(data)
	r.read += int64(len(data))
	r.buf = data
	r.next++
	return nil
}

func (r *chunkReader) verify() error {
	if r.read != r.blob.ByteLength {
		return fmt.Errorf("blob %s: read %d bytes, expected %d: %w", r.blob.ID, r.read, r.blob.ByteLength, ErrCorrupt)
	}
	if r.blob.Digest != "" && hex.EncodeToString(r.hash.Sum(nil)) != r.blob.Digest {
		return fmt.Errorf("blob %s: digest mismatch: %w", r.blob.ID, ErrCorrupt)
	}
	return io.EOF
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
