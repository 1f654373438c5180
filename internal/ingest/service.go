// Package ingest stores freshly uploaded images.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Agronaut41/admin-cc/internal/blobstore"
	"github.com/Agronaut41/admin-cc/internal/models"
	"github.com/Agronaut41/admin-cc/internal/refindex"
	"github.com/Agronaut41/admin-cc/internal/transcode"
)

// DefaultMaxUploadBytes is the largest accepted upload.
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

var (
	// ErrUnsupportedMedia is returned for uploads whose declared type is not an image.
	ErrUnsupportedMedia = errors.New("unsupported media type")
	// ErrUploadTooLarge is returned for uploads over the size limit.
	ErrUploadTooLarge = errors.New("upload too large")
)

// BlobWriter is the part of the blob store the service needs.
type BlobWriter interface {
	Put(ctx context.Context, r io.Reader, displayName, mediaType string, metadata map[string]any) (string, error)
	Delete(ctx context.Context, id string) error
}

// Options configure a Service.
type Options struct {
	Transcode      transcode.Options
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Service transcodes uploads and stores them as blobs.
type Service struct {
	blobs      BlobWriter
	transcoder transcode.Transcoder
	opts       transcode.Options
	maxBytes   int64
	logger     *slog.Logger
}

// NewService returns a Service. Zero options fall back to the defaults.
func NewService(blobs BlobWriter, transcoder transcode.Transcoder, opts Options) *Service {
	if transcoder == nil {
		transcoder = transcode.New()
	}
	if opts.Transcode == (transcode.Options{}) {
		opts.Transcode = transcode.DefaultOptions()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		blobs:      blobs,
		transcoder: transcoder,
		opts:       opts.Transcode,
		maxBytes:   opts.MaxUploadBytes,
		logger:     opts.Logger.With("component", "ingest"),
	}
}

// MaxUploadBytes returns the upload size limit.
func (s *Service) MaxUploadBytes() int64 { return s.maxBytes }

// Ingest transcodes one uploaded image, stores it and returns its locator.
// Nothing is stored when an error is returned.
func (s *Service) Ingest(ctx context.Context, data []byte, originalName, declaredMediaType string) (string, error) {
	mediaType, err := models.NormalizeMediaType(declaredMediaType)
	if err != nil || !models.IsImageMediaType(mediaType) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMedia, declaredMediaType)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrUploadTooLarge, len(data), s.maxBytes)
	}

	res, err := s.transcoder.Transcode(data, originalName, s.opts)
	if err != nil {
		return "", err
	}

	meta := map[string]any{
		models.MetaOriginalMediaType:  mediaType,
		models.MetaOriginalByteLength: len(data),
	}
	if originalName != "" {
		meta[models.MetaOriginalName] = originalName
	}
	id, err := s.blobs.Put(ctx, bytes.NewReader(res.Data), res.Name, res.MediaType, meta)
	if err != nil {
		return "", err
	}

	s.logger.Info("image ingested",
		"id", id,
		"name", res.Name,
		"original_bytes", len(data),
		"stored_bytes", len(res.Data),
		"width", res.Width,
		"height", res.Height)
	return refindex.Locator(id), nil
}

// IngestReader reads at most the upload limit from r and ingests it.
func (s *Service) IngestReader(ctx context.Context, r io.Reader, originalName, declaredMediaType string) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: more than %d bytes", ErrUploadTooLarge, s.maxBytes)
	}
	return s.Ingest(ctx, data, originalName, declaredMediaType)
}

// Replace stores a new image for a record that currently points at
// oldLocator and returns the new locator. The old blob is left alone; the
// caller releases it once its own record is updated.
func (s *Service) Replace(ctx context.Context, oldLocator string, data []byte, originalName, declaredMediaType string) (string, error) {
	locator, err := s.Ingest(ctx, data, originalName, declaredMediaType)
	if err != nil {
		return "", err
	}
	s.logger.Debug("image replaced", "old", oldLocator, "new", locator)
	return locator, nil
}

// Release deletes the blob behind locator. Failures are logged and returned
// for the caller to ignore. Locators without a blob id are a no-op.
func (s *Service) Release(ctx context.Context, locator string) error {
	id, ok := refindex.ExtractBlobID(locator)
	if !ok {
		return nil
	}
	if err := s.blobs.Delete(ctx, id); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, blobstore.ErrNotFound) {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "blob release failed", "locator", locator, "error", err)
		return err
	}
	return nil
}
