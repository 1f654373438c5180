package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Agronaut41/admin-cc/internal/blobstore"
	"github.com/Agronaut41/admin-cc/internal/config"
	"github.com/Agronaut41/admin-cc/internal/store"
	"github.com/Agronaut41/admin-cc/internal/transcode"
)

// stack is the opened database plus the blob store attached to it.
type stack struct {
	db    *store.Store
	blobs *blobstore.Store
}

// openStack opens the database and attaches a blob store to it. The blob
// store is created pending and only becomes ready once the database is open.
func openStack(cfg *config.Config) (*stack, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}

	blobs := blobstore.NewPending(blobstore.Options{
		ChunkSize: cfg.Storage.ChunkSize,
		ReadyWait: time.Duration(cfg.Storage.ReadyWaitSeconds) * time.Second,
		Logger:    slog.Default(),
	})

	slog.Debug("opening database", "path", cfg.DBPath)
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := blobs.Attach(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &stack{db: db, blobs: blobs}, nil
}

func (s *stack) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func transcodeOptions(maxWidth, maxHeight, quality int, rawFormat string) (transcode.Options, error) {
	f, err := transcode.ParseFormat(rawFormat)
	if err != nil {
		return transcode.Options{}, err
	}
	opts := transcode.Options{MaxWidth: maxWidth, MaxHeight: maxHeight, Quality: quality, Format: f}
	if err := opts.Validate(); err != nil {
		return transcode.Options{}, err
	}
	return opts, nil
}

func uploadTranscodeOptions(cfg *config.Config) (transcode.Options, error) {
	return transcodeOptions(cfg.Images.MaxWidth, cfg.Images.MaxHeight, cfg.Images.Quality, cfg.Images.Format)
}
