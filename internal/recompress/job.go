// Package recompress re-encodes stored images into a smaller format and
// moves every reference over to the new blob.
package recompress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Agronaut41/admin-cc/internal/blobstore"
	"github.com/Agronaut41/admin-cc/internal/models"
	"github.com/Agronaut41/admin-cc/internal/refindex"
	"github.com/Agronaut41/admin-cc/internal/transcode"
)

// DefaultPerBlobTimeout bounds the work on a single blob.
const DefaultPerBlobTimeout = 2 * time.Minute

// Blobs is the blob store surface the job drives.
type Blobs interface {
	Ping(ctx context.Context) error
	List(ctx context.Context, f blobstore.Filter) *blobstore.Cursor
	Get(ctx context.Context, id string) (io.ReadCloser, error)
	Put(ctx context.Context, r io.Reader, displayName, mediaType string, metadata map[string]any) (string, error)
	Delete(ctx context.Context, id string) error
}

// References rewrites and counts locator references.
type References interface {
	Rewrite(ctx context.Context, oldLocator, newLocator string) (refindex.Counts, error)
	Count(ctx context.Context, locator string) (refindex.Counts, error)
}

// Options control one run.
type Options struct {
	DryRun bool
	// Limit caps how many blobs are migrated (or would be, in a dry run).
	// Zero means no cap.
	Limit          int
	Transcode      transcode.Options
	PerBlobTimeout time.Duration
	PageSize       int
}

func (o Options) withDefaults() Options {
	if o.Transcode == (transcode.Options{}) {
		o.Transcode = transcode.DefaultOptions()
	}
	if o.PerBlobTimeout <= 0 {
		o.PerBlobTimeout = DefaultPerBlobTimeout
	}
	if o.Limit < 0 {
		o.Limit = 0
	}
	return o
}

// Job is the recompression batch job. Blobs are handled strictly one at a
// time: two blobs referenced by the same order would otherwise race on the
// order's image_urls array.
type Job struct {
	blobs      Blobs
	refs       References
	transcoder transcode.Transcoder
	logger     *slog.Logger

	// OnRecord, when set, is called after each blob is handled.
	OnRecord func(Record)
}

// NewJob wires a Job. A nil transcoder uses transcode.New().
func NewJob(blobs Blobs, refs References, transcoder transcode.Transcoder, logger *slog.Logger) *Job {
	if transcoder == nil {
		transcoder = transcode.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		blobs:      blobs,
		refs:       refs,
		transcoder: transcoder,
		logger:     logger.With("component", "recompress"),
	}
}

// TargetExclusions lists the media types the scan skips: formats already
// produced by a run, so a second run finds nothing to do.
func TargetExclusions(target transcode.Format) []string {
	out := []string{models.MediaTypeWebP, models.MediaTypeAVIF}
	if mt := target.MediaType(); mt != "" && mt != models.MediaTypeWebP && mt != models.MediaTypeAVIF {
		out = append(out, mt)
	}
	return out
}

// Run scans the catalog and migrates eligible blobs. Per-blob failures are
// recorded and the run continues. The returned error is set only for
// failures that stop the run: an unreachable store, a listing error or
// cancellation. The report is returned in every case.
func (j *Job) Run(ctx context.Context, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	report := &Report{
		RunID:     uuid.NewString(),
		DryRun:    opts.DryRun,
		StartedAt: time.Now().UTC(),
		Records:   []Record{},
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	if err := opts.Transcode.Validate(); err != nil {
		return report, fmt.Errorf("invalid transcode options: %w", err)
	}
	if err := j.blobs.Ping(ctx); err != nil {
		return report, fmt.Errorf("blob store unreachable: %w", err)
	}

	log := j.logger.With("run_id", report.RunID, "dry_run", opts.DryRun)
	log.Info("recompress started",
		"limit", opts.Limit,
		"max_width", opts.Transcode.MaxWidth,
		"max_height", opts.Transcode.MaxHeight,
		"quality", opts.Transcode.Quality,
		"format", opts.Transcode.Format)

	cur := j.blobs.List(ctx, blobstore.Filter{
		MediaTypePrefix:   "image/",
		ExcludeMediaTypes: TargetExclusions(opts.Transcode.Format),
		PageSize:          opts.PageSize,
	})
	defer cur.Close()

	for {
		if opts.Limit > 0 && report.Processed >= opts.Limit {
			log.Info("limit reached", "processed", report.Processed)
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !cur.Next() {
			break
		}

		rec, err := j.migrate(ctx, log, cur.Blob(), opts)
		if err != nil {
			return report, err
		}
		report.add(rec)
		if j.OnRecord != nil {
			j.OnRecord(rec)
		}
	}
	if err := cur.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		return report, fmt.Errorf("list blobs: %w", err)
	}

	log.Info("recompress finished",
		"scanned", report.Scanned,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"bytes_saved", report.BytesSaved)
	return report, nil
}

// migrate handles one blob. The error return is reserved for failures that
// must stop the run. Cancelling the run context does not reach into a blob
// already in flight: only PerBlobTimeout bounds it, and Run notices the
// cancellation before the next blob.
func (j *Job) migrate(ctx context.Context, log *slog.Logger, blob models.Blob, opts Options) (Record, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.PerBlobTimeout)
	defer cancel()

	oldLocator := refindex.Locator(blob.ID)
	rec := Record{
		OldID:       blob.ID,
		OldLocator:  oldLocator,
		Name:        blob.DisplayName,
		MediaType:   blob.MediaType,
		BeforeBytes: blob.ByteLength,
	}
	log = log.With("id", blob.ID)
	finish := func(outcome Outcome, err error) (Record, error) {
		rec.Outcome = outcome
		if err != nil {
			rec.Error = err.Error()
		}
		rec.Duration = time.Since(started)
		return rec, nil
	}

	data, err := j.download(ctx, blob.ID)
	if err != nil {
		if errors.Is(err, blobstore.ErrStoreNotReady) {
			return rec, err
		}
		log.Warn("download failed", "error", err)
		return finish(OutcomeFailedDownload, err)
	}
	rec.BeforeBytes = int64(len(data))

	res, err := j.transcoder.Transcode(data, blob.DisplayName, opts.Transcode)
	if err != nil {
		log.Warn("transcode failed", "name", blob.DisplayName, "error", err)
		return finish(OutcomeFailedTranscode, err)
	}
	rec.AfterBytes = int64(len(res.Data))
	rec.NewName = res.Name

	if len(res.Data) >= len(data) {
		log.Info("skipped, no gain", "before", rec.BeforeBytes, "after", rec.AfterBytes)
		return finish(OutcomeSkippedNoGain, nil)
	}

	if opts.DryRun {
		counts, err := j.refs.Count(ctx, oldLocator)
		if err != nil {
			log.Warn("reference count failed", "error", err)
		}
		rec.References = counts
		log.Info("would migrate", "before", rec.BeforeBytes, "after", rec.AfterBytes, "name", res.Name,
			"single_field_refs", counts.SingleFieldUpdates, "array_field_refs", counts.ArrayFieldUpdates)
		return finish(OutcomeDryRun, nil)
	}

	meta := map[string]any{
		models.MetaSupersedesID:       blob.ID,
		models.MetaOriginalMediaType:  blob.MediaType,
		models.MetaOriginalByteLength: len(data),
	}
	if blob.DisplayName != "" {
		meta[models.MetaOriginalName] = blob.DisplayName
	}
	newID, err := j.blobs.Put(ctx, bytes.NewReader(res.Data), res.Name, res.MediaType, meta)
	if err != nil {
		if errors.Is(err, blobstore.ErrStoreNotReady) {
			return rec, err
		}
		log.Warn("upload failed", "error", err)
		return finish(OutcomeFailedUpload, err)
	}
	rec.NewID = newID
	rec.NewLocator = refindex.Locator(newID)

	counts, err := j.refs.Rewrite(ctx, oldLocator, rec.NewLocator)
	rec.References = counts
	if err != nil {
		// Some references may already point at the new blob: keep both.
		log.Error("reference rewrite failed, keeping old and new blobs",
			"new_id", newID,
			"single_field_updates", counts.SingleFieldUpdates,
			"array_field_updates", counts.ArrayFieldUpdates,
			"error", err)
		return finish(OutcomeFailedRewrite, err)
	}

	if err := j.blobs.Delete(ctx, blob.ID); err != nil {
		log.Warn("delete of superseded blob failed", "error", err)
		rec.DeleteError = err.Error()
	} else {
		rec.OldDeleted = true
	}

	log.Info("migrated",
		"new_id", newID,
		"before", rec.BeforeBytes,
		"after", rec.AfterBytes,
		"single_field_updates", counts.SingleFieldUpdates,
		"array_field_updates", counts.ArrayFieldUpdates)
	return finish(OutcomeMigrated, nil)
}

func (j *Job) download(ctx context.Context, id string) ([]byte, error) {
	rc, err := j.blobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
