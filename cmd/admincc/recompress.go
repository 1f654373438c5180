package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Agronaut41/admin-cc/internal/config"
	"github.com/Agronaut41/admin-cc/internal/recompress"
	"github.com/Agronaut41/admin-cc/internal/refindex"
)

func newRecompressCmd(cfg *config.Config, output *string) *cobra.Command {
	var (
		dryRun bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "recompress",
		Short: "Re-encode stored images and move every reference to the smaller copy",
		Long: `Scans stored images that are not yet webp or avif, transcodes each one and,
when the result is smaller, stores it, points every cacamba and order at the
new locator and deletes the original.

Sizing comes from RECOMPRESS_MAX_W, RECOMPRESS_MAX_H, RECOMPRESS_QUALITY and
RECOMPRESS_FORMAT (or the [recompress] config section). RECOMPRESS_LIMIT caps
how many blobs are processed; --limit overrides it.

Exits non-zero only when the run cannot continue; per-image failures are
reported and skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rc := cfg.Recompress
			if cmd.Flags().Changed("limit") {
				rc.Limit = limit
			}
			return runRecompress(cmd, cfg, rc, dryRun, *output)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "transcode and count references without writing anything")
	cmd.Flags().IntVar(&limit, "limit", 0, "process at most N images (0 = no limit; default from RECOMPRESS_LIMIT)")
	return cmd
}

func runRecompress(cmd *cobra.Command, cfg *config.Config, rc config.RecompressConfig, dryRun bool, output string) error {
	if rc.Limit < 0 {
		return fmt.Errorf("--limit must be >= 0")
	}
	imageOpts, err := transcodeOptions(rc.MaxWidth, rc.MaxHeight, rc.Quality, rc.Format)
	if err != nil {
		return fmt.Errorf("recompress options: %w", err)
	}

	lock, err := recompress.AcquireRunLock(rc.LockPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStack(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	text := isTextOutput(output)
	job := recompress.NewJob(st.blobs, refindex.New(st.db, slog.Default()), nil, slog.Default())
	if text {
		job.OnRecord = func(rec recompress.Record) {
			_ = writePlain("%s\n", recompress.RecordLine(rec))
		}
		mode := "LIVE"
		if dryRun {
			mode = "DRY-RUN"
		}
		_ = writePlain("Recompress %s: max %dx%d, quality %d, %s, limit %s\n",
			mode, imageOpts.MaxWidth, imageOpts.MaxHeight, imageOpts.Quality, imageOpts.Format, limitLabel(rc.Limit))
	}

	report, runErr := job.Run(cmd.Context(), recompress.Options{
		DryRun:         dryRun,
		Limit:          rc.Limit,
		Transcode:      imageOpts,
		PerBlobTimeout: time.Duration(rc.PerBlobTimeoutSeconds) * time.Second,
		PageSize:       rc.PageSize,
	})
	if report != nil {
		var writeErr error
		if text {
			writeErr = recompress.WriteText(stdout, report)
		} else {
			writeErr = writeStructured(output, report)
		}
		if writeErr != nil && runErr == nil {
			runErr = writeErr
		}
	}
	if runErr != nil {
		return fmt.Errorf("recompress run aborted: %w", runErr)
	}
	if report != nil && report.Failed > 0 {
		fmt.Fprintf(os.Stderr, "warning: %d image(s) failed; see the report above\n", report.Failed)
	}
	return nil
}

func limitLabel(limit int) string {
	if limit <= 0 {
		return "none"
	}
	return strconv.Itoa(limit)
}
