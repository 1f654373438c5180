package main

import (
	"context"
	"errors"
	"net"

	"github.com/Agronaut41/admin-cc/internal/api"
	"github.com/Agronaut41/admin-cc/internal/blobstore"
	"github.com/Agronaut41/admin-cc/internal/recompress"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "resource_exhausted":
			lines = append(lines, "hint: too many concurrent uploads; retry shortly.")
		case "request_too_large":
			lines = append(lines, "hint: raise uploads.max_upload_bytes on the server to accept larger images.")
		case "unsupported_media_type":
			lines = append(lines, "hint: only image/* uploads are accepted; pass --media-type to override detection.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify ADMINCC_API_URL points to an admincc server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	switch {
	case errors.Is(err, recompress.ErrAlreadyRunning):
		lines = append(lines, "hint: wait for the other run to finish, or remove a stale lock only if no admincc process is running.")
	case errors.Is(err, blobstore.ErrStoreNotReady):
		lines = append(lines, "hint: the database was not available in time; raise storage.ready_wait_seconds or check db_path.")
	case errors.Is(err, context.Canceled):
		lines = append(lines, "hint: interrupted; blobs already migrated keep their new references, rerun to continue.")
	case errors.Is(err, context.DeadlineExceeded):
		lines = append(lines, "hint: request timed out; check server health or increase ADMINCC_HTTP_TIMEOUT.")
	}
	if len(lines) > 1 {
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an admincc server is running at ADMINCC_API_URL.",
			"hint: start local server manually with: admincc srv",
			"hint: you can increase ADMINCC_HTTP_TIMEOUT for slower environments.",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
