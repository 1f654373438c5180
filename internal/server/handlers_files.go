package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/Agronaut41/admin-cc/internal/api"
	"github.com/Agronaut41/admin-cc/internal/refindex"
)

// multipartOverhead is the slack allowed above the upload limit for
// boundaries and part headers.
const multipartOverhead = 64 << 10

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		r.Body = http.MaxBytesReader(w, r.Body, s.uploads.MaxUploadBytes()+multipartOverhead)
		if err := r.ParseMultipartForm(s.multipartMemory); err != nil {
			err = classifyMultipartError(err)
			s.writeErrorReq(w, r, httpStatusFromError(err), err)
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		file, header, err := r.FormFile(api.UploadField)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("%s is required", api.UploadField), ErrCodeMissingRequired))
			return
		}
		defer file.Close()

		buffered := bufio.NewReader(file)
		mediaType := strings.TrimSpace(header.Header.Get("Content-Type"))
		if mediaType == "" || mediaType == "application/octet-stream" {
			peek, _ := buffered.Peek(512)
			mediaType = http.DetectContentType(peek)
		}

		locator, err := s.uploads.IngestReader(r.Context(), buffered, header.Filename, mediaType)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		w.Header().Set("Location", locator)
		s.writeJSON(w, http.StatusCreated, api.UploadResponse{URL: locator})
	})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathBlobIDOrNotFound(w, r)
	if !ok {
		return
	}

	blob, err := s.files.Stat(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	etag := ""
	if blob.Digest != "" {
		etag = strconv.Quote(blob.Digest)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	content, err := s.files.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Close()

	h := w.Header()
	h.Set("Content-Type", blob.MediaType)
	h.Set("Content-Length", strconv.FormatInt(blob.ByteLength, 10))
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	if etag != "" {
		h.Set("ETag", etag)
	}
	if blob.DisplayName != "" {
		h.Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": blob.DisplayName}))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	// Headers are gone by now; a failure mid-stream can only be logged.
	if n, err := io.Copy(w, content); err != nil && !errors.Is(err, r.Context().Err()) {
		s.log().Error("stream file", "id", id, "written", n, "error", err)
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathBlobIDOrNotFound(w, r)
	if !ok {
		return
	}
	if err := s.uploads.Release(r.Context(), refindex.Locator(id)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{ID: id})
}
