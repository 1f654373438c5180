package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Agronaut41/admin-cc/internal/api"
	"github.com/Agronaut41/admin-cc/internal/blobstore"
	"github.com/Agronaut41/admin-cc/internal/ingest"
	"github.com/Agronaut41/admin-cc/internal/models"
	"github.com/Agronaut41/admin-cc/internal/refindex"
	"github.com/Agronaut41/admin-cc/internal/store"
)

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	client *api.Client
	blobs  *blobstore.Store
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs := blobstore.New(st, blobstore.Options{})
	svc := ingest.NewService(blobs, nil, ingest.Options{MaxUploadBytes: maxUpload})
	srv := New("127.0.0.1:0", blobs, svc, Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, http: ts, client: api.NewClient(ts.URL), blobs: blobs}
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 3), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename, mediaType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	if mediaType != "" {
		h["Content-Type"] = []string{mediaType}
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func decodeErrorResponse(t *testing.T, body io.Reader) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestUploadServeAndDelete(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()

	locator, err := env.client.Upload(ctx, "cacamba.jpg", "image/jpeg", bytes.NewReader(testJPEG(t, 64, 48)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	id, ok := refindex.ExtractBlobID(locator)
	if !ok || !strings.HasPrefix(locator, refindex.LocatorPrefix) {
		t.Fatalf("unexpected locator %q", locator)
	}

	var served bytes.Buffer
	mediaType, err := env.client.Download(ctx, id, &served)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if mediaType != models.MediaTypeWebP {
		t.Fatalf("expected webp, got %q", mediaType)
	}
	stored, blob, err := env.blobs.ReadAll(ctx, id)
	if err != nil {
		t.Fatalf("read stored blob: %v", err)
	}
	if !bytes.Equal(served.Bytes(), stored) {
		t.Fatal("served bytes differ from stored bytes")
	}
	if blob.MetaString(models.MetaOriginalName) != "cacamba.jpg" {
		t.Fatalf("expected original name in metadata, got %v", blob.Metadata)
	}

	if err := env.client.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.client.Download(ctx, id, io.Discard); !api.IsNotFound(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := env.client.Delete(ctx, id); !api.IsNotFound(err) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestGetFileHeaders(t *testing.T) {
	env := newTestEnv(t, 0)
	ctx := context.Background()
	id, err := env.blobs.Put(ctx, strings.NewReader("hello"), "nota.txt", "text/plain", nil)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	resp, err := http.Get(env.http.URL + "/files/" + strings.ToUpper(id))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/plain" {
		t.Fatalf("expected stored media type, got %q", got)
	}
	if got := resp.Header.Get("Content-Length"); got != "5" {
		t.Fatalf("expected content length 5, got %q", got)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "nota.txt") {
		t.Fatalf("expected display name in disposition, got %q", resp.Header.Get("Content-Disposition"))
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected etag")
	}

	req, _ := http.NewRequest(http.MethodGet, env.http.URL+"/files/"+id, nil)
	req.Header.Set("If-None-Match", etag)
	cached, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional get: %v", err)
	}
	cached.Body.Close()
	if cached.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", cached.StatusCode)
	}
}

func TestGetFileNotFound(t *testing.T) {
	env := newTestEnv(t, 0)
	for _, path := range []string{"/files/0123456789abcdef01234567", "/files/not-an-id"} {
		resp, err := http.Get(env.http.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		errResp := decodeErrorResponse(t, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
		if errResp.Code != "not_found" || errResp.ErrorCode != ErrCodeBlobNotFound {
			t.Fatalf("%s: unexpected error body %+v", path, errResp)
		}
	}
}

func TestUploadErrors(t *testing.T) {
	env := newTestEnv(t, 4096)
	big := testJPEG(t, 200, 200)
	if len(big) <= 4096 {
		t.Fatalf("fixture too small: %d bytes", len(big))
	}

	cases := []struct {
		name      string
		field     string
		filename  string
		mediaType string
		content   []byte
		status    int
		code      string
	}{
		{name: "missing field", field: "file", filename: "a.jpg", mediaType: "image/jpeg", content: []byte("x"), status: http.StatusBadRequest, code: "invalid_argument"},
		{name: "not an image", field: api.UploadField, filename: "a.txt", mediaType: "text/plain", content: []byte("plain text"), status: http.StatusUnsupportedMediaType, code: "unsupported_media_type"},
		{name: "sniffed as not an image", field: api.UploadField, filename: "a.bin", content: []byte("plain text"), status: http.StatusUnsupportedMediaType, code: "unsupported_media_type"},
		{name: "undecodable", field: api.UploadField, filename: "a.png", mediaType: "image/png", content: []byte("not really a png"), status: http.StatusUnprocessableEntity, code: "unprocessable_image"},
		{name: "too large", field: api.UploadField, filename: "big.jpg", mediaType: "image/jpeg", content: big, status: http.StatusRequestEntityTooLarge, code: "request_too_large"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tc.field, tc.filename, tc.mediaType, tc.content)
			resp, err := http.Post(env.http.URL+"/uploads", contentType, body)
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
			if errResp := decodeErrorResponse(t, resp.Body); errResp.Code != tc.code {
				t.Fatalf("expected code %q, got %+v", tc.code, errResp)
			}
		})
	}

	cur := env.blobs.List(context.Background(), blobstore.Filter{})
	defer cur.Close()
	for cur.Next() {
		t.Fatalf("no blob should be stored after failed uploads, found %s", cur.Blob().ID)
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestUploadSniffsMissingMediaType(t *testing.T) {
	env := newTestEnv(t, 0)
	body, contentType := multipartBody(t, api.UploadField, "foto", "", testJPEG(t, 16, 16))
	resp, err := http.Post(env.http.URL+"/uploads", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var out api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Header.Get("Location") != out.URL {
		t.Fatalf("expected Location header %q, got %q", out.URL, resp.Header.Get("Location"))
	}
}

func TestUploadConcurrencyLimit(t *testing.T) {
	env := newTestEnv(t, 0)
	for i := 0; i < cap(env.srv.uploadLimiter); i++ {
		env.srv.uploadLimiter <- struct{}{}
	}

	body, contentType := multipartBody(t, api.UploadField, "a.jpg", "image/jpeg", testJPEG(t, 8, 8))
	resp, err := http.Post(env.http.URL+"/uploads", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)
	if err := env.client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	pending := blobstore.NewPending(blobstore.Options{})
	srv := New("", pending, ingest.NewService(pending, nil, ingest.Options{}), Options{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for pending store, got %d", w.Code)
	}
}

func TestPendingStoreUploadIsInternalError(t *testing.T) {
	pending := blobstore.NewPending(blobstore.Options{})
	srv := New("", pending, ingest.NewService(pending, nil, ingest.Options{}), Options{})

	body, contentType := multipartBody(t, api.UploadField, "a.jpg", "image/jpeg", testJPEG(t, 8, 8))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	errResp := decodeErrorResponse(t, w.Body)
	if errResp.Code != "store_not_ready" || errResp.Error != "internal error" {
		t.Fatalf("unexpected error body %+v", errResp)
	}
}
