package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Agronaut41/admin-cc/internal/blobstore"
	"github.com/Agronaut41/admin-cc/internal/models"
	"github.com/Agronaut41/admin-cc/internal/refindex"
	"github.com/Agronaut41/admin-cc/internal/store"
	"github.com/Agronaut41/admin-cc/internal/transcode"
)

func testBlobStore(t *testing.T) (*blobstore.Store, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return blobstore.New(st, blobstore.Options{}), st
}

func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestIngestStoresTranscodedImage(t *testing.T) {
	bs, _ := testBlobStore(t)
	svc := NewService(bs, nil, Options{})
	ctx := context.Background()
	src := testJPEG(t, 320, 240)

	loc, err := svc.Ingest(ctx, src, "foto.jpg", "image/jpg")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	id, ok := refindex.ExtractBlobID(loc)
	if !ok || loc != refindex.Locator(id) {
		t.Fatalf("unexpected locator %q", loc)
	}

	blob, err := bs.Stat(ctx, id)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if blob.MediaType != models.MediaTypeWebP || blob.DisplayName != "foto.webp" {
		t.Fatalf("unexpected blob: %#v", blob)
	}
	if blob.MetaString(models.MetaOriginalMediaType) != models.MediaTypeJPEG {
		t.Fatalf("expected normalized original media type, got %v", blob.Metadata)
	}
	if got, _ := blob.Metadata[models.MetaOriginalByteLength].(float64); int(got) != len(src) {
		t.Fatalf("expected originalByteLength %d, got %v", len(src), blob.Metadata[models.MetaOriginalByteLength])
	}
	if blob.MetaString(models.MetaOriginalName) != "foto.jpg" {
		t.Fatalf("expected originalName, got %v", blob.Metadata)
	}

	rc, err := bs.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err != nil || format != "webp" {
		t.Fatalf("stored bytes are not webp: %v %q", err, format)
	}
}

func TestIngestRejectsNonImage(t *testing.T) {
	bs, st := testBlobStore(t)
	svc := NewService(bs, nil, Options{})

	for _, mt := range []string{"application/pdf", "text/plain", "", "image/", "garbage;;"} {
		_, err := svc.Ingest(context.Background(), []byte("%PDF-1.4"), "doc.pdf", mt)
		if !errors.Is(err, ErrUnsupportedMedia) {
			t.Fatalf("%q: expected ErrUnsupportedMedia, got %v", mt, err)
		}
	}
	assertNoBlobs(t, st)
}

func TestIngestRejectsOversizedUpload(t *testing.T) {
	bs, st := testBlobStore(t)
	svc := NewService(bs, nil, Options{MaxUploadBytes: 10})

	_, err := svc.Ingest(context.Background(), make([]byte, 11), "big.jpg", "image/jpeg")
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("expected ErrUploadTooLarge, got %v", err)
	}
	_, err = svc.IngestReader(context.Background(), bytes.NewReader(make([]byte, 64)), "big.jpg", "image/jpeg")
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("reader: expected ErrUploadTooLarge, got %v", err)
	}
	assertNoBlobs(t, st)
}

func TestIngestCorruptImageStoresNothing(t *testing.T) {
	bs, st := testBlobStore(t)
	svc := NewService(bs, nil, Options{})

	_, err := svc.Ingest(context.Background(), []byte("not really a jpeg"), "x.jpg", "image/jpeg")
	if !errors.Is(err, transcode.ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	assertNoBlobs(t, st)
}

func TestIngestPendingStore(t *testing.T) {
	svc := NewService(blobstore.NewPending(blobstore.Options{}), nil, Options{})
	_, err := svc.Ingest(context.Background(), testJPEG(t, 16, 16), "x.jpg", "image/jpeg")
	if !errors.Is(err, blobstore.ErrStoreNotReady) {
		t.Fatalf("expected ErrStoreNotReady, got %v", err)
	}
}

func TestReplaceKeepsOldBlobAndReleaseDeletes(t *testing.T) {
	bs, _ := testBlobStore(t)
	svc := NewService(bs, nil, Options{})
	ctx := context.Background()

	oldLoc, err := svc.Ingest(ctx, testJPEG(t, 32, 32), "a.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	newLoc, err := svc.Replace(ctx, oldLoc, testJPEG(t, 48, 48), "b.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if newLoc == oldLoc {
		t.Fatal("expected a fresh locator")
	}
	oldID, _ := refindex.ExtractBlobID(oldLoc)
	if _, err := bs.Stat(ctx, oldID); err != nil {
		t.Fatalf("old blob should survive replace: %v", err)
	}

	if err := svc.Release(ctx, oldLoc); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := bs.Stat(ctx, oldID); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected old blob gone, got %v", err)
	}
	if err := svc.Release(ctx, oldLoc); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second release, got %v", err)
	}
	if err := svc.Release(ctx, "https://cdn.example.com/legacy.png"); err != nil {
		t.Fatalf("expected no-op for foreign locator, got %v", err)
	}
}

type fakeTranscoder struct {
	res transcode.Result
}

func (f fakeTranscoder) Transcode(data []byte, sourceName string, opts transcode.Options) (transcode.Result, error) {
	return f.res, nil
}

func TestIngestUsesConfiguredTranscoder(t *testing.T) {
	bs, _ := testBlobStore(t)
	svc := NewService(bs, fakeTranscoder{res: transcode.Result{Data: []byte("tiny"), MediaType: "image/avif", Name: "x.avif"}}, Options{})

	loc, err := svc.Ingest(context.Background(), []byte("whatever"), "x.png", "IMAGE/PNG; charset=binary")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	id, _ := refindex.ExtractBlobID(loc)
	blob, err := bs.Stat(context.Background(), id)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if blob.MediaType != "image/avif" || !strings.HasSuffix(blob.DisplayName, ".avif") {
		t.Fatalf("unexpected blob %#v", blob)
	}
	if blob.MetaString(models.MetaOriginalMediaType) != "image/png" {
		t.Fatalf("expected normalized media type, got %v", blob.Metadata)
	}
}

func assertNoBlobs(t *testing.T, st *store.Store) {
	t.Helper()
	n, err := st.CountBlobs(context.Background())
	if err != nil {
		t.Fatalf("count blobs: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no stored blobs, got %d", n)
	}
}
