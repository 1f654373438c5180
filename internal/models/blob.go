package models

import (
	"fmt"
	"mime"
	"strings"
	"time"
)

// Metadata keys recorded on blobs written by ingestion and recompression.
const (
	MetaOriginalName       = "originalName"
	MetaOriginalMediaType  = "originalMediaType"
	MetaOriginalByteLength = "originalByteLength"
	MetaSupersedesID       = "supersedesId"
)

const (
	MediaTypeOctetStream = "application/octet-stream"
	MediaTypeJPEG        = "image/jpeg"
	MediaTypePNG         = "image/png"
	MediaTypeWebP        = "image/webp"
	MediaTypeAVIF        = "image/avif"

	imageMediaTypePrefix = "image/"
)

// Blob is the catalog entry for one immutable stored object.
type Blob struct {
	ID          string         `json:"id" yaml:"id"`
	DisplayName string         `json:"display_name" yaml:"display_name"`
	ByteLength  int64          `json:"byte_length" yaml:"byte_length"`
	MediaType   string         `json:"media_type" yaml:"media_type"`
	Digest      string         `json:"digest,omitempty" yaml:"digest,omitempty"`
	ChunkSize   int            `json:"chunk_size" yaml:"chunk_size"`
	ChunkCount  int            `json:"chunk_count" yaml:"chunk_count"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
}

// MetaString returns a string metadata value, or "" when absent.
func (b Blob) MetaString(key string) string {
	if b.Metadata == nil {
		return ""
	}
	switch v := b.Metadata[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

// NormalizeMediaType lowercases a media type, strips parameters and folds
// the common image/jpg alias. Empty input yields "".
func NormalizeMediaType(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return "", fmt.Errorf("invalid media type %q: %w", raw, err)
	}
	parsed = strings.ToLower(strings.TrimSpace(parsed))
	switch parsed {
	case "image/jpg", "image/pjpeg":
		return MediaTypeJPEG, nil
	case "image/x-png":
		return MediaTypePNG, nil
	}
	return parsed, nil
}

// IsImageMediaType reports whether a normalized media type is an image type.
func IsImageMediaType(mediaType string) bool {
	return strings.HasPrefix(mediaType, imageMediaTypePrefix) && len(mediaType) > len(imageMediaTypePrefix)
}
