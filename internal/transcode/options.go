package transcode

import (
	"fmt"
	"strings"

	"github.com/Agronaut41/admin-cc/internal/models"
)

// Format is an output encoding.
type Format string

const (
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
	FormatAVIF Format = "avif"
)

// ParseFormat accepts the format names used on the command line and in
// config files. "jpg" is an alias for jpeg.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "webp":
		return FormatWebP, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "avif":
		return FormatAVIF, nil
	default:
		return "", fmt.Errorf("unknown image format %q (expected webp|jpeg|avif)", raw)
	}
}

// MediaType returns the media type written for f.
func (f Format) MediaType() string {
	switch f {
	case FormatWebP:
		return models.MediaTypeWebP
	case FormatJPEG:
		return models.MediaTypeJPEG
	case FormatAVIF:
		return models.MediaTypeAVIF
	default:
		return ""
	}
}

// Extension returns the canonical file extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// Options bound the output of Transcode.
type Options struct {
	MaxWidth  int    `json:"max_width" yaml:"max_width"`
	MaxHeight int    `json:"max_height" yaml:"max_height"`
	Quality   int    `json:"quality" yaml:"quality"`
	Format    Format `json:"format" yaml:"format"`
}

const (
	DefaultMaxWidth  = 1280
	DefaultMaxHeight = 1280
	DefaultQuality   = 75
	DefaultFormat    = FormatWebP
)

// DefaultOptions is the policy shared by uploads and recompression.
func DefaultOptions() Options {
	return Options{
		MaxWidth:  DefaultMaxWidth,
		MaxHeight: DefaultMaxHeight,
		Quality:   DefaultQuality,
		Format:    DefaultFormat,
	}
}

// Validate rejects options Transcode cannot honour.
func (o Options) Validate() error {
	if o.MaxWidth <= 0 || o.MaxHeight <= 0 {
		return fmt.Errorf("max dimensions must be > 0 (got %dx%d)", o.MaxWidth, o.MaxHeight)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100 (got %d)", o.Quality)
	}
	if o.Format.MediaType() == "" {
		return fmt.Errorf("unknown image format %q", o.Format)
	}
	return nil
}
