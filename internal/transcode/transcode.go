// Package transcode decodes an image, fits it inside a bounding box and
// re-encodes it.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path"
	"strings"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// Result is one transcoded image.
type Result struct {
	Data      []byte
	MediaType string
	Name      string
	Width     int
	Height    int
}

// Transcoder is the operation used by the upload and recompression paths.
type Transcoder interface {
	Transcode(data []byte, sourceName string, opts Options) (Result, error)
}

// ImageTranscoder implements Transcoder with the imaging library.
type ImageTranscoder struct{}

// New returns an ImageTranscoder.
func New() *ImageTranscoder {
	return &ImageTranscoder{}
}

// Transcode decodes data, applies its EXIF orientation, fits it inside
// MaxWidth x MaxHeight without enlarging and encodes it as opts.Format.
// On failure the error is an *Error and no bytes are returned.
func (t *ImageTranscoder) Transcode(data []byte, sourceName string, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, &Error{Source: sourceName, Stage: "options", Err: err}
	}
	if len(data) == 0 {
		return Result{}, &Error{Source: sourceName, Stage: "decode", Err: errors.New("empty image data")}
	}

	img, err := decode(data)
	if err != nil {
		return Result{}, &Error{Source: sourceName, Stage: "decode", Err: err}
	}

	fitted := imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)

	out, err := encode(fitted, opts)
	if err != nil {
		return Result{}, &Error{Source: sourceName, Stage: "encode", Err: err}
	}

	b := fitted.Bounds()
	return Result{
		Data:      out,
		MediaType: opts.Format.MediaType(),
		Name:      OutputName(sourceName, opts.Format),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// Transcode runs the default ImageTranscoder.
func Transcode(data []byte, sourceName string, opts Options) (Result, error) {
	return New().Transcode(data, sourceName, opts)
}

// decode recovers from decoder panics on hostile input.
func decode(data []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()
	img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("image has no pixels")
	}
	return img, nil
}

func encode(img image.Image, opts Options) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("encoder panic: %v", r)
		}
	}()

	var buf bytes.Buffer
	switch opts.Format {
	case FormatWebP:
		err = webp.Encode(&buf, img, webp.Options{Quality: opts.Quality, Method: 4})
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: opts.Quality})
	case FormatAVIF:
		err = avif.Encode(&buf, img, avif.Options{
			Quality:           opts.Quality,
			QualityAlpha:      opts.Quality,
			Speed:             10,
			ChromaSubsampling: image.YCbCrSubsampleRatio420,
		})
	default:
		err = fmt.Errorf("unknown image format %q", opts.Format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// OutputName replaces the extension of sourceName with the canonical one for f.
func OutputName(sourceName string, f Format) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(sourceName), `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "image"
	}
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base + "." + f.Extension()
}
