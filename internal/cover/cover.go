// Package cover produces display thumbnails of audiobook cover art.
package cover

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	defaultMaxWidth    = 600
	defaultJPEGQuality = 85
	defaultMaxPixels   = 100 * 1000 * 1000 // 100 megapixels
)

// ErrTooLarge reports an image whose pixel count exceeds Options.MaxPixels.
var ErrTooLarge = errors.New("image too large to decode")

// Options controls thumbnail generation. Zero fields take defaults.
type Options struct {
	MaxWidth    int
	JPEGQuality int
	MaxPixels   int // width * height limit checked before decoding
}

// Thumbnail is an encoded cover image.
type Thumbnail struct {
	Data   []byte
	Width  int
	Height int
	Format string // "jpeg" or "png"
}

// MediaType returns the MIME type of the encoded data.
func (t Thumbnail) MediaType() string {
	return "image/" + t.Format
}

func (o Options) withDefaults() Options {
	if o.MaxWidth <= 0 {
		o.MaxWidth = defaultMaxWidth
	}
	if o.JPEGQuality <= 0 {
		o.JPEGQuality = defaultJPEGQuality
	}
	if o.JPEGQuality > 100 {
		o.JPEGQuality = 100
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = defaultMaxPixels
	}
	return o
}

// Make decodes input, scales it down to MaxWidth and re-encodes it. Images with transparency
// stay PNG; everything else becomes JPEG.
func Make(input []byte, opts Options) (Thumbnail, error) {
	opts = opts.withDefaults()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("image decode failed: %w", err)
	}
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if pixels > uint64(opts.MaxPixels) {
		return Thumbnail{}, fmt.Errorf("%w: %dx%d (%d pixels)", ErrTooLarge, cfg.Width, cfg.Height, pixels)
	}

	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("image decode failed: %w", err)
	}

	processed := src
	if src.Bounds().Dx() > opts.MaxWidth {
		processed = imaging.Resize(src, opts.MaxWidth, 0, imaging.Lanczos)
	}

	out := Thumbnail{
		Width:  processed.Bounds().Dx(),
		Height: processed.Bounds().Dy(),
	}
	if hasAlpha(processed) {
		out.Data, err = encodePNG(processed)
		out.Format = "png"
	} else {
		out.Data, err = encodeJPEG(processed, opts.JPEGQuality)
		out.Format = "jpeg"
	}
	if err != nil {
		return Thumbnail{}, fmt.Errorf("%s encode failed: %w", out.Format, err)
	}
	return out, nil
}

// FormatForPath picks the output format implied by a file name, or "" when it names neither.
func FormatForPath(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "jpeg"
	}
	return ""
}

// Convert re-encodes t into format ("jpeg" or "png").
func (t Thumbnail) Convert(format string, quality int) (Thumbnail, error) {
	if format == "" || format == t.Format {
		return t, nil
	}
	img, err := imaging.Decode(bytes.NewReader(t.Data))
	if err != nil {
		return Thumbnail{}, fmt.Errorf("image decode failed: %w", err)
	}
	out := Thumbnail{Width: t.Width, Height: t.Height, Format: format}
	switch format {
	case "png":
		out.Data, err = encodePNG(img)
	case "jpeg":
		if quality <= 0 {
			quality = defaultJPEGQuality
		}
		out.Data, err = encodeJPEG(img, quality)
	default:
		return Thumbnail{}, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return Thumbnail{}, fmt.Errorf("%s encode failed: %w", format, err)
	}
	return out, nil
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hasAlpha(img image.Image) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a < 0xFFFF {
				return true
			}
		}
	}
	return false
}
