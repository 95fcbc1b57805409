package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	imgx "github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	xwebp "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/slike/internal/metrics"
)

// MaxDimension is the largest width or height a resample may produce.
const MaxDimension = 8192

// MaxSourcePixels caps width*height of a source image, as read from its
// header, before it is decoded.
const MaxSourcePixels = 40_000_000

// Encoder quality settings.
const (
	JPEGQuality = 85
	WebPQuality = 85
	AVIFQuality = 60
	AVIFSpeed   = 10
)

// ErrUnsupportedFormat is returned for a Format outside the supported set.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ErrSourceTooLarge is returned when a source image header declares more
// than MaxSourcePixels pixels.
var ErrSourceTooLarge = errors.New("source image is too large")

type decodeFunc func(io.Reader) (image.Image, error)

type configFunc func(io.Reader) (image.Config, error)

type encodeFunc func(io.Writer, image.Image) error

var configDecoders = [numFormats]configFunc{
	JPEG: jpeg.DecodeConfig,
	PNG:  png.DecodeConfig,
	WebP: xwebp.DecodeConfig,
	AVIF: avif.DecodeConfig,
}

var decoders = [numFormats]decodeFunc{
	JPEG: jpeg.Decode,
	PNG:  png.Decode,
	WebP: xwebp.Decode,
	AVIF: avif.Decode,
}

var encoders = [numFormats]encodeFunc{
	JPEG: func(w io.Writer, m image.Image) error {
		return jpeg.Encode(w, m, &jpeg.Options{Quality: JPEGQuality})
	},
	PNG: png.Encode,
	WebP: func(w io.Writer, m image.Image) error {
		return webp.Encode(w, m, &webp.Options{Quality: WebPQuality})
	},
	AVIF: func(w io.Writer, m image.Image) error {
		return avif.Encode(w, m, avif.Options{Quality: AVIFQuality, Speed: AVIFSpeed})
	},
}

// Codecs decodes, encodes and resamples images for every supported format.
// Codec setup runs once per Codecs value, on the first call to Ready.
type Codecs struct {
	guard *InitGuard
}

// NewCodecs returns codecs whose warm-up has not started yet.
func NewCodecs() *Codecs {
	c := &Codecs{}
	c.guard = NewInitGuard(c.warmUp)
	return c
}

// Ready waits until every codec has been initialized.
func (c *Codecs) Ready(ctx context.Context) error {
	return c.guard.Wait(ctx)
}

// Initialized reports whether warm-up finished successfully.
func (c *Codecs) Initialized() bool {
	return c.guard.Ready()
}

// warmUp pushes a single pixel through every encoder and decoder so
// lazily-built codec state exists before the first real request.
func (c *Codecs) warmUp(ctx context.Context) error {
	pixel := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	pixel.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	g, _ := errgroup.WithContext(ctx)
	for _, f := range allFormats {
		g.Go(func() error {
			data, err := c.Encode(pixel, f)
			if err != nil {
				return fmt.Errorf("warming %s encoder: %w", f, err)
			}
			if _, err := c.Decode(data, f); err != nil {
				return fmt.Errorf("warming %s decoder: %w", f, err)
			}
			return nil
		})
	}
	err := g.Wait()
	metrics.SetCodecsReady(err == nil)
	return err
}

// Decode decodes data as f into a non-premultiplied RGBA image. Sources
// whose header declares more than MaxSourcePixels pixels are rejected with
// ErrSourceTooLarge without decoding the pixel data.
func (c *Codecs) Decode(data []byte, f Format) (*image.NRGBA, error) {
	if !f.Valid() {
		return nil, ErrUnsupportedFormat
	}

	cfg, err := configDecoders[f](bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s header: %w", f, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decoding %s: empty image", f)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, fmt.Errorf("decoding %s: %dx%d: %w", f, cfg.Width, cfg.Height, ErrSourceTooLarge)
	}

	img, err := decoders[f](bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", f, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("decoding %s: empty image", f)
	}

	if nrgba, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return nrgba, nil
	}
	return imgx.Clone(img), nil
}

// Encode encodes img as f.
func (c *Codecs) Encode(img *image.NRGBA, f Format) ([]byte, error) {
	if !f.Valid() {
		return nil, ErrUnsupportedFormat
	}

	var buf bytes.Buffer
	if err := encoders[f](&buf, img); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", f, err)
	}
	return buf.Bytes(), nil
}

// Resample scales img to exactly width x height using fit.
func (c *Codecs) Resample(img *image.NRGBA, width, height int, fit Fit) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("target dimensions must be greater than zero, got %dx%d", width, height)
	}
	if width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("target dimensions %dx%d exceed %d", width, height, MaxDimension)
	}

	// Linear is a triangle filter.
	if fit == FitCrop {
		return imgx.Fill(img, width, height, imgx.Center, imgx.Linear), nil
	}
	return imgx.Resize(img, width, height, imgx.Linear), nil
}
