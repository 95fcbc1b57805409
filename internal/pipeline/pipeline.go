// Package pipeline sequences fetch, sniff, decode, resize and encode for a
// single request. Every failure is terminal and carries the HTTP status
// the client should see.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"image"
	"net/http"

	"github.com/erazemk/slike/internal/fetch"
	"github.com/erazemk/slike/internal/imaging"
	"github.com/erazemk/slike/internal/metrics"
)

// Fetcher retrieves remote images.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.RemoteImage, error)
}

// Codec decodes, resamples and encodes images.
type Codec interface {
	Ready(ctx context.Context) error
	Decode(data []byte, f imaging.Format) (*image.NRGBA, error)
	Encode(img *image.NRGBA, f imaging.Format) ([]byte, error)
	Resample(img *image.NRGBA, width, height int, fit imaging.Fit) (*image.NRGBA, error)
}

// Hasher computes placeholder hashes.
type Hasher interface {
	Hash(img *image.NRGBA) ([]byte, error)
}

// Pipeline runs image requests against its collaborators.
type Pipeline struct {
	Fetcher Fetcher
	Codec   Codec
	Hasher  Hasher
}

// New returns a pipeline using the given collaborators.
func New(f Fetcher, c Codec, h Hasher) *Pipeline {
	return &Pipeline{Fetcher: f, Codec: c, Hasher: h}
}

// TransformRequest describes one transform.
type TransformRequest struct {
	URL        string
	Dimensions imaging.DimensionRequest
	// Format is the output format. The zero value keeps the source format.
	Format imaging.Format
}

// Image is an encoded transform result.
type Image struct {
	Data   []byte
	Format imaging.Format
	Width  int
	Height int
	// Resampled is false when the source already had the target size.
	Resampled bool
}

// Meta describes a source image without returning it.
type Meta struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	ThumbHash string `json:"thumbHash"`
}

// Transform fetches, resizes and re-encodes the image described by req.
// Errors are always *Error.
func (p *Pipeline) Transform(ctx context.Context, req TransformRequest) (*Image, error) {
	out, err := p.transform(ctx, req)
	if err != nil {
		recordFailure(err)
		return nil, err
	}
	return out, nil
}

// Meta fetches and decodes the image at rawURL and returns its dimensions
// and ThumbHash. Errors are always *Error.
func (p *Pipeline) Meta(ctx context.Context, rawURL string) (*Meta, error) {
	out, err := p.meta(ctx, rawURL)
	if err != nil {
		recordFailure(err)
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) transform(ctx context.Context, req TransformRequest) (*Image, error) {
	src, srcFormat, err := p.load(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	size := imaging.Size(src)
	target := size
	if !req.Dimensions.Empty() {
		target, err = imaging.Resolve(size, req.Dimensions)
		if err != nil {
			return nil, fail(StageResolve, http.StatusBadRequest, "Either width or height must be provided and greater than zero", err)
		}
	}

	resized := src
	if target != size {
		fit := imaging.FitFor(size, target)
		resized, err = p.Codec.Resample(src, target.Width, target.Height, fit)
		if err != nil {
			return nil, fail(StageResample, http.StatusUnprocessableEntity, "Unable to resize image with the given parameters", err)
		}
	}

	outFormat := req.Format
	if !outFormat.Valid() {
		outFormat = srcFormat
	}

	data, err := p.Codec.Encode(resized, outFormat)
	if err != nil {
		return nil, fail(StageEncode, http.StatusInternalServerError, "Failed to encode resized image", err)
	}

	return &Image{
		Data:      data,
		Format:    outFormat,
		Width:     target.Width,
		Height:    target.Height,
		Resampled: target != size,
	}, nil
}

func (p *Pipeline) meta(ctx context.Context, rawURL string) (*Meta, error) {
	src, _, err := p.load(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	hash, err := p.Hasher.Hash(src)
	if err != nil {
		return nil, fail(StageHash, http.StatusInternalServerError, "Unable to generate thumbhash", err)
	}

	size := imaging.Size(src)
	return &Meta{
		Width:     size.Width,
		Height:    size.Height,
		ThumbHash: base64.StdEncoding.EncodeToString(hash),
	}, nil
}

// load runs the stages shared by every request: fetch, codec readiness,
// format detection and decode.
func (p *Pipeline) load(ctx context.Context, rawURL string) (*image.NRGBA, imaging.Format, error) {
	remote, err := p.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, 0, fetchError(err)
	}

	if err := p.Codec.Ready(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, 0, fail(StageInit, http.StatusServiceUnavailable, "Image codecs are still initializing", err)
		}
		return nil, 0, fail(StageInit, http.StatusInternalServerError, "Failed to prepare image codecs", err)
	}

	format, ok := imaging.Detect(remote.Data, remote.ContentType)
	if !ok {
		return nil, 0, fail(StageSniff, http.StatusUnsupportedMediaType, "Unsupported or unrecognised image format", nil)
	}

	img, err := p.Codec.Decode(remote.Data, format)
	if errors.Is(err, imaging.ErrSourceTooLarge) {
		return nil, 0, fail(StageDecode, http.StatusUnprocessableEntity, "Source image dimensions exceed the supported limit", err)
	}
	if err != nil {
		return nil, 0, fail(StageDecode, http.StatusUnprocessableEntity, "Failed to decode source image", err)
	}
	return img, format, nil
}

func fetchError(err error) *Error {
	switch {
	case errors.Is(err, fetch.ErrInvalidURL):
		return fail(StageFetch, http.StatusBadRequest, "Invalid image url", err)
	case errors.Is(err, fetch.ErrUnsupportedScheme):
		return fail(StageFetch, http.StatusBadRequest, "Only http and https protocols are supported", err)
	}

	var upErr *fetch.UpstreamError
	if errors.As(err, &upErr) {
		e := fail(StageFetch, http.StatusBadGateway, upErr.Message, err)
		e.UpstreamStatus = upErr.Status
		return e
	}
	return fail(StageFetch, http.StatusBadGateway, "Unexpected error fetching image", err)
}

func recordFailure(err error) {
	var pe *Error
	if errors.As(err, &pe) {
		metrics.RecordStageFailure(string(pe.Stage))
	}
}
