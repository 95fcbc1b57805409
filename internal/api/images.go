package api

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/slike/internal/imaging"
	"github.com/erazemk/slike/internal/pipeline"
)

// ImageHandler serves transformed images and image metadata.
type ImageHandler struct {
	Pipeline      *pipeline.Pipeline
	DefaultFormat imaging.Format
	CacheMaxAge   time.Duration
}

// Transform handles GET /?url=&width=&height=&format=.
func (h *ImageHandler) Transform(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rawURL := q.Get("url")
	if rawURL == "" {
		jsonError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}

	format := h.DefaultFormat
	if v := strings.TrimSpace(q.Get("format")); v != "" {
		f, ok := imaging.ParseFormat(v)
		if !ok {
			jsonError(w, http.StatusBadRequest, "Unsupported output format")
			return
		}
		format = f
	}

	img, err := h.Pipeline.Transform(r.Context(), pipeline.TransformRequest{
		URL: rawURL,
		Dimensions: imaging.DimensionRequest{
			Width:  dimensionParam(q.Get("width")),
			Height: dimensionParam(q.Get("height")),
		},
		Format: format,
	})
	if err != nil {
		pipelineError(w, r, err)
		return
	}

	writeBody(w, r, img.Format.ContentType(), img.Data, h.CacheMaxAge)
}

// Meta handles GET /meta/?url=.
func (h *ImageHandler) Meta(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		jsonError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}

	meta, err := h.Pipeline.Meta(r.Context(), rawURL)
	if err != nil {
		pipelineError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", cacheControl(h.CacheMaxAge))
	jsonResponse(w, http.StatusOK, meta)
}

// dimensionParam parses a width or height query value. An absent value is
// nil. A value that is present but not a number becomes NaN so that the
// pipeline treats the axis as given but unusable.
func dimensionParam(v string) *float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		f = math.NaN()
	}
	return &f
}
