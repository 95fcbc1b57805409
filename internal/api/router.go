package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erazemk/slike/internal/fetch"
	"github.com/erazemk/slike/internal/imaging"
	"github.com/erazemk/slike/internal/pipeline"
)

// DefaultCacheMaxAge is the Cache-Control max-age used when Options leaves
// it unset.
const DefaultCacheMaxAge = 365 * 24 * time.Hour

// Options tunes the HTTP surface.
type Options struct {
	// DefaultFormat is the output format when a request has no format
	// parameter. The zero value keeps the source format.
	DefaultFormat imaging.Format
	// CacheMaxAge is sent on successful transform and meta responses.
	CacheMaxAge time.Duration
	// Timeout bounds each request. Zero disables the deadline.
	Timeout time.Duration
	// Ready reports whether the server can serve images. Nil means always
	// ready.
	Ready func() bool
}

// NewRouter creates the router with all endpoints registered.
func NewRouter(p *pipeline.Pipeline, f *fetch.Fetcher, opts Options) http.Handler {
	if opts.CacheMaxAge <= 0 {
		opts.CacheMaxAge = DefaultCacheMaxAge
	}

	mux := http.NewServeMux()

	images := &ImageHandler{Pipeline: p, DefaultFormat: opts.DefaultFormat, CacheMaxAge: opts.CacheMaxAge}
	proxy := &ProxyHandler{Fetcher: f}

	timeout := TimeoutMiddleware(opts.Timeout)

	mux.Handle("GET /{$}", instrument("transform", timeout(http.HandlerFunc(images.Transform))))
	mux.Handle("GET /meta/{$}", instrument("meta", timeout(http.HandlerFunc(images.Meta))))
	mux.Handle("GET /proxy/{$}", instrument("proxy", timeout(http.HandlerFunc(proxy.Relay))))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /readyz", readiness(opts.Ready))

	return LoggingMiddleware(mux)
}

// readiness handles GET /readyz.
func readiness(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil && !ready() {
			jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "initializing"})
			return
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
