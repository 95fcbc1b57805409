package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/slike/internal/fetch"
)

// ProxyCacheControl is sent on every relayed response.
const ProxyCacheControl = "public, max-age=31536000"

var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ProxyHandler relays upstream images unchanged, with spoofed request
// headers.
type ProxyHandler struct {
	Fetcher *fetch.Fetcher
}

// Relay handles GET /proxy/?url=.
func (h *ProxyHandler) Relay(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		jsonError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}

	resp, err := h.Fetcher.Open(r.Context(), rawURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	dst := w.Header()
	for _, name := range connectionHeaders(resp.Header) {
		resp.Header.Del(name)
	}
	for name, values := range resp.Header {
		if hopByHop[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	if dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", "application/octet-stream")
	}
	dst.Set("Cache-Control", ProxyCacheControl)

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Warn("relaying image body", "request_id", RequestID(r.Context()), "url", rawURL, "error", err)
	}
}

func (h *ProxyHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fetch.ErrInvalidURL):
		jsonError(w, http.StatusBadRequest, "Invalid image url")
		return
	case errors.Is(err, fetch.ErrUnsupportedScheme):
		jsonError(w, http.StatusBadRequest, "Only http and https protocols are supported")
		return
	}

	body := map[string]any{"error": "Unexpected error fetching image"}
	var upErr *fetch.UpstreamError
	if errors.As(err, &upErr) {
		body["error"] = upErr.Message
		if upErr.Status != 0 {
			body["status"] = upErr.Status
		}
	}
	slog.Error("relaying image", "request_id", RequestID(r.Context()), "url", r.URL.Query().Get("url"), "error", err)
	jsonResponse(w, http.StatusBadGateway, body)
}

// connectionHeaders returns the extra hop-by-hop header names listed in
// the Connection header.
func connectionHeaders(h http.Header) []string {
	var names []string
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}
