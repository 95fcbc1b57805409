package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/erazemk/slike/internal/pipeline"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// pipelineError writes err as a JSON error and logs it when it is a server
// fault or hides a cause.
func pipelineError(w http.ResponseWriter, r *http.Request, err error) {
	var pe *pipeline.Error
	if !errors.As(err, &pe) {
		slog.Error("unexpected pipeline error", "request_id", RequestID(r.Context()), "error", err)
		jsonError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	attrs := []any{
		"request_id", RequestID(r.Context()),
		"stage", pe.Stage,
		"status", pe.Status,
		"url", r.URL.Query().Get("url"),
	}
	if pe.Err != nil {
		attrs = append(attrs, "error", pe.Err)
	}
	switch {
	case pe.Internal():
		slog.Error(pe.Message, attrs...)
	case pe.Err != nil:
		slog.Warn(pe.Message, attrs...)
	}

	body := map[string]any{"error": pe.Message}
	if pe.UpstreamStatus != 0 {
		body["status"] = pe.UpstreamStatus
	}
	jsonResponse(w, pe.Status, body)
}

// cacheControl formats a public Cache-Control value.
func cacheControl(maxAge time.Duration) string {
	return "public, max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10)
}

// etag returns a strong entity tag for body.
func etag(body []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(body)
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}

// etagMatches reports whether an If-None-Match header value matches tag.
// Weak comparison is used, as for GET conditional requests.
func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}

// writeBody writes a cacheable successful response, or 304 when the client
// already holds the same representation.
func writeBody(w http.ResponseWriter, r *http.Request, contentType string, body []byte, maxAge time.Duration) {
	tag := etag(body)
	h := w.Header()
	h.Set("Cache-Control", cacheControl(maxAge))
	h.Set("ETag", tag)

	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Warn("writing response", "request_id", RequestID(r.Context()), "error", err)
	}
}
