package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/erazemk/slike/internal/metrics"
)

// DefaultMaxBytes caps the size of a fetched image body.
const DefaultMaxBytes = 20 << 20

// RemoteImage is a fetched upstream body and its declared content type.
type RemoteImage struct {
	Data        []byte
	ContentType string
}

// UpstreamError reports a failed upstream fetch. Status is the upstream
// HTTP status, or 0 when no response was received.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves images from client-supplied URLs.
type Fetcher struct {
	// Client performs the requests. It follows redirects with the net/http
	// default policy. Nil means http.DefaultClient.
	Client *http.Client
	// Rules selects spoofed Referer/Origin headers.
	Rules RuleTable
	// Relay, when set, is an endpoint that fetches ?url= on our behalf and
	// applies its own header policy.
	Relay *url.URL
	// MaxBytes caps the body size read by Fetch. Zero means DefaultMaxBytes.
	MaxBytes int64
}

// NewRequest validates raw and assembles the outbound request without
// sending it.
func (f *Fetcher) NewRequest(ctx context.Context, raw string) (*http.Request, error) {
	target, err := ParseTarget(raw)
	if err != nil {
		return nil, err
	}

	if f.Relay != nil {
		relayURL := *f.Relay
		q := relayURL.Query()
		q.Set("url", target.String())
		relayURL.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, relayURL.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("building relay request: %w", err)
		}
		req.Header.Set("User-Agent", UserAgent)
		req.Header.Set("Accept", AcceptHeader)
		return req, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, ErrInvalidURL
	}
	req.Header = f.Rules.Headers(target)
	return req, nil
}

// Open sends the request for raw and returns the successful response. The
// caller must close the body.
func (f *Fetcher) Open(ctx context.Context, raw string) (*http.Response, error) {
	req, err := f.NewRequest(ctx, raw)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := f.client().Do(req)
	if err != nil {
		metrics.ObserveUpstream("error", time.Since(start))
		return nil, &UpstreamError{Message: "Failed to fetch image", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		metrics.ObserveUpstream("status", time.Since(start))
		return nil, &UpstreamError{Status: resp.StatusCode, Message: f.failureMessage(resp)}
	}

	metrics.ObserveUpstream("ok", time.Since(start))
	return resp, nil
}

// Fetch downloads the image at raw.
func (f *Fetcher) Fetch(ctx context.Context, raw string) (*RemoteImage, error) {
	resp, err := f.Open(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &UpstreamError{Message: "Failed to read image body", Err: err}
	}
	if int64(len(data)) > limit {
		return nil, &UpstreamError{Message: fmt.Sprintf("Upstream image exceeds %d bytes", limit)}
	}

	return &RemoteImage{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// failureMessage describes a non-2xx response. A relay reports its own
// reason in a JSON error body.
func (f *Fetcher) failureMessage(resp *http.Response) string {
	msg := "Failed to fetch image: " + http.StatusText(resp.StatusCode)
	if f.Relay == nil {
		return msg
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return "Failed to fetch image via proxy"
}
