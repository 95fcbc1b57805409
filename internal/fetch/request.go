package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Outbound headers sent with every upstream request.
const (
	UserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	AcceptHeader = "image/avif,image/webp,image/apng,image/*,*/*;q=0.8"
)

// opaqueOrigin is how an origin without a scheme/host tuple serializes.
const opaqueOrigin = "null"

var (
	// ErrInvalidURL is returned for URLs that do not parse as absolute URLs.
	ErrInvalidURL = errors.New("invalid image url")
	// ErrUnsupportedScheme is returned for anything other than http and https.
	ErrUnsupportedScheme = errors.New("only http and https protocols are supported")
)

// ParseTarget parses and validates a client-supplied image URL and
// lowercases its host. It never touches the network.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, ErrInvalidURL
	}
	// Hosts are case-insensitive; rules are written against lowercase ones.
	u.Host = strings.ToLower(u.Host)
	return u, nil
}

// Headers returns the outbound headers for target. Referer/Origin come
// from the first rule matching the full URL, or from target's own origin
// when no rule matches.
func (t RuleTable) Headers(target *url.URL) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", UserAgent)
	h.Set("Accept", AcceptHeader)

	referer := originOf(target)
	force := false
	if m, ok := t.Match(target.String()).(Matched); ok {
		referer = m.Rule.Referer
		force = m.Rule.Force
	}

	origin := referer
	if u, err := url.Parse(referer); err == nil && u.IsAbs() {
		origin = originOf(u)
	}

	h.Set("Referer", referer)
	switch {
	case origin != opaqueOrigin:
		h.Set("Origin", origin)
	case force:
		h.Set("Origin", referer)
	}
	return h
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// originOf serializes the origin of u the way browsers do: scheme, host
// and non-default port for hierarchical web schemes, "null" otherwise.
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	defaultPort, ok := defaultPorts[scheme]
	if !ok || u.Host == "" {
		return opaqueOrigin
	}

	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port := u.Port(); port != "" && port != defaultPort {
		host += ":" + port
	}
	return scheme + "://" + host
}
