// Package config holds the server configuration and its sources: built-in
// defaults, an optional .env file, environment variables and a YAML file of
// extra referer rules. Command-line flags are applied on top by main.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/slike/internal/fetch"
	"github.com/erazemk/slike/internal/imaging"
)

// SourceFormat as the default format keeps the format of the fetched image.
const SourceFormat = "source"

// Config is the server configuration.
type Config struct {
	Addr    string
	LogPath string
	// DefaultFormat is used when a request has no format parameter.
	DefaultFormat string
	// CacheMaxAge is sent in Cache-Control on successful responses.
	CacheMaxAge time.Duration
	// MaxBytes caps upstream image bodies.
	MaxBytes int64
	// Timeout bounds each request.
	Timeout time.Duration
	// ImageProxy is an optional relay endpoint used for all upstream fetches.
	ImageProxy string
	// RulesPath is an optional YAML file of extra referer rules.
	RulesPath string
	// Warm starts codec initialization at boot instead of on first request.
	Warm bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:          ":8080",
		DefaultFormat: "webp",
		CacheMaxAge:   365 * 24 * time.Hour,
		MaxBytes:      fetch.DefaultMaxBytes,
		Timeout:       30 * time.Second,
		Warm:          true,
	}
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are given) without overriding variables already set. Missing files are
// not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables read through lookup,
// typically os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("SLIKE_ADDR"); ok {
		c.Addr = v
	}
	if v, ok := get("SLIKE_LOG"); ok {
		c.LogPath = v
	}
	if v, ok := get("SLIKE_DEFAULT_FORMAT"); ok {
		c.DefaultFormat = v
	}
	if v, ok := get("SLIKE_CACHE_MAX_AGE"); ok {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("SLIKE_CACHE_MAX_AGE: %w", err)
		}
		c.CacheMaxAge = d
	}
	if v, ok := get("SLIKE_MAX_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SLIKE_MAX_BYTES: %w", err)
		}
		c.MaxBytes = n
	}
	if v, ok := get("SLIKE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SLIKE_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	if v, ok := get("IMAGE_PROXY"); ok {
		c.ImageProxy = v
	}
	if v, ok := get("SLIKE_RULES"); ok {
		c.RulesPath = v
	}
	if v, ok := get("SLIKE_WARM"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SLIKE_WARM: %w", err)
		}
		c.Warm = b
	}
	return nil
}

// parseSeconds accepts either a bare number of seconds or a Go duration.
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks the configuration for values the server cannot use.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("listen address is empty")
	}
	if _, err := c.OutputFormat(); err != nil {
		return err
	}
	if c.CacheMaxAge < 0 {
		return errors.New("cache max age is negative")
	}
	if c.MaxBytes <= 0 {
		return errors.New("max bytes must be positive")
	}
	if c.Timeout < 0 {
		return errors.New("timeout is negative")
	}
	if _, err := c.RelayURL(); err != nil {
		return err
	}
	return nil
}

// OutputFormat returns the default output format. The zero Format means
// the source format is kept.
func (c Config) OutputFormat() (imaging.Format, error) {
	if strings.EqualFold(c.DefaultFormat, SourceFormat) {
		return 0, nil
	}
	f, ok := imaging.ParseFormat(c.DefaultFormat)
	if !ok {
		return 0, fmt.Errorf("unsupported default format %q", c.DefaultFormat)
	}
	return f, nil
}

// RelayURL parses ImageProxy. It returns nil when no relay is configured.
func (c Config) RelayURL() (*url.URL, error) {
	if c.ImageProxy == "" {
		return nil, nil
	}
	u, err := url.Parse(c.ImageProxy)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid image proxy endpoint %q", c.ImageProxy)
	}
	return u, nil
}

type rulesFile struct {
	Rules []ruleEntry `yaml:"rules"`
}

type ruleEntry struct {
	URL     string `yaml:"url"`
	Referer string `yaml:"referer"`
	Force   bool   `yaml:"force"`
}

// LoadRules reads extra referer rules from a YAML file:
//
//	rules:
//	  - url: '^https://cdn\.example\.com'
//	    referer: https://www.example.com
//	    force: false
func LoadRules(path string) (fetch.RuleTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses the YAML rules document produced by LoadRules.
func ParseRules(data []byte) (fetch.RuleTable, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	rules := make(fetch.RuleTable, 0, len(f.Rules))
	for i, e := range f.Rules {
		r, err := fetch.NewRule(e.URL, e.Referer, e.Force)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Rules returns the built-in referer rules followed by the rules from
// RulesPath, if set.
func (c Config) Rules() (fetch.RuleTable, error) {
	rules := fetch.DefaultRules()
	if c.RulesPath == "" {
		return rules, nil
	}
	extra, err := LoadRules(c.RulesPath)
	if err != nil {
		return nil, err
	}
	return append(rules, extra...), nil
}
