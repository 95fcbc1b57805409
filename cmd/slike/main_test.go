package main

import (
	"bytes"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/slike/internal/config"
)

func TestLevelRouter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := slog.New(newLogHandler(&stdout, &stderr)).With("component", "test")

	logger.Debug("hidden")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	assert.NotContains(t, stdout.String(), "hidden")
	assert.Contains(t, stdout.String(), "info message")
	assert.Contains(t, stdout.String(), "warn message")
	assert.Contains(t, stdout.String(), "component=test")
	assert.NotContains(t, stdout.String(), "error message")
	assert.Contains(t, stderr.String(), "error message")
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags(config.Default(), []string{
		"-a", ":9090",
		"-format", "avif",
		"-c", "60",
		"-timeout", "2s",
		"-w=false",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "avif", cfg.DefaultFormat)
	assert.Equal(t, time.Minute, cfg.CacheMaxAge)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.False(t, cfg.Warm)
}

func TestParseFlagsKeepsBase(t *testing.T) {
	base := config.Default()
	base.ImageProxy = "https://relay.example/"

	cfg, err := parseFlags(base, nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)
}

func TestParseFlagsErrors(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFlags(config.Default(), []string{"-h"}, &out)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, out.String(), "Usage: slike")

	_, err = parseFlags(config.Default(), []string{"extra"}, io.Discard)
	assert.Error(t, err)

	_, err = parseFlags(config.Default(), []string{"-format", "bmp"}, io.Discard)
	assert.Error(t, err)
}

func TestBuildHandler(t *testing.T) {
	cfg := config.Default()
	handler, codecs, err := buildHandler(cfg)
	require.NoError(t, err)
	require.NotNil(t, codecs)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestBuildHandlerBadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - url: '('\n    referer: https://a.example\n"), 0o644))

	cfg := config.Default()
	cfg.RulesPath = path
	_, _, err := buildHandler(cfg)
	assert.Error(t, err)
}

func TestWarmCodecsFlipsReadiness(t *testing.T) {
	handler, codecs, err := buildHandler(config.Default())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	warmCodecs(codecs)
	assert.True(t, codecs.Initialized())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyWithoutWarmUp(t *testing.T) {
	cfg := config.Default()
	cfg.Warm = false
	handler, codecs, err := buildHandler(cfg)
	require.NoError(t, err)
	require.False(t, codecs.Initialized())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
