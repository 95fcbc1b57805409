package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/slike/internal/fetch"
	"github.com/erazemk/slike/internal/imaging"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	f, err := cfg.OutputFormat()
	require.NoError(t, err)
	assert.Equal(t, imaging.WebP, f)
	assert.Equal(t, 365*24*time.Hour, cfg.CacheMaxAge)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"SLIKE_ADDR":           "127.0.0.1:9000",
		"SLIKE_DEFAULT_FORMAT": "png",
		"SLIKE_CACHE_MAX_AGE":  "3600",
		"SLIKE_MAX_BYTES":      "1024",
		"SLIKE_TIMEOUT":        "5s",
		"IMAGE_PROXY":          "https://relay.example/",
		"SLIKE_WARM":           "false",
		"SLIKE_LOG":            "   ",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "png", cfg.DefaultFormat)
	assert.Equal(t, time.Hour, cfg.CacheMaxAge)
	assert.Equal(t, int64(1024), cfg.MaxBytes)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "https://relay.example/", cfg.ImageProxy)
	assert.False(t, cfg.Warm)
	assert.Empty(t, cfg.LogPath)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvCacheMaxAgeDuration(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"SLIKE_CACHE_MAX_AGE": "2h"})))
	assert.Equal(t, 2*time.Hour, cfg.CacheMaxAge)
}

func TestApplyEnvErrors(t *testing.T) {
	for key, value := range map[string]string{
		"SLIKE_CACHE_MAX_AGE": "forever",
		"SLIKE_MAX_BYTES":     "lots",
		"SLIKE_TIMEOUT":       "10",
		"SLIKE_WARM":          "maybe",
	} {
		cfg := Default()
		assert.Error(t, cfg.ApplyEnv(envMap(map[string]string{key: value})), key)
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"empty addr":       func(c *Config) { c.Addr = "" },
		"bad format":       func(c *Config) { c.DefaultFormat = "gif" },
		"negative max age": func(c *Config) { c.CacheMaxAge = -time.Second },
		"zero max bytes":   func(c *Config) { c.MaxBytes = 0 },
		"bad relay":        func(c *Config) { c.ImageProxy = "ftp://relay.example" },
		"relay no host":    func(c *Config) { c.ImageProxy = "https://" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestOutputFormatSource(t *testing.T) {
	cfg := Default()
	cfg.DefaultFormat = "Source"
	f, err := cfg.OutputFormat()
	require.NoError(t, err)
	assert.False(t, f.Valid())
}

func TestRelayURL(t *testing.T) {
	cfg := Default()
	u, err := cfg.RelayURL()
	require.NoError(t, err)
	assert.Nil(t, u)

	cfg.ImageProxy = "https://relay.example/fetch"
	u, err = cfg.RelayURL()
	require.NoError(t, err)
	assert.Equal(t, "relay.example", u.Host)
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(`
rules:
  - url: '^https://cdn\.example\.com'
    referer: https://www.example.com
  - url: '^https://img\.other\.net'
    referer: https://other.net
    force: true
`))
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "https://www.example.com", rules[0].Referer)
	assert.True(t, rules[1].Force)

	m, ok := rules.Match("https://img.other.net/a.png").(fetch.Matched)
	require.True(t, ok)
	assert.Equal(t, "https://other.net", m.Rule.Referer)
}

func TestParseRulesErrors(t *testing.T) {
	_, err := ParseRules([]byte("rules: ["))
	assert.Error(t, err)

	_, err = ParseRules([]byte("rules:\n  - url: '('\n    referer: https://a.example\n"))
	assert.Error(t, err)

	_, err = ParseRules([]byte("rules:\n  - url: '^https://'\n"))
	assert.Error(t, err)
}

func TestRulesAppendsAfterDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - url: '^https://h\\.sinaimg\\.cn'\n    referer: https://override.example\n"), 0o644))

	cfg := Default()
	cfg.RulesPath = path
	rules, err := cfg.Rules()
	require.NoError(t, err)
	assert.Len(t, rules, len(fetch.DefaultRules())+1)

	// Built-in rules come first, so they still win.
	m, ok := rules.Match("https://h.sinaimg.cn/x.jpg").(fetch.Matched)
	require.True(t, ok)
	assert.Equal(t, "https://weibo.com", m.Rule.Referer)
}

func TestRulesMissingFile(t *testing.T) {
	cfg := Default()
	cfg.RulesPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := cfg.Rules()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SLIKE_TEST_DOTENV=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SLIKE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("SLIKE_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")))
}
