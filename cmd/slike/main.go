package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erazemk/slike/internal/api"
	"github.com/erazemk/slike/internal/config"
	"github.com/erazemk/slike/internal/fetch"
	"github.com/erazemk/slike/internal/imaging"
	"github.com/erazemk/slike/internal/pipeline"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// newLogHandler builds the stdout/stderr handler pair over the given writers.
func newLogHandler(stdout, stderr io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	return &levelRouter{
		stdout: slog.NewTextHandler(stdout, opts),
		stderr: slog.NewTextHandler(stderr, opts),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	var cleanup func()

	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	slog.SetDefault(slog.New(newLogHandler(stdoutW, stderrW)))
	return cleanup, nil
}

const usage = `Usage: slike [flags]

Flags:
  -a, -addr <host:port>      listen address (default: :8080)
  -l, -log <path>            log file path (default: no file, stdout/stderr only)
  -f, -format <name>         default output format: jpeg, png, webp, avif or source (default: webp)
  -c, -cache-max-age <secs>  Cache-Control max-age for results (default: 31536000)
  -m, -max-bytes <n>         maximum upstream image size in bytes (default: 20971520)
  -t, -timeout <duration>    per-request deadline, 0 to disable (default: 30s)
  -p, -image-proxy <url>     relay endpoint for upstream fetches (default: none)
  -r, -rules <path>          YAML file with extra referer rules (default: none)
  -w, -warm                  initialize codecs at startup (default: true)
  -h, -help                  show this help and exit

Every flag can also be set in the environment (SLIKE_ADDR, SLIKE_LOG,
SLIKE_DEFAULT_FORMAT, SLIKE_CACHE_MAX_AGE, SLIKE_MAX_BYTES, SLIKE_TIMEOUT,
IMAGE_PROXY, SLIKE_RULES, SLIKE_WARM) or in a .env file. Flags take priority.
`

// parseFlags applies command-line flags on top of cfg.
func parseFlags(cfg config.Config, args []string, out io.Writer) (config.Config, error) {
	fs := flag.NewFlagSet("slike", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")

	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	fs.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")

	fs.StringVar(&cfg.DefaultFormat, "format", cfg.DefaultFormat, "")
	fs.StringVar(&cfg.DefaultFormat, "f", cfg.DefaultFormat, "")

	maxAge := int64(cfg.CacheMaxAge / time.Second)
	fs.Int64Var(&maxAge, "cache-max-age", maxAge, "")
	fs.Int64Var(&maxAge, "c", maxAge, "")

	fs.Int64Var(&cfg.MaxBytes, "max-bytes", cfg.MaxBytes, "")
	fs.Int64Var(&cfg.MaxBytes, "m", cfg.MaxBytes, "")

	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "")
	fs.DurationVar(&cfg.Timeout, "t", cfg.Timeout, "")

	fs.StringVar(&cfg.ImageProxy, "image-proxy", cfg.ImageProxy, "")
	fs.StringVar(&cfg.ImageProxy, "p", cfg.ImageProxy, "")

	fs.StringVar(&cfg.RulesPath, "rules", cfg.RulesPath, "")
	fs.StringVar(&cfg.RulesPath, "r", cfg.RulesPath, "")

	fs.BoolVar(&cfg.Warm, "warm", cfg.Warm, "")
	fs.BoolVar(&cfg.Warm, "w", cfg.Warm, "")

	fs.Usage = func() { fmt.Fprint(out, usage) }

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return cfg, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg.CacheMaxAge = time.Duration(maxAge) * time.Second
	return cfg, cfg.Validate()
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseFlags(cfg, os.Args[1:], os.Stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging: INFO/WARN → stdout, ERROR → stderr.
	// Optionally also write to a log file.
	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if closeLog != nil {
		defer closeLog()
	}

	handler, codecs, err := buildHandler(cfg)
	if err != nil {
		slog.Error("failed to set up server", "error", err)
		os.Exit(1)
	}

	if cfg.Warm {
		go warmCodecs(codecs)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started",
		"addr", cfg.Addr,
		"default_format", cfg.DefaultFormat,
		"relay", cfg.ImageProxy != "",
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}

// buildHandler wires the fetcher, codecs and pipeline behind the router.
func buildHandler(cfg config.Config) (http.Handler, *imaging.Codecs, error) {
	rules, err := cfg.Rules()
	if err != nil {
		return nil, nil, err
	}
	relay, err := cfg.RelayURL()
	if err != nil {
		return nil, nil, err
	}
	format, err := cfg.OutputFormat()
	if err != nil {
		return nil, nil, err
	}

	fetcher := &fetch.Fetcher{
		Client:   &http.Client{},
		Rules:    rules,
		Relay:    relay,
		MaxBytes: cfg.MaxBytes,
	}
	codecs := imaging.NewCodecs()
	p := pipeline.New(fetcher, codecs, codecs)

	opts := api.Options{
		DefaultFormat: format,
		CacheMaxAge:   cfg.CacheMaxAge,
		Timeout:       cfg.Timeout,
	}
	// Without warm-up, codecs only start on the first image request.
	if cfg.Warm {
		opts.Ready = codecs.Initialized
	}

	handler := api.NewRouter(p, fetcher, opts)
	return handler, codecs, nil
}

// warmCodecs runs codec initialization ahead of the first request.
func warmCodecs(codecs *imaging.Codecs) {
	start := time.Now()
	if err := codecs.Ready(context.Background()); err != nil {
		slog.Error("codec initialization failed", "error", err)
		return
	}
	slog.Info("codecs ready", "duration", time.Since(start).Round(time.Millisecond))
}
