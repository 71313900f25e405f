// Command vidurl resolves video identifiers to direct media URLs.
//
//	vidurl BV1xx411c7mD BV1GJ411x7h7
//
// One "video <id>: <url>" line is printed per resolved identifier as the
// batch proceeds, and the JSON mapping of every identifier is printed last.
// Diagnostics go to stderr.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/use-agent/vidurl/config"
	"github.com/use-agent/vidurl/fetcher"
	"github.com/use-agent/vidurl/models"
	"github.com/use-agent/vidurl/scraper"
)

// session is a browser page that has to be released.
type session interface {
	fetcher.Page
	Close() error
}

type openFunc func(config.BrowserConfig, config.FetchConfig) (session, error)

func main() {
	cfg := config.Load()
	initLogger(cfg.Log, os.Stderr)

	if err := run(context.Background(), cfg, os.Args[1:], openSession, os.Stdout); err != nil {
		slog.Error("vidurl failed", "error", err)
		os.Exit(1)
	}
}

func openSession(browserCfg config.BrowserConfig, fetchCfg config.FetchConfig) (session, error) {
	s, err := scraper.New(browserCfg, fetchCfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// run fetches ids and writes the progress lines and the final JSON line to
// stdout. Any returned error means no JSON line was written.
func run(ctx context.Context, cfg *config.Config, ids []string, open openFunc, stdout io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	result := models.NewResult()
	if len(ids) > 0 {
		sess, err := open(cfg.Browser, cfg.Fetch)
		if err != nil {
			return err
		}
		defer closeSession(sess)

		f := fetcher.New(sess, cfg.Fetch, fetcher.WithProgress(stdout))
		result = f.Run(ctx, ids)
		closeSession(sess)
	}

	b, err := result.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(b))
	return err
}

func closeSession(s session) {
	if err := s.Close(); err != nil {
		slog.Warn("failed to close browser session", "error", err)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
