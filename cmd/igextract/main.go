package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/use-agent/igextract/browser"
	"github.com/use-agent/igextract/config"
	"github.com/use-agent/igextract/extract"
	"github.com/use-agent/igextract/intercept"
	"github.com/use-agent/igextract/session"
)

var rootCmd = &cobra.Command{
	Use:   "igextract",
	Short: "Extract canonical profile and post records from Instagram pages",
	Long: `igextract drives a single stealth browser session through a queue of
Instagram URLs and emits one canonical record per URL.

Configuration is read from IGX_CONFIG_FILE (YAML), IGX_* environment
variables and an optional .env file, in that order of precedence.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, extractCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg *config.Config, w io.Writer) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// app is the browser and session pair shared by both commands.
type app struct {
	browser *browser.Browser
	coord   *session.Coordinator
}

// boot launches the browser, opens the session page and builds the
// coordinator from cfg. Stealth injection only runs when the session's
// anti-detection mode is on.
func boot(ctx context.Context, cfg *config.Config) (*app, error) {
	reconciler, err := extract.NewReconciler(cfg.Extraction.Patterns)
	if err != nil {
		return nil, fmt.Errorf("build reconciler: %w", err)
	}

	bcfg := cfg.Browser
	bcfg.Stealth = bcfg.Stealth && cfg.Session.AntiDetection

	b, err := browser.Launch(bcfg)
	if err != nil {
		return nil, err
	}

	page, err := b.NewPage(ctx)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	coord := session.NewCoordinator(page, cfg.Session,
		session.WithReconciler(reconciler),
		session.WithClassifier(intercept.NewClassifier(cfg.Extraction.Markers)),
	)
	return &app{browser: b, coord: coord}, nil
}

func (a *app) Close() {
	if err := a.coord.Close(); err != nil {
		slog.Warn("session page close failed", "error", err)
	}
	if err := a.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}
