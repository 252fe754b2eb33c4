package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/igextract/api"
	"github.com/use-agent/igextract/cache"
	"github.com/use-agent/igextract/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the extraction HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg, os.Stdout)
	slog.Info("igextract starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"antiDetection", cfg.Session.AntiDetection,
		"mobile", cfg.Session.Mobile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Launch browser + session ─────────────────────────────────
	rt, err := boot(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise session: %w", err)
	}
	defer rt.Close()

	// ── 4. Initialise cache ─────────────────────────────────────────
	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Close()

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(ctx, rt.coord, cfg, cc, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	// In-flight extractions can take a full URL timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Session.URLTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("igextract stopped")
	return nil
}
