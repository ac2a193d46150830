// Package main provides the CLI entry point for the CV Wizard backend: a
// tool-dispatcher HTTP service that drives a session-scoped, stage-driven CV
// tailoring wizard backed by an LLM gateway, headless-Chrome PDF rendering,
// and Postgres-backed session storage with S3-compatible blob offload.
//
// Start the server:
//
//	cvwizard serve --config cvwizard.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cvwizard/backend/internal/blobstore"
	"github.com/cvwizard/backend/internal/config"
	"github.com/cvwizard/backend/internal/docx"
	"github.com/cvwizard/backend/internal/llmgateway"
	"github.com/cvwizard/backend/internal/obslog"
	"github.com/cvwizard/backend/internal/obsmetrics"
	"github.com/cvwizard/backend/internal/pdfrender"
	"github.com/cvwizard/backend/internal/session"
	"github.com/cvwizard/backend/internal/toolapi"
	"github.com/cvwizard/backend/internal/urlfetch"
	"github.com/cvwizard/backend/internal/wizard"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "cvwizard",
		Short: "CV Wizard backend: session-scoped CV tailoring over a tool-call HTTP API",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "cvwizard.yaml", "Path to YAML configuration file")

	root.AddCommand(buildServeCmd(&configPath), buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "cvwizard %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}

func buildServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tool-dispatcher HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := obslog.New(obslog.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	metrics := obsmetrics.New()

	blobs, err := blobstore.New(ctx, cfg.Blobstore)
	if err != nil {
		return fmt.Errorf("init blobstore: %w", err)
	}

	var store session.Store
	if cfg.Session.DatabaseURL != "" {
		pg, err := session.NewPostgresStore(ctx, cfg.Session.DatabaseURL, blobs, cfg.Session.TTL, cfg.Session.OffloadThresholdBytes)
		if err != nil {
			return fmt.Errorf("init session store: %w", err)
		}
		defer pg.Close()
		store = pg
	} else {
		log.Warn(ctx, "no session.database_url configured, using in-process memory store")
		store = session.NewMemoryStore(blobs, cfg.Session.TTL, cfg.Session.OffloadThresholdBytes)
	}

	llmClient, err := llmgateway.New(cfg.LLM, log, metrics)
	if err != nil {
		return fmt.Errorf("init llm gateway: %w", err)
	}

	extractor := docx.New()
	renderer := pdfrender.New(pdfrender.WithTimeout(cfg.PDFRender.Timeout))
	fetcher := urlfetch.New()

	orchestrator := &wizard.Orchestrator{
		Store:      store,
		LLM:        llmClient,
		Blobs:      blobs,
		Extractor:  extractor,
		Renderer:   renderer,
		Fetcher:    fetcher,
		Wizard:     cfg.Wizard,
		Validation: cfg.Validation,
		Log:        log,
	}

	toolServer := toolapi.New(orchestrator, store, extractor, renderer, metrics, log)

	mux := http.NewServeMux()
	toolServer.Mount(mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting http server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if cfg.Session.CleanupInterval > 0 {
		go runCleanupLoop(ctx, store, log, cfg.Session.CleanupInterval)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		log.Info(ctx, "shutdown signal received")
	case err := <-serveErr:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn(ctx, "http server shutdown error", "error", err)
	}
	return nil
}

// runCleanupLoop sweeps expired sessions on cfg.Session.CleanupInterval
// until ctx is cancelled, mirroring the cleanup_expired_sessions tool but
// run proactively rather than on demand.
func runCleanupLoop(ctx context.Context, store session.Store, log *obslog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanupExpired(ctx)
			if err != nil {
				log.Warn(ctx, "session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				log.Info(ctx, "cleaned up expired sessions", "count", n)
			}
		}
	}
}
