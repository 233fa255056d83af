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

	"github.com/joho/godotenv"
	"github.com/tendant/simple-share/pkg/simpleshare/api"
	"github.com/tendant/simple-share/pkg/simpleshare/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envHelp := flag.Bool("env-help", false, "print the environment variables the server reads and exit")
	flag.Parse()

	if *envHelp {
		if err := config.Usage(os.Stdout); err != nil {
			slog.Error("Failed to print usage", "err", err)
			os.Exit(1)
		}
		return
	}

	// A missing .env file is not an error
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, routes, err := cfg.BuildService(ctx, logger)
	if err != nil {
		slog.Error("Failed to build service", "storage", cfg.Storage.Type, "err", err)
		os.Exit(1)
	}

	router := api.NewRouter(svc, cfg.RouterOptions(logger, routes))
	srv := newHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("simple-share starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"storage", cfg.Storage.Type,
			"download_mode", cfg.DownloadMode,
			"allowed_origins", len(cfg.AllowedOrigins))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}
	slog.Info("Server exiting")
}

// newLogger logs JSON in production and text elsewhere
func newLogger(cfg *config.ServerConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newHTTPServer(cfg *config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: proxied downloads can run long.
		IdleTimeout: 2 * time.Minute,
	}
}
