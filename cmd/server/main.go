// Package main is the entry point for the blog API server.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (internal/config, from environment variables)
//  2. Create the logger
//  3. Start the server
//
// Everything else lives in internal/ packages.
package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/blog-api/internal/config"
	"github.com/sakif/blog-api/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Load fails when JWT_SECRET is missing or too short; there is no fallback key.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	// === 3. DATA DIRECTORY ===
	// os.MkdirAll is `mkdir -p`. The upload directory is created by storage.NewDisk.
	if cfg.StoreDriver == config.DriverSQLite && cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if !cfg.GitHub.Enabled() {
		logger.Info("GITHUB_CLIENT_ID not set, GitHub sign-in is disabled")
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// newLogger builds a text logger, or a JSON one for LOG_FORMAT=json.
func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
