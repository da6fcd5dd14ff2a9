// Package cmd implements the anser command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anser-ai/anser/internal/config"
	"github.com/anser-ai/anser/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "anser",
	Short: "anser - retrieval-augmented answering over your documents",
	Long: `anser ingests documents into a tenant-scoped vector index and answers
questions grounded in them. Run "anser serve" to start the HTTP API,
"anser migrate" to prepare the database schema, or "anser ingest" to
load a document from the command line.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads configuration for a subcommand. Validation happens
// inside Load.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) log.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
