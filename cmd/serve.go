package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anser-ai/anser/api"
	"github.com/anser-ai/anser/internal/app"
)

var (
	serveAddr      string
	serveRateLimit float64
	serveRateBurst int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (host:port, overrides config)")
	serveCmd.Flags().Float64Var(&serveRateLimit, "rate-limit", 10, "requests per second per client IP (0 disables)")
	serveCmd.Flags().IntVar(&serveRateBurst, "rate-burst", 20, "burst allowance per client IP")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	var opts []api.Option
	if serveRateLimit > 0 {
		opts = append(opts, api.WithRateLimit(serveRateLimit, serveRateBurst))
	}

	server := api.NewServer(
		api.NewHealthHandler(a.Pool, logger),
		api.NewKnowledgeHandler(a.Pipeline, a.Store, logger),
		api.NewChatHandler(a.Store, a.Responder, logger),
		logger,
		opts...,
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Addr
	}
	return server.Run(ctx, addr)
}
