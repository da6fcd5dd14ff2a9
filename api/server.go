// Package api exposes the ingestion and conversation pipeline over HTTP.
//
// Endpoints:
//
//	GET    /health                        liveness probe
//	GET    /ready                         readiness probe (pings the database)
//	POST   /api/documents                 upload and ingest a document
//	GET    /api/documents                 list a workspace's documents
//	DELETE /api/documents/{id}            delete a document and its chunks
//	POST   /api/documents/{id}/reprocess  re-run extraction and embedding
//	POST   /api/chat                      answer a question through an agent
//
// The wire format is internal to this service; clients are the dashboard and
// the embeddable widget, both deployed with it.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/anser-ai/anser/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8080"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout caps header reads so slow clients cannot pin
	// connections open.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	// Uploads of large documents bound the floor here.
	ReadTimeout = 120 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Synchronous ingestion (extract + embed) happens within it.
	WriteTimeout = 300 * time.Second

	// IdleTimeout applies to keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

// Server routes HTTP requests to the pipeline.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health    *HealthHandler
	knowledge *KnowledgeHandler
	chat      *ChatHandler

	limiter *rateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit enables per-IP rate limiting: r tokens per second with the
// given burst.
func WithRateLimit(r float64, burst int) Option {
	return func(s *Server) {
		s.limiter = newRateLimiter(r, burst)
	}
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(health *HealthHandler, knowledge *KnowledgeHandler, chat *ChatHandler, logger log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:       mux,
		logger:    logger,
		health:    health,
		knowledge: knowledge,
		chat:      chat,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.health.RegisterRoutes(mux)
	s.knowledge.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	return s
}

// Handler returns the mux with middleware applied.
// Order outermost-in: recovery, logging, rate limiting.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	}
	if s.limiter != nil {
		middlewares = append(middlewares, rateLimitMiddleware(s.limiter, s.logger))
	}
	return chain(s.mux, middlewares...)
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// errorBody is the JSON envelope every error response uses.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeJSON marshals before touching the ResponseWriter, so an encoding
// failure can still surface as a 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("response encoding failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
