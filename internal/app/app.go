// Package app wires the application together: configuration, database pool,
// provider adapters, ingestion pipeline, and the conversation stack.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anser-ai/anser/internal/chunk"
	"github.com/anser-ai/anser/internal/config"
	"github.com/anser-ai/anser/internal/conversation"
	"github.com/anser-ai/anser/internal/database"
	"github.com/anser-ai/anser/internal/embedding"
	"github.com/anser-ai/anser/internal/extract"
	"github.com/anser-ai/anser/internal/generate"
	"github.com/anser-ai/anser/internal/ingest"
	"github.com/anser-ai/anser/internal/knowledge"
	"github.com/anser-ai/anser/internal/log"
	"github.com/anser-ai/anser/internal/retriever"
)

// App holds the assembled components.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool      *pgxpool.Pool
	Store     *knowledge.Store
	Pipeline  *ingest.Pipeline
	Retriever *retriever.Retriever
	Responder *conversation.Responder
}

// Setup builds the full dependency graph from configuration. Callers own the
// returned App and must Close it.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	pool, err := database.Open(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := knowledge.New(pool, logger)
	embedder := embedding.New(cfg.Embedding, logger)

	generator, err := generate.NewGemini(ctx, cfg.Generation, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create generation client: %w", err)
	}

	chunker := chunk.New(
		chunk.WithMaxChars(cfg.Ingestion.ChunkSize),
		chunk.WithOverlap(cfg.Ingestion.ChunkOverlap),
	)

	pipeline := ingest.New(extract.New(), chunker, embedder, store, logger,
		ingest.WithBatchSize(cfg.Embedding.BatchSize))

	ret := retriever.New(embedder, store, logger,
		retriever.WithTopK(cfg.Retrieval.TopK))

	responder := conversation.NewResponder(
		conversation.NewOrchestrator(ret, generator, logger), logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Store:     store,
		Pipeline:  pipeline,
		Retriever: ret,
		Responder: responder,
	}, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}
