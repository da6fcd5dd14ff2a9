// Package retriever answers "what do we know about X" by embedding a query
// and pulling the nearest chunks from the knowledge store.
package retriever

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/anser-ai/anser/internal/knowledge"
	"github.com/anser-ai/anser/internal/log"
)

// DefaultTopK bounds how many chunks a retrieval returns.
const DefaultTopK = 5

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs the vector similarity search.
type Searcher interface {
	SearchChunks(ctx context.Context, workspaceID uuid.UUID, queryVector []float32, k int, documentIDs []string) ([]knowledge.ChunkMatch, error)
}

// Retriever embeds queries and searches the store.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	topK     int
	logger   log.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK overrides the result bound.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// New creates a Retriever.
func New(embedder Embedder, searcher Searcher, logger log.Logger, opts ...Option) *Retriever {
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Retriever{
		embedder: embedder,
		searcher: searcher,
		topK:     DefaultTopK,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK chunk contents nearest the query, most similar
// first. A nil documentIDs filter searches the whole workspace; an empty or
// unmatched filter yields no passages, never an error.
func (r *Retriever) Retrieve(ctx context.Context, workspaceID uuid.UUID, query string, documentIDs []string) ([]string, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.searcher.SearchChunks(ctx, workspaceID, vector, r.topK, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	passages := make([]string, 0, len(matches))
	for _, m := range matches {
		passages = append(passages, m.Content)
	}
	r.logger.Debug("retrieved passages", "workspace", workspaceID, "count", len(passages))
	return passages, nil
}
