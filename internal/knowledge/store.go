// Package knowledge persists documents, chunks, and embedding vectors in
// PostgreSQL and performs tenant-scoped nearest-neighbor search via pgvector.
//
// Isolation invariant: every chunk and embedding row carries the workspace id
// of its parent document, and every search query filters on it. The vector
// index physically spans all tenants, so a missing filter is a correctness
// bug, not a permission bug.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/anser-ai/anser/internal/log"
)

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProcessing indicates another ingestion already holds the document.
	ErrProcessing = errors.New("document is being processed")

	// ErrPersistence indicates a durable write failed.
	ErrPersistence = errors.New("persistence error")

	// ErrSearch indicates the similarity search could not be executed.
	ErrSearch = errors.New("vector search error")
)

// searchTimeout bounds a single vector search so a degraded index cannot
// stall conversation turns.
const searchTimeout = 10 * time.Second

// DB is the subset of pgxpool.Pool the store needs. Consumers depending on
// the interface keeps the store testable without a running PostgreSQL.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements the vector store gateway over PostgreSQL + pgvector.
//
// Store is safe for concurrent use; isolation across tenants is enforced by
// the workspace filter in every query, not by locking.
type Store struct {
	db     DB
	logger log.Logger
}

// New creates a Store.
func New(db DB, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// CreateDocument inserts a new document row in its initial status.
func (s *Store) CreateDocument(ctx context.Context, doc *Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %w", ErrPersistence, err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO documents (id, workspace_id, collection_id, title, source_url, status, version_number, metadata, language)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.WorkspaceID, doc.CollectionID, doc.Title, doc.SourceURL,
		doc.Status, doc.VersionNumber, meta, doc.Language,
	)
	if err != nil {
		return fmt.Errorf("%w: insert document %s: %w", ErrPersistence, doc.ID, err)
	}

	s.logger.Debug("created document", "id", doc.ID, "workspace", doc.WorkspaceID, "status", doc.Status)
	return nil
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, workspace_id, collection_id, title, COALESCE(source_url, ''), status,
		       version_number, COALESCE(metadata, '{}'::jsonb), COALESCE(language, ''),
		       created_at, updated_at
		FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get document %s: %w", ErrPersistence, id, err)
	}
	return doc, nil
}

// ListDocuments returns a workspace's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, workspaceID uuid.UUID) ([]Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, workspace_id, collection_id, title, COALESCE(source_url, ''), status,
		       version_number, COALESCE(metadata, '{}'::jsonb), COALESCE(language, ''),
		       created_at, updated_at
		FROM documents WHERE workspace_id = $1
		ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", ErrPersistence, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan document: %w", ErrPersistence, err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list documents: %w", ErrPersistence, err)
	}
	return docs, nil
}

// DeleteDocument removes a document; chunks and embeddings cascade.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %w", ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

// BeginProcessing atomically claims a document for ingestion by moving it
// from a claimable status to StatusProcessing. A second concurrent claim
// observes zero affected rows and gets ErrProcessing, which is the
// per-document exclusion that makes re-ingestion races safe.
func (s *Store) BeginProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET status = $2, updated_at = now()
		WHERE id = $1 AND status IN ($3, $4, $5)`,
		id, StatusProcessing, StatusUploaded, StatusErrorExtraction, StatusErrorEmbedding,
	)
	if err != nil {
		return fmt.Errorf("%w: claim document %s: %w", ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetDocument(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: document %s", ErrProcessing, id)
	}
	return nil
}

// SetStatus moves a document to the given status.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("%w: set status of %s: %w", ErrPersistence, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return nil
}

// SaveChunks persists a document's chunk and embedding rows and marks the
// document processed, all inside one transaction. Either every row lands or
// none does: a document is never StatusProcessed with vectors missing for
// some of its chunks. Pre-existing chunks (reprocessing) are replaced.
func (s *Store) SaveChunks(ctx context.Context, doc *Document, records []ChunkRecord, modelName string, dimension int) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("%w: marshal metadata: %w", ErrPersistence, err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrPersistence, err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("%w: clear chunks of %s: %w", ErrPersistence, doc.ID, err)
	}

	for _, rec := range records {
		chunkID := uuid.New()

		if _, err := tx.Exec(ctx, `
			INSERT INTO document_chunks (id, document_id, workspace_id, content, chunk_index, token_count, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			chunkID, doc.ID, doc.WorkspaceID, rec.Content, rec.Index, rec.TokenCount, meta,
		); err != nil {
			return fmt.Errorf("%w: insert chunk %d of %s: %w", ErrPersistence, rec.Index, doc.ID, err)
		}

		if rec.Vector != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO embeddings (id, chunk_id, workspace_id, embedding, model_name, dimension)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.New(), chunkID, doc.WorkspaceID, pgvector.NewVector(rec.Vector), modelName, dimension,
			); err != nil {
				return fmt.Errorf("%w: insert embedding for chunk %d of %s: %w", ErrPersistence, rec.Index, doc.ID, err)
			}
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`,
		doc.ID, StatusProcessed,
	); err != nil {
		return fmt.Errorf("%w: mark %s processed: %w", ErrPersistence, doc.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit chunks of %s: %w", ErrPersistence, doc.ID, err)
	}

	s.logger.Debug("saved document tree", "id", doc.ID, "chunks", len(records))
	return nil
}

// SearchChunks returns up to k chunks of the workspace ordered by ascending
// cosine distance to queryVector. documentIDs, when non-empty, restricts
// results to those documents; identifiers that do not parse as UUIDs make
// the query match nothing (fail closed) rather than silently widening scope.
func (s *Store) SearchChunks(ctx context.Context, workspaceID uuid.UUID, queryVector []float32, k int, documentIDs []string) ([]ChunkMatch, error) {
	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	filter, ok := parseDocumentFilter(documentIDs)
	if !ok {
		s.logger.Warn("unparseable document filter, matching nothing", "workspace", workspaceID)
		return nil, nil
	}

	var (
		rows pgx.Rows
		err  error
	)
	if len(filter) > 0 {
		rows, err = s.db.Query(queryCtx, `
			SELECT c.id, c.document_id, c.content, c.chunk_index, e.embedding <=> $2 AS distance
			FROM document_chunks c
			JOIN embeddings e ON e.chunk_id = c.id
			WHERE e.workspace_id = $1 AND c.document_id = ANY($3)
			ORDER BY distance
			LIMIT $4`,
			workspaceID, pgvector.NewVector(queryVector), filter, k)
	} else {
		rows, err = s.db.Query(queryCtx, `
			SELECT c.id, c.document_id, c.content, c.chunk_index, e.embedding <=> $2 AS distance
			FROM document_chunks c
			JOIN embeddings e ON e.chunk_id = c.id
			WHERE e.workspace_id = $1
			ORDER BY distance
			LIMIT $3`,
			workspaceID, pgvector.NewVector(queryVector), k)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: search timeout: %w", ErrSearch, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Content, &m.Index, &m.Distance); err != nil {
			return nil, fmt.Errorf("%w: scan match: %w", ErrSearch, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearch, err)
	}

	return matches, nil
}

// GetAgent fetches the conversational agent configuration the orchestration
// layer needs: retrieval scope and fallback message.
func (s *Store) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	var (
		agent   Agent
		sources []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, workspace_id, name, COALESCE(greeting_message, ''), COALESCE(fallback_message, ''),
		       COALESCE(knowledge_sources, '[]'::jsonb)
		FROM agents WHERE id = $1`, id).
		Scan(&agent.ID, &agent.WorkspaceID, &agent.Name, &agent.GreetingMessage, &agent.FallbackMessage, &sources)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: agent %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get agent %s: %w", ErrPersistence, id, err)
	}

	if err := json.Unmarshal(sources, &agent.KnowledgeSources); err != nil {
		return nil, fmt.Errorf("%w: decode knowledge sources of %s: %w", ErrPersistence, id, err)
	}
	return &agent, nil
}

// parseDocumentFilter converts the caller's document-id strings to UUIDs.
// Any unparseable identifier invalidates the whole filter: the safe reading
// of garbage input is "match nothing", never "match everything".
func parseDocumentFilter(documentIDs []string) ([]uuid.UUID, bool) {
	if len(documentIDs) == 0 {
		return nil, true
	}

	parsed := make([]uuid.UUID, 0, len(documentIDs))
	for _, raw := range documentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, false
		}
		parsed = append(parsed, id)
	}
	return parsed, true
}

// scanDocument reads one document row.
func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc  Document
		meta []byte
	)
	if err := row.Scan(&doc.ID, &doc.WorkspaceID, &doc.CollectionID, &doc.Title, &doc.SourceURL,
		&doc.Status, &doc.VersionNumber, &meta, &doc.Language, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &doc, nil
}
