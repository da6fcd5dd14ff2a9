// Package ingest turns a source file into a persisted document tree:
// extracted text, ordered chunks, and one embedding vector per chunk.
//
// The pipeline owns the document status machine
// (uploaded → processing → processed | error_*) but not the lifecycle of the
// uploaded file itself; the upload handler removes its temporary file after
// Ingest returns, success or not.
package ingest

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anser-ai/anser/internal/chunk"
	"github.com/anser-ai/anser/internal/knowledge"
	"github.com/anser-ai/anser/internal/log"
)

// DefaultBatchSize is how many chunks go to the embedding provider per
// request. Bounds both payload size and the blast radius of one provider
// timeout.
const DefaultBatchSize = 32

// Extractor supplies plain text for a source file.
type Extractor interface {
	Text(path string) (string, error)
}

// Chunker splits extracted text into ordered passages.
type Chunker interface {
	Split(text string) []string
}

// Embedder turns passages into vectors. EmbedBatch must be order-preserving
// and return exactly one vector per input.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	CreateDocument(ctx context.Context, doc *knowledge.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*knowledge.Document, error)
	BeginProcessing(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveChunks(ctx context.Context, doc *knowledge.Document, records []knowledge.ChunkRecord, modelName string, dimension int) error
}

// Params describes one ingestion request.
type Params struct {
	WorkspaceID  uuid.UUID
	CollectionID uuid.UUID

	// FilePath is the local file to ingest. The caller owns its lifecycle.
	FilePath string

	// SourceURL is the durable locator stored on the document. Opaque to
	// the pipeline; reprocessing fetches it with a plain HTTP GET.
	SourceURL string

	// Embed requests chunking and embedding now. Without it the document
	// is only registered and stays in StatusUploaded.
	Embed bool
}

// Pipeline runs ingestion.
type Pipeline struct {
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	store     Store
	batchSize int
	logger    log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBatchSize overrides the embedding batch size.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// New creates a Pipeline.
func New(extractor Extractor, chunker Chunker, embedder Embedder, store Store, logger log.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = log.NewNop()
	}
	p := &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		batchSize: DefaultBatchSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest registers the document and, when requested, processes it through
// extraction, chunking, embedding, and the atomic persist step.
func (p *Pipeline) Ingest(ctx context.Context, params Params) (*knowledge.Document, error) {
	doc := &knowledge.Document{
		ID:            uuid.New(),
		WorkspaceID:   params.WorkspaceID,
		CollectionID:  params.CollectionID,
		Title:         titleFromPath(params.FilePath),
		SourceURL:     params.SourceURL,
		Status:        knowledge.StatusUploaded,
		VersionNumber: 1,
		Metadata: map[string]string{
			"original_filename": filepath.Base(params.FilePath),
		},
		Language: "en",
	}

	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	if !params.Embed {
		return doc, nil
	}

	if err := p.process(ctx, doc, params.FilePath); err != nil {
		return doc, err
	}
	doc.Status = knowledge.StatusProcessed
	return doc, nil
}

// Reprocess runs the processing stages for a document that already exists,
// fetching its source by URL. Idempotent no-op when already processed.
func (p *Pipeline) Reprocess(ctx context.Context, documentID uuid.UUID) (*knowledge.Document, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == knowledge.StatusProcessed {
		return doc, nil
	}
	// Cheap pre-check; BeginProcessing still arbitrates races after the
	// source has been fetched.
	if doc.Status == knowledge.StatusProcessing {
		return nil, knowledge.ErrProcessing
	}
	if doc.SourceURL == "" {
		return nil, fmt.Errorf("document %s has no source URL", documentID)
	}

	path, cleanup, err := p.download(ctx, doc.SourceURL)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := p.process(ctx, doc, path); err != nil {
		return doc, err
	}
	doc.Status = knowledge.StatusProcessed
	return doc, nil
}

// process claims the document and runs extract → chunk → embed → persist.
// Any stage failure leaves an explicit error status behind; the document is
// never left claiming success it did not earn.
func (p *Pipeline) process(ctx context.Context, doc *knowledge.Document, filePath string) error {
	if err := p.store.BeginProcessing(ctx, doc.ID); err != nil {
		return err
	}
	doc.Status = knowledge.StatusProcessing

	text, err := p.extractor.Text(filePath)
	if err != nil {
		p.failDocument(ctx, doc, knowledge.StatusErrorExtraction)
		return fmt.Errorf("extract %s: %w", doc.ID, err)
	}

	passages := p.chunker.Split(text)
	// Zero passages is a valid outcome (empty source), not an error.

	vectors, err := p.embedAll(ctx, passages)
	if err != nil {
		p.failDocument(ctx, doc, knowledge.StatusErrorEmbedding)
		return fmt.Errorf("embed %s: %w", doc.ID, err)
	}

	records := make([]knowledge.ChunkRecord, len(passages))
	for i, passage := range passages {
		records[i] = knowledge.ChunkRecord{
			Content:    passage,
			Index:      i,
			TokenCount: chunk.TokenEstimate(passage),
			Vector:     vectors[i],
		}
	}

	if err := p.store.SaveChunks(ctx, doc, records, p.embedder.Model(), p.embedder.Dimension()); err != nil {
		p.failDocument(ctx, doc, knowledge.StatusErrorEmbedding)
		return fmt.Errorf("persist %s: %w", doc.ID, err)
	}

	p.logger.Info("document processed", "id", doc.ID, "chunks", len(records))
	return nil
}

// embedAll embeds passages in fixed-size batches, fanning batches out
// concurrently and reassembling results by batch position so chunk index i
// always pairs with vector i. A single batch failure fails everything:
// a partial result would misalign the zip.
func (p *Pipeline) embedAll(ctx context.Context, passages []string) ([][]float32, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	numBatches := (len(passages) + p.batchSize - 1) / p.batchSize
	results := make([][][]float32, numBatches)

	g, gctx := errgroup.WithContext(ctx)
	for b := range numBatches {
		start := b * p.batchSize
		end := min(start+p.batchSize, len(passages))

		g.Go(func() error {
			vectors, err := p.embedder.EmbedBatch(gctx, passages[start:end])
			if err != nil {
				return fmt.Errorf("batch %d: %w", b, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("batch %d: got %d vectors for %d passages", b, len(vectors), end-start)
			}
			results[b] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(passages))
	for _, batch := range results {
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// failDocument records an error status on both the row and the in-memory
// document, so the value returned to the caller matches durable state. Best
// effort: the original failure is what propagates to the caller, so a failed
// status write is only logged.
func (p *Pipeline) failDocument(ctx context.Context, doc *knowledge.Document, status string) {
	doc.Status = status
	if err := p.store.SetStatus(ctx, doc.ID, status); err != nil {
		p.logger.Error("failed to record error status", "id", doc.ID, "status", status, "error", err)
	}
}

// download fetches a source URL into a temporary file.
func (p *Pipeline) download(ctx context.Context, sourceURL string) (string, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("download %s: status %d", sourceURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "anser-reprocess-*"+sourceExt(resp, sourceURL))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}

	cleanup := func() {
		_ = os.Remove(tmp.Name())
	}
	return tmp.Name(), cleanup, nil
}

// sourceExt picks the file extension for a downloaded source. Source URLs
// often carry query strings (signed storage URLs), so the extension comes
// from the parsed URL path, not the raw string; when the path has none, the
// response Content-Type decides.
func sourceExt(resp *http.Response, sourceURL string) string {
	if u, err := url.Parse(sourceURL); err == nil {
		if ext := filepath.Ext(u.Path); ext != "" {
			return ext
		}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "text/plain":
		return ".txt"
	case "text/markdown":
		return ".md"
	case "text/html":
		return ".html"
	case "application/pdf":
		return ".pdf"
	}
	return ""
}

// titleFromPath derives a document title from the file name without its
// extension.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
