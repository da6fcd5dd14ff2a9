package ingest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/anser-ai/anser/internal/chunk"
	"github.com/anser-ai/anser/internal/extract"
	"github.com/anser-ai/anser/internal/knowledge"
	"github.com/anser-ai/anser/internal/log"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Text(string) (string, error) {
	return f.text, f.err
}

// fakeEmbedder returns [n+1, n+1, ...] for the n-th text it sees overall,
// so vectors are traceable back to input order. Batches arrive from
// concurrent goroutines, so the counters are mutex-guarded.
type fakeEmbedder struct {
	dim int
	err error

	mu    sync.Mutex
	calls int
	seen  int
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		f.seen++
		vec := make([]float32, f.dim)
		for d := range vec {
			vec[d] = float32(f.seen)
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEmbedder) Model() string  { return "fake-embedder" }
func (f *fakeEmbedder) Dimension() int { return f.dim }

type savedTree struct {
	doc     *knowledge.Document
	records []knowledge.ChunkRecord
	model   string
}

type fakeStore struct {
	docs      map[uuid.UUID]*knowledge.Document
	statuses  map[uuid.UUID][]string
	saved     []savedTree
	saveErr   error
	claimErr  error
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     make(map[uuid.UUID]*knowledge.Document),
		statuses: make(map[uuid.UUID][]string),
	}
}

func (f *fakeStore) CreateDocument(_ context.Context, doc *knowledge.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, id uuid.UUID) (*knowledge.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeStore) BeginProcessing(_ context.Context, id uuid.UUID) error {
	if f.claimErr != nil {
		return f.claimErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return knowledge.ErrNotFound
	}
	if doc.Status == knowledge.StatusProcessing {
		return knowledge.ErrProcessing
	}
	doc.Status = knowledge.StatusProcessing
	f.statuses[id] = append(f.statuses[id], knowledge.StatusProcessing)
	return nil
}

func (f *fakeStore) SetStatus(_ context.Context, id uuid.UUID, status string) error {
	doc, ok := f.docs[id]
	if !ok {
		return knowledge.ErrNotFound
	}
	doc.Status = status
	f.statuses[id] = append(f.statuses[id], status)
	return nil
}

func (f *fakeStore) SaveChunks(_ context.Context, doc *knowledge.Document, records []knowledge.ChunkRecord, model string, _ int) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, savedTree{doc: doc, records: records, model: model})
	f.docs[doc.ID].Status = knowledge.StatusProcessed
	f.statuses[doc.ID] = append(f.statuses[doc.ID], knowledge.StatusProcessed)
	return nil
}

// ============================================================================
// Tests
// ============================================================================

func newPipeline(ex Extractor, em Embedder, st Store, opts ...Option) *Pipeline {
	return New(ex, chunk.New(), em, st, log.NewNop(), opts...)
}

func params(embed bool) Params {
	return Params{
		WorkspaceID:  uuid.New(),
		CollectionID: uuid.New(),
		FilePath:     "/tmp/report.txt",
		SourceURL:    "https://files.example.com/report.txt",
		Embed:        embed,
	}
}

func TestIngest_WithoutEmbedding(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 4}
	p := newPipeline(&fakeExtractor{text: "irrelevant"}, embedder, store)

	doc, err := p.Ingest(context.Background(), params(false))
	if err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	if doc.Status != knowledge.StatusUploaded {
		t.Errorf("status = %q, want uploaded", doc.Status)
	}
	if doc.Title != "report" {
		t.Errorf("title = %q, want report", doc.Title)
	}
	if embedder.batchCount() != 0 {
		t.Errorf("embedder called %d times, want 0", embedder.batchCount())
	}
	if len(store.saved) != 0 {
		t.Errorf("chunks saved without embed request")
	}
}

func TestIngest_EndToEnd(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 4}
	p := New(&fakeExtractor{text: "A. B. C."},
		chunk.New(chunk.WithMaxChars(2)), // force one sentence per passage
		embedder, store, log.NewNop())

	doc, err := p.Ingest(context.Background(), params(true))
	if err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	if doc.Status != knowledge.StatusProcessed {
		t.Errorf("status = %q, want processed", doc.Status)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved trees = %d, want 1", len(store.saved))
	}
	records := store.saved[0].records
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	for i, rec := range records {
		if rec.Index != i {
			t.Errorf("record %d has index %d", i, rec.Index)
		}
		want := float32(i + 1)
		for d, v := range rec.Vector {
			if v != want {
				t.Errorf("record %d vector[%d] = %v, want %v", i, d, v, want)
			}
		}
	}
	if records[2].Content != "C." {
		t.Errorf("records[2].Content = %q, want C.", records[2].Content)
	}
	if store.saved[0].model != "fake-embedder" {
		t.Errorf("model = %q", store.saved[0].model)
	}
}

func TestIngest_ExtractionFailure(t *testing.T) {
	store := newFakeStore()
	extractErr := errors.New("unreadable document")
	p := newPipeline(&fakeExtractor{err: extractErr}, &fakeEmbedder{dim: 4}, store)

	doc, err := p.Ingest(context.Background(), params(true))
	if !errors.Is(err, extractErr) {
		t.Fatalf("Ingest() = %v, want extraction error", err)
	}
	if got := store.docs[doc.ID].Status; got != knowledge.StatusErrorExtraction {
		t.Errorf("stored status = %q, want error_extraction", got)
	}
	if doc.Status != knowledge.StatusErrorExtraction {
		t.Errorf("returned status = %q, want error_extraction", doc.Status)
	}
	if len(store.saved) != 0 {
		t.Errorf("chunks saved despite extraction failure")
	}
}

func TestIngest_EmbeddingFailureAtomicity(t *testing.T) {
	store := newFakeStore()
	embedErr := errors.New("provider down")
	p := newPipeline(&fakeExtractor{text: "Some content. More content."},
		&fakeEmbedder{dim: 4, err: embedErr}, store)

	doc, err := p.Ingest(context.Background(), params(true))
	if !errors.Is(err, embedErr) {
		t.Fatalf("Ingest() = %v, want embedding error", err)
	}
	if got := store.docs[doc.ID].Status; got != knowledge.StatusErrorEmbedding {
		t.Errorf("stored status = %q, want error_embedding", got)
	}
	if doc.Status != knowledge.StatusErrorEmbedding {
		t.Errorf("returned status = %q, want error_embedding", doc.Status)
	}
	// Atomicity: no chunk or vector rows persisted for the failed attempt.
	if len(store.saved) != 0 {
		t.Errorf("chunks saved despite embedding failure")
	}
}

func TestIngest_EmptyTextIsNotAnError(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 4}
	p := newPipeline(&fakeExtractor{text: "   "}, embedder, store)

	doc, err := p.Ingest(context.Background(), params(true))
	if err != nil {
		t.Fatalf("Ingest() = %v, want nil for empty content", err)
	}
	if doc.Status != knowledge.StatusProcessed {
		t.Errorf("status = %q, want processed", doc.Status)
	}
	if len(store.saved) != 1 || len(store.saved[0].records) != 0 {
		t.Errorf("want one saved tree with zero records, got %+v", store.saved)
	}
	if embedder.batchCount() != 0 {
		t.Errorf("embedder called for empty content")
	}
}

func TestIngest_BatchingSplitsRequests(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 2}

	// 5 sentences with batch size 2 → 3 batches. The budget holds exactly
	// one sentence, so every sentence becomes its own passage.
	text := "One one. Two two. Three three. Four four. Five five."
	p := New(&fakeExtractor{text: text}, chunk.New(chunk.WithMaxChars(12)),
		embedder, store, log.NewNop(), WithBatchSize(2))

	if _, err := p.Ingest(context.Background(), params(true)); err != nil {
		t.Fatalf("Ingest() = %v", err)
	}
	if embedder.batchCount() != 3 {
		t.Errorf("embedder batches = %d, want 3", embedder.batchCount())
	}

	records := store.saved[0].records
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5", len(records))
	}
	for i, rec := range records {
		if rec.Index != i {
			t.Errorf("record %d carries index %d", i, rec.Index)
		}
	}
}

func TestIngest_ConcurrentClaimRejected(t *testing.T) {
	store := newFakeStore()
	p := newPipeline(&fakeExtractor{text: "Content."}, &fakeEmbedder{dim: 4}, store)

	doc, err := p.Ingest(context.Background(), params(false))
	if err != nil {
		t.Fatal(err)
	}

	// Simulate an in-flight ingestion holding the claim.
	store.docs[doc.ID].Status = knowledge.StatusProcessing

	_, err = p.Reprocess(context.Background(), doc.ID)
	if !errors.Is(err, knowledge.ErrProcessing) {
		t.Fatalf("Reprocess() = %v, want ErrProcessing", err)
	}
}

func TestReprocess_IdempotentWhenProcessed(t *testing.T) {
	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 4}
	p := newPipeline(&fakeExtractor{text: "Content here."}, embedder, store)

	doc, err := p.Ingest(context.Background(), params(true))
	if err != nil {
		t.Fatal(err)
	}

	embedderCallsBefore := embedder.batchCount()
	again, err := p.Reprocess(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Reprocess() = %v", err)
	}
	if again.Status != knowledge.StatusProcessed {
		t.Errorf("status = %q, want processed", again.Status)
	}
	if embedder.batchCount() != embedderCallsBefore {
		t.Errorf("reprocess of processed document hit the embedder")
	}
}

func TestReprocess_SignedSourceURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Hello world.")
	}))
	defer srv.Close()

	store := newFakeStore()
	embedder := &fakeEmbedder{dim: 4}
	// Real extractor: it dispatches on the downloaded file's extension, which
	// must survive the query string a signed storage URL carries.
	p := New(extract.New(), chunk.New(), embedder, store, log.NewNop())

	doc := &knowledge.Document{
		ID:          uuid.New(),
		WorkspaceID: uuid.New(),
		Title:       "report",
		SourceURL:   srv.URL + "/report.txt?sig=abc123",
		Status:      knowledge.StatusUploaded,
	}
	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatal(err)
	}

	got, err := p.Reprocess(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Reprocess() = %v", err)
	}
	if got.Status != knowledge.StatusProcessed {
		t.Errorf("status = %q, want processed", got.Status)
	}
	if len(store.saved) != 1 || len(store.saved[0].records) != 1 {
		t.Fatalf("want one saved tree with one record, got %+v", store.saved)
	}
	if store.saved[0].records[0].Content != "Hello world." {
		t.Errorf("content = %q, want Hello world.", store.saved[0].records[0].Content)
	}
}

func TestTitleFromPath(t *testing.T) {
	if got := titleFromPath(filepath.Join(os.TempDir(), "quarterly-report.pdf")); got != "quarterly-report" {
		t.Errorf("titleFromPath = %q", got)
	}
}

func TestIngest_PersistFailure(t *testing.T) {
	store := newFakeStore()
	store.saveErr = knowledge.ErrPersistence
	p := newPipeline(&fakeExtractor{text: "Content."}, &fakeEmbedder{dim: 4}, store)

	doc, err := p.Ingest(context.Background(), params(true))
	if !errors.Is(err, knowledge.ErrPersistence) {
		t.Fatalf("Ingest() = %v, want ErrPersistence", err)
	}
	if got := store.docs[doc.ID].Status; got != knowledge.StatusErrorEmbedding {
		t.Errorf("status = %q, want error_embedding", got)
	}
}
