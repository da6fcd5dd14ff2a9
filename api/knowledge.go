package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/anser-ai/anser/internal/ingest"
	"github.com/anser-ai/anser/internal/knowledge"
	"github.com/anser-ai/anser/internal/log"
)

// maxUploadBytes caps document uploads at 32 MiB.
const maxUploadBytes = 32 << 20

// Ingestor runs the document pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, params ingest.Params) (*knowledge.Document, error)
	Reprocess(ctx context.Context, documentID uuid.UUID) (*knowledge.Document, error)
}

// DocumentStore is the persistence surface the knowledge endpoints need.
type DocumentStore interface {
	ListDocuments(ctx context.Context, workspaceID uuid.UUID) ([]knowledge.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

// KnowledgeHandler serves document upload, listing, deletion, and
// reprocessing.
type KnowledgeHandler struct {
	ingestor Ingestor
	store    DocumentStore
	logger   log.Logger
}

// NewKnowledgeHandler creates a knowledge handler.
func NewKnowledgeHandler(ingestor Ingestor, store DocumentStore, logger log.Logger) *KnowledgeHandler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &KnowledgeHandler{ingestor: ingestor, store: store, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *KnowledgeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.upload)
	mux.HandleFunc("GET /api/documents", h.list)
	mux.HandleFunc("DELETE /api/documents/{id}", h.delete)
	mux.HandleFunc("POST /api/documents/{id}/reprocess", h.reprocess)
}

// documentResponse is the wire shape of a document.
type documentResponse struct {
	ID           string    `json:"id"`
	WorkspaceID  string    `json:"workspace_id"`
	CollectionID string    `json:"collection_id"`
	Title        string    `json:"title"`
	SourceURL    string    `json:"source_url,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toDocumentResponse(doc *knowledge.Document) documentResponse {
	return documentResponse{
		ID:           doc.ID.String(),
		WorkspaceID:  doc.WorkspaceID.String(),
		CollectionID: doc.CollectionID.String(),
		Title:        doc.Title,
		SourceURL:    doc.SourceURL,
		Status:       doc.Status,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

// upload accepts a multipart form with a "file" part plus workspace_id,
// collection_id, optional source_url, and an optional embed=false to only
// register the document. Processing is synchronous: the response carries the
// document's terminal status for this attempt.
func (h *KnowledgeHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}

	workspaceID, err := uuid.Parse(r.FormValue("workspace_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_workspace_id", "workspace_id must be a UUID")
		return
	}
	collectionID, err := uuid.Parse(r.FormValue("collection_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_collection_id", "collection_id must be a UUID")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "multipart part \"file\" is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	path, cleanup, err := h.spill(file, header.Filename)
	if err != nil {
		h.logger.Error("failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "could not store uploaded file")
		return
	}
	defer cleanup()

	doc, err := h.ingestor.Ingest(r.Context(), ingest.Params{
		WorkspaceID:  workspaceID,
		CollectionID: collectionID,
		FilePath:     path,
		SourceURL:    r.FormValue("source_url"),
		Embed:        r.FormValue("embed") != "false",
	})
	if err != nil {
		h.logger.Error("ingestion failed", "error", err)
		if doc == nil {
			writeError(w, http.StatusInternalServerError, "ingestion_failed", err.Error())
			return
		}
		// The document exists in an explicit error status; the client can
		// inspect it and retry via reprocess.
		writeJSON(w, http.StatusUnprocessableEntity, toDocumentResponse(doc))
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// spill writes the uploaded part to a temp file, preserving the extension so
// the extractor can dispatch on it.
func (h *KnowledgeHandler) spill(file io.Reader, filename string) (string, func(), error) {
	tmp, err := os.CreateTemp("", "anser-upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, file); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { _ = os.Remove(tmp.Name()) }, nil
}

func (h *KnowledgeHandler) list(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := uuid.Parse(r.URL.Query().Get("workspace_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_workspace_id", "workspace_id must be a UUID")
		return
	}

	docs, err := h.store.ListDocuments(r.Context(), workspaceID)
	if err != nil {
		h.logger.Error("failed to list documents", "workspace", workspaceID, "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "could not list documents")
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, toDocumentResponse(&docs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (h *KnowledgeHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "document id must be a UUID")
		return
	}

	if err := h.store.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document does not exist")
			return
		}
		h.logger.Error("failed to delete document", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete_failed", "could not delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *KnowledgeHandler) reprocess(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "document id must be a UUID")
		return
	}

	doc, err := h.ingestor.Reprocess(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toDocumentResponse(doc))
	case errors.Is(err, knowledge.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "document does not exist")
	case errors.Is(err, knowledge.ErrProcessing):
		writeError(w, http.StatusConflict, "processing", "document is already being processed")
	default:
		h.logger.Error("reprocess failed", "id", id, "error", err)
		if doc != nil {
			writeJSON(w, http.StatusUnprocessableEntity, toDocumentResponse(doc))
			return
		}
		writeError(w, http.StatusInternalServerError, "reprocess_failed", err.Error())
	}
}
