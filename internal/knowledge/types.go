package knowledge

import (
	"time"

	"github.com/google/uuid"
)

// Document processing statuses. A document is created as StatusUploaded and
// only ever leaves a terminal status through explicit reprocessing.
const (
	StatusUploaded        = "uploaded"
	StatusProcessing      = "processing"
	StatusProcessed       = "processed"
	StatusErrorExtraction = "error_extraction"
	StatusErrorEmbedding  = "error_embedding"
)

// Document is an ingested source file belonging to exactly one workspace.
type Document struct {
	ID            uuid.UUID
	WorkspaceID   uuid.UUID
	CollectionID  uuid.UUID
	Title         string
	SourceURL     string
	Status        string
	VersionNumber int
	Metadata      map[string]string
	Language      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Chunk is one bounded passage of a document's text, the unit of embedding
// and retrieval. Index is 0-based and contiguous within the document.
// Chunks are immutable once written; they disappear only with their document.
type Chunk struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	WorkspaceID uuid.UUID
	Content     string
	Index       int
	TokenCount  int
	Metadata    map[string]string
	CreatedAt   time.Time
}

// ChunkRecord bundles a chunk with its embedding vector for the atomic
// persist step of ingestion.
type ChunkRecord struct {
	Content    string
	Index      int
	TokenCount int
	Vector     []float32
}

// ChunkMatch is a search hit: a chunk plus its cosine distance to the query
// vector. Smaller distance means more similar.
type ChunkMatch struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Content    string
	Index      int
	Distance   float64
}

// Agent is the per-tenant conversational agent configuration the core needs:
// the retrieval scope and the always-available fallback answer. The rest of
// agent administration lives outside this repo.
type Agent struct {
	ID               uuid.UUID
	WorkspaceID      uuid.UUID
	Name             string
	GreetingMessage  string
	FallbackMessage  string
	KnowledgeSources []string
}
