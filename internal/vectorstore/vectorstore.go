// Package vectorstore provides the two-collection Postgres/pgvector-backed
// index described by the dual representation design: one global, one
// per-chunk, both sharing core.EmbeddingDim.
package vectorstore

import (
	"context"

	"lodestar/internal/core"
)

// VectorStore is the storage and nearest-neighbor interface used by the
// ranker and the persona bootstrapper. It owns two collections: content
// (one row per ContentItem, holding the global embedding) and
// content_chunks (one row per Chunk, holding the chunk embedding).
type VectorStore interface {
	// UpsertContent stores or replaces a content item's global embedding
	// and denormalized metadata used for filtering.
	UpsertContent(ctx context.Context, item *core.ContentItem) error

	// UpsertChunk stores or replaces one chunk's embedding and text.
	UpsertChunk(ctx context.Context, chunk *core.Chunk) error

	// DeleteContent removes a content item and all its chunks.
	DeleteContent(ctx context.Context, contentID string) error

	// SearchGlobal finds content items nearest the query vector by
	// cosine distance over the global collection.
	SearchGlobal(ctx context.Context, query SearchQuery) ([]GlobalResult, error)

	// SearchChunks finds chunks nearest the query vector by cosine
	// distance over the chunk collection.
	SearchChunks(ctx context.Context, query SearchQuery) ([]ChunkResult, error)

	// GetContent fetches one content item's stored record by ID.
	GetContent(ctx context.Context, contentID string) (*core.ContentItem, error)

	// ContentExists reports whether a content item is already indexed,
	// used by the Ingestion Controller for idempotency checks.
	ContentExists(ctx context.Context, contentID string) (bool, error)

	// AllGlobalVectors streams every content item's global embedding,
	// used by offline persona bootstrapping.
	AllGlobalVectors(ctx context.Context) ([]LabeledVector, error)

	// CreateIndexes creates the pgvector ANN indexes for both
	// collections; safe to call repeatedly.
	CreateIndexes(ctx context.Context) error
}

// SearchQuery configures a nearest-neighbor lookup.
type SearchQuery struct {
	Embedding  []float32
	Limit      int
	ExcludeIDs []string
	// Projects, when non-empty, restricts results to content items or
	// chunks carrying at least one of the given project labels.
	Projects []string
}

// GlobalResult is one hit from the content collection.
type GlobalResult struct {
	ContentID  string
	Similarity float64
	Distance   float64
	Item       *core.ContentItem
}

// ChunkResult is one hit from the content_chunks collection.
type ChunkResult struct {
	ChunkID    string
	ContentID  string
	Similarity float64
	Distance   float64
	Chunk      *core.Chunk
}

// LabeledVector pairs a content ID with its global embedding, the shape
// persona bootstrapping clusters over.
type LabeledVector struct {
	ContentID string
	Vector    []float32
}

// DefaultSearchQuery returns a SearchQuery limited to 20 results.
func DefaultSearchQuery(embedding []float32) SearchQuery {
	return SearchQuery{
		Embedding: embedding,
		Limit:     20,
	}
}
