// Package vectorstore defines the collection-scoped storage interface
// used by every knowledge layer in infrad.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned by destructive operations when
	// the target collection does not exist. Read operations never
	// return it; they report empty results instead.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDocumentNotFound is returned when an update targets an ID that
	// is not present in the collection.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrMalformedMetadata is returned when a metadata value cannot be
	// flattened to a storable scalar (nested maps, lists of lists).
	ErrMalformedMetadata = errors.New("malformed metadata value")
)

// CollectionInfo contains metadata about a vector collection.
type CollectionInfo struct {
	// Name is the collection name.
	Name string `json:"name"`

	// PointCount is the number of vectors in the collection.
	PointCount int `json:"point_count"`

	// VectorSize is the dimensionality of vectors in this collection.
	VectorSize int `json:"vector_size"`
}

// Embedder generates vector embeddings from text.
//
// Implementations can use local models or cloud APIs; the store does
// not care as long as output dimensionality is stable.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the collection-scoped interface over an opaque vector
// database. Collection names come from the namespace package; the
// store itself treats them as opaque identifiers and only enforces
// character-set rules.
//
// Missing-collection semantics are asymmetric and deliberate:
//
//   - Reads (Query, Count) against a collection that does not exist
//     report emptiness ([]  / 0), never an error. Absence of data is
//     an answer.
//   - Writes (Add, Update) create the collection on demand.
//   - Destructive operations (DeleteCollection, DeleteByIDs,
//     DeleteByFilter) on a missing collection return
//     ErrCollectionNotFound so callers notice targeting mistakes.
//
// All metadata passes through SanitizeMetadata at the Add/Update
// boundary; documents read back never contain nil or composite values.
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default)
//   - QdrantStore: external Qdrant gRPC client
//   - MemoryStore: deterministic in-memory store for tests
type Store interface {
	// Add embeds and stores documents in the named collection,
	// creating it if needed. Empty document IDs are assigned UUIDs.
	// Returns the stored IDs in input order.
	Add(ctx context.Context, collection string, docs []Document) ([]string, error)

	// Get fetches a single document by ID. Returns ErrDocumentNotFound
	// if the ID is absent, including when the whole collection is
	// absent (a missing collection holds no documents).
	Get(ctx context.Context, collection string, id string) (*Document, error)

	// Query performs similarity search in the named collection,
	// returning up to k results ordered by relevance score
	// (highest first). An optional filter restricts results to
	// documents whose metadata matches every key exactly.
	Query(ctx context.Context, collection string, query string, k int, filter map[string]any) ([]SearchResult, error)

	// Update overwrites fields of an existing document. A nil content
	// pointer keeps the stored content; non-nil metadata is merged
	// key-by-key over the existing metadata. Changing content
	// re-embeds the document.
	Update(ctx context.Context, collection string, id string, content *string, metadata map[string]any) error

	// DeleteByIDs removes the identified documents. IDs not present
	// are ignored.
	DeleteByIDs(ctx context.Context, collection string, ids []string) error

	// DeleteByFilter removes every document whose metadata matches
	// the filter exactly on all keys.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	// DeleteCollection removes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// Count returns the number of documents in the collection,
	// 0 if the collection does not exist.
	Count(ctx context.Context, collection string) (int, error)

	// ListCollections returns all collection names known to the store.
	ListCollections(ctx context.Context) ([]string, error)

	// GetCollectionInfo returns metadata about a collection.
	// Returns ErrCollectionNotFound if the collection doesn't exist.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// Close releases store resources.
	Close() error
}
