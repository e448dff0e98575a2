package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("infrad.vectorstore.chromem")

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/infrad/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	// Note: This defaults to false (Go zero value). Set explicitly if compression is desired.
	Compress bool

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	// Default: 384
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/infrad/vectorstore"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database with zero third-party
// dependencies: pure Go, no external database service, persistence to
// gob files. Similarity is cosine, so result scores are already
// 1 - distance.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	if err := os.MkdirAll(expandedPath, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("chromem store initialized",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)

	return store, nil
}

// expandChromemPath expands ~ to home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// createEmbeddingFunc creates a chromem.EmbeddingFunc from our Embedder interface.
func (s *ChromemStore) createEmbeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// getCollection returns the named collection or nil if it doesn't exist.
// The embedding function must always be passed: chromem-go sets a
// default OpenAI embedder when nil is passed for persisted collections.
func (s *ChromemStore) getCollection(name string) *chromem.Collection {
	return s.db.GetCollection(name, s.createEmbeddingFunc())
}

// Add embeds and stores documents, creating the collection on demand.
func (s *ChromemStore) Add(ctx context.Context, collection string, docs []Document) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Add")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	coll, err := s.db.GetOrCreateCollection(collection, nil, s.createEmbeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	ids := make([]string, len(docs))
	texts := make([]string, len(docs))
	sanitized := make([]map[string]any, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
		if ids[i] == "" {
			ids[i] = uuid.New().String()
		}
		texts[i] = doc.Content

		meta, err := SanitizeMetadata(doc.Metadata)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("sanitizing metadata for document %s: %w", ids[i], err)
		}
		sanitized[i] = meta
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        ids[i],
			Content:   texts[i],
			Metadata:  metadataToString(sanitized[i]),
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1 since we already have embeddings.
	if err := coll.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents: %w", err)
	}

	span.SetAttributes(attribute.Int("documents_added", len(ids)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("added documents to chromem",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)

	return ids, nil
}

// Get fetches a single document by ID.
func (s *ChromemStore) Get(ctx context.Context, collection string, id string) (*Document, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Get")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("id", id),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	coll := s.getCollection(collection)
	if coll == nil {
		span.SetStatus(codes.Error, "document not found")
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	existing, err := coll.GetByID(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "document not found")
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	span.SetStatus(codes.Ok, "success")
	return &Document{
		ID:       existing.ID,
		Content:  existing.Content,
		Metadata: metadataFromString(existing.Metadata),
	}, nil
}

// Query performs similarity search. A missing collection reports empty
// results, never an error.
func (s *ChromemStore) Query(ctx context.Context, collection string, query string, k int, filter map[string]any) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("k", k),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	coll := s.getCollection(collection)
	if coll == nil {
		span.SetStatus(codes.Ok, "collection absent")
		return []SearchResult{}, nil
	}

	// chromem requires nResults <= doc count.
	docCount := coll.Count()
	if docCount == 0 {
		return []SearchResult{}, nil
	}
	if k > docCount {
		k = docCount
	}

	results, err := coll.Query(ctx, query, k, metadataToString(filter), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: metadataFromString(r.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(searchResults)))
	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("queried chromem collection",
		zap.String("collection", collection),
		zap.Int("k", k),
		zap.Int("results", len(searchResults)),
	)

	return searchResults, nil
}

// Update overwrites an existing document in place. Content changes are
// re-embedded; metadata merges key-by-key over the stored values.
func (s *ChromemStore) Update(ctx context.Context, collection string, id string, content *string, metadata map[string]any) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.String("id", id),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	coll := s.getCollection(collection)
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	existing, err := coll.GetByID(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "document not found")
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	newContent := existing.Content
	embedding := existing.Embedding
	if content != nil && *content != existing.Content {
		newContent = *content
		embedding, err = s.embedder.EmbedQuery(ctx, newContent)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
	}

	merged := metadataFromString(existing.Metadata)
	if merged == nil {
		merged = map[string]any{}
	}
	sanitized, err := SanitizeMetadata(metadata)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("sanitizing metadata for document %s: %w", id, err)
	}
	for k, v := range sanitized {
		merged[k] = v
	}

	doc := chromem.Document{
		ID:        id,
		Content:   newContent,
		Metadata:  metadataToString(merged),
		Embedding: embedding,
	}
	if err := coll.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("updating document %s: %w", id, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByIDs removes the identified documents.
func (s *ChromemStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByIDs")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	coll := s.getCollection(collection)
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	if err := coll.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting documents from %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("deleted documents from chromem",
		zap.String("collection", collection),
		zap.Int("count", len(ids)),
	)

	return nil
}

// DeleteByFilter removes every document whose metadata matches the filter.
func (s *ChromemStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteByFilter")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("filter cannot be empty")
	}

	coll := s.getCollection(collection)
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	if err := coll.Delete(ctx, metadataToString(filter), nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting by filter from %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteCollection deletes a collection and all its documents.
func (s *ChromemStore) DeleteCollection(ctx context.Context, collection string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	if s.getCollection(collection) == nil {
		span.SetStatus(codes.Error, "collection not found")
		return ErrCollectionNotFound
	}

	if err := s.db.DeleteCollection(collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collection, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Info("deleted chromem collection",
		zap.String("collection", collection),
	)

	return nil
}

// Count returns the document count, 0 for a missing collection.
func (s *ChromemStore) Count(ctx context.Context, collection string) (int, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Count")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}

	coll := s.getCollection(collection)
	if coll == nil {
		span.SetStatus(codes.Ok, "collection absent")
		return 0, nil
	}

	count := coll.Count()
	span.SetAttributes(attribute.Int("point_count", count))
	span.SetStatus(codes.Ok, "success")
	return count, nil
}

// ListCollections returns all collection names.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.ListCollections")
	defer span.End()

	collectionsMap := s.db.ListCollections()
	names := make([]string, 0, len(collectionsMap))
	for name := range collectionsMap {
		names = append(names, name)
	}

	span.SetAttributes(attribute.Int("collection_count", len(names)))
	span.SetStatus(codes.Ok, "success")

	return names, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *ChromemStore) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.GetCollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collection))

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	coll := s.getCollection(collection)
	if coll == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	info := &CollectionInfo{
		Name:       collection,
		PointCount: coll.Count(),
		VectorSize: s.config.VectorSize,
	}

	span.SetAttributes(attribute.Int("point_count", info.PointCount))
	span.SetStatus(codes.Ok, "success")

	return info, nil
}

// Close closes the ChromemStore.
// chromem-go handles persistence automatically, no explicit close needed.
func (s *ChromemStore) Close() error {
	s.logger.Info("chromem store closed")
	return nil
}

// Ensure ChromemStore implements Store interface.
var _ Store = (*ChromemStore)(nil)
