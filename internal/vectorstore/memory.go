package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a deterministic in-process Store.
//
// Relevance is lexical token overlap instead of embeddings, so results
// are fully reproducible: score = matched query tokens / total query
// tokens. Ties preserve insertion order. Useful for tests and for
// running without any vector backend configured.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	order       []string
}

type memCollection struct {
	docs  map[string]*memDocument
	order []string
}

type memDocument struct {
	content  string
	metadata map[string]any
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
	}
}

func (s *MemoryStore) getOrCreate(name string) *memCollection {
	coll, ok := s.collections[name]
	if !ok {
		coll = &memCollection{docs: make(map[string]*memDocument)}
		s.collections[name] = coll
		s.order = append(s.order, name)
	}
	return coll
}

// Add stores documents, creating the collection on demand.
func (s *MemoryStore) Add(ctx context.Context, collection string, docs []Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.getOrCreate(collection)
	ids := make([]string, len(docs))
	for i, doc := range docs {
		id := doc.ID
		if id == "" {
			id = uuid.New().String()
		}
		ids[i] = id

		metadata, err := SanitizeMetadata(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("sanitizing metadata for document %s: %w", id, err)
		}

		if _, exists := coll.docs[id]; !exists {
			coll.order = append(coll.order, id)
		}
		coll.docs[id] = &memDocument{content: doc.Content, metadata: metadata}
	}
	return ids, nil
}

// Get fetches a single document by ID.
func (s *MemoryStore) Get(ctx context.Context, collection string, id string) (*Document, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	doc, ok := coll.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	metadata := make(map[string]any, len(doc.metadata))
	for k, v := range doc.metadata {
		metadata[k] = v
	}
	return &Document{ID: id, Content: doc.content, Metadata: metadata}, nil
}

// tokenize lowercases and splits on whitespace.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// overlapScore is the fraction of distinct query tokens present in the
// document.
func overlapScore(query, content string) float32 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	distinct := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		distinct[t] = true
	}
	docTokens := make(map[string]bool)
	for _, t := range tokenize(content) {
		docTokens[t] = true
	}
	matched := 0
	for t := range distinct {
		if docTokens[t] {
			matched++
		}
	}
	return float32(matched) / float32(len(distinct))
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// Query scores documents by token overlap. A missing collection
// reports empty results, never an error.
func (s *MemoryStore) Query(ctx context.Context, collection string, query string, k int, filter map[string]any) ([]SearchResult, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return []SearchResult{}, nil
	}

	results := make([]SearchResult, 0, len(coll.order))
	for _, id := range coll.order {
		doc := coll.docs[id]
		if !matchesFilter(doc.metadata, filter) {
			continue
		}
		metadata := make(map[string]any, len(doc.metadata))
		for mk, mv := range doc.metadata {
			metadata[mk] = mv
		}
		results = append(results, SearchResult{
			ID:       id,
			Content:  doc.content,
			Score:    overlapScore(query, doc.content),
			Metadata: metadata,
		})
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Update overwrites fields of an existing document.
func (s *MemoryStore) Update(ctx context.Context, collection string, id string, content *string, metadata map[string]any) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	doc, ok := coll.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	if content != nil {
		doc.content = *content
	}
	sanitized, err := SanitizeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("sanitizing metadata for document %s: %w", id, err)
	}
	for k, v := range sanitized {
		doc.metadata[k] = v
	}
	return nil
}

// DeleteByIDs removes the identified documents; unknown IDs are ignored.
func (s *MemoryStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
		delete(coll.docs, id)
	}
	coll.order = filterOrder(coll.order, remove)
	return nil
}

// DeleteByFilter removes every document matching the metadata filter.
func (s *MemoryStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("filter cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	remove := make(map[string]bool)
	for id, doc := range coll.docs {
		if matchesFilter(doc.metadata, filter) {
			remove[id] = true
			delete(coll.docs, id)
		}
	}
	coll.order = filterOrder(coll.order, remove)
	return nil
}

func filterOrder(order []string, remove map[string]bool) []string {
	kept := order[:0]
	for _, id := range order {
		if !remove[id] {
			kept = append(kept, id)
		}
	}
	return kept
}

// DeleteCollection removes a collection and all its documents.
func (s *MemoryStore) DeleteCollection(ctx context.Context, collection string) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; !ok {
		return ErrCollectionNotFound
	}
	delete(s.collections, collection)
	s.order = filterOrder(s.order, map[string]bool{collection: true})
	return nil
}

// Count returns the document count, 0 for a missing collection.
func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	return len(coll.docs), nil
}

// ListCollections returns collection names in creation order.
func (s *MemoryStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names, nil
}

// GetCollectionInfo returns metadata about a collection.
func (s *MemoryStore) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}
	return &CollectionInfo{
		Name:       collection,
		PointCount: len(coll.docs),
	}, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements Store interface.
var _ Store = (*MemoryStore)(nil)
