package vectorstore

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/infrad/internal/namespace"
)

// InstrumentedStore wraps a Store and records Prometheus metrics for
// every operation. It adds no behavior of its own.
type InstrumentedStore struct {
	inner Store
}

// NewInstrumentedStore wraps the given store with metrics recording.
func NewInstrumentedStore(inner Store) *InstrumentedStore {
	return &InstrumentedStore{inner: inner}
}

// groupLabel extracts the index group from a collection name for the
// per-group document counter. Undecodable names count under "unknown".
func groupLabel(collection string) string {
	addr, err := namespace.Decode(collection)
	if err != nil {
		return "unknown"
	}
	return string(addr.Group)
}

func (s *InstrumentedStore) Add(ctx context.Context, collection string, docs []Document) ([]string, error) {
	start := time.Now()
	ids, err := s.inner.Add(ctx, collection, docs)
	RecordOperation("add", start, err)
	if err == nil {
		DocumentsStored.WithLabelValues(groupLabel(collection)).Add(float64(len(ids)))
	}
	return ids, err
}

func (s *InstrumentedStore) Get(ctx context.Context, collection string, id string) (*Document, error) {
	start := time.Now()
	doc, err := s.inner.Get(ctx, collection, id)
	RecordOperation("get", start, err)
	return doc, err
}

func (s *InstrumentedStore) Query(ctx context.Context, collection string, query string, k int, filter map[string]any) ([]SearchResult, error) {
	start := time.Now()
	results, err := s.inner.Query(ctx, collection, query, k, filter)
	RecordOperation("query", start, err)
	return results, err
}

func (s *InstrumentedStore) Update(ctx context.Context, collection string, id string, content *string, metadata map[string]any) error {
	start := time.Now()
	err := s.inner.Update(ctx, collection, id, content, metadata)
	RecordOperation("update", start, err)
	return err
}

func (s *InstrumentedStore) DeleteByIDs(ctx context.Context, collection string, ids []string) error {
	start := time.Now()
	err := s.inner.DeleteByIDs(ctx, collection, ids)
	RecordOperation("delete", start, err)
	return err
}

func (s *InstrumentedStore) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	start := time.Now()
	err := s.inner.DeleteByFilter(ctx, collection, filter)
	RecordOperation("delete", start, err)
	return err
}

func (s *InstrumentedStore) DeleteCollection(ctx context.Context, collection string) error {
	start := time.Now()
	err := s.inner.DeleteCollection(ctx, collection)
	RecordOperation("delete_collection", start, err)
	return err
}

func (s *InstrumentedStore) Count(ctx context.Context, collection string) (int, error) {
	start := time.Now()
	count, err := s.inner.Count(ctx, collection)
	RecordOperation("count", start, err)
	return count, err
}

func (s *InstrumentedStore) ListCollections(ctx context.Context) ([]string, error) {
	start := time.Now()
	names, err := s.inner.ListCollections(ctx)
	RecordOperation("list_collections", start, err)
	if err == nil {
		CollectionsGauge.Set(float64(len(names)))
	}
	return names, err
}

func (s *InstrumentedStore) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	start := time.Now()
	info, err := s.inner.GetCollectionInfo(ctx, collection)
	RecordOperation("collection_info", start, err)
	return info, err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

// Ensure InstrumentedStore implements Store interface.
var _ Store = (*InstrumentedStore)(nil)
