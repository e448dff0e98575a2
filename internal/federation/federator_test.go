package federation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// flakyStore wraps a MemoryStore and injects failures and delays for
// specific collections.
type flakyStore struct {
	*vectorstore.MemoryStore

	mu     sync.Mutex
	fail   map[string]error
	delays map[string]time.Duration
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		MemoryStore: vectorstore.NewMemoryStore(),
		fail:        make(map[string]error),
		delays:      make(map[string]time.Duration),
	}
}

func (s *flakyStore) Query(ctx context.Context, collection string, query string, k int, filter map[string]any) ([]vectorstore.SearchResult, error) {
	s.mu.Lock()
	failErr := s.fail[collection]
	delay := s.delays[collection]
	s.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.MemoryStore.Query(ctx, collection, query, k, filter)
}

func seedCollections(t *testing.T, store *flakyStore) []string {
	t.Helper()
	ctx := context.Background()

	collections := []string{
		"terraform__semantic__usr123",
		"memory__longterm__usr123",
		"context__docs__usr123",
	}

	_, err := store.Add(ctx, collections[0], []vectorstore.Document{
		{ID: "tf1", Content: "vpc subnet routing"},
		{ID: "tf2", Content: "vpc"},
	})
	require.NoError(t, err)

	_, err = store.Add(ctx, collections[1], []vectorstore.Document{
		{ID: "mem1", Content: "vpc"},
	})
	require.NoError(t, err)

	_, err = store.Add(ctx, collections[2], []vectorstore.Document{
		{ID: "doc1", Content: "unrelated database notes"},
	})
	require.NoError(t, err)

	return collections
}

func TestFederatorMergesByScoreWithDiscoveryTieBreak(t *testing.T) {
	store := newFlakyStore()
	collections := seedCollections(t, store)
	fed := New(store, Config{}, nil)

	// Query "vpc": tf1 scores 1.0, tf2 scores 1.0, mem1 scores 1.0,
	// doc1 scores 0. All ties resolve in discovery order.
	result, err := fed.Query(context.Background(), collections, "vpc", 10, nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Hits, 4)
	assert.Equal(t, "tf1", result.Hits[0].ID)
	assert.Equal(t, "tf2", result.Hits[1].ID)
	assert.Equal(t, "mem1", result.Hits[2].ID)
	assert.Equal(t, "doc1", result.Hits[3].ID)

	assert.Equal(t, collections[0], result.Hits[0].Collection)
	assert.Equal(t, collections[1], result.Hits[2].Collection)

	assert.Equal(t, map[string]int{
		collections[0]: 2,
		collections[1]: 1,
		collections[2]: 1,
	}, result.SourceCounts)
	assert.Empty(t, result.Failed)
}

func TestFederatorTruncatesToTopK(t *testing.T) {
	store := newFlakyStore()
	collections := seedCollections(t, store)
	fed := New(store, Config{}, nil)

	result, err := fed.Query(context.Background(), collections, "vpc", 2, nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Hits, 2)
	assert.Equal(t, "tf1", result.Hits[0].ID)
	assert.Equal(t, "tf2", result.Hits[1].ID)

	// SourceCounts reflect pre-truncation contributions.
	assert.Equal(t, 2, result.SourceCounts[collections[0]])
	assert.Equal(t, 1, result.SourceCounts[collections[1]])
}

func TestFederatorPostFilterRunsBeforeTruncation(t *testing.T) {
	store := newFlakyStore()
	ctx := context.Background()

	// The noise collection's documents outscore the tagged one on
	// "vpc subnet", so a filter applied after the merge truncated to
	// topK would never see it.
	_, err := store.Add(ctx, "terraform__semantic__usr123", []vectorstore.Document{
		{ID: "noise1", Content: "vpc subnet", Metadata: map[string]any{"kind": "noise"}},
		{ID: "noise2", Content: "vpc subnet", Metadata: map[string]any{"kind": "noise"}},
	})
	require.NoError(t, err)
	_, err = store.Add(ctx, "context__docs__usr123", []vectorstore.Document{
		{ID: "keep", Content: "vpc", Metadata: map[string]any{"kind": "target"}},
	})
	require.NoError(t, err)

	collections := []string{"terraform__semantic__usr123", "context__docs__usr123"}
	fed := New(store, Config{}, nil)
	result, err := fed.Query(ctx, collections, "vpc subnet", 2, nil, func(h Hit) bool {
		kind, _ := h.Metadata["kind"].(string)
		return kind == "target"
	})
	require.NoError(t, err)

	require.Len(t, result.Hits, 1)
	assert.Equal(t, "keep", result.Hits[0].ID)

	// SourceCounts report only hits that survive the filter.
	assert.Equal(t, map[string]int{
		"terraform__semantic__usr123": 0,
		"context__docs__usr123":       1,
	}, result.SourceCounts)
}

func TestFederatorFailedCollectionContributesZeroHits(t *testing.T) {
	store := newFlakyStore()
	collections := seedCollections(t, store)
	store.fail[collections[0]] = errors.New("backend down")

	fed := New(store, Config{}, nil)
	result, err := fed.Query(context.Background(), collections, "vpc", 10, nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Hits, 2)
	assert.Equal(t, "mem1", result.Hits[0].ID)
	assert.Equal(t, "doc1", result.Hits[1].ID)

	assert.Equal(t, []string{collections[0]}, result.Failed)
	assert.Equal(t, 0, result.SourceCounts[collections[0]])
}

func TestFederatorTimeoutContributesZeroHits(t *testing.T) {
	store := newFlakyStore()
	collections := seedCollections(t, store)
	store.delays[collections[1]] = 200 * time.Millisecond

	fed := New(store, Config{PerCollectionTimeout: 20 * time.Millisecond}, nil)
	result, err := fed.Query(context.Background(), collections, "vpc", 10, nil, nil)
	require.NoError(t, err)

	require.Len(t, result.Hits, 3)
	for _, hit := range result.Hits {
		assert.NotEqual(t, "mem1", hit.ID)
	}
	assert.Equal(t, []string{collections[1]}, result.Failed)
}

// Collections that do not exist in the store contribute empty results
// without being marked failed; absence of data is an answer.
func TestFederatorMissingCollectionIsNotAFailure(t *testing.T) {
	store := newFlakyStore()
	collections := seedCollections(t, store)
	all := append([]string{"terraform__semantic__ghost"}, collections...)

	fed := New(store, Config{}, nil)
	result, err := fed.Query(context.Background(), all, "vpc", 10, nil, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Failed)
	assert.Equal(t, 0, result.SourceCounts["terraform__semantic__ghost"])
	assert.Len(t, result.Hits, 4)
}

func TestFederatorEmptyCollectionList(t *testing.T) {
	fed := New(newFlakyStore(), Config{}, nil)
	result, err := fed.Query(context.Background(), nil, "vpc", 10, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Hits)
	assert.Empty(t, result.Failed)
}

func TestFederatorValidation(t *testing.T) {
	fed := New(newFlakyStore(), Config{}, nil)

	_, err := fed.Query(context.Background(), nil, "", 10, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = fed.Query(context.Background(), nil, "vpc", 0, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestFederatorFilterPropagates(t *testing.T) {
	store := newFlakyStore()
	ctx := context.Background()

	_, err := store.Add(ctx, "terraform__semantic__usr123", []vectorstore.Document{
		{ID: "a", Content: "vpc", Metadata: map[string]any{"env": "prod"}},
		{ID: "b", Content: "vpc", Metadata: map[string]any{"env": "dev"}},
	})
	require.NoError(t, err)

	fed := New(store, Config{}, nil)
	result, err := fed.Query(ctx, []string{"terraform__semantic__usr123"}, "vpc", 10, map[string]any{"env": "prod"}, nil)
	require.NoError(t, err)

	require.Len(t, result.Hits, 1)
	assert.Equal(t, "a", result.Hits[0].ID)
}
