package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *MemoryStore {
	t.Helper()
	store := NewMemoryStore()
	_, err := store.Add(context.Background(), "terraform__semantic__usr123", []Document{
		{ID: "d1", Content: "vpc module with three subnets", Metadata: map[string]any{"env": "prod"}},
		{ID: "d2", Content: "rds instance configuration", Metadata: map[string]any{"env": "staging"}},
		{ID: "d3", Content: "vpc peering configuration", Metadata: map[string]any{"env": "prod"}},
	})
	require.NoError(t, err)
	return store
}

func TestMemoryStoreAddAssignsIDs(t *testing.T) {
	store := NewMemoryStore()
	ids, err := store.Add(context.Background(), "memory__session__usr123", []Document{
		{Content: "first"},
		{ID: "explicit", Content: "second"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.Equal(t, "explicit", ids[1])

	count, err := store.Count(context.Background(), "memory__session__usr123")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryStoreAddEmpty(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Add(context.Background(), "memory__session__usr123", nil)
	assert.ErrorIs(t, err, ErrEmptyDocuments)
}

func TestMemoryStoreQuery(t *testing.T) {
	store := seedStore(t)

	results, err := store.Query(context.Background(), "terraform__semantic__usr123", "vpc configuration", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// d3 matches both tokens, d1 and d2 one each; ties keep insertion order.
	assert.Equal(t, "d3", results[0].ID)
	assert.Equal(t, "d1", results[1].ID)
	assert.Equal(t, "d2", results[2].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, results[1].Score, results[2].Score)
}

func TestMemoryStoreQueryTruncatesToK(t *testing.T) {
	store := seedStore(t)
	results, err := store.Query(context.Background(), "terraform__semantic__usr123", "vpc", 1, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMemoryStoreQueryWithFilter(t *testing.T) {
	store := seedStore(t)
	results, err := store.Query(context.Background(), "terraform__semantic__usr123", "vpc", 10, map[string]any{"env": "prod"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "prod", r.Metadata["env"])
	}
}

// Reads against collections that were never created report emptiness,
// not errors.
func TestMemoryStoreMissingCollectionReads(t *testing.T) {
	store := NewMemoryStore()

	results, err := store.Query(context.Background(), "terraform__semantic__ghost", "anything", 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	count, err := store.Count(context.Background(), "terraform__semantic__ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStoreMissingCollectionWritesFail(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.DeleteByIDs(ctx, "terraform__semantic__ghost", []string{"x"}), ErrCollectionNotFound)
	assert.ErrorIs(t, store.DeleteByFilter(ctx, "terraform__semantic__ghost", map[string]any{"a": "b"}), ErrCollectionNotFound)
	assert.ErrorIs(t, store.DeleteCollection(ctx, "terraform__semantic__ghost"), ErrCollectionNotFound)
	assert.ErrorIs(t, store.Update(ctx, "terraform__semantic__ghost", "x", nil, nil), ErrCollectionNotFound)
}

func TestMemoryStoreUpdate(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	newContent := "vpc module rewritten"
	err := store.Update(ctx, "terraform__semantic__usr123", "d1", &newContent, map[string]any{"env": "dev", "touched": true})
	require.NoError(t, err)

	results, err := store.Query(ctx, "terraform__semantic__usr123", "rewritten", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d1", results[0].ID)
	assert.Equal(t, newContent, results[0].Content)
	assert.Equal(t, "dev", results[0].Metadata["env"])
	assert.Equal(t, true, results[0].Metadata["touched"])
}

func TestMemoryStoreUpdateNotFound(t *testing.T) {
	store := seedStore(t)
	err := store.Update(context.Background(), "terraform__semantic__usr123", "ghost", nil, nil)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMemoryStoreGet(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	doc, err := store.Get(ctx, "terraform__semantic__usr123", "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", doc.ID)
	assert.NotEmpty(t, doc.Content)

	_, err = store.Get(ctx, "terraform__semantic__usr123", "ghost")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	// Missing collection holds no documents.
	_, err = store.Get(ctx, "terraform__semantic__nobody", "d1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestMemoryStoreDeleteByIDs(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	err := store.DeleteByIDs(ctx, "terraform__semantic__usr123", []string{"d1", "unknown"})
	require.NoError(t, err)

	count, err := store.Count(ctx, "terraform__semantic__usr123")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMemoryStoreDeleteByFilter(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	err := store.DeleteByFilter(ctx, "terraform__semantic__usr123", map[string]any{"env": "prod"})
	require.NoError(t, err)

	count, err := store.Count(ctx, "terraform__semantic__usr123")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := store.Query(ctx, "terraform__semantic__usr123", "rds", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d2", results[0].ID)
}

func TestMemoryStoreDeleteCollection(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	require.NoError(t, store.DeleteCollection(ctx, "terraform__semantic__usr123"))

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	count, err := store.Count(ctx, "terraform__semantic__usr123")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStoreListCollectionsOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"memory__session__u1", "terraform__semantic__u1", "context__docs__u1"} {
		_, err := store.Add(ctx, name, []Document{{ID: "x", Content: "c"}})
		require.NoError(t, err)
	}

	names, err := store.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"memory__session__u1", "terraform__semantic__u1", "context__docs__u1"}, names)
}

func TestMemoryStoreSanitizesOnAdd(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Add(ctx, "context__docs__u1", []Document{
		{ID: "d1", Content: "doc", Metadata: map[string]any{"tags": []string{"a", "b"}, "note": nil}},
	})
	require.NoError(t, err)

	results, err := store.Query(ctx, "context__docs__u1", "doc", 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a,b", results[0].Metadata["tags"])
	assert.Equal(t, "", results[0].Metadata["note"])

	_, err = store.Add(ctx, "context__docs__u1", []Document{
		{ID: "d2", Content: "doc", Metadata: map[string]any{"bad": map[string]any{}}},
	})
	assert.ErrorIs(t, err, ErrMalformedMetadata)
}
