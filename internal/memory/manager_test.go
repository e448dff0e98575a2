package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

func newTestManager(t *testing.T) (*Manager, *vectorstore.MemoryStore) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	mgr, err := NewManager(store, Config{}, zap.NewNop())
	require.NoError(t, err)
	return mgr, store
}

func storeRecord(t *testing.T, mgr *Manager, rec Record) Record {
	t.Helper()
	require.NoError(t, mgr.Store(context.Background(), &rec))
	return rec
}

func TestNewManagerRequiresStore(t *testing.T) {
	_, err := NewManager(nil, Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestStoreDefaults(t *testing.T) {
	mgr, _ := newTestManager(t)

	rec := Record{UserID: "usr1", Content: "the staging vpc uses 10.1.0.0/16"}
	require.NoError(t, mgr.Store(context.Background(), &rec))

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, TypeSession, rec.Type)
	assert.Equal(t, DefaultImportance, rec.Importance)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, 0, rec.AccessCount)
}

func TestStoreValidation(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  Record
	}{
		{"missing user", Record{Content: "x"}},
		{"missing content", Record{UserID: "usr1"}},
		{"decision type rejected", Record{UserID: "usr1", Content: "x", Type: TypeDecision}},
		{"unknown type", Record{UserID: "usr1", Content: "x", Type: "ephemeral"}},
		{"importance out of range", Record{UserID: "usr1", Content: "x", Importance: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			assert.ErrorIs(t, mgr.Store(ctx, &rec), ErrInvalidRecord)
		})
	}
}

func TestGetBumpsAccessStats(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	stored := storeRecord(t, mgr, Record{UserID: "usr1", Content: "prod rds runs postgres 15"})

	got, err := mgr.Get(ctx, "usr1", stored.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.Equal(t, stored.Content, got.Content)

	// The bump persists.
	got, err = mgr.Get(ctx, "usr1", stored.ID, TypeSession)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
}

func TestGetNotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.Get(context.Background(), "usr1", "ghost", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchMergesTypes(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	storeRecord(t, mgr, Record{UserID: "usr1", Content: "vpc peering between prod and staging", Type: TypeSession, SessionID: "s1"})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "always tag vpc resources with owner", Type: TypeLongterm})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "rds backups run nightly", Type: TypeLongterm})

	results, err := mgr.Search(ctx, SearchParams{UserID: "usr1", Query: "vpc"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Both vpc memories outrank the rds one; scores are non-increasing.
	assert.Contains(t, results[0].Record.Content, "vpc")
	assert.Contains(t, results[1].Record.Content, "vpc")
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Relevance, results[i-1].Relevance)
	}
}

func TestSearchMinImportanceFilter(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	storeRecord(t, mgr, Record{UserID: "usr1", Content: "vpc detail minor", Importance: 0.2})
	important := storeRecord(t, mgr, Record{UserID: "usr1", Content: "vpc detail critical", Importance: 0.9})

	results, err := mgr.Search(ctx, SearchParams{UserID: "usr1", Query: "vpc detail", MinImportance: 0.5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, important.ID, results[0].Record.ID)
}

func TestSearchTagFilter(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	tagged := storeRecord(t, mgr, Record{UserID: "usr1", Content: "vpc flow logs enabled", Tags: []string{"networking", "audit"}})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "vpc endpoints configured", Tags: []string{"cost"}})

	results, err := mgr.Search(ctx, SearchParams{UserID: "usr1", Query: "vpc", Tags: []string{"audit"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tagged.ID, results[0].Record.ID)
}

func TestSearchSessionScope(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	inSession := storeRecord(t, mgr, Record{UserID: "usr1", Content: "vpc created in us-east-1", SessionID: "s1"})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "vpc created in eu-west-1", SessionID: "s2"})

	results, err := mgr.Search(ctx, SearchParams{UserID: "usr1", Query: "vpc created", SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, inSession.ID, results[0].Record.ID)
}

func TestSearchNoMemories(t *testing.T) {
	mgr, _ := newTestManager(t)
	results, err := mgr.Search(context.Background(), SearchParams{UserID: "nobody", Query: "anything"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSessionRecords(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	storeRecord(t, mgr, Record{UserID: "usr1", Content: "first step", SessionID: "s1"})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "second step", SessionID: "s1"})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "other session", SessionID: "s2"})

	records, err := mgr.SessionRecords(ctx, "usr1", "s1", 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, "s1", rec.SessionID)
	}
}

func TestPromote(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	stored := storeRecord(t, mgr, Record{UserID: "usr1", Content: "never apply without plan", SessionID: "s1", Importance: 0.9})

	promoted, err := mgr.Promote(ctx, "usr1", stored.ID)
	require.NoError(t, err)
	assert.Equal(t, TypeLongterm, promoted.Type)
	assert.Equal(t, stored.ID, promoted.ID)

	sessionCount, err := store.Count(ctx, "memory__session__usr1")
	require.NoError(t, err)
	assert.Equal(t, 0, sessionCount)

	longtermCount, err := store.Count(ctx, "memory__longterm__usr1")
	require.NoError(t, err)
	assert.Equal(t, 1, longtermCount)

	got, err := mgr.Get(ctx, "usr1", stored.ID, TypeLongterm)
	require.NoError(t, err)
	assert.Equal(t, stored.Content, got.Content)
}

func TestPromoteNotFoundLeavesCollectionsUntouched(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	storeRecord(t, mgr, Record{UserID: "usr1", Content: "unrelated", SessionID: "s1"})

	_, err := mgr.Promote(ctx, "usr1", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	sessionCount, err := store.Count(ctx, "memory__session__usr1")
	require.NoError(t, err)
	assert.Equal(t, 1, sessionCount)

	longtermCount, err := store.Count(ctx, "memory__longterm__usr1")
	require.NoError(t, err)
	assert.Equal(t, 0, longtermCount)
}

func TestUpdateImportance(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	stored := storeRecord(t, mgr, Record{UserID: "usr1", Content: "subnet layout", Importance: 0.3})

	require.NoError(t, mgr.UpdateImportance(ctx, "usr1", stored.ID, 0.8, ""))

	got, err := mgr.Get(ctx, "usr1", stored.ID, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, got.Importance, 0.001)

	assert.ErrorIs(t, mgr.UpdateImportance(ctx, "usr1", "ghost", 0.8, ""), ErrNotFound)
	assert.ErrorIs(t, mgr.UpdateImportance(ctx, "usr1", stored.ID, 2.0, ""), ErrInvalidRecord)
}

func TestDelete(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	stored := storeRecord(t, mgr, Record{UserID: "usr1", Content: "obsolete note"})

	require.NoError(t, mgr.Delete(ctx, "usr1", stored.ID, ""))

	_, err := mgr.Get(ctx, "usr1", stored.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, mgr.Delete(ctx, "usr1", stored.ID, ""), ErrNotFound)
}

func TestCleanupSessionPromotesAndDeletes(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	important := storeRecord(t, mgr, Record{UserID: "usr1", Content: "key decision about networking", SessionID: "s1", Importance: 0.9})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "scratch note one", SessionID: "s1", Importance: 0.2})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "scratch note two", SessionID: "s1", Importance: 0.4})
	other := storeRecord(t, mgr, Record{UserID: "usr1", Content: "other session note", SessionID: "s2", Importance: 0.1})

	deleted, err := mgr.CleanupSession(ctx, "usr1", "s1", true, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	longtermCount, err := store.Count(ctx, "memory__longterm__usr1")
	require.NoError(t, err)
	assert.Equal(t, 1, longtermCount)

	// Only the untouched session remains.
	sessionCount, err := store.Count(ctx, "memory__session__usr1")
	require.NoError(t, err)
	assert.Equal(t, 1, sessionCount)

	promoted, err := mgr.Get(ctx, "usr1", important.ID, TypeLongterm)
	require.NoError(t, err)
	assert.Equal(t, TypeLongterm, promoted.Type)

	remaining, err := mgr.Get(ctx, "usr1", other.ID, TypeSession)
	require.NoError(t, err)
	assert.Equal(t, "s2", remaining.SessionID)
}

func TestCleanupSessionWithoutKeepImportant(t *testing.T) {
	mgr, store := newTestManager(t)
	ctx := context.Background()

	storeRecord(t, mgr, Record{UserID: "usr1", Content: "very important", SessionID: "s1", Importance: 0.95})
	storeRecord(t, mgr, Record{UserID: "usr1", Content: "throwaway", SessionID: "s1", Importance: 0.1})

	deleted, err := mgr.CleanupSession(ctx, "usr1", "s1", false, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	longtermCount, err := store.Count(ctx, "memory__longterm__usr1")
	require.NoError(t, err)
	assert.Equal(t, 0, longtermCount)
}

func TestRecordMetadataRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	stored := storeRecord(t, mgr, Record{
		UserID:     "usr1",
		Content:    "vpc cidr allocation policy",
		SessionID:  "s1",
		Importance: 0.7,
		Tags:       []string{"networking", "policy"},
		Metadata:   map[string]any{"source": "runbook", "reviewed": true},
	})

	got, err := mgr.Get(ctx, "usr1", stored.ID, TypeSession)
	require.NoError(t, err)

	assert.Equal(t, stored.UserID, got.UserID)
	assert.Equal(t, stored.SessionID, got.SessionID)
	assert.InDelta(t, 0.7, got.Importance, 0.001)
	assert.Equal(t, []string{"networking", "policy"}, got.Tags)
	assert.Equal(t, "runbook", got.Metadata["source"])
}
