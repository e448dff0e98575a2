package cloudstate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/cloud"
	"github.com/fyrsmithlabs/infrad/internal/drift"
	"github.com/fyrsmithlabs/infrad/internal/federation"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

func newTestService(t *testing.T, inventory map[string][]drift.Record) (*Service, *vectorstore.MemoryStore) {
	t.Helper()
	store := vectorstore.NewMemoryStore()
	var fetcher cloud.Fetcher
	if inventory != nil {
		fetcher = cloud.NewStatic(inventory, zap.NewNop())
	}
	fed := federation.New(store, federation.Config{}, zap.NewNop())
	svc, err := NewService(store, fetcher, fed, zap.NewNop())
	require.NoError(t, err)
	return svc, store
}

func instanceRecord(id, state string) drift.Record {
	return drift.Record{
		Type: "compute_instance",
		ID:   id,
		Name: "web-" + id,
		Attributes: map[string]any{
			"instance_type": "t3.medium",
			"state":         state,
			"region":        "us-east-1",
		},
	}
}

func TestNewServiceValidation(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	fed := federation.New(store, federation.Config{}, zap.NewNop())

	_, err := NewService(nil, nil, fed, zap.NewNop())
	assert.Error(t, err)

	_, err = NewService(store, nil, nil, zap.NewNop())
	assert.Error(t, err)

	svc, err := NewService(store, nil, fed, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestIndexDeclared(t *testing.T) {
	svc, store := newTestService(t, nil)
	ctx := context.Background()

	resources := []drift.Record{
		instanceRecord("i-1", "running"),
		{Type: "storage_bucket", ID: "logs", Attributes: map[string]any{"versioning": true}},
	}

	result, err := svc.IndexDeclared(ctx, "usr1", "acc1", resources, "proj1", "prod")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Indexed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "acc1", result.AccountID)

	count, err := store.Count(ctx, "context__state__usr1__acc1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIndexDeclaredRequiresIDs(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.IndexDeclared(context.Background(), "", "acc1", nil, "", "")
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = svc.IndexDeclared(context.Background(), "usr1", "", nil, "", "")
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDeclaredResourcesFilter(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	resources := []drift.Record{
		instanceRecord("i-1", "running"),
		{Type: "storage_bucket", ID: "logs", Attributes: map[string]any{}},
	}
	_, err := svc.IndexDeclared(ctx, "usr1", "acc1", resources, "", "")
	require.NoError(t, err)

	all, err := svc.DeclaredResources(ctx, "usr1", "acc1", "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	instances, err := svc.DeclaredResources(ctx, "usr1", "acc1", "compute_instance", 0)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "i-1", instances[0].Resource.ID)
	assert.Equal(t, "us-east-1", instances[0].Region)
	assert.Equal(t, "t3.medium", instances[0].Resource.Attributes["instance_type"])
}

func TestDeclaredResourcesEmptyAccount(t *testing.T) {
	svc, _ := newTestService(t, nil)

	entries, err := svc.DeclaredResources(context.Background(), "usr1", "acc1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchObservedWithoutFetcher(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.FetchObserved(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrNoFetcher)

	_, err = svc.SyncObserved(context.Background(), "usr1", "acc1", nil, "")
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestSyncObservedAddsResources(t *testing.T) {
	inventory := map[string][]drift.Record{
		"compute_instance": {instanceRecord("i-1", "running"), instanceRecord("i-2", "running")},
	}
	svc, store := newTestService(t, inventory)
	ctx := context.Background()

	result, err := svc.SyncObserved(ctx, "usr1", "acc1", nil, "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, result.Removed)
	assert.Equal(t, 2, result.Synced)

	count, err := store.Count(ctx, "context__live__usr1__acc1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyncObservedUpdatesAndRemoves(t *testing.T) {
	inventory := map[string][]drift.Record{
		"compute_instance": {instanceRecord("i-1", "running"), instanceRecord("i-2", "running")},
	}
	svc, store := newTestService(t, inventory)
	ctx := context.Background()

	_, err := svc.SyncObserved(ctx, "usr1", "acc1", nil, "us-east-1")
	require.NoError(t, err)

	first, err := svc.ObservedResources(ctx, "usr1", "acc1", "", "", 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	idsBefore := map[string]string{}
	for _, e := range first {
		idsBefore[e.Resource.ID] = e.ContextID
	}

	// i-2 disappears, i-1 changes state.
	inventory["compute_instance"] = []drift.Record{instanceRecord("i-1", "stopped")}

	result, err := svc.SyncObserved(ctx, "usr1", "acc1", nil, "us-east-1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Removed)

	entries, err := svc.ObservedResources(ctx, "usr1", "acc1", "", "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "i-1", entries[0].Resource.ID)
	assert.Equal(t, "stopped", entries[0].Resource.Attributes["state"])
	// Re-observed resources keep their context IDs.
	assert.Equal(t, idsBefore["i-1"], entries[0].ContextID)

	count, err := store.Count(ctx, "context__live__usr1__acc1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSyncObservedScopedTypesLeaveOthersAlone(t *testing.T) {
	inventory := map[string][]drift.Record{
		"compute_instance": {instanceRecord("i-1", "running")},
		"storage_bucket":   {{Type: "storage_bucket", ID: "logs", Attributes: map[string]any{}}},
	}
	svc, _ := newTestService(t, inventory)
	ctx := context.Background()

	_, err := svc.SyncObserved(ctx, "usr1", "acc1", nil, "")
	require.NoError(t, err)

	// Bucket disappears, but a sync scoped to instances must not
	// remove it.
	inventory["storage_bucket"] = nil

	result, err := svc.SyncObserved(ctx, "usr1", "acc1", []string{"compute_instance"}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Removed)

	entries, err := svc.ObservedResources(ctx, "usr1", "acc1", "storage_bucket", "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSearchContextAccountScoped(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	declared := []drift.Record{
		{Type: "compute_instance", ID: "i-1", Name: "api-server", Attributes: map[string]any{"role": "api server backend"}},
		{Type: "storage_bucket", ID: "logs", Name: "log-archive", Attributes: map[string]any{"purpose": "log archive storage"}},
	}
	_, err := svc.IndexDeclared(ctx, "usr1", "acc1", declared, "", "")
	require.NoError(t, err)

	hits, err := svc.SearchContext(ctx, SearchParams{
		UserID:    "usr1",
		AccountID: "acc1",
		Query:     "log archive storage",
		TopK:      5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "logs", hits[0].Entry.Resource.ID)
}

func TestSearchContextDiscoversAccounts(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.IndexDeclared(ctx, "usr1", "acc1",
		[]drift.Record{{Type: "compute_instance", ID: "i-1", Attributes: map[string]any{"role": "payments worker"}}}, "", "")
	require.NoError(t, err)
	_, err = svc.IndexDeclared(ctx, "usr1", "acc2",
		[]drift.Record{{Type: "compute_instance", ID: "i-2", Attributes: map[string]any{"role": "payments worker"}}}, "", "")
	require.NoError(t, err)
	// Another user's data must stay invisible.
	_, err = svc.IndexDeclared(ctx, "usr2", "acc1",
		[]drift.Record{{Type: "compute_instance", ID: "i-3", Attributes: map[string]any{"role": "payments worker"}}}, "", "")
	require.NoError(t, err)

	hits, err := svc.SearchContext(ctx, SearchParams{
		UserID: "usr1",
		Query:  "payments worker",
		TopK:   10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "usr1", h.Entry.UserID)
	}
}

func TestSearchContextResourceTypeFilter(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	declared := []drift.Record{
		{Type: "compute_instance", ID: "i-1", Attributes: map[string]any{"role": "shared cache node"}},
		{Type: "cache_cluster", ID: "c-1", Attributes: map[string]any{"role": "shared cache node"}},
	}
	_, err := svc.IndexDeclared(ctx, "usr1", "acc1", declared, "", "")
	require.NoError(t, err)

	hits, err := svc.SearchContext(ctx, SearchParams{
		UserID:       "usr1",
		AccountID:    "acc1",
		Query:        "shared cache node",
		ResourceType: "cache_cluster",
		TopK:         5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c-1", hits[0].Entry.Resource.ID)
}

func TestSearchContextValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.SearchContext(context.Background(), SearchParams{Query: "x"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = svc.SearchContext(context.Background(), SearchParams{UserID: "usr1"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestCompareDriftCached(t *testing.T) {
	inventory := map[string][]drift.Record{
		"compute_instance": {instanceRecord("i-1", "stopped"), instanceRecord("i-3", "running")},
	}
	svc, _ := newTestService(t, inventory)
	ctx := context.Background()

	declared := []drift.Record{
		instanceRecord("i-1", "running"),
		instanceRecord("i-2", "running"),
	}
	_, err := svc.IndexDeclared(ctx, "usr1", "acc1", declared, "", "")
	require.NoError(t, err)

	_, err = svc.SyncObserved(ctx, "usr1", "acc1", nil, "us-east-1")
	require.NoError(t, err)

	report, err := svc.CompareDrift(ctx, "usr1", "acc1", "", "", "", false)
	require.NoError(t, err)
	assert.True(t, report.DriftDetected)
	assert.Equal(t, "acc1", report.AccountID)

	declaredOnly := make([]string, 0, len(report.DeclaredOnly))
	for _, r := range report.DeclaredOnly {
		declaredOnly = append(declaredOnly, r.ID)
	}
	assert.Equal(t, []string{"i-2"}, declaredOnly)

	observedOnly := make([]string, 0, len(report.ObservedOnly))
	for _, r := range report.ObservedOnly {
		observedOnly = append(observedOnly, r.ID)
	}
	assert.Equal(t, []string{"i-3"}, observedOnly)

	require.Len(t, report.Differing, 1)
	assert.Equal(t, "i-1", report.Differing[0].ResourceID)
}

func TestCompareDriftScopedToResource(t *testing.T) {
	inventory := map[string][]drift.Record{
		"compute_instance": {instanceRecord("i-1", "stopped"), instanceRecord("i-3", "running")},
	}
	svc, _ := newTestService(t, inventory)
	ctx := context.Background()

	declared := []drift.Record{
		instanceRecord("i-1", "running"),
		instanceRecord("i-2", "running"),
	}
	_, err := svc.IndexDeclared(ctx, "usr1", "acc1", declared, "", "")
	require.NoError(t, err)

	_, err = svc.SyncObserved(ctx, "usr1", "acc1", nil, "us-east-1")
	require.NoError(t, err)

	// Scoping to i-1 must hide i-2 (declared only) and i-3 (observed
	// only) from the report entirely.
	report, err := svc.CompareDrift(ctx, "usr1", "acc1", "compute_instance", "i-1", "", false)
	require.NoError(t, err)
	assert.Equal(t, "i-1", report.ResourceID)
	assert.True(t, report.DriftDetected)
	assert.Empty(t, report.DeclaredOnly)
	assert.Empty(t, report.ObservedOnly)
	require.Len(t, report.Differing, 1)
	assert.Equal(t, "i-1", report.Differing[0].ResourceID)

	// Scoping to the undrifted resource reports no drift at all.
	report, err = svc.CompareDrift(ctx, "usr1", "acc1", "compute_instance", "i-9", "", false)
	require.NoError(t, err)
	assert.False(t, report.DriftDetected)
}

func TestCompareDriftFresh(t *testing.T) {
	inventory := map[string][]drift.Record{
		"compute_instance": {instanceRecord("i-1", "running")},
	}
	svc, _ := newTestService(t, inventory)
	ctx := context.Background()

	_, err := svc.IndexDeclared(ctx, "usr1", "acc1", []drift.Record{instanceRecord("i-1", "running")}, "", "")
	require.NoError(t, err)

	// No cached live collection; fresh comparison goes straight to
	// the fetcher.
	report, err := svc.CompareDrift(ctx, "usr1", "acc1", "compute_instance", "", "us-east-1", true)
	require.NoError(t, err)
	assert.False(t, report.DriftDetected)
	assert.Equal(t, 1, report.MatchedCount)
}

func TestCompareDriftFreshWithoutFetcher(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.CompareDrift(context.Background(), "usr1", "acc1", "", "", "", true)
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestNoteLifecycle(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	id, err := svc.StoreNote(ctx, "usr1", "failover runbook lives in the ops wiki", "runbook",
		map[string]string{"team": "platform"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	note, err := svc.GetNote(ctx, "usr1", id)
	require.NoError(t, err)
	assert.Equal(t, "usr1", note.UserID)
	assert.Equal(t, "runbook", note.Category)
	assert.Equal(t, "platform", note.Metadata["team"])
	assert.False(t, note.CreatedAt.IsZero())

	hits, err := svc.SearchNotes(ctx, "usr1", "failover runbook", "", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, id, hits[0].Note.ID)

	require.NoError(t, svc.DeleteNote(ctx, "usr1", id))
	_, err = svc.GetNote(ctx, "usr1", id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteNote(ctx, "usr1", id), ErrNotFound)
}

func TestSearchNotesCategoryFilter(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.StoreNote(ctx, "usr1", "database maintenance window is sunday", "schedule", nil)
	require.NoError(t, err)
	_, err = svc.StoreNote(ctx, "usr1", "database restore procedure notes", "runbook", nil)
	require.NoError(t, err)

	hits, err := svc.SearchNotes(ctx, "usr1", "database", "runbook", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "runbook", hits[0].Note.Category)
}

func TestStoreNoteValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.StoreNote(context.Background(), "", "content", "", nil)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = svc.StoreNote(context.Background(), "usr1", "", "", nil)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestEntryContentFallback(t *testing.T) {
	entry := entryFromMetadata("not json at all", map[string]any{
		"resource_type": "compute_instance",
		"resource_id":   "i-1",
	}, time.Now())
	assert.Equal(t, "not json at all", entry.Resource.Attributes["raw"])
	assert.Equal(t, "i-1", entry.Resource.ID)
}
