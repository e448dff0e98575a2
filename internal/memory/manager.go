// Package memory manages persistent agent memory across sessions.
//
// Memories live in per-user, per-type collections (memory__session__u,
// memory__longterm__u, memory__decisions__u) and move between them
// through a one-way promotion: session memories that prove important
// are re-inserted into longterm storage under the same ID. Decisions
// are append-only and never transition.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/namespace"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

const (
	// DefaultImportance is assigned to records stored without an
	// explicit importance score.
	DefaultImportance = 0.5

	// DefaultImportanceThreshold gates promotion during session cleanup.
	DefaultImportanceThreshold = 0.7

	// DefaultSearchLimit is the default maximum number of search results.
	DefaultSearchLimit = 10

	// DefaultSessionLimit bounds session record listings.
	DefaultSessionLimit = 50
)

// Config holds tunables for the memory manager.
type Config struct {
	// ImportanceThreshold is the minimum importance for a session
	// memory to be promoted instead of deleted during cleanup.
	// Default: 0.7
	ImportanceThreshold float64

	// SearchLimit is the default result cap for searches.
	// Default: 10
	SearchLimit int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ImportanceThreshold == 0 {
		c.ImportanceThreshold = DefaultImportanceThreshold
	}
	if c.SearchLimit == 0 {
		c.SearchLimit = DefaultSearchLimit
	}
}

// Manager stores, retrieves and transitions memory records.
type Manager struct {
	store  vectorstore.Store
	config Config
	logger *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a memory manager backed by the given store.
func NewManager(store vectorstore.Store, config Config, logger *zap.Logger) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &Manager{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// decisionsSubIndex is the collection subindex for decisions; it is
// plural while the type constant is singular.
const decisionsSubIndex = "decisions"

// collection builds the collection name for a user's memories of the
// given type.
func (m *Manager) collection(userID string, t Type) (string, error) {
	sub := string(t)
	if t == TypeDecision {
		sub = decisionsSubIndex
	}
	addr := namespace.Address{
		Group:    namespace.GroupMemory,
		SubIndex: sub,
		UserID:   userID,
	}
	name, err := addr.Encode()
	if err != nil {
		return "", fmt.Errorf("building memory collection name: %w", err)
	}
	return name, nil
}

// recordMetadata flattens a record to store metadata. Custom metadata
// rides along under a custom_ prefix; non-scalar custom values are
// dropped.
func recordMetadata(rec *Record) map[string]any {
	meta := map[string]any{
		"memory_id":        rec.ID,
		"user_id":          rec.UserID,
		"session_id":       rec.SessionID,
		"memory_type":      string(rec.Type),
		"importance_score": rec.Importance,
		"tags":             strings.Join(rec.Tags, ","),
		"created_at":       rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"accessed_at":      rec.AccessedAt.UTC().Format(time.RFC3339Nano),
		"access_count":     rec.AccessCount,
	}
	for k, v := range rec.Metadata {
		switch v.(type) {
		case string, bool, int, int64, float32, float64:
			meta["custom_"+k] = v
		}
	}
	return meta
}

// recordFromMetadata rebuilds a record from stored content and metadata.
func recordFromMetadata(content string, meta map[string]any, now time.Time) Record {
	rec := Record{
		ID:          metaString(meta["memory_id"]),
		UserID:      metaString(meta["user_id"]),
		SessionID:   metaString(meta["session_id"]),
		Type:        Type(metaString(meta["memory_type"])),
		Content:     content,
		Importance:  metaFloat(meta["importance_score"], DefaultImportance),
		Tags:        splitTags(meta["tags"]),
		CreatedAt:   metaTime(meta["created_at"], now),
		AccessedAt:  metaTime(meta["accessed_at"], now),
		AccessCount: metaInt(meta["access_count"], 0),
	}
	for k, v := range meta {
		if name, ok := strings.CutPrefix(k, "custom_"); ok {
			if rec.Metadata == nil {
				rec.Metadata = make(map[string]any)
			}
			rec.Metadata[name] = v
		}
	}
	return rec
}

// Store persists a new memory record, assigning ID and timestamps.
//
// Zero importance means "unscored" and receives DefaultImportance.
func (m *Manager) Store(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidRecord
	}
	if rec.UserID == "" {
		return fmt.Errorf("%w: user ID required", ErrInvalidRecord)
	}
	if rec.Content == "" {
		return fmt.Errorf("%w: content required", ErrInvalidRecord)
	}
	if rec.Type == "" {
		rec.Type = TypeSession
	}
	if !rec.Type.Valid() || rec.Type == TypeDecision {
		return fmt.Errorf("%w: invalid type %q", ErrInvalidRecord, rec.Type)
	}
	if rec.Importance < 0 || rec.Importance > 1 {
		return fmt.Errorf("%w: importance must be in [0,1]", ErrInvalidRecord)
	}
	if rec.Importance == 0 {
		rec.Importance = DefaultImportance
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := m.now()
	rec.CreatedAt = now
	rec.AccessedAt = now
	rec.AccessCount = 0

	coll, err := m.collection(rec.UserID, rec.Type)
	if err != nil {
		return err
	}

	_, err = m.store.Add(ctx, coll, []vectorstore.Document{{
		ID:       rec.ID,
		Content:  rec.Content,
		Metadata: recordMetadata(rec),
	}})
	if err != nil {
		return fmt.Errorf("storing memory: %w", err)
	}

	m.logger.Debug("stored memory",
		zap.String("user_id", rec.UserID),
		zap.String("memory_id", rec.ID),
		zap.String("type", string(rec.Type)),
		zap.Float64("importance", rec.Importance),
	)
	return nil
}

// Get retrieves a memory by ID, bumping its access stats. An empty
// type hint scans session then longterm collections.
func (m *Manager) Get(ctx context.Context, userID, id string, hint Type) (*Record, error) {
	if userID == "" || id == "" {
		return nil, ErrNotFound
	}

	types := recordTypes
	if hint != "" {
		types = []Type{hint}
	}

	for _, t := range types {
		coll, err := m.collection(userID, t)
		if err != nil {
			return nil, err
		}
		doc, err := m.store.Get(ctx, coll, id)
		if err != nil {
			continue
		}

		rec := recordFromMetadata(doc.Content, doc.Metadata, m.now())
		rec.AccessedAt = m.now()
		rec.AccessCount++

		if err := m.store.Update(ctx, coll, id, nil, map[string]any{
			"accessed_at":  rec.AccessedAt.UTC().Format(time.RFC3339Nano),
			"access_count": rec.AccessCount,
		}); err != nil {
			m.logger.Warn("failed to persist access stats",
				zap.String("memory_id", id),
				zap.Error(err))
		}
		return &rec, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// SearchParams describe a memory search.
type SearchParams struct {
	UserID string
	Query  string

	// Types to search; defaults to session and longterm.
	Types []Type

	// SessionID narrows session memories to one session.
	SessionID string

	// MinImportance drops results below the score when positive.
	MinImportance float64

	// Tags keeps only records carrying at least one of these tags.
	Tags []string

	TopK int
}

// Search queries memories across types, merging results by relevance.
// Ties hold the type order (session before longterm by default).
func (m *Manager) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: user ID required", ErrInvalidRecord)
	}
	if p.Query == "" {
		return nil, fmt.Errorf("%w: query required", ErrInvalidRecord)
	}
	if p.TopK <= 0 {
		p.TopK = m.config.SearchLimit
	}
	types := p.Types
	if len(types) == 0 {
		types = recordTypes
	}

	var merged []SearchResult
	for _, t := range types {
		coll, err := m.collection(p.UserID, t)
		if err != nil {
			return nil, err
		}

		var filter map[string]any
		if p.SessionID != "" && t == TypeSession {
			filter = map[string]any{"session_id": p.SessionID}
		}

		results, err := m.store.Query(ctx, coll, p.Query, p.TopK, filter)
		if err != nil {
			return nil, fmt.Errorf("searching %s memories: %w", t, err)
		}

		for _, r := range results {
			rec := recordFromMetadata(r.Content, r.Metadata, m.now())
			if p.MinImportance > 0 && rec.Importance < p.MinImportance {
				continue
			}
			if len(p.Tags) > 0 && !hasAnyTag(rec.Tags, p.Tags) {
				continue
			}
			merged = append(merged, SearchResult{Record: rec, Relevance: r.Score})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Relevance > merged[j].Relevance
	})
	if len(merged) > p.TopK {
		merged = merged[:p.TopK]
	}

	m.logger.Debug("memory search completed",
		zap.String("user_id", p.UserID),
		zap.Int("results", len(merged)),
	)
	return merged, nil
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// SessionRecords lists all memories belonging to one session.
func (m *Manager) SessionRecords(ctx context.Context, userID, sessionID string, limit int) ([]Record, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: user and session IDs required", ErrInvalidRecord)
	}
	if limit <= 0 {
		limit = DefaultSessionLimit
	}

	coll, err := m.collection(userID, TypeSession)
	if err != nil {
		return nil, err
	}

	// The session filter does the selection; the query text only
	// orders within the session.
	results, err := m.store.Query(ctx, coll, sessionID, limit, map[string]any{
		"session_id": sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("listing session memories: %w", err)
	}

	records := make([]Record, 0, len(results))
	for _, r := range results {
		records = append(records, recordFromMetadata(r.Content, r.Metadata, m.now()))
	}
	return records, nil
}

// Promote moves a session memory into longterm storage under the same
// ID. The source is read and confirmed before any write happens: a
// missing source returns ErrNotFound with both collections untouched.
// The delete-then-insert pair is not transactional; a crash in between
// loses the record.
func (m *Manager) Promote(ctx context.Context, userID, id string) (*Record, error) {
	sessionColl, err := m.collection(userID, TypeSession)
	if err != nil {
		return nil, err
	}

	doc, err := m.store.Get(ctx, sessionColl, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec := recordFromMetadata(doc.Content, doc.Metadata, m.now())

	if err := m.store.DeleteByIDs(ctx, sessionColl, []string{id}); err != nil {
		return nil, fmt.Errorf("removing session memory %s: %w", id, err)
	}

	rec.Type = TypeLongterm
	longtermColl, err := m.collection(userID, TypeLongterm)
	if err != nil {
		return nil, err
	}
	_, err = m.store.Add(ctx, longtermColl, []vectorstore.Document{{
		ID:       id,
		Content:  rec.Content,
		Metadata: recordMetadata(&rec),
	}})
	if err != nil {
		return nil, fmt.Errorf("inserting longterm memory %s: %w", id, err)
	}

	m.logger.Info("promoted memory to longterm",
		zap.String("user_id", userID),
		zap.String("memory_id", id),
	)
	return &rec, nil
}

// UpdateImportance sets a new importance score on an existing record.
func (m *Manager) UpdateImportance(ctx context.Context, userID, id string, importance float64, hint Type) error {
	if importance < 0 || importance > 1 {
		return fmt.Errorf("%w: importance must be in [0,1]", ErrInvalidRecord)
	}

	types := recordTypes
	if hint != "" {
		types = []Type{hint}
	}
	for _, t := range types {
		coll, err := m.collection(userID, t)
		if err != nil {
			return err
		}
		if _, err := m.store.Get(ctx, coll, id); err != nil {
			continue
		}
		return m.store.Update(ctx, coll, id, nil, map[string]any{
			"importance_score": importance,
		})
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes a memory record. An empty type hint scans session
// then longterm collections.
func (m *Manager) Delete(ctx context.Context, userID, id string, hint Type) error {
	types := recordTypes
	if hint != "" {
		types = []Type{hint}
	}
	for _, t := range types {
		coll, err := m.collection(userID, t)
		if err != nil {
			return err
		}
		if _, err := m.store.Get(ctx, coll, id); err != nil {
			continue
		}
		return m.store.DeleteByIDs(ctx, coll, []string{id})
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// CleanupSession disposes of a session's memories: records at or above
// the importance threshold are promoted to longterm (when keepImportant
// is set), the rest are deleted. Returns the number of records deleted;
// promotions do not count.
func (m *Manager) CleanupSession(ctx context.Context, userID, sessionID string, keepImportant bool, threshold float64) (int, error) {
	if threshold <= 0 {
		threshold = m.config.ImportanceThreshold
	}

	records, err := m.SessionRecords(ctx, userID, sessionID, DefaultSessionLimit)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range records {
		if keepImportant && rec.Importance >= threshold {
			if _, err := m.Promote(ctx, userID, rec.ID); err != nil {
				m.logger.Warn("cleanup promotion failed",
					zap.String("memory_id", rec.ID),
					zap.Error(err))
			}
			continue
		}
		if err := m.Delete(ctx, userID, rec.ID, TypeSession); err != nil {
			m.logger.Warn("cleanup delete failed",
				zap.String("memory_id", rec.ID),
				zap.Error(err))
			continue
		}
		deleted++
	}

	m.logger.Info("session cleanup completed",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.Int("deleted", deleted),
		zap.Int("total", len(records)),
	)
	return deleted, nil
}
