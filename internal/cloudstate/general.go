package cloudstate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/namespace"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

const generalSubIndex = "general"

// Note is a free-form operational note attached to a user.
type Note struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Content   string            `json:"content"`
	Category  string            `json:"category,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NoteHit pairs a note with its relevance score.
type NoteHit struct {
	Note      Note    `json:"note"`
	Relevance float32 `json:"relevance_score"`
}

func (s *Service) generalCollection(userID string) (string, error) {
	addr := namespace.Address{
		Group:    namespace.GroupContext,
		SubIndex: generalSubIndex,
		UserID:   userID,
	}
	name, err := addr.Encode()
	if err != nil {
		return "", fmt.Errorf("building general context collection name: %w", err)
	}
	return name, nil
}

const customMetaPrefix = "custom_"

// noteMetadata flattens a note for storage. Caller-supplied metadata
// is namespaced under custom_ so it cannot shadow the fixed keys.
func noteMetadata(n *Note) map[string]any {
	meta := map[string]any{
		"note_id":    n.ID,
		"user_id":    n.UserID,
		"category":   n.Category,
		"created_at": n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range n.Metadata {
		meta[customMetaPrefix+k] = v
	}
	return meta
}

func noteFromMetadata(content string, meta map[string]any, now time.Time) Note {
	n := Note{
		ID:        metaString(meta["note_id"]),
		UserID:    metaString(meta["user_id"]),
		Content:   content,
		Category:  metaString(meta["category"]),
		CreatedAt: metaTime(meta["created_at"], now),
	}
	for k, v := range meta {
		custom, ok := strings.CutPrefix(k, customMetaPrefix)
		if !ok {
			continue
		}
		if n.Metadata == nil {
			n.Metadata = make(map[string]string)
		}
		n.Metadata[custom] = metaString(v)
	}
	return n
}

// StoreNote stores a general context note and returns its ID.
func (s *Service) StoreNote(ctx context.Context, userID, content, category string, metadata map[string]string) (string, error) {
	if userID == "" || content == "" {
		return "", fmt.Errorf("%w: user ID and content required", ErrInvalidParams)
	}

	coll, err := s.generalCollection(userID)
	if err != nil {
		return "", err
	}

	note := Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Content:   content,
		Category:  category,
		Metadata:  metadata,
		CreatedAt: s.now(),
	}

	_, err = s.store.Add(ctx, coll, []vectorstore.Document{{
		ID:       note.ID,
		Content:  content,
		Metadata: noteMetadata(&note),
	}})
	if err != nil {
		return "", fmt.Errorf("storing note: %w", err)
	}

	s.logger.Debug("stored general context note",
		zap.String("user_id", userID),
		zap.String("note_id", note.ID),
		zap.String("category", category),
	)
	return note.ID, nil
}

// SearchNotes searches general context notes semantically, optionally
// scoped to one category.
func (s *Service) SearchNotes(ctx context.Context, userID, query, category string, topK int) ([]NoteHit, error) {
	if userID == "" || query == "" {
		return nil, fmt.Errorf("%w: user ID and query required", ErrInvalidParams)
	}
	if topK <= 0 {
		topK = DefaultSearchLimit
	}

	coll, err := s.generalCollection(userID)
	if err != nil {
		return nil, err
	}

	var filter map[string]any
	if category != "" {
		filter = map[string]any{"category": category}
	}

	results, err := s.store.Query(ctx, coll, query, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("searching notes: %w", err)
	}

	now := s.now()
	hits := make([]NoteHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, NoteHit{
			Note:      noteFromMetadata(r.Content, r.Metadata, now),
			Relevance: r.Score,
		})
	}
	return hits, nil
}

// GetNote fetches one note by ID.
func (s *Service) GetNote(ctx context.Context, userID, noteID string) (*Note, error) {
	if userID == "" || noteID == "" {
		return nil, fmt.Errorf("%w: user ID and note ID required", ErrInvalidParams)
	}

	coll, err := s.generalCollection(userID)
	if err != nil {
		return nil, err
	}

	doc, err := s.store.Get(ctx, coll, noteID)
	if err != nil {
		if errors.Is(err, vectorstore.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, noteID)
		}
		return nil, fmt.Errorf("fetching note: %w", err)
	}

	note := noteFromMetadata(doc.Content, doc.Metadata, s.now())
	return &note, nil
}

// DeleteNote removes one note by ID. Returns ErrNotFound if it does
// not exist.
func (s *Service) DeleteNote(ctx context.Context, userID, noteID string) error {
	if userID == "" || noteID == "" {
		return fmt.Errorf("%w: user ID and note ID required", ErrInvalidParams)
	}

	coll, err := s.generalCollection(userID)
	if err != nil {
		return err
	}

	if _, err := s.store.Get(ctx, coll, noteID); err != nil {
		if errors.Is(err, vectorstore.ErrDocumentNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, noteID)
		}
		return fmt.Errorf("checking note: %w", err)
	}

	if err := s.store.DeleteByIDs(ctx, coll, []string{noteID}); err != nil {
		return fmt.Errorf("deleting note: %w", err)
	}

	s.logger.Debug("deleted general context note",
		zap.String("user_id", userID),
		zap.String("note_id", noteID),
	)
	return nil
}
