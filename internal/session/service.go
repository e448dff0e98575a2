package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("session not found")

// Message is one conversation turn in a session.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is the full session payload.
type Session struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	ModelID      string         `json:"model_id"`
	Provider     string         `json:"provider"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Messages     []Message      `json:"messages"`
	Context      map[string]any `json:"context"`
	State        map[string]any `json:"state"`
	TTLSeconds   int            `json:"ttl_seconds"`
}

// Summary is the listing view of a session, without the payload.
type Summary struct {
	SessionID    string        `json:"session_id"`
	ModelID      string        `json:"model_id"`
	Provider     string        `json:"provider"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	MessageCount int           `json:"message_count"`
	TTLRemaining time.Duration `json:"ttl_remaining"`
}

// DefaultMessageLimit bounds message listings.
const DefaultMessageLimit = 50

// Service manages sessions on top of a Store.
type Service struct {
	store  Store
	logger *zap.Logger

	defaultTTL time.Duration
	now        func() time.Time
}

// NewService creates a session service.
func NewService(store Store, defaultTTL time.Duration, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store cannot be nil")
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		logger:     logger,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// validateID rejects identifiers that would break the dot-separated
// key scheme or JetStream KV key syntax.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidSession)
	}
	if strings.ContainsAny(id, ".*> \t") {
		return fmt.Errorf("%w: identifier %q contains reserved characters", ErrInvalidSession, id)
	}
	return nil
}

func sessionKey(userID, sessionID string) string {
	return fmt.Sprintf("session.%s.%s", userID, sessionID)
}

func userPrefix(userID string) string {
	return fmt.Sprintf("session.%s.", userID)
}

// Create starts a new session and returns it.
func (s *Service) Create(ctx context.Context, userID, modelID, provider string, initialContext map[string]any, ttl time.Duration) (*Session, error) {
	if err := validateID(userID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if initialContext == nil {
		initialContext = map[string]any{}
	}

	now := s.now()
	session := &Session{
		SessionID:    uuid.New().String(),
		UserID:       userID,
		ModelID:      modelID,
		Provider:     provider,
		CreatedAt:    now,
		LastActivity: now,
		Messages:     []Message{},
		Context:      initialContext,
		State:        map[string]any{},
		TTLSeconds:   int(ttl.Seconds()),
	}

	if err := s.put(ctx, session, ttl); err != nil {
		return nil, err
	}

	s.logger.Info("created session",
		zap.String("user_id", userID),
		zap.String("session_id", session.SessionID),
		zap.String("model_id", modelID),
	)
	return session, nil
}

func (s *Service) put(ctx context.Context, session *Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	key := sessionKey(session.UserID, session.SessionID)
	if err := s.store.SetWithTTL(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// Get fetches a live session.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	data, err := s.store.Get(ctx, sessionKey(userID, sessionID))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &session, nil
}

// Update persists a modified session, preserving its remaining TTL and
// bumping LastActivity.
func (s *Service) Update(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidSession)
	}

	key := sessionKey(session.UserID, session.SessionID)
	ttl, err := s.store.TTL(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, session.SessionID)
		}
		return fmt.Errorf("checking session ttl: %w", err)
	}

	session.LastActivity = s.now()
	return s.put(ctx, session, ttl)
}

// AppendMessage adds one message to the session history.
func (s *Service) AppendMessage(ctx context.Context, userID, sessionID string, message Message) error {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = s.now()
	}
	session.Messages = append(session.Messages, message)
	return s.Update(ctx, session)
}

// Messages returns a window of the session history.
func (s *Service) Messages(ctx context.Context, userID, sessionID string, limit, offset int) ([]Message, error) {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	messages := session.Messages
	if offset >= len(messages) {
		return []Message{}, nil
	}
	if offset > 0 {
		messages = messages[offset:]
	}
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// UpdateContext sets or merges the session's working context.
func (s *Service) UpdateContext(ctx context.Context, userID, sessionID string, data map[string]any, merge bool) error {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if merge && session.Context != nil {
		for k, v := range data {
			session.Context[k] = v
		}
	} else {
		session.Context = data
	}
	return s.Update(ctx, session)
}

// UpdateState sets or merges the session's scratch state.
func (s *Service) UpdateState(ctx context.Context, userID, sessionID string, data map[string]any, merge bool) error {
	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if merge && session.State != nil {
		for k, v := range data {
			session.State[k] = v
		}
	} else {
		session.State = data
	}
	return s.Update(ctx, session)
}

// ExtendTTL adds time to a live session's lifetime.
func (s *Service) ExtendTTL(ctx context.Context, userID, sessionID string, additional time.Duration) error {
	if additional <= 0 {
		return fmt.Errorf("%w: extension must be positive", ErrInvalidSession)
	}

	key := sessionKey(userID, sessionID)
	remaining, err := s.store.TTL(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return fmt.Errorf("checking session ttl: %w", err)
	}

	session, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	newTTL := remaining + additional
	session.TTLSeconds = int(newTTL.Seconds())
	session.LastActivity = s.now()
	return s.put(ctx, session, newTTL)
}

// Delete removes a session. Returns ErrNotFound if it does not exist.
func (s *Service) Delete(ctx context.Context, userID, sessionID string) error {
	err := s.store.Delete(ctx, sessionKey(userID, sessionID))
	if errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return err
}

// List returns summaries of a user's live sessions, most recent
// activity first. modelID narrows the listing when non-empty.
func (s *Service) List(ctx context.Context, userID, modelID string) ([]Summary, error) {
	keys, err := s.store.ScanPrefix(ctx, userPrefix(userID))
	if err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}

	summaries := make([]Summary, 0, len(keys))
	for _, key := range keys {
		data, gerr := s.store.Get(ctx, key)
		if gerr != nil {
			// Expired between scan and read.
			if errors.Is(gerr, ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("reading session: %w", gerr)
		}

		var session Session
		if uerr := json.Unmarshal(data, &session); uerr != nil {
			s.logger.Warn("skipping undecodable session", zap.String("key", key), zap.Error(uerr))
			continue
		}
		if modelID != "" && session.ModelID != modelID {
			continue
		}

		remaining, terr := s.store.TTL(ctx, key)
		if terr != nil {
			if errors.Is(terr, ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("checking session ttl: %w", terr)
		}

		summaries = append(summaries, Summary{
			SessionID:    session.SessionID,
			ModelID:      session.ModelID,
			Provider:     session.Provider,
			CreatedAt:    session.CreatedAt,
			LastActivity: session.LastActivity,
			MessageCount: len(session.Messages),
			TTLRemaining: remaining,
		})
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

// Count returns the number of live sessions a user holds.
func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	keys, err := s.store.ScanPrefix(ctx, userPrefix(userID))
	if err != nil {
		return 0, fmt.Errorf("scanning sessions: %w", err)
	}
	return len(keys), nil
}

// ClearUser deletes all of a user's sessions and returns how many
// were removed.
func (s *Service) ClearUser(ctx context.Context, userID string) (int, error) {
	keys, err := s.store.ScanPrefix(ctx, userPrefix(userID))
	if err != nil {
		return 0, fmt.Errorf("scanning sessions: %w", err)
	}

	deleted := 0
	for _, key := range keys {
		if derr := s.store.Delete(ctx, key); derr != nil {
			if errors.Is(derr, ErrKeyNotFound) {
				continue
			}
			return deleted, fmt.Errorf("deleting session: %w", derr)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info("cleared user sessions",
			zap.String("user_id", userID),
			zap.Int("deleted", deleted),
		)
	}
	return deleted, nil
}
