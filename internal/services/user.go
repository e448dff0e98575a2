package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/namespace"
	"github.com/fyrsmithlabs/infrad/internal/session"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// ErrInvalidUser indicates a missing or malformed user identifier.
var ErrInvalidUser = errors.New("invalid user id")

// GroupStats summarizes one index group for a user.
type GroupStats struct {
	Collections int      `json:"collections"`
	Documents   int      `json:"documents"`
	Names       []string `json:"names"`
}

// UserStats summarizes everything stored for a user across all index
// groups, plus active sessions.
type UserStats struct {
	UserID         string                         `json:"user_id"`
	Groups         map[namespace.Group]GroupStats `json:"groups"`
	TotalDocuments int                            `json:"total_documents"`
	ActiveSessions int                            `json:"active_sessions"`
}

// CleanupResult reports what a user-wide cleanup removed.
type CleanupResult struct {
	UserID             string   `json:"user_id"`
	CollectionsDeleted []string `json:"collections_deleted"`
	SessionsDeleted    int      `json:"sessions_deleted"`
}

// UserAdmin implements cross-group user operations: usage stats and
// whole-user data removal. It spans every index group, so it sits above
// the per-group services rather than inside any one of them.
type UserAdmin struct {
	store    vectorstore.Store
	sessions *session.Service
	logger   *zap.Logger
}

// NewUserAdmin creates a UserAdmin over the given store. The session
// service may be nil; session counts and cleanup are then skipped.
func NewUserAdmin(store vectorstore.Store, sessions *session.Service, logger *zap.Logger) (*UserAdmin, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", vectorstore.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserAdmin{store: store, sessions: sessions, logger: logger}, nil
}

// userCollections returns the user's collections grouped by index group,
// in sorted name order. Collections that do not decode are skipped;
// foreign names in a shared store are not ours to touch.
func (u *UserAdmin) userCollections(ctx context.Context, userID string) (map[namespace.Group][]string, error) {
	names, err := u.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	sort.Strings(names)

	byGroup := make(map[namespace.Group][]string)
	for _, name := range names {
		addr, err := namespace.Decode(name)
		if err != nil {
			continue
		}
		if addr.UserID != userID {
			continue
		}
		byGroup[addr.Group] = append(byGroup[addr.Group], name)
	}
	return byGroup, nil
}

// Stats reports per-group collection and document counts for a user.
// Groups the user has no data in appear with zero counts.
func (u *UserAdmin) Stats(ctx context.Context, userID string) (*UserStats, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidUser)
	}

	byGroup, err := u.userCollections(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &UserStats{
		UserID: userID,
		Groups: make(map[namespace.Group]GroupStats, len(namespace.Groups)),
	}

	for _, group := range namespace.Groups {
		names := byGroup[group]
		gs := GroupStats{Collections: len(names), Names: names}
		for _, name := range names {
			count, err := u.store.Count(ctx, name)
			if err != nil {
				u.logger.Warn("counting collection failed",
					zap.String("collection", name),
					zap.Error(err))
				continue
			}
			gs.Documents += count
		}
		stats.Groups[group] = gs
		stats.TotalDocuments += gs.Documents
	}

	if u.sessions != nil {
		n, err := u.sessions.Count(ctx, userID)
		if err != nil {
			u.logger.Warn("counting sessions failed",
				zap.String("user_id", userID),
				zap.Error(err))
		} else {
			stats.ActiveSessions = n
		}
	}

	return stats, nil
}

// CleanupUser deletes every collection the user owns across all index
// groups, plus their active sessions. Per-collection failures are
// logged and skipped so one bad collection cannot strand the rest.
func (u *UserAdmin) CleanupUser(ctx context.Context, userID string) (*CleanupResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrInvalidUser)
	}

	byGroup, err := u.userCollections(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &CleanupResult{UserID: userID}
	for _, group := range namespace.Groups {
		for _, name := range byGroup[group] {
			if err := u.store.DeleteCollection(ctx, name); err != nil {
				u.logger.Warn("deleting collection failed",
					zap.String("collection", name),
					zap.Error(err))
				continue
			}
			result.CollectionsDeleted = append(result.CollectionsDeleted, name)
		}
	}

	if u.sessions != nil {
		n, err := u.sessions.ClearUser(ctx, userID)
		if err != nil {
			u.logger.Warn("clearing sessions failed",
				zap.String("user_id", userID),
				zap.Error(err))
		} else {
			result.SessionsDeleted = n
		}
	}

	u.logger.Info("user data cleaned up",
		zap.String("user_id", userID),
		zap.Int("collections", len(result.CollectionsDeleted)),
		zap.Int("sessions", result.SessionsDeleted))

	return result, nil
}
