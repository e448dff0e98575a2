// Package session manages ephemeral agent sessions: conversation
// history, working context, and scratch state, all bounded by a TTL.
//
// Liveness is the store's call. A key past its TTL is gone from the
// caller's point of view even if the backing bytes still exist; the
// service layer never re-derives expiry on its own.
package session

import (
	"context"
	"errors"
	"time"
)

// Common errors.
var (
	ErrKeyNotFound    = errors.New("session key not found")
	ErrInvalidSession = errors.New("invalid session parameters")
)

// DefaultTTL applies when a session is created without an explicit TTL.
const DefaultTTL = 1 * time.Hour

// Store is a TTL-scoped key/value store for session payloads.
//
// Keys are dot-separated tokens (`session.{user}.{id}`), which maps
// directly onto JetStream KV key syntax.
type Store interface {
	// Get returns the value for a live key. Expired or absent keys
	// return ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetWithTTL stores a value that expires after ttl. A non-positive
	// ttl falls back to DefaultTTL.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key returns
	// ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// ScanPrefix returns the live keys under a prefix, in no
	// particular order.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// TTL returns the remaining lifetime of a live key, or
	// ErrKeyNotFound once it has expired.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Close releases backend resources.
	Close() error
}
