package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultBucket is the JetStream KV bucket sessions live in.
const DefaultBucket = "infrad_sessions"

// NATSStore is a Store backed by a NATS JetStream key/value bucket.
//
// JetStream KV expires at bucket granularity, not per key, so each
// value carries its own deadline in an envelope. Reads treat an
// expired envelope as absent and purge it lazily.
type NATSStore struct {
	kv     nats.KeyValue
	logger *zap.Logger

	now func() time.Time
}

type envelope struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewNATSStore opens (or creates) the session bucket on an existing
// NATS connection. The connection remains owned by the caller.
func NewNATSStore(nc *nats.Conn, bucket string, logger *zap.Logger) (*NATSStore, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection cannot be nil")
	}
	if bucket == "" {
		bucket = DefaultBucket
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "infrad agent sessions",
		})
	}
	if err != nil {
		return nil, fmt.Errorf("opening session bucket %q: %w", bucket, err)
	}

	return &NATSStore{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}, nil
}

var _ Store = (*NATSStore)(nil)

// load reads and decodes a live envelope, purging it if expired.
func (s *NATSStore) load(key string) (*envelope, error) {
	entry, err := s.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("reading session key: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return nil, fmt.Errorf("decoding session envelope: %w", err)
	}

	if !s.now().Before(env.ExpiresAt) {
		if perr := s.kv.Purge(key); perr != nil {
			s.logger.Warn("purging expired session key",
				zap.String("key", key), zap.Error(perr))
		}
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return &env, nil
}

func (s *NATSStore) Get(_ context.Context, key string) ([]byte, error) {
	env, err := s.load(key)
	if err != nil {
		return nil, err
	}
	return env.Value, nil
}

func (s *NATSStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidSession)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(envelope{
		Value:     value,
		ExpiresAt: s.now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("encoding session envelope: %w", err)
	}

	if _, err := s.kv.Put(key, data); err != nil {
		return fmt.Errorf("writing session key: %w", err)
	}
	return nil
}

func (s *NATSStore) Delete(_ context.Context, key string) error {
	if _, err := s.load(key); err != nil {
		return err
	}
	if err := s.kv.Purge(key); err != nil {
		return fmt.Errorf("deleting session key: %w", err)
	}
	return nil
}

func (s *NATSStore) ScanPrefix(_ context.Context, prefix string) ([]string, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("listing session keys: %w", err)
	}

	matched := make([]string, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		// Liveness check drops expired envelopes from the scan.
		if _, err := s.load(key); err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		matched = append(matched, key)
	}
	return matched, nil
}

func (s *NATSStore) TTL(_ context.Context, key string) (time.Duration, error) {
	env, err := s.load(key)
	if err != nil {
		return 0, err
	}
	return env.ExpiresAt.Sub(s.now()), nil
}

// Close is a no-op; the NATS connection belongs to the caller.
func (s *NATSStore) Close() error { return nil }
