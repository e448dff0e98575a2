// Package cloud fetches observed resource inventories from provider
// APIs through per-type handler functions.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/infrad/internal/drift"
)

// Common errors.
var (
	ErrDuplicateHandler = errors.New("handler already registered for resource type")
	ErrNilHandler       = errors.New("handler cannot be nil")
)

// DefaultFetchConcurrency caps concurrent per-type fetches.
const DefaultFetchConcurrency = 4

// HandlerFunc fetches all resources of one type in one region.
type HandlerFunc func(ctx context.Context, region string) ([]drift.Record, error)

// Fetcher retrieves observed resources grouped by resource type.
//
// FetchAll never fails because one type fails: a handler error is
// swallowed and that type reports an empty list. Types with no
// registered handler are skipped entirely (no map entry).
type Fetcher interface {
	FetchAll(ctx context.Context, resourceTypes []string, region string) (map[string][]drift.Record, error)
	Supported() []string
}

// Registry dispatches resource fetches to typed handler functions
// keyed by resource-type string. Handlers are registered at startup;
// there is no dynamic lookup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *zap.Logger

	// MaxConcurrency caps concurrent per-type fetches.
	MaxConcurrency int
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers:       make(map[string]HandlerFunc),
		logger:         logger,
		MaxConcurrency: DefaultFetchConcurrency,
	}
}

// Register adds a handler for a resource type.
func (r *Registry) Register(resourceType string, h HandlerFunc) error {
	if resourceType == "" {
		return fmt.Errorf("resource type cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, resourceType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[resourceType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, resourceType)
	}
	r.handlers[resourceType] = h
	return nil
}

// Supported returns the registered resource types, sorted.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// FetchAll fetches the requested types concurrently. A failed handler
// contributes an empty list for its type; an unregistered type is
// skipped.
func (r *Registry) FetchAll(ctx context.Context, resourceTypes []string, region string) (map[string][]drift.Record, error) {
	r.mu.RLock()
	handlers := make(map[string]HandlerFunc, len(resourceTypes))
	for _, t := range resourceTypes {
		if h, ok := r.handlers[t]; ok {
			handlers[t] = h
		} else {
			r.logger.Debug("skipping unsupported resource type",
				zap.String("resource_type", t))
		}
	}
	r.mu.RUnlock()

	// Indexed slots keep the result assembly free of locking.
	types := make([]string, 0, len(handlers))
	for _, t := range resourceTypes {
		if _, ok := handlers[t]; ok {
			types = append(types, t)
		}
	}

	slots := make([][]drift.Record, len(types))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.MaxConcurrency)

	for i, resourceType := range types {
		g.Go(func() error {
			records, err := handlers[resourceType](gctx, region)
			if err != nil {
				// Swallowed: the type reports an empty inventory.
				r.logger.Warn("resource fetch failed",
					zap.String("resource_type", resourceType),
					zap.String("region", region),
					zap.Error(err),
				)
				records = nil
			}
			slots[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make(map[string][]drift.Record, len(types))
	for i, t := range types {
		if slots[i] == nil {
			slots[i] = []drift.Record{}
		}
		results[t] = slots[i]
	}

	r.logger.Debug("fetched resource inventory",
		zap.String("region", region),
		zap.Int("types", len(results)),
	)
	return results, nil
}

// Ensure Registry implements Fetcher.
var _ Fetcher = (*Registry)(nil)
