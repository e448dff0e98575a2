// Package federation fans a single query out across many collections
// and merges the results into one ranked list.
package federation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

var tracer = otel.Tracer("infrad.federation")

// Common errors.
var (
	ErrInvalidQuery = errors.New("invalid federated query")
)

// Config holds federator tuning knobs.
type Config struct {
	// PerCollectionTimeout bounds each collection query. A collection
	// that misses the deadline contributes zero hits.
	// Default: 2s
	PerCollectionTimeout time.Duration

	// MaxConcurrency caps concurrent collection queries.
	// Default: 8
	MaxConcurrency int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.PerCollectionTimeout == 0 {
		c.PerCollectionTimeout = 2 * time.Second
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = 8
	}
}

// Hit is a search result tagged with the collection it came from.
type Hit struct {
	vectorstore.SearchResult

	// Collection is the encoded collection name that produced the hit.
	Collection string
}

// Result is the merged outcome of a federated query.
type Result struct {
	// Hits is the merged list, ordered by score descending. Equal
	// scores keep discovery order: earlier collections first, then
	// within-collection rank. Truncated to the requested topK.
	Hits []Hit

	// SourceCounts maps collection name to the number of hits it
	// contributed BEFORE truncation. Failed or empty collections
	// report 0.
	SourceCounts map[string]int

	// Failed lists collections whose query errored or timed out.
	// Failures are degradations, not errors: the merged result is
	// still valid.
	Failed []string
}

// Federator runs one query against many collections concurrently.
//
// A failed or slow collection never fails the whole query; it simply
// contributes nothing. The merge is deterministic for a fixed input:
// collections are always processed in the caller's discovery order.
type Federator struct {
	store  vectorstore.Store
	config Config
	logger *zap.Logger
}

// New creates a Federator over the given store.
func New(store vectorstore.Store, config Config, logger *zap.Logger) *Federator {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Federator{
		store:  store,
		config: config,
		logger: logger,
	}
}

// Query fans out to every collection, merges by score descending with
// discovery-order tie-breaking, and truncates to topK.
//
// Each collection receives the full topK as its per-collection k, so a
// single strong collection can fill the entire merged result.
//
// postFilter, when non-nil, drops hits before the sort and truncate:
// a hit rejected by the filter never displaces a matching one from
// the topK window, and SourceCounts report only surviving hits. Nil
// keeps everything.
func (f *Federator) Query(ctx context.Context, collections []string, query string, topK int, filter map[string]any, postFilter func(Hit) bool) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Federator.Query")
	defer span.End()

	span.SetAttributes(
		attribute.Int("collection_count", len(collections)),
		attribute.Int("top_k", topK),
	)

	if query == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidQuery, topK)
	}

	result := &Result{
		Hits:         []Hit{},
		SourceCounts: make(map[string]int, len(collections)),
	}
	if len(collections) == 0 {
		span.SetStatus(codes.Ok, "no collections")
		return result, nil
	}

	// Indexed slots keep discovery order regardless of completion order.
	perCollection := make([][]vectorstore.SearchResult, len(collections))
	failed := make([]bool, len(collections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.config.MaxConcurrency)

	for i, collection := range collections {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, f.config.PerCollectionTimeout)
			defer cancel()

			hits, err := f.store.Query(qctx, collection, query, topK, filter)
			if err != nil {
				// Degrade to a zero-hit contribution.
				failed[i] = true
				f.logger.Warn("collection query failed, contributing zero hits",
					zap.String("collection", collection),
					zap.Error(err),
				)
				return nil
			}
			perCollection[i] = hits
			return nil
		})
	}

	// Worker funcs never return errors; Wait only propagates parent
	// context cancellation.
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for i, collection := range collections {
		if failed[i] {
			result.Failed = append(result.Failed, collection)
		}
		kept := 0
		for _, hit := range perCollection[i] {
			h := Hit{SearchResult: hit, Collection: collection}
			if postFilter != nil && !postFilter(h) {
				continue
			}
			result.Hits = append(result.Hits, h)
			kept++
		}
		result.SourceCounts[collection] = kept
	}

	// Stable sort: equal scores keep the discovery-order append above.
	sort.SliceStable(result.Hits, func(a, b int) bool {
		return result.Hits[a].Score > result.Hits[b].Score
	})

	if len(result.Hits) > topK {
		result.Hits = result.Hits[:topK]
	}

	span.SetAttributes(
		attribute.Int("merged_hits", len(result.Hits)),
		attribute.Int("failed_collections", len(result.Failed)),
	)
	span.SetStatus(codes.Ok, "success")

	f.logger.Debug("federated query complete",
		zap.Int("collections", len(collections)),
		zap.Int("hits", len(result.Hits)),
		zap.Int("failed", len(result.Failed)),
	)

	return result, nil
}
