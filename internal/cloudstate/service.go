// Package cloudstate indexes declared and observed cloud resource
// inventories and answers questions about them.
//
// Each user/account pair owns two collections: context__state holds
// the declared inventory (what infrastructure code says exists) and
// context__live holds the observed inventory (what the provider API
// reports). A third per-user collection, context__general, holds
// free-form operational notes.
package cloudstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/cloud"
	"github.com/fyrsmithlabs/infrad/internal/drift"
	"github.com/fyrsmithlabs/infrad/internal/federation"
	"github.com/fyrsmithlabs/infrad/internal/namespace"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// Common errors.
var (
	ErrInvalidParams = errors.New("invalid cloud context parameters")
	ErrNoFetcher     = errors.New("no resource fetcher configured")
	ErrNotFound      = errors.New("context entry not found")
)

// Source identifies which inventory an entry belongs to. The values
// double as collection subindexes.
type Source string

const (
	SourceState Source = "state"
	SourceLive  Source = "live"
)

const (
	// DefaultListLimit bounds inventory listings.
	DefaultListLimit = 100

	// DefaultSearchLimit bounds context searches.
	DefaultSearchLimit = 10

	// syncListLimit bounds the existing-inventory read during a sync.
	syncListLimit = 1000

	// compareListLimit bounds inventory reads for a drift comparison.
	compareListLimit = 500
)

// Entry is one indexed resource: an inventory record plus where it
// came from and when it was captured.
type Entry struct {
	ContextID   string       `json:"context_id"`
	UserID      string       `json:"user_id"`
	AccountID   string       `json:"account_id"`
	Source      Source       `json:"source"`
	Resource    drift.Record `json:"resource"`
	ARN         string       `json:"arn,omitempty"`
	Region      string       `json:"region,omitempty"`
	ProjectID   string       `json:"project_id,omitempty"`
	Environment string       `json:"environment,omitempty"`
	IndexedAt   time.Time    `json:"indexed_at"`
	CapturedAt  time.Time    `json:"captured_at"`
}

// Hit pairs an entry with its relevance score (1 - distance).
type Hit struct {
	Entry     Entry   `json:"entry"`
	Relevance float32 `json:"relevance_score"`
}

// Service manages cloud resource context.
type Service struct {
	store     vectorstore.Store
	fetcher   cloud.Fetcher
	federator *federation.Federator
	logger    *zap.Logger

	now func() time.Time
}

// NewService creates a cloud context service. The fetcher may be nil;
// operations that reach the provider API then return ErrNoFetcher.
func NewService(store vectorstore.Store, fetcher cloud.Fetcher, federator *federation.Federator, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if federator == nil {
		return nil, fmt.Errorf("federator cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		fetcher:   fetcher,
		federator: federator,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// collection builds the inventory collection name for one user/account.
func (s *Service) collection(userID, accountID string, source Source) (string, error) {
	addr := namespace.Address{
		Group:     namespace.GroupContext,
		SubIndex:  string(source),
		UserID:    userID,
		AccountID: accountID,
	}
	name, err := addr.Encode()
	if err != nil {
		return "", fmt.Errorf("building context collection name: %w", err)
	}
	return name, nil
}

// entryMetadata flattens an entry for storage. Attribute data travels
// in the document content as JSON, not in metadata.
func entryMetadata(e *Entry) map[string]any {
	capturedAt := ""
	if !e.CapturedAt.IsZero() {
		capturedAt = e.CapturedAt.UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{
		"context_id":    e.ContextID,
		"user_id":       e.UserID,
		"account_id":    e.AccountID,
		"source":        string(e.Source),
		"resource_type": e.Resource.Type,
		"resource_id":   e.Resource.ID,
		"resource_name": e.Resource.Name,
		"resource_arn":  e.ARN,
		"region":        e.Region,
		"project_id":    e.ProjectID,
		"environment":   e.Environment,
		"indexed_at":    e.IndexedAt.UTC().Format(time.RFC3339Nano),
		"captured_at":   capturedAt,
	}
}

// entryFromMetadata rebuilds an entry from stored content and
// metadata. Content that fails to parse as JSON is preserved raw.
func entryFromMetadata(content string, meta map[string]any, now time.Time) Entry {
	var attrs map[string]any
	if err := json.Unmarshal([]byte(content), &attrs); err != nil {
		attrs = map[string]any{"raw": content}
	}
	return Entry{
		ContextID: metaString(meta["context_id"]),
		UserID:    metaString(meta["user_id"]),
		AccountID: metaString(meta["account_id"]),
		Source:    Source(metaString(meta["source"])),
		Resource: drift.Record{
			Type:       metaString(meta["resource_type"]),
			ID:         metaString(meta["resource_id"]),
			Name:       metaString(meta["resource_name"]),
			Attributes: attrs,
		},
		ARN:         metaString(meta["resource_arn"]),
		Region:      metaString(meta["region"]),
		ProjectID:   metaString(meta["project_id"]),
		Environment: metaString(meta["environment"]),
		IndexedAt:   metaTime(meta["indexed_at"], now),
		CapturedAt:  metaTime(meta["captured_at"], time.Time{}),
	}
}

func metaString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func metaTime(v any, fallback time.Time) time.Time {
	s := metaString(v)
	if s == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return fallback
}

// resourceContent serializes a record's attributes as the indexed
// document body.
func resourceContent(r drift.Record) (string, error) {
	attrs := r.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("serializing resource %s/%s: %w", r.Type, r.ID, err)
	}
	return string(data), nil
}

// resourceRegion pulls the region out of a record's attributes,
// falling back to the given default.
func resourceRegion(r drift.Record, fallback string) string {
	if region, ok := r.Attributes["region"].(string); ok && region != "" {
		return region
	}
	return fallback
}

// resourceARN pulls the ARN out of a record's attributes.
func resourceARN(r drift.Record) string {
	if arn, ok := r.Attributes["arn"].(string); ok {
		return arn
	}
	return ""
}

// IndexResult reports an inventory indexing run.
type IndexResult struct {
	Indexed   int      `json:"indexed"`
	AccountID string   `json:"account_id"`
	Source    Source   `json:"source"`
	Errors    []string `json:"errors,omitempty"`
}

// IndexDeclared indexes a declared resource inventory into the state
// collection. Per-resource failures are collected and do not abort
// the run.
func (s *Service) IndexDeclared(ctx context.Context, userID, accountID string, resources []drift.Record, projectID, environment string) (*IndexResult, error) {
	if userID == "" || accountID == "" {
		return nil, fmt.Errorf("%w: user and account IDs required", ErrInvalidParams)
	}

	coll, err := s.collection(userID, accountID, SourceState)
	if err != nil {
		return nil, err
	}

	result := &IndexResult{AccountID: accountID, Source: SourceState}
	now := s.now()

	for _, resource := range resources {
		entry := Entry{
			ContextID:   uuid.New().String(),
			UserID:      userID,
			AccountID:   accountID,
			Source:      SourceState,
			Resource:    resource,
			ARN:         resourceARN(resource),
			Region:      resourceRegion(resource, ""),
			ProjectID:   projectID,
			Environment: environment,
			IndexedAt:   now,
			CapturedAt:  now,
		}

		content, err := resourceContent(resource)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", resource.Type, resource.ID, err))
			continue
		}

		_, err = s.store.Add(ctx, coll, []vectorstore.Document{{
			ID:       entry.ContextID,
			Content:  content,
			Metadata: entryMetadata(&entry),
		}})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", resource.Type, resource.ID, err))
			continue
		}
		result.Indexed++
	}

	s.logger.Info("indexed declared inventory",
		zap.String("user_id", userID),
		zap.String("account_id", accountID),
		zap.Int("indexed", result.Indexed),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// listEntries lists inventory entries with optional metadata filters.
func (s *Service) listEntries(ctx context.Context, coll string, filter map[string]any, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(filter) == 0 {
		filter = nil
	}

	// The filter does the selection; "*" is a neutral query text for
	// listing.
	results, err := s.store.Query(ctx, coll, "*", limit, filter)
	if err != nil {
		return nil, fmt.Errorf("listing context entries: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, entryFromMetadata(r.Content, r.Metadata, s.now()))
	}
	return entries, nil
}

// DeclaredResources lists the declared inventory, optionally filtered
// by resource type.
func (s *Service) DeclaredResources(ctx context.Context, userID, accountID, resourceType string, limit int) ([]Entry, error) {
	coll, err := s.collection(userID, accountID, SourceState)
	if err != nil {
		return nil, err
	}

	filter := map[string]any{}
	if resourceType != "" {
		filter["resource_type"] = resourceType
	}
	return s.listEntries(ctx, coll, filter, limit)
}

// ObservedResources lists the cached observed inventory, optionally
// filtered by resource type and region.
func (s *Service) ObservedResources(ctx context.Context, userID, accountID, resourceType, region string, limit int) ([]Entry, error) {
	coll, err := s.collection(userID, accountID, SourceLive)
	if err != nil {
		return nil, err
	}

	filter := map[string]any{}
	if resourceType != "" {
		filter["resource_type"] = resourceType
	}
	if region != "" {
		filter["region"] = region
	}
	return s.listEntries(ctx, coll, filter, limit)
}
