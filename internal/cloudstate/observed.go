package cloudstate

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/drift"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// FetchObserved pulls the current observed inventory from the provider
// without touching the store. Resource types default to everything the
// fetcher supports.
func (s *Service) FetchObserved(ctx context.Context, resourceTypes []string, region string) (map[string][]drift.Record, error) {
	if s.fetcher == nil {
		return nil, ErrNoFetcher
	}
	if len(resourceTypes) == 0 {
		resourceTypes = s.fetcher.Supported()
	}
	return s.fetcher.FetchAll(ctx, resourceTypes, region)
}

// SyncResult reports a live-inventory sync.
type SyncResult struct {
	Synced    int    `json:"synced"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Removed   int    `json:"removed"`
	Unchanged int    `json:"unchanged"`
	AccountID string `json:"account_id"`
	Region    string `json:"region,omitempty"`
}

// SyncObserved refreshes the live collection from the provider API.
// Existing entries keep their context IDs when re-observed, new
// resources are added, and cached entries whose resource is gone (for
// the synced types) are removed. When no resource types are given the
// sync covers the types already cached plus everything the fetcher
// supports.
func (s *Service) SyncObserved(ctx context.Context, userID, accountID string, resourceTypes []string, region string) (*SyncResult, error) {
	if userID == "" || accountID == "" {
		return nil, fmt.Errorf("%w: user and account IDs required", ErrInvalidParams)
	}
	if s.fetcher == nil {
		return nil, ErrNoFetcher
	}

	coll, err := s.collection(userID, accountID, SourceLive)
	if err != nil {
		return nil, err
	}

	existing, err := s.listEntries(ctx, coll, nil, syncListLimit)
	if err != nil {
		return nil, err
	}
	existingByID := make(map[string]Entry, len(existing))
	for _, e := range existing {
		existingByID[e.Resource.ID] = e
	}

	fetchTypes := syncTypes(resourceTypes, existing, s.fetcher.Supported())

	fetched, err := s.fetcher.FetchAll(ctx, fetchTypes, region)
	if err != nil {
		return nil, fmt.Errorf("fetching observed inventory: %w", err)
	}

	result := &SyncResult{AccountID: accountID, Region: region}
	now := s.now()
	seen := make(map[string]bool)

	for resourceType, records := range fetched {
		for _, record := range records {
			seen[record.ID] = true

			entry := Entry{
				UserID:     userID,
				AccountID:  accountID,
				Source:     SourceLive,
				Resource:   record,
				ARN:        resourceARN(record),
				Region:     resourceRegion(record, region),
				IndexedAt:  now,
				CapturedAt: now,
			}

			prev, exists := existingByID[record.ID]
			if exists {
				entry.ContextID = prev.ContextID
				entry.ProjectID = prev.ProjectID
				entry.Environment = prev.Environment
			} else {
				entry.ContextID = uuid.New().String()
			}

			content, cerr := resourceContent(record)
			if cerr != nil {
				s.logger.Warn("skipping unserializable resource",
					zap.String("resource_type", resourceType),
					zap.String("resource_id", record.ID),
					zap.Error(cerr),
				)
				continue
			}

			doc := vectorstore.Document{
				ID:       entry.ContextID,
				Content:  content,
				Metadata: entryMetadata(&entry),
			}
			if exists {
				if uerr := s.store.Update(ctx, coll, doc.ID, &doc.Content, doc.Metadata); uerr != nil {
					s.logger.Warn("updating observed resource",
						zap.String("resource_id", record.ID), zap.Error(uerr))
					continue
				}
				result.Updated++
			} else {
				if _, aerr := s.store.Add(ctx, coll, []vectorstore.Document{doc}); aerr != nil {
					s.logger.Warn("adding observed resource",
						zap.String("resource_id", record.ID), zap.Error(aerr))
					continue
				}
				result.Added++
			}
		}
	}

	// Remove cached entries whose resource no longer exists, but only
	// for types the sync actually covered.
	covered := make(map[string]bool, len(fetchTypes))
	for _, t := range fetchTypes {
		covered[t] = true
	}
	var stale []string
	for id, e := range existingByID {
		if seen[id] || !covered[e.Resource.Type] {
			continue
		}
		stale = append(stale, e.ContextID)
	}
	if len(stale) > 0 {
		if derr := s.store.DeleteByIDs(ctx, coll, stale); derr != nil {
			s.logger.Warn("removing stale observed resources", zap.Error(derr))
		} else {
			result.Removed = len(stale)
		}
	}

	result.Synced = result.Added + result.Updated
	unchanged := len(existing) - result.Updated - result.Removed
	if unchanged > 0 {
		result.Unchanged = unchanged
	}

	s.logger.Info("synced observed inventory",
		zap.String("user_id", userID),
		zap.String("account_id", accountID),
		zap.Int("added", result.Added),
		zap.Int("updated", result.Updated),
		zap.Int("removed", result.Removed),
	)
	return result, nil
}

// syncTypes builds the set of resource types a sync covers: the
// requested types, or the union of the cached types and everything
// the fetcher supports.
func syncTypes(requested []string, existing []Entry, supported []string) []string {
	if len(requested) > 0 {
		return requested
	}
	set := make(map[string]bool)
	for _, e := range existing {
		if e.Resource.Type != "" {
			set[e.Resource.Type] = true
		}
	}
	for _, t := range supported {
		set[t] = true
	}
	types := make([]string, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
