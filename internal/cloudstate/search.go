package cloudstate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/drift"
	"github.com/fyrsmithlabs/infrad/internal/federation"
	"github.com/fyrsmithlabs/infrad/internal/namespace"
)

// SearchParams scope a context search. AccountID narrows the search
// to one account; when empty all of the user's accounts are searched.
// Source narrows to declared or observed inventory; when empty both
// are searched. ResourceType is applied as a post-filter.
type SearchParams struct {
	UserID       string
	Query        string
	AccountID    string
	Source       Source
	ResourceType string
	TopK         int
}

// SearchContext searches inventory collections semantically. The
// query fans out across the matching collections and the merged hits
// come back ordered by relevance.
func (s *Service) SearchContext(ctx context.Context, params SearchParams) ([]Hit, error) {
	if params.UserID == "" || params.Query == "" {
		return nil, fmt.Errorf("%w: user ID and query required", ErrInvalidParams)
	}
	if params.TopK <= 0 {
		params.TopK = DefaultSearchLimit
	}

	collections, err := s.searchCollections(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(collections) == 0 {
		return []Hit{}, nil
	}

	// The resource type filter runs inside the federator, before its
	// sort and truncate, so matching hits are never displaced from the
	// topK window by filtered-out ones.
	var postFilter func(federation.Hit) bool
	if params.ResourceType != "" {
		postFilter = func(h federation.Hit) bool {
			return metaString(h.Metadata["resource_type"]) == params.ResourceType
		}
	}

	result, err := s.federator.Query(ctx, collections, params.Query, params.TopK, nil, postFilter)
	if err != nil {
		return nil, fmt.Errorf("searching context: %w", err)
	}

	now := s.now()
	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, Hit{Entry: entryFromMetadata(h.Content, h.Metadata, now), Relevance: h.Score})
	}
	return hits, nil
}

// searchCollections resolves the collections a search covers. Account
// scoped searches name them directly; user-wide searches discover them.
func (s *Service) searchCollections(ctx context.Context, params SearchParams) ([]string, error) {
	sources := []Source{SourceState, SourceLive}
	if params.Source != "" {
		sources = []Source{params.Source}
	}

	if params.AccountID != "" {
		names := make([]string, 0, len(sources))
		for _, source := range sources {
			name, err := s.collection(params.UserID, params.AccountID, source)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
		return names, nil
	}

	known, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	var names []string
	for _, source := range sources {
		partial := namespace.Address{
			Group:    namespace.GroupContext,
			SubIndex: string(source),
			UserID:   params.UserID,
		}
		names = append(names, namespace.Discover(partial, known)...)
	}
	return names, nil
}

// DriftReport is the outcome of a declared-vs-observed comparison for
// one account.
type DriftReport struct {
	drift.Result

	AccountID    string `json:"account_id"`
	Region       string `json:"region,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
}

// CompareDrift compares the declared inventory against the observed
// one and reports the differences. resourceType and resourceID scope
// the comparison when non-empty. When fresh is true and a fetcher is
// configured, the observed side comes straight from the provider API
// instead of the cached live collection.
func (s *Service) CompareDrift(ctx context.Context, userID, accountID, resourceType, resourceID, region string, fresh bool) (*DriftReport, error) {
	if userID == "" || accountID == "" {
		return nil, fmt.Errorf("%w: user and account IDs required", ErrInvalidParams)
	}

	declared, err := s.DeclaredResources(ctx, userID, accountID, resourceType, compareListLimit)
	if err != nil {
		return nil, err
	}
	declaredRecords := make([]drift.Record, 0, len(declared))
	for _, e := range declared {
		declaredRecords = append(declaredRecords, e.Resource)
	}

	var observedRecords []drift.Record
	if fresh {
		if s.fetcher == nil {
			return nil, ErrNoFetcher
		}
		var types []string
		if resourceType != "" {
			types = []string{resourceType}
		}
		fetched, ferr := s.FetchObserved(ctx, types, region)
		if ferr != nil {
			return nil, fmt.Errorf("fetching observed inventory: %w", ferr)
		}
		for _, records := range fetched {
			observedRecords = append(observedRecords, records...)
		}
	} else {
		observed, oerr := s.ObservedResources(ctx, userID, accountID, resourceType, region, compareListLimit)
		if oerr != nil {
			return nil, oerr
		}
		for _, e := range observed {
			observedRecords = append(observedRecords, e.Resource)
		}
	}

	result := drift.Detect(declaredRecords, observedRecords, drift.Options{
		ResourceType: resourceType,
		ResourceID:   resourceID,
	})

	s.logger.Info("compared declared vs observed inventory",
		zap.String("user_id", userID),
		zap.String("account_id", accountID),
		zap.Bool("drift_detected", result.DriftDetected),
	)
	return &DriftReport{
		Result:       result,
		AccountID:    accountID,
		Region:       region,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}, nil
}
