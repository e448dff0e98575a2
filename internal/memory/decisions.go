package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// DefaultResourceDecisionLimit bounds per-resource decision lookups.
const DefaultResourceDecisionLimit = 20

func decisionMetadata(d *Decision) map[string]any {
	return map[string]any{
		"decision_id":       d.ID,
		"user_id":           d.UserID,
		"session_id":        d.SessionID,
		"decision_type":     d.DecisionType,
		"confidence_score":  d.Confidence,
		"created_at":        d.CreatedAt.UTC().Format(time.RFC3339Nano),
		"related_resources": strings.Join(d.RelatedResources, ","),
		"tags":              strings.Join(d.Tags, ","),
	}
}

func decisionFromMetadata(content string, meta map[string]any, now time.Time) Decision {
	dctx, reasoning, outcome := splitDecisionContent(content)
	return Decision{
		ID:               metaString(meta["decision_id"]),
		UserID:           metaString(meta["user_id"]),
		SessionID:        metaString(meta["session_id"]),
		DecisionType:     metaString(meta["decision_type"]),
		Context:          dctx,
		Reasoning:        reasoning,
		Outcome:          outcome,
		Confidence:       metaFloat(meta["confidence_score"], DefaultImportance),
		RelatedResources: splitTags(meta["related_resources"]),
		Tags:             splitTags(meta["tags"]),
		CreatedAt:        metaTime(meta["created_at"], now),
	}
}

// StoreDecision persists an agent decision for future reference.
// Context, reasoning and outcome are indexed as one document so a
// search matches any of the three.
func (m *Manager) StoreDecision(ctx context.Context, d *Decision) error {
	if d == nil {
		return ErrInvalidDecision
	}
	if d.UserID == "" {
		return fmt.Errorf("%w: user ID required", ErrInvalidDecision)
	}
	if d.Context == "" && d.Reasoning == "" && d.Outcome == "" {
		return fmt.Errorf("%w: decision content required", ErrInvalidDecision)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be in [0,1]", ErrInvalidDecision)
	}
	if d.Confidence == 0 {
		d.Confidence = DefaultImportance
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	d.CreatedAt = m.now()

	coll, err := m.collection(d.UserID, TypeDecision)
	if err != nil {
		return err
	}

	_, err = m.store.Add(ctx, coll, []vectorstore.Document{{
		ID:       d.ID,
		Content:  d.combinedContent(),
		Metadata: decisionMetadata(d),
	}})
	if err != nil {
		return fmt.Errorf("storing decision: %w", err)
	}

	m.logger.Debug("stored decision",
		zap.String("user_id", d.UserID),
		zap.String("decision_id", d.ID),
		zap.String("type", d.DecisionType),
	)
	return nil
}

// GetDecision retrieves a decision by ID.
func (m *Manager) GetDecision(ctx context.Context, userID, id string) (*Decision, error) {
	coll, err := m.collection(userID, TypeDecision)
	if err != nil {
		return nil, err
	}

	doc, err := m.store.Get(ctx, coll, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	d := decisionFromMetadata(doc.Content, doc.Metadata, m.now())
	return &d, nil
}

// DecisionSearchParams describe a decision search.
type DecisionSearchParams struct {
	UserID string
	Query  string

	// DecisionType narrows results to one decision type.
	DecisionType string

	// SessionID narrows results to one session.
	SessionID string

	// MinConfidence drops results below the score when positive.
	MinConfidence float64

	TopK int
}

// SearchDecisions searches past decisions by semantic similarity,
// ordered by relevance.
func (m *Manager) SearchDecisions(ctx context.Context, p DecisionSearchParams) ([]DecisionSearchResult, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("%w: user ID required", ErrInvalidDecision)
	}
	if p.Query == "" {
		return nil, fmt.Errorf("%w: query required", ErrInvalidDecision)
	}
	if p.TopK <= 0 {
		p.TopK = m.config.SearchLimit
	}

	coll, err := m.collection(p.UserID, TypeDecision)
	if err != nil {
		return nil, err
	}

	filter := map[string]any{}
	if p.DecisionType != "" {
		filter["decision_type"] = p.DecisionType
	}
	if p.SessionID != "" {
		filter["session_id"] = p.SessionID
	}
	if len(filter) == 0 {
		filter = nil
	}

	results, err := m.store.Query(ctx, coll, p.Query, p.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("searching decisions: %w", err)
	}

	out := make([]DecisionSearchResult, 0, len(results))
	for _, r := range results {
		d := decisionFromMetadata(r.Content, r.Metadata, m.now())
		if p.MinConfidence > 0 && d.Confidence < p.MinConfidence {
			continue
		}
		out = append(out, DecisionSearchResult{Decision: d, Relevance: r.Score})
	}
	return out, nil
}

// DecisionsForResource returns decisions that reference the given
// resource in their related-resources list. The resource ID doubles as
// the search query; membership is then checked exactly.
func (m *Manager) DecisionsForResource(ctx context.Context, userID, resourceID string, topK int) ([]Decision, error) {
	if topK <= 0 {
		topK = DefaultResourceDecisionLimit
	}

	results, err := m.SearchDecisions(ctx, DecisionSearchParams{
		UserID: userID,
		Query:  resourceID,
		TopK:   topK,
	})
	if err != nil {
		return nil, err
	}

	var decisions []Decision
	for _, r := range results {
		for _, res := range r.Decision.RelatedResources {
			if res == resourceID {
				decisions = append(decisions, r.Decision)
				break
			}
		}
	}
	return decisions, nil
}
