package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeDecision(t *testing.T, mgr *Manager, d Decision) Decision {
	t.Helper()
	require.NoError(t, mgr.StoreDecision(context.Background(), &d))
	return d
}

func TestStoreDecisionValidation(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	assert.ErrorIs(t, mgr.StoreDecision(ctx, nil), ErrInvalidDecision)
	assert.ErrorIs(t, mgr.StoreDecision(ctx, &Decision{Context: "x"}), ErrInvalidDecision)
	assert.ErrorIs(t, mgr.StoreDecision(ctx, &Decision{UserID: "usr1"}), ErrInvalidDecision)
	assert.ErrorIs(t, mgr.StoreDecision(ctx, &Decision{UserID: "usr1", Context: "x", Confidence: 1.2}), ErrInvalidDecision)
}

func TestDecisionRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	stored := storeDecision(t, mgr, Decision{
		UserID:           "usr1",
		SessionID:        "s1",
		DecisionType:     "scaling",
		Context:          "cpu above 80 percent for ten minutes",
		Reasoning:        "sustained load, not a spike",
		Outcome:          "raised desired capacity to 6",
		Confidence:       0.8,
		RelatedResources: []string{"asg-web", "alarm-cpu-high"},
		Tags:             []string{"autoscaling"},
	})
	require.NotEmpty(t, stored.ID)

	got, err := mgr.GetDecision(ctx, "usr1", stored.ID)
	require.NoError(t, err)

	assert.Equal(t, stored.Context, got.Context)
	assert.Equal(t, stored.Reasoning, got.Reasoning)
	assert.Equal(t, stored.Outcome, got.Outcome)
	assert.Equal(t, "scaling", got.DecisionType)
	assert.InDelta(t, 0.8, got.Confidence, 0.001)
	assert.Equal(t, []string{"asg-web", "alarm-cpu-high"}, got.RelatedResources)
}

func TestGetDecisionNotFound(t *testing.T) {
	mgr, _ := newTestManager(t)
	_, err := mgr.GetDecision(context.Background(), "usr1", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearchDecisionsFilters(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	scaling := storeDecision(t, mgr, Decision{
		UserID: "usr1", SessionID: "s1", DecisionType: "scaling",
		Context: "instance capacity planning", Reasoning: "load trend", Outcome: "scaled out",
		Confidence: 0.9,
	})
	storeDecision(t, mgr, Decision{
		UserID: "usr1", SessionID: "s2", DecisionType: "security",
		Context: "instance access review", Reasoning: "open ingress", Outcome: "locked down",
		Confidence: 0.4,
	})

	results, err := mgr.SearchDecisions(ctx, DecisionSearchParams{
		UserID: "usr1", Query: "instance", DecisionType: "scaling",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, scaling.ID, results[0].Decision.ID)

	results, err = mgr.SearchDecisions(ctx, DecisionSearchParams{
		UserID: "usr1", Query: "instance", SessionID: "s2",
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "security", results[0].Decision.DecisionType)

	results, err = mgr.SearchDecisions(ctx, DecisionSearchParams{
		UserID: "usr1", Query: "instance", MinConfidence: 0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, scaling.ID, results[0].Decision.ID)
}

func TestDecisionsForResource(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	match := storeDecision(t, mgr, Decision{
		UserID: "usr1", SessionID: "s1", DecisionType: "remediation",
		Context: "restarted i-abc123 after oom", Reasoning: "memory leak", Outcome: "recovered",
		RelatedResources: []string{"i-abc123"},
	})
	storeDecision(t, mgr, Decision{
		UserID: "usr1", SessionID: "s1", DecisionType: "remediation",
		Context: "mentions i-abc123 in passing", Reasoning: "unrelated", Outcome: "none",
		RelatedResources: []string{"i-other"},
	})

	decisions, err := mgr.DecisionsForResource(ctx, "usr1", "i-abc123", 0)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, match.ID, decisions[0].ID)
}

func TestSplitDecisionContent(t *testing.T) {
	c, r, o := splitDecisionContent("ctx\n---\nwhy\n---\nresult")
	assert.Equal(t, "ctx", c)
	assert.Equal(t, "why", r)
	assert.Equal(t, "result", o)

	c, r, o = splitDecisionContent("only context")
	assert.Equal(t, "only context", c)
	assert.Empty(t, r)
	assert.Empty(t, o)
}
