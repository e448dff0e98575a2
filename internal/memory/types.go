package memory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for memory operations.
var (
	// ErrNotFound is returned when a memory or decision ID cannot be
	// located in any candidate collection.
	ErrNotFound = errors.New("memory record not found")

	// ErrInvalidRecord indicates a record failed validation before storage.
	ErrInvalidRecord = errors.New("invalid memory record")

	// ErrInvalidDecision indicates a decision failed validation before storage.
	ErrInvalidDecision = errors.New("invalid decision")
)

// Type identifies the lifecycle state of a memory record.
//
// Session memories live only as long as their session unless promoted;
// longterm memories persist across sessions; decisions are append-only
// and never transition.
type Type string

const (
	TypeSession  Type = "session"
	TypeLongterm Type = "longterm"
	TypeDecision Type = "decision"
)

// Types that Get and Delete scan when no type hint is given. Decisions
// have their own accessors and never mix with plain memories.
var recordTypes = []Type{TypeSession, TypeLongterm}

// Valid reports whether t is a known memory type.
func (t Type) Valid() bool {
	switch t {
	case TypeSession, TypeLongterm, TypeDecision:
		return true
	}
	return false
}

// Record is a single memory entry.
type Record struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	SessionID   string         `json:"session_id,omitempty"`
	Type        Type           `json:"type"`
	Content     string         `json:"content"`
	Importance  float64        `json:"importance"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	AccessedAt  time.Time      `json:"accessed_at"`
	AccessCount int            `json:"access_count"`
}

// SearchResult pairs a record with its relevance score (1 - distance).
type SearchResult struct {
	Record    Record  `json:"record"`
	Relevance float32 `json:"relevance_score"`
}

// Decision is a recorded agent decision: the situation, the reasoning
// and what was decided. All three parts are indexed together for
// semantic search.
type Decision struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	DecisionType     string    `json:"decision_type"`
	Context          string    `json:"context"`
	Reasoning        string    `json:"reasoning"`
	Outcome          string    `json:"outcome"`
	Confidence       float64   `json:"confidence"`
	RelatedResources []string  `json:"related_resources,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// DecisionSearchResult pairs a decision with its relevance score.
type DecisionSearchResult struct {
	Decision  Decision `json:"decision"`
	Relevance float32  `json:"relevance_score"`
}

// decisionPartSeparator joins context, reasoning and outcome into one
// indexed document and splits them back apart on read.
const decisionPartSeparator = "\n---\n"

// combinedContent renders the decision text that gets embedded.
func (d Decision) combinedContent() string {
	return d.Context + decisionPartSeparator + d.Reasoning + decisionPartSeparator + d.Outcome
}

// splitDecisionContent is the inverse of combinedContent. Missing
// trailing parts come back empty.
func splitDecisionContent(content string) (context, reasoning, outcome string) {
	parts := strings.SplitN(content, decisionPartSeparator, 3)
	if len(parts) > 0 {
		context = parts[0]
	}
	if len(parts) > 1 {
		reasoning = parts[1]
	}
	if len(parts) > 2 {
		outcome = parts[2]
	}
	return context, reasoning, outcome
}

// Metadata value coercion. Stored values come back typed from some
// backends and stringly from others, so readers accept both.

func metaString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func metaFloat(v any, fallback float64) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func metaInt(v any, fallback int) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
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

// splitTags splits a comma-joined tag list, dropping empties.
func splitTags(v any) []string {
	s := metaString(v)
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
