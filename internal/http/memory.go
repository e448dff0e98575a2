package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/infrad/internal/memory"
)

// MemoryStoreRequest is the request body for POST /api/v1/memory.
type MemoryStoreRequest struct {
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id,omitempty"`
	Type       string         `json:"type"`
	Content    string         `json:"content"`
	Importance float64        `json:"importance,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// handleMemoryStore stores a new memory record.
func (s *Server) handleMemoryStore(c echo.Context) error {
	var req MemoryStoreRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	rec := memory.Record{
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Type:       memory.Type(req.Type),
		Content:    req.Content,
		Importance: req.Importance,
		Tags:       req.Tags,
		Metadata:   req.Metadata,
	}
	if err := s.registry.Memory().Store(c.Request().Context(), &rec); err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

// handleMemoryGet fetches one memory by ID. Reading bumps its access
// stats. The optional type query parameter narrows the lookup.
func (s *Server) handleMemoryGet(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}
	hint := memory.Type(c.QueryParam("type"))

	rec, err := s.registry.Memory().Get(c.Request().Context(), userID, c.Param("id"), hint)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// handleMemoryDelete removes one memory by ID.
func (s *Server) handleMemoryDelete(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}
	hint := memory.Type(c.QueryParam("type"))

	if err := s.registry.Memory().Delete(c.Request().Context(), userID, c.Param("id"), hint); err != nil {
		return s.serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MemoryPromoteRequest is the request body for POST /api/v1/memory/:id/promote.
type MemoryPromoteRequest struct {
	UserID string `json:"user_id"`
}

// handleMemoryPromote promotes a session memory to longterm.
func (s *Server) handleMemoryPromote(c echo.Context) error {
	var req MemoryPromoteRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	rec, err := s.registry.Memory().Promote(c.Request().Context(), req.UserID, c.Param("id"))
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// MemoryImportanceRequest is the request body for POST /api/v1/memory/:id/importance.
type MemoryImportanceRequest struct {
	UserID     string  `json:"user_id"`
	Importance float64 `json:"importance"`
	Type       string  `json:"type,omitempty"`
}

// handleMemoryImportance rescores one memory.
func (s *Server) handleMemoryImportance(c echo.Context) error {
	var req MemoryImportanceRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	err := s.registry.Memory().UpdateImportance(c.Request().Context(), req.UserID, c.Param("id"), req.Importance, memory.Type(req.Type))
	if err != nil {
		return s.serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MemorySearchRequest is the request body for POST /api/v1/memory/search.
type MemorySearchRequest struct {
	UserID        string   `json:"user_id"`
	Query         string   `json:"query"`
	Types         []string `json:"types,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
	MinImportance float64  `json:"min_importance,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
}

// MemorySearchResponse is the response body for POST /api/v1/memory/search.
type MemorySearchResponse struct {
	Results []memory.SearchResult `json:"results"`
}

// handleMemorySearch searches memories semantically.
func (s *Server) handleMemorySearch(c echo.Context) error {
	var req MemorySearchRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	types := make([]memory.Type, 0, len(req.Types))
	for _, t := range req.Types {
		types = append(types, memory.Type(t))
	}

	results, err := s.registry.Memory().Search(c.Request().Context(), memory.SearchParams{
		UserID:        req.UserID,
		Query:         req.Query,
		Types:         types,
		SessionID:     req.SessionID,
		MinImportance: req.MinImportance,
		Tags:          req.Tags,
		TopK:          req.TopK,
	})
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, MemorySearchResponse{Results: results})
}

// MemoryCleanupRequest is the request body for POST /api/v1/memory/cleanup.
type MemoryCleanupRequest struct {
	UserID        string  `json:"user_id"`
	SessionID     string  `json:"session_id"`
	KeepImportant bool    `json:"keep_important"`
	Threshold     float64 `json:"threshold,omitempty"`
}

// MemoryCleanupResponse is the response body for POST /api/v1/memory/cleanup.
type MemoryCleanupResponse struct {
	Deleted int `json:"deleted"`
}

// handleMemoryCleanup deletes a session's memories, optionally keeping
// those above the importance threshold.
func (s *Server) handleMemoryCleanup(c echo.Context) error {
	var req MemoryCleanupRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	deleted, err := s.registry.Memory().CleanupSession(c.Request().Context(), req.UserID, req.SessionID, req.KeepImportant, req.Threshold)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, MemoryCleanupResponse{Deleted: deleted})
}

// DecisionStoreRequest is the request body for POST /api/v1/decisions.
type DecisionStoreRequest struct {
	UserID           string   `json:"user_id"`
	SessionID        string   `json:"session_id,omitempty"`
	DecisionType     string   `json:"decision_type"`
	Context          string   `json:"context"`
	Reasoning        string   `json:"reasoning"`
	Outcome          string   `json:"outcome"`
	Confidence       float64  `json:"confidence,omitempty"`
	RelatedResources []string `json:"related_resources,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// handleDecisionStore records an agent decision.
func (s *Server) handleDecisionStore(c echo.Context) error {
	var req DecisionStoreRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	d := memory.Decision{
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		DecisionType:     req.DecisionType,
		Context:          req.Context,
		Reasoning:        req.Reasoning,
		Outcome:          req.Outcome,
		Confidence:       req.Confidence,
		RelatedResources: req.RelatedResources,
		Tags:             req.Tags,
	}
	if err := s.registry.Memory().StoreDecision(c.Request().Context(), &d); err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

// DecisionSearchRequest is the request body for POST /api/v1/decisions/search.
type DecisionSearchRequest struct {
	UserID        string  `json:"user_id"`
	Query         string  `json:"query"`
	DecisionType  string  `json:"decision_type,omitempty"`
	SessionID     string  `json:"session_id,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
}

// DecisionSearchResponse is the response body for POST /api/v1/decisions/search.
type DecisionSearchResponse struct {
	Results []memory.DecisionSearchResult `json:"results"`
}

// handleDecisionSearch searches past decisions semantically.
func (s *Server) handleDecisionSearch(c echo.Context) error {
	var req DecisionSearchRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	results, err := s.registry.Memory().SearchDecisions(c.Request().Context(), memory.DecisionSearchParams{
		UserID:        req.UserID,
		Query:         req.Query,
		DecisionType:  req.DecisionType,
		SessionID:     req.SessionID,
		MinConfidence: req.MinConfidence,
		TopK:          req.TopK,
	})
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, DecisionSearchResponse{Results: results})
}
