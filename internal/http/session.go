package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/infrad/internal/session"
)

// SessionCreateRequest is the request body for POST /api/v1/sessions.
// TTLSeconds of zero uses the service default.
type SessionCreateRequest struct {
	UserID     string         `json:"user_id"`
	ModelID    string         `json:"model_id,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	TTLSeconds int            `json:"ttl_seconds,omitempty"`
}

// handleSessionCreate starts a new session.
func (s *Server) handleSessionCreate(c echo.Context) error {
	var req SessionCreateRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	sess, err := s.registry.Sessions().Create(c.Request().Context(), req.UserID, req.ModelID, req.Provider, req.Context, ttl)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

// SessionListResponse is the response body for GET /api/v1/sessions.
type SessionListResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

// handleSessionList lists a user's sessions, newest activity first.
// The optional model_id query parameter filters by model.
func (s *Server) handleSessionList(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	summaries, err := s.registry.Sessions().List(c.Request().Context(), userID, c.QueryParam("model_id"))
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, SessionListResponse{Sessions: summaries})
}

// handleSessionGet fetches one session.
func (s *Server) handleSessionGet(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	sess, err := s.registry.Sessions().Get(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// handleSessionDelete removes one session.
func (s *Server) handleSessionDelete(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	if err := s.registry.Sessions().Delete(c.Request().Context(), userID, c.Param("id")); err != nil {
		return s.serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SessionAppendRequest is the request body for POST /api/v1/sessions/:id/messages.
type SessionAppendRequest struct {
	UserID   string         `json:"user_id"`
	Role     string         `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// handleSessionAppend appends a message to a session.
func (s *Server) handleSessionAppend(c echo.Context) error {
	var req SessionAppendRequest
	if err := bindError(c, &req); err != nil {
		return err
	}
	if req.Role == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role and content are required")
	}

	msg := session.Message{
		Role:     req.Role,
		Content:  req.Content,
		Metadata: req.Metadata,
	}
	if err := s.registry.Sessions().AppendMessage(c.Request().Context(), req.UserID, c.Param("id"), msg); err != nil {
		return s.serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SessionMessagesResponse is the response body for GET /api/v1/sessions/:id/messages.
type SessionMessagesResponse struct {
	Messages []session.Message `json:"messages"`
}

// handleSessionMessages returns a window of session messages. The
// limit and offset query parameters page through history.
func (s *Server) handleSessionMessages(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	messages, err := s.registry.Sessions().Messages(c.Request().Context(), userID, c.Param("id"), limit, offset)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, SessionMessagesResponse{Messages: messages})
}

// SessionDataRequest is the request body for session context and state
// updates. Merge folds the data into what is stored; otherwise it
// replaces it.
type SessionDataRequest struct {
	UserID string         `json:"user_id"`
	Data   map[string]any `json:"data"`
	Merge  bool           `json:"merge"`
}

// handleSessionContext updates a session's context map.
func (s *Server) handleSessionContext(c echo.Context) error {
	var req SessionDataRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	if err := s.registry.Sessions().UpdateContext(c.Request().Context(), req.UserID, c.Param("id"), req.Data, req.Merge); err != nil {
		return s.serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleSessionState updates a session's state map.
func (s *Server) handleSessionState(c echo.Context) error {
	var req SessionDataRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	if err := s.registry.Sessions().UpdateState(c.Request().Context(), req.UserID, c.Param("id"), req.Data, req.Merge); err != nil {
		return s.serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SessionExtendRequest is the request body for POST /api/v1/sessions/:id/extend.
type SessionExtendRequest struct {
	UserID            string `json:"user_id"`
	AdditionalSeconds int    `json:"additional_seconds"`
}

// handleSessionExtend adds time to a session's TTL.
func (s *Server) handleSessionExtend(c echo.Context) error {
	var req SessionExtendRequest
	if err := bindError(c, &req); err != nil {
		return err
	}
	if req.AdditionalSeconds <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "additional_seconds must be positive")
	}

	additional := time.Duration(req.AdditionalSeconds) * time.Second
	if err := s.registry.Sessions().ExtendTTL(c.Request().Context(), req.UserID, c.Param("id"), additional); err != nil {
		return s.serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
