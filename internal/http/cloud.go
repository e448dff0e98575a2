package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/infrad/internal/cloudstate"
	"github.com/fyrsmithlabs/infrad/internal/drift"
)

// StateUploadRequest is the request body for POST /api/v1/cloud/state:
// a parsed declared inventory for one account.
type StateUploadRequest struct {
	UserID      string         `json:"user_id"`
	AccountID   string         `json:"account_id"`
	Resources   []drift.Record `json:"resources"`
	ProjectID   string         `json:"project_id,omitempty"`
	Environment string         `json:"environment,omitempty"`
}

// handleStateUpload indexes a declared resource inventory.
func (s *Server) handleStateUpload(c echo.Context) error {
	var req StateUploadRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	result, err := s.registry.CloudState().IndexDeclared(c.Request().Context(), req.UserID, req.AccountID, req.Resources, req.ProjectID, req.Environment)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusCreated, result)
}

// EntriesResponse is the response body for inventory listings.
type EntriesResponse struct {
	Entries []cloudstate.Entry `json:"entries"`
}

// handleDeclaredList lists cached declared resources for an account.
func (s *Server) handleDeclaredList(c echo.Context) error {
	entries, err := s.registry.CloudState().DeclaredResources(c.Request().Context(),
		c.QueryParam("user_id"), c.QueryParam("account_id"),
		c.QueryParam("resource_type"), 0)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, EntriesResponse{Entries: entries})
}

// handleObservedList lists cached observed resources for an account.
func (s *Server) handleObservedList(c echo.Context) error {
	entries, err := s.registry.CloudState().ObservedResources(c.Request().Context(),
		c.QueryParam("user_id"), c.QueryParam("account_id"),
		c.QueryParam("resource_type"), c.QueryParam("region"), 0)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, EntriesResponse{Entries: entries})
}

// ObservedFetchRequest is the request body for POST /api/v1/cloud/fetch.
type ObservedFetchRequest struct {
	ResourceTypes []string `json:"resource_types,omitempty"`
	Region        string   `json:"region,omitempty"`
}

// handleObservedFetch pulls live inventory straight from the provider
// without touching the cache.
func (s *Server) handleObservedFetch(c echo.Context) error {
	var req ObservedFetchRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	inventory, err := s.registry.CloudState().FetchObserved(c.Request().Context(), req.ResourceTypes, req.Region)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, inventory)
}

// ObservedSyncRequest is the request body for POST /api/v1/cloud/sync.
type ObservedSyncRequest struct {
	UserID        string   `json:"user_id"`
	AccountID     string   `json:"account_id"`
	ResourceTypes []string `json:"resource_types,omitempty"`
	Region        string   `json:"region,omitempty"`
}

// handleObservedSync refreshes the live collection from the provider.
func (s *Server) handleObservedSync(c echo.Context) error {
	var req ObservedSyncRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	result, err := s.registry.CloudState().SyncObserved(c.Request().Context(), req.UserID, req.AccountID, req.ResourceTypes, req.Region)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// CloudSearchRequest is the request body for POST /api/v1/cloud/search.
type CloudSearchRequest struct {
	UserID       string `json:"user_id"`
	Query        string `json:"query"`
	AccountID    string `json:"account_id,omitempty"`
	Source       string `json:"source,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	TopK         int    `json:"top_k,omitempty"`
}

// CloudSearchResponse is the response body for POST /api/v1/cloud/search.
type CloudSearchResponse struct {
	Hits []cloudstate.Hit `json:"hits"`
}

// handleCloudSearch searches cloud inventory semantically.
func (s *Server) handleCloudSearch(c echo.Context) error {
	var req CloudSearchRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	hits, err := s.registry.CloudState().SearchContext(c.Request().Context(), cloudstate.SearchParams{
		UserID:       req.UserID,
		Query:        req.Query,
		AccountID:    req.AccountID,
		Source:       cloudstate.Source(req.Source),
		ResourceType: req.ResourceType,
		TopK:         req.TopK,
	})
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, CloudSearchResponse{Hits: hits})
}

// DriftCompareRequest is the request body for POST /api/v1/cloud/drift.
// Fresh forces a provider fetch for the observed side instead of the
// cached live collection.
type DriftCompareRequest struct {
	UserID       string `json:"user_id"`
	AccountID    string `json:"account_id"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	Region       string `json:"region,omitempty"`
	Fresh        bool   `json:"fresh,omitempty"`
}

// handleDriftCompare compares declared against observed inventory.
func (s *Server) handleDriftCompare(c echo.Context) error {
	var req DriftCompareRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	report, err := s.registry.CloudState().CompareDrift(c.Request().Context(), req.UserID, req.AccountID, req.ResourceType, req.ResourceID, req.Region, req.Fresh)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, report)
}

// NoteStoreRequest is the request body for POST /api/v1/context/general.
type NoteStoreRequest struct {
	UserID   string            `json:"user_id"`
	Content  string            `json:"content"`
	Category string            `json:"category,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NoteStoreResponse is the response body for POST /api/v1/context/general.
type NoteStoreResponse struct {
	ID string `json:"id"`
}

// handleNoteStore stores a free-form context note.
func (s *Server) handleNoteStore(c echo.Context) error {
	var req NoteStoreRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	id, err := s.registry.CloudState().StoreNote(c.Request().Context(), req.UserID, req.Content, req.Category, req.Metadata)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusCreated, NoteStoreResponse{ID: id})
}

// NoteSearchRequest is the request body for POST /api/v1/context/general/search.
type NoteSearchRequest struct {
	UserID   string `json:"user_id"`
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

// NoteSearchResponse is the response body for POST /api/v1/context/general/search.
type NoteSearchResponse struct {
	Hits []cloudstate.NoteHit `json:"hits"`
}

// handleNoteSearch searches context notes semantically.
func (s *Server) handleNoteSearch(c echo.Context) error {
	var req NoteSearchRequest
	if err := bindError(c, &req); err != nil {
		return err
	}

	hits, err := s.registry.CloudState().SearchNotes(c.Request().Context(), req.UserID, req.Query, req.Category, req.TopK)
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, NoteSearchResponse{Hits: hits})
}

// handleNoteGet fetches one context note by ID.
func (s *Server) handleNoteGet(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	note, err := s.registry.CloudState().GetNote(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, note)
}

// handleNoteDelete removes one context note.
func (s *Server) handleNoteDelete(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	if err := s.registry.CloudState().DeleteNote(c.Request().Context(), userID, c.Param("id")); err != nil {
		return s.serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
