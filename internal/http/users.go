package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleUserStats reports per-group collection and document counts.
func (s *Server) handleUserStats(c echo.Context) error {
	stats, err := s.registry.Users().Stats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

// handleUserCleanup deletes everything stored for a user: collections
// across all index groups plus active sessions.
func (s *Server) handleUserCleanup(c echo.Context) error {
	result, err := s.registry.Users().CleanupUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.serviceError(err)
	}
	return c.JSON(http.StatusOK, result)
}
