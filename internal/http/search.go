package http

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/infrad/internal/assembler"
	"github.com/fyrsmithlabs/infrad/internal/cloudstate"
	"github.com/fyrsmithlabs/infrad/internal/memory"
	"github.com/fyrsmithlabs/infrad/internal/namespace"
	"github.com/fyrsmithlabs/infrad/internal/session"
)

const (
	defaultSearchTopK    = 10
	contextSessionWindow = 20
	contextMemoryTopK    = 10
	contextDecisionTopK  = 5
	contextCloudTopK     = 10
	contextTerraformTopK = 5
)

// SearchRequest is the request body for POST /api/v1/search. Groups
// defaults to every index group.
type SearchRequest struct {
	UserID string   `json:"user_id"`
	Query  string   `json:"query"`
	Groups []string `json:"groups,omitempty"`
	TopK   int      `json:"top_k,omitempty"`
}

// SearchHit is one federated search result.
type SearchHit struct {
	Collection string          `json:"collection"`
	Group      namespace.Group `json:"group"`
	ID         string          `json:"id"`
	Content    string          `json:"content"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Relevance  float32         `json:"relevance_score"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Hits         []SearchHit    `json:"hits"`
	SourceCounts map[string]int `json:"source_counts"`
	Failed       []string       `json:"failed,omitempty"`
}

// parseGroups maps group name strings onto namespace groups, defaulting
// to all of them.
func parseGroups(names []string) ([]namespace.Group, error) {
	if len(names) == 0 {
		return namespace.Groups, nil
	}
	groups := make([]namespace.Group, 0, len(names))
	for _, name := range names {
		g := namespace.Group(name)
		found := false
		for _, known := range namespace.Groups {
			if g == known {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", namespace.ErrUnknownGroup, name)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// userCollections discovers the user's collections for the given
// groups, in listing order.
func (s *Server) userCollections(c echo.Context, userID string, groups []namespace.Group) ([]string, error) {
	known, err := s.registry.VectorStore().ListCollections(c.Request().Context())
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	sort.Strings(known)

	var collections []string
	for _, group := range groups {
		partial := namespace.Address{Group: group, UserID: userID}
		collections = append(collections, namespace.Discover(partial, known)...)
	}
	return collections, nil
}

// handleSearch runs one query across every index group the user owns.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := bindError(c, &req); err != nil {
		return err
	}
	if req.UserID == "" || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and query are required")
	}
	if req.TopK <= 0 {
		req.TopK = defaultSearchTopK
	}

	groups, err := parseGroups(req.Groups)
	if err != nil {
		return s.serviceError(err)
	}

	collections, err := s.userCollections(c, req.UserID, groups)
	if err != nil {
		return s.serviceError(err)
	}

	result, err := s.registry.Federator().Query(c.Request().Context(), collections, req.Query, req.TopK, nil, nil)
	if err != nil {
		return s.serviceError(err)
	}

	hits := make([]SearchHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		addr, err := namespace.Decode(hit.Collection)
		if err != nil {
			continue
		}
		hits = append(hits, SearchHit{
			Collection: hit.Collection,
			Group:      addr.Group,
			ID:         hit.ID,
			Content:    hit.Content,
			Metadata:   hit.Metadata,
			Relevance:  hit.Score,
		})
	}

	return c.JSON(http.StatusOK, SearchResponse{
		Hits:         hits,
		SourceCounts: result.SourceCounts,
		Failed:       result.Failed,
	})
}

// ContextBuildRequest is the request body for POST /api/v1/context/build.
type ContextBuildRequest struct {
	UserID    string   `json:"user_id"`
	Query     string   `json:"query"`
	SessionID string   `json:"session_id,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
}

// ContextBuildResponse is the response body for POST /api/v1/context/build.
type ContextBuildResponse struct {
	Context string         `json:"context"`
	Sources map[string]int `json:"sources"`
}

// buildContext gathers per-group inputs for the assembler: session
// messages, memory and decision hits, cloud inventory hits, and IaC
// documents found through the federator.
func (s *Server) buildContext(c echo.Context, req ContextBuildRequest, groups []namespace.Group) (assembler.Input, error) {
	ctx := c.Request().Context()
	var in assembler.Input

	include := make(map[namespace.Group]bool, len(groups))
	for _, g := range groups {
		include[g] = true
	}

	if include[namespace.GroupSessions] && req.SessionID != "" {
		messages, err := s.registry.Sessions().Messages(ctx, req.UserID, req.SessionID, contextSessionWindow, 0)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			return in, err
		}
		for _, msg := range messages {
			in.Session = append(in.Session, assembler.SessionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}

	if include[namespace.GroupMemory] {
		memories, err := s.registry.Memory().Search(ctx, memory.SearchParams{
			UserID: req.UserID,
			Query:  req.Query,
			TopK:   contextMemoryTopK,
		})
		if err != nil {
			return in, err
		}
		for _, hit := range memories {
			in.Memories = append(in.Memories, assembler.MemoryHit{
				Content:   hit.Record.Content,
				Relevance: float64(hit.Relevance),
			})
		}

		decisions, err := s.registry.Memory().SearchDecisions(ctx, memory.DecisionSearchParams{
			UserID: req.UserID,
			Query:  req.Query,
			TopK:   contextDecisionTopK,
		})
		if err != nil {
			return in, err
		}
		for _, hit := range decisions {
			in.Decisions = append(in.Decisions, assembler.DecisionHit{
				DecisionType: hit.Decision.DecisionType,
				Reasoning:    hit.Decision.Reasoning,
				Outcome:      hit.Decision.Outcome,
			})
		}
	}

	if include[namespace.GroupContext] {
		resources, err := s.registry.CloudState().SearchContext(ctx, cloudstate.SearchParams{
			UserID: req.UserID,
			Query:  req.Query,
			TopK:   contextCloudTopK,
		})
		if err != nil {
			return in, err
		}
		for _, hit := range resources {
			in.Cloud = append(in.Cloud, assembler.ResourceHit{
				ResourceType: hit.Entry.Resource.Type,
				ResourceID:   hit.Entry.Resource.ID,
				Region:       hit.Entry.Region,
				Source:       string(hit.Entry.Source),
			})
		}
	}

	if include[namespace.GroupTerraform] {
		collections, err := s.userCollections(c, req.UserID, []namespace.Group{namespace.GroupTerraform})
		if err != nil {
			return in, err
		}
		result, err := s.registry.Federator().Query(ctx, collections, req.Query, contextTerraformTopK, nil, nil)
		if err != nil {
			return in, err
		}
		for _, hit := range result.Hits {
			in.Terraform = append(in.Terraform, assembler.TerraformHit{
				FilePath: metaString(hit.Metadata, "file_path"),
				Category: metaString(hit.Metadata, "category"),
				Content:  hit.Content,
			})
		}
	}

	return in, nil
}

func metaString(meta map[string]any, key string) string {
	if s, ok := meta[key].(string); ok {
		return s
	}
	return ""
}

// handleContextBuild assembles a budgeted agent context string from
// every knowledge layer.
func (s *Server) handleContextBuild(c echo.Context) error {
	var req ContextBuildRequest
	if err := bindError(c, &req); err != nil {
		return err
	}
	if req.UserID == "" || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and query are required")
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = s.config.DefaultMaxTokens
	}

	groups, err := parseGroups(req.Groups)
	if err != nil {
		return s.serviceError(err)
	}

	in, err := s.buildContext(c, req, groups)
	if err != nil {
		return s.serviceError(err)
	}

	result := s.registry.Assembler().Assemble(in, groups, req.MaxTokens)

	return c.JSON(http.StatusOK, ContextBuildResponse{
		Context: result.Context,
		Sources: result.Sources,
	})
}

// ChatRequest is the request body for POST /api/v1/chat.
type ChatRequest struct {
	UserID    string   `json:"user_id"`
	SessionID string   `json:"session_id,omitempty"`
	Message   string   `json:"message"`
	Groups    []string `json:"groups,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
}

// ChatResponse is the response body for POST /api/v1/chat.
type ChatResponse struct {
	Response  string         `json:"response"`
	SessionID string         `json:"session_id,omitempty"`
	Sources   map[string]int `json:"sources"`
}

const chatSystemPreamble = "You are an infrastructure automation assistant. " +
	"Use the following context about the user's infrastructure, past decisions " +
	"and session history to answer.\n\n"

// handleChat assembles context for the message, completes it through
// the LLM, and records both turns on the session when one is given.
func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := bindError(c, &req); err != nil {
		return err
	}
	if req.UserID == "" || req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and message are required")
	}
	if s.registry.LLM() == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no completion client configured")
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = s.config.DefaultMaxTokens
	}

	groups, err := parseGroups(req.Groups)
	if err != nil {
		return s.serviceError(err)
	}

	ctx := c.Request().Context()

	// A named session must exist before we spend tokens on it.
	if req.SessionID != "" {
		if _, err := s.registry.Sessions().Get(ctx, req.UserID, req.SessionID); err != nil {
			return s.serviceError(err)
		}
	}

	in, err := s.buildContext(c, ContextBuildRequest{
		UserID:    req.UserID,
		Query:     req.Message,
		SessionID: req.SessionID,
	}, groups)
	if err != nil {
		return s.serviceError(err)
	}

	assembled := s.registry.Assembler().Assemble(in, groups, req.MaxTokens)

	system := chatSystemPreamble + assembled.Context
	answer, err := s.registry.LLM().Complete(ctx, system, req.Message)
	if err != nil {
		s.logger.Error("completion failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "completion failed")
	}

	if req.SessionID != "" {
		for _, msg := range []session.Message{
			{Role: "user", Content: req.Message},
			{Role: "assistant", Content: answer},
		} {
			if err := s.registry.Sessions().AppendMessage(ctx, req.UserID, req.SessionID, msg); err != nil {
				s.logger.Warn("recording chat turn failed",
					zap.String("session_id", req.SessionID),
					zap.Error(err))
				break
			}
		}
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Response:  answer,
		SessionID: req.SessionID,
		Sources:   assembled.Sources,
	})
}
