package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhubert/plural-gateway/claude"
	"github.com/zhubert/plural-gateway/logger"
	"github.com/zhubert/plural-gateway/store"
)

// chatRequest is the body of both chat routes. githubToken is accepted as
// an alias of credential for older clients.
type chatRequest struct {
	Message             string                  `json:"message"`
	SessionID           string                  `json:"sessionId"`
	ConversationHistory []claude.HistoryMessage `json:"conversationHistory"`
	RepositoryURL       string                  `json:"repositoryUrl"`
	Credential          string                  `json:"credential"`
	GitHubToken         string                  `json:"githubToken"`
	ProjectID           string                  `json:"projectId"`
}

// toRequest validates the body and resolves the agent request. A named
// project fills in the repository URL and credential when the body leaves
// them out; it is only looked up for identified callers.
func (s *Server) toRequest(c *gin.Context) (claude.Request, bool) {
	var body chatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return claude.Request{}, false
	}
	if body.Message == "" {
		respondError(c, http.StatusBadRequest, "message is required")
		return claude.Request{}, false
	}

	req := claude.Request{
		Message:       body.Message,
		SessionID:     body.SessionID,
		History:       body.ConversationHistory,
		RepositoryURL: body.RepositoryURL,
		Credential:    body.Credential,
	}
	if req.Credential == "" {
		req.Credential = body.GitHubToken
	}

	if body.ProjectID != "" && userID(c) != "" {
		p, err := s.store.GetProject(c.Request.Context(), userID(c), body.ProjectID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(c, http.StatusNotFound, "project not found")
			return claude.Request{}, false
		case err != nil:
			s.respondInternal(c, "failed to load project", err)
			return claude.Request{}, false
		}
		if req.RepositoryURL == "" {
			req.RepositoryURL = p.RepositoryURL
		}
		if req.Credential == "" {
			req.Credential = p.GitHubToken
		}
	}
	return req, true
}

// handleChatStream relays agent events as server-sent events. Each event is
// one "data: <json>" frame; the stream ends when the response ends. A client
// disconnect cancels the request context, which kills the agent.
func (s *Server) handleChatStream(c *gin.Context) {
	req, ok := s.toRequest(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sessionID, events := s.gateway.Stream(ctx, req)
	log := logger.WithSession(sessionID).With("component", "http")

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	writeFailed := false
	for ev := range events {
		if writeFailed {
			continue
		}
		data, err := json.Marshal(ev)
		if err != nil {
			log.Error("failed to encode event", "error", err)
			continue
		}
		if err := writeSSE(c.Writer, data); err != nil {
			// The client is gone. Stop the agent and drain until the
			// relay closes the channel.
			log.Debug("client write failed", "error", err)
			writeFailed = true
			cancel()
			continue
		}
		c.Writer.Flush()
	}
}

func writeSSE(w gin.ResponseWriter, data []byte) error {
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.WriteString("\n\n")
	return err
}

// handleChatSync runs the agent to completion and answers with one JSON
// body. Agent failures are reported in the body's error field with status
// 200; they are results, not transport errors.
func (s *Server) handleChatSync(c *gin.Context) {
	req, ok := s.toRequest(c)
	if !ok {
		return
	}

	resp, err := s.gateway.Query(c.Request.Context(), req)
	if err != nil {
		// Only returned when the client went away; nobody is listening.
		logger.WithSession(resp.SessionID).Debug("sync chat cancelled", "error", err)
		c.Abort()
		return
	}
	c.JSON(http.StatusOK, resp)
}
