package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhubert/plural-gateway/store"
)

type saveSessionBody struct {
	ProjectID string               `json:"projectId"`
	Messages  []store.MessageInput `json:"messages"`
}

type updateSessionBody struct {
	ID       string               `json:"id"`
	Messages []store.MessageInput `json:"messages"`
}

// handleGetSessions returns the project's session (or null) when projectId
// is given, otherwise every session of the caller.
func (s *Server) handleGetSessions(c *gin.Context) {
	ctx := c.Request.Context()

	if projectID := c.Query("projectId"); projectID != "" {
		sess, err := s.store.SessionForProject(ctx, userID(c), projectID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusOK, nil)
		case err != nil:
			s.respondInternal(c, "failed to load session", err)
		default:
			c.JSON(http.StatusOK, sess)
		}
		return
	}

	sessions, err := s.store.ListSessions(ctx, userID(c))
	if err != nil {
		s.respondInternal(c, "failed to list sessions", err)
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// handleSaveSession replaces the messages of the caller's session for a
// project, creating it when absent.
func (s *Server) handleSaveSession(c *gin.Context) {
	var body saveSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ProjectID == "" {
		respondError(c, http.StatusBadRequest, "projectId is required")
		return
	}

	sess, created, err := s.store.SaveSession(c.Request.Context(), userID(c), body.ProjectID, body.Messages)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "project not found")
	case errors.Is(err, store.ErrInvalid):
		respondError(c, http.StatusBadRequest, err.Error())
	case err != nil:
		s.respondInternal(c, "failed to save session", err)
	case created:
		c.JSON(http.StatusCreated, sess)
	default:
		c.JSON(http.StatusOK, sess)
	}
}

func (s *Server) handleUpdateSession(c *gin.Context) {
	var body updateSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ID == "" {
		respondError(c, http.StatusBadRequest, "id is required")
		return
	}

	sess, err := s.store.ReplaceMessages(c.Request.Context(), userID(c), body.ID, body.Messages)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "session not found")
	case errors.Is(err, store.ErrInvalid):
		respondError(c, http.StatusBadRequest, err.Error())
	case err != nil:
		s.respondInternal(c, "failed to update session", err)
	default:
		c.JSON(http.StatusOK, sess)
	}
}

// handleDeleteSessions deletes one session by ?id= or all of a project's
// sessions by ?projectId=.
func (s *Server) handleDeleteSessions(c *gin.Context) {
	ctx := c.Request.Context()

	if id := c.Query("id"); id != "" {
		err := s.store.DeleteSession(ctx, userID(c), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			respondError(c, http.StatusNotFound, "session not found")
		case err != nil:
			s.respondInternal(c, "failed to delete session", err)
		default:
			c.JSON(http.StatusOK, gin.H{"success": true})
		}
		return
	}

	if projectID := c.Query("projectId"); projectID != "" {
		if err := s.store.DeleteProjectSessions(ctx, userID(c), projectID); err != nil {
			s.respondInternal(c, "failed to delete sessions", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
		return
	}

	respondError(c, http.StatusBadRequest, "id or projectId is required")
}
