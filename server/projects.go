package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhubert/plural-gateway/store"
)

// projectBody is the writable part of a project as sent by clients.
type projectBody struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	RepositoryType     store.RepositoryType `json:"repositoryType"`
	RepositoryURL      string               `json:"repositoryUrl"`
	GitHubToken        string               `json:"githubToken"`
	BacklogDomain      string               `json:"backlogDomain"`
	BacklogProjectKey  string               `json:"backlogProjectKey"`
	BacklogAPIKey      string               `json:"backlogApiKey"`
	BacklogEmail       string               `json:"backlogEmail"`
	BacklogGitPassword string               `json:"backlogGitPassword"`
}

func (b projectBody) project(userID string) store.Project {
	return store.Project{
		ID:                 b.ID,
		UserID:             userID,
		Name:               b.Name,
		Description:        b.Description,
		RepositoryType:     b.RepositoryType,
		RepositoryURL:      b.RepositoryURL,
		GitHubToken:        b.GitHubToken,
		BacklogDomain:      b.BacklogDomain,
		BacklogProjectKey:  b.BacklogProjectKey,
		BacklogAPIKey:      b.BacklogAPIKey,
		BacklogEmail:       b.BacklogEmail,
		BacklogGitPassword: b.BacklogGitPassword,
	}
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.store.ListProjects(c.Request.Context(), userID(c))
	if err != nil {
		s.respondInternal(c, "failed to list projects", err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var body projectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Name == "" || body.RepositoryType == "" || body.RepositoryURL == "" {
		respondError(c, http.StatusBadRequest, "name, repositoryType and repositoryUrl are required")
		return
	}

	body.ID = ""
	p, err := s.store.CreateProject(c.Request.Context(), body.project(userID(c)))
	switch {
	case errors.Is(err, store.ErrInvalid):
		respondError(c, http.StatusBadRequest, err.Error())
	case err != nil:
		s.respondInternal(c, "failed to create project", err)
	default:
		s.log.Info("project created", "projectID", p.ID, "userID", p.UserID)
		c.JSON(http.StatusCreated, p)
	}
}

func (s *Server) handleUpdateProject(c *gin.Context) {
	var body projectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.ID == "" {
		respondError(c, http.StatusBadRequest, "id is required")
		return
	}

	p, err := s.store.UpdateProject(c.Request.Context(), body.project(userID(c)))
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "project not found")
	case errors.Is(err, store.ErrInvalid):
		respondError(c, http.StatusBadRequest, err.Error())
	case err != nil:
		s.respondInternal(c, "failed to update project", err)
	default:
		c.JSON(http.StatusOK, p)
	}
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		respondError(c, http.StatusBadRequest, "id is required")
		return
	}

	err := s.store.DeleteProject(c.Request.Context(), userID(c), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "project not found")
	case err != nil:
		s.respondInternal(c, "failed to delete project", err)
	default:
		s.log.Info("project deleted", "projectID", id, "userID", userID(c))
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
