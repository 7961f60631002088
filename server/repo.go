package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zhubert/plural-gateway/git"
	"github.com/zhubert/plural-gateway/store"
)

type repoBody struct {
	ProjectID string `json:"projectId"`
}

// repoFailure answers a repository route with its result shape.
func repoFailure(c *gin.Context, status int, msg, detail string) {
	c.AbortWithStatusJSON(status, git.Result{Success: false, Message: msg, Error: detail})
}

// credentials picks what authenticates an HTTPS clone of p. Backlog uses the
// account email and git password; GitHub uses the token with the username
// GitHub expects for token auth.
func credentials(p store.Project) git.Credentials {
	switch p.RepositoryType {
	case store.RepositoryBacklog:
		return git.Credentials{Username: p.BacklogEmail, Password: p.BacklogGitPassword}
	case store.RepositoryGitHub:
		if p.GitHubToken != "" {
			return git.Credentials{Username: "x-access-token", Password: p.GitHubToken}
		}
	}
	return git.Credentials{}
}

// ownedProject binds {projectId} and loads the caller's project, answering
// the request itself on failure.
func (s *Server) ownedProject(c *gin.Context) (store.Project, bool) {
	var body repoBody
	if err := c.ShouldBindJSON(&body); err != nil {
		repoFailure(c, http.StatusBadRequest, "invalid request body", err.Error())
		return store.Project{}, false
	}
	if body.ProjectID == "" {
		repoFailure(c, http.StatusBadRequest, "projectId is required", "")
		return store.Project{}, false
	}

	p, err := s.store.GetProject(c.Request.Context(), userID(c), body.ProjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		repoFailure(c, http.StatusNotFound, "project not found", "")
		return store.Project{}, false
	case err != nil:
		s.log.Error("failed to load project", "error", err, "projectID", body.ProjectID)
		repoFailure(c, http.StatusInternalServerError, "failed to load project", "")
		return store.Project{}, false
	}
	return p, true
}

func (s *Server) handleRepoClone(c *gin.Context) {
	p, ok := s.ownedProject(c)
	if !ok {
		return
	}

	res, err := s.repos.Clone(c.Request.Context(), p.ID, p.RepositoryURL, credentials(p))
	if err != nil {
		s.log.Error("clone failed", "error", err, "projectID", p.ID)
		repoFailure(c, http.StatusInternalServerError, "failed to clone the repository", err.Error())
		return
	}
	if !res.Success {
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRepoPull(c *gin.Context) {
	p, ok := s.ownedProject(c)
	if !ok {
		return
	}

	res, err := s.repos.Pull(c.Request.Context(), p.ID, credentials(p))
	switch {
	case err != nil:
		s.log.Error("pull failed", "error", err, "projectID", p.ID)
		repoFailure(c, http.StatusInternalServerError, "failed to update the repository", err.Error())
	case res.Success:
		c.JSON(http.StatusOK, res)
	case res.Error == "":
		// Not cloned yet.
		c.JSON(http.StatusConflict, res)
	default:
		c.JSON(http.StatusInternalServerError, res)
	}
}

func (s *Server) handleRepoStatus(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		respondError(c, http.StatusBadRequest, "projectId is required")
		return
	}

	ctx := c.Request.Context()
	if _, err := s.store.GetProject(ctx, userID(c), projectID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, "project not found")
			return
		}
		s.respondInternal(c, "failed to load project", err)
		return
	}

	st, err := s.repos.Status(ctx, projectID)
	if err != nil {
		s.respondInternal(c, "failed to read repository status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}
