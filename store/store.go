// Package store persists projects and chat sessions for the gateway's HTTP API.
//
// Every operation is scoped by the calling user's id; a record owned by
// another user behaves exactly like a missing one and yields ErrNotFound.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist for the calling user.
var ErrNotFound = errors.New("not found")

// ErrInvalid wraps every validation failure so callers can map it to a
// client error.
var ErrInvalid = errors.New("invalid")

// RepositoryType names where a project's repository is hosted.
type RepositoryType string

const (
	RepositoryGitHub  RepositoryType = "github"
	RepositoryBacklog RepositoryType = "backlog"
)

// Valid reports whether t is a known repository host.
func (t RepositoryType) Valid() bool {
	return t == RepositoryGitHub || t == RepositoryBacklog
}

// Project is a repository a user chats about, together with the credentials
// needed to clone it.
type Project struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"userId"`
	Name               string         `json:"name"`
	Description        string         `json:"description"`
	RepositoryType     RepositoryType `json:"repositoryType"`
	RepositoryURL      string         `json:"repositoryUrl"`
	GitHubToken        string         `json:"githubToken,omitempty"`
	BacklogDomain      string         `json:"backlogDomain,omitempty"`
	BacklogProjectKey  string         `json:"backlogProjectKey,omitempty"`
	BacklogAPIKey      string         `json:"backlogApiKey,omitempty"`
	BacklogEmail       string         `json:"backlogEmail,omitempty"`
	BacklogGitPassword string         `json:"backlogGitPassword,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Validate checks the fields a project cannot be saved without.
func (p Project) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: project name is required", ErrInvalid)
	}
	if p.RepositoryURL == "" {
		return fmt.Errorf("%w: repository url is required", ErrInvalid)
	}
	if !p.RepositoryType.Valid() {
		return fmt.Errorf("%w: unknown repository type %q", ErrInvalid, p.RepositoryType)
	}
	return nil
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a stored session.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the saved conversation for one (user, project) pair.
type Session struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MessageInput is a message as submitted by a client, before it has an id.
type MessageInput struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func validateMessages(msgs []MessageInput) error {
	for i, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalid, i, m.Role)
		}
	}
	return nil
}

// Store is the persistence boundary used by the HTTP server.
type Store interface {
	ListProjects(ctx context.Context, userID string) ([]Project, error)
	GetProject(ctx context.Context, userID, id string) (Project, error)
	CreateProject(ctx context.Context, p Project) (Project, error)
	UpdateProject(ctx context.Context, p Project) (Project, error)
	DeleteProject(ctx context.Context, userID, id string) error

	ListSessions(ctx context.Context, userID string) ([]Session, error)
	SessionForProject(ctx context.Context, userID, projectID string) (Session, error)
	// SaveSession replaces the message list of the user's session for the
	// project, creating the session when none exists. created reports which.
	SaveSession(ctx context.Context, userID, projectID string, msgs []MessageInput) (s Session, created bool, err error)
	ReplaceMessages(ctx context.Context, userID, sessionID string, msgs []MessageInput) (Session, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	DeleteProjectSessions(ctx context.Context, userID, projectID string) error

	Close()
}

func newID() string {
	return uuid.NewString()
}
