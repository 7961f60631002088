package git

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidProjectID is returned for ids that cannot name a directory
// directly under the repos directory.
var ErrInvalidProjectID = errors.New("invalid project id")

// Credentials authenticate an HTTPS clone or pull. They reach git through
// its environment as an Authorization header, never through argv or the
// remote URL, so they are neither visible in ps nor written to .git/config.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) empty() bool {
	return c.Username == "" || c.Password == ""
}

// Result is the outcome of a clone or pull.
type Result struct {
	Success   bool   `json:"success"`
	LocalPath string `json:"localPath"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

func validProjectID(projectID string) error {
	if projectID == "" || projectID == "." || projectID == ".." ||
		strings.ContainsAny(projectID, `/\`) || strings.ContainsRune(projectID, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidProjectID, projectID)
	}
	return nil
}

// ClonePath returns where the project's repository lives on disk.
func (s *RepoService) ClonePath(projectID string) string {
	return filepath.Join(s.reposDir, projectID)
}

// IsCloned reports whether the project's clone exists, judged by its .git
// directory.
func (s *RepoService) IsCloned(projectID string) bool {
	if validProjectID(projectID) != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(s.ClonePath(projectID), ".git"))
	return err == nil && info.IsDir()
}

// EnsureReposDir creates the repos directory and a .gitkeep inside it.
func (s *RepoService) EnsureReposDir() error {
	if err := os.MkdirAll(s.reposDir, 0755); err != nil {
		return fmt.Errorf("failed to create repos directory: %w", err)
	}
	keep := filepath.Join(s.reposDir, ".gitkeep")
	if _, err := os.Stat(keep); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(keep, nil, 0644); err != nil {
			return fmt.Errorf("failed to create .gitkeep: %w", err)
		}
		s.log.Info("created repos directory", "path", s.reposDir)
	}
	return nil
}

// Clone clones repositoryURL into the project's directory. An existing clone
// is left untouched and reported as success. A directory without .git is a
// leftover of an interrupted clone and is removed first.
func (s *RepoService) Clone(ctx context.Context, projectID, repositoryURL string, creds Credentials) (Result, error) {
	if err := validProjectID(projectID); err != nil {
		return Result{}, err
	}
	if repositoryURL == "" {
		return Result{}, fmt.Errorf("repository url is required")
	}
	if err := s.EnsureReposDir(); err != nil {
		return Result{}, err
	}

	localPath := s.ClonePath(projectID)
	log := s.log.With("projectID", projectID)

	if s.IsCloned(projectID) {
		return Result{Success: true, LocalPath: localPath, Message: "Repository is already cloned."}, nil
	}

	if _, err := os.Stat(localPath); err == nil {
		log.Warn("removing incomplete clone directory", "path", localPath)
		if err := os.RemoveAll(localPath); err != nil {
			return Result{}, fmt.Errorf("failed to remove incomplete clone: %w", err)
		}
	}

	log.Info("cloning repository", "url", redactURL(repositoryURL), "path", localPath, "authenticated", !creds.empty())
	_, stderr, err := s.executor.RunWithEnv(ctx, s.reposDir, gitEnv(creds), "git", "clone", "--", repositoryURL, localPath)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		log.Error("clone failed", "error", msg)
		return Result{
			Success:   false,
			LocalPath: localPath,
			Message:   "Failed to clone the repository.",
			Error:     msg,
		}, nil
	}

	log.Info("clone complete", "path", localPath)
	return Result{Success: true, LocalPath: localPath, Message: "Repository cloned successfully."}, nil
}

// Pull updates an existing clone from its upstream.
func (s *RepoService) Pull(ctx context.Context, projectID string, creds Credentials) (Result, error) {
	if err := validProjectID(projectID); err != nil {
		return Result{}, err
	}

	localPath := s.ClonePath(projectID)
	log := s.log.With("projectID", projectID)

	if !s.IsCloned(projectID) {
		return Result{
			Success:   false,
			LocalPath: localPath,
			Message:   "Repository is not cloned yet. Clone it first.",
		}, nil
	}

	log.Info("pulling repository", "path", localPath)
	stdout, stderr, err := s.executor.RunWithEnv(ctx, localPath, gitEnv(creds), "git", "pull")
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		log.Error("pull failed", "error", msg)
		return Result{
			Success:   false,
			LocalPath: localPath,
			Message:   "Failed to update the repository.",
			Error:     msg,
		}, nil
	}

	msg := "Repository updated."
	if strings.Contains(string(stdout), "Already up to date") {
		msg = "Repository is already up to date."
	}
	return Result{Success: true, LocalPath: localPath, Message: msg}, nil
}

// gitEnv disables interactive prompts and, when credentials are present,
// injects a Basic Authorization header through git's GIT_CONFIG_* variables.
func gitEnv(creds Credentials) []string {
	env := []string{"GIT_TERMINAL_PROMPT=0"}
	if creds.empty() {
		return env
	}
	token := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
	return append(env,
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.extraHeader",
		"GIT_CONFIG_VALUE_0=Authorization: Basic "+token,
	)
}

// redactURL strips any userinfo from a URL before it is logged.
func redactURL(raw string) string {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			rest = rest[at+1:]
		}
	}
	return scheme + "://" + rest
}
