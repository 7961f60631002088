package git

import (
	"context"
	"fmt"
	"strings"
)

// Status describes a project's clone as reported by the status endpoint.
type Status struct {
	ProjectID  string `json:"projectId"`
	IsCloned   bool   `json:"isCloned"`
	LocalPath  string `json:"localPath"`
	Branch     string `json:"branch,omitempty"`
	RemoteURL  string `json:"remoteUrl,omitempty"`
	Repository string `json:"repository,omitempty"`
	Message    string `json:"message"`
}

// Status reports whether the project is cloned and, if so, which branch and
// remote the clone tracks. Branch and remote lookups are best effort.
func (s *RepoService) Status(ctx context.Context, projectID string) (Status, error) {
	if err := validProjectID(projectID); err != nil {
		return Status{}, err
	}

	st := Status{
		ProjectID: projectID,
		LocalPath: s.ClonePath(projectID),
		IsCloned:  s.IsCloned(projectID),
	}
	if !st.IsCloned {
		st.Message = "Repository has not been cloned yet."
		return st, nil
	}
	st.Message = "Repository is cloned."

	if branch, err := s.CurrentBranch(ctx, st.LocalPath); err == nil {
		st.Branch = branch
	}
	if url, err := s.RemoteOriginURL(ctx, st.LocalPath); err == nil {
		st.RemoteURL = redactURL(url)
		st.Repository = ExtractOwnerRepo(url)
	}
	return st, nil
}

// RemoteOriginURL returns the URL of the "origin" remote.
func (s *RepoService) RemoteOriginURL(ctx context.Context, repoPath string) (string, error) {
	output, err := s.executor.Output(ctx, repoPath, "git", "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("failed to get remote origin URL: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// CurrentBranch returns the checked-out branch of repoPath.
func (s *RepoService) CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	output, err := s.executor.Output(ctx, repoPath, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ExtractOwnerRepo extracts "owner/repo" from a git remote URL.
// Supports SSH (git@github.com:owner/repo.git) and HTTPS (https://host/owner/repo.git) formats.
// Returns empty string if the URL cannot be parsed.
func ExtractOwnerRepo(remoteURL string) string {
	remoteURL = strings.TrimSpace(remoteURL)
	if remoteURL == "" {
		return ""
	}

	// SSH format: git@github.com:owner/repo.git
	if strings.HasPrefix(remoteURL, "git@") {
		_, path, ok := strings.Cut(remoteURL, ":")
		if !ok {
			return ""
		}
		path = strings.TrimSuffix(path, ".git")
		if strings.Contains(path, "/") {
			return path
		}
		return ""
	}

	for _, prefix := range []string{"https://", "http://"} {
		rest, ok := strings.CutPrefix(remoteURL, prefix)
		if !ok {
			continue
		}
		// Skip the host, which may carry userinfo.
		_, after, ok := strings.Cut(rest, "/")
		if !ok {
			return ""
		}
		path := strings.TrimSuffix(strings.TrimSuffix(after, "/"), ".git")
		if strings.Contains(path, "/") {
			return path
		}
		return ""
	}

	return ""
}
