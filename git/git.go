// Package git manages the local clones of project repositories that the agent
// reads while answering questions.
//
// The package is organized into focused modules:
//   - service.go: RepoService struct and constructor
//   - clone.go: clone, pull, and on-disk layout of project repositories
//   - remote.go: remote URL inspection and owner/repo extraction
package git
