package git

import (
	"log/slog"

	pexec "github.com/zhubert/plural-gateway/exec"
	"github.com/zhubert/plural-gateway/logger"
)

// RepoService provides repository operations with explicit dependency injection.
// Each RepoService holds its own executor and repos directory, so tests can
// swap in a mock executor and a temporary directory.
type RepoService struct {
	executor pexec.CommandExecutor
	reposDir string
	log      *slog.Logger
}

// NewRepoService creates a RepoService that runs the real git binary and
// clones into reposDir.
func NewRepoService(reposDir string) *RepoService {
	return NewRepoServiceWithExecutor(pexec.NewRealExecutor(), reposDir)
}

// NewRepoServiceWithExecutor creates a RepoService with a custom executor.
func NewRepoServiceWithExecutor(exec pexec.CommandExecutor, reposDir string) *RepoService {
	return &RepoService{
		executor: exec,
		reposDir: reposDir,
		log:      logger.WithComponent("git"),
	}
}

// ReposDir returns the directory project clones live under.
func (s *RepoService) ReposDir() string {
	return s.reposDir
}
