// Package cli checks the external tools the gateway shells out to.
package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	pexec "github.com/zhubert/plural-gateway/exec"
)

// versionTimeout bounds each version check; a wedged binary must not block
// startup.
const versionTimeout = 5 * time.Second

// Prerequisite represents a CLI tool the gateway runs
type Prerequisite struct {
	Name        string // Command name or path (e.g., "claude", "/opt/bin/claude")
	Required    bool   // Whether the gateway can serve without it
	Description string // Human-readable description
	InstallURL  string // URL for installation instructions
}

// DefaultPrerequisites returns the tools the gateway needs. agentBinary is
// the configured agent CLI; empty means "claude".
func DefaultPrerequisites(agentBinary string) []Prerequisite {
	if agentBinary == "" {
		agentBinary = "claude"
	}
	return []Prerequisite{
		{
			Name:        agentBinary,
			Required:    true,
			Description: "Claude Code CLI",
			InstallURL:  "https://claude.ai/code",
		},
		{
			Name:        "git",
			Required:    true,
			Description: "Git, for cloning project repositories",
			InstallURL:  "https://git-scm.com/downloads",
		},
		{
			Name:        "npx",
			Required:    false, // Only needed by the default MCP capability servers
			Description: "Node.js npx (optional, runs MCP servers)",
			InstallURL:  "https://nodejs.org",
		},
	}
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Path to the executable if found
	Version      string // Version string if available
	Error        error
}

// Checker looks tools up on PATH and asks for their versions.
type Checker struct {
	executor pexec.CommandExecutor
	lookPath func(string) (string, error)
}

// NewChecker returns a Checker that inspects the real PATH.
func NewChecker() *Checker {
	return NewCheckerWithExecutor(pexec.NewRealExecutor(), exec.LookPath)
}

// NewCheckerWithExecutor returns a Checker with injected lookup and executor,
// for tests.
func NewCheckerWithExecutor(executor pexec.CommandExecutor, lookPath func(string) (string, error)) *Checker {
	return &Checker{executor: executor, lookPath: lookPath}
}

// Check verifies that a CLI tool is available
func (c *Checker) Check(ctx context.Context, prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path, err := c.lookPath(prereq.Name)
	if err != nil {
		result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
		return result
	}

	result.Found = true
	result.Path = path
	result.Version = c.version(ctx, path)
	return result
}

// CheckAll verifies all prerequisites and returns results
func (c *Checker) CheckAll(ctx context.Context, prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = c.Check(ctx, prereq)
	}
	return results
}

// ValidateRequired returns an error naming every required tool that was not
// found, or nil.
func ValidateRequired(results []CheckResult) error {
	var missing []string
	for _, r := range results {
		if !r.Prerequisite.Required || r.Found {
			continue
		}
		missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
			r.Prerequisite.Name, r.Prerequisite.Description, r.Prerequisite.InstallURL))
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// version returns the first line of "<tool> --version", or "".
func (c *Checker) version(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	output, err := c.executor.Output(ctx, "", path, "--version")
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(output), "\n")
	version := strings.TrimSpace(line)
	// Limit length to avoid overly long version strings
	if len(version) > 100 {
		version = version[:100] + "..."
	}
	return version
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("CLI Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Prerequisite.Name)
		switch {
		case r.Found && r.Version != "":
			fmt.Fprintf(&sb, " (%s)", r.Version)
		case !r.Found && r.Prerequisite.Required:
			sb.WriteString(" [REQUIRED]")
		case !r.Found:
			sb.WriteString(" [optional]")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
