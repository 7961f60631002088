package claude

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/zhubert/plural-gateway/logger"
	"github.com/zhubert/plural-gateway/process"
)

const (
	// DefaultBinary is the agent CLI looked up on PATH.
	DefaultBinary = "claude"

	// DefaultCredentialEnv carries the caller's repository token to the
	// agent and, through MCP config expansion, to its tool servers.
	DefaultCredentialEnv = "GITHUB_PAT"

	readChunkSize = 32 * 1024

	// maxStderrBytes caps what is kept of stderr for error reporting.
	maxStderrBytes = 64 * 1024
)

// DefaultAllowedTools is the tool allow-list passed to the agent.
var DefaultAllowedTools = []string{"Bash", "Read", "Write", "Edit", "mcp__github", "mcp__backlog"}

// ProcessConfig holds the configuration for starting agent processes.
type ProcessConfig struct {
	Binary               string
	AllowedTools         []string
	CapabilityConfigPath string // passed as --mcp-config when set
	CredentialEnv        string
	WorkingDir           string
}

func (c ProcessConfig) withDefaults() ProcessConfig {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.CredentialEnv == "" {
		c.CredentialEnv = DefaultCredentialEnv
	}
	return c
}

// BuildCommandArgs builds the agent argv. The user prompt is always last,
// after "--", so a prompt starting with "-" is never read as a flag.
func BuildCommandArgs(config ProcessConfig, prompt Prompt) []string {
	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
	}
	if len(config.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(config.AllowedTools, ","))
	}
	if prompt.System != "" {
		args = append(args, "--append-system-prompt", prompt.System)
	}
	if config.CapabilityConfigPath != "" {
		args = append(args, "--mcp-config", config.CapabilityConfigPath)
	}
	return append(args, "--", prompt.User)
}

// ProcessManager spawns agent processes. It holds no per-process state and
// is safe for concurrent use.
type ProcessManager struct {
	config ProcessConfig
	log    *slog.Logger
}

// NewProcessManager creates a ProcessManager with the given configuration.
func NewProcessManager(config ProcessConfig, log *slog.Logger) *ProcessManager {
	if log == nil {
		log = logger.WithComponent("agent")
	}
	return &ProcessManager{
		config: config.withDefaults(),
		log:    log,
	}
}

// Config returns the effective configuration.
func (pm *ProcessManager) Config() ProcessConfig {
	return pm.config
}

// Start spawns one agent process for prompt. credential, when non-empty, is
// placed in the child environment under the configured variable name.
// Cancelling ctx terminates the process. The returned error means nothing
// was spawned.
func (pm *ProcessManager) Start(ctx context.Context, prompt Prompt, credential string) (*Process, error) {
	args := BuildCommandArgs(pm.config, prompt)
	// argv holds the prompt and system preamble; log its shape only.
	pm.log.Debug("starting agent", "binary", pm.config.Binary, "args", len(args), "hasCredential", credential != "")

	cmd := exec.Command(pm.config.Binary, args...)
	cmd.Dir = pm.config.WorkingDir
	if credential != "" {
		cmd.Env = append(os.Environ(), pm.config.CredentialEnv+"="+credential)
	}
	process.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	// The pipes are ours rather than exec's so that Wait returns when the
	// agent exits, even if a tool child it left behind still holds the write
	// ends.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdin.Close()
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("failed to start %s: %w", pm.config.Binary, err)
	}
	// One-shot mode reads the prompt from argv; the agent gets EOF on stdin.
	stdin.Close()

	p := &Process{
		cmd:     cmd,
		log:     pm.log.With("pid", cmd.Process.Pid),
		lines:   make(chan string),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	p.log.Debug("agent started")

	stopOnCancel := context.AfterFunc(ctx, p.Terminate)

	var g errgroup.Group
	g.Go(func() error {
		defer stdoutR.Close()
		return p.pumpStdout(stdoutR)
	})
	g.Go(func() error {
		defer stderrR.Close()
		return p.drainStderr(stderrR)
	})
	go func() {
		defer stopOnCancel()
		p.monitorExit(&g)
	}()

	return p, nil
}

// Process is one running agent. Lines delivers framed stdout lines until
// stdout reaches EOF; Done is closed once the process has been reaped and
// its output fully read.
type Process struct {
	cmd *exec.Cmd
	log *slog.Logger

	lines   chan string
	stopped chan struct{} // closed by Terminate
	done    chan struct{} // closed after cmd.Wait and both readers return

	stopOnce   sync.Once
	terminated atomic.Bool

	// Written before done is closed, read after.
	stderr bytes.Buffer
	exit   process.ExitStatus
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Lines returns stdout lines in order. The channel is closed at EOF.
// After Terminate, remaining output is drained and discarded.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exit returns how the process ended. Valid after Done is closed.
func (p *Process) Exit() process.ExitStatus {
	<-p.done
	return p.exit
}

// Stderr returns captured stderr, trimmed. Valid after Done is closed.
func (p *Process) Stderr() string {
	<-p.done
	return strings.TrimSpace(p.stderr.String())
}

// Terminated reports whether Terminate was called.
func (p *Process) Terminated() bool {
	return p.terminated.Load()
}

// Terminate kills the process group. It does not wait for the exit; use
// Done for that. Safe to call more than once and after the process exited.
func (p *Process) Terminate() {
	p.stopOnce.Do(func() {
		p.terminated.Store(true)
		close(p.stopped)
		if err := process.KillGroup(p.cmd.Process); err != nil {
			p.log.Warn("failed to kill agent process group", "error", err)
			return
		}
		p.log.Debug("agent process group killed")
	})
}

func (p *Process) pumpStdout(r io.Reader) error {
	defer close(p.lines)

	var framer LineFramer
	discard := false
	send := func(line string) {
		if discard {
			return
		}
		select {
		case p.lines <- line:
		case <-p.stopped:
			discard = true
		}
	}

	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				send(line)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.log.Debug("error reading stdout", "error", err)
			}
			break
		}
	}
	if line, ok := framer.Flush(); ok {
		send(line)
	}
	return nil
}

func (p *Process) drainStderr(r io.Reader) error {
	if _, err := io.Copy(&p.stderr, io.LimitReader(r, maxStderrBytes)); err != nil {
		p.log.Debug("error reading stderr", "error", err)
	}
	// Keep the pipe flowing past the cap so the child never blocks on write.
	_, _ = io.Copy(io.Discard, r)
	return nil
}

// monitorExit is the sole caller of cmd.Wait. Once the agent is reaped the
// rest of its process group is killed; anything still running there would
// otherwise hold the pipes open and the readers would never see EOF.
func (p *Process) monitorExit(g *errgroup.Group) {
	err := p.cmd.Wait()
	p.exit = process.StatusOf(p.cmd.ProcessState)
	p.log.Debug("agent exited", "status", p.exit.String(), "error", err)

	if err := process.KillGroup(p.cmd.Process); err != nil {
		p.log.Warn("failed to kill leftover agent processes", "error", err)
	}
	_ = g.Wait()
	if p.stderr.Len() > 0 {
		p.log.Debug("captured stderr", "bytes", p.stderr.Len())
	}
	close(p.done)
}
