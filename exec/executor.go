// Package exec abstracts short-lived command execution so callers such as the
// repository service can be tested against recorded responses instead of a
// real git binary.
package exec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"slices"
	"sync"
)

// CommandExecutor runs a command to completion.
type CommandExecutor interface {
	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)

	// RunWithEnv is Run with extra KEY=VALUE entries appended to the
	// inherited environment. Secrets travel this way, never in args.
	RunWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) (stdout, stderr []byte, err error)

	// Output executes a command and returns stdout.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

func (e *RealExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	return e.RunWithEnv(ctx, dir, nil, name, args...)
}

func (e *RealExecutor) RunWithEnv(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

func (e *RealExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Output()
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
	// Effect, when set, runs before the response is returned. Tests use it
	// to simulate side effects such as git creating a directory.
	Effect func(call MockCall)
}

// CommandMatcher is a function that determines if a command matches.
type CommandMatcher func(dir, name string, args []string) bool

type mockRule struct {
	match    CommandMatcher
	response MockResponse
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Dir  string
	Name string
	Args []string
	Env  []string
}

// MockExecutor returns pre-recorded responses for commands, matching rules in
// registration order. Unmatched commands succeed with empty output.
type MockExecutor struct {
	mu    sync.RWMutex
	rules []mockRule
	calls []MockCall
}

// NewMockExecutor creates a new MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, mockRule{match: match, response: response})
}

// AddExactMatch adds a rule that matches a specific command exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(func(_, n string, a []string) bool {
		return n == name && slices.Equal(a, args)
	}, response)
}

// AddPrefixMatch adds a rule that matches commands starting with specific args.
func (e *MockExecutor) AddPrefixMatch(name string, prefixArgs []string, response MockResponse) {
	e.AddRule(func(_, n string, a []string) bool {
		return n == name && len(a) >= len(prefixArgs) && slices.Equal(a[:len(prefixArgs)], prefixArgs)
	}, response)
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []MockCall {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.calls)
}

func (e *MockExecutor) respond(call MockCall) MockResponse {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	var resp MockResponse
	for _, rule := range e.rules {
		if rule.match(call.Dir, call.Name, call.Args) {
			resp = rule.response
			break
		}
	}
	e.mu.Unlock()

	if resp.Effect != nil {
		resp.Effect(call)
	}
	return resp
}

func (e *MockExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	return e.RunWithEnv(ctx, dir, nil, name, args...)
}

func (e *MockExecutor) RunWithEnv(_ context.Context, dir string, env []string, name string, args ...string) ([]byte, []byte, error) {
	resp := e.respond(MockCall{Dir: dir, Name: name, Args: args, Env: env})
	return resp.Stdout, resp.Stderr, resp.Err
}

func (e *MockExecutor) Output(_ context.Context, dir string, name string, args ...string) ([]byte, error) {
	resp := e.respond(MockCall{Dir: dir, Name: name, Args: args})
	return resp.Stdout, resp.Err
}

var _ CommandExecutor = (*RealExecutor)(nil)
var _ CommandExecutor = (*MockExecutor)(nil)
