package server

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/zhubert/plural-gateway/claude"
	pexec "github.com/zhubert/plural-gateway/exec"
	"github.com/zhubert/plural-gateway/git"
	"github.com/zhubert/plural-gateway/metrics"
	"github.com/zhubert/plural-gateway/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	server   *Server
	store    *store.MemoryStore
	executor *pexec.MockExecutor
	reposDir string
	registry *prometheus.Registry
}

// fakeAgent writes an executable shell script standing in for the CLI.
func fakeAgent(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-claude")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	return path
}

func newTestEnv(t *testing.T, agentScript string) *testEnv {
	t.Helper()
	if agentScript == "" {
		agentScript = `echo '{"type":"result","result":"ok"}'`
	}

	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	reposDir := t.TempDir()
	pm := claude.NewProcessManager(claude.ProcessConfig{Binary: fakeAgent(t, agentScript)}, nil)
	gw := claude.NewGateway(claude.PromptBuilder{ReposDir: reposDir}, pm, m)
	st := store.NewMemoryStore()
	mock := pexec.NewMockExecutor()

	srv := New(Deps{
		Gateway:  gw,
		Store:    st,
		Repos:    git.NewRepoServiceWithExecutor(mock, reposDir),
		Metrics:  m,
		Gatherer: reg,
	}, Options{CORSOrigins: []string{"http://localhost:3000"}})

	return &testEnv{server: srv, store: st, executor: mock, reposDir: reposDir, registry: reg}
}

// do sends a request to the router. body is JSON-encoded unless it is a
// string, which is sent verbatim.
func (e *testEnv) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createProject(t *testing.T, user string, p store.Project) store.Project {
	t.Helper()
	p.UserID = user
	if p.Name == "" {
		p.Name = "api"
	}
	if p.RepositoryType == "" {
		p.RepositoryType = store.RepositoryGitHub
	}
	if p.RepositoryURL == "" {
		p.RepositoryURL = "https://github.com/acme/api"
	}
	created, err := e.store.CreateProject(t.Context(), p)
	require.NoError(t, err)
	return created
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// parseSSE splits a text/event-stream body into its decoded data frames.
func parseSSE(t *testing.T, body string) []claude.Event {
	t.Helper()
	var events []claude.Event
	for _, frame := range strings.Split(body, "\n\n") {
		if frame == "" {
			continue
		}
		data, ok := strings.CutPrefix(frame, "data: ")
		require.True(t, ok, "frame without data prefix: %q", frame)
		var ev claude.Event
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []claude.Event) []claude.EventType {
	types := make([]claude.EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}
