package claude

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const eventTimeout = 10 * time.Second

// fakeAgent writes an executable shell script standing in for the CLI.
func fakeAgent(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatalf("write fake agent: %v", err)
	}
	return path
}

func newTestGateway(t *testing.T, binary string) *Gateway {
	t.Helper()
	pm := NewProcessManager(ProcessConfig{Binary: binary, AllowedTools: DefaultAllowedTools}, nil)
	return NewGateway(PromptBuilder{ReposDir: t.TempDir()}, pm, nil)
}

// collect drains events until the channel closes.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var got []Event
	timeout := time.After(eventTimeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("event channel not closed after %s; got %+v", eventTimeout, got)
		}
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}
