package claude

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestStream_RelaysEventsInOrder(t *testing.T) {
	bin := fakeAgent(t, `cat <<'JSON'
{"type":"system","subtype":"init","session_id":"cli-1"}
{"type":"assistant","subtype":"text","content":"Looking at the code."}
{"type":"assistant","subtype":"tool_use","tool_name":"Read"}
not json at all
{"type":"assistant","subtype":"text","content":"Found it."}
{"type":"result","subtype":"success","result":"The login flow uses OAuth."}
JSON`)
	gw := newTestGateway(t, bin)

	sessionID, events := gw.Stream(context.Background(), Request{Message: "How does login work?", SessionID: "session-fixed"})
	if sessionID != "session-fixed" {
		t.Errorf("sessionID = %q, want the supplied id", sessionID)
	}

	got := collect(t, events)
	want := []Event{
		{Type: EventText, Content: "Looking at the code.", SessionID: "session-fixed"},
		{Type: EventToolUse, Content: "Running tool: Read", ToolName: "Read", SessionID: "session-fixed"},
		{Type: EventText, Content: "Found it.", SessionID: "session-fixed"},
		{Type: EventResult, Content: "The login flow uses OAuth.", SessionID: "session-fixed"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events =\n%+v\nwant\n%+v", got, want)
	}
}

func TestStream_GeneratesSessionID(t *testing.T) {
	gw := newTestGateway(t, fakeAgent(t, `echo '{"type":"result","result":"ok"}'`))

	sessionID, events := gw.Stream(context.Background(), Request{Message: "hi"})
	if !strings.HasPrefix(sessionID, "session-") {
		t.Errorf("sessionID = %q, want session- prefix", sessionID)
	}
	for _, ev := range collect(t, events) {
		if ev.SessionID != sessionID {
			t.Errorf("event %+v carries wrong session id", ev)
		}
	}

	other, events := gw.Stream(context.Background(), Request{Message: "hi"})
	collect(t, events)
	if other == sessionID {
		t.Error("generated session ids should be unique")
	}
}

func TestStream_ChunkedOutput(t *testing.T) {
	// Records split mid-line and mid-character across writes, last line unterminated.
	bin := fakeAgent(t, `printf '{"type":"assistant","subtype":"te'
sleep 0.1
printf 'xt","content":"caf\303'
sleep 0.1
printf '\251"}\r\n\n{"type":"result",'
sleep 0.1
printf '"result":"done"}'`)
	gw := newTestGateway(t, bin)

	_, events := gw.Stream(context.Background(), Request{Message: "x"})
	got := collect(t, events)
	if len(got) != 2 || got[0].Content != "café" || got[1].Type != EventResult || got[1].Content != "done" {
		t.Errorf("events = %+v", got)
	}
}

func TestStream_ManyLinesKeepOrder(t *testing.T) {
	bin := fakeAgent(t, `i=1
while [ $i -le 300 ]; do
  echo "{\"type\":\"assistant\",\"subtype\":\"text\",\"content\":\"$i\"}"
  i=$((i+1))
done
echo '{"type":"result","result":"end"}'`)
	gw := newTestGateway(t, bin)

	_, events := gw.Stream(context.Background(), Request{Message: "x"})
	got := collect(t, events)
	if len(got) != 301 {
		t.Fatalf("got %d events, want 301", len(got))
	}
	for i, ev := range got[:300] {
		if ev.Content != strconv.Itoa(i+1) {
			t.Fatalf("event %d = %q, out of order", i, ev.Content)
		}
	}
	if got[300].Type != EventResult {
		t.Errorf("last event = %+v, want result", got[300])
	}
}

func TestStream_NestedMessages(t *testing.T) {
	bin := fakeAgent(t, `cat <<'JSON'
{"type":"assistant","message":{"content":[{"type":"text","text":"Checking"},{"type":"tool_use","name":"mcp__github","input":{}}]}}
{"type":"user","message":{"content":[{"type":"tool_result","content":"..."}]}}
{"type":"result","subtype":"success","result":"Done"}
JSON`)
	_, events := newTestGateway(t, bin).Stream(context.Background(), Request{Message: "x"})

	got := collect(t, events)
	if want := []EventType{EventText, EventToolUse, EventResult}; !reflect.DeepEqual(eventTypes(got), want) {
		t.Fatalf("types = %v, want %v", eventTypes(got), want)
	}
	if got[1].ToolName != "mcp__github" {
		t.Errorf("tool name = %q", got[1].ToolName)
	}
}

func TestStream_NothingAfterResult(t *testing.T) {
	bin := fakeAgent(t, `cat <<'JSON'
{"type":"result","result":"first"}
{"type":"assistant","subtype":"text","content":"late"}
{"type":"result","result":"second"}
JSON
echo "crashed on the way out" >&2
exit 2`)
	_, events := newTestGateway(t, bin).Stream(context.Background(), Request{Message: "x"})

	got := collect(t, events)
	if len(got) != 1 || got[0].Type != EventResult || got[0].Content != "first" {
		t.Errorf("events = %+v, want only the first result", got)
	}
}

func TestStream_EmptySuccessfulRun(t *testing.T) {
	tests := map[string]string{
		"no output":           `exit 0`,
		"only unparseable":    `echo 'warming up'; echo '{"type":"system"}'`,
		"text without result": `echo '{"type":"assistant","subtype":"text","content":"partial"}'`,
		"tool use then exit":  `echo '{"type":"assistant","subtype":"tool_use","tool_name":"Bash"}'`,
	}
	for name, script := range tests {
		t.Run(name, func(t *testing.T) {
			_, events := newTestGateway(t, fakeAgent(t, script)).Stream(context.Background(), Request{Message: "x"})
			got := collect(t, events)
			if len(got) == 0 {
				t.Fatal("no events")
			}
			last := got[len(got)-1]
			if last.Type != EventError || last.Content != EmptyOutputMessage {
				t.Errorf("last event = %+v, want empty-output error", last)
			}
			for _, ev := range got[:len(got)-1] {
				if ev.Terminal() {
					t.Errorf("terminal event before the end: %+v", ev)
				}
			}
		})
	}
}

func TestStream_NonZeroExit(t *testing.T) {
	t.Run("stderr becomes the message", func(t *testing.T) {
		bin := fakeAgent(t, `echo '{"type":"assistant","subtype":"text","content":"hm"}'
echo "Error: invalid API key" >&2
exit 1`)
		_, events := newTestGateway(t, bin).Stream(context.Background(), Request{Message: "x"})
		got := collect(t, events)
		if want := []EventType{EventText, EventError}; !reflect.DeepEqual(eventTypes(got), want) {
			t.Fatalf("types = %v, want %v", eventTypes(got), want)
		}
		if got[1].Content != "Error: invalid API key" {
			t.Errorf("error content = %q", got[1].Content)
		}
	})

	t.Run("exit code when stderr is empty", func(t *testing.T) {
		_, events := newTestGateway(t, fakeAgent(t, `exit 3`)).Stream(context.Background(), Request{Message: "x"})
		got := collect(t, events)
		if len(got) != 1 || got[0].Type != EventError || got[0].Content != "agent exited with code 3" {
			t.Errorf("events = %+v", got)
		}
	})
}

func TestStream_BackgroundChildDoesNotHoldStream(t *testing.T) {
	bin := fakeAgent(t, `echo "permission denied" >&2
sleep 60 &
exit 1`)
	start := time.Now()
	_, events := newTestGateway(t, bin).Stream(context.Background(), Request{Message: "x"})
	got := collect(t, events)

	if len(got) != 1 || got[0].Type != EventError || got[0].Content != "permission denied" {
		t.Fatalf("events = %+v", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("error arrived after %s; the stream waited on the background child", elapsed)
	}
}

func TestStream_KilledBySignal(t *testing.T) {
	_, events := newTestGateway(t, fakeAgent(t, `kill -9 $$`)).Stream(context.Background(), Request{Message: "x"})
	got := collect(t, events)
	if len(got) != 1 || got[0].Type != EventError || !strings.HasPrefix(got[0].Content, "agent was terminated by signal") {
		t.Errorf("events = %+v", got)
	}
}

func TestStream_SpawnFailure(t *testing.T) {
	gw := newTestGateway(t, filepath.Join(t.TempDir(), "missing-claude"))
	sessionID, events := gw.Stream(context.Background(), Request{Message: "x"})

	got := collect(t, events)
	want := []Event{{Type: EventError, Content: SpawnFailedMessage, SessionID: sessionID}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("events = %+v, want %+v", got, want)
	}
}

func TestStream_CancelKillsAgentWithoutError(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "agent.pid")
	bin := fakeAgent(t, `echo $$ > `+pidFile+`
echo '{"type":"assistant","subtype":"text","content":"thinking"}'
sleep 60
echo '{"type":"result","result":"too late"}'`)
	gw := newTestGateway(t, bin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, events := gw.Stream(ctx, Request{Message: "x"})

	select {
	case ev := <-events:
		if ev.Type != EventText {
			t.Fatalf("first event = %+v", ev)
		}
	case <-time.After(eventTimeout):
		t.Fatal("no first event")
	}
	cancel()

	if rest := collect(t, events); len(rest) != 0 {
		t.Errorf("events after cancel = %+v, want none", rest)
	}

	pid, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatal(err)
	}
	if processAlive(t, strings.TrimSpace(string(pid))) {
		t.Error("agent still running after cancel")
	}
}

func TestStream_CancelWhileConsumerIsSlow(t *testing.T) {
	// The agent floods output; the consumer never reads, then cancels.
	bin := fakeAgent(t, `while true; do echo '{"type":"assistant","subtype":"text","content":"x"}'; done`)
	ctx, cancel := context.WithCancel(context.Background())
	_, events := newTestGateway(t, bin).Stream(ctx, Request{Message: "x"})

	time.Sleep(100 * time.Millisecond)
	cancel()

	for _, ev := range collect(t, events) {
		if ev.Type == EventError {
			t.Errorf("unexpected error after cancel: %+v", ev)
		}
	}
}

func TestStream_AlreadyCancelled(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawned")
	gw := newTestGateway(t, fakeAgent(t, `touch `+marker))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, events := gw.Stream(ctx, Request{Message: "x"})

	if got := collect(t, events); len(got) != 0 {
		t.Errorf("events = %+v, want none", got)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("agent should not be spawned for a cancelled request")
	}
}

func TestStream_PromptReachesAgent(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeAgent(t, `for last; do :; done
printf '%s' "$last" > `+argsFile+`
echo '{"type":"result","result":"ok"}'`)
	gw := newTestGateway(t, bin)

	_, events := gw.Stream(context.Background(), Request{
		Message:       "And logout?",
		History:       []HistoryMessage{{Role: RoleUser, Content: "Login?"}, {Role: RoleAssistant, Content: "OAuth."}},
		RepositoryURL: "https://github.com/acme/app",
	})
	collect(t, events)

	got, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	want := "Conversation history:\n\nUser: Login?\n\nAssistant: OAuth.\n\nUser: And logout?\n\nTarget repository: https://github.com/acme/app"
	if string(got) != want {
		t.Errorf("prompt =\n%q\nwant\n%q", got, want)
	}
}
