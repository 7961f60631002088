package claude

// EventType is the closed vocabulary relayed to clients.
type EventType string

const (
	EventText    EventType = "text"
	EventToolUse EventType = "tool_use"
	EventResult  EventType = "result"
	EventError   EventType = "error"
)

// Fixed user-facing messages for failures that carry no agent output.
const (
	SpawnFailedMessage = "Failed to start the Claude Code CLI. Check that it is installed and on PATH."
	EmptyOutputMessage = "The agent finished without producing a result."
	ParseFailedMessage = "Could not parse a response from the agent."
)

// Event is one item of an invocation's output, serialized as-is into SSE frames.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	ToolName  string    `json:"toolName,omitempty"`
	SessionID string    `json:"sessionId"`
}

// Terminal reports whether e ends an invocation.
func (e Event) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}
