package claude

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// streamMessage is the wire shape of one stream-json line. Two dialects
// exist: older CLI builds emit flat records
//
//	{"type":"assistant","subtype":"text","content":"..."}
//	{"type":"assistant","subtype":"tool_use","tool_name":"Read"}
//
// while current builds nest Anthropic content blocks under message.content.
type streamMessage struct {
	Type     string          `json:"type"`    // "system", "assistant", "user", "result"
	Subtype  string          `json:"subtype"` // "text", "tool_use", "init", "success", ...
	Content  json.RawMessage `json:"content,omitempty"`
	ToolName string          `json:"tool_name,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Message  *struct {
		Content []struct {
			Type string `json:"type"` // "text", "tool_use", "thinking"
			Text string `json:"text,omitempty"`
			Name string `json:"name,omitempty"`
		} `json:"content"`
	} `json:"message,omitempty"`
}

// record is the decoded form of a stream-json line. The set of
// implementations is closed; unrecognizedRecord absorbs everything the
// gateway does not relay.
type record interface {
	isRecord()
}

type textRecord struct{ text string }

type toolUseRecord struct{ name string }

type resultRecord struct{ text string }

// blocksRecord is a nested assistant message; each block is a text or
// tool_use record.
type blocksRecord struct{ blocks []record }

type unrecognizedRecord struct{ kind string }

func (textRecord) isRecord()         {}
func (toolUseRecord) isRecord()      {}
func (resultRecord) isRecord()       {}
func (blocksRecord) isRecord()       {}
func (unrecognizedRecord) isRecord() {}

var errNotJSON = errors.New("not a JSON object")

// decodeRecord parses one line into a record.
func decodeRecord(line string) (record, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return nil, errNotJSON
	}

	var msg streamMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return nil, fmt.Errorf("decode stream message: %w", err)
	}

	switch msg.Type {
	case "assistant":
		switch msg.Subtype {
		case "text":
			if text := rawString(msg.Content); text != "" {
				return textRecord{text: text}, nil
			}
		case "tool_use":
			if msg.ToolName != "" {
				return toolUseRecord{name: msg.ToolName}, nil
			}
		case "":
			if msg.Message != nil {
				var blocks []record
				for _, block := range msg.Message.Content {
					switch {
					case block.Type == "text" && block.Text != "":
						blocks = append(blocks, textRecord{text: block.Text})
					case block.Type == "tool_use" && block.Name != "":
						blocks = append(blocks, toolUseRecord{name: block.Name})
					}
				}
				if len(blocks) > 0 {
					return blocksRecord{blocks: blocks}, nil
				}
			}
		}
	case "result":
		if text := rawString(msg.Result); text != "" {
			return resultRecord{text: text}, nil
		}
	}
	return unrecognizedRecord{kind: msg.Type}, nil
}

// rawString returns raw as a string when it is a JSON string, else "".
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Classify maps one stdout line to the events it carries. Malformed and
// unrecognized lines yield no events.
func Classify(line string) []Event {
	events, _ := classify(line)
	return events
}

// classify is Classify with the decode error kept for diagnostics.
func classify(line string) ([]Event, error) {
	rec, err := decodeRecord(line)
	if err != nil {
		return nil, err
	}
	return recordEvents(rec, nil), nil
}

func recordEvents(rec record, events []Event) []Event {
	switch r := rec.(type) {
	case textRecord:
		events = append(events, Event{Type: EventText, Content: r.text})
	case toolUseRecord:
		events = append(events, Event{
			Type:     EventToolUse,
			Content:  "Running tool: " + r.name,
			ToolName: r.name,
		})
	case resultRecord:
		events = append(events, Event{Type: EventResult, Content: r.text})
	case blocksRecord:
		for _, block := range r.blocks {
			events = recordEvents(block, events)
		}
	case unrecognizedRecord:
	}
	return events
}
