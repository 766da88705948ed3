package process

import (
	"encoding/json"
)

// EventType classifies supervisor events.
type EventType string

const (
	// EventOutput carries one stdout JSON object, a raw stdout line or a
	// stderr line.
	EventOutput EventType = "output"
	// EventPermission carries a stdout object whose type is
	// "permission_request".
	EventPermission EventType = "permission"
	// EventExit is emitted exactly once, after every output event, when the
	// agent process ends.
	EventExit EventType = "exit"
)

// Event is a message from the agent process.
type Event struct {
	Type     EventType
	Data     map[string]any
	ExitCode int
}

const permissionRequestType = "permission_request"

// parseStdoutLine turns one stdout line into an event. Lines that are not a
// JSON object are wrapped as {"type":"raw","content":line}.
func parseStdoutLine(line string) Event {
	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil || data == nil {
		return Event{Type: EventOutput, Data: map[string]any{"type": "raw", "content": line}}
	}
	if t, _ := data["type"].(string); t == permissionRequestType {
		return Event{Type: EventPermission, Data: data}
	}
	return Event{Type: EventOutput, Data: data}
}

func stderrEvent(line string) Event {
	return Event{Type: EventOutput, Data: map[string]any{"type": "error", "content": line}}
}
