// Package events names the event bus subjects and event types.
package events

const (
	// SessionStatusChanged carries {"session_id", "status"}.
	SessionStatusChanged = "session.status_changed"
)

// SessionStatusSubject returns the subject status events for sessionID are
// published on.
func SessionStatusSubject(sessionID string) string {
	return "session.status." + sessionID
}

// SessionStatusWildcard matches status events of every session.
const SessionStatusWildcard = "session.status.*"
