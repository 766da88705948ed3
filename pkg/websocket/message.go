// Package websocket defines the JSON messages exchanged over the session and
// terminal sockets.
package websocket

import (
	"encoding/json"
	"fmt"
)

// MessageType is the "type" discriminator of every message.
type MessageType string

// Client to server.
const (
	TypeUserInput          MessageType = "user_input"
	TypePermissionResponse MessageType = "permission_response"
	TypeInput              MessageType = "input"
	TypeResize             MessageType = "resize"
)

// Server to client.
const (
	TypeSessionStatus     MessageType = "session_status"
	TypeAssistantOutput   MessageType = "assistant_output"
	TypePermissionRequest MessageType = "permission_request"
	TypeOutput            MessageType = "output"
	TypeExit              MessageType = "exit"
	TypeError             MessageType = "error"
	TypeGitStatus         MessageType = "git_status"
)

// StatusConnected is sent to a subscriber right after it joins a session.
const StatusConnected = "connected"

// Message is a server to client message. Only the fields of its type are
// set.
type Message struct {
	Type MessageType `json:"type"`

	Status       string         `json:"status,omitempty"`
	Content      map[string]any `json:"content,omitempty"`
	PermissionID string         `json:"permission_id,omitempty"`
	Description  string         `json:"description,omitempty"`
	Data         string         `json:"data,omitempty"`
	Code         *int           `json:"code,omitempty"`
	Message      string         `json:"message,omitempty"`

	HasUncommittedChanges *bool `json:"has_uncommitted_changes,omitempty"`
	ChangedFilesCount     *int  `json:"changed_files_count,omitempty"`
}

// Marshal encodes m as JSON.
func (m *Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func NewSessionStatus(status string) *Message {
	return &Message{Type: TypeSessionStatus, Status: status}
}

func NewAssistantOutput(content map[string]any) *Message {
	return &Message{Type: TypeAssistantOutput, Content: content}
}

func NewPermissionRequest(permissionID, description string) *Message {
	return &Message{Type: TypePermissionRequest, PermissionID: permissionID, Description: description}
}

// NewOutput wraps terminal output. Invalid UTF-8 is replaced when encoded.
func NewOutput(data []byte) *Message {
	return &Message{Type: TypeOutput, Data: string(data)}
}

func NewExit(code int) *Message {
	return &Message{Type: TypeExit, Code: &code}
}

func NewError(message string) *Message {
	return &Message{Type: TypeError, Message: message}
}

func NewGitStatus(hasUncommittedChanges bool, changedFilesCount int) *Message {
	return &Message{
		Type:                  TypeGitStatus,
		HasUncommittedChanges: &hasUncommittedChanges,
		ChangedFilesCount:     &changedFilesCount,
	}
}

// Inbound is a client to server message.
type Inbound struct {
	Type MessageType `json:"type"`

	// user_input
	Content string `json:"content"`

	// permission_response
	PermissionID string `json:"permission_id"`
	Approved     bool   `json:"approved"`

	// input
	Data string `json:"data"`

	// resize
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// ParseInbound decodes a client message. A message without a type is
// rejected.
func ParseInbound(raw []byte) (*Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("invalid message: missing type")
	}
	return &msg, nil
}
