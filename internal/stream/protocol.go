// Package stream is the chat event channel: a WebSocket carrying JSON
// frames of the form {"event": name, "data": {...}}.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// Events received from the backend. connect, disconnect and connect_error
// are produced locally by Conn, never sent by the server.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
	EventChatStarted  = "chat_started"
	EventToken        = "token"
	EventToolStart    = "tool_start"
	EventStreamEnd    = "stream_end"
	EventError        = "error"
)

// Events sent to the backend.
const (
	EventStartChat   = "start_chat"
	EventChatMessage = "chat_message"
)

// Frame is the envelope for every message on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame. A nil data yields no payload.
func NewFrame(event string, data any) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 || string(f.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", f.Event, err)
	}
	return nil
}

// StartChat binds the socket to one agent and user.
type StartChat struct {
	AgentID int64 `json:"agent_id"`
	UserID  int64 `json:"user_id"`
}

// ChatMessage carries one user turn.
type ChatMessage struct {
	Message string `json:"message"`
}

// Token is one response fragment.
type Token struct {
	Token string `json:"token"`
}

// ToolStart announces a tool invocation.
type ToolStart struct {
	Name string `json:"name"`
}

// StreamEnd closes the current response.
type StreamEnd struct {
	Metrics domain.Metrics `json:"metrics"`
}

// ErrorPayload is the body of error and connect_error events.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Disconnect is the body of the locally produced disconnect event.
type Disconnect struct {
	Reason string `json:"reason"`
}
