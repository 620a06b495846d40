package domain

import (
	"strings"
	"time"
)

// MessageRole identifies who authored a conversation message.
type MessageRole string

const (
	RoleHuman MessageRole = "human"
	RoleAI    MessageRole = "ai"
)

// ConversationMessage is one entry of an agent conversation.
//
// ID is the canonical identity: it is assigned by the client to every message
// in the sequence, including ones loaded from history. ServerID is whatever
// numeric id the backend reported for persisted messages and is zero for
// messages created during the live session.
type ConversationMessage struct {
	ID                  string      `json:"client_id,omitempty"`
	ServerID            int64       `json:"id,omitempty"`
	AgentID             int64       `json:"agent_id,omitempty"`
	UserID              int64       `json:"user_id,omitempty"`
	Role                MessageRole `json:"role"`
	Content             string      `json:"content"`
	Timestamp           Timestamp   `json:"timestamp"`
	ResponseTimeSeconds *float64    `json:"response_time_seconds,omitempty"`
	TokenUsage          *TokenUsage `json:"token_usage,omitempty"`
	ToolCalls           []ToolCall  `json:"tool_calls,omitempty"`
}

// HasMetrics reports whether a terminal event (or history) annotated the message.
func (m ConversationMessage) HasMetrics() bool {
	return m.ResponseTimeSeconds != nil || m.TokenUsage != nil || len(m.ToolCalls) > 0
}

// TokenUsage is the token accounting attached to an AI reply.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ToolCall records one tool invocation made while producing a reply.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Metrics is the payload of a stream_end event.
type Metrics struct {
	ResponseTimeSeconds *float64    `json:"response_time_seconds,omitempty"`
	TokenUsage          *TokenUsage `json:"token_usage,omitempty"`
	ToolCalls           []ToolCall  `json:"tool_calls,omitempty"`
}

// ApplyTo copies every metric present in m onto msg.
func (m Metrics) ApplyTo(msg *ConversationMessage) {
	if m.ResponseTimeSeconds != nil {
		v := *m.ResponseTimeSeconds
		msg.ResponseTimeSeconds = &v
	}
	if m.TokenUsage != nil {
		u := *m.TokenUsage
		msg.TokenUsage = &u
	}
	if len(m.ToolCalls) > 0 {
		msg.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
}

// ToolDisplayName turns a tool identifier such as "web_search" into "web search".
func ToolDisplayName(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

// Timestamp accepts both RFC 3339 and the zone-less ISO form the backend
// emits for naive datetimes ("2024-05-01T10:00:00.123456"). Zone-less
// values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateTime,
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var firstErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
