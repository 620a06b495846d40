// Package chat is the streaming chat client: a per-agent conversation that
// loads history, talks to the backend over the event channel and folds
// streamed fragments into the message sequence.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/agentdesk/internal/domain"
)

// Phase is where the conversation is in the request/response cycle.
type Phase int

const (
	// PhaseIdle means nothing is in flight; a new message may be sent.
	PhaseIdle Phase = iota
	// PhaseAwaiting means a message was sent and no fragment has arrived yet.
	PhaseAwaiting
	// PhaseStreaming means an AI message is open and receiving fragments.
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaiting:
		return "awaiting"
	case PhaseStreaming:
		return "streaming"
	}
	return "unknown"
}

// Conversation is the message sequence plus an explicit record of which AI
// message, if any, is still open. It is not safe for concurrent use; Session
// serializes access.
type Conversation struct {
	messages   []domain.ConversationMessage
	phase      Phase
	openID     string
	toolStatus string

	newID func() string
	now   func() time.Time
}

// NewConversation seeds a conversation with history. Every message gets a
// client ID; server IDs are kept as metadata.
func NewConversation(history []domain.ConversationMessage) *Conversation {
	return newConversation(history, uuid.NewString, time.Now)
}

func newConversation(history []domain.ConversationMessage, newID func() string, now func() time.Time) *Conversation {
	c := &Conversation{
		messages: make([]domain.ConversationMessage, 0, len(history)),
		newID:    newID,
		now:      now,
	}
	for _, m := range history {
		if m.ID == "" {
			m.ID = newID()
		}
		c.messages = append(c.messages, m)
	}
	return c
}

// Messages returns a copy of the sequence.
func (c *Conversation) Messages() []domain.ConversationMessage {
	out := make([]domain.ConversationMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len is the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Phase reports the current phase.
func (c *Conversation) Phase() Phase { return c.phase }

// OpenID is the ID of the AI message receiving fragments, or "".
func (c *Conversation) OpenID() string { return c.openID }

// ToolStatus is the transient tool notice, or "".
func (c *Conversation) ToolStatus() string { return c.toolStatus }

// InFlight reports whether a response is awaited or streaming.
func (c *Conversation) InFlight() bool { return c.phase != PhaseIdle }

// Submit appends a human message. It refuses blank text and refuses while a
// response is in flight; ok is false in both cases and nothing changes.
func (c *Conversation) Submit(text string) (domain.ConversationMessage, bool) {
	if strings.TrimSpace(text) == "" || c.InFlight() {
		return domain.ConversationMessage{}, false
	}
	msg := domain.ConversationMessage{
		ID:        c.newID(),
		Role:      domain.RoleHuman,
		Content:   text,
		Timestamp: domain.NewTimestamp(c.now()),
	}
	c.messages = append(c.messages, msg)
	c.phase = PhaseAwaiting
	return msg, true
}

// ApplyFragment appends fragment to the open AI message, opening a new one
// if there is none. It returns the updated message.
func (c *Conversation) ApplyFragment(fragment string) domain.ConversationMessage {
	if i := c.openIndex(); i >= 0 {
		c.messages[i].Content += fragment
		c.phase = PhaseStreaming
		return c.messages[i]
	}

	msg := domain.ConversationMessage{
		ID:        c.newID(),
		Role:      domain.RoleAI,
		Content:   fragment,
		Timestamp: domain.NewTimestamp(c.now()),
	}
	c.messages = append(c.messages, msg)
	c.openID = msg.ID
	c.phase = PhaseStreaming
	return msg
}

// ApplyTerminal closes the open AI message and attaches metrics. It never
// creates a message: with nothing open only the phase is reset and ok is false.
func (c *Conversation) ApplyTerminal(m domain.Metrics) (domain.ConversationMessage, bool) {
	i := c.openIndex()
	c.reset()
	if i < 0 {
		return domain.ConversationMessage{}, false
	}
	m.ApplyTo(&c.messages[i])
	return c.messages[i], true
}

// ApplyToolStart records the tool notice and returns the label. The message
// sequence is not touched.
func (c *Conversation) ApplyToolStart(name string) string {
	c.toolStatus = "Using tool: " + domain.ToolDisplayName(name) + "..."
	return c.toolStatus
}

// Abort ends the in-flight response after an error. Content already
// streamed into the open message is kept.
func (c *Conversation) Abort() { c.reset() }

func (c *Conversation) reset() {
	c.phase = PhaseIdle
	c.openID = ""
	c.toolStatus = ""
}

func (c *Conversation) openIndex() int {
	if c.openID == "" {
		return -1
	}
	// The open message is almost always last.
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == c.openID {
			return i
		}
	}
	return -1
}
