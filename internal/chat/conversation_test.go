package chat

import (
	"fmt"
	"testing"
	"time"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("m%d", n)
	}
}

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

func testConversation(history ...domain.ConversationMessage) *Conversation {
	return newConversation(history, seqIDs(), fixedNow)
}

func contents(msgs []domain.ConversationMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func TestNewConversation_AssignsClientIDs(t *testing.T) {
	c := testConversation(
		domain.ConversationMessage{ServerID: 10, Role: domain.RoleHuman, Content: "a"},
		domain.ConversationMessage{ID: "keep", ServerID: 11, Role: domain.RoleAI, Content: "b"},
	)
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, int64(10), msgs[0].ServerID)
	assert.Equal(t, "keep", msgs[1].ID)
	assert.Equal(t, PhaseIdle, c.Phase())
}

func TestNewConversation_DefaultIDsAreUUIDs(t *testing.T) {
	c := NewConversation([]domain.ConversationMessage{{Role: domain.RoleHuman, Content: "x"}})
	assert.Len(t, c.Messages()[0].ID, 36)
}

func TestSubmit(t *testing.T) {
	c := testConversation()
	msg, ok := c.Submit("hi")
	require.True(t, ok)
	assert.Equal(t, domain.RoleHuman, msg.Role)
	assert.Equal(t, "hi", msg.Content)
	assert.Equal(t, fixedNow(), msg.Timestamp.Time)
	assert.Equal(t, PhaseAwaiting, c.Phase())
	assert.True(t, c.InFlight())
}

func TestSubmit_BlankIsNoop(t *testing.T) {
	for _, text := range []string{"", " ", "\n\t "} {
		c := testConversation()
		_, ok := c.Submit(text)
		assert.False(t, ok, "%q", text)
		assert.Zero(t, c.Len())
		assert.Equal(t, PhaseIdle, c.Phase())
	}
}

func TestSubmit_RefusedWhileInFlight(t *testing.T) {
	c := testConversation()
	_, ok := c.Submit("first")
	require.True(t, ok)

	_, ok = c.Submit("second")
	assert.False(t, ok, "awaiting")

	c.ApplyFragment("x")
	_, ok = c.Submit("third")
	assert.False(t, ok, "streaming")

	assert.Equal(t, []string{"human:first", "ai:x"}, contents(c.Messages()))
}

func TestFragments_ConcatenateIntoOneOpenMessage(t *testing.T) {
	c := testConversation()
	c.Submit("hi")
	for _, f := range []string{"The ", "quick ", "", "fox"} {
		c.ApplyFragment(f)
	}

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "The quick fox", msgs[1].Content)
	assert.Equal(t, msgs[1].ID, c.OpenID())
	assert.Equal(t, PhaseStreaming, c.Phase())
	assert.False(t, msgs[1].HasMetrics())
}

func TestScenario_HelloStream(t *testing.T) {
	c := testConversation()
	c.Submit("hi")
	c.ApplyFragment("Hel")
	c.ApplyFragment("lo!")

	rt := 0.8
	closed, ok := c.ApplyTerminal(domain.Metrics{ResponseTimeSeconds: &rt})
	require.True(t, ok)
	assert.Equal(t, "Hello!", closed.Content)

	assert.Equal(t, []string{"human:hi", "ai:Hello!"}, contents(c.Messages()))
	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Empty(t, c.OpenID())
	require.NotNil(t, c.Messages()[1].ResponseTimeSeconds)
}

func TestFragment_WithoutSubmitOpensMessage(t *testing.T) {
	c := testConversation(domain.ConversationMessage{Role: domain.RoleAI, Content: "old"})
	c.ApplyFragment("new")
	assert.Equal(t, []string{"ai:old", "ai:new"}, contents(c.Messages()))
}

func TestFragment_AfterTerminalOpensNewMessage(t *testing.T) {
	c := testConversation()
	c.Submit("q1")
	c.ApplyFragment("a1")
	c.ApplyTerminal(domain.Metrics{})
	c.Submit("q2")
	c.ApplyFragment("a2")

	assert.Equal(t, []string{"human:q1", "ai:a1", "human:q2", "ai:a2"}, contents(c.Messages()))
}

func TestTerminal_NeverCreatesMessage(t *testing.T) {
	c := testConversation()
	c.Submit("hi")

	_, ok := c.ApplyTerminal(domain.Metrics{TokenUsage: &domain.TokenUsage{TotalTokens: 5}})
	assert.False(t, ok)
	assert.Equal(t, []string{"human:hi"}, contents(c.Messages()))
	assert.Equal(t, PhaseIdle, c.Phase())

	_, ok = c.ApplyTerminal(domain.Metrics{})
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestToolStart_LabelOnly(t *testing.T) {
	c := testConversation()
	c.Submit("search it")
	c.ApplyFragment("Let me check")
	before := c.Messages()

	label := c.ApplyToolStart("web_search")
	assert.Equal(t, "Using tool: web search...", label)
	assert.Equal(t, label, c.ToolStatus())
	assert.Equal(t, before, c.Messages())

	c.ApplyTerminal(domain.Metrics{})
	assert.Empty(t, c.ToolStatus())
}

func TestAbort_KeepsPartialContent(t *testing.T) {
	c := testConversation()
	c.Submit("hi")
	c.ApplyFragment("partial")
	c.ApplyToolStart("calculator")
	c.Abort()

	assert.Equal(t, PhaseIdle, c.Phase())
	assert.Empty(t, c.OpenID())
	assert.Empty(t, c.ToolStatus())
	assert.Equal(t, []string{"human:hi", "ai:partial"}, contents(c.Messages()))

	_, ok := c.Submit("again")
	assert.True(t, ok)
}

func TestMessages_ReturnsCopy(t *testing.T) {
	c := testConversation()
	c.Submit("hi")
	msgs := c.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "hi", c.Messages()[0].Content)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "awaiting", PhaseAwaiting.String())
	assert.Equal(t, "streaming", PhaseStreaming.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
