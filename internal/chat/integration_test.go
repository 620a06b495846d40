package chat

import (
	"context"
	"testing"
	"time"

	"github.com/soyeahso/agentdesk/internal/api"
	"github.com/soyeahso/agentdesk/internal/backendtest"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSession_AgainstBackend(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		// Idle keep-alive connections of the REST client.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)

	backend := backendtest.New(t)
	defer backend.Close()
	token, user := backend.AddUser("ada@example.com", "pw", domain.UserRoleUser)
	agent := backend.AddAgent(domain.Agent{Name: "Echo", SystemPrompt: "repeat", OwnerID: user.ID})
	backend.History[agent.ID] = []domain.ConversationMessage{
		{ServerID: 1, Role: domain.RoleHuman, Content: "before", Timestamp: domain.NewTimestamp(time.Now())},
	}
	backend.Script = func(_ domain.Agent, msg string) []stream.Frame {
		return []stream.Frame{
			backendtest.Frame(stream.EventToolStart, stream.ToolStart{Name: "web_search"}),
			backendtest.Frame(stream.EventToken, stream.Token{Token: "Hel"}),
			backendtest.Frame(stream.EventToken, stream.Token{Token: "lo!"}),
			backendtest.Frame(stream.EventStreamEnd, stream.StreamEnd{}),
		}
	}

	client := api.New(api.Options{BaseURL: backend.URL}).WithToken(token)
	s := NewSession(Options{
		AgentID: agent.ID,
		UserID:  user.ID,
		Loader:  client,
		Dial:    StreamDialer(stream.Options{URL: backend.SocketURL(), Token: token}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.LoadConversation(ctx))
	require.NoError(t, s.OpenChannel(ctx))

	var statuses []string
	err := s.Run(ctx, func(u Update) {
		switch {
		case u.Event == stream.EventChatStarted:
			ok, err := s.SendMessage(ctx, "hi")
			require.NoError(t, err)
			require.True(t, ok)
		case u.ToolStatus != "":
			statuses = append(statuses, u.ToolStatus)
		case u.Done:
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)

	snap := s.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Equal(t, []string{"human:before", "human:hi", "ai:Hello!"}, contents(snap.Messages))
	assert.Equal(t, []string{"Using tool: web search..."}, statuses)

	require.NoError(t, s.Close())

	received := backend.Received()
	require.Len(t, received, 2)
	assert.Equal(t, stream.EventStartChat, received[0].Event)
	assert.Equal(t, stream.EventChatMessage, received[1].Event)
}

func TestSession_LoadFailsForUnknownAgent(t *testing.T) {
	backend := backendtest.New(t)
	token, user := backend.AddUser("ada@example.com", "pw", domain.UserRoleUser)

	s := NewSession(Options{
		AgentID: 999,
		UserID:  user.ID,
		Loader:  api.New(api.Options{BaseURL: backend.URL}).WithToken(token),
		Dial:    StreamDialer(stream.Options{URL: backend.SocketURL(), Token: token}),
	})

	err := s.LoadConversation(context.Background())
	var le *domain.LoadError
	require.ErrorAs(t, err, &le)
	assert.True(t, api.IsNotFound(err))
	assert.Equal(t, StateFailed, s.State())
	assert.Empty(t, s.Snapshot().Messages)
}
