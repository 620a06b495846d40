package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/stream"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle of a chat session.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateAwaiting
	StateStreaming
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateAwaiting:
		return "awaiting_response"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Loader fetches what the chat view needs before it can render.
type Loader interface {
	GetAgent(ctx context.Context, id int64) (domain.Agent, error)
	History(ctx context.Context, agentID int64) ([]domain.ConversationMessage, error)
}

// Channel is an open event channel. *stream.Conn implements it.
type Channel interface {
	Events() <-chan stream.Frame
	Emit(event string, data any) error
	Close() error
}

// Dialer opens a Channel.
type Dialer func(ctx context.Context) (Channel, error)

// StreamDialer returns a Dialer for stream.Dial with the given options.
func StreamDialer(opts stream.Options) Dialer {
	return func(ctx context.Context) (Channel, error) {
		return stream.Dial(ctx, opts)
	}
}

// Options configures a Session.
type Options struct {
	AgentID int64
	UserID  int64
	Loader  Loader
	Dial    Dialer
	Hooks   *hooks.Manager
	Logger  *logging.Logger

	// Test seams.
	NewID func() string
	Now   func() time.Time
}

// Update describes what one applied event changed.
type Update struct {
	Event string
	// Fragment is the text of a token event.
	Fragment string
	// Message is the message created or modified, if any.
	Message *domain.ConversationMessage
	// ToolStatus is the label set by a tool_start event.
	ToolStatus string
	// Err is set for error, connect_error and unexpected disconnects.
	Err error
	// Done is set when a stream_end closed a message.
	Done bool
}

// Snapshot is a consistent copy of the session for rendering.
type Snapshot struct {
	State      State
	Agent      domain.Agent
	Messages   []domain.ConversationMessage
	OpenID     string
	ToolStatus string
	Connected  bool
	// Banner is the dismissible channel error, or "".
	Banner string
	// LoadErr is set when loading failed; the view is blocked.
	LoadErr error
}

// Session is one chat view's worth of state: the agent, the conversation
// and the event channel. Events must be applied by a single consumer.
type Session struct {
	opts Options
	log  *logging.Logger

	mu        sync.Mutex
	state     State
	agent     domain.Agent
	conv      *Conversation
	channel   Channel
	connected bool
	banner    string
	loadErr   error
}

// NewSession returns an idle session.
func NewSession(opts Options) *Session {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logging.New(io.Discard, "silent")
	}
	return &Session{
		opts:  opts,
		log:   log.Sub("chat"),
		state: StateIdle,
		conv:  newConversation(nil, opts.NewID, opts.Now),
	}
}

// LoadConversation fetches the agent and its history concurrently. If either
// fails the session moves to StateFailed with an empty sequence and a
// *domain.LoadError is returned.
func (s *Session) LoadConversation(ctx context.Context) error {
	var (
		agent   domain.Agent
		history []domain.ConversationMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := s.opts.Loader.GetAgent(gctx, s.opts.AgentID)
		if err != nil {
			return fmt.Errorf("agent: %w", err)
		}
		agent = a
		return nil
	})
	g.Go(func() error {
		h, err := s.opts.Loader.History(gctx, s.opts.AgentID)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		history = h
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		loadErr := &domain.LoadError{AgentID: s.opts.AgentID, Err: err}
		s.state = StateFailed
		s.loadErr = loadErr
		s.conv = newConversation(nil, s.opts.NewID, s.opts.Now)
		s.log.Warn().Err(err).Int64("agent", s.opts.AgentID).Msg("failed to load agent data")
		return loadErr
	}

	s.agent = agent
	s.conv = newConversation(history, s.opts.NewID, s.opts.Now)
	s.state = StateConnected
	s.log.Debug().Int64("agent", agent.ID).Int("history", len(history)).Msg("conversation loaded")
	return nil
}

// OpenChannel dials the event channel. The start_chat handshake is sent when
// the connect event is applied. Dial failures are surfaced as a banner and
// returned as *domain.ChannelError; the session stays usable for reading.
func (s *Session) OpenChannel(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateConnected || s.channel != nil {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot open channel in state %s", state)
	}
	s.mu.Unlock()

	ch, err := s.opts.Dial(ctx)
	if err != nil {
		cerr := &domain.ChannelError{Message: "Failed to connect to chat server: " + err.Error()}
		s.mu.Lock()
		s.banner = cerr.Message
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("channel dial failed")
		s.opts.Hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventChannelError, s.hookData(map[string]any{"message": cerr.Message}))
		return cerr
	}

	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()

	s.opts.Hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventSessionStart, s.hookData(nil))
	return nil
}

// Events is the receive side of the channel, or nil before OpenChannel.
func (s *Session) Events() <-chan stream.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return nil
	}
	return s.channel.Events()
}

// SendMessage appends text as a human message and emits it. It is a no-op
// returning false when text is blank or a response is in flight. Without a
// live channel it returns false and a *domain.ChannelError.
func (s *Session) SendMessage(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}

	s.mu.Lock()
	if s.state != StateConnected || s.conv.InFlight() {
		s.mu.Unlock()
		return false, nil
	}
	if s.channel == nil || !s.connected {
		cerr := &domain.ChannelError{Message: "Not connected to chat server."}
		s.banner = cerr.Message
		s.mu.Unlock()
		return false, cerr
	}
	msg, ok := s.conv.Submit(text)
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	s.syncState()
	ch := s.channel
	s.mu.Unlock()

	s.opts.Hooks.EmitAsync(context.WithoutCancel(ctx), hooks.EventMessageSending, s.hookData(map[string]any{
		"message_id": msg.ID,
		"content":    msg.Content,
	}))

	if err := ch.Emit(stream.EventChatMessage, stream.ChatMessage{Message: text}); err != nil {
		s.log.Warn().Err(err).Msg("sending chat message failed")
		return false, s.fail("Failed to send message: " + err.Error())
	}
	return true, nil
}

// Apply folds one channel event into the session.
func (s *Session) Apply(f stream.Frame) Update {
	u := Update{Event: f.Event}

	switch f.Event {
	case stream.EventConnect:
		s.onConnect(&u)

	case stream.EventChatStarted:
		s.log.Debug().Int64("agent", s.opts.AgentID).Msg("chat started")

	case stream.EventToken:
		var p stream.Token
		if err := f.Decode(&p); err != nil {
			s.log.Warn().Err(err).Msg("bad token event")
			return u
		}
		s.mu.Lock()
		msg := s.conv.ApplyFragment(p.Token)
		s.syncState()
		s.mu.Unlock()
		u.Fragment = p.Token
		u.Message = &msg

	case stream.EventToolStart:
		var p stream.ToolStart
		if err := f.Decode(&p); err != nil {
			s.log.Warn().Err(err).Msg("bad tool_start event")
			return u
		}
		s.mu.Lock()
		u.ToolStatus = s.conv.ApplyToolStart(p.Name)
		s.mu.Unlock()
		s.opts.Hooks.EmitAsync(context.Background(), hooks.EventToolStart, s.hookData(map[string]any{"tool": p.Name}))

	case stream.EventStreamEnd:
		var p stream.StreamEnd
		if err := f.Decode(&p); err != nil {
			s.log.Warn().Err(err).Msg("bad stream_end metrics, closing without them")
			p = stream.StreamEnd{}
		}
		s.mu.Lock()
		msg, ok := s.conv.ApplyTerminal(p.Metrics)
		s.syncState()
		s.mu.Unlock()
		if ok {
			u.Message = &msg
			u.Done = true
			data := map[string]any{"message_id": msg.ID, "content": msg.Content}
			if msg.ResponseTimeSeconds != nil {
				data["response_time_seconds"] = *msg.ResponseTimeSeconds
			}
			if msg.TokenUsage != nil {
				data["total_tokens"] = msg.TokenUsage.TotalTokens
			}
			s.opts.Hooks.EmitAsync(context.Background(), hooks.EventStreamEnd, s.hookData(data))
		} else {
			s.log.Debug().Msg("stream_end with no open message")
		}

	case stream.EventError, stream.EventConnectError:
		var p stream.ErrorPayload
		_ = f.Decode(&p)
		message := p.Message
		if message == "" {
			message = "unknown error"
		}
		if f.Event == stream.EventConnectError {
			message = "Failed to connect to chat server: " + message
		}
		u.Err = s.fail(message)

	case stream.EventDisconnect:
		var p stream.Disconnect
		_ = f.Decode(&p)
		s.mu.Lock()
		s.connected = false
		inFlight := s.conv.InFlight()
		s.mu.Unlock()
		s.log.Debug().Str("reason", p.Reason).Msg("channel disconnected")
		if inFlight {
			u.Err = s.fail("Disconnected from chat server: " + p.Reason)
		}

	default:
		s.log.Debug().Str("event", f.Event).Msg("ignoring unknown event")
	}

	return u
}

func (s *Session) onConnect(u *Update) {
	s.mu.Lock()
	s.connected = true
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return
	}
	err := ch.Emit(stream.EventStartChat, stream.StartChat{AgentID: s.opts.AgentID, UserID: s.opts.UserID})
	if err != nil {
		u.Err = s.fail("Failed to start chat: " + err.Error())
	}
}

// fail records a channel error: banner set, flags reset, state back to Connected.
func (s *Session) fail(message string) error {
	s.mu.Lock()
	s.banner = message
	s.conv.Abort()
	s.syncState()
	s.mu.Unlock()

	s.log.Warn().Str("error", message).Msg("channel error")
	s.opts.Hooks.EmitAsync(context.Background(), hooks.EventChannelError, s.hookData(map[string]any{"message": message}))
	return &domain.ChannelError{Message: message}
}

// syncState derives the state from the conversation phase. Caller holds mu.
func (s *Session) syncState() {
	if s.state == StateClosed || s.state == StateFailed || s.state == StateIdle {
		return
	}
	switch s.conv.Phase() {
	case PhaseAwaiting:
		s.state = StateAwaiting
	case PhaseStreaming:
		s.state = StateStreaming
	default:
		s.state = StateConnected
	}
}

// DismissError clears the banner.
func (s *Session) DismissError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = ""
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot copies the session for rendering.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:      s.state,
		Agent:      s.agent,
		Messages:   s.conv.Messages(),
		OpenID:     s.conv.OpenID(),
		ToolStatus: s.conv.ToolStatus(),
		Connected:  s.connected,
		Banner:     s.banner,
		LoadErr:    s.loadErr,
	}
}

// Run applies events until the channel closes or ctx ends, calling fn after
// each one. fn may be nil.
func (s *Session) Run(ctx context.Context, fn func(Update)) error {
	events := s.Events()
	if events == nil {
		return errors.New("channel not open")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-events:
			if !ok {
				return nil
			}
			u := s.Apply(f)
			if fn != nil {
				fn(u)
			}
		}
	}
}

// Close tears the channel down and ends the session. Hooks still running
// are waited for, then session_end handlers run to completion. Hooks never
// see the cancellation of the context an operation was called with.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	ch := s.channel
	s.channel = nil
	s.connected = false
	s.state = StateClosed
	s.mu.Unlock()

	var err error
	if ch != nil {
		err = ch.Close()
	}
	s.opts.Hooks.Wait()
	if ch != nil {
		s.opts.Hooks.Emit(context.Background(), hooks.EventSessionEnd, s.hookData(nil))
	}
	return err
}

func (s *Session) hookData(extra map[string]any) map[string]any {
	data := map[string]any{
		"agent_id": s.opts.AgentID,
		"user_id":  s.opts.UserID,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
