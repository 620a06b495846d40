package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/version"
	"golang.org/x/oauth2"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("stream: connection closed")

const (
	writeWait    = 10 * time.Second
	maxFrameSize = 4 * 1024 * 1024
)

// Options configures Dial.
type Options struct {
	// URL is the ws:// or wss:// endpoint; see SocketURL.
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	// Buffer is the capacity of the Events channel.
	Buffer int
	Logger *logging.Logger
}

// Conn is one event channel. Events arrive on Events() in the order the
// server sent them; the channel is closed when the socket ends.
type Conn struct {
	socket *websocket.Conn
	events chan Frame
	done   chan struct{}
	wg     sync.WaitGroup
	log    *logging.Logger

	mu     sync.Mutex
	closed bool
}

// SocketURL derives the WebSocket endpoint from the REST base URL.
func SocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u.Path += path
	return u.String(), nil
}

// Dial opens the socket. On success the first value on Events() is a
// connect frame.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	log := opts.Logger
	if log == nil {
		log = logging.New(io.Discard, "silent")
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	if opts.Token != "" {
		tok := &oauth2.Token{AccessToken: opts.Token, TokenType: "bearer"}
		header.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	socket, resp, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %s: %w", opts.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dialing %s: %w", opts.URL, err)
	}
	socket.SetReadLimit(maxFrameSize)

	c := &Conn{
		socket: socket,
		events: make(chan Frame, buffer),
		done:   make(chan struct{}),
		log:    log.Sub("stream"),
	}
	c.events <- Frame{Event: EventConnect}

	c.wg.Add(1)
	go c.readPump()

	c.log.Debug().Str("url", opts.URL).Msg("channel connected")
	return c, nil
}

// Events returns the receive side of the channel.
func (c *Conn) Events() <-chan Frame { return c.events }

// Emit sends one event. Safe for concurrent use.
func (c *Conn) Emit(event string, data any) error {
	f, err := NewFrame(event, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.socket.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.socket.WriteJSON(f); err != nil {
		return fmt.Errorf("sending %s: %w", event, err)
	}
	c.log.Debug().Str("event", event).Msg("emitted")
	return nil
}

// Close tears the socket down and waits for the read pump to exit.
// Calling Close more than once is fine.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.socket.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.socket.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.socket.Close()
	c.mu.Unlock()

	c.wg.Wait()
	c.log.Debug().Msg("channel closed")
	return err
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) readPump() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		_, msg, err := c.socket.ReadMessage()
		if err != nil {
			reason := "io server disconnect"
			switch {
			case c.isClosed():
				reason = "io client disconnect"
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.log.Debug().Msg("server closed channel")
			default:
				c.log.Warn().Err(err).Msg("read error")
				reason = err.Error()
			}
			f, _ := NewFrame(EventDisconnect, Disconnect{Reason: reason})
			c.deliver(f)
			return
		}

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			c.log.Warn().Err(err).Int("bytes", len(msg)).Msg("dropping malformed frame")
			continue
		}
		c.deliver(f)
	}
}

// deliver hands f to the consumer unless the connection is being closed.
func (c *Conn) deliver(f Frame) {
	select {
	case c.events <- f:
	case <-c.done:
	}
}
