// Package realtime implements the server-push channel of the chat client: a
// websocket carrying JSON envelopes {"event": name, "data": payload}.
//
// A connection is opened per authenticated user (the user id travels in the
// userId query parameter so the server can track presence). Consumers attach
// handlers with Subscribe and release them deterministically through the
// returned Subscription.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/quickchat/internal/logging"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Envelope is one frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw payload of one event.
type Handler func(data json.RawMessage)

// Channel is what the services need from a realtime connection.
type Channel interface {
	Subscribe(event string, h Handler) *Subscription
	Connected() bool
	// Done is closed once the channel has stopped delivering events.
	Done() <-chan struct{}
	Close() error
}

// Conn is a websocket-backed Channel.
type Conn struct {
	ws  *websocket.Conn
	log logging.Logger

	mu     sync.RWMutex
	subs   map[string]map[uint64]Handler
	nextID uint64

	connected atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial opens a channel for userID against baseURL. http(s) schemes are
// rewritten to ws(s).
func Dial(ctx context.Context, baseURL, userID string, log logging.Logger) (*Conn, error) {
	u, err := channelURL(baseURL, userID)
	if err != nil {
		return nil, err
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime channel: %w", err)
	}

	c := &Conn{
		ws:   ws,
		log:  log.With("component", "realtime", "user_id", userID),
		subs: make(map[string]map[uint64]Handler),
		done: make(chan struct{}),
	}
	c.connected.Store(true)

	go c.readLoop()

	return c, nil
}

func channelURL(baseURL, userID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported realtime scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Subscribe registers h for event. Handlers run on the read goroutine in
// arrival order and must not block for long.
func (c *Conn) Subscribe(event string, h Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.subs[event] == nil {
		c.subs[event] = make(map[uint64]Handler)
	}
	c.subs[event][id] = h

	return NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[event], id)
		if len(c.subs[event]) == 0 {
			delete(c.subs, event)
		}
	})
}

func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Done is closed once the read loop has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close drops every subscription, sends a close frame and tears the socket
// down. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.connected.Store(false)

		c.mu.Lock()
		c.subs = make(map[string]map[uint64]Handler)
		c.mu.Unlock()

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))

		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer c.connected.Store(false)

	ctx := context.Background()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.Connected() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn(ctx, "realtime channel dropped", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Warn(ctx, "malformed realtime frame", "error", err)
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Conn) dispatch(ctx context.Context, env Envelope) {
	if !c.Connected() {
		return
	}

	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.subs[env.Event]))
	for _, h := range c.subs[env.Event] {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.log.Debug(ctx, "realtime event without subscribers", "event", env.Event)
		return
	}
	for _, h := range handlers {
		h(env.Data)
	}
}
