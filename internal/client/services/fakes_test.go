package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/quickchat/internal/client/client"
	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/client/realtime"
	"github.com/stretchr/testify/require"
)

// ---- fake client ----

// fakeClient implements client.Client. Each endpoint is driven by an
// optional hook; without one it answers with a harmless default.
type fakeClient struct {
	mu    sync.Mutex
	calls map[string]int

	checkAuth     func(ctx context.Context) (*models.User, error)
	authenticate  func(ctx context.Context, mode models.AuthMode, creds models.Credentials) (*client.AuthResult, error)
	verifyOTP     func(ctx context.Context, email, otp string) (string, error)
	resendOTP     func(ctx context.Context, email string) (string, error)
	updateProfile func(ctx context.Context, fields models.ProfileUpdate) (*models.User, error)
	users         func(ctx context.Context) (*client.Roster, error)
	messages      func(ctx context.Context, userID string) ([]models.Message, error)
	send          func(ctx context.Context, userID string, msg models.OutgoingMessage) (*models.Message, error)
	markSeen      func(ctx context.Context, messageID string) error

	seen []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{calls: make(map[string]int)}
}

func (f *fakeClient) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeClient) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeClient) seenIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func (f *fakeClient) CheckAuth(ctx context.Context) (*models.User, error) {
	f.record("CheckAuth")
	if f.checkAuth != nil {
		return f.checkAuth(ctx)
	}
	return &models.User{ID: "u1", FullName: "Alice"}, nil
}

func (f *fakeClient) Authenticate(ctx context.Context, mode models.AuthMode, creds models.Credentials) (*client.AuthResult, error) {
	f.record("Authenticate")
	if f.authenticate != nil {
		return f.authenticate(ctx, mode, creds)
	}
	if mode == models.AuthModeSignup {
		return &client.AuthResult{Message: "Account created"}, nil
	}
	return &client.AuthResult{Token: "tok", User: &models.User{ID: "u1", Email: creds.Email}}, nil
}

func (f *fakeClient) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	f.record("VerifyOTP")
	if f.verifyOTP != nil {
		return f.verifyOTP(ctx, email, otp)
	}
	return "", nil
}

func (f *fakeClient) ResendOTP(ctx context.Context, email string) (string, error) {
	f.record("ResendOTP")
	if f.resendOTP != nil {
		return f.resendOTP(ctx, email)
	}
	return "", nil
}

func (f *fakeClient) UpdateProfile(ctx context.Context, fields models.ProfileUpdate) (*models.User, error) {
	f.record("UpdateProfile")
	if f.updateProfile != nil {
		return f.updateProfile(ctx, fields)
	}
	return &models.User{ID: "u1", FullName: fields.FullName, Bio: fields.Bio}, nil
}

func (f *fakeClient) Users(ctx context.Context) (*client.Roster, error) {
	f.record("Users")
	if f.users != nil {
		return f.users(ctx)
	}
	return &client.Roster{Unseen: map[string]int{}}, nil
}

func (f *fakeClient) Messages(ctx context.Context, userID string) ([]models.Message, error) {
	f.record("Messages")
	if f.messages != nil {
		return f.messages(ctx, userID)
	}
	return nil, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, userID string, msg models.OutgoingMessage) (*models.Message, error) {
	f.record("SendMessage")
	if f.send != nil {
		return f.send(ctx, userID, msg)
	}
	return &models.Message{ID: "sent-1", SenderID: "u1", ReceiverID: userID, Text: msg.Text}, nil
}

func (f *fakeClient) MarkSeen(ctx context.Context, messageID string) error {
	f.record("MarkSeen")
	f.mu.Lock()
	f.seen = append(f.seen, messageID)
	f.mu.Unlock()
	if f.markSeen != nil {
		return f.markSeen(ctx, messageID)
	}
	return nil
}

// ---- fake realtime ----

type fakeChannel struct {
	mu        sync.Mutex
	userID    string
	connected bool
	closed    int
	subs      map[string]map[int]realtime.Handler
	next      int
	done      chan struct{}
}

func newFakeChannel(userID string) *fakeChannel {
	return &fakeChannel{
		userID:    userID,
		connected: true,
		subs:      make(map[string]map[int]realtime.Handler),
		done:      make(chan struct{}),
	}
}

func (c *fakeChannel) Subscribe(event string, h realtime.Handler) *realtime.Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	id := c.next
	if c.subs[event] == nil {
		c.subs[event] = make(map[int]realtime.Handler)
	}
	c.subs[event][id] = h
	return realtime.NewSubscription(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[event], id)
	})
}

func (c *fakeChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Done() <-chan struct{} {
	return c.done
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		close(c.done)
	}
	c.connected = false
	c.closed++
	return nil
}

func (c *fakeChannel) subscribers(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs[event])
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// handlers copies the current handlers for event, the way the real
// connection does before dispatching.
func (c *fakeChannel) handlers(event string) []realtime.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	hs := make([]realtime.Handler, 0, len(c.subs[event]))
	for _, h := range c.subs[event] {
		hs = append(hs, h)
	}
	return hs
}

// deliver runs every handler for event synchronously.
func (c *fakeChannel) deliver(t *testing.T, event string, payload any) {
	t.Helper()
	fire(t, c.handlers(event), payload)
}

func fire(t *testing.T, hs []realtime.Handler, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	for _, h := range hs {
		h(data)
	}
}

type fakeDialer struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	dialed   []string
	channels []*fakeChannel
}

func (d *fakeDialer) Dial(ctx context.Context, userID string) (realtime.Channel, error) {
	if d.gate != nil {
		<-d.gate
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, userID)
	if d.err != nil {
		return nil, d.err
	}
	ch := newFakeChannel(userID)
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dialed...)
}

func (d *fakeDialer) last() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.channels) == 0 {
		return nil
	}
	return d.channels[len(d.channels)-1]
}

// ---- fake token store ----

type memTokens struct {
	mu       sync.Mutex
	token    string
	saves    int
	clears   int
	loadErr  error
	saveErr  error
	clearErr error
}

func (m *memTokens) Load(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.loadErr
}

func (m *memTokens) Save(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.token = token
	return nil
}

func (m *memTokens) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clearErr != nil {
		return m.clearErr
	}
	m.token = ""
	return nil
}

func (m *memTokens) current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// ---- fake session view ----

type fakeSession struct {
	mu        sync.Mutex
	snap      Snapshot
	listeners map[int]func(Snapshot)
	next      int
}

func newFakeSession(snap Snapshot) *fakeSession {
	return &fakeSession{snap: snap, listeners: make(map[int]func(Snapshot))}
}

func (s *fakeSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *fakeSession) OnChange(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *fakeSession) set(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *fakeSession) listenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func authed(userID string, ch realtime.Channel) Snapshot {
	return Snapshot{
		State:   models.StateAuthenticated,
		Token:   "tok",
		User:    &models.User{ID: userID},
		Channel: ch,
	}
}

var errBoom = errors.New("boom")
