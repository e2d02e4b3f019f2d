// Package services contains the application services of the chat client:
// the session (authentication + realtime channel), the conversation state
// and the email verification flow.
//
// This file defines the session service.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/quickchat/internal/client/client"
	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/client/notify"
	"github.com/dmitrijs2005/quickchat/internal/client/otp"
	"github.com/dmitrijs2005/quickchat/internal/client/realtime"
	"github.com/dmitrijs2005/quickchat/internal/logging"
)

// TokenStore persists the session token between runs.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// ChannelDialer opens a realtime channel scoped to a user.
type ChannelDialer interface {
	Dial(ctx context.Context, userID string) (realtime.Channel, error)
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	State       models.SessionState
	Token       string
	User        *models.User
	OnlineUsers []string
	Channel     realtime.Channel
}

// Authenticated reports whether the snapshot carries a usable session.
func (s Snapshot) Authenticated() bool {
	return s.State == models.StateAuthenticated && s.User != nil && s.Token != ""
}

// LoginResult describes a successful login or signup. For signup Redirect
// points at the email verification step and no session is established.
type LoginResult struct {
	User     *models.User
	Redirect string
}

// SessionService owns the authentication token, the current user, the set
// of online users and the realtime channel.
//
// Contract:
//   - Init: restore the persisted token and, if present, verify it.
//   - CheckAuth: verify the current token and open the channel.
//   - Login: login or signup; exactly one of {token stored, error
//     notification} results from a login call.
//   - Logout: clear token, user, online users and close the channel.
//   - UpdateProfile: change profile fields of the current user.
//   - ConnectSocket: open the channel once per user.
//
// Every failure is turned into a user notification here (silent failures
// excepted) and also returned for callers that need it.
type SessionService interface {
	Init(ctx context.Context) error
	CheckAuth(ctx context.Context) error
	Login(ctx context.Context, mode models.AuthMode, creds models.Credentials) (*LoginResult, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, fields models.ProfileUpdate) error
	ConnectSocket(ctx context.Context, user *models.User) error

	Snapshot() Snapshot
	State() models.SessionState
	CurrentUser() *models.User
	OnlineUsers() []string
	IsOnline(userID string) bool

	// OnChange registers fn to run after every state change. The returned
	// function removes it.
	OnChange(fn func(Snapshot)) func()
}

type sessionService struct {
	api      client.Client
	tokens   TokenStore
	dialer   ChannelDialer
	notifier notify.Notifier
	log      logging.Logger
	now      func() time.Time

	mu       sync.RWMutex
	state    models.SessionState
	gen      uint64
	token    string
	user     *models.User
	online   []string
	channel  realtime.Channel
	presence *realtime.Subscription
	dialing  bool

	listenersMu  sync.Mutex
	listeners    map[uint64]func(Snapshot)
	nextListener uint64
}

// NewSessionService constructs a SessionService in the anonymous state.
func NewSessionService(api client.Client, tokens TokenStore, dialer ChannelDialer, n notify.Notifier, log logging.Logger) SessionService {
	return &sessionService{
		api:       api,
		tokens:    tokens,
		dialer:    dialer,
		notifier:  n,
		log:       log.With("component", "session"),
		now:       time.Now,
		listeners: make(map[uint64]func(Snapshot)),
	}
}

// Init loads the persisted token. Without one the session stays anonymous
// and the backend is never probed. A JWT that has already expired is
// dropped without a probe.
func (s *sessionService) Init(ctx context.Context) error {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if token == "" {
		s.log.Debug(ctx, "no saved session")
		return nil
	}

	if tokenExpired(token, s.now()) {
		s.log.Warn(ctx, "saved token expired, discarding")
		if err := s.tokens.Clear(ctx); err != nil {
			s.log.Error(ctx, "failed to discard expired token", "error", err)
		}
		return nil
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := s.CheckAuth(ctx); err != nil && !client.IsSilent(err) {
		return err
	}
	return nil
}

func (s *sessionService) CheckAuth(ctx context.Context) error {
	gen, err := s.begin()
	if err != nil {
		return err
	}

	user, err := s.api.CheckAuth(ctx)
	if err != nil {
		s.fail(gen)
		if client.IsUnauthorized(err) {
			s.dropToken(ctx, gen)
		}
		if client.IsSilent(err) {
			s.log.Debug(ctx, "auth check rejected", "error", err)
		} else {
			s.log.Warn(ctx, "auth check failed", "error", err)
			s.notifier.Error(err.Error())
		}
		return err
	}

	if !s.commit(gen, "", user) {
		return ErrSessionChanged
	}
	s.log.Info(ctx, "session restored", "user_id", user.ID)
	s.emit()

	if err := s.ConnectSocket(ctx, user); err != nil {
		s.log.Warn(ctx, "realtime channel unavailable", "error", err)
	}
	return nil
}

func (s *sessionService) Login(ctx context.Context, mode models.AuthMode, creds models.Credentials) (*LoginResult, error) {
	if !mode.Valid() {
		err := fmt.Errorf("unknown auth mode %q", mode)
		s.notifier.Error(err.Error())
		return nil, err
	}

	gen, err := s.begin()
	if err != nil {
		s.notifier.Error(err.Error())
		return nil, err
	}

	res, err := s.api.Authenticate(ctx, mode, creds)
	if err != nil {
		s.fail(gen)
		s.log.Warn(ctx, "authentication failed", "mode", mode, "error", err)
		s.notifier.Error(err.Error())
		return nil, err
	}

	if mode == models.AuthModeSignup {
		s.fail(gen)
		s.notifier.Success(orDefault(res.Message, "Account created, check your email for the verification code"))
		return &LoginResult{Redirect: otp.VerifyEmailPath(creds.Email)}, nil
	}

	if res.Token == "" || res.User == nil {
		s.fail(gen)
		err := errors.New("login response carried no session")
		s.notifier.Error(err.Error())
		return nil, err
	}

	if !s.commit(gen, res.Token, res.User) {
		s.notifier.Error(ErrSessionChanged.Error())
		return nil, ErrSessionChanged
	}
	s.notifier.Success(orDefault(res.Message, "Logged in successfully"))
	s.log.Info(ctx, "logged in", "user_id", res.User.ID)

	if err := s.tokens.Save(ctx, res.Token); err != nil {
		s.log.Error(ctx, "failed to persist token", "error", err)
	}
	s.emit()

	if err := s.ConnectSocket(ctx, res.User); err != nil {
		s.log.Warn(ctx, "realtime channel unavailable", "error", err)
	}
	return &LoginResult{User: res.User}, nil
}

// Logout works from any state. A login or auth check still in flight is
// invalidated and its result discarded.
func (s *sessionService) Logout(ctx context.Context) error {
	persistErr := s.tokens.Clear(ctx)

	s.mu.Lock()
	s.gen++
	ch, presence := s.channel, s.presence
	s.token = ""
	s.user = nil
	s.online = nil
	s.channel = nil
	s.presence = nil
	s.state = models.StateAnonymous
	s.mu.Unlock()

	presence.Close()
	if ch != nil {
		if err := ch.Close(); err != nil {
			s.log.Warn(ctx, "closing realtime channel", "error", err)
		}
	}
	s.emit()

	if persistErr != nil {
		s.log.Error(ctx, "failed to clear saved token", "error", persistErr)
		s.notifier.Error("Logged out, but the saved session could not be removed")
		return persistErr
	}
	s.log.Info(ctx, "logged out")
	s.notifier.Success("Logged out successfully")
	return nil
}

func (s *sessionService) UpdateProfile(ctx context.Context, fields models.ProfileUpdate) error {
	s.mu.RLock()
	gen, current := s.gen, s.user
	s.mu.RUnlock()

	if current == nil {
		s.notifier.Error(ErrNotAuthenticated.Error())
		return ErrNotAuthenticated
	}

	user, err := s.api.UpdateProfile(ctx, fields)
	if err != nil {
		s.notifier.Error(err.Error())
		return err
	}

	s.mu.Lock()
	if s.gen != gen || s.user == nil || user == nil || s.user.ID != user.ID {
		s.mu.Unlock()
		return ErrSessionChanged
	}
	s.user = user
	s.mu.Unlock()

	s.notifier.Success("Profile updated successfully")
	s.emit()
	return nil
}

// ConnectSocket is a no-op for a nil user or when a channel is already
// connected (or being dialed).
func (s *sessionService) ConnectSocket(ctx context.Context, user *models.User) error {
	if user == nil {
		return nil
	}

	s.mu.Lock()
	if s.dialing || (s.channel != nil && s.channel.Connected()) {
		s.mu.Unlock()
		return nil
	}
	s.dialing = true
	gen := s.gen
	s.mu.Unlock()

	ch, err := s.dialer.Dial(ctx, user.ID)

	s.mu.Lock()
	s.dialing = false
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("connect realtime channel: %w", err)
	}
	if s.gen != gen || s.user == nil || s.user.ID != user.ID {
		s.mu.Unlock()
		_ = ch.Close()
		return ErrSessionChanged
	}
	stale, stalePresence := s.channel, s.presence
	s.channel = ch
	s.presence = realtime.OnOnlineUsers(ch, s.setOnline)
	s.mu.Unlock()

	stalePresence.Close()
	if stale != nil {
		_ = stale.Close()
	}

	s.log.Info(ctx, "realtime channel connected", "user_id", user.ID)
	s.emit()
	return nil
}

// setOnline replaces the online set wholesale.
func (s *sessionService) setOnline(ids []string) {
	s.mu.Lock()
	if s.channel == nil {
		s.mu.Unlock()
		return
	}
	s.online = append([]string(nil), ids...)
	s.mu.Unlock()
	s.emit()
}

// begin moves the session into Authenticating and returns the generation the
// outcome must match.
func (s *sessionService) begin() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == models.StateAuthenticating {
		return 0, ErrSessionBusy
	}
	s.gen++
	s.state = models.StateAuthenticating
	return s.gen, nil
}

// fail leaves Authenticating: back to Authenticated if a user is still
// held (e.g. a failed re-login), otherwise Anonymous.
func (s *sessionService) fail(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.user != nil {
		s.state = models.StateAuthenticated
	} else {
		s.state = models.StateAnonymous
	}
	s.mu.Unlock()
	s.emit()
}

// commit installs the authenticated identity. token == "" keeps the current
// token. A different user than before invalidates the old channel.
func (s *sessionService) commit(gen uint64, token string, user *models.User) bool {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return false
	}

	var stale realtime.Channel
	var stalePresence *realtime.Subscription
	if s.user != nil && s.user.ID != user.ID {
		stale, stalePresence = s.channel, s.presence
		s.channel, s.presence, s.online = nil, nil, nil
	}
	if token != "" {
		s.token = token
	}
	s.user = user
	s.state = models.StateAuthenticated
	s.mu.Unlock()

	stalePresence.Close()
	if stale != nil {
		_ = stale.Close()
	}
	return true
}

func (s *sessionService) dropToken(ctx context.Context, gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.token = ""
	s.mu.Unlock()

	if err := s.tokens.Clear(ctx); err != nil {
		s.log.Error(ctx, "failed to clear rejected token", "error", err)
	}
}

func (s *sessionService) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *sessionService) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:       s.state,
		Token:       s.token,
		OnlineUsers: append([]string(nil), s.online...),
		Channel:     s.channel,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *sessionService) State() models.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *sessionService) CurrentUser() *models.User {
	return s.Snapshot().User
}

func (s *sessionService) OnlineUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.online...)
}

func (s *sessionService) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.online {
		if id == userID {
			return true
		}
	}
	return false
}

func (s *sessionService) OnChange(fn func(Snapshot)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextListener++
	id := s.nextListener
	s.listeners[id] = fn

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

// emit runs listeners outside the state lock so they may call back into the
// session.
func (s *sessionService) emit() {
	snap := s.Snapshot()

	s.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func orDefault(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}
