package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/quickchat/internal/client/client"
	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/client/notify"
	"github.com/dmitrijs2005/quickchat/internal/common"
	"github.com/dmitrijs2005/quickchat/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	svc    SessionService
	api    *fakeClient
	tokens *memTokens
	dialer *fakeDialer
	rec    *notify.Recorder
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		api:    newFakeClient(),
		tokens: &memTokens{},
		dialer: &fakeDialer{},
		rec:    &notify.Recorder{},
	}
	f.svc = NewSessionService(f.api, f.tokens, f.dialer, f.rec, logging.Nop())
	return f
}

func (f *sessionFixture) login(t *testing.T) {
	t.Helper()
	_, err := f.svc.Login(context.Background(), models.AuthModeLogin, models.Credentials{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	f.rec.Reset()
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

func TestSession_InitWithoutTokenDoesNotProbe(t *testing.T) {
	f := newSessionFixture(t)

	require.NoError(t, f.svc.Init(context.Background()))

	assert.Equal(t, 0, f.api.count("CheckAuth"))
	assert.Equal(t, models.StateAnonymous, f.svc.State())
	assert.Nil(t, f.svc.CurrentUser())
	assert.Empty(t, f.dialer.dials())
}

func TestSession_InitRestoresSessionAndOpensChannel(t *testing.T) {
	f := newSessionFixture(t)
	f.tokens.token = signedToken(t, time.Now().Add(time.Hour))

	require.NoError(t, f.svc.Init(context.Background()))

	snap := f.svc.Snapshot()
	require.True(t, snap.Authenticated())
	assert.Equal(t, "u1", snap.User.ID)
	assert.Equal(t, []string{"u1"}, f.dialer.dials())
	require.NotNil(t, snap.Channel)
	assert.Equal(t, 1, f.dialer.last().subscribers(common.EventOnlineUsers))
	assert.Equal(t, 0, f.rec.Count(notify.KindError))
}

func TestSession_InitDropsExpiredToken(t *testing.T) {
	f := newSessionFixture(t)
	f.tokens.token = signedToken(t, time.Now().Add(-time.Minute))

	require.NoError(t, f.svc.Init(context.Background()))

	assert.Equal(t, 0, f.api.count("CheckAuth"))
	assert.Empty(t, f.tokens.current())
	assert.Equal(t, models.StateAnonymous, f.svc.State())
}

func TestSession_InitLoadError(t *testing.T) {
	f := newSessionFixture(t)
	f.tokens.loadErr = errBoom

	err := f.svc.Init(context.Background())
	require.ErrorIs(t, err, errBoom)
}

func TestSession_CheckAuthSilentRejectionIsNotShown(t *testing.T) {
	f := newSessionFixture(t)
	f.tokens.token = "opaque"
	f.api.checkAuth = func(context.Context) (*models.User, error) {
		return nil, fmt.Errorf("%w: %w", client.ErrSilent, &client.APIError{Status: 401, Message: "jwt expired"})
	}

	require.NoError(t, f.svc.Init(context.Background()))

	assert.Empty(t, f.rec.All())
	assert.Equal(t, models.StateAnonymous, f.svc.State())
	assert.Empty(t, f.svc.Snapshot().Token)
	assert.Empty(t, f.tokens.current())
	assert.Empty(t, f.dialer.dials())
}

func TestSession_CheckAuthFailureIsNotified(t *testing.T) {
	f := newSessionFixture(t)
	f.tokens.token = "opaque"
	f.api.checkAuth = func(context.Context) (*models.User, error) {
		return nil, &client.APIError{Status: 500, Message: "db down"}
	}

	err := f.svc.Init(context.Background())
	require.Error(t, err)

	assert.Equal(t, notify.Notification{Kind: notify.KindError, Message: "db down"}, f.rec.Last())
	assert.Equal(t, "opaque", f.tokens.current())
	assert.Equal(t, models.StateAnonymous, f.svc.State())
}

func TestSession_LoginStoresTokenXorNotifiesError(t *testing.T) {
	tests := []struct {
		name      string
		authErr   error
		wantToken string
		wantKind  notify.Kind
	}{
		{name: "success", wantToken: "tok", wantKind: notify.KindSuccess},
		{name: "rejected", authErr: &client.APIError{Status: 200, Message: "Invalid credentials"}, wantKind: notify.KindError},
		{name: "network", authErr: fmt.Errorf("%w: dial tcp", client.ErrUnavailable), wantKind: notify.KindError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			if tt.authErr != nil {
				f.api.authenticate = func(context.Context, models.AuthMode, models.Credentials) (*client.AuthResult, error) {
					return nil, tt.authErr
				}
			}

			res, err := f.svc.Login(context.Background(), models.AuthModeLogin, models.Credentials{Email: "a@b.com"})

			assert.Equal(t, tt.wantToken, f.tokens.current())
			require.Len(t, f.rec.All(), 1)
			assert.Equal(t, tt.wantKind, f.rec.Last().Kind)

			if tt.authErr != nil {
				require.Error(t, err)
				assert.Nil(t, res)
				assert.Equal(t, tt.authErr.Error(), f.rec.Last().Message)
				assert.Equal(t, models.StateAnonymous, f.svc.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "u1", res.User.ID)
			assert.Equal(t, "Logged in successfully", f.rec.Last().Message)
			assert.True(t, f.svc.Snapshot().Authenticated())
			assert.Equal(t, []string{"u1"}, f.dialer.dials())
		})
	}
}

func TestSession_SignupRedirectsWithoutSession(t *testing.T) {
	f := newSessionFixture(t)

	res, err := f.svc.Login(context.Background(), models.AuthModeSignup, models.Credentials{Email: "a@b.com", Password: "pw", FullName: "A"})
	require.NoError(t, err)

	assert.Equal(t, "/verify-email?email=a%40b.com", res.Redirect)
	assert.Nil(t, res.User)
	assert.Empty(t, f.tokens.current())
	assert.Equal(t, 0, f.tokens.saves)
	assert.Equal(t, models.StateAnonymous, f.svc.State())
	assert.Equal(t, notify.Notification{Kind: notify.KindSuccess, Message: "Account created"}, f.rec.Last())
	assert.Empty(t, f.dialer.dials())
}

func TestSession_LoginRejectsUnknownMode(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.svc.Login(context.Background(), models.AuthMode("reset"), models.Credentials{})
	require.Error(t, err)
	assert.Equal(t, 0, f.api.count("Authenticate"))
	assert.Equal(t, notify.KindError, f.rec.Last().Kind)
}

func TestSession_LoginTokenPersistFailureKeepsSession(t *testing.T) {
	f := newSessionFixture(t)
	f.tokens.saveErr = errBoom

	_, err := f.svc.Login(context.Background(), models.AuthModeLogin, models.Credentials{})
	require.NoError(t, err)

	assert.True(t, f.svc.Snapshot().Authenticated())
	assert.Equal(t, 0, f.rec.Count(notify.KindError))
}

func TestSession_ConcurrentLoginIsBusy(t *testing.T) {
	f := newSessionFixture(t)
	release := make(chan struct{})
	f.api.authenticate = func(context.Context, models.AuthMode, models.Credentials) (*client.AuthResult, error) {
		<-release
		return &client.AuthResult{Token: "tok", User: &models.User{ID: "u1"}}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Login(context.Background(), models.AuthModeLogin, models.Credentials{})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.api.count("Authenticate") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, models.StateAuthenticating, f.svc.State())

	_, err := f.svc.Login(context.Background(), models.AuthModeLogin, models.Credentials{})
	require.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, models.StateAuthenticated, f.svc.State())
}

func TestSession_LogoutDiscardsInFlightLogin(t *testing.T) {
	f := newSessionFixture(t)
	release := make(chan struct{})
	f.api.authenticate = func(context.Context, models.AuthMode, models.Credentials) (*client.AuthResult, error) {
		<-release
		return &client.AuthResult{Token: "late", User: &models.User{ID: "u1"}}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Login(context.Background(), models.AuthModeLogin, models.Credentials{})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.api.count("Authenticate") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.svc.Logout(context.Background()))
	close(release)

	require.ErrorIs(t, <-done, ErrSessionChanged)
	assert.Equal(t, models.StateAnonymous, f.svc.State())
	assert.Empty(t, f.tokens.current())
	assert.Empty(t, f.dialer.dials())
}

func TestSession_LogoutClearsEverything(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	ch := f.dialer.last()
	ch.deliver(t, common.EventOnlineUsers, []string{"u2"})
	require.True(t, f.svc.IsOnline("u2"))

	require.NoError(t, f.svc.Logout(context.Background()))

	snap := f.svc.Snapshot()
	assert.Equal(t, models.StateAnonymous, snap.State)
	assert.Empty(t, snap.Token)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.OnlineUsers)
	assert.Nil(t, snap.Channel)
	assert.Empty(t, f.tokens.current())
	assert.Equal(t, 1, ch.closeCount())
	assert.Equal(t, 0, ch.subscribers(common.EventOnlineUsers))
	assert.Equal(t, notify.Notification{Kind: notify.KindSuccess, Message: "Logged out successfully"}, f.rec.Last())
}

func TestSession_LogoutPersistFailureStillEndsSession(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	f.tokens.clearErr = errBoom

	err := f.svc.Logout(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, models.StateAnonymous, f.svc.State())
	assert.Equal(t, notify.KindError, f.rec.Last().Kind)
}

func TestSession_OnlineUsersReplacedWholesale(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	ch := f.dialer.last()

	ch.deliver(t, common.EventOnlineUsers, []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, f.svc.OnlineUsers())

	ch.deliver(t, common.EventOnlineUsers, []string{"c"})
	assert.Equal(t, []string{"c"}, f.svc.OnlineUsers())
	assert.False(t, f.svc.IsOnline("a"))
	assert.True(t, f.svc.IsOnline("c"))

	ch.deliver(t, common.EventOnlineUsers, []string{})
	assert.Empty(t, f.svc.OnlineUsers())
}

func TestSession_ConnectSocketIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	user := f.svc.CurrentUser()

	require.NoError(t, f.svc.ConnectSocket(context.Background(), user))
	require.NoError(t, f.svc.ConnectSocket(context.Background(), nil))

	assert.Equal(t, []string{"u1"}, f.dialer.dials())
	assert.Equal(t, 1, f.dialer.last().subscribers(common.EventOnlineUsers))
}

func TestSession_ConnectSocketReconnectsAfterDrop(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	first := f.dialer.last()
	require.NoError(t, first.Close())

	require.NoError(t, f.svc.ConnectSocket(context.Background(), f.svc.CurrentUser()))

	assert.Equal(t, []string{"u1", "u1"}, f.dialer.dials())
	assert.Equal(t, 0, first.subscribers(common.EventOnlineUsers))
	assert.Same(t, f.dialer.last(), f.svc.Snapshot().Channel)
}

func TestSession_DialFailureDoesNotFailLogin(t *testing.T) {
	f := newSessionFixture(t)
	f.dialer.err = errBoom

	_, err := f.svc.Login(context.Background(), models.AuthModeLogin, models.Credentials{})
	require.NoError(t, err)

	snap := f.svc.Snapshot()
	assert.True(t, snap.Authenticated())
	assert.Nil(t, snap.Channel)
}

func TestSession_LoginAsAnotherUserReplacesChannel(t *testing.T) {
	f := newSessionFixture(t)
	f.login(t)
	first := f.dialer.last()

	f.api.authenticate = func(context.Context, models.AuthMode, models.Credentials) (*client.AuthResult, error) {
		return &client.AuthResult{Token: "tok2", User: &models.User{ID: "u2"}}, nil
	}
	_, err := f.svc.Login(context.Background(), models.AuthModeLogin, models.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, 1, first.closeCount())
	assert.Equal(t, []string{"u1", "u2"}, f.dialer.dials())
	assert.Equal(t, "u2", f.svc.CurrentUser().ID)
	assert.Equal(t, "tok2", f.tokens.current())
}

func TestSession_UpdateProfile(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		f := newSessionFixture(t)
		err := f.svc.UpdateProfile(context.Background(), models.ProfileUpdate{Bio: "x"})
		require.ErrorIs(t, err, ErrNotAuthenticated)
		assert.Equal(t, 0, f.api.count("UpdateProfile"))
		assert.Equal(t, notify.KindError, f.rec.Last().Kind)
	})

	t.Run("success", func(t *testing.T) {
		f := newSessionFixture(t)
		f.login(t)

		require.NoError(t, f.svc.UpdateProfile(context.Background(), models.ProfileUpdate{FullName: "Alice B", Bio: "hi"}))
		assert.Equal(t, "hi", f.svc.CurrentUser().Bio)
		assert.Equal(t, notify.Notification{Kind: notify.KindSuccess, Message: "Profile updated successfully"}, f.rec.Last())
	})

	t.Run("failure", func(t *testing.T) {
		f := newSessionFixture(t)
		f.login(t)
		f.api.updateProfile = func(context.Context, models.ProfileUpdate) (*models.User, error) {
			return nil, &client.APIError{Status: 400, Message: "bio too long"}
		}

		require.Error(t, f.svc.UpdateProfile(context.Background(), models.ProfileUpdate{Bio: "x"}))
		assert.Equal(t, notify.Notification{Kind: notify.KindError, Message: "bio too long"}, f.rec.Last())
		assert.Empty(t, f.svc.CurrentUser().Bio)
	})
}

func TestSession_OnChange(t *testing.T) {
	f := newSessionFixture(t)

	var calls atomic.Int32
	var last atomic.Value
	stop := f.svc.OnChange(func(s Snapshot) {
		calls.Add(1)
		last.Store(s.State)
	})

	f.login(t)
	require.Positive(t, calls.Load())
	assert.Equal(t, models.StateAuthenticated, last.Load())

	stop()
	before := calls.Load()
	require.NoError(t, f.svc.Logout(context.Background()))
	assert.Equal(t, before, calls.Load())
}
