package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/quickchat/internal/client/client"
	"github.com/dmitrijs2005/quickchat/internal/client/config"
	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/client/notify"
	"github.com/dmitrijs2005/quickchat/internal/client/realtime"
	"github.com/dmitrijs2005/quickchat/internal/client/services"
	"github.com/dmitrijs2005/quickchat/internal/client/tokenstore"
	"github.com/dmitrijs2005/quickchat/internal/logging"
)

// Mode reports whether the realtime channel is up.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// App is the application context: every long-lived collaborator of the
// client, created once in NewApp and torn down in Close.
type App struct {
	config   *config.Config
	db       *sql.DB
	log      logging.Logger
	notifier notify.Notifier

	session services.SessionService
	chat    services.ChatService
	verify  services.VerificationService

	reader *bufio.Reader
	out    io.Writer

	// pendingEmail is the address awaiting OTP verification after signup.
	pendingEmail string

	modeMu sync.Mutex
	mode   Mode
}

// NewApp opens the local database and wires the services. Input is read
// from in, everything user-facing goes to out.
func NewApp(ctx context.Context, c *config.Config, in io.Reader, out io.Writer, log logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DBPath)
	if err != nil {
		log.Error(ctx, "error initializing database", "path", c.DBPath, "error", err)
		return nil, fmt.Errorf("init database: %w", err)
	}

	tokens := tokenstore.New(db)
	api := client.NewHTTPClient(c.ServerURL, c.RequestTimeout, tokens, log)
	dialer := realtime.Dialer{URL: c.ChannelURL(), Log: log}
	console := notify.NewConsole(out)

	session := services.NewSessionService(api, tokens, dialer, console, log)
	chat := services.NewChatService(api, session, console, log)
	verify := services.NewVerificationService(api, console, log)

	a := &App{
		config:   c,
		db:       db,
		log:      log,
		notifier: console,
		session:  session,
		chat:     chat,
		verify:   verify,
		reader:   bufio.NewReader(in),
		out:      out,
	}
	chat.OnMessage(a.onIncoming)
	return a, nil
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	if a.mode != mode {
		a.mode = mode
		a.log.Info(context.Background(), "realtime channel mode changed", "mode", mode)
	}
}

func (a *App) Mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.mode
}

// Run restores the previous session, starts the channel watcher and blocks
// in the REPL until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	printlnFn("Welcome to QuickChat (type 'help' for commands)")

	if err := a.session.Init(ctx); err != nil {
		a.log.Warn(ctx, "session restore failed", "error", err)
	}
	if a.isLoggedIn() {
		_ = a.chat.GetUsers(ctx)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartChannelWatcher(watchCtx, a.config.ChannelCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}

// Close stops the conversation state, drops the realtime channel and closes
// the database. The saved session is kept for the next start.
func (a *App) Close(ctx context.Context) {
	a.chat.Close()
	if ch := a.session.Snapshot().Channel; ch != nil {
		if err := ch.Close(); err != nil {
			a.log.Warn(ctx, "closing realtime channel", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Error(ctx, "closing database", "error", err)
	}
}

func (a *App) isLoggedIn() bool {
	return a.session.Snapshot().Authenticated()
}

// getStatus renders the prompt status: "(<email> <state> <mode>)".
func (a *App) getStatus() string {
	snap := a.session.Snapshot()
	if snap.User == nil {
		return fmt.Sprintf("(%s)", snap.State)
	}
	s := fmt.Sprintf("%s %s", snap.User.Email, snap.State)
	if mode := a.Mode(); mode != "" {
		s += " " + string(mode)
	}
	return fmt.Sprintf("(%s)", s)
}

// StartChannelWatcher checks the realtime channel every interval and as
// soon as the current channel stops. While a user is logged in and the
// channel is down it is redialed.
func (a *App) StartChannelWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// a channel whose drop was already handled is only retried on ticks
	var handled realtime.Channel
	for {
		var dropped <-chan struct{}
		watched := a.session.Snapshot().Channel
		if watched != nil && watched != handled {
			dropped = watched.Done()
		}

		select {
		case <-ticker.C:
		case <-dropped:
			handled = watched
		case <-ctx.Done():
			return
		}
		a.checkChannel(ctx)
	}
}

func (a *App) checkChannel(ctx context.Context) {
	snap := a.session.Snapshot()
	if !snap.Authenticated() {
		return
	}
	if snap.Channel != nil && snap.Channel.Connected() {
		a.setMode(ModeOnline)
		return
	}

	a.setMode(ModeOffline)

	dialCtx := ctx
	if a.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, a.config.RequestTimeout)
		defer cancel()
	}
	if err := a.session.ConnectSocket(dialCtx, snap.User); err != nil {
		a.log.Debug(ctx, "realtime redial failed", "error", err)
		return
	}
	if ch := a.session.Snapshot().Channel; ch != nil && ch.Connected() {
		a.setMode(ModeOnline)
		_ = a.chat.GetUsers(ctx)
	}
}

// onIncoming prints messages pushed by the server.
func (a *App) onIncoming(msg models.Message, active bool) {
	if active {
		fmt.Fprintln(a.out, formatMessage(msg, a.session.CurrentUser(), a.chat.Selected()))
		return
	}
	name := msg.SenderID
	for _, u := range a.chat.Users() {
		if u.ID == msg.SenderID {
			name = u.DisplayName()
			break
		}
	}
	fmt.Fprintf(a.out, "New message from %s (%d unread)\n", name, a.chat.UnseenFor(msg.SenderID))
}
