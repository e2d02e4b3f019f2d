package services

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/quickchat/internal/client/client"
	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/client/notify"
	"github.com/dmitrijs2005/quickchat/internal/client/realtime"
	"github.com/dmitrijs2005/quickchat/internal/logging"
	"golang.org/x/sync/errgroup"
)

const markSeenTimeout = 10 * time.Second

// SessionView is the part of the session the conversation state depends on.
type SessionView interface {
	Snapshot() Snapshot
	OnChange(fn func(Snapshot)) func()
}

// ChatService holds the conversation state: the roster, per-contact unseen
// counts, the selected contact and its message list.
//
// Roster/unseen and the message list are projections of server state. They
// are replaced wholesale by GetUsers/GetMessages; realtime events and sends
// change them in between. Responses are applied through sequence checks, so
// a response issued before a newer one, or before the selection changed, is
// dropped, and local unseen changes made while a roster fetch was in flight
// are re-applied on top of it.
type ChatService interface {
	GetUsers(ctx context.Context) error
	GetMessages(ctx context.Context, contactID string) error
	SendMessage(ctx context.Context, msg models.OutgoingMessage) error
	Refresh(ctx context.Context) error

	SelectContact(user models.User)
	ClearSelection()

	Users() []models.User
	Unseen() map[string]int
	UnseenFor(userID string) int
	Messages() []models.Message
	Selected() *models.User

	// OnMessage registers fn to run for every message pushed by the server,
	// after the state has been updated.
	OnMessage(fn func(msg models.Message, active bool))

	// Close detaches from the session and waits for background
	// acknowledgements.
	Close()
}

// unseenChange is a local unseen-count mutation recorded while a roster
// fetch is in flight.
type unseenChange struct {
	seq    uint64
	sender string
	reset  bool
}

// liveMessage is a message appended while a history fetch is in flight.
type liveMessage struct {
	seq uint64
	msg models.Message
}

type chatService struct {
	api      client.Client
	session  SessionView
	notifier notify.Notifier
	log      logging.Logger
	detach   func()
	bg       sync.WaitGroup

	mu        sync.Mutex
	owner     string
	users     []models.User
	unseen    map[string]int
	messages  []models.Message
	selected  *models.User
	channel   realtime.Channel
	sub       *realtime.Subscription
	onMessage []func(models.Message, bool)

	// epoch changes when the whole state is reset (logout, user switch).
	epoch uint64
	// seq orders local mutations relative to outstanding fetches.
	seq uint64

	selectGen uint64

	usersIssued   uint64
	usersApplied  uint64
	usersInflight int
	unseenLog     []unseenChange

	messagesIssued   uint64
	messagesInflight int
	live             []liveMessage
}

// NewChatService builds a ChatService that follows session: it subscribes
// to new messages once the session has a channel and resets itself when the
// session ends.
func NewChatService(api client.Client, session SessionView, n notify.Notifier, log logging.Logger) ChatService {
	c := &chatService{
		api:      api,
		session:  session,
		notifier: n,
		log:      log.With("component", "chat"),
		unseen:   make(map[string]int),
	}
	c.detach = session.OnChange(func(Snapshot) { c.sync() })
	c.sync()
	return c
}

// sync aligns the subscription with the session's current state. It reads
// a fresh snapshot because change notifications may arrive out of order.
func (c *chatService) sync() {
	snap := c.session.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.User == nil || (c.owner != "" && c.owner != snap.User.ID) {
		c.resetLocked()
	}
	if snap.User == nil {
		return
	}
	c.owner = snap.User.ID

	if snap.Channel == nil || !snap.Channel.Connected() {
		c.unbindLocked()
		return
	}
	if c.channel == snap.Channel && c.sub != nil {
		return
	}
	c.unbindLocked()
	ch := snap.Channel
	c.channel = ch
	c.sub = realtime.OnNewMessage(ch, func(msg models.Message) { c.handleIncoming(ch, msg) })
}

func (c *chatService) unbindLocked() {
	c.sub.Close()
	c.sub = nil
	c.channel = nil
}

func (c *chatService) resetLocked() {
	c.unbindLocked()
	c.epoch++
	c.owner = ""
	c.users = nil
	c.unseen = make(map[string]int)
	c.messages = nil
	c.selected = nil
	c.selectGen++
	c.unseenLog = nil
	c.live = nil
}

func (c *chatService) authenticated() bool {
	return c.session.Snapshot().Authenticated()
}

func (c *chatService) GetUsers(ctx context.Context) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	c.usersIssued++
	reqID, since, epoch := c.usersIssued, c.seq, c.epoch
	c.usersInflight++
	c.mu.Unlock()

	roster, err := c.api.Users(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.usersInflight--

	if err != nil {
		c.trimUnseenLogLocked()
		c.reportLocked(ctx, "load contacts", err)
		return err
	}
	if epoch != c.epoch || reqID < c.usersApplied {
		c.log.Debug(ctx, "dropping stale roster", "request", reqID)
		c.trimUnseenLogLocked()
		return nil
	}
	c.usersApplied = reqID

	unseen := make(map[string]int, len(roster.Unseen))
	for id, n := range roster.Unseen {
		if n > 0 {
			unseen[id] = n
		}
	}
	for _, ch := range c.unseenLog {
		if ch.seq <= since {
			continue
		}
		if ch.reset {
			delete(unseen, ch.sender)
		} else {
			unseen[ch.sender]++
		}
	}

	c.users = append([]models.User(nil), roster.Users...)
	c.unseen = unseen
	c.trimUnseenLogLocked()
	return nil
}

func (c *chatService) trimUnseenLogLocked() {
	if c.usersInflight == 0 {
		c.unseenLog = nil
	}
}

func (c *chatService) GetMessages(ctx context.Context, contactID string) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}

	c.mu.Lock()
	c.messagesIssued++
	reqID, since, epoch, selGen := c.messagesIssued, c.seq, c.epoch, c.selectGen
	c.messagesInflight++
	c.mu.Unlock()

	msgs, err := c.api.Messages(ctx, contactID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesInflight--

	if err != nil {
		c.trimLiveLocked()
		c.reportLocked(ctx, "load messages", err)
		return err
	}
	if epoch != c.epoch || reqID != c.messagesIssued || selGen != c.selectGen {
		c.log.Debug(ctx, "dropping stale history", "contact_id", contactID, "request", reqID)
		c.trimLiveLocked()
		return nil
	}

	known := make(map[string]struct{}, len(msgs))
	for _, m := range msgs {
		known[m.ID] = struct{}{}
	}
	merged := append([]models.Message(nil), msgs...)
	for _, lm := range c.live {
		if lm.seq <= since {
			continue
		}
		if lm.msg.SenderID != contactID && lm.msg.ReceiverID != contactID {
			continue
		}
		if _, dup := known[lm.msg.ID]; dup {
			continue
		}
		merged = append(merged, lm.msg)
	}

	c.messages = merged
	c.trimLiveLocked()
	return nil
}

func (c *chatService) trimLiveLocked() {
	if c.messagesInflight == 0 {
		c.live = nil
	}
}

func (c *chatService) SendMessage(ctx context.Context, msg models.OutgoingMessage) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}
	if msg.Empty() {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return ErrNoContactSelected
	}
	to, epoch := c.selected.ID, c.epoch
	c.mu.Unlock()

	sent, err := c.api.SendMessage(ctx, to, msg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.reportLocked(ctx, "send message", err)
		return err
	}
	if epoch != c.epoch || c.selected == nil || c.selected.ID != to {
		return nil
	}
	c.appendLocked(*sent)
	return nil
}

// Refresh reloads the roster and, when a contact is selected, its history.
func (c *chatService) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.GetUsers(ctx) })
	if sel := c.Selected(); sel != nil {
		g.Go(func() error { return c.GetMessages(ctx, sel.ID) })
	}
	return g.Wait()
}

// SelectContact makes user the active conversation. Its unseen count is
// cleared and the message list emptied until GetMessages fills it.
func (c *chatService) SelectContact(user models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected != nil && c.selected.ID == user.ID {
		return
	}
	c.selected = &user
	c.selectGen++
	c.messages = nil
	c.live = nil

	c.seq++
	delete(c.unseen, user.ID)
	if c.usersInflight > 0 {
		c.unseenLog = append(c.unseenLog, unseenChange{seq: c.seq, sender: user.ID, reset: true})
	}
}

func (c *chatService) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selected == nil {
		return
	}
	c.selected = nil
	c.selectGen++
	c.messages = nil
	c.live = nil
}

// handleIncoming applies one pushed message. Messages from the selected
// contact are shown and acknowledged; any other sender gets its unseen
// counter bumped. Events from a channel that is no longer bound are dropped.
func (c *chatService) handleIncoming(from realtime.Channel, msg models.Message) {
	c.mu.Lock()
	if c.channel != from {
		c.mu.Unlock()
		return
	}

	active := c.selected != nil && msg.SenderID == c.selected.ID
	if active {
		msg.Seen = true
		c.appendLocked(msg)
	} else {
		c.seq++
		c.unseen[msg.SenderID]++
		if c.usersInflight > 0 {
			c.unseenLog = append(c.unseenLog, unseenChange{seq: c.seq, sender: msg.SenderID})
		}
	}
	listeners := slices.Clone(c.onMessage)
	if active {
		c.bg.Add(1)
	}
	c.mu.Unlock()

	if active {
		go c.markSeen(msg.ID)
	}
	for _, fn := range listeners {
		fn(msg, active)
	}
}

// markSeen acknowledges a message without anyone waiting on the result.
// A failure leaves the local state untouched.
func (c *chatService) markSeen(messageID string) {
	defer c.bg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), markSeenTimeout)
	defer cancel()

	if err := c.api.MarkSeen(ctx, messageID); err != nil {
		c.log.Warn(ctx, "mark seen failed", "message_id", messageID, "error", err)
	}
}

func (c *chatService) appendLocked(msg models.Message) {
	c.seq++
	c.messages = append(c.messages, msg)
	if c.messagesInflight > 0 {
		c.live = append(c.live, liveMessage{seq: c.seq, msg: msg})
	}
}

// reportLocked notifies the user about err unless it is a 401, which the
// session handles.
func (c *chatService) reportLocked(ctx context.Context, op string, err error) {
	c.log.Warn(ctx, op+" failed", "error", err)
	if !client.IsUnauthorized(err) {
		c.notifier.Error(err.Error())
	}
}

func (c *chatService) OnMessage(fn func(msg models.Message, active bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

func (c *chatService) Users() []models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.User(nil), c.users...)
}

func (c *chatService) Unseen() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.unseen))
	for k, v := range c.unseen {
		out[k] = v
	}
	return out
}

func (c *chatService) UnseenFor(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unseen[userID]
}

func (c *chatService) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

func (c *chatService) Selected() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return nil
	}
	u := *c.selected
	return &u
}

func (c *chatService) Close() {
	c.detach()

	c.mu.Lock()
	c.unbindLocked()
	c.mu.Unlock()

	c.bg.Wait()
}
