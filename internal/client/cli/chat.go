package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/client/services"
)

// Users reloads the contact list and prints it with presence and unread
// counts.
func (a *App) Users(ctx context.Context) error {
	if !a.isLoggedIn() {
		return a.reportLocal(services.ErrNotAuthenticated)
	}
	if err := a.chat.GetUsers(ctx); err != nil {
		return err
	}

	users := a.chat.Users()
	if len(users) == 0 {
		fmt.Fprintln(a.out, "No contacts yet.")
		return nil
	}
	for _, u := range users {
		fmt.Fprintln(a.out, a.formatContact(u))
	}
	return nil
}

func (a *App) formatContact(u models.User) string {
	presence := "○"
	if a.session.IsOnline(u.ID) {
		presence = "●"
	}
	line := fmt.Sprintf("%s %s [%s]", presence, u.DisplayName(), u.ID)
	if n := a.chat.UnseenFor(u.ID); n > 0 {
		line += fmt.Sprintf(" (%d unread)", n)
	}
	return line
}

// Open makes userID the active conversation and prints its history.
func (a *App) Open(ctx context.Context, userID string) error {
	if !a.isLoggedIn() {
		return a.reportLocal(services.ErrNotAuthenticated)
	}

	user, ok := a.findUser(userID)
	if !ok {
		if err := a.chat.GetUsers(ctx); err != nil {
			return err
		}
		if user, ok = a.findUser(userID); !ok {
			a.notifier.Error(fmt.Sprintf("Unknown user %q", userID))
			return nil
		}
	}

	a.chat.SelectContact(user)
	fmt.Fprintf(a.out, "Conversation with %s\n", user.DisplayName())
	return a.History(ctx)
}

func (a *App) findUser(id string) (models.User, bool) {
	for _, u := range a.chat.Users() {
		if u.ID == id || strings.EqualFold(u.Email, id) {
			return u, true
		}
	}
	return models.User{}, false
}

func (a *App) CloseChat(ctx context.Context) error {
	a.chat.ClearSelection()
	return nil
}

// History reloads and prints the active conversation.
func (a *App) History(ctx context.Context) error {
	sel := a.chat.Selected()
	if sel == nil {
		return a.reportLocal(services.ErrNoContactSelected)
	}
	if err := a.chat.GetMessages(ctx, sel.ID); err != nil {
		return err
	}

	msgs := a.chat.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(a.out, "No messages yet.")
		return nil
	}
	me := a.session.CurrentUser()
	for _, m := range msgs {
		fmt.Fprintln(a.out, formatMessage(m, me, sel))
	}
	return nil
}

func (a *App) Send(ctx context.Context, text string) error {
	if err := a.chat.SendMessage(ctx, models.OutgoingMessage{Text: text}); err != nil {
		return a.reportLocal(err)
	}
	msgs := a.chat.Messages()
	if len(msgs) > 0 {
		fmt.Fprintln(a.out, formatMessage(msgs[len(msgs)-1], a.session.CurrentUser(), a.chat.Selected()))
	}
	return nil
}

// Online prints the users the server currently reports as connected.
func (a *App) Online(ctx context.Context) error {
	if !a.isLoggedIn() {
		return a.reportLocal(services.ErrNotAuthenticated)
	}

	ids := a.session.OnlineUsers()
	if len(ids) == 0 {
		fmt.Fprintln(a.out, "Nobody is online.")
		return nil
	}

	names := make(map[string]string)
	for _, u := range a.chat.Users() {
		names[u.ID] = u.DisplayName()
	}
	sort.Strings(ids)
	for _, id := range ids {
		if name, ok := names[id]; ok {
			fmt.Fprintf(a.out, "● %s [%s]\n", name, id)
		} else {
			fmt.Fprintf(a.out, "● %s\n", id)
		}
	}
	return nil
}

// formatMessage renders one message line as "[15:04] name: text".
func formatMessage(m models.Message, me, contact *models.User) string {
	author := m.SenderID
	switch {
	case me != nil && m.SenderID == me.ID:
		author = "you"
	case contact != nil && m.SenderID == contact.ID:
		author = contact.DisplayName()
	}

	var b strings.Builder
	if !m.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "[%s] ", m.CreatedAt.Local().Format("15:04"))
	}
	b.WriteString(author)
	b.WriteString(":")
	if m.Text != "" {
		b.WriteString(" " + m.Text)
	}
	if m.Image != "" {
		b.WriteString(" [image] " + m.Image)
	}
	return b.String()
}
