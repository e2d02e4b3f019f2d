package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Signup(ctx context.Context) error
	Login(ctx context.Context) error
	Verify(ctx context.Context, code string) error
	Resend(ctx context.Context) error
	Logout(ctx context.Context) error
	Profile(ctx context.Context) error
	Users(ctx context.Context) error
	Open(ctx context.Context, userID string) error
	CloseChat(ctx context.Context) error
	History(ctx context.Context) error
	Send(ctx context.Context, text string) error
	Online(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the QuickChat CLI.
//
// It reads a line from reader, parses the first token as the command, and
// dispatches to methods on 'a'. Unknown commands are reported back to the
// user. The loop exits on EOF, when ctx is done, or when the user types
// "exit" or "quit".
//
//	Not logged in:
//	  - help             show available commands
//	  - signup           create an account
//	  - login            authenticate
//	  - verify [code]    confirm the email address with the emailed code
//	  - resend           send a new verification code
//	  - exit | quit      leave the program
//
//	Logged in:
//	  - users            list contacts with unread counts
//	  - open <userId>    open the conversation with a contact
//	  - close            close the current conversation
//	  - history          reload the current conversation
//	  - send <text>      send a message to the open conversation
//	  - online           list online users
//	  - profile          edit full name and bio
//	  - logout           log out
//
// Command errors are not handled here; handlers report their own failures.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("qc %s > ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return
		}

		cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
		rest = strings.TrimSpace(rest)
		if cmd == "" {
			continue
		}

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: users, open <userId>, close, history, send <text>, online, profile, logout, exit")
			} else {
				printlnFn("Available commands: signup, login, verify [code], resend, exit")
			}

		case "signup":
			_ = a.Signup(ctx)

		case "login":
			_ = a.Login(ctx)

		case "verify":
			_ = a.Verify(ctx, rest)

		case "resend":
			_ = a.Resend(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "profile":
			_ = a.Profile(ctx)

		case "users":
			_ = a.Users(ctx)

		case "open":
			if rest == "" {
				printlnFn("Usage: open <userId>")
				continue
			}
			_ = a.Open(ctx, rest)

		case "close":
			_ = a.CloseChat(ctx)

		case "history":
			_ = a.History(ctx)

		case "send":
			if rest == "" {
				printlnFn("Usage: send <text>")
				continue
			}
			_ = a.Send(ctx, rest)

		case "online":
			_ = a.Online(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
