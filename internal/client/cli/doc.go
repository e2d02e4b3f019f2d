// Package cli provides the interactive QuickChat command-line client.
//
// It wires configuration, local storage, the API client, the realtime
// channel and the services into an App, then runs an interactive REPL.
// Typical flow: restore the saved session, log in or sign up (and verify
// the email), pick a contact and chat. Pushed messages are printed as they
// arrive; a background watcher redials the realtime channel when it drops.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App, StartChannelWatcher, and runREPL for details.
package cli
