// Package common contains constants shared by the chat client packages.
package common

const (
	// TokenHeaderName duplicates the bearer token for backends that read a
	// plain "token" header instead of Authorization.
	TokenHeaderName = "token"

	// RequestIDHeaderName carries a per-request correlation id.
	RequestIDHeaderName = "X-Request-ID"
)

// Realtime event names.
const (
	EventOnlineUsers = "getOnlineUsers"
	EventNewMessage  = "newMessage"
)
