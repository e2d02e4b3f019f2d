package client

import (
	"context"

	"github.com/dmitrijs2005/quickchat/internal/client/models"
)

// TokenSource yields the current session token; "" means anonymous.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// AuthResult is the successful outcome of a login or signup call.
// Token and User are empty for signup.
type AuthResult struct {
	Message string
	Token   string
	User    *models.User
}

// Roster is the contact list with per-contact unseen counts.
type Roster struct {
	Users  []models.User
	Unseen map[string]int
}

// Client is the backend API contract used by the services.
type Client interface {
	CheckAuth(ctx context.Context) (*models.User, error)
	Authenticate(ctx context.Context, mode models.AuthMode, creds models.Credentials) (*AuthResult, error)
	VerifyOTP(ctx context.Context, email, otp string) (string, error)
	ResendOTP(ctx context.Context, email string) (string, error)
	UpdateProfile(ctx context.Context, fields models.ProfileUpdate) (*models.User, error)
	Users(ctx context.Context) (*Roster, error)
	Messages(ctx context.Context, userID string) ([]models.Message, error)
	SendMessage(ctx context.Context, userID string, msg models.OutgoingMessage) (*models.Message, error)
	MarkSeen(ctx context.Context, messageID string) error
}
