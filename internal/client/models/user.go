// Package models holds the data types shared by the chat client layers.
package models

// User is the server-issued identity record. Only ID matters to the client
// layers; the rest is carried for display.
type User struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName,omitempty"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
	Bio        string `json:"bio,omitempty"`
}

// DisplayName prefers the full name and falls back to email, then id.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.FullName != "":
		return u.FullName
	case u.Email != "":
		return u.Email
	default:
		return u.ID
	}
}

// Credentials is the body of login and signup calls. Login only uses Email
// and Password.
type Credentials struct {
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio,omitempty"`
}

// ProfileUpdate lists the fields a user may change. Empty fields are omitted.
type ProfileUpdate struct {
	FullName   string `json:"fullName,omitempty"`
	Bio        string `json:"bio,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// AuthMode selects the auth endpoint: /api/auth/login or /api/auth/signup.
type AuthMode string

const (
	AuthModeLogin  AuthMode = "login"
	AuthModeSignup AuthMode = "signup"
)

func (m AuthMode) Valid() bool {
	return m == AuthModeLogin || m == AuthModeSignup
}
