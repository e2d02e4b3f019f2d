package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSilent marks failures that are expected and must not be shown to
	// the user, e.g. the startup auth probe without a valid session.
	ErrSilent = errors.New("silent failure")
)

// APIError is a failure reported by the backend: either a non-2xx status or
// a 2xx body with success=false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status code %d", e.Status)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Rejected reports whether the server answered 2xx but refused the
// operation (success=false).
func (e *APIError) Rejected() bool {
	return e.Status >= 200 && e.Status < 300
}

// IsSilent reports whether err should be kept away from the user.
func IsSilent(err error) bool {
	return errors.Is(err, ErrSilent)
}

// ServerMessage returns the backend-provided message carried by err, if any.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
