package services

import "errors"

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNoContactSelected = errors.New("no contact selected")
	ErrEmptyMessage      = errors.New("message has neither text nor image")

	// ErrSessionBusy is returned when a login or auth check starts while
	// another one is still outstanding.
	ErrSessionBusy = errors.New("authentication already in progress")

	// ErrSessionChanged means the session moved on (logout, re-login) while
	// a request was in flight; its result was discarded.
	ErrSessionChanged = errors.New("session changed during request")

	ErrResendInProgress = errors.New("resend already in progress")
	ErrMissingEmail     = errors.New("email address is required")
)
