package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/dmitrijs2005/quickchat/internal/client/client"
	"github.com/dmitrijs2005/quickchat/internal/client/notify"
	"github.com/dmitrijs2005/quickchat/internal/client/otp"
	"github.com/dmitrijs2005/quickchat/internal/logging"
)

// VerificationService drives the email OTP step that follows a signup.
type VerificationService interface {
	// Verify sanitizes code, checks it has the right length and submits it.
	Verify(ctx context.Context, email, code string) error
	// Resend asks the server for a new code. A call made while another is
	// still running returns ErrResendInProgress without a request.
	Resend(ctx context.Context, email string) error
}

type verificationService struct {
	api      client.Client
	notifier notify.Notifier
	log      logging.Logger

	resending atomic.Bool
}

func NewVerificationService(api client.Client, n notify.Notifier, log logging.Logger) VerificationService {
	return &verificationService{
		api:      api,
		notifier: n,
		log:      log.With("component", "verification"),
	}
}

func (v *verificationService) Verify(ctx context.Context, email, code string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		v.notifier.Error("Email address is required.")
		return ErrMissingEmail
	}

	code = otp.Sanitize(code)
	if err := otp.Validate(code); err != nil {
		v.notifier.Error("Verification code must be 6 digits.")
		return err
	}

	msg, err := v.api.VerifyOTP(ctx, email, code)
	if err != nil {
		v.log.Warn(ctx, "otp verification failed", "email", email, "error", err)
		v.notifier.Error(failureMessage(err, "Verification failed.", "Something went wrong."))
		return err
	}

	v.log.Info(ctx, "email verified", "email", email)
	v.notifier.Success(orDefault(msg, "Email verified successfully!"))
	return nil
}

func (v *verificationService) Resend(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		v.notifier.Error("Email address is required.")
		return ErrMissingEmail
	}

	if !v.resending.CompareAndSwap(false, true) {
		return ErrResendInProgress
	}
	defer v.resending.Store(false)

	msg, err := v.api.ResendOTP(ctx, email)
	if err != nil {
		v.log.Warn(ctx, "otp resend failed", "email", email, "error", err)
		v.notifier.Error(failureMessage(err, "Unable to resend the code.", "Failed to resend code."))
		return err
	}

	v.notifier.Success(orDefault(msg, "Verification code has been resent!"))
	return nil
}

// failureMessage picks the text shown for err: the server's message when it
// sent one, otherwise rejected for success=false replies and fallback for
// everything else.
func failureMessage(err error, rejected, fallback string) string {
	if msg := client.ServerMessage(err); msg != "" {
		return msg
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Rejected() {
		return rejected
	}
	return fallback
}
