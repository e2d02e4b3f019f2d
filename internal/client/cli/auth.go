package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/client/otp"
	"github.com/dmitrijs2005/quickchat/internal/client/services"
)

// getSimpleText, getPassword and getMultiline are indirections used to
// facilitate testing. They point to interactive input helpers and can be
// swapped in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
	getMultiline  = GetMultiline
)

// Signup prompts for the account fields and creates the account. On success
// the email is remembered so that "verify" does not ask for it again.
func (a *App) Signup(ctx context.Context) error {
	fullName, err := getSimpleText(a.reader, "Enter full name", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	bio, err := getMultiline(a.reader, "Tell something about yourself (optional)", a.out)
	if err != nil {
		return err
	}

	res, err := a.session.Login(ctx, models.AuthModeSignup, models.Credentials{
		FullName: fullName,
		Email:    email,
		Password: password,
		Bio:      bio,
	})
	if err != nil {
		return err
	}

	a.pendingEmail = otp.EmailFromRedirect(res.Redirect)
	fmt.Fprintf(a.out, "Enter the code sent to %s with: verify <code>\n", a.pendingEmail)
	return nil
}

// Login prompts for credentials and authenticates. On success the contact
// list is loaded right away.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}

	if _, err := a.session.Login(ctx, models.AuthModeLogin, models.Credentials{Email: email, Password: password}); err != nil {
		return err
	}
	return a.chat.GetUsers(ctx)
}

// Verify submits an email verification code. Without an argument the code
// is prompted for; the email comes from the last signup or is prompted for.
func (a *App) Verify(ctx context.Context, code string) error {
	email, err := a.verificationEmail()
	if err != nil {
		return err
	}
	if code == "" {
		if code, err = getSimpleText(a.reader, "Enter the 6-digit code", a.out); err != nil {
			return err
		}
	}

	if err := a.verify.Verify(ctx, email, code); err != nil {
		return err
	}
	a.pendingEmail = ""
	fmt.Fprintln(a.out, "You can log in now.")
	return nil
}

func (a *App) Resend(ctx context.Context) error {
	email, err := a.verificationEmail()
	if err != nil {
		return err
	}
	return a.reportLocal(a.verify.Resend(ctx, email))
}

func (a *App) verificationEmail() (string, error) {
	if a.pendingEmail != "" {
		return a.pendingEmail, nil
	}
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return "", err
	}
	a.pendingEmail = email
	return email, nil
}

func (a *App) Logout(ctx context.Context) error {
	return a.session.Logout(ctx)
}

// Profile edits the full name and bio. Empty answers keep the current value.
func (a *App) Profile(ctx context.Context) error {
	user := a.session.CurrentUser()
	if user == nil {
		return a.reportLocal(services.ErrNotAuthenticated)
	}

	fmt.Fprintf(a.out, "%s <%s>\n", user.DisplayName(), user.Email)
	if user.Bio != "" {
		fmt.Fprintln(a.out, user.Bio)
	}

	fullName, err := getSimpleText(a.reader, "New full name (empty keeps current)", a.out)
	if err != nil {
		return err
	}
	bio, err := getMultiline(a.reader, "New bio (empty keeps current)", a.out)
	if err != nil {
		return err
	}
	if fullName == "" && bio == "" {
		fmt.Fprintln(a.out, "Nothing to change.")
		return nil
	}

	return a.session.UpdateProfile(ctx, models.ProfileUpdate{FullName: fullName, Bio: bio})
}

// reportLocal shows errors the services return without notifying, i.e.
// requests refused before reaching the server.
func (a *App) reportLocal(err error) error {
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotAuthenticated):
		a.notifier.Error("Log in first.")
	case errors.Is(err, services.ErrNoContactSelected):
		a.notifier.Error("Open a conversation first: open <userId>")
	case errors.Is(err, services.ErrEmptyMessage):
		a.notifier.Error("Nothing to send.")
	case errors.Is(err, services.ErrResendInProgress):
		a.notifier.Error("A new code is already on its way.")
	}
	return err
}
