// Package otp holds the pure helpers of the email verification flow.
package otp

import (
	"errors"
	"net/url"
	"strings"
	"unicode"
)

// Length is the number of digits in a verification code.
const Length = 6

var ErrInvalidCode = errors.New("verification code must be 6 digits")

// Sanitize keeps only ASCII digits from s and truncates to Length.
//
//	Sanitize("12a34")         == "1234"
//	Sanitize("1 2 3 4 5 6 7") == "123456"
func Sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() == Length {
			break
		}
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate accepts exactly Length ASCII digits.
func Validate(code string) error {
	if len(code) != Length || Sanitize(code) != code {
		return ErrInvalidCode
	}
	return nil
}

// VerifyEmailPath is where a successful signup sends the user.
func VerifyEmailPath(email string) string {
	return "/verify-email?email=" + url.QueryEscape(email)
}

// EmailFromRedirect extracts the email query parameter of a verify-email
// redirect. It returns "" when the redirect carries none.
func EmailFromRedirect(redirect string) string {
	u, err := url.Parse(redirect)
	if err != nil {
		return ""
	}
	return u.Query().Get("email")
}
