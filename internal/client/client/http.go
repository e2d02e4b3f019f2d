package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/quickchat/internal/client/models"
	"github.com/dmitrijs2005/quickchat/internal/common"
	"github.com/dmitrijs2005/quickchat/internal/logging"
	"github.com/google/uuid"
)

const authCheckPath = "/api/auth/check"

// envelope is the union of every response body the backend sends.
type envelope struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	Token          string           `json:"token"`
	User           *models.User     `json:"user"`
	UserData       *models.User     `json:"userData"`
	Users          []models.User    `json:"users"`
	UnseenMessages map[string]int   `json:"unseenMessages"`
	Messages       []models.Message `json:"messages"`
	NewMessage     *models.Message  `json:"newMessage"`
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     logging.Logger
}

// NewHTTPClient builds a client for the backend at baseURL. tokens may be nil
// for anonymous use; timeout <= 0 means no client-side timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, tokens TokenSource, log logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log.With("component", "http"),
	}
}

func (c *HTTPClient) CheckAuth(ctx context.Context) (*models.User, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, authCheckPath, nil, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, &APIError{Status: http.StatusOK, Message: "auth check returned no user"}
	}
	return env.User, nil
}

func (c *HTTPClient) Authenticate(ctx context.Context, mode models.AuthMode, creds models.Credentials) (*AuthResult, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/auth/"+string(mode), creds, &env); err != nil {
		return nil, err
	}
	return &AuthResult{Message: env.Message, Token: env.Token, User: env.UserData}, nil
}

func (c *HTTPClient) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	var env envelope
	body := map[string]string{"email": email, "otp": otp}
	if err := c.do(ctx, http.MethodPost, "/api/auth/verify-otp", body, &env); err != nil {
		return "", err
	}
	return env.Message, nil
}

func (c *HTTPClient) ResendOTP(ctx context.Context, email string) (string, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/auth/resend-otp", map[string]string{"email": email}, &env); err != nil {
		return "", err
	}
	return env.Message, nil
}

func (c *HTTPClient) UpdateProfile(ctx context.Context, fields models.ProfileUpdate) (*models.User, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPut, "/api/auth/update-profile", fields, &env); err != nil {
		return nil, err
	}
	return env.User, nil
}

func (c *HTTPClient) Users(ctx context.Context) (*Roster, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/messages/users", nil, &env); err != nil {
		return nil, err
	}
	unseen := env.UnseenMessages
	if unseen == nil {
		unseen = map[string]int{}
	}
	return &Roster{Users: env.Users, Unseen: unseen}, nil
}

func (c *HTTPClient) Messages(ctx context.Context, userID string) ([]models.Message, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(userID), nil, &env); err != nil {
		return nil, err
	}
	return env.Messages, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, userID string, msg models.OutgoingMessage) (*models.Message, error) {
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(userID), msg, &env); err != nil {
		return nil, err
	}
	if env.NewMessage == nil {
		return nil, &APIError{Status: http.StatusOK, Message: "send returned no message"}
	}
	return env.NewMessage, nil
}

// MarkSeen acknowledges a message. The response body is ignored.
func (c *HTTPClient) MarkSeen(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPut, "/api/messages/mark/"+url.PathEscape(messageID), nil, nil)
}

// do sends one JSON request. When out is non-nil the body is decoded into it
// and success=false is turned into an *APIError.
func (c *HTTPClient) do(ctx context.Context, method, path string, in any, out *envelope) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	requestID := uuid.NewString()
	req.Header.Set(common.RequestIDHeaderName, requestID)
	c.attachToken(ctx, req)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug(ctx, "request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "request done",
		"method", method, "path", path, "status", resp.StatusCode,
		"request_id", requestID, "elapsed", time.Since(started))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(path, resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if !out.Success {
		return &APIError{Status: resp.StatusCode, Message: out.Message}
	}
	return nil
}

func (c *HTTPClient) attachToken(ctx context.Context, req *http.Request) {
	if c.tokens == nil {
		return
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.log.Warn(ctx, "token lookup failed, sending request anonymously", "error", err)
		return
	}
	if token == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(common.TokenHeaderName, token)
}

func (c *HTTPClient) statusError(path string, status int, raw []byte) error {
	var env envelope
	_ = json.Unmarshal(raw, &env)

	apiErr := &APIError{Status: status, Message: env.Message}
	if status == http.StatusUnauthorized && strings.Contains(path, authCheckPath) {
		return fmt.Errorf("%w: %w", ErrSilent, apiErr)
	}
	return apiErr
}

// IsUnauthorized is a shorthand for errors.Is(err, ErrUnauthorized).
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
