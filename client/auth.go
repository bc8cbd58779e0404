package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from an auth endpoint.
//
// RetryAfter is in seconds. AttemptsRemaining is set for wrong codes.
type APIError struct {
	StatusCode        int    `json:"-"`
	Message           string `json:"message"`
	RetryAfter        int    `json:"retryAfter,omitempty"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("auth api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("auth api: status %d: %s", e.StatusCode, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, apiErr)
	return apiErr
}

// User is the public profile returned by login, register and me.
type User struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Phone    string `json:"phone"`
	Avatar   string `json:"avatar"`
}

// Session is the result of a successful login or registration.
type Session struct {
	Token Token
	User  User
}

// SendCodeResponse is the send-code answer. DevCode is only present when the
// server runs in development mode.
type SendCodeResponse struct {
	Message string `json:"message"`
	DevCode string `json:"devCode,omitempty"`
}

type sessionResponse struct {
	tokenResponse
	User User `json:"user"`
}

// SendCode asks the server to text a login code to phone.
func (c *Client) SendCode(ctx context.Context, phone string) (*SendCodeResponse, error) {
	var out SendCodeResponse
	if err := c.postJSON(ctx, "/api/auth/send-code", map[string]string{"phone": phone}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login signs in with a texted code and installs the returned token.
func (c *Client) Login(ctx context.Context, phone, code, nickname string) (*Session, error) {
	body := map[string]string{"phone": phone, "code": code}
	if nickname != "" {
		body["nickname"] = nickname
	}
	return c.startSession(ctx, "/api/auth/login", body)
}

// LoginWithPassword signs in with a password and installs the returned token.
func (c *Client) LoginWithPassword(ctx context.Context, phone, password string) (*Session, error) {
	return c.startSession(ctx, "/api/auth/login", map[string]string{"phone": phone, "password": password})
}

// Register creates a password account verified by a texted code.
func (c *Client) Register(ctx context.Context, phone, code, password, nickname string) (*Session, error) {
	body := map[string]string{"phone": phone, "code": code, "password": password}
	if nickname != "" {
		body["nickname"] = nickname
	}
	return c.startSession(ctx, "/api/auth/register", body)
}

// Me fetches the signed-in user's profile through Do.
func (c *Client) Me(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) startSession(ctx context.Context, path string, body any) (*Session, error) {
	var out sessionResponse
	if err := c.postJSON(ctx, path, body, &out); err != nil {
		return nil, err
	}
	s := &Session{Token: out.toToken(), User: out.User}
	c.SetToken(s.Token)
	return s, nil
}

// postJSON calls an unauthenticated auth endpoint. These calls carry no token
// and stay outside the refresh coordination.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
