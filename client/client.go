package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRenewThreshold is how close to expiry a token must be before a
	// request triggers a refresh.
	DefaultRenewThreshold = 5 * time.Minute
	// DefaultTimeout bounds every request, including the refresh call.
	DefaultTimeout = 60 * time.Second

	refreshPath = "/api/auth/refresh"
	flightKey   = "refresh"
)

var (
	// ErrReauthRequired is returned when the session can no longer be used: the
	// refresh failed, the server answered 401, or Logout ran while the request
	// was waiting.
	ErrReauthRequired = errors.New("re-authentication required")
)

// Token is the session credential held by a Client.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Refresher exchanges a token for a fresh one.
type Refresher interface {
	Refresh(ctx context.Context, token string) (Token, error)
}

// Client attaches the session token to outgoing requests and renews it
// shortly before expiry. Concurrent requests that need a renewal share one
// refresh call.
type Client struct {
	baseURL        string
	http           *http.Client
	refresher      Refresher
	renewThreshold time.Duration
	timeout        time.Duration
	now            func() time.Time
	logger         *slog.Logger

	mu    sync.Mutex
	token Token
	gen   uint64

	flight    singleflight.Group
	refreshes atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRefresher replaces the default HTTPRefresher.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithRenewThreshold sets how long before expiry a token is renewed.
func WithRenewThreshold(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.renewThreshold = d
		}
	}
}

// WithTimeout sets the request and refresh timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger used for refresh failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New returns a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		renewThreshold: DefaultRenewThreshold,
		timeout:        DefaultTimeout,
		now:            time.Now,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.refresher == nil {
		c.refresher = &HTTPRefresher{Endpoint: c.baseURL + refreshPath, HTTP: c.http}
	}
	return c
}

// SetToken installs a session token, replacing any previous one.
func (c *Client) SetToken(t Token) {
	c.mu.Lock()
	c.token = t
	c.gen++
	c.mu.Unlock()
}

// Token returns the current session token; Value is empty when logged out.
func (c *Client) Token() Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Logout drops the session. Requests waiting on a refresh fail with
// ErrReauthRequired.
func (c *Client) Logout() {
	c.SetToken(Token{})
}

// RefreshCount returns how many refresh calls this client has made.
func (c *Client) RefreshCount() int64 {
	return c.refreshes.Load()
}

// Do sends req with the session token attached, renewing the token first when
// it is inside the renew threshold. Requests to the refresh endpoint are sent
// as is. A 401 response drops the session and returns ErrReauthRequired.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	isRefresh := c.isRefreshRequest(req)

	token, err := c.tokenFor(req.Context(), isRefresh)
	if err != nil {
		return nil, err
	}
	if token.Value != "" {
		req.Header.Set("Authorization", "Bearer "+token.Value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && !isRefresh {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		c.dropIfCurrent(token.Value)
		return nil, ErrReauthRequired
	}
	return resp, nil
}

func (c *Client) isRefreshRequest(req *http.Request) bool {
	return req.URL != nil && strings.HasSuffix(req.URL.Path, refreshPath)
}

func (c *Client) needsRenewal(t Token) bool {
	return t.ExpiresAt.Sub(c.now()) < c.renewThreshold
}

// tokenFor returns the token to attach. Only requests that see a token close
// to expiry enter the shared refresh.
func (c *Client) tokenFor(ctx context.Context, skipRenew bool) (Token, error) {
	c.mu.Lock()
	current := c.token
	c.mu.Unlock()

	if skipRenew || current.Value == "" || !c.needsRenewal(current) {
		return current, nil
	}

	ch := c.flight.DoChan(flightKey, func() (interface{}, error) {
		return c.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		renewed := res.Val.(Token)
		// Logout may have run between settlement and resumption.
		c.mu.Lock()
		still := c.token.Value == renewed.Value
		c.mu.Unlock()
		if !still {
			return Token{}, ErrReauthRequired
		}
		return renewed, nil
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

// refresh runs once per flight. It re-reads the token because a previous
// flight may already have renewed it.
func (c *Client) refresh(ctx context.Context) (Token, error) {
	c.mu.Lock()
	current, gen := c.token, c.gen
	c.mu.Unlock()

	if current.Value == "" {
		return Token{}, ErrReauthRequired
	}
	if !c.needsRenewal(current) {
		return current, nil
	}

	c.refreshes.Add(1)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	renewed, err := c.refresher.Refresh(rctx, current.Value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gen != gen {
		// Logout or a new login replaced the session while refreshing.
		if c.token.Value == "" {
			return Token{}, ErrReauthRequired
		}
		return c.token, nil
	}
	if err != nil {
		c.token = Token{}
		c.gen++
		c.logger.WarnContext(ctx, "token refresh failed, session cleared", slog.Any("error", err))
		return Token{}, fmt.Errorf("%w: %v", ErrReauthRequired, err)
	}
	c.token = renewed
	c.gen++
	return renewed, nil
}

// dropIfCurrent clears the session unless it was already replaced by a newer
// token than the one the rejected request carried.
func (c *Client) dropIfCurrent(sent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sent != "" && c.token.Value != sent {
		return
	}
	c.token = Token{}
	c.gen++
}
