// Package apiclient is a Go client for the task manager HTTP API. It keeps
// the session's token pair and, when a call is rejected with 401, refreshes
// it at most once per stale access token no matter how many goroutines hit
// the rejection together.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	apiPrefix      = "/api/v1"
	refreshTimeout = 15 * time.Second
)

// ErrNoSession is returned by calls that need tokens before Login or
// Register succeeded.
var ErrNoSession = errors.New("apiclient: no session")

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Session struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

// Error is a non-2xx answer decoded from the response envelope.
type Error struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("apiclient: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *Error          `json:"error"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	tokens Tokens

	refreshes singleflight.Group
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Tokens() Tokens {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

func (c *Client) SetTokens(t Tokens) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = t
}

func (c *Client) Register(ctx context.Context, name string, email string, password string) (Session, error) {
	return c.startSession(ctx, "/auth/register", map[string]string{"name": name, "email": email, "password": password})
}

func (c *Client) Login(ctx context.Context, email string, password string) (Session, error) {
	return c.startSession(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

func (c *Client) startSession(ctx context.Context, path string, body any) (Session, error) {
	var session Session
	if err := c.send(ctx, http.MethodPost, path, body, "", &session); err != nil {
		return Session{}, err
	}
	c.SetTokens(session.Tokens)
	return session, nil
}

// Logout revokes the refresh token server side and forgets the session.
func (c *Client) Logout(ctx context.Context) error {
	current := c.Tokens()
	c.SetTokens(Tokens{})
	if current.RefreshToken == "" {
		return nil
	}
	return c.send(ctx, http.MethodPost, "/auth/logout", map[string]string{"refreshToken": current.RefreshToken}, "", nil)
}

// Do calls an authenticated endpoint. path is relative to /api/v1. A 401
// triggers one refresh and one retry.
func (c *Client) Do(ctx context.Context, method string, path string, body any, out any) error {
	access := c.Tokens().AccessToken
	if access == "" {
		return ErrNoSession
	}

	err := c.send(ctx, method, path, body, access, out)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	if err := c.refresh(ctx, access); err != nil {
		return err
	}
	return c.send(ctx, method, path, body, c.Tokens().AccessToken, out)
}

// refresh rotates the token pair unless another caller already replaced
// stale. Concurrent callers share one request, which runs detached from any
// single caller's cancellation; each caller still stops waiting when its own
// ctx ends.
func (c *Client) refresh(ctx context.Context, stale string) error {
	results := c.refreshes.DoChan("refresh", func() (any, error) {
		current := c.Tokens()
		if current.AccessToken != stale {
			return nil, nil
		}
		if current.RefreshToken == "" {
			return nil, ErrNoSession
		}

		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		var result struct {
			Tokens Tokens `json:"tokens"`
		}
		err := c.send(shared, http.MethodPost, "/auth/refresh-token", map[string]string{"refreshToken": current.RefreshToken}, "", &result)
		if err != nil {
			var apiErr *Error
			if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
				c.SetTokens(Tokens{})
			}
			return nil, err
		}
		c.SetTokens(result.Tokens)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-results:
		return res.Err
	}
}

func (c *Client) send(ctx context.Context, method string, path string, body any, access string, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("apiclient: decode data: %w", err)
		}
	}
	return nil
}
