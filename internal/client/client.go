// Package client is the API consumer used at application start. Bootstrap
// resolves the stored token into the authenticated professional before any
// screen renders; a failed bootstrap sends the user back to the login flow.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"vacenf.org/internal/registry"
)

var (
	// ErrTokenMissing means no stored token exists. Bootstrap fails locally,
	// no request is sent.
	ErrTokenMissing = errors.New("client: no stored token")
	// ErrTokenInvalid means the server rejected the token (expired or forged).
	ErrTokenInvalid = errors.New("client: token rejected")
	// ErrForbidden means the token is valid but the account may not proceed.
	ErrForbidden = errors.New("client: access forbidden")
	// ErrNotFound means the authenticated professional no longer exists.
	ErrNotFound = errors.New("client: resource not found")
	// ErrServer covers 5xx answers. The attempt is terminal, never retried.
	ErrServer = errors.New("client: server error")
	// ErrTimeout means the request exceeded the per-request deadline.
	ErrTimeout = errors.New("client: request timed out")
	// ErrNetwork covers transport failures before any response arrived.
	ErrNetwork = errors.New("client: network failure")
)

// TokenStore persists the session token between runs.
type TokenStore interface {
	Token() (string, bool)
	SetToken(token string)
	Clear()
}

// MemoryStore is a process-local TokenStore.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func (m *MemoryStore) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}

// Client talks to the VacEnf API with a fixed per-request timeout and no
// automatic retries.
type Client struct {
	baseURL string
	store   TokenStore
	http    *http.Client
}

// New creates a client against baseURL using store for the session token.
func New(baseURL string, store TokenStore, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		http:    &http.Client{Timeout: timeout},
	}
}

// Session is the outcome of a successful login.
type Session struct {
	Token        string               `json:"token"`
	ExpiresAt    time.Time            `json:"expiresAt"`
	Profissional registry.Professional `json:"profissional"`
}

// Bootstrap validates the stored token against the API and returns the
// authenticated professional. With no stored token it fails immediately
// without touching the network.
func (c *Client) Bootstrap(ctx context.Context) (registry.Professional, error) {
	token, ok := c.store.Token()
	if !ok {
		return registry.Professional{}, ErrTokenMissing
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return registry.Professional{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return registry.Professional{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			c.store.Clear()
		}
		return registry.Professional{}, err
	}

	var out struct {
		Result registry.Professional `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return registry.Professional{}, fmt.Errorf("bootstrap: decode: %w", err)
	}
	return out.Result, nil
}

// Login authenticates with email and password and stores the issued token.
func (c *Client) Login(ctx context.Context, email, senha string) (Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "senha": senha})
	if err != nil {
		return Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Session{}, classifyTransport(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return Session{}, err
	}

	var out struct {
		Result Session `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Session{}, fmt.Errorf("login: decode: %w", err)
	}
	c.store.SetToken(out.Result.Token)
	return out.Result, nil
}

// Logout clears the stored token and best-effort notifies the server.
func (c *Client) Logout(ctx context.Context) {
	token, ok := c.store.Token()
	c.store.Clear()
	if !ok {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if resp, err := c.http.Do(req); err == nil {
		resp.Body.Close()
	}
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrTokenInvalid
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusNotFound:
		return ErrNotFound
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrServer, code)
	default:
		return fmt.Errorf("client: unexpected status %d", code)
	}
}

func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
