package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	portal "github.com/goliatone/go-auth-portal"
)

const maxResponseBytes = 1 << 20

// HTTPClient talks to an identity service that speaks the portal protocol.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  portal.Logger
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger portal.Logger) Option {
	return func(h *HTTPClient) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHTTPClient returns a client for the service at baseURL. Deadlines come
// from the caller context, the http.Client timeout is only a backstop.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  portal.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Authenticate exchanges credentials for a session token.
func (h *HTTPClient) Authenticate(ctx context.Context, identifier, secret string) (*portal.AuthResult, error) {
	var out AuthResponse
	err := h.do(ctx, http.MethodPost, PathSessions, "", SessionRequest{
		Identifier: identifier,
		Secret:     secret,
	}, &out)
	if err != nil {
		return nil, err
	}
	return authResult(out)
}

// CreateAccount registers profile and returns a session for the new account.
func (h *HTTPClient) CreateAccount(ctx context.Context, profile portal.Profile) (*portal.AuthResult, error) {
	var out AuthResponse
	if err := h.do(ctx, http.MethodPost, PathAccounts, "", NewAccountRequest(profile), &out); err != nil {
		return nil, err
	}
	return authResult(out)
}

// ValidateToken resolves token to its user.
func (h *HTTPClient) ValidateToken(ctx context.Context, token string) (*portal.User, error) {
	var out CurrentSessionResponse
	if err := h.do(ctx, http.MethodGet, PathCurrentSession, token, nil, &out); err != nil {
		return nil, err
	}
	if out.User == nil || out.User.ID == "" {
		return nil, portal.WrapFailure(fmt.Errorf("session response without user"), portal.ErrIdentityFailure)
	}
	return out.User.User(), nil
}

func authResult(out AuthResponse) (*portal.AuthResult, error) {
	if out.Token == "" || out.User == nil {
		return nil, portal.WrapFailure(fmt.Errorf("incomplete authentication response"), portal.ErrIdentityFailure)
	}
	return &portal.AuthResult{Token: out.Token, User: out.User.User()}, nil
}

func (h *HTTPClient) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return portal.WrapFailure(fmt.Errorf("encode request: %w", err), portal.ErrIdentityFailure)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return portal.WrapFailure(err, portal.ErrIdentityFailure)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := h.client.Do(req)
	if err != nil {
		h.logger.Debug("identity request failed", "method", method, "path", path, "error", err)
		return portal.WrapFailure(err, portal.ErrIdentityUnreachable)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return portal.WrapFailure(err, portal.ErrIdentityUnreachable)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError(res.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return portal.WrapFailure(fmt.Errorf("decode response: %w", err), portal.ErrIdentityFailure)
	}
	return nil
}

func statusError(status int, raw []byte) error {
	var body ErrorResponse
	_ = json.Unmarshal(raw, &body)

	cause := fmt.Errorf("identity service returned %d", status)
	if body.Error != "" {
		cause = fmt.Errorf("identity service returned %d: %s", status, body.Error)
	}

	switch status {
	case http.StatusUnauthorized:
		return portal.WrapFailure(cause, portal.ErrInvalidCredentials)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return portal.WrapFailure(cause, portal.ErrAccountRejected)
	default:
		return portal.WrapFailure(cause, portal.ErrIdentityFailure)
	}
}

var _ portal.IdentityAPI = (*HTTPClient)(nil)
