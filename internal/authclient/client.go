package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lexling/lexling-auth/internal/service"
)

// APIError is a failure response from the auth service.
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client talks to the auth endpoints and keeps a Store in sync.
// Concurrent Refresh calls collapse into one request; every caller gets
// the outcome of that single flight.
type Client struct {
	baseURL string
	httpc   *http.Client
	store   *Store
	group   singleflight.Group
}

// NewClient creates a client against baseURL. A nil httpc gets a 10s
// timeout default.
func NewClient(baseURL string, store *Store, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
		store:   store,
	}
}

// Store exposes the backing state store.
func (c *Client) Store() *Store {
	return c.store
}

// Login authenticates and installs the session in the store.
func (c *Client) Login(ctx context.Context, email, password string) (service.AuthResponse, error) {
	var resp service.AuthResponse
	err := c.post(ctx, "/auth/login", service.Credentials{Email: email, Password: password}, &resp)
	if err != nil {
		c.store.SetError(errMessage(err))
		return service.AuthResponse{}, err
	}
	c.store.SetAuthenticated(resp.User, resp.Tokens)
	return resp, nil
}

// Register signs up and installs the first session in the store.
func (c *Client) Register(ctx context.Context, reg service.Registration) (service.AuthResponse, error) {
	var resp service.AuthResponse
	err := c.post(ctx, "/auth/register", reg, &resp)
	if err != nil {
		c.store.SetError(errMessage(err))
		return service.AuthResponse{}, err
	}
	c.store.SetAuthenticated(resp.User, resp.Tokens)
	return resp, nil
}

// Logout revokes the server session and clears the store. The store is
// cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	state := c.store.State()
	var out struct {
		Message string `json:"message"`
	}
	err := c.post(ctx, "/auth/logout", map[string]string{"refreshToken": state.RefreshToken}, &out)
	c.store.Clear()
	return err
}

// CheckAuth validates the current access token against /auth/me and
// updates the stored user. An invalid token attempts one refresh before
// giving up.
func (c *Client) CheckAuth(ctx context.Context) (service.SanitizedUser, error) {
	state := c.store.State()
	if state.AccessToken == "" {
		return service.SanitizedUser{}, &APIError{Code: service.CodeInvalidToken, Message: "not authenticated", Status: http.StatusUnauthorized}
	}

	user, err := c.me(ctx, state.AccessToken)
	if err == nil {
		c.store.SetAuthenticated(user, service.TokenPair{AccessToken: state.AccessToken, RefreshToken: state.RefreshToken})
		return user, nil
	}

	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Status != http.StatusUnauthorized {
		return service.SanitizedUser{}, err
	}

	if _, refreshErr := c.Refresh(ctx); refreshErr != nil {
		c.store.Clear()
		return service.SanitizedUser{}, refreshErr
	}

	fresh := c.store.State()
	user, err = c.me(ctx, fresh.AccessToken)
	if err != nil {
		c.store.Clear()
		return service.SanitizedUser{}, err
	}
	c.store.SetAuthenticated(user, service.TokenPair{AccessToken: fresh.AccessToken, RefreshToken: fresh.RefreshToken})
	return user, nil
}

// Refresh redeems the stored refresh token for a new pair. Concurrent
// callers share one network request.
func (c *Client) Refresh(ctx context.Context) (service.TokenPair, error) {
	result, err, _ := c.group.Do("refresh", func() (any, error) {
		state := c.store.State()
		if state.RefreshToken == "" {
			return nil, &APIError{Code: service.CodeInvalidToken, Message: "no refresh token", Status: http.StatusUnauthorized}
		}

		var resp service.AuthResponse
		if err := c.post(ctx, "/auth/refresh", map[string]string{"refreshToken": state.RefreshToken}, &resp); err != nil {
			c.store.Clear()
			return nil, err
		}
		c.store.SetAuthenticated(resp.User, resp.Tokens)
		return resp.Tokens, nil
	})
	if err != nil {
		return service.TokenPair{}, err
	}
	return result.(service.TokenPair), nil
}

func (c *Client) me(ctx context.Context, accessToken string) (service.SanitizedUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return service.SanitizedUser{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out struct {
		User service.SanitizedUser `json:"user"`
	}
	if err := c.do(req, &out); err != nil {
		return service.SanitizedUser{}, err
	}
	return out.User, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: res.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = service.CodeInternalError
			apiErr.Message = http.StatusText(res.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func errMessage(err error) string {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.Message
	}
	return err.Error()
}
