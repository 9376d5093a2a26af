// Package apiclient is the authorized gateway to the OrgDesk REST API.
// Every request carries the session's access token; an authorization
// failure triggers a single coordinated token refresh and one retry.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orgdesk/go-client/session"
)

// Session-bootstrap endpoints. A 401 from these never enters the
// refresh path.
const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
	refreshPath  = "/auth/refresh-token"
)

const defaultHTTPTimeout = 30 * time.Second

func isBootstrapPath(path string) bool {
	return path == loginPath || path == registerPath || path == refreshPath
}

// Client wraps an http.Client with bearer credentials, coordinated
// token renewal and an opt-in response cache.
type Client struct {
	baseURL   string
	http      *http.Client
	session   *session.State
	refresher *Refresher
	cache     *responseCache
	notifier  Notifier
	logger    zerolog.Logger

	cacheSize        int
	onSessionExpired func()
}

// Option modifies a Client instance.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithNotifier sets the destination of user-facing notifications.
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithOnSessionExpired registers the hook invoked after a failed
// refresh has forced a logout; the application should route the user
// to its sign-in entry point here.
func WithOnSessionExpired(fn func()) Option {
	return func(c *Client) {
		c.onSessionExpired = fn
	}
}

// WithCacheSize bounds the response cache entry count.
func WithCacheSize(n int) Option {
	return func(c *Client) {
		c.cacheSize = n
	}
}

// New initializes a Client against the given API base URL, bound to the
// session state it reads credentials from.
func New(baseURL string, state *session.State, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[apiclient.New] baseURL is required")
	}
	if state == nil {
		return nil, errors.New("[apiclient.New] session state is required")
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		session: state,
		logger:  zerolog.Nop(),
	}

	for _, opt := range options {
		opt(c)
	}

	if c.notifier == nil {
		c.notifier = LogNotifier{Logger: c.logger}
	}
	c.cache = newResponseCache(c.cacheSize)
	c.refresher = newRefresher(c.baseURL+refreshPath, c.http, state, c.notifier, c.onSessionExpired, c.logger)

	return c, nil
}

// loginResponse mirrors the /auth/login and /auth/refresh-token
// payloads.
type loginResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         session.User `json:"user"`
}

// SignIn authenticates against the API and establishes the session.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	in := map[string]string{"email": email, "password": password}
	var out loginResponse
	if err := c.Post(ctx, loginPath, in, &out); err != nil {
		return err
	}
	if err := c.session.Login(out.AccessToken, out.RefreshToken, out.User); err != nil {
		return errors.Wrap(err, "[Client.SignIn] session.Login")
	}
	return nil
}

// SignUpRequest is the /auth/register payload.
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

// SignUp registers a new account. It does not establish a session.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) error {
	return c.Post(ctx, registerPath, req, nil)
}

// Get performs a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out any, options ...CallOption) error {
	var settings callSettings
	for _, opt := range options {
		opt(&settings)
	}

	if settings.useCache {
		if data, ok := c.cache.get(path); ok {
			return decodeInto(data, out)
		}
	}

	data, err := c.do(ctx, call{method: http.MethodGet, path: path})
	if err != nil {
		return err
	}
	if settings.useCache {
		c.cache.put(path, data)
	}
	return decodeInto(data, out)
}

// Post performs a POST request with a JSON body, decoding the response
// into out when out is non-nil.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.mutate(ctx, http.MethodPost, path, in, out)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.mutate(ctx, http.MethodPut, path, in, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.mutate(ctx, http.MethodDelete, path, nil, nil)
}

// InvalidateCache drops cached GET responses whose path starts with
// prefix.
func (c *Client) InvalidateCache(prefix string) {
	c.cache.invalidatePrefix(prefix)
}

func (c *Client) mutate(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "[Client.mutate] marshal request")
		}
	}

	data, err := c.do(ctx, call{method: method, path: path, body: body})
	if err != nil {
		return err
	}
	c.cache.invalidatePrefix(collectionPrefix(path))
	return decodeInto(data, out)
}

// do sends one attempt. A 401 on a non-bootstrap path with no prior
// retry hands off to the refresher and resends once with the renewed
// token; a second 401 on the same logical request is terminal and is
// surfaced like any other request-level error.
func (c *Client) do(ctx context.Context, cl call) ([]byte, error) {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.notifier.Error(err.Error())
		return nil, errors.Wrap(err, "[Client.do] http.Do")
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, errors.Wrap(readErr, "[Client.do] reading response")
	}

	if resp.StatusCode == http.StatusUnauthorized && cl.attempt == 0 && !isBootstrapPath(cl.path) {
		token, err := c.refresher.Refresh(ctx)
		if err != nil {
			// Refresh failures (including ErrNoCredentials) already
			// notified and logged out; propagate as this request's
			// final failure.
			return nil, err
		}
		return c.do(ctx, cl.retryWith(token))
	}

	if resp.StatusCode >= 400 {
		apiErr := newAPIError(resp.StatusCode, body)
		c.notifier.Error(apiErr.Message)
		return nil, apiErr
	}

	return body, nil
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	var reader io.Reader
	if cl.body != nil {
		reader = bytes.NewReader(cl.body)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.newRequest] NewRequest")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	token := cl.token
	if token == "" {
		token = c.session.AccessToken()
	}
	// Requests without a token proceed unauthenticated.
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return &APIError{Status: status, Message: payload.Message}
	}
	return &APIError{Status: status, Message: http.StatusText(status)}
}

func decodeInto(data []byte, out any) error {
	if out == nil {
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decoding response body")
	}
	return nil
}
