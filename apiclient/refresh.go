package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orgdesk/go-client/session"
)

// Refresher collapses concurrent credential failures into a single
// round trip to the refresh endpoint.
//
// The refreshing flag and the waiter queue are guarded by one mutex,
// and the flag check and set happen without any intervening I/O, so two
// callers can never both start a refresh.
type Refresher struct {
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshResult

	endpoint         string
	http             *http.Client
	session          *session.State
	notifier         Notifier
	onSessionExpired func()
	logger           zerolog.Logger
}

type refreshResult struct {
	token string
	err   error
}

func newRefresher(endpoint string, httpClient *http.Client, state *session.State, notifier Notifier, onSessionExpired func(), logger zerolog.Logger) *Refresher {
	return &Refresher{
		endpoint:         endpoint,
		http:             httpClient,
		session:          state,
		notifier:         notifier,
		onSessionExpired: onSessionExpired,
		logger:           logger,
	}
}

// Refresh returns a fresh access token, starting a refresh round trip
// if none is in flight and otherwise waiting for the active one.
// Queued callers are released in enqueue order.
func (r *Refresher) Refresh(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.refreshing {
		ch := make(chan refreshResult, 1)
		r.waiters = append(r.waiters, ch)
		r.mu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	r.refreshing = true
	r.mu.Unlock()

	return r.runRefresh(ctx)
}

// runRefresh performs the round trip and releases the queue. The defer
// clears the refreshing flag even if the exchange panics, so the
// coordinator can never stay locked.
func (r *Refresher) runRefresh(ctx context.Context) (token string, err error) {
	defer func() {
		r.mu.Lock()
		waiters := r.waiters
		r.waiters = nil
		r.refreshing = false
		r.mu.Unlock()

		for _, ch := range waiters {
			if err != nil {
				// Queued callers see the synthetic failure, never the
				// underlying cause.
				ch <- refreshResult{err: ErrRefreshFailed}
			} else {
				ch <- refreshResult{token: token}
			}
		}
	}()

	token, err = r.exchange(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("token refresh failed")
		r.session.Logout()
		r.notifier.Error("Session expired. Please log in again.")
		if r.onSessionExpired != nil {
			r.onSessionExpired()
		}
		return "", err
	}
	return token, nil
}

// exchange performs the refresh round trip and installs the renewed
// session on success. A missing refresh token fails without contacting
// the server.
func (r *Refresher) exchange(ctx context.Context) (string, error) {
	refreshToken := r.session.RefreshToken()
	if refreshToken == "" {
		return "", ErrNoCredentials
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", errors.Wrap(err, "[Refresher.exchange] marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "[Refresher.exchange] NewRequest")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "[Refresher.exchange] http.Do")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "[Refresher.exchange] reading response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("[Refresher.exchange] refresh rejected: status %d", resp.StatusCode)
	}

	var renewed loginResponse
	if err := json.Unmarshal(data, &renewed); err != nil {
		return "", errors.Wrap(err, "[Refresher.exchange] decode response")
	}

	if err := r.session.Login(renewed.AccessToken, renewed.RefreshToken, renewed.User); err != nil {
		return "", errors.Wrap(err, "[Refresher.exchange] session.Login")
	}
	return renewed.AccessToken, nil
}
