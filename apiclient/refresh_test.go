package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/go-client/session"
	"github.com/orgdesk/go-client/session/storefake"
)

// waiterCount exposes the queue depth so tests can hold a refresh open
// until every concurrent caller has enqueued.
func (r *Refresher) waiterCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

type recordingNotifier struct {
	mu    sync.Mutex
	infos []string
	errs  []string
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, msg)
}

func (n *recordingNotifier) errorMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errs...)
}

func loggedInState(t *testing.T) (*session.State, *storefake.FakeStore) {
	t.Helper()
	store := storefake.New()
	state, err := session.NewState(store)
	require.NoError(t, err)
	user := session.User{ID: 7, Email: "ada@example.com", Role: session.RoleUser}
	require.NoError(t, state.Login("stale-access", "refresh-1", user))
	return state, store
}

func renewedBody(t *testing.T, accessToken string) []byte {
	t.Helper()
	body, err := json.Marshal(loginResponse{
		AccessToken:  accessToken,
		RefreshToken: "refresh-2",
		User:         session.User{ID: 7, Email: "ada@example.com", Role: session.RoleUser},
	})
	require.NoError(t, err)
	return body
}

func TestRefresher_SingleFlight(t *testing.T) {
	const concurrent = 5

	var refreshCalls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refreshCalls.Add(1) == 1 {
			close(started)
		}
		<-release
		_, _ = w.Write(renewedBody(t, "renewed-access"))
	}))
	defer srv.Close()

	state, _ := loggedInState(t)
	refresher := newRefresher(srv.URL, srv.Client(), state, &recordingNotifier{}, nil, zerolog.Nop())

	results := make(chan refreshResult, concurrent)
	go func() {
		token, err := refresher.Refresh(context.Background())
		results <- refreshResult{token: token, err: err}
	}()
	<-started

	// The refresh is now in flight and held open; everyone else queues.
	for i := 1; i < concurrent; i++ {
		go func() {
			token, err := refresher.Refresh(context.Background())
			results <- refreshResult{token: token, err: err}
		}()
	}
	require.Eventually(t, func() bool {
		return refresher.waiterCount() == concurrent-1
	}, 2*time.Second, 5*time.Millisecond)

	close(release)

	for i := 0; i < concurrent; i++ {
		res := <-results
		require.NoError(t, res.err)
		require.Equal(t, "renewed-access", res.token)
	}
	require.Equal(t, int32(1), refreshCalls.Load())
	require.Equal(t, "renewed-access", state.AccessToken())
	require.Equal(t, "refresh-2", state.RefreshToken())
}

func TestRefresher_NoCredentials(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store := storefake.New()
	state, err := session.NewState(store)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	var expired atomic.Bool
	refresher := newRefresher(srv.URL, srv.Client(), state, notifier, func() { expired.Store(true) }, zerolog.Nop())

	_, err = refresher.Refresh(context.Background())
	require.True(t, errors.Is(err, ErrNoCredentials))

	require.Equal(t, int32(0), hits.Load(), "no round trip without credentials")
	require.Contains(t, notifier.errorMessages(), "Session expired. Please log in again.")
	require.True(t, expired.Load())
}

func TestRefresher_FailureCascade(t *testing.T) {
	const queued = 3

	var refreshCalls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refreshCalls.Add(1) == 1 {
			close(started)
		}
		<-release
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	state, store := loggedInState(t)
	notifier := &recordingNotifier{}
	var expired atomic.Int32
	refresher := newRefresher(srv.URL, srv.Client(), state, notifier, func() { expired.Add(1) }, zerolog.Nop())

	initiatorErr := make(chan error, 1)
	go func() {
		_, err := refresher.Refresh(context.Background())
		initiatorErr <- err
	}()
	<-started

	queuedErrs := make(chan error, queued)
	for i := 0; i < queued; i++ {
		go func() {
			_, err := refresher.Refresh(context.Background())
			queuedErrs <- err
		}()
	}
	require.Eventually(t, func() bool {
		return refresher.waiterCount() == queued
	}, 2*time.Second, 5*time.Millisecond)

	close(release)

	err := <-initiatorErr
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrRefreshFailed), "initiator sees the underlying cause")
	require.Contains(t, err.Error(), "status 500")

	for i := 0; i < queued; i++ {
		require.True(t, errors.Is(<-queuedErrs, ErrRefreshFailed))
	}

	require.Equal(t, int32(1), refreshCalls.Load())
	require.False(t, state.IsAuthenticated())
	require.True(t, store.Empty())
	require.Contains(t, notifier.errorMessages(), "Session expired. Please log in again.")
	require.Equal(t, int32(1), expired.Load())
}

func TestRefresher_ContextCancelledWhileQueued(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		_, _ = w.Write(renewedBody(t, "renewed-access"))
	}))
	defer srv.Close()
	// Unblock the handler before srv.Close waits on the active connection.
	defer close(release)

	state, _ := loggedInState(t)
	refresher := newRefresher(srv.URL, srv.Client(), state, &recordingNotifier{}, nil, zerolog.Nop())

	go func() {
		_, _ = refresher.Refresh(context.Background())
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	queuedErr := make(chan error, 1)
	go func() {
		_, err := refresher.Refresh(ctx)
		queuedErr <- err
	}()
	require.Eventually(t, func() bool {
		return refresher.waiterCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.True(t, errors.Is(<-queuedErr, context.Canceled))
}

// TestClient_ConcurrentRefreshSingleFlight drives the whole request path
// with concurrent calls that all hit an expired token, and checks the
// refresh endpoint is contacted exactly once.
func TestClient_ConcurrentRefreshSingleFlight(t *testing.T) {
	const concurrent = 4

	var protectedHits, refreshHits atomic.Int32
	refreshStarted := make(chan struct{})
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/things", func(w http.ResponseWriter, r *http.Request) {
		protectedHits.Add(1)
		if r.Header.Get("Authorization") != "Bearer renewed-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		if refreshHits.Add(1) == 1 {
			close(refreshStarted)
		}
		<-release
		_, _ = w.Write(renewedBody(t, "renewed-access"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	state, _ := loggedInState(t)
	client, err := New(srv.URL, state, WithHTTPClient(srv.Client()), WithNotifier(&recordingNotifier{}))
	require.NoError(t, err)

	errs := make(chan error, concurrent)
	for i := 0; i < concurrent; i++ {
		go func() {
			var out struct {
				OK bool `json:"ok"`
			}
			errs <- client.Get(context.Background(), "/things", &out)
		}()
	}

	// Hold the refresh open until every request has taken its 401 and
	// either started the refresh or queued behind it.
	<-refreshStarted
	require.Eventually(t, func() bool {
		return client.refresher.waiterCount() == concurrent-1
	}, 2*time.Second, 5*time.Millisecond)
	close(release)

	for i := 0; i < concurrent; i++ {
		require.NoError(t, <-errs)
	}
	require.Equal(t, int32(1), refreshHits.Load())
	require.Equal(t, int32(2*concurrent), protectedHits.Load(), "one 401 and one retry per request")
	require.Equal(t, "renewed-access", state.AccessToken())
}
