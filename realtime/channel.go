// Package realtime maintains the push connection that delivers
// server-initiated mutation events while a session is authenticated.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/orgdesk/go-client/apiclient"
	"github.com/orgdesk/go-client/session"
)

const (
	dialTimeout  = 10 * time.Second
	maxReadBytes = 1 << 20 // 1MiB
)

// Handler consumes the payload of one named event.
type Handler func(data json.RawMessage)

// Channel is a persistent push connection, open only while the session
// is authenticated. The connection credential is the access token at
// open time; it is not renewed mid-connection, only replaced when the
// channel reopens after a new login. Reconnect and backoff are left to
// the caller; a failed dial is reported and the next login dials again.
type Channel struct {
	url      string
	session  *session.State
	notifier apiclient.Notifier
	logger   zerolog.Logger

	mu         sync.Mutex
	handlers   map[string]Handler
	conn       *websocket.Conn
	connCancel context.CancelFunc
}

// Option modifies a Channel instance.
type Option func(*Channel)

// WithNotifier sets the destination of connection-error and event
// notifications.
func WithNotifier(n apiclient.Notifier) Option {
	return func(c *Channel) {
		c.notifier = n
	}
}

// WithLogger sets the channel logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// New initializes a Channel against the given websocket URL, bound to
// the session whose lifecycle drives it.
func New(url string, state *session.State, options ...Option) (*Channel, error) {
	if url == "" {
		return nil, errors.New("[realtime.New] url is required")
	}
	if state == nil {
		return nil, errors.New("[realtime.New] session state is required")
	}

	c := &Channel{
		url:      url,
		session:  state,
		logger:   zerolog.Nop(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = apiclient.LogNotifier{Logger: c.logger}
	}
	return c, nil
}

// On registers the handler for one named event, replacing any previous
// one. Only registered events are dispatched; unknown events are logged
// and dropped.
func (c *Channel) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = h
}

// Run keeps the channel in sync with the session: connected while
// authenticated, closed otherwise. It blocks until ctx is done and
// returns ctx's error.
func (c *Channel) Run(ctx context.Context) error {
	changes := make(chan session.Change, 8)
	cancelSub := c.session.Subscribe(func(change session.Change) {
		select {
		case changes <- change:
		case <-ctx.Done():
		}
	})
	defer cancelSub()
	defer c.close()

	if token := c.session.AccessToken(); token != "" {
		c.open(ctx, token)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case change := <-changes:
			switch change.Kind {
			case session.ChangeLogin:
				c.close()
				c.open(ctx, change.AccessToken)
			case session.ChangeLogout:
				c.close()
			}
		}
	}
}

func (c *Channel) open(ctx context.Context, token string) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, resp, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{HTTPHeader: header})
	cancel()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.notifier.Error(fmt.Sprintf("Realtime connection error: %s", err))
		return
	}
	conn.SetReadLimit(maxReadBytes)

	connCtx, connCancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.connCancel = connCancel
	c.mu.Unlock()

	go c.readLoop(connCtx, conn)
}

// close tears down the current connection (idempotent).
func (c *Channel) close() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.connCancel
	c.conn = nil
	c.connCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.notifier.Error(fmt.Sprintf("Realtime connection error: %s", err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed realtime message")
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	// A deletion of the session's own user ends the session, whatever
	// else is registered for the event.
	if env.Event == EventUserDeleted {
		var del Deleted
		if err := json.Unmarshal(env.Data, &del); err == nil && c.session.IsOwner(&del.ID) {
			c.logger.Warn().Int64("user_id", del.ID).Msg("session user deleted remotely, logging out")
			c.session.Logout()
		}
	}

	c.mu.Lock()
	h := c.handlers[env.Event]
	c.mu.Unlock()

	if h == nil {
		c.logger.Debug().Str("event", env.Event).Msg("no handler registered for event")
		return
	}
	h(env.Data)
}

// BindInvalidation registers the standard handlers that keep an API
// client's response cache in step with pushed mutations, with an info
// notification per event.
func (c *Channel) BindInvalidation(api *apiclient.Client) {
	c.On(EventCompanyUpdated, func(data json.RawMessage) {
		var co Company
		if err := json.Unmarshal(data, &co); err != nil {
			c.logger.Warn().Err(err).Str("event", EventCompanyUpdated).Msg("bad payload")
			return
		}
		api.InvalidateCache("/companies")
		c.notifier.Info(fmt.Sprintf("Company %q was updated", co.Name))
	})

	c.On(EventCompanyDeleted, func(data json.RawMessage) {
		var del Deleted
		if err := json.Unmarshal(data, &del); err != nil {
			c.logger.Warn().Err(err).Str("event", EventCompanyDeleted).Msg("bad payload")
			return
		}
		api.InvalidateCache("/companies")
		c.notifier.Info(fmt.Sprintf("Company (ID: %d) was deleted", del.ID))
	})

	c.On(EventUserUpdated, func(data json.RawMessage) {
		var u session.User
		if err := json.Unmarshal(data, &u); err != nil {
			c.logger.Warn().Err(err).Str("event", EventUserUpdated).Msg("bad payload")
			return
		}
		api.InvalidateCache("/users")
		c.notifier.Info(fmt.Sprintf("User %q was updated", u.FullName))
	})

	c.On(EventUserDeleted, func(data json.RawMessage) {
		var del Deleted
		if err := json.Unmarshal(data, &del); err != nil {
			c.logger.Warn().Err(err).Str("event", EventUserDeleted).Msg("bad payload")
			return
		}
		api.InvalidateCache("/users")
		c.notifier.Info(fmt.Sprintf("User (ID: %d) was deleted", del.ID))
	})
}
