package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ChangeKind identifies the kind of a State mutation.
type ChangeKind int

const (
	ChangeLogin ChangeKind = iota
	ChangeLogout
	ChangeUserUpdated
)

// Change describes one State mutation. It is delivered to subscribers
// after the mutation has been applied and persisted.
type Change struct {
	Kind        ChangeKind
	AccessToken string
	User        *User // copy of the session user, nil after logout
}

// State is the single authoritative session of a running client.
// All mutations are atomic with respect to observers and write through
// to the Store before returning. Construct one State per process and
// inject it into the components that need it.
type State struct {
	mu     sync.RWMutex
	user   *User
	tokens *TokenPair

	store   Store
	logger  zerolog.Logger
	nowFunc func() time.Time

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// StateOption modifies a State instance.
type StateOption func(*State)

// WithLogger sets the logger used for normalization and persistence
// warnings.
func WithLogger(logger zerolog.Logger) StateOption {
	return func(s *State) {
		s.logger = logger
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) StateOption {
	return func(s *State) {
		s.nowFunc = now
	}
}

// NewState initializes a State backed by the given store. The state
// starts unauthenticated; call Restore to pick up a persisted session.
func NewState(store Store, options ...StateOption) (*State, error) {
	if store == nil {
		return nil, errors.New("[NewState] store is required")
	}

	s := &State{
		store:   store,
		logger:  zerolog.Nop(),
		nowFunc: time.Now,
		subs:    make(map[int]func(Change)),
	}

	for _, opt := range options {
		opt(s)
	}

	return s, nil
}

// Login replaces the current session with the given credentials and
// user, persisting both before returning. Logging in while already
// authenticated is a session replacement, not an error. The user's
// role is normalized; an unrecognized role value falls back to
// RoleUser.
func (s *State) Login(accessToken, refreshToken string, user User) error {
	role, known := CanonicalRole(string(user.Role))
	if !known {
		s.logger.Warn().Str("role", string(user.Role)).Msg("unrecognized role value, defaulting to User")
	}
	user.Role = role

	pair := TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}

	s.mu.Lock()
	s.tokens = &pair
	u := user
	s.user = &u
	err := s.store.Save(pair, user)
	s.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "[State.Login] store.Save")
	}

	s.notify(Change{Kind: ChangeLogin, AccessToken: accessToken, User: &user})
	return nil
}

// Logout clears the session and purges the store. It is idempotent;
// a second call is a no-op and does not re-notify subscribers.
func (s *State) Logout() {
	s.mu.Lock()
	wasAuthenticated := s.user != nil && s.tokens != nil
	s.user = nil
	s.tokens = nil
	if err := s.store.Clear(); err != nil {
		s.logger.Error().Err(err).Msg("clearing session store")
	}
	s.mu.Unlock()

	if wasAuthenticated {
		s.notify(Change{Kind: ChangeLogout})
	}
}

// UpdateUser merges patch into the session user and re-persists the
// merged record. Without an active session it is a no-op.
func (s *State) UpdateUser(patch Patch) error {
	s.mu.Lock()
	if s.user == nil || s.tokens == nil {
		s.mu.Unlock()
		return nil
	}

	if patch.Email != nil {
		s.user.Email = *patch.Email
	}
	if patch.FullName != nil {
		s.user.FullName = *patch.FullName
	}
	if patch.Role != nil {
		s.user.Role = NormalizeRole(string(*patch.Role))
	}
	if patch.Avatar != nil {
		s.user.Avatar = patch.Avatar
	}

	merged := *s.user
	pair := *s.tokens
	err := s.store.Save(pair, merged)
	s.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "[State.UpdateUser] store.Save")
	}

	s.notify(Change{Kind: ChangeUserUpdated, AccessToken: pair.AccessToken, User: &merged})
	return nil
}

// Restore loads any persisted session. A session whose access token
// has already expired, or that fails to decode, is discarded and the
// store purged. The expiry check is local only, an optimization that
// avoids a doomed request; the token signature is not verified here.
func (s *State) Restore() error {
	pair, user, err := s.store.Load()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			if clearErr := s.store.Clear(); clearErr != nil {
				s.logger.Error().Err(clearErr).Msg("purging unusable session store")
			}
			return nil
		}
		return errors.Wrap(err, "[State.Restore] store.Load")
	}

	exp, err := accessTokenExpiry(pair.AccessToken)
	if err != nil {
		s.logger.Warn().Err(err).Msg("stored access token undecodable, discarding session")
		s.Logout()
		return nil
	}
	if exp.Before(s.nowFunc()) {
		s.logger.Warn().Time("expiry", exp).Msg("stored access token expired, discarding session")
		s.Logout()
		return nil
	}

	role, known := CanonicalRole(string(user.Role))
	if !known {
		s.logger.Warn().Str("role", string(user.Role)).Msg("unrecognized stored role value, defaulting to User")
	}
	user.Role = role

	s.mu.Lock()
	s.tokens = pair
	u := *user
	s.user = &u
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeLogin, AccessToken: pair.AccessToken, User: &u})
	return nil
}

// IsAuthenticated reports whether both a user and a token pair are
// present.
func (s *State) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.tokens != nil
}

// HasRole reports whether the session user meets the minimum required
// role. It is false when unauthenticated.
func (s *State) HasRole(required Role) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || s.tokens == nil {
		return false
	}
	return s.user.Role.AtLeast(required)
}

// IsOwner reports whether the session user's id equals ownerID. It is
// false when unauthenticated or when ownerID is nil.
func (s *State) IsOwner(ownerID *int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil || s.tokens == nil || ownerID == nil {
		return false
	}
	return s.user.ID == *ownerID
}

// User returns a copy of the session user, or nil when unauthenticated.
func (s *State) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// AccessToken returns the current access token, or "" when none exists.
func (s *State) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return ""
	}
	return s.tokens.AccessToken
}

// RefreshToken returns the current refresh token, or "" when none
// exists.
func (s *State) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tokens == nil {
		return ""
	}
	return s.tokens.RefreshToken
}

// Subscribe registers fn for session changes. fn runs on the mutating
// goroutine, outside the state lock, after the mutation has been
// persisted. The returned func unregisters it.
func (s *State) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *State) notify(change Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// accessTokenExpiry decodes the exp claim without verifying the token
// signature.
func accessTokenExpiry(rawToken string) (time.Time, error) {
	token, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing access token")
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Wrap(err, "reading exp claim")
	}
	if exp == nil {
		return time.Time{}, errors.New("access token missing exp claim")
	}
	return exp.Time, nil
}
