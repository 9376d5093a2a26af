package session

import "github.com/pkg/errors"

// ErrNoSession is returned by Store.Load when no usable session is
// persisted. Data that fails to decode is reported the same way as
// absent data; no parse error escapes a Store.
var ErrNoSession = errors.New("no stored session")

// TokenPair is the access/refresh credential pair for one session.
// Both fields are persisted together or not at all.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Store persists the current session across process restarts.
type Store interface {
	// Save persists the pair and the user together. From the caller's
	// perspective no observer may see one without the other.
	Save(pair TokenPair, user User) error

	// Load returns the previously saved session, or ErrNoSession when
	// nothing usable is stored.
	Load() (*TokenPair, *User, error)

	// Clear removes any persisted session. Clearing an empty store is
	// not an error.
	Clear() error
}
