// Package storefile persists the session as two JSON files in a state
// directory: authTokens.json and user.json. The entries are kept
// separate so each can be inspected or replaced on its own, but a
// session only loads when both decode.
package storefile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/orgdesk/go-client/session"
)

const (
	tokensFile = "authTokens.json"
	userFile   = "user.json"

	fileMode = 0o600
	dirMode  = 0o700
)

type Store struct {
	dir string
}

var _ session.Store = (*Store)(nil)

// New creates the state directory if needed and returns a store rooted
// in it.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("[storefile.New] dir is required")
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, errors.Wrap(err, "[storefile.New] MkdirAll")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Save(pair session.TokenPair, user session.User) error {
	if err := s.writeJSON(tokensFile, pair); err != nil {
		return errors.Wrap(err, "[storefile.Save] tokens")
	}
	if err := s.writeJSON(userFile, user); err != nil {
		return errors.Wrap(err, "[storefile.Save] user")
	}
	return nil
}

func (s *Store) Load() (*session.TokenPair, *session.User, error) {
	var pair session.TokenPair
	if !s.readJSON(tokensFile, &pair) {
		return nil, nil, session.ErrNoSession
	}
	var user session.User
	if !s.readJSON(userFile, &user) {
		return nil, nil, session.ErrNoSession
	}
	// A partial pair never loads.
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, nil, session.ErrNoSession
	}
	return &pair, &user, nil
}

func (s *Store) Clear() error {
	for _, name := range []string{tokensFile, userFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(err, "[storefile.Clear] Remove")
		}
	}
	return nil
}

// writeJSON writes via a temp file and rename so readers never see a
// half-written entry.
func (s *Store) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, fileMode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) readJSON(name string, v any) bool {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}
