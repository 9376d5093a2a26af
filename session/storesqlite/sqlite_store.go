// Package storesqlite persists the session in a local SQLite database,
// under the same two logical entries as the file store. Useful when an
// install already keeps its client state in a single database file.
package storesqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/orgdesk/go-client/session"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

const (
	keyTokens = "authTokens"
	keyUser   = "user"

	openTimeout = 5 * time.Second
)

type Store struct {
	db *sql.DB
}

var _ session.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("[storesqlite.Open] path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "[storesqlite.Open] sql.Open")
	}

	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[storesqlite.Open] set WAL")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[storesqlite.Open] set busy_timeout")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[storesqlite.Open] create schema")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes both entries in one transaction.
func (s *Store) Save(pair session.TokenPair, user session.User) error {
	tokensData, err := json.Marshal(pair)
	if err != nil {
		return errors.Wrap(err, "[storesqlite.Save] marshal tokens")
	}
	userData, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "[storesqlite.Save] marshal user")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "[storesqlite.Save] begin")
	}

	const upsert = `INSERT INTO session_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.Exec(upsert, keyTokens, string(tokensData)); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "[storesqlite.Save] upsert tokens")
	}
	if _, err := tx.Exec(upsert, keyUser, string(userData)); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "[storesqlite.Save] upsert user")
	}

	return errors.Wrap(tx.Commit(), "[storesqlite.Save] commit")
}

func (s *Store) Load() (*session.TokenPair, *session.User, error) {
	tokensData, ok := s.get(keyTokens)
	if !ok {
		return nil, nil, session.ErrNoSession
	}
	userData, ok := s.get(keyUser)
	if !ok {
		return nil, nil, session.ErrNoSession
	}

	var pair session.TokenPair
	if json.Unmarshal([]byte(tokensData), &pair) != nil {
		return nil, nil, session.ErrNoSession
	}
	var user session.User
	if json.Unmarshal([]byte(userData), &user) != nil {
		return nil, nil, session.ErrNoSession
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, nil, session.ErrNoSession
	}
	return &pair, &user, nil
}

func (s *Store) Clear() error {
	_, err := s.db.Exec(`DELETE FROM session_state`)
	return errors.Wrap(err, "[storesqlite.Clear] delete")
}

func (s *Store) get(key string) (string, bool) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM session_state WHERE key = ?`, key).Scan(&value)
	return value, err == nil
}
