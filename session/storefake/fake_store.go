// Package storefake provides an in-memory session.Store for tests.
package storefake

import (
	"sync"

	"github.com/orgdesk/go-client/session"
)

var _ session.Store = (*FakeStore)(nil)

type FakeStore struct {
	mu   sync.RWMutex
	pair *session.TokenPair
	user *session.User

	SaveCalls  int
	ClearCalls int
	SaveErr    error
}

func New() *FakeStore {
	return &FakeStore{}
}

func (f *FakeStore) Save(pair session.TokenPair, user session.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SaveCalls++
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.pair = &pair
	f.user = &user
	return nil
}

func (f *FakeStore) Load() (*session.TokenPair, *session.User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.pair == nil || f.user == nil {
		return nil, nil, session.ErrNoSession
	}
	pair := *f.pair
	user := *f.user
	return &pair, &user, nil
}

func (f *FakeStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ClearCalls++
	f.pair = nil
	f.user = nil
	return nil
}

// Seed installs a session directly, bypassing Save bookkeeping.
func (f *FakeStore) Seed(pair session.TokenPair, user session.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pair = &pair
	f.user = &user
}

// Empty reports whether nothing is stored.
func (f *FakeStore) Empty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pair == nil && f.user == nil
}

// Pair returns a copy of the stored token pair, or nil.
func (f *FakeStore) Pair() *session.TokenPair {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.pair == nil {
		return nil
	}
	pair := *f.pair
	return &pair
}

// User returns a copy of the stored user, or nil.
func (f *FakeStore) User() *session.User {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.user == nil {
		return nil
	}
	user := *f.user
	return &user
}
