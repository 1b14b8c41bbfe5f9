package session

import (
	"errors"
	"sync"
)

// ErrNoSession is returned by Current when nobody is logged in.
var ErrNoSession = errors.New("no active session")

// Store holds the access token and user for the lifetime of the process.
// Token and user are always set and cleared together.
type Store struct {
	mu    sync.RWMutex
	token string
	user  *UserInfo
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Set stores the token and user atomically.
func (s *Store) Set(token string, user UserInfo) error {
	if token == "" {
		return errors.New("session token must not be empty")
	}
	u := user
	s.mu.Lock()
	s.token = token
	s.user = &u
	s.mu.Unlock()
	return nil
}

// Token returns the current access token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns the authenticated user, if any.
func (s *Store) User() (UserInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return UserInfo{}, false
	}
	return *s.user, true
}

// Current returns both fields read under one lock.
// Returns ErrNoSession if nothing is set.
func (s *Store) Current() (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.user == nil {
		return Snapshot{}, ErrNoSession
	}
	return Snapshot{Token: s.token, User: *s.user}, nil
}

// IsAuthenticated reports whether a non-empty token is held.
func (s *Store) IsAuthenticated() bool {
	return s.Token() != ""
}

// Clear forgets the token and user.
func (s *Store) Clear() {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
}
