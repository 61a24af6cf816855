// Package session holds the dashboard's single-user authentication state.
package session

import (
	"crypto/subtle"
	"sync"
)

// Verifier checks a login attempt.
type Verifier interface {
	Verify(email, password string) bool
}

// StaticVerifier accepts one configured email/password pair.
type StaticVerifier struct {
	Email    string
	Password string
}

// Verify compares both fields in constant time.
func (v StaticVerifier) Verify(email, password string) bool {
	if v.Email == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(v.Email)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(v.Password)) == 1
	return emailOK && passOK
}

// Session is the process-wide authentication state. It is created at login,
// restored at startup and cleared at logout.
type Session struct {
	mu            sync.RWMutex
	authenticated bool
	store         Store
	verifier      Verifier
}

// New returns an unauthenticated session. Call Restore to load persisted state.
func New(store Store, verifier Verifier) *Session {
	return &Session{store: store, verifier: verifier}
}

// Restore initializes the flag from the store.
func (s *Session) Restore() error {
	ok, err := s.store.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.authenticated = ok
	s.mu.Unlock()
	return nil
}

// Login verifies the credentials and persists the session on success.
// A wrong password returns false with a nil error.
func (s *Session) Login(email, password string) (bool, error) {
	if !s.verifier.Verify(email, password) {
		return false, nil
	}
	if err := s.store.Save(true); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()
	return true, nil
}

// Logout clears the flag and the persisted state.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.authenticated = false
	s.mu.Unlock()
	return s.store.Clear()
}

// IsAuthenticated reports the current state.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}
