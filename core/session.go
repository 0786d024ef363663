package core

import (
	"context"
	"strings"
	"sync"
)

// MemorySession is a single-principal session, handy for tests and for hosts
// that keep the principal on a per-request value.
type MemorySession struct {
	mu        sync.Mutex
	accountID AccountID
	logins    int
}

func NewMemorySession(accountID AccountID) *MemorySession {
	return &MemorySession{accountID: strings.TrimSpace(accountID)}
}

func (s *MemorySession) CurrentAccount(context.Context) (AccountID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID, s.accountID != "", nil
}

func (s *MemorySession) SetCurrentAccount(_ context.Context, accountID AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID = strings.TrimSpace(accountID)
	s.logins++
	return nil
}

// Logins counts SetCurrentAccount calls.
func (s *MemorySession) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func sessionState(authenticated bool) SessionState {
	if authenticated {
		return SessionAuthenticated
	}
	return SessionAnonymous
}
