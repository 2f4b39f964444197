package oauth2

import (
	"fmt"
	"sync"
)

// State is a step of the login state machine
type State int

const (
	StateUnauthenticated State = iota
	StateAwaitingRedirect
	StateExchangingCode
	StateResolvingUser
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAwaitingRedirect:
		return "awaiting_redirect"
	case StateExchangingCode:
		return "exchanging_code"
	case StateResolvingUser:
		return "resolving_user"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) inFlight() bool {
	return s == StateAwaitingRedirect || s == StateExchangingCode || s == StateResolvingUser
}

// Session holds the outcome of the latest login for one engine.
// Token and user are set together and cleared together.
type Session struct {
	mu    sync.RWMutex
	state State
	token *Token
	user  *AuthUser
	err   error
}

// begin moves into AwaitingRedirect; only Unauthenticated and Failed may start a login.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.inFlight():
		return ErrLoginInProgress
	case s.state == StateAuthenticated:
		return ErrAlreadyAuthenticated
	}

	s.state = StateAwaitingRedirect
	s.token = nil
	s.user = nil
	s.err = nil
	return nil
}

func (s *Session) advance(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = to
}

func (s *Session) complete(token *Token, user *AuthUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAuthenticated
	s.token = token
	s.user = user
	s.err = nil
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.token = nil
	s.user = nil
	s.err = err
}

// clear drops token and user; an in-flight login is left alone.
func (s *Session) clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.inFlight() {
		return ErrLoginInProgress
	}
	s.state = StateUnauthenticated
	s.token = nil
	s.user = nil
	s.err = nil
	return nil
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Token() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) User() *AuthUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Err returns the failure that moved the session into StateFailed.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
