package oauth2

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession_Transitions(t *testing.T) {
	var s Session
	assert.Equal(t, StateUnauthenticated, s.State())

	assert.NoError(t, s.begin())
	assert.Equal(t, StateAwaitingRedirect, s.State())
	assert.ErrorIs(t, s.begin(), ErrLoginInProgress)
	assert.ErrorIs(t, s.clear(), ErrLoginInProgress)

	s.advance(StateExchangingCode)
	s.advance(StateResolvingUser)
	assert.ErrorIs(t, s.begin(), ErrLoginInProgress)

	tok := &Token{AccessToken: "tok1"}
	user := &AuthUser{ID: "u1"}
	s.complete(tok, user)
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Same(t, tok, s.Token())
	assert.Same(t, user, s.User())
	assert.ErrorIs(t, s.begin(), ErrAlreadyAuthenticated)

	assert.NoError(t, s.clear())
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, s.Token())
	assert.Nil(t, s.User())
}

func TestSession_FailureClearsCredentials(t *testing.T) {
	var s Session
	s.complete(&Token{AccessToken: "tok1"}, &AuthUser{ID: "u1"})
	assert.NoError(t, s.clear())
	assert.NoError(t, s.begin())

	boom := errors.New("boom")
	s.fail(boom)
	assert.Equal(t, StateFailed, s.State())
	assert.Nil(t, s.Token())
	assert.Nil(t, s.User())
	assert.Equal(t, boom, s.Err())

	// a failed session may retry
	assert.NoError(t, s.begin())
	assert.NoError(t, s.Err())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_redirect", StateAwaitingRedirect.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "State(42)", State(42).String())
}
