package oauth2

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by this package matches exactly one of these via errors.Is.
var (
	ErrInvalidConfiguration     = errors.New("invalid configuration")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrCancelled                = errors.New("cancelled")
	ErrMissingAuthorizationCode = errors.New("missing authorization code")
	ErrStateMismatch            = errors.New("state mismatch")
	ErrTokenExchangeFailed      = errors.New("token exchange failed")
	ErrMissingAccessToken       = errors.New("missing access token")
	ErrUserInfoFetchFailed      = errors.New("userinfo fetch failed")
	ErrMalformedToken           = errors.New("malformed token")
	ErrInvalidKeyFormat         = errors.New("invalid key format")
	ErrInvalidSignature         = errors.New("invalid signature")
	ErrTokenExpired             = errors.New("token expired")
	ErrTokenNotYetValid         = errors.New("token not yet valid")
	ErrMissingIDToken           = errors.New("missing id token")
	ErrMissingUserID            = errors.New("missing user id")
	ErrLoginInProgress          = errors.New("login already in progress")
	ErrAlreadyAuthenticated     = errors.New("already authenticated")
	ErrUnknownProvider          = errors.New("unknown provider")
)

// AuthorizationError is returned when the provider redirected back without a code.
type AuthorizationError struct {
	Code        string
	Description string
	URI         string
}

func (e *AuthorizationError) Error() string {
	switch {
	case e.Code == "":
		return ErrMissingAuthorizationCode.Error()
	case e.Description == "":
		return fmt.Sprintf("%s: %s", ErrMissingAuthorizationCode, e.Code)
	default:
		return fmt.Sprintf("%s: %s: %s", ErrMissingAuthorizationCode, e.Code, e.Description)
	}
}

func (e *AuthorizationError) Is(target error) bool {
	return target == ErrMissingAuthorizationCode
}

// TokenExchangeError carries the token endpoint's status and body verbatim.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *TokenExchangeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s with status %d: %v", ErrTokenExchangeFailed, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s with status %d: %s", ErrTokenExchangeFailed, e.StatusCode, e.Body)
}

func (e *TokenExchangeError) Is(target error) bool {
	return target == ErrTokenExchangeFailed
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Cause
}

// UserInfoError carries the userinfo endpoint's status and body verbatim.
type UserInfoError struct {
	StatusCode int
	Body       string
	Cause      error
}

func (e *UserInfoError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s with status %d: %v", ErrUserInfoFetchFailed, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s with status %d: %s", ErrUserInfoFetchFailed, e.StatusCode, e.Body)
}

func (e *UserInfoError) Is(target error) bool {
	return target == ErrUserInfoFetchFailed
}

func (e *UserInfoError) Unwrap() error {
	return e.Cause
}

// cancelled marks err as a cancellation while keeping the context cause reachable.
func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
