package oauth2

import (
	"context"
)

// Provider is the capability every login backend exposes to the host application
type Provider interface {
	Login(ctx context.Context) (*AuthUser, error)
	Logout(ctx context.Context) error
	IsAuthenticated() bool
	CurrentUser() *AuthUser
	Token() *Token
}

// AuthUser represents unified user information across providers
type AuthUser struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Email    string            `json:"email"`
	Picture  string            `json:"picture"`
	Roles    []string          `json:"roles"`
	Claims   map[string]string `json:"claims"`
}

// HasRole reports whether the user carries the given role
func (u *AuthUser) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var _ Provider = (*Engine)(nil)
