package oauth2

import (
	"math"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiresIn is assumed when the provider does not report a lifetime.
const DefaultExpiresIn = 3600

// maxExpiresIn is the longest lifetime a time.Duration can hold, in seconds.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

// TokenResponse holds the raw fields of a token endpoint response.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	Scope        string
	ExpiresIn    int64
}

// Token is the credential produced by a successful login.
// ExpiresAt is derived once and never recalculated.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`

	capturedAt time.Time
	expiresAt  time.Time
	once       sync.Once
}

// NewToken builds a Token whose expiry is anchored at capturedAt.
func NewToken(resp TokenResponse, capturedAt time.Time) *Token {
	return &Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
		TokenType:    resp.TokenType,
		Scope:        resp.Scope,
		ExpiresIn:    resp.ExpiresIn,
		capturedAt:   capturedAt,
	}
}

// ExpiresAt returns capture time plus ExpiresIn, falling back to DefaultExpiresIn when the
// provider sent no lifetime. The first call fixes the value.
func (t *Token) ExpiresAt() time.Time {
	t.once.Do(func() {
		base := t.capturedAt
		if base.IsZero() {
			base = time.Now()
		}
		secs := t.ExpiresIn
		if secs <= 0 {
			secs = DefaultExpiresIn
		}
		secs = min(secs, maxExpiresIn)
		t.expiresAt = base.Add(time.Duration(secs) * time.Second)
	})
	return t.expiresAt
}

// HasExpiry reports whether the provider actually sent expires_in.
func (t *Token) HasExpiry() bool {
	return t.ExpiresIn > 0
}

// Expired reports whether the token is past ExpiresAt at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// OAuth2 converts the token for use with golang.org/x/oauth2 clients.
func (t *Token) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt(),
		ExpiresIn:    t.ExpiresIn,
	}
	if t.IDToken != "" {
		tok = tok.WithExtra(map[string]any{"id_token": t.IDToken})
	}
	return tok
}
