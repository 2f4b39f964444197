package oauth2

import (
	"context"
	"fmt"
	"strings"
)

// DefaultTokenClaimMapping reads the claims an identity server puts into its access tokens.
var DefaultTokenClaimMapping = ClaimMapping{
	ID:       []string{"sub"},
	Username: []string{"preferred_username", "name"},
	Email:    []string{"email"},
	Roles:    []string{"role"},
}

// TokenProvider authenticates from an RS256 token the host already holds, for example
// one handed over by a launcher. No browser or network is involved: Login checks the
// signature against the configured public key and maps the claims onto an AuthUser.
type TokenProvider struct {
	raw      string
	verifier *JWTVerifier
	mapping  ClaimMapping
	session  Session
}

var _ Provider = (*TokenProvider)(nil)

// NewTokenProvider fails when the token is empty or the key cannot be imported.
// A zero mapping selects DefaultTokenClaimMapping.
func NewTokenProvider(token, publicKeyPEM string, validateExpiration bool, mapping ClaimMapping, opts ...VerifierOption) (*TokenProvider, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: token is empty", ErrInvalidArgument)
	}

	verifier, err := NewJWTVerifier(publicKeyPEM, validateExpiration, opts...)
	if err != nil {
		return nil, err
	}
	if len(mapping.ID) == 0 {
		mapping = DefaultTokenClaimMapping
	}

	return &TokenProvider{
		raw:      token,
		verifier: verifier,
		mapping:  mapping,
	}, nil
}

func (p *TokenProvider) Login(ctx context.Context) (*AuthUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	if err := p.session.begin(); err != nil {
		return nil, err
	}
	p.session.advance(StateResolvingUser)

	claims, err := p.verifier.Verify(p.raw)
	if err != nil {
		p.session.fail(err)
		return nil, err
	}
	user, err := Normalize(claims, p.mapping)
	if err != nil {
		p.session.fail(err)
		return nil, err
	}

	p.session.complete(&Token{AccessToken: p.raw, TokenType: "Bearer"}, user)
	return user, nil
}

// Logout forgets the user. The token itself is kept so Login can run again.
func (p *TokenProvider) Logout(ctx context.Context) error {
	return p.session.clear()
}

func (p *TokenProvider) IsAuthenticated() bool {
	return p.session.State() == StateAuthenticated
}

func (p *TokenProvider) CurrentUser() *AuthUser {
	return p.session.User()
}

func (p *TokenProvider) Token() *Token {
	return p.session.Token()
}
