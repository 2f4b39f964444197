package oauth2

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverProvider builds a descriptor for any OpenID Connect issuer from its
// /.well-known/openid-configuration document. httpClient may be nil.
func DiscoverProvider(ctx context.Context, issuer string, c Credentials, httpClient *http.Client) (Descriptor, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		if ctx.Err() != nil {
			return Descriptor{}, cancelled(ctx.Err())
		}
		return Descriptor{}, fmt.Errorf("%w: failed to discover %s: %w", ErrInvalidConfiguration, issuer, err)
	}

	ep := provider.Endpoint()
	opts := c.options(ep.AuthURL, ep.TokenURL, provider.UserInfoEndpoint(), oidc.ScopeOpenID, "profile", "email")
	if err := opts.Validate(); err != nil {
		return Descriptor{}, err
	}

	return Descriptor{
		Name:    "oidc",
		Options: opts,
		Claims:  DefaultClaimMapping,
	}, nil
}
