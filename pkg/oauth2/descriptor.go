package oauth2

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Descriptor is everything that distinguishes one provider from another: endpoints and
// credentials, the claims fallback table and a few protocol quirks.
type Descriptor struct {
	Name    string
	Options Options
	Claims  ClaimMapping

	// AuthParams are fixed extra parameters on the authorization URL.
	AuthParams map[string]string
	// ScopeSeparator joins Scopes; defaults to a single space.
	ScopeSeparator string
	// PKCE adds a code challenge. It is always used when Options.ClientSecret is empty.
	PKCE bool
	// AuthStyle selects how the client secret reaches the token endpoint.
	AuthStyle oauth2.AuthStyle

	// UserInfoEnvelope unwraps a nested userinfo object, e.g. "data".
	UserInfoEnvelope string
	// EmailsEndpoint is queried for a primary address when userinfo carries no email.
	EmailsEndpoint string

	// PublicKeyPEM enables signature checks on the ID token when there is no userinfo endpoint.
	PublicKeyPEM       string
	ValidateExpiration bool
}

// Credentials are the per-application values a catalog entry needs.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

func (d Descriptor) usePKCE() bool {
	return d.PKCE || d.Options.ClientSecret == ""
}

func (d Descriptor) scopeString() string {
	sep := d.ScopeSeparator
	if sep == "" {
		sep = " "
	}
	return strings.Join(d.Options.Scopes, sep)
}

func (d Descriptor) claims() ClaimMapping {
	if len(d.Claims.ID) == 0 {
		return DefaultClaimMapping
	}
	return d.Claims
}

func (c Credentials) options(authURL, tokenURL, userInfoURL string, defaultScopes ...string) Options {
	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return Options{
		ClientID:              c.ClientID,
		ClientSecret:          c.ClientSecret,
		RedirectURI:           c.RedirectURI,
		AuthorizationEndpoint: authURL,
		TokenEndpoint:         tokenURL,
		UserInfoEndpoint:      userInfoURL,
		Scopes:                scopes,
		TokenResponseFormat:   FormatJSON,
	}
}

func GoogleProvider(c Credentials) Descriptor {
	return Descriptor{
		Name: "google",
		Options: c.options(
			"https://accounts.google.com/o/oauth2/v2/auth",
			"https://oauth2.googleapis.com/token",
			"https://openidconnect.googleapis.com/v1/userinfo",
			"openid", "email", "profile",
		),
		Claims: ClaimMapping{
			ID:       []string{"sub"},
			Username: []string{"name", "email"},
			Email:    []string{"email"},
			Picture:  []string{"picture"},
		},
		AuthParams: map[string]string{
			"access_type": "offline",
			"prompt":      "consent",
		},
	}
}

func GitHubProvider(c Credentials) Descriptor {
	return Descriptor{
		Name: "github",
		Options: c.options(
			"https://github.com/login/oauth/authorize",
			"https://github.com/login/oauth/access_token",
			"https://api.github.com/user",
			"read:user", "user:email",
		),
		Claims: ClaimMapping{
			ID:       []string{"id"},
			Username: []string{"login", "name"},
			Email:    []string{"email"},
			Picture:  []string{"avatar_url"},
		},
		EmailsEndpoint: "https://api.github.com/user/emails",
	}
}

func MicrosoftProvider(c Credentials) Descriptor {
	return Descriptor{
		Name: "microsoft",
		Options: c.options(
			"https://login.microsoftonline.com/common/oauth2/v2.0/authorize",
			"https://login.microsoftonline.com/common/oauth2/v2.0/token",
			"https://graph.microsoft.com/oidc/userinfo",
			"openid", "email", "profile", "User.Read",
		),
		Claims: ClaimMapping{
			ID:       []string{"sub"},
			Username: []string{"name", "preferred_username"},
			Email:    []string{"email"},
			Roles:    []string{"roles"},
		},
		AuthParams: map[string]string{"response_mode": "query"},
	}
}

func FacebookProvider(c Credentials) Descriptor {
	return Descriptor{
		Name: "facebook",
		Options: c.options(
			"https://www.facebook.com/v16.0/dialog/oauth",
			"https://graph.facebook.com/v16.0/oauth/access_token",
			"https://graph.facebook.com/me?fields=id,name,email,picture",
			"email", "public_profile",
		),
		Claims: ClaimMapping{
			ID:       []string{"id"},
			Username: []string{"name"},
			Email:    []string{"email"},
			Picture:  []string{"picture.data.url"},
		},
		ScopeSeparator: ",",
	}
}

// AppleProvider has no userinfo endpoint; identity comes from the ID token.
// Apple posts the redirect back (form_post), which the listener accepts.
func AppleProvider(c Credentials) Descriptor {
	return Descriptor{
		Name: "apple",
		Options: c.options(
			"https://appleid.apple.com/auth/authorize",
			"https://appleid.apple.com/auth/token",
			"",
			"name", "email",
		),
		Claims: ClaimMapping{
			ID:    []string{"sub"},
			Email: []string{"email"},
		},
		AuthParams: map[string]string{"response_mode": "form_post"},
	}
}

// TwitterProvider uses PKCE for public clients and HTTP Basic for confidential ones.
func TwitterProvider(c Credentials) Descriptor {
	return Descriptor{
		Name: "twitter",
		Options: c.options(
			"https://twitter.com/i/oauth2/authorize",
			"https://api.twitter.com/2/oauth2/token",
			"https://api.twitter.com/2/users/me",
			"tweet.read", "users.read", "offline.access",
		),
		Claims: ClaimMapping{
			ID:       []string{"id"},
			Username: []string{"username", "name"},
		},
		PKCE:             true,
		AuthStyle:        oauth2.AuthStyleInHeader,
		UserInfoEnvelope: "data",
	}
}

func LinkedInProvider(c Credentials) Descriptor {
	return Descriptor{
		Name: "linkedin",
		Options: c.options(
			"https://www.linkedin.com/oauth/v2/authorization",
			"https://www.linkedin.com/oauth/v2/accessToken",
			"https://api.linkedin.com/v2/userinfo",
			"openid", "profile", "email",
		),
		Claims: ClaimMapping{
			ID:       []string{"sub"},
			Username: []string{"name", "given_name"},
			Email:    []string{"email"},
			Picture:  []string{"picture"},
		},
	}
}

func KeycloakProvider(baseURL, realm string, c Credentials) Descriptor {
	realmURL := fmt.Sprintf("%s/realms/%s", strings.TrimRight(baseURL, "/"), realm)
	return Descriptor{
		Name: "keycloak",
		Options: c.options(
			realmURL+"/protocol/openid-connect/auth",
			realmURL+"/protocol/openid-connect/token",
			realmURL+"/protocol/openid-connect/userinfo",
			"openid", "profile", "email",
		),
		Claims: ClaimMapping{
			ID:       []string{"sub"},
			Username: []string{"preferred_username", "name"},
			Email:    []string{"email"},
			Picture:  []string{"picture"},
			Roles:    []string{"roles", "realm_access.roles", "groups"},
		},
	}
}

// CustomProvider wraps caller-built options; a zero mapping means DefaultClaimMapping.
func CustomProvider(name string, opts Options, mapping ClaimMapping) Descriptor {
	return Descriptor{
		Name:    name,
		Options: opts,
		Claims:  mapping,
	}
}

var catalog = map[string]func(Credentials) Descriptor{
	"google":    GoogleProvider,
	"github":    GitHubProvider,
	"microsoft": MicrosoftProvider,
	"facebook":  FacebookProvider,
	"apple":     AppleProvider,
	"twitter":   TwitterProvider,
	"linkedin":  LinkedInProvider,
}

// NewDescriptor looks up a catalog provider by name.
func NewDescriptor(name string, c Credentials) (Descriptor, error) {
	build, ok := catalog[strings.ToLower(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return build(c), nil
}
