package oauth2

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCredentials = Credentials{
	ClientID:     "client-1",
	ClientSecret: "secret-1",
	RedirectURI:  "http://127.0.0.1:8765/callback",
}

func TestCatalog_AllValid(t *testing.T) {
	for name := range catalog {
		t.Run(name, func(t *testing.T) {
			d, err := NewDescriptor(name, testCredentials)
			require.NoError(t, err)
			assert.Equal(t, name, d.Name)
			assert.NoError(t, d.Options.Validate())
			assert.NotEmpty(t, d.Options.Scopes)
			assert.NotEmpty(t, d.claims().ID)
		})
	}

	k := KeycloakProvider("https://sso.example.com/", "main", testCredentials)
	assert.NoError(t, k.Options.Validate())
	assert.Equal(t, "https://sso.example.com/realms/main/protocol/openid-connect/token", k.Options.TokenEndpoint)
}

func TestNewDescriptor_Unknown(t *testing.T) {
	_, err := NewDescriptor("myspace", testCredentials)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewDescriptor_CaseInsensitiveAndScopes(t *testing.T) {
	c := testCredentials
	c.Scopes = []string{"read:user"}

	d, err := NewDescriptor("GitHub", c)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:user"}, d.Options.Scopes)
	assert.Equal(t, "https://api.github.com/user/emails", d.EmailsEndpoint)
}

func TestDescriptor_UsePKCE(t *testing.T) {
	assert.False(t, GoogleProvider(testCredentials).usePKCE())
	assert.True(t, TwitterProvider(testCredentials).usePKCE())

	public := testCredentials
	public.ClientSecret = ""
	assert.True(t, GoogleProvider(public).usePKCE())
}

func TestCustomProvider_DefaultMapping(t *testing.T) {
	d := CustomProvider("acme", validOptions(), ClaimMapping{})
	assert.Equal(t, DefaultClaimMapping, d.claims())
}

func TestEngine_AuthorizationURL(t *testing.T) {
	e, err := NewEngine(GoogleProvider(testCredentials))
	require.NoError(t, err)

	raw := e.AuthorizationURL("state-1", "")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, testCredentials.RedirectURI, q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.False(t, q.Has("code_challenge"))
}

func TestEngine_AuthorizationURLWithPKCE(t *testing.T) {
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	e, err := NewEngine(TwitterProvider(testCredentials))
	require.NoError(t, err)

	u, err := url.Parse(e.AuthorizationURL("state-1", verifier))
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
}

func TestEngine_AuthorizationURLScopeSeparator(t *testing.T) {
	e, err := NewEngine(FacebookProvider(testCredentials))
	require.NoError(t, err)

	u, err := url.Parse(e.AuthorizationURL("state-1", ""))
	require.NoError(t, err)
	assert.Equal(t, "email,public_profile", u.Query().Get("scope"))
}
