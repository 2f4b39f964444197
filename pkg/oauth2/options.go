package oauth2

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// TokenResponseFormat selects how the token endpoint body is parsed
type TokenResponseFormat int

const (
	FormatJSON TokenResponseFormat = iota
	FormatForm
)

func (f TokenResponseFormat) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatForm:
		return "form"
	default:
		return fmt.Sprintf("TokenResponseFormat(%d)", int(f))
	}
}

// Options describes one provider registration. It is read-only to the flow.
type Options struct {
	ClientID              string
	ClientSecret          string
	RedirectURI           string
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	Scopes                []string
	TokenResponseFormat   TokenResponseFormat
}

// Validate checks the invariants the flow relies on.
func (o Options) Validate() error {
	if strings.TrimSpace(o.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidConfiguration)
	}
	if _, err := parseLoopbackURI(o.RedirectURI); err != nil {
		return err
	}
	if err := requireHTTPS("authorization endpoint", o.AuthorizationEndpoint); err != nil {
		return err
	}
	if err := requireHTTPS("token endpoint", o.TokenEndpoint); err != nil {
		return err
	}
	if o.UserInfoEndpoint != "" {
		if err := requireHTTPS("userinfo endpoint", o.UserInfoEndpoint); err != nil {
			return err
		}
	}
	if o.TokenResponseFormat != FormatJSON && o.TokenResponseFormat != FormatForm {
		return fmt.Errorf("%w: unknown token response format %s", ErrInvalidConfiguration, o.TokenResponseFormat)
	}
	return nil
}

func requireHTTPS(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %s %q is not an absolute URL", ErrInvalidConfiguration, name, raw)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: %s %q must use https", ErrInvalidConfiguration, name, raw)
	}
	return nil
}

// parseLoopbackURI parses a redirect URI and rejects anything not served by this machine.
func parseLoopbackURI(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: redirect uri %q is not an absolute URL", ErrInvalidConfiguration, raw)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("%w: redirect uri %q must use http", ErrInvalidConfiguration, raw)
	}
	if !isLoopbackHost(u.Hostname()) {
		return nil, fmt.Errorf("%w: redirect uri host %q is not loopback", ErrInvalidConfiguration, u.Hostname())
	}
	return u, nil
}

func isLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
