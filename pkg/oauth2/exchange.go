package oauth2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// maxResponseBody caps how much of a provider response is read into memory.
const maxResponseBody = 1 << 20

// Exchanger trades an authorization code for a token at the token endpoint.
type Exchanger struct {
	HTTPClient *http.Client
	// AuthStyle selects where the client secret goes. AuthStyleInHeader sends HTTP Basic;
	// anything else posts client_secret in the body.
	AuthStyle oauth2.AuthStyle
	Now       func() time.Time
}

// Exchange performs the authorization_code grant. verifier is the PKCE code verifier, or "".
func (x *Exchanger) Exchange(ctx context.Context, code string, opts Options, verifier string) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", opts.RedirectURI)
	form.Set("client_id", opts.ClientID)
	if opts.ClientSecret != "" && x.AuthStyle != oauth2.AuthStyleInHeader {
		form.Set("client_secret", opts.ClientSecret)
	}
	if verifier != "" {
		form.Set("code_verifier", verifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create token request: %w", ErrInvalidConfiguration, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if opts.TokenResponseFormat == FormatForm {
		req.Header.Set("Accept", "application/x-www-form-urlencoded")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if opts.ClientSecret != "" && x.AuthStyle == oauth2.AuthStyleInHeader {
		req.SetBasicAuth(url.QueryEscape(opts.ClientID), url.QueryEscape(opts.ClientSecret))
	}

	resp, err := x.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, &TokenExchangeError{Cause: fmt.Errorf("failed to execute token request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("failed to read token response: %w", err)}
	}
	capturedAt := x.now()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	fields, err := parseTokenBody(body, opts.TokenResponseFormat)
	if err != nil {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Body: string(body), Cause: err}
	}

	tr, err := fields.tokenResponse()
	if err != nil {
		return nil, &TokenExchangeError{StatusCode: resp.StatusCode, Body: string(body), Cause: err}
	}
	if tr.AccessToken == "" {
		if e := fields.get("error"); e != "" {
			if d := fields.get("error_description"); d != "" {
				return nil, fmt.Errorf("%w: provider returned %s: %s", ErrMissingAccessToken, e, d)
			}
			return nil, fmt.Errorf("%w: provider returned %s", ErrMissingAccessToken, e)
		}
		return nil, ErrMissingAccessToken
	}

	return NewToken(tr, capturedAt), nil
}

func (x *Exchanger) client() *http.Client {
	if x.HTTPClient != nil {
		return x.HTTPClient
	}
	return http.DefaultClient
}

func (x *Exchanger) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

// tokenFields is the token response body reduced to string values.
type tokenFields map[string]string

func (f tokenFields) get(key string) string {
	return f[key]
}

func (f tokenFields) tokenResponse() (TokenResponse, error) {
	tr := TokenResponse{
		AccessToken:  f.get("access_token"),
		RefreshToken: f.get("refresh_token"),
		IDToken:      f.get("id_token"),
		TokenType:    f.get("token_type"),
		Scope:        f.get("scope"),
	}
	if raw := strings.TrimSpace(f.get("expires_in")); raw != "" {
		secs, err := parseExpiresIn(raw)
		if err != nil {
			return tr, err
		}
		tr.ExpiresIn = secs
	}
	return tr, nil
}

// parseExpiresIn accepts a non-negative integer or finite decimal number of seconds.
// Values past the int64 range saturate.
func parseExpiresIn(raw string) (int64, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil || errors.Is(err, strconv.ErrRange) {
		if n < 0 {
			return 0, fmt.Errorf("invalid expires_in %q", raw)
		}
		return n, nil
	}

	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs < 0 {
		return 0, fmt.Errorf("invalid expires_in %q", raw)
	}
	if secs >= math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(secs), nil
}

func parseTokenBody(body []byte, format TokenResponseFormat) (tokenFields, error) {
	if format == FormatForm {
		values, err := url.ParseQuery(strings.TrimSpace(string(body)))
		if err != nil {
			return nil, fmt.Errorf("failed to decode form token response: %w", err)
		}
		fields := make(tokenFields, len(values))
		for k := range values {
			fields[k] = values.Get(k)
		}
		return fields, nil
	}

	obj, err := decodeObject(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode json token response: %w", err)
	}
	// scope is sometimes sent as an array
	if scopes, ok := obj["scope"].([]any); ok {
		parts := make([]string, 0, len(scopes))
		for _, s := range scopes {
			parts = append(parts, stringifyValue(s))
		}
		obj["scope"] = strings.Join(parts, " ")
	}
	return tokenFields(StringifyClaims(obj)), nil
}
