package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

// userAgent is sent on userinfo calls; GitHub rejects requests without one.
const userAgent = "nativeauth"

type userInfoClient struct {
	httpClient *http.Client
}

// bearerClient returns an HTTP client that attaches tok as a bearer credential.
func (u *userInfoClient) bearerClient(ctx context.Context, tok *Token) *http.Client {
	if u.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, u.httpClient)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok.OAuth2()))
}

// fetchClaims GETs the userinfo endpoint and returns its stringified claims.
// envelope names a wrapping object to unwrap first, e.g. Twitter's "data".
func (u *userInfoClient) fetchClaims(ctx context.Context, endpoint string, tok *Token, envelope string) (map[string]string, error) {
	body, err := u.get(ctx, endpoint, tok)
	if err != nil {
		return nil, err
	}

	obj, err := decodeObject(body)
	if err != nil {
		return nil, &UserInfoError{StatusCode: http.StatusOK, Body: string(body), Cause: fmt.Errorf("failed to decode user info: %w", err)}
	}
	if envelope != "" {
		inner, ok := obj[envelope].(map[string]any)
		if !ok {
			return nil, &UserInfoError{StatusCode: http.StatusOK, Body: string(body), Cause: fmt.Errorf("user info has no %q object", envelope)}
		}
		obj = inner
	}
	return StringifyClaims(obj), nil
}

type emailEntry struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// primaryEmail reads a GitHub-style email list and picks the primary address,
// falling back to the first one.
func (u *userInfoClient) primaryEmail(ctx context.Context, endpoint string, tok *Token) (string, bool, error) {
	body, err := u.get(ctx, endpoint, tok)
	if err != nil {
		return "", false, err
	}

	var emails []emailEntry
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", false, fmt.Errorf("failed to decode emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary {
			return e.Email, e.Verified, nil
		}
	}
	if len(emails) > 0 {
		return emails[0].Email, emails[0].Verified, nil
	}
	return "", false, nil
}

func (u *userInfoClient) get(ctx context.Context, endpoint string, tok *Token) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create user info request: %w", ErrInvalidConfiguration, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := u.bearerClient(ctx, tok).Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, &UserInfoError{Cause: fmt.Errorf("failed to get user info: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, &UserInfoError{StatusCode: resp.StatusCode, Cause: fmt.Errorf("failed to read user info: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UserInfoError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
