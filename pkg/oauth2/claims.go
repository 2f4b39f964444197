package oauth2

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ClaimMapping lists, per canonical user field, the provider claim names to try in order.
// A name may be a dotted path into a JSON-object claim, e.g. "picture.data.url".
type ClaimMapping struct {
	ID       []string
	Username []string
	Email    []string
	Picture  []string
	Roles    []string
}

// DefaultClaimMapping covers standard OIDC userinfo responses and most OAuth2 user endpoints.
var DefaultClaimMapping = ClaimMapping{
	ID:       []string{"sub", "id"},
	Username: []string{"preferred_username", "name", "login"},
	Email:    []string{"email"},
	Picture:  []string{"picture", "avatar_url"},
	Roles:    []string{"roles", "role"},
}

// Normalize maps a flat claim set onto an AuthUser using the fallback table.
// The returned user keeps a copy of every claim.
func Normalize(claims map[string]string, m ClaimMapping) (*AuthUser, error) {
	user := &AuthUser{
		ID:       firstClaim(claims, m.ID),
		Username: firstClaim(claims, m.Username),
		Email:    firstClaim(claims, m.Email),
		Picture:  firstClaim(claims, m.Picture),
		Roles:    splitRoles(firstClaim(claims, m.Roles)),
		Claims:   make(map[string]string, len(claims)),
	}
	for k, v := range claims {
		user.Claims[k] = v
	}

	if user.ID == "" {
		return nil, fmt.Errorf("%w: none of %v present", ErrMissingUserID, m.ID)
	}
	return user, nil
}

func firstClaim(claims map[string]string, candidates []string) string {
	for _, key := range candidates {
		if v, ok := lookupClaim(claims, key); ok && v != "" {
			return v
		}
	}
	return ""
}

// lookupClaim resolves an exact key first, then a dotted path through JSON-object values.
func lookupClaim(claims map[string]string, key string) (string, bool) {
	if v, ok := claims[key]; ok {
		return v, true
	}

	head, rest, found := strings.Cut(key, ".")
	if !found {
		return "", false
	}
	raw, ok := claims[head]
	if !ok || !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return "", false
	}
	obj, err := decodeObject([]byte(raw))
	if err != nil {
		return "", false
	}

	var cur any = obj
	for _, part := range strings.Split(rest, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[part]; !ok {
			return "", false
		}
	}
	return stringifyValue(cur), true
}

func splitRoles(v string) []string {
	roles := []string{}
	v = strings.TrimSpace(v)
	if v == "" {
		return roles
	}
	if strings.HasPrefix(v, "[") {
		var items []any
		if err := json.Unmarshal([]byte(v), &items); err == nil {
			for _, item := range items {
				if s := stringifyValue(item); s != "" {
					roles = append(roles, s)
				}
			}
			return roles
		}
	}
	return append(roles, v)
}

// StringifyClaims flattens decoded JSON values into strings.
// Strings are kept verbatim, numbers keep their JSON literal form without quotes,
// null becomes "" and objects/arrays become compact JSON.
func StringifyClaims(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = stringifyValue(v)
	}
	return out
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// decodeObject parses a JSON object keeping numbers as json.Number.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return obj, nil
}
