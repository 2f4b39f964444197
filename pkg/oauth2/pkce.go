package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	DefaultVerifierLength = 64
	MinVerifierLength     = 43
	MaxVerifierLength     = 128

	// unreserved characters allowed in a code verifier (RFC 7636 section 4.1)
	verifierCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-._~"
)

// GenerateCodeVerifier returns a random PKCE code verifier of the given length.
func GenerateCodeVerifier(length int) (string, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return "", fmt.Errorf("%w: code verifier length %d outside [%d, %d]",
			ErrInvalidArgument, length, MinVerifierLength, MaxVerifierLength)
	}

	// bytes at or above limit are rejected so every character is equally likely
	const limit = 256 - 256%len(verifierCharset)

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, verifierCharset[int(b)%len(verifierCharset)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// GenerateCodeChallenge derives the S256 challenge: base64url(sha256(verifier)) without padding.
func GenerateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// GenerateRandomString returns an unguessable URL-safe string built from n random bytes.
func GenerateRandomString(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("%w: random length must be positive", ErrInvalidArgument)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
