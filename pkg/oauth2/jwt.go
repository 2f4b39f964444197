package oauth2

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
)

// ClockSkew is the tolerance applied to exp/nbf checks.
const ClockSkew = 2 * time.Minute

// segmentParser only decodes; it never validates anything.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// ImportRSAPublicKey parses a PEM (SPKI, PKCS#1 or certificate) or a bare base64
// SubjectPublicKeyInfo body into an RSA public key.
func ImportRSAPublicKey(pemText string) (*rsa.PublicKey, error) {
	if strings.Contains(pemText, "-----BEGIN") {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
		}
		return key, nil
	}

	body := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, pemText)
	if body == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKeyFormat)
	}

	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA public key", ErrInvalidKeyFormat)
	}
	return key, nil
}

// DecodeJWTPayload returns the stringified claims of a compact JWT without checking its signature.
func DecodeJWTPayload(raw string) (map[string]string, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: decode payload: %w", ErrMalformedToken, err)
	}

	obj, err := decodeObject(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrMalformedToken, err)
	}
	return StringifyClaims(obj), nil
}

// JWTVerifier validates RS256 tokens against one caller-supplied public key.
// Issuer and audience are not checked.
type JWTVerifier struct {
	key                *rsa.PublicKey
	validateExpiration bool
	now                func() time.Time
}

type VerifierOption func(*JWTVerifier)

// WithVerifierClock overrides the time source used for exp/nbf checks
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *JWTVerifier) {
		v.now = now
	}
}

func NewJWTVerifier(publicKeyPEM string, validateExpiration bool, opts ...VerifierOption) (*JWTVerifier, error) {
	key, err := ImportRSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, err
	}

	v := &JWTVerifier{
		key:                key,
		validateExpiration: validateExpiration,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks the signature (and expiry when enabled) and returns the stringified claims.
func (v *JWTVerifier) Verify(raw string) (map[string]string, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithJSONNumber(),
		jwt.WithLeeway(ClockSkew),
		jwt.WithTimeFunc(v.now),
	}
	if v.validateExpiration {
		parserOpts = append(parserOpts, jwt.WithExpirationRequired())
	} else {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	return StringifyClaims(claims), nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %w", ErrTokenNotYetValid, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		// no exp means no proof the token is still live
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
}
