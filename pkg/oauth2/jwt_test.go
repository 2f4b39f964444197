package oauth2

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportRSAPublicKey(t *testing.T) {
	key := newTestKey(t)

	pub, err := ImportRSAPublicKey(key.pem)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.private.PublicKey))

	// bare base64 body, wrapped like a PEM block but without armor lines
	body := base64.StdEncoding.EncodeToString(key.der)
	wrapped := body[:64] + "\n" + body[64:]
	pub, err = ImportRSAPublicKey(wrapped)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.private.PublicKey))
}

func TestImportRSAPublicKey_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"not base64 !!",
		base64.StdEncoding.EncodeToString([]byte("not a key")),
		"-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n",
	} {
		_, err := ImportRSAPublicKey(in)
		assert.ErrorIs(t, err, ErrInvalidKeyFormat, "input %q", in)
	}
}

func TestDecodeJWTPayload(t *testing.T) {
	key := newTestKey(t)
	raw := key.sign(t, jwt.MapClaims{"sub": "u1", "email": "u1@example.com", "n": 7})

	claims, err := DecodeJWTPayload(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])
	assert.Equal(t, "u1@example.com", claims["email"])
	assert.Equal(t, "7", claims["n"])
}

func TestDecodeJWTPayload_Malformed(t *testing.T) {
	for _, in := range []string{"", "a.b", "a.b.c.d", "a.!!!.c", "a." + base64.RawURLEncoding.EncodeToString([]byte("[1]")) + ".c"} {
		_, err := DecodeJWTPayload(in)
		assert.ErrorIs(t, err, ErrMalformedToken, "input %q", in)
	}
}

func TestJWTVerifier_Valid(t *testing.T) {
	key := newTestKey(t)
	now := time.Now()
	raw := key.sign(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(time.Hour).Unix()})

	v, err := NewJWTVerifier(key.pem, true, WithVerifierClock(fixedClock(now)))
	require.NoError(t, err)

	claims, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])
}

func TestJWTVerifier_WrongKey(t *testing.T) {
	signer := newTestKey(t)
	other := newTestKey(t)
	raw := signer.sign(t, jwt.MapClaims{"sub": "u1"})

	v, err := NewJWTVerifier(other.pem, false)
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestJWTVerifier_TamperedPayload(t *testing.T) {
	key := newTestKey(t)
	raw := key.sign(t, jwt.MapClaims{"sub": "u1"})
	parts := strings.Split(raw, ".")
	parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"admin"}`))

	v, err := NewJWTVerifier(key.pem, false)
	require.NoError(t, err)

	_, err = v.Verify(strings.Join(parts, "."))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestJWTVerifier_RejectsOtherAlgorithms(t *testing.T) {
	key := newTestKey(t)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte(key.pem))
	require.NoError(t, err)

	v, err := NewJWTVerifier(key.pem, false)
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestJWTVerifier_Expiry(t *testing.T) {
	key := newTestKey(t)
	now := time.Now()

	expired := key.sign(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(-time.Hour).Unix()})
	withinSkew := key.sign(t, jwt.MapClaims{"sub": "u1", "exp": now.Add(-90 * time.Second).Unix()})

	strict, err := NewJWTVerifier(key.pem, true, WithVerifierClock(fixedClock(now)))
	require.NoError(t, err)
	lenient, err := NewJWTVerifier(key.pem, false, WithVerifierClock(fixedClock(now)))
	require.NoError(t, err)

	_, err = strict.Verify(expired)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = lenient.Verify(expired)
	assert.NoError(t, err)

	_, err = strict.Verify(withinSkew)
	assert.NoError(t, err)
}

func TestJWTVerifier_MissingExpiry(t *testing.T) {
	key := newTestKey(t)
	raw := key.sign(t, jwt.MapClaims{"sub": "u1"})

	strict, err := NewJWTVerifier(key.pem, true)
	require.NoError(t, err)
	lenient, err := NewJWTVerifier(key.pem, false)
	require.NoError(t, err)

	_, err = strict.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)

	claims, err := lenient.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])
}

func TestJWTVerifier_NotYetValid(t *testing.T) {
	key := newTestKey(t)
	now := time.Now()
	raw := key.sign(t, jwt.MapClaims{
		"sub": "u1",
		"nbf": now.Add(10 * time.Minute).Unix(),
		"exp": now.Add(time.Hour).Unix(),
	})

	v, err := NewJWTVerifier(key.pem, true, WithVerifierClock(fixedClock(now)))
	require.NoError(t, err)

	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenNotYetValid)
}

func TestJWTVerifier_Malformed(t *testing.T) {
	key := newTestKey(t)
	v, err := NewJWTVerifier(key.pem, true)
	require.NoError(t, err)

	_, err = v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestNewJWTVerifier_BadKey(t *testing.T) {
	_, err := NewJWTVerifier("garbage", true)
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
}
