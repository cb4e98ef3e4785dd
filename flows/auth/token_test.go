package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	t.Parallel()

	issuer, err := NewTokenIssuer([]byte("secret"), time.Minute)
	require.NoError(t, err)

	token, expires, err := issuer.Issue("GABC", ActionPasskey, "GABC")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "GABC", claims.Subject)
	assert.Equal(t, ActionPasskey, claims.Method)
	assert.Equal(t, "GABC", claims.Wallet)
	assert.Equal(t, Issuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	issuer, err := NewTokenIssuer([]byte("secret"), time.Minute)
	require.NoError(t, err)

	other, err := NewTokenIssuer([]byte("other"), time.Minute)
	require.NoError(t, err)

	foreign, _, err := other.Issue("someone", ActionImport, "")
	require.NoError(t, err)

	expired, err := NewTokenIssuer([]byte("secret"), time.Minute)
	require.NoError(t, err)

	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	stale, _, err := expired.Issue("someone", ActionImport, "")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"expired":      stale,
		"unsigned":     none,
	} {
		_, err := issuer.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestRandomSecret(t *testing.T) {
	t.Parallel()

	first, err := NewTokenIssuer(nil, 0)
	require.NoError(t, err)

	second, err := NewTokenIssuer(nil, 0)
	require.NoError(t, err)

	assert.Equal(t, DefaultTokenTTL, first.ttl)

	token, _, err := first.Issue("a@example.com", ActionEmailLink, "")
	require.NoError(t, err)

	_, err = second.Parse(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = first.Parse(token)
	require.NoError(t, err)
}
