package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// Тесты разбора exp-клейма access-токена (без проверки подписи).

func TestAccessTokenExpiresAt_ValidJWT(t *testing.T) {
	t.Parallel()

	want := time.Now().Add(time.Hour).Truncate(time.Second)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": want.Unix(),
	})
	raw, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	exp, ok := accessTokenExpiresAt(raw)
	require.True(t, ok)
	require.True(t, exp.Equal(want))
}

func TestAccessTokenExpiresAt_NoExpClaim(t *testing.T) {
	t.Parallel()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"})
	raw, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, ok := accessTokenExpiresAt(raw)
	require.False(t, ok)
}

func TestAccessTokenExpiresAt_OpaqueToken(t *testing.T) {
	t.Parallel()

	_, ok := accessTokenExpiresAt("not-a-jwt")
	require.False(t, ok)
}
