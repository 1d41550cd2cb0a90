package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("store-secret"))
	require.NoError(t, err)
	return raw
}

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func TestDecodeUserIDClaims(t *testing.T) {
	cases := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"id", jwt.MapClaims{"id": "u1", "sub": "other"}, "u1"},
		{"sub", jwt.MapClaims{"sub": "u2"}, "u2"},
		{"user_id numeric", jwt.MapClaims{"user_id": float64(42)}, "42"},
		{"userId", jwt.MapClaims{"userId": "u3"}, "u3"},
		{"blank id falls through", jwt.MapClaims{"id": "  ", "sub": "u4"}, "u4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			claims, err := Decode(sign(t, tc.claims))
			require.NoError(t, err)
			assert.Equal(t, tc.want, claims.UserID)
		})
	}
}

func TestUserIDMissing(t *testing.T) {
	_, err := UserID(sign(t, jwt.MapClaims{"role": "customer"}))
	assert.ErrorIs(t, err, ErrNoUserID)
}

func TestValidateShape(t *testing.T) {
	for _, raw := range []string{"", "abc", "a.b", "a.b.c.d", ".b.c", "!!.??.sig"} {
		assert.ErrorIs(t, Validate(raw, now), ErrMalformed, raw)
	}
}

func TestValidateExpiry(t *testing.T) {
	fresh := sign(t, jwt.MapClaims{"id": "u1", "exp": now.Add(time.Hour).Unix()})
	assert.NoError(t, Validate(fresh, now))

	stale := sign(t, jwt.MapClaims{"id": "u1", "exp": now.Add(-time.Minute).Unix()})
	assert.ErrorIs(t, Validate(stale, now), ErrExpired)

	noExp := sign(t, jwt.MapClaims{"id": "u1"})
	assert.NoError(t, Validate(noExp, now))
}

func TestCheckExpiryIsPure(t *testing.T) {
	c := &Claims{ExpiresAt: now}
	assert.ErrorIs(t, CheckExpiry(c, now), ErrExpired)
	assert.NoError(t, CheckExpiry(c, now.Add(-time.Second)))
	assert.NoError(t, CheckExpiry(&Claims{}, now))
}
