package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens([]byte("secret"))

	raw, err := tokens.Issue(Identity{UserID: "u1", Email: "a@b.c", Role: RoleDriver}, time.Hour)
	require.NoError(t, err)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Email: "a@b.c", Role: RoleDriver}, id)
}

func TestTokens_Rejects(t *testing.T) {
	tokens := NewTokens([]byte("secret"))

	other, err := NewTokens([]byte("other")).Issue(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = tokens.Verify(other)
	require.ErrorIs(t, err, ErrUnauthenticated)

	expired := NewTokens([]byte("secret"))
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(Identity{UserID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = tokens.Verify(old)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = tokens.Verify("not-a-token")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTokens_ForeignClaimSpellings(t *testing.T) {
	secret := []byte("secret")
	tokens := NewTokens(secret)

	// A token from an issuer using _id and an upper-case role.
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"_id":  "mongo-1",
		"role": "ADMIN",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)

	id, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "mongo-1", id.UserID)
	assert.Equal(t, RoleAdmin, id.Role)

	// No user claim at all.
	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = tokens.Verify(raw)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIdentityFromToken(t *testing.T) {
	raw, err := NewTokens([]byte("server-only")).Issue(Identity{UserID: "u7", Role: RoleUser}, time.Hour)
	require.NoError(t, err)

	id, err := IdentityFromToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "u7", id.UserID)
	assert.Equal(t, RoleUser, id.Role)

	_, err = IdentityFromToken("garbage")
	require.ErrorIs(t, err, ErrUnauthenticated)
}
