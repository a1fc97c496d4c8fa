package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/model"
)

func newTestSigner(t *testing.T) *TokenSigner {
	t.Helper()
	signer, err := NewTokenSigner("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	return signer
}

func TestNewTokenSigner_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewTokenSigner("", "r", time.Minute, time.Hour)
	assert.Error(t, err)

	_, err = NewTokenSigner("same", "same", time.Minute, time.Hour)
	assert.Error(t, err)

	_, err = NewTokenSigner("a", "r", 0, time.Hour)
	assert.Error(t, err)
}

func TestAccessToken_RoundTrip(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	user := model.User{ID: "user-1", Role: model.RoleAdmin}

	token, expiresAt, err := signer.SignAccess(user, time.Now())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 2*time.Second)

	identity, err := signer.VerifyAccess(token)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{ID: "user-1", Role: model.RoleAdmin}, identity)
}

func TestAccessToken_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	issued := time.Now()
	token, _, err := signer.SignAccess(model.User{ID: "u1", Role: model.RoleUser}, issued)
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(16 * time.Minute) }

	_, err = signer.VerifyAccess(token)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestSigningDomains_AreIndependent(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	now := time.Now()

	refresh, _, err := signer.SignRefresh("u1", "jti-1", now)
	require.NoError(t, err)
	_, err = signer.VerifyAccess(refresh)
	assert.ErrorIs(t, err, model.ErrInvalidToken, "refresh token must not pass as access token")

	access, _, err := signer.SignAccess(model.User{ID: "u1", Role: model.RoleUser}, now)
	require.NoError(t, err)
	_, err = signer.VerifyRefresh(access)
	assert.ErrorIs(t, err, model.ErrInvalidToken, "access token must not pass as refresh token")
}

func TestRefreshToken_ExpiryMatchesClaim(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 500, time.UTC)

	token, expiresAt, err := signer.SignRefresh("u1", "jti-1", now)
	require.NoError(t, err)

	signer.now = func() time.Time { return now }
	claims, err := signer.VerifyRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, "jti-1", claims.ID)
	assert.Equal(t, "u1", claims.Subject)
	assert.True(t, claims.ExpiresAt.Time.Equal(expiresAt))
}

func TestParseRefreshUnexpired_AcceptsExpiredToken(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	issued := time.Now()
	token, _, err := signer.SignRefresh("u1", "jti-9", issued)
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(8 * 24 * time.Hour) }

	_, err = signer.VerifyRefresh(token)
	assert.ErrorIs(t, err, model.ErrTokenExpired)

	claims, err := signer.ParseRefreshUnexpired(token)
	require.NoError(t, err)
	assert.Equal(t, "jti-9", claims.ID)
}

func TestVerify_RejectsTampering(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)

	_, err := signer.VerifyAccess("not.a.jwt")
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	other, err := NewTokenSigner("other-access", "other-refresh", time.Minute, time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.SignAccess(model.User{ID: "u1", Role: model.RoleAdmin}, time.Now())
	require.NoError(t, err)
	_, err = signer.VerifyAccess(foreign)
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{
		Role:             model.RoleAdmin,
		Type:             typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = signer.VerifyAccess(unsigned)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestVerifyAccess_RejectsUnknownRole(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t)
	token, _, err := signer.SignAccess(model.User{ID: "u1", Role: model.Role("root")}, time.Now())
	require.NoError(t, err)

	_, err = signer.VerifyAccess(token)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestNewTokenID(t *testing.T) {
	t.Parallel()

	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id, err := NewTokenID()
		require.NoError(t, err)
		assert.Len(t, id, 32)
		assert.Equal(t, strings.ToLower(id), id)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
