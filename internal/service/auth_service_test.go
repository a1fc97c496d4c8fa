package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"task-manager/internal/event"
	"task-manager/internal/model"
)

func TestRegister(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "  Alice ", "Alice@Example.COM", "Password123!")
	require.NoError(t, err)

	assert.Equal(t, "Alice", result.User.Name)
	assert.Equal(t, "alice@example.com", result.User.Email)
	assert.Equal(t, model.RoleUser, result.User.Role)
	assert.NotEqual(t, "Password123!", result.User.PasswordHash)
	assert.Equal(t, "Bearer", result.Tokens.TokenType)
	assert.Equal(t, int64(900), result.Tokens.ExpiresIn)

	identity, err := f.signer.VerifyAccess(result.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{ID: result.User.ID, Role: model.RoleUser}, identity)

	claims, err := f.signer.VerifyRefresh(result.Tokens.RefreshToken)
	require.NoError(t, err)
	rec, ok := f.ledger.Get(claims.ID)
	require.True(t, ok)
	assert.Equal(t, result.User.ID, rec.UserID)
	assert.False(t, rec.Revoked)
	assert.True(t, rec.ExpiresAt.Equal(claims.ExpiresAt.Time), "ledger expiry must equal the signed exp")
	assert.Equal(t, 1, f.ledger.Len())
}

func TestRegister_DuplicateEmailIsConflict(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "Other", "ALICE@example.com", "Password456!")
	requireAPIError(t, err, http.StatusConflict, "Email already in use")
	assert.Equal(t, 1, f.ledger.Len())
}

func TestRegister_PasswordTooLongForBcrypt(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), "Alice", "alice@example.com", strings.Repeat("é", 40))
	requireAPIError(t, err, http.StatusBadRequest, "Password is too long")
}

func TestLogin_RejectsPasswordExtendingStoredOne(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	password := strings.Repeat("a", 72)
	_, err := f.svc.Register(ctx, "Ann", "ann@example.com", password)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "ann@example.com", password+"ZZZZZ")
	requireAPIError(t, err, http.StatusUnauthorized, "Invalid credentials")

	_, err = f.svc.Login(ctx, "ann@example.com", password)
	require.NoError(t, err)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "alice@example.com", "WrongPassword1!")
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "Password123!")

	requireAPIError(t, wrongPassword, http.StatusUnauthorized, "Invalid credentials")
	requireAPIError(t, unknownEmail, http.StatusUnauthorized, "Invalid credentials")
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_ConcurrentSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)

	first, err := f.svc.Login(ctx, "ALICE@example.com", "Password123!")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "alice@example.com", "Password123!")
	require.NoError(t, err)
	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	_, err = f.svc.Refresh(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, second.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_RotatesAndConsumes(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)
	original := registered.Tokens

	rotated, err := f.svc.Refresh(ctx, original.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, original.RefreshToken, rotated.RefreshToken)

	oldClaims, err := f.signer.VerifyRefresh(original.RefreshToken)
	require.NoError(t, err)
	newClaims, err := f.signer.VerifyRefresh(rotated.RefreshToken)
	require.NoError(t, err)

	oldRec, _ := f.ledger.Get(oldClaims.ID)
	assert.True(t, oldRec.Revoked)
	assert.Equal(t, newClaims.ID, oldRec.ReplacedBy)

	_, err = f.svc.Refresh(ctx, original.RefreshToken)
	requireAPIError(t, err, http.StatusUnauthorized, "Invalid refresh token")

	_, err = f.signer.VerifyAccess(original.AccessToken)
	assert.NoError(t, err, "access token stays valid until its own expiry")

	_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_RejectsUniformly(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)

	cases := map[string]string{
		"garbage":      "not-a-token",
		"empty":        "",
		"access token": registered.Tokens.AccessToken,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Refresh(ctx, token)
			requireAPIError(t, err, http.StatusUnauthorized, "Invalid refresh token")
		})
	}
}

func TestRefresh_ExpiredRecordIsRejected(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	_, err = f.svc.Refresh(ctx, registered.Tokens.RefreshToken)
	requireAPIError(t, err, http.StatusUnauthorized, "Invalid refresh token")
}

func TestRefresh_MissingUserIsRejected(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	now := time.Now()

	token, expiresAt, err := f.signer.SignRefresh("ghost", "jti-ghost", now)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Create(ctx, model.RefreshTokenRecord{
		ID: "r1", UserID: "ghost", Token: "jti-ghost", Type: model.TokenTypeRefresh, ExpiresAt: expiresAt, CreatedAt: now,
	}))

	_, err = f.svc.Refresh(ctx, token)
	requireAPIError(t, err, http.StatusUnauthorized, "Invalid refresh token")

	rec, _ := f.ledger.Get("jti-ghost")
	assert.False(t, rec.Revoked, "nothing is consumed when the owner is gone")
}

func TestRefresh_ConcurrentCallersHaveOneWinner(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Refresh(ctx, registered.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, failures)
	assert.Equal(t, 2, f.ledger.Len())
}

func TestLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	registered, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)

	f.svc.Logout(ctx, registered.Tokens.RefreshToken)

	_, err = f.svc.Refresh(ctx, registered.Tokens.RefreshToken)
	requireAPIError(t, err, http.StatusUnauthorized, "Invalid refresh token")

	assert.NotPanics(t, func() {
		f.svc.Logout(ctx, registered.Tokens.RefreshToken)
		f.svc.Logout(ctx, "garbage")
		f.svc.Logout(ctx, "")
	})
}

func TestLogout_SwallowsStoreErrors(t *testing.T) {
	f := newAuthFixture(t)
	ledger := &mockLedger{}
	f.svc.tokens = ledger

	token, _, err := f.signer.SignRefresh("u1", "jti-1", time.Now())
	require.NoError(t, err)

	ledger.On("Revoke", mock.Anything, "jti-1", mock.Anything).Return(false, errors.New("db down")).Once()

	assert.NotPanics(t, func() { f.svc.Logout(context.Background(), token) })
	ledger.AssertExpectations(t)
}

func TestRefresh_StoreFailureIsNotUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	ledger := &mockLedger{}
	f.svc.tokens = ledger

	token, _, err := f.signer.SignRefresh("u1", "jti-1", time.Now())
	require.NoError(t, err)

	ledger.On("FindActive", mock.Anything, "jti-1", mock.Anything).
		Return(model.RefreshTokenRecord{}, errors.New("db down")).Once()

	_, err = f.svc.Refresh(context.Background(), token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	ledger.AssertExpectations(t)
}

func TestAuthService_PublishesEvents(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	events, unsubscribe := f.bus.Subscribe()
	defer unsubscribe()

	registered, err := f.svc.Register(ctx, "Alice", "alice@example.com", "Password123!")
	require.NoError(t, err)
	_, _ = f.svc.Login(ctx, "alice@example.com", "nope-nope-nope")
	rotated, err := f.svc.Refresh(ctx, registered.Tokens.RefreshToken)
	require.NoError(t, err)
	_, _ = f.svc.Refresh(ctx, registered.Tokens.RefreshToken)
	f.svc.Logout(ctx, rotated.RefreshToken)

	assert.Equal(t, []event.Type{
		event.TypeRegistered,
		event.TypeLoginFailed,
		event.TypeRefreshed,
		event.TypeRefreshRejected,
		event.TypeLogout,
	}, drain(events))
}

func TestEnsureAdminAndSetRole(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	admin, err := f.svc.EnsureAdmin(ctx, "Root", "root@example.com", "Password123!")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	again, err := f.svc.EnsureAdmin(ctx, "Root", "ROOT@example.com", "ignored-password")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)

	registered, err := f.svc.Register(ctx, "Bob", "bob@example.com", "Password123!")
	require.NoError(t, err)
	promoted, err := f.svc.EnsureAdmin(ctx, "Bob", "bob@example.com", "Password123!")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, promoted.ID)
	assert.Equal(t, model.RoleAdmin, promoted.Role)

	demoted, err := f.svc.SetRole(ctx, "bob@example.com", model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, demoted.Role)

	_, err = f.svc.SetRole(ctx, "bob@example.com", model.Role("superuser"))
	requireAPIError(t, err, http.StatusBadRequest, "Invalid role")

	_, err = f.svc.SetRole(ctx, "nobody@example.com", model.RoleAdmin)
	requireAPIError(t, err, http.StatusNotFound, "User not found")

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
