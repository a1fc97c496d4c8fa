package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"task-manager/internal/auth"
	"task-manager/internal/event"
	"task-manager/internal/model"
	"task-manager/internal/repository/memory"
	"task-manager/pkg/apierror"
)

type authFixture struct {
	svc    *AuthService
	users  *memory.UserStore
	ledger *memory.TokenLedger
	signer *auth.TokenSigner
	bus    *event.InMemoryBus
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost, 4)
	require.NoError(t, err)
	signer, err := auth.NewTokenSigner("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	users := memory.NewUserStore()
	ledger := memory.NewTokenLedger()
	bus := event.NewBus()

	return authFixture{
		svc:    NewAuthService(users, ledger, hasher, signer, bus),
		users:  users,
		ledger: ledger,
		signer: signer,
		bus:    bus,
	}
}

func requireAPIError(t *testing.T, err error, status int, message string) {
	t.Helper()

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.HTTPStatus)
	assert.Equal(t, message, apiErr.Message)
}

func drain(ch <-chan event.Event) []event.Type {
	var types []event.Type
	for {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

// mockLedger lets tests force storage failures.
type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Create(ctx context.Context, rec model.RefreshTokenRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockLedger) FindActive(ctx context.Context, token string, now time.Time) (model.RefreshTokenRecord, error) {
	args := m.Called(ctx, token, now)
	return args.Get(0).(model.RefreshTokenRecord), args.Error(1)
}

func (m *mockLedger) Rotate(ctx context.Context, oldToken string, next model.RefreshTokenRecord, now time.Time) error {
	return m.Called(ctx, oldToken, next, now).Error(0)
}

func (m *mockLedger) Revoke(ctx context.Context, token string, now time.Time) (bool, error) {
	args := m.Called(ctx, token, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockLedger) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
