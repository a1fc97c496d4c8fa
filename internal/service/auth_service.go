package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"task-manager/internal/auth"
	"task-manager/internal/event"
	"task-manager/internal/model"
	"task-manager/pkg/apierror"
)

const (
	msgInvalidCredentials  = "Invalid credentials"
	msgInvalidRefreshToken = "Invalid refresh token"
	msgEmailInUse          = "Email already in use"
)

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) error
	UpdateRole(ctx context.Context, id string, role model.Role, now time.Time) error
	List(ctx context.Context) ([]model.User, error)
}

// RefreshLedger records every issued refresh token. Rotate must be atomic:
// of concurrent callers presenting the same token, at most one succeeds.
type RefreshLedger interface {
	Create(ctx context.Context, rec model.RefreshTokenRecord) error
	FindActive(ctx context.Context, token string, now time.Time) (model.RefreshTokenRecord, error)
	Rotate(ctx context.Context, oldToken string, next model.RefreshTokenRecord, now time.Time) error
	Revoke(ctx context.Context, token string, now time.Time) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type AuthService struct {
	users  UserStore
	tokens RefreshLedger
	hasher *auth.PasswordHasher
	signer *auth.TokenSigner
	bus    event.Bus
	now    func() time.Time
}

func NewAuthService(users UserStore, tokens RefreshLedger, hasher *auth.PasswordHasher, signer *auth.TokenSigner, bus event.Bus) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		signer: signer,
		bus:    bus,
		now:    time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, name string, email string, password string) (model.AuthResult, error) {
	email = model.NormalizeEmail(email)
	name = strings.TrimSpace(name)

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return model.AuthResult{}, apierror.Conflict(msgEmailInUse, "")
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return model.AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}

	user, err := s.createUser(ctx, name, email, password, model.RoleUser)
	if err != nil {
		return model.AuthResult{}, err
	}

	tokens, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.publish(event.New(event.TypeRegistered, actorOf(user), event.OutcomeSuccess, s.now()))
	return model.AuthResult{User: user, Tokens: tokens}, nil
}

// Login answers unknown email and wrong password identically, including the
// bcrypt work spent.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.AuthResult, error) {
	email = model.NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.hasher.CompareDummy(ctx, password)
		s.publish(event.New(event.TypeLoginFailed, event.Actor{Email: email}, event.OutcomeFailure, s.now()).WithReason("unknown email"))
		return model.AuthResult{}, apierror.Unauthorized(msgInvalidCredentials)
	}
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Compare(ctx, password, user.PasswordHash)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		s.publish(event.New(event.TypeLoginFailed, actorOf(user), event.OutcomeFailure, s.now()).WithReason("wrong password"))
		return model.AuthResult{}, apierror.Unauthorized(msgInvalidCredentials)
	}

	tokens, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.publish(event.New(event.TypeLogin, actorOf(user), event.OutcomeSuccess, s.now()))
	return model.AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new pair and consumes the old one.
// Every rejection carries the same message whatever the cause.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return model.TokenPair{}, s.rejectRefresh(event.Actor{}, "verify: "+err.Error())
	}

	now := s.now()
	if _, err := s.tokens.FindActive(ctx, claims.ID, now); err != nil {
		if errors.Is(err, model.ErrTokenNotFound) {
			return model.TokenPair{}, s.rejectRefresh(event.Actor{UserID: claims.Subject}, "not active")
		}
		return model.TokenPair{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	user, err := s.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.TokenPair{}, s.rejectRefresh(event.Actor{UserID: claims.Subject}, "user missing")
	}
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	pair, next, err := s.signPair(user, now)
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := s.tokens.Rotate(ctx, claims.ID, next, now); err != nil {
		if errors.Is(err, model.ErrTokenNotFound) {
			return model.TokenPair{}, s.rejectRefresh(actorOf(user), "already consumed")
		}
		return model.TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.publish(event.New(event.TypeRefreshed, actorOf(user), event.OutcomeSuccess, now))
	return pair, nil
}

// Logout revokes the refresh token if it is still active. It never fails:
// unparseable, unknown and already revoked tokens are all a successful no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if strings.TrimSpace(refreshToken) == "" {
		return
	}

	claims, err := s.signer.ParseRefreshUnexpired(refreshToken)
	if err != nil {
		slog.Debug("logout with unparseable refresh token", "error", err)
		return
	}

	revoked, err := s.tokens.Revoke(ctx, claims.ID, s.now())
	if err != nil {
		slog.Error("logout revoke failed", "user_id", claims.Subject, "error", err)
		return
	}
	if revoked {
		s.publish(event.New(event.TypeLogout, event.Actor{UserID: claims.Subject}, event.OutcomeSuccess, s.now()))
	}
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, apierror.NotFound("User not found", "")
	}

	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, apierror.NotFound("User not found", "")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// EnsureAdmin creates the account with role admin, or promotes it when the
// email is already registered. The password is only used on creation.
func (s *AuthService) EnsureAdmin(ctx context.Context, name string, email string, password string) (model.User, error) {
	email = model.NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if user.Role == model.RoleAdmin {
			return user, nil
		}
		return s.SetRole(ctx, email, model.RoleAdmin)
	case !errors.Is(err, model.ErrUserNotFound):
		return model.User{}, fmt.Errorf("lookup admin: %w", err)
	}

	user, err = s.createUser(ctx, strings.TrimSpace(name), email, password, model.RoleAdmin)
	if err != nil {
		return model.User{}, err
	}
	slog.Info("bootstrap admin created", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// SetRole changes a user's role. Tokens already issued keep the old role
// until they expire.
func (s *AuthService) SetRole(ctx context.Context, email string, role model.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, apierror.Validation("Invalid role", string(role))
	}

	user, err := s.users.FindByEmail(ctx, model.NormalizeEmail(email))
	if errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, apierror.NotFound("User not found", email)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdateRole(ctx, user.ID, role, now); err != nil {
		return model.User{}, fmt.Errorf("update role: %w", err)
	}

	user.Role = role
	user.UpdatedAt = now
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, name string, email string, password string, role model.Role) (model.User, error) {
	digest, err := s.hasher.Hash(ctx, password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return model.User{}, apierror.Validation("Password is too long", "")
	}
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrUserAlreadyExists) {
			return model.User{}, apierror.Conflict(msgEmailInUse, "")
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, user model.User) (model.TokenPair, error) {
	pair, rec, err := s.signPair(user, s.now())
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := s.tokens.Create(ctx, rec); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return pair, nil
}

// signPair signs both tokens from one instant and builds the ledger record
// whose expiry equals the refresh token's exp claim.
func (s *AuthService) signPair(user model.User, now time.Time) (model.TokenPair, model.RefreshTokenRecord, error) {
	jti, err := auth.NewTokenID()
	if err != nil {
		return model.TokenPair{}, model.RefreshTokenRecord{}, err
	}

	accessToken, _, err := s.signer.SignAccess(user, now)
	if err != nil {
		return model.TokenPair{}, model.RefreshTokenRecord{}, err
	}

	refreshToken, expiresAt, err := s.signer.SignRefresh(user.ID, jti, now)
	if err != nil {
		return model.TokenPair{}, model.RefreshTokenRecord{}, err
	}

	rec := model.RefreshTokenRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     jti,
		Type:      model.TokenTypeRefresh,
		ExpiresAt: expiresAt,
		CreatedAt: now.UTC(),
	}

	pair := model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.signer.AccessTTL().Seconds()),
	}

	return pair, rec, nil
}

func (s *AuthService) rejectRefresh(actor event.Actor, reason string) error {
	s.publish(event.New(event.TypeRefreshRejected, actor, event.OutcomeFailure, s.now()).WithReason(reason))
	return apierror.Unauthorized(msgInvalidRefreshToken)
}

func (s *AuthService) publish(e event.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func actorOf(user model.User) event.Actor {
	return event.Actor{UserID: user.ID, Email: user.Email, Role: string(user.Role)}
}
