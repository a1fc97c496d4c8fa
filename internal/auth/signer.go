package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"task-manager/internal/model"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// AccessClaims is the self-contained payload of an access token.
type AccessClaims struct {
	Role model.Role `json:"role"`
	Type string     `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims carries the ledger identifier (jti) of a refresh token.
type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies bearer tokens in two independent HMAC
// domains: a token signed with one secret never verifies with the other.
type TokenSigner struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenSigner(accessSecret string, refreshSecret string, accessTTL time.Duration, refreshTTL time.Duration) (*TokenSigner, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	return &TokenSigner{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}, nil
}

func (s *TokenSigner) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *TokenSigner) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// SignAccess returns a signed access token for the user and its expiry.
func (s *TokenSigner) SignAccess(user model.User, now time.Time) (string, time.Time, error) {
	claims := AccessClaims{
		Role: user.Role,
		Type: typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, claims.ExpiresAt.Time, nil
}

// SignRefresh returns a signed refresh token bound to tokenID. The returned
// expiry is exactly the signed exp claim so the ledger can store the same value.
func (s *TokenSigner) SignRefresh(userID string, tokenID string, now time.Time) (string, time.Time, error) {
	claims := RefreshClaims{
		Type: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return signed, claims.ExpiresAt.Time, nil
}

// VerifyAccess checks signature and expiry and returns the embedded identity.
func (s *TokenSigner) VerifyAccess(tokenString string) (model.Identity, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.accessSecret, true); err != nil {
		return model.Identity{}, err
	}

	if claims.Type != typeAccess || claims.Subject == "" || !claims.Role.Valid() {
		return model.Identity{}, model.ErrInvalidToken
	}

	return model.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// VerifyRefresh checks signature and expiry of a refresh token.
func (s *TokenSigner) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	return s.parseRefresh(tokenString, true)
}

// ParseRefreshUnexpired verifies only the signature of a refresh token, so an
// already expired token still yields its jti. Used for best-effort logout.
func (s *TokenSigner) ParseRefreshUnexpired(tokenString string) (*RefreshClaims, error) {
	return s.parseRefresh(tokenString, false)
}

func (s *TokenSigner) parseRefresh(tokenString string, validateExpiry bool) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.refreshSecret, validateExpiry); err != nil {
		return nil, err
	}

	if claims.Type != typeRefresh || claims.Subject == "" || claims.ID == "" {
		return nil, model.ErrInvalidToken
	}

	return claims, nil
}

func (s *TokenSigner) parse(tokenString string, claims jwt.Claims, secret []byte, validateExpiry bool) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if validateExpiry {
		opts = append(opts, jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return model.ErrInvalidToken
	}

	return nil
}
