package model

import "errors"

// Store-level sentinels. Services translate them into API errors; the
// handler maps any that escape.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidRole       = errors.New("invalid role")

	// ErrTokenNotFound covers absent, revoked and expired ledger records
	// alike.
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")
	ErrInvalidToken  = errors.New("invalid token")
	// ErrTokenConflict means the jti is already in the ledger.
	ErrTokenConflict = errors.New("token already recorded")

	ErrForbidden    = errors.New("forbidden")
	ErrTaskNotFound = errors.New("task not found")
)
