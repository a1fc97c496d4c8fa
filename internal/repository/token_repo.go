package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"task-manager/internal/model"
)

// TokenRepository is the postgres refresh ledger. A row is written once at
// issuance and flipped to revoked at most once.
type TokenRepository struct {
	db DB
}

func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, rec model.RefreshTokenRecord) error {
	if err := insertToken(ctx, r.db, rec); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// FindActive returns the record for token when it is neither revoked nor
// expired at now. Anything else is model.ErrTokenNotFound.
func (r *TokenRepository) FindActive(ctx context.Context, token string, now time.Time) (model.RefreshTokenRecord, error) {
	var (
		rec        model.RefreshTokenRecord
		replacedBy *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, token, type, expires_at, revoked, replaced_by, created_at
		 FROM refresh_tokens
		 WHERE token = $1 AND revoked = false AND expires_at > $2`, token, now).
		Scan(&rec.ID, &rec.UserID, &rec.Token, &rec.Type, &rec.ExpiresAt, &rec.Revoked, &replacedBy, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.RefreshTokenRecord{}, model.ErrTokenNotFound
	}
	if err != nil {
		return model.RefreshTokenRecord{}, fmt.Errorf("find refresh token: %w", err)
	}
	if replacedBy != nil {
		rec.ReplacedBy = *replacedBy
	}
	return rec, nil
}

// Rotate revokes oldToken in favour of next and inserts next, in one
// transaction. The conditional update is what makes a refresh token
// single-use: of two concurrent callers exactly one sees a row affected.
func (r *TokenRepository) Rotate(ctx context.Context, oldToken string, next model.RefreshTokenRecord, now time.Time) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE refresh_tokens SET revoked = true, replaced_by = $2
			 WHERE token = $1 AND revoked = false AND expires_at > $3`,
			oldToken, next.Token, now)
		if err != nil {
			return fmt.Errorf("revoke previous token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return model.ErrTokenNotFound
		}

		if err := insertToken(ctx, tx, next); err != nil {
			return fmt.Errorf("store rotated token: %w", err)
		}
		return nil
	})
	if errors.Is(err, model.ErrTokenNotFound) {
		return model.ErrTokenNotFound
	}
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return nil
}

// Revoke marks token revoked if it is still active and reports whether it was.
func (r *TokenRepository) Revoke(ctx context.Context, token string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true
		 WHERE token = $1 AND revoked = false AND expires_at > $2`, token, now)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertToken(ctx context.Context, db execer, rec model.RefreshTokenRecord) error {
	var replacedBy *string
	if rec.ReplacedBy != "" {
		replacedBy = &rec.ReplacedBy
	}
	_, err := db.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token, type, expires_at, revoked, replaced_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, rec.Token, rec.Type, rec.ExpiresAt, rec.Revoked, replacedBy, rec.CreatedAt)
	if isUniqueViolation(err) {
		return model.ErrTokenConflict
	}
	return err
}
