package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/model"
)

func nextRecord(now time.Time) model.RefreshTokenRecord {
	return model.RefreshTokenRecord{
		ID:        "rec-2",
		UserID:    "u1",
		Token:     "jti-new",
		Type:      model.TokenTypeRefresh,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
}

func TestTokenRepository_FindActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTokenRepository(mock)
	ctx := context.Background()
	now := time.Now().UTC()
	columns := []string{"id", "user_id", "token", "type", "expires_at", "revoked", "replaced_by", "created_at"}

	t.Run("active", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, token").
			WithArgs("jti-1", now).
			WillReturnRows(pgxmock.NewRows(columns).
				AddRow("rec-1", "u1", "jti-1", "refresh", now.Add(time.Hour), false, (*string)(nil), now))

		rec, err := repo.FindActive(ctx, "jti-1", now)
		require.NoError(t, err)
		assert.Equal(t, "u1", rec.UserID)
		assert.Empty(t, rec.ReplacedBy)
		assert.True(t, rec.Active(now))
	})

	t.Run("absent revoked or expired", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, user_id, token").
			WithArgs("jti-old", now).
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.FindActive(ctx, "jti-old", now)
		assert.ErrorIs(t, err, model.ErrTokenNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_Rotate(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	next := nextRecord(now)

	t.Run("winner commits", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE refresh_tokens SET revoked = true, replaced_by").
			WithArgs("jti-old", "jti-new", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(next.ID, next.UserID, next.Token, next.Type, next.ExpiresAt, false, pgxmock.AnyArg(), next.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		require.NoError(t, NewTokenRepository(mock).Rotate(ctx, "jti-old", next, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already consumed rolls back without insert", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE refresh_tokens SET revoked = true, replaced_by").
			WithArgs("jti-old", "jti-new", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		err = NewTokenRepository(mock).Rotate(ctx, "jti-old", next, now)
		assert.ErrorIs(t, err, model.ErrTokenNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE refresh_tokens SET revoked = true, replaced_by").
			WithArgs("jti-old", "jti-new", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO refresh_tokens").
			WithArgs(next.ID, next.UserID, next.Token, next.Type, next.ExpiresAt, false, pgxmock.AnyArg(), next.CreatedAt).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err = NewTokenRepository(mock).Rotate(ctx, "jti-old", next, now)
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrTokenNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenRepository_RevokeAndPurge(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTokenRepository(mock)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE refresh_tokens SET revoked = true").
		WithArgs("jti-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	revoked, err := repo.Revoke(ctx, "jti-1", now)
	require.NoError(t, err)
	assert.True(t, revoked)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked = true").
		WithArgs("jti-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	revoked, err = repo.Revoke(ctx, "jti-1", now)
	require.NoError(t, err)
	assert.False(t, revoked)

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	purged, err := repo.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_DuplicateJTIIsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	next := nextRecord(now)

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(next.ID, next.UserID, next.Token, next.Type, next.ExpiresAt, false, pgxmock.AnyArg(), next.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = NewTokenRepository(mock).Create(context.Background(), next)
	assert.ErrorIs(t, err, model.ErrTokenConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
