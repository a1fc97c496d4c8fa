package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-manager/internal/model"
)

func TestAuditRepository_Log(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	occurred := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(pgxmock.AnyArg(), "auth.login", occurred, "u1", "alice@example.com", "user", "success", "", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewAuditRepository(mock).Log(context.Background(), model.AuditEntry{
		Action:     "auth.login",
		OccurredAt: occurred.Format(time.RFC3339Nano),
		Actor:      model.AuditActor{UserID: "u1", Email: "alice@example.com", Role: "user"},
		Status:     "success",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepository_Query(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	occurred := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("auth.login", "u1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT action, occurred_at").
		WithArgs("auth.login", "u1", 2, 2).
		WillReturnRows(pgxmock.NewRows([]string{"action", "occurred_at", "actor_id", "actor_email", "actor_role", "status", "resource", "error"}).
			AddRow("auth.login", occurred, "u1", "alice@example.com", "user", "success", "", ""))

	entries, meta, err := NewAuditRepository(mock).Query(context.Background(), model.AuditQuery{
		Action:  "auth.login",
		ActorID: "u1",
		Page:    2,
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, occurred.Format(time.RFC3339Nano), entries[0].OccurredAt)
	assert.Equal(t, model.Meta{Page: 2, Limit: 2, Total: 3, TotalPages: 2}, meta)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeAuditQuery(t *testing.T) {
	q := NormalizeAuditQuery(model.AuditQuery{Page: -1, Limit: 1000})
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, maxAuditLimit, q.Limit)

	q = NormalizeAuditQuery(model.AuditQuery{})
	assert.Equal(t, defaultAuditLimit, q.Limit)
}
