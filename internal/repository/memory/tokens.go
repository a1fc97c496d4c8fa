package memory

import (
	"context"
	"sync"
	"time"

	"task-manager/internal/model"
)

// TokenLedger keys refresh records by jti. Every read-modify-write runs
// under one mutex, so Rotate is a check-and-set.
type TokenLedger struct {
	mu      sync.Mutex
	records map[string]model.RefreshTokenRecord
}

func NewTokenLedger() *TokenLedger {
	return &TokenLedger{records: make(map[string]model.RefreshTokenRecord)}
}

func (l *TokenLedger) Create(_ context.Context, rec model.RefreshTokenRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.records[rec.Token]; exists {
		return model.ErrTokenConflict
	}
	l.records[rec.Token] = rec
	return nil
}

func (l *TokenLedger) FindActive(_ context.Context, token string, now time.Time) (model.RefreshTokenRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[token]
	if !ok || !rec.Active(now) {
		return model.RefreshTokenRecord{}, model.ErrTokenNotFound
	}
	return rec, nil
}

func (l *TokenLedger) Rotate(_ context.Context, oldToken string, next model.RefreshTokenRecord, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[oldToken]
	if !ok || !rec.Active(now) {
		return model.ErrTokenNotFound
	}
	if _, exists := l.records[next.Token]; exists {
		return model.ErrTokenConflict
	}

	rec.Revoked = true
	rec.ReplacedBy = next.Token
	l.records[oldToken] = rec
	l.records[next.Token] = next
	return nil
}

func (l *TokenLedger) Revoke(_ context.Context, token string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[token]
	if !ok || !rec.Active(now) {
		return false, nil
	}
	rec.Revoked = true
	l.records[token] = rec
	return true, nil
}

func (l *TokenLedger) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var purged int64
	for token, rec := range l.records {
		if !now.Before(rec.ExpiresAt) {
			delete(l.records, token)
			purged++
		}
	}
	return purged, nil
}

// Get returns the raw record regardless of state.
func (l *TokenLedger) Get(token string) (model.RefreshTokenRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[token]
	return rec, ok
}

func (l *TokenLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.records)
}
