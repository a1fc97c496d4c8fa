package service

import (
	"context"
	"log/slog"
	"time"
)

type expiredPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenSweeper deletes refresh records whose expiry has passed. Expired
// records are already inert, so sweeping only bounds table growth.
type TokenSweeper struct {
	ledger expiredPurger
	now    func() time.Time
}

func NewTokenSweeper(ledger expiredPurger) *TokenSweeper {
	return &TokenSweeper{ledger: ledger, now: time.Now}
}

// Start sweeps once immediately and then every interval until ctx is done.
func (s *TokenSweeper) Start(ctx context.Context, interval time.Duration) {
	s.Sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *TokenSweeper) Sweep(ctx context.Context) int64 {
	purged, err := s.ledger.PurgeExpired(ctx, s.now())
	if err != nil {
		slog.Error("refresh token sweep failed", "error", err)
		return 0
	}
	if purged > 0 {
		slog.Info("expired refresh tokens purged", "count", purged)
	}
	return purged
}
