package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"task-manager/internal/event"
	"task-manager/internal/model"
)

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService turns auth events into persisted audit entries.
type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Run subscribes to bus and records events until ctx is done.
func (s *AuditService) Run(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	s.Consume(ctx, events)
}

// Consume records events until the channel closes or ctx is done. Write
// failures are logged and skipped; the audit trail never blocks
// authentication.
func (s *AuditService) Consume(ctx context.Context, events <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := s.Record(ctx, e); err != nil {
				slog.Error("audit write failed", "type", e.Type, "error", err)
			}
		}
	}
}

func (s *AuditService) Record(ctx context.Context, e event.Event) error {
	entry := model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339Nano),
		Actor: model.AuditActor{
			UserID: e.Actor.UserID,
			Email:  e.Actor.Email,
			Role:   e.Actor.Role,
		},
		Status: e.Outcome,
		Error:  e.Reason,
	}
	if e.Actor.UserID != "" {
		entry.Resource = "user:" + e.Actor.UserID
	}

	if err := s.store.Log(ctx, entry); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Action = strings.TrimSpace(query.Action)
	query.ActorID = strings.TrimSpace(query.ActorID)
	query.Status = strings.TrimSpace(query.Status)

	entries, meta, err := s.store.Query(ctx, query)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	return entries, meta, nil
}
