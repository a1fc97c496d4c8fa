package memory

import (
	"context"
	"strings"
	"sync"

	"task-manager/internal/model"
	"task-manager/internal/repository"
)

// AuditStore keeps entries newest first.
type AuditStore struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Log(_ context.Context, entry model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append([]model.AuditEntry{entry}, s.entries...)
	return nil
}

func (s *AuditStore) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query = repository.NormalizeAuditQuery(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]model.AuditEntry, 0)
	for _, e := range s.entries {
		if query.Action != "" && !strings.EqualFold(e.Action, query.Action) {
			continue
		}
		if query.ActorID != "" && e.Actor.UserID != query.ActorID {
			continue
		}
		if query.Status != "" && !strings.EqualFold(e.Status, query.Status) {
			continue
		}
		matched = append(matched, e)
	}

	meta := model.NewMeta(query.Page, query.Limit, len(matched))
	start := (query.Page - 1) * query.Limit
	if start >= len(matched) {
		return []model.AuditEntry{}, meta, nil
	}
	end := min(start+query.Limit, len(matched))

	return matched[start:end], meta, nil
}
