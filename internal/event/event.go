package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRegistered      Type = "auth.registered"
	TypeLogin           Type = "auth.login"
	TypeLoginFailed     Type = "auth.login_failed"
	TypeRefreshed       Type = "auth.refreshed"
	TypeRefreshRejected Type = "auth.refresh_rejected"
	TypeLogout          Type = "auth.logout"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Actor struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Actor      Actor     `json:"actor"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
}

func New(t Type, actor Actor, outcome string, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: now.UTC(),
		Actor:      actor,
		Outcome:    outcome,
	}
}

// WithReason returns a copy of e carrying a failure reason.
func (e Event) WithReason(reason string) Event {
	e.Reason = reason
	return e
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
