package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is a fact the lifecycle announces after it committed.
type Event interface {
	// EventID returns the unique identifier for this event instance.
	EventID() uuid.UUID

	// EventType returns the type name of the event (e.g., "TrainingFinished").
	EventType() string

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// UserID returns the user the event concerns.
	UserID() uuid.UUID
}

// BaseEvent carries the fields every event shares. Embed it in concrete events.
type BaseEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	User      uuid.UUID `json:"user_id"`
}

func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseEvent) UserID() uuid.UUID     { return e.User }

// NewBaseEvent creates a BaseEvent stamped with a fresh id and the current time.
func NewBaseEvent(eventType string, userID uuid.UUID) BaseEvent {
	return BaseEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		User:      userID,
	}
}
