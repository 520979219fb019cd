package events

import "github.com/google/uuid"

// Lifecycle event types.
const (
	TrainingFinishedType  = "TrainingFinished"
	GenerationCreatedType = "GenerationCreated"
)

// TrainingFinishedEvent is published once a training reaches a terminal status.
type TrainingFinishedEvent struct {
	BaseEvent

	TrainingID uuid.UUID `json:"training_id"`
	Status     string    `json:"status"`
	Version    string    `json:"version,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewTrainingFinishedEvent creates a TrainingFinishedEvent.
func NewTrainingFinishedEvent(userID, trainingID uuid.UUID, status, version, errMsg string) *TrainingFinishedEvent {
	return &TrainingFinishedEvent{
		BaseEvent:  NewBaseEvent(TrainingFinishedType, userID),
		TrainingID: trainingID,
		Status:     status,
		Version:    version,
		Error:      errMsg,
	}
}

// GenerationCreatedEvent is published after a generated image was recorded
// and its quota charged.
type GenerationCreatedEvent struct {
	BaseEvent

	ImageID    uuid.UUID  `json:"image_id"`
	TrainingID *uuid.UUID `json:"training_id,omitempty"`
	Remaining  int        `json:"remaining"` // -1 for unlimited
}

// NewGenerationCreatedEvent creates a GenerationCreatedEvent.
func NewGenerationCreatedEvent(userID, imageID uuid.UUID, trainingID *uuid.UUID, remaining int) *GenerationCreatedEvent {
	return &GenerationCreatedEvent{
		BaseEvent:  NewBaseEvent(GenerationCreatedType, userID),
		ImageID:    imageID,
		TrainingID: trainingID,
		Remaining:  remaining,
	}
}
