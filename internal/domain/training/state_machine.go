package training

import (
	"fmt"

	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
)

// Outcome describes how a provider update was handled.
type Outcome string

const (
	// OutcomeApplied means the record moved to a new status.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoop means the update was stale or a duplicate.
	OutcomeNoop Outcome = "noop"
	// OutcomeIgnored means the record was already terminal.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeUnknownJob means no record carries the job id.
	OutcomeUnknownJob Outcome = "unknown_job"
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	return string(o)
}

// StateMachine validates training status transitions.
// Statuses only move forward and terminal statuses are sticky.
type StateMachine struct {
	transitions map[model.TrainingStatus][]model.TrainingStatus
	states      map[outbound.ProviderJobState]model.TrainingStatus
}

// NewStateMachine creates a new training state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[model.TrainingStatus][]model.TrainingStatus{
			model.TrainingStatusPending:    {model.TrainingStatusProcessing, model.TrainingStatusSucceeded, model.TrainingStatusFailed},
			model.TrainingStatusProcessing: {model.TrainingStatusSucceeded, model.TrainingStatusFailed},
			model.TrainingStatusSucceeded:  {}, // Terminal state
			model.TrainingStatusFailed:     {}, // Terminal state
		},
		states: map[outbound.ProviderJobState]model.TrainingStatus{
			outbound.ProviderJobQueued:     model.TrainingStatusPending,
			outbound.ProviderJobProcessing: model.TrainingStatusProcessing,
			outbound.ProviderJobSucceeded:  model.TrainingStatusSucceeded,
			outbound.ProviderJobFailed:     model.TrainingStatusFailed,
			outbound.ProviderJobCanceled:   model.TrainingStatusFailed,
		},
	}
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to model.TrainingStatus) bool {
	allowed, ok := sm.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Classify decides what an update targeting `to` does to a record in `from`.
func (sm *StateMachine) Classify(from, to model.TrainingStatus) Outcome {
	switch {
	case from.IsTerminal():
		return OutcomeIgnored
	case sm.CanTransition(from, to):
		return OutcomeApplied
	default:
		return OutcomeNoop
	}
}

// StatusFor maps a provider job state onto a training status.
func (sm *StateMachine) StatusFor(state outbound.ProviderJobState) (model.TrainingStatus, error) {
	status, ok := sm.states[state]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProviderState, state)
	}
	return status, nil
}
