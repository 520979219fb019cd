package events

import "context"

// Handler reacts to published events.
type Handler interface {
	// Handles returns the event types this handler processes.
	Handles() []string

	// Handle processes one event. Handlers must tolerate seeing an event twice.
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	eventTypes []string
	fn         func(context.Context, Event) error
}

// NewHandlerFunc creates a new HandlerFunc.
func NewHandlerFunc(eventTypes []string, fn func(context.Context, Event) error) *HandlerFunc {
	return &HandlerFunc{
		eventTypes: eventTypes,
		fn:         fn,
	}
}

func (h *HandlerFunc) Handles() []string {
	return h.eventTypes
}

func (h *HandlerFunc) Handle(ctx context.Context, event Event) error {
	return h.fn(ctx, event)
}
